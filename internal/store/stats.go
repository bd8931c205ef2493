package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/teamfold/teamfold-server/internal/domain"
	apperrors "github.com/teamfold/teamfold-server/internal/errors"
)

const (
	initialStatsPrefix  = "stats:initial:"
	totalStatsPrefix    = "stats:total:"
	offsetStatsPrefix   = "stats:offset:"
	retiredStatsPrefix  = "stats:retired:"
	monthlyResultPrefix = "result:"
)

// PersistInitialStats stores the baseline snapshot for a user, replacing
// any previous baseline.
func (s *Store) PersistInitialStats(ctx context.Context, stats domain.UserStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.setJSON(initialStatsPrefix+stats.UserID, stats)
}

// GetInitialStats retrieves the baseline snapshot for a user.
// The found flag is false when the user has never been baselined.
func (s *Store) GetInitialStats(ctx context.Context, userID string) (domain.UserStats, bool, error) {
	return s.getUserStatsRow(ctx, initialStatsPrefix+userID)
}

// PersistTotalStats stores the most recent raw snapshot fetched from the
// external source, replacing the previous one.
func (s *Store) PersistTotalStats(ctx context.Context, stats domain.UserStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.setJSON(totalStatsPrefix+stats.UserID, stats)
}

// GetTotalStats retrieves the most recent raw snapshot for a user.
func (s *Store) GetTotalStats(ctx context.Context, userID string) (domain.UserStats, bool, error) {
	return s.getUserStatsRow(ctx, totalStatsPrefix+userID)
}

func (s *Store) getUserStatsRow(ctx context.Context, key string) (domain.UserStats, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.UserStats{}, false, err
	}

	var stats domain.UserStats
	err := s.getJSON(key, &stats)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.UserStats{}, false, nil
	}
	if err != nil {
		return domain.UserStats{}, false, err
	}
	return stats, true, nil
}

// CreateOrUpdateOffset accumulates an offset on top of any existing offset
// for the user. Used for manual admin adjustments, which stack.
func (s *Store) CreateOrUpdateOffset(ctx context.Context, offset domain.OffsetTcStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := offsetStatsPrefix + offset.UserID

	return s.db.Update(func(txn *badger.Txn) error {
		merged := offset

		item, err := txn.Get([]byte(key))
		if err == nil {
			var existing domain.OffsetTcStats
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &existing)
			}); err != nil {
				return fmt.Errorf("failed to unmarshal existing offset: %w", err)
			}
			merged = existing.Accumulate(offset)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to get existing offset: %w", err)
		}

		data, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("failed to marshal offset: %w", err)
		}
		return txn.Set([]byte(key), data)
	})
}

// OverwriteOffset replaces the user's offset wholesale. Used by the
// re-baseline flow, where stacking would double-count earned points.
func (s *Store) OverwriteOffset(ctx context.Context, offset domain.OffsetTcStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.setJSON(offsetStatsPrefix+offset.UserID, offset)
}

// GetOffset retrieves the offset for a user.
// The found flag is false when no offset exists.
func (s *Store) GetOffset(ctx context.Context, userID string) (domain.OffsetTcStats, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.OffsetTcStats{}, false, err
	}

	var offset domain.OffsetTcStats
	err := s.getJSON(offsetStatsPrefix+userID, &offset)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.OffsetTcStats{}, false, nil
	}
	if err != nil {
		return domain.OffsetTcStats{}, false, err
	}
	return offset, true, nil
}

// DeleteOffset removes the offset for a user. Idempotent.
func (s *Store) DeleteOffset(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(offsetStatsPrefix + userID))
	})
}

// DeleteAllOffsets removes every stored offset. Used by the monthly reset.
func (s *Store) DeleteAllOffsets(ctx context.Context) error {
	return s.deleteByPrefix(ctx, offsetStatsPrefix)
}

// CreateRetiredUserStats stores an immutable snapshot of a departing user's
// competition stats against their former team.
func (s *Store) CreateRetiredUserStats(ctx context.Context, retired domain.RetiredUserTcStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := retiredStatsPrefix + retired.ID
	data, err := json.Marshal(retired)
	if err != nil {
		return fmt.Errorf("failed to marshal retired stats: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return apperrors.AlreadyExistsf("retired stats %s already exist", retired.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check existing key: %w", err)
		}
		return txn.Set([]byte(key), data)
	})
}

// GetAllRetiredUserStats returns every retired-user snapshot.
func (s *Store) GetAllRetiredUserStats(ctx context.Context) ([]domain.RetiredUserTcStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []domain.RetiredUserTcStats

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(retiredStatsPrefix)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(retiredStatsPrefix)); it.ValidForPrefix([]byte(retiredStatsPrefix)); it.Next() {
			var retired domain.RetiredUserTcStats
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &retired)
			})
			if err != nil {
				return err
			}
			results = append(results, retired)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteAllRetiredUserStats removes every retired-user snapshot.
// Used by the monthly reset.
func (s *Store) DeleteAllRetiredUserStats(ctx context.Context) error {
	return s.deleteByPrefix(ctx, retiredStatsPrefix)
}

// CreateMonthlyResult freezes the competition standings for one month.
// Returns ErrAlreadyExists if a result for that period was already captured;
// results are never overwritten.
func (s *Store) CreateMonthlyResult(ctx context.Context, result domain.MonthlyResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := monthlyResultKey(result.Year, result.Month)
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal monthly result: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return apperrors.AlreadyExistsf("monthly result for %04d-%02d already exists", result.Year, result.Month)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check existing key: %w", err)
		}
		return txn.Set([]byte(key), data)
	})
}

// GetMonthlyResult retrieves the frozen standings for one month.
// The found flag is false when no result was captured for that period.
func (s *Store) GetMonthlyResult(ctx context.Context, year int, month time.Month) (domain.MonthlyResult, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.MonthlyResult{}, false, err
	}

	var result domain.MonthlyResult
	err := s.getJSON(monthlyResultKey(year, month), &result)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.MonthlyResult{}, false, nil
	}
	if err != nil {
		return domain.MonthlyResult{}, false, err
	}
	return result, true, nil
}

func monthlyResultKey(year int, month time.Month) string {
	return fmt.Sprintf("%s%04d-%02d", monthlyResultPrefix, year, int(month))
}

// deleteByPrefix removes every key under a prefix in a single transaction.
func (s *Store) deleteByPrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)

		var keys [][]byte
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("failed to delete key %s: %w", key, err)
			}
		}
		return nil
	})
}
