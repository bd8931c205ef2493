package store

import (
	"context"
	"encoding/json/v2"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/teamfold/teamfold-server/internal/domain"
)

const hourlyStatsPrefix = "stats:hourly:"

// hourlyKey builds a lexicographically sortable key for one hourly record.
// Timestamps are normalised to UTC so RFC 3339 rendering is fixed-width.
func hourlyKey(userID string, ts time.Time) string {
	return hourlyStatsPrefix + userID + ":" + ts.UTC().Format(time.RFC3339)
}

// PersistHourlyTcStats appends one reported-stats record to the user's
// hourly time series. Records are append-only; writing the same timestamp
// twice overwrites the earlier row, which keeps re-runs of a parse cycle
// idempotent.
func (s *Store) PersistHourlyTcStats(ctx context.Context, stats domain.UserTcStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.setJSON(hourlyKey(stats.UserID, stats.Timestamp), stats)
}

// GetLatestHourlyTcStats returns the most recent hourly record for a user.
// The found flag is false when the user has no recorded cycles yet.
func (s *Store) GetLatestHourlyTcStats(ctx context.Context, userID string) (domain.UserTcStats, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.UserTcStats{}, false, err
	}

	prefix := hourlyStatsPrefix + userID + ":"
	var stats domain.UserTcStats
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.Reverse = true
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// In reverse mode the seek key must sort after every key in the
		// prefix range, so append a 0xFF sentinel.
		seek := append([]byte(prefix), 0xFF)
		it.Seek(seek)
		if !it.ValidForPrefix([]byte(prefix)) {
			return nil
		}

		found = true
		return it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &stats)
		})
	})

	if err != nil {
		return domain.UserTcStats{}, false, err
	}
	return stats, found, nil
}

// AnyHourlyStatsPresent reports whether any hourly record exists at all,
// for any user.
func (s *Store) AnyHourlyStatsPresent(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	present := false
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(hourlyStatsPrefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek([]byte(hourlyStatsPrefix))
		present = it.ValidForPrefix([]byte(hourlyStatsPrefix))
		return nil
	})

	return present, err
}

// GetHourlyTcStatsInRange returns the user's hourly records with
// start <= timestamp < end, in ascending timestamp order.
func (s *Store) GetHourlyTcStatsInRange(ctx context.Context, userID string, start, end time.Time) ([]domain.UserTcStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := hourlyStatsPrefix + userID + ":"
	var results []domain.UserTcStats

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// Keys sort by timestamp, so seeking to the range start skips
		// everything earlier without reading it.
		seek := []byte(hourlyKey(userID, start))
		for it.Seek(seek); it.ValidForPrefix([]byte(prefix)); it.Next() {
			var stats domain.UserTcStats
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &stats)
			})
			if err != nil {
				return err
			}
			if !stats.Timestamp.Before(end) {
				break
			}
			results = append(results, stats)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetLastHourlyTcStatsBefore returns the newest record strictly older than t.
// The found flag is false when the user has no record before that instant.
func (s *Store) GetLastHourlyTcStatsBefore(ctx context.Context, userID string, t time.Time) (domain.UserTcStats, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.UserTcStats{}, false, err
	}

	prefix := hourlyStatsPrefix + userID + ":"
	var stats domain.UserTcStats
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.Reverse = true
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse-seek to the boundary key; the first valid row at or
		// after the seek position (in reverse order) is <= t, so skip
		// rows until strictly before t.
		seek := []byte(hourlyKey(userID, t))
		for it.Seek(seek); it.ValidForPrefix([]byte(prefix)); it.Next() {
			var candidate domain.UserTcStats
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &candidate)
			})
			if err != nil {
				return err
			}
			if candidate.Timestamp.Before(t) {
				stats = candidate
				found = true
				return nil
			}
		}
		return nil
	})

	if err != nil {
		return domain.UserTcStats{}, false, err
	}
	return stats, found, nil
}
