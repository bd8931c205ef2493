// Package history reconstructs per-hour, per-day and per-month activity
// deltas from the raw hourly time series. Results are computed from
// storage on every call and never cached; the stored rows already carry
// the hardware multiplier baked in at write time, so no retroactive
// recomputation happens here.
package history

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/teamfold/teamfold-server/internal/domain"
	"github.com/teamfold/teamfold-server/internal/facade"
)

// Engine answers historic stats queries.
type Engine struct {
	facade *facade.Facade
	logger *slog.Logger
}

// New creates a historic diff engine.
func New(f *facade.Facade, logger *slog.Logger) *Engine {
	return &Engine{facade: f, logger: logger}
}

// ForUser selects the granularity from which period fields are set:
// no year returns empty, year alone returns monthly buckets, year and
// month return daily buckets, and a full date returns hourly buckets.
func (e *Engine) ForUser(ctx context.Context, userID string, year int, month time.Month, day int) ([]domain.HistoricStats, error) {
	switch {
	case year == 0:
		return nil, nil
	case month == 0:
		return e.Monthly(ctx, userID, year)
	case day == 0:
		return e.Daily(ctx, userID, year, month)
	default:
		return e.Hourly(ctx, userID, year, month, day)
	}
}

// Hourly returns the activity within each hour of one day.
func (e *Engine) Hourly(ctx context.Context, userID string, year int, month time.Month, day int) ([]domain.HistoricStats, error) {
	start := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return e.diff(ctx, userID, start, start.AddDate(0, 0, 1), bucketByHour)
}

// Daily returns the activity within each day of one month.
func (e *Engine) Daily(ctx context.Context, userID string, year int, month time.Month) ([]domain.HistoricStats, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return e.diff(ctx, userID, start, start.AddDate(0, 1, 0), bucketByDay)
}

// Monthly returns the activity within each month of one year.
func (e *Engine) Monthly(ctx context.Context, userID string, year int) ([]domain.HistoricStats, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return e.diff(ctx, userID, start, start.AddDate(1, 0, 0), bucketByMonth)
}

func bucketByHour(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Hour)
}

func bucketByDay(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

func bucketByMonth(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// diff implements the shared bucketing algorithm: take the maximum
// cumulative value observed within each bucket (duplicate and out-of-order
// rows collapse harmlessly), then emit clamped differences between
// consecutive buckets. The first bucket subtracts the last record before
// the window; when no prior record exists the stored values are already
// zero-anchored to the baseline, so the first bucket is taken as-is.
func (e *Engine) diff(ctx context.Context, userID string, start, end time.Time, bucketOf func(time.Time) time.Time) ([]domain.HistoricStats, error) {
	rows, err := e.facade.Store().GetHourlyTcStatsInRange(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	maxima := make(map[time.Time]domain.UserTcStats)
	for _, row := range rows {
		bucket := bucketOf(row.Timestamp)
		current, ok := maxima[bucket]
		if !ok {
			maxima[bucket] = row
			continue
		}
		maxima[bucket] = domain.UserTcStats{
			UserID:           userID,
			Timestamp:        bucket,
			Points:           max(current.Points, row.Points),
			MultipliedPoints: max(current.MultipliedPoints, row.MultipliedPoints),
			Units:            max(current.Units, row.Units),
		}
	}

	buckets := make([]time.Time, 0, len(maxima))
	for bucket := range maxima {
		buckets = append(buckets, bucket)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Before(buckets[j]) })

	previous := domain.UserTcStats{UserID: userID}
	if before, found, err := e.facade.Store().GetLastHourlyTcStatsBefore(ctx, userID, start); err != nil {
		return nil, err
	} else if found {
		previous = before
	}

	results := make([]domain.HistoricStats, 0, len(buckets))
	for _, bucket := range buckets {
		current := maxima[bucket]
		results = append(results, domain.HistoricStats{
			Timestamp:        bucket,
			Points:           clampedDiff(current.Points, previous.Points),
			MultipliedPoints: clampedDiff(current.MultipliedPoints, previous.MultipliedPoints),
			Units:            clampedDiff(current.Units, previous.Units),
		})
		previous = current
	}
	return results, nil
}

// ForTeam sums the per-bucket activity of every user currently on a team.
// Buckets are merged by timestamp across users, so a user inactive in one
// bucket simply contributes nothing to it.
func (e *Engine) ForTeam(ctx context.Context, teamID string, year int, month time.Month, day int) ([]domain.HistoricStats, error) {
	users, err := e.facade.GetUsersOnTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	merged := make(map[time.Time]domain.HistoricStats)
	for _, view := range users {
		buckets, err := e.ForUser(ctx, view.User.ID, year, month, day)
		if err != nil {
			return nil, err
		}
		for _, bucket := range buckets {
			sum := merged[bucket.Timestamp]
			sum.Timestamp = bucket.Timestamp
			sum.Points += bucket.Points
			sum.MultipliedPoints += bucket.MultipliedPoints
			sum.Units += bucket.Units
			merged[bucket.Timestamp] = sum
		}
	}
	if len(merged) == 0 {
		return nil, nil
	}

	results := make([]domain.HistoricStats, 0, len(merged))
	for _, bucket := range merged {
		results = append(results, bucket)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Timestamp.Before(results[j].Timestamp) })
	return results, nil
}

func clampedDiff(current, previous int64) int64 {
	if current <= previous {
		return 0
	}
	return current - previous
}
