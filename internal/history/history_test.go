package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamfold/teamfold-server/internal/domain"
	"github.com/teamfold/teamfold-server/internal/facade"
	"github.com/teamfold/teamfold-server/internal/store"
)

func setupTestHistory(t *testing.T) (*Engine, *facade.Facade) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := store.New(dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := facade.New(s, logger, nil)
	return New(f, logger), f
}

func persistRow(t *testing.T, f *facade.Facade, userID string, ts time.Time, points, multiplied, units int64) {
	t.Helper()
	require.NoError(t, f.PersistHourlyTcStats(context.Background(), domain.UserTcStats{
		UserID:           userID,
		Timestamp:        ts,
		Points:           points,
		MultipliedPoints: multiplied,
		Units:            units,
	}))
}

func TestHourlyDiffsWithinDay(t *testing.T) {
	engine, f := setupTestHistory(t)
	ctx := context.Background()

	day := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	persistRow(t, f, "user-1", day.Add(1*time.Hour), 100, 200, 1)
	persistRow(t, f, "user-1", day.Add(2*time.Hour), 250, 500, 2)
	persistRow(t, f, "user-1", day.Add(3*time.Hour), 400, 800, 4)

	got, err := engine.Hourly(ctx, "user-1", 2026, time.March, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// No prior data: the first bucket is taken as-is, already anchored to
	// the baseline.
	assert.Equal(t, int64(100), got[0].Points)
	assert.Equal(t, int64(150), got[1].Points)
	assert.Equal(t, int64(300), got[1].MultipliedPoints)
	assert.Equal(t, int64(150), got[2].Points)
	assert.Equal(t, int64(2), got[2].Units)
}

func TestFirstBucketLooksBackBeforeWindow(t *testing.T) {
	engine, f := setupTestHistory(t)
	ctx := context.Background()

	day := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

	// Last record of the previous day anchors the first bucket.
	persistRow(t, f, "user-1", day.Add(-time.Hour), 40, 80, 1)
	persistRow(t, f, "user-1", day.Add(1*time.Hour), 100, 200, 2)
	persistRow(t, f, "user-1", day.Add(2*time.Hour), 250, 500, 3)

	got, err := engine.Hourly(ctx, "user-1", 2026, time.March, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(60), got[0].Points)
	assert.Equal(t, int64(120), got[0].MultipliedPoints)
	assert.Equal(t, int64(1), got[0].Units)
	assert.Equal(t, int64(150), got[1].Points)
}

func TestDuplicateAndOutOfOrderRowsNeverGoNegative(t *testing.T) {
	engine, f := setupTestHistory(t)
	ctx := context.Background()

	day := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

	// Two rows in the same hour; the later write carries a lower value.
	persistRow(t, f, "user-1", day.Add(time.Hour), 100, 200, 1)
	persistRow(t, f, "user-1", day.Add(time.Hour).Add(30*time.Minute), 90, 180, 1)

	// The next hour dips below the previous maximum.
	persistRow(t, f, "user-1", day.Add(2*time.Hour), 95, 190, 1)

	got, err := engine.Hourly(ctx, "user-1", 2026, time.March, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(100), got[0].Points)
	for _, bucket := range got {
		assert.GreaterOrEqual(t, bucket.Points, int64(0))
		assert.GreaterOrEqual(t, bucket.MultipliedPoints, int64(0))
		assert.GreaterOrEqual(t, bucket.Units, int64(0))
	}
	assert.Equal(t, int64(0), got[1].Points)
}

func TestDailyDiffsSumToRange(t *testing.T) {
	engine, f := setupTestHistory(t)
	ctx := context.Background()

	monthStart := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	// Several records per day, cumulative values growing across the month.
	persistRow(t, f, "user-1", monthStart.Add(10*time.Hour), 100, 100, 1)
	persistRow(t, f, "user-1", monthStart.Add(20*time.Hour), 180, 180, 2)
	persistRow(t, f, "user-1", monthStart.AddDate(0, 0, 1).Add(5*time.Hour), 300, 300, 3)
	persistRow(t, f, "user-1", monthStart.AddDate(0, 0, 4).Add(5*time.Hour), 450, 450, 5)

	got, err := engine.Daily(ctx, "user-1", 2026, time.March)
	require.NoError(t, err)
	require.Len(t, got, 3)

	var sum int64
	for _, bucket := range got {
		sum += bucket.Points
	}
	assert.Equal(t, int64(450), sum)
	assert.Equal(t, int64(180), got[0].Points)
	assert.Equal(t, int64(120), got[1].Points)
	assert.Equal(t, int64(150), got[2].Points)
}

func TestMonthlyDiffsWithinYear(t *testing.T) {
	engine, f := setupTestHistory(t)
	ctx := context.Background()

	persistRow(t, f, "user-1", time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC), 500, 500, 5)
	persistRow(t, f, "user-1", time.Date(2026, time.February, 10, 12, 0, 0, 0, time.UTC), 900, 900, 8)

	got, err := engine.Monthly(ctx, "user-1", 2026)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(500), got[0].Points)
	assert.Equal(t, int64(400), got[1].Points)
}

func TestForUserGranularitySelection(t *testing.T) {
	engine, f := setupTestHistory(t)
	ctx := context.Background()

	persistRow(t, f, "user-1", time.Date(2026, time.March, 10, 1, 0, 0, 0, time.UTC), 100, 100, 1)

	none, err := engine.ForUser(ctx, "user-1", 0, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	monthly, err := engine.ForUser(ctx, "user-1", 2026, 0, 0)
	require.NoError(t, err)
	require.Len(t, monthly, 1)
	assert.Equal(t, time.March, monthly[0].Timestamp.Month())

	daily, err := engine.ForUser(ctx, "user-1", 2026, time.March, 0)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, 10, daily[0].Timestamp.Day())

	hourly, err := engine.ForUser(ctx, "user-1", 2026, time.March, 10)
	require.NoError(t, err)
	require.Len(t, hourly, 1)
	assert.Equal(t, 1, hourly[0].Timestamp.Hour())
}

func TestNoDataDistinctFromZeroActivity(t *testing.T) {
	engine, f := setupTestHistory(t)
	ctx := context.Background()

	// No data at all: empty result.
	got, err := engine.Hourly(ctx, "user-1", 2026, time.March, 10)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Zero-valued rows present: buckets exist, deltas are zero.
	day := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	persistRow(t, f, "user-1", day.Add(time.Hour), 0, 0, 0)
	persistRow(t, f, "user-1", day.Add(2*time.Hour), 0, 0, 0)

	got, err = engine.Hourly(ctx, "user-1", 2026, time.March, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Points == 0 && got[1].Points == 0)
}

func TestForTeamSumsUserBuckets(t *testing.T) {
	engine, f := setupTestHistory(t)
	ctx := context.Background()

	require.NoError(t, f.CreateHardware(ctx, domain.Hardware{ID: "hw-1", Name: "HW", Multiplier: 1.0}))
	require.NoError(t, f.CreateTeam(ctx, domain.Team{ID: "team-a", Name: "Alpha"}))
	for _, userID := range []string{"user-1", "user-2"} {
		_, err := f.CreateUser(ctx, domain.User{
			ID: userID, DisplayName: userID, FoldingName: "fold_" + userID,
			Passkey: "pk", HardwareID: "hw-1", TeamID: "team-a",
		})
		require.NoError(t, err)
	}

	day := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	persistRow(t, f, "user-1", day.Add(time.Hour), 100, 100, 1)
	persistRow(t, f, "user-2", day.Add(time.Hour), 40, 40, 1)

	got, err := engine.ForTeam(ctx, "team-a", 2026, time.March, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(140), got[0].Points)
	assert.Equal(t, int64(2), got[0].Units)
}
