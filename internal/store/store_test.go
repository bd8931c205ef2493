package store

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
	apperrors "github.com/teamfold/teamfold-server/internal/errors"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := New(dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func testUser(id, teamID, hardwareID string) *domain.User {
	now := time.Now().UTC()
	return &domain.User{
		ID:          id,
		DisplayName: "User " + id,
		FoldingName: "fold_" + id,
		Passkey:     "passkey-" + id,
		HardwareID:  hardwareID,
		TeamID:      teamID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestEntityCRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	hw := &domain.Hardware{ID: "hw-1", Name: "GPU", Multiplier: 2.0}
	require.NoError(t, s.Hardware.Create(ctx, hw))

	got, err := s.Hardware.Get(ctx, "hw-1")
	require.NoError(t, err)
	assert.Equal(t, "GPU", got.Name)
	assert.Equal(t, 2.0, got.Multiplier)

	err = s.Hardware.Create(ctx, hw)
	assert.True(t, apperrors.Is(err, apperrors.ErrAlreadyExists))

	hw.Multiplier = 3.0
	require.NoError(t, s.Hardware.Update(ctx, hw))
	got, err = s.Hardware.Get(ctx, "hw-1")
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Multiplier)

	require.NoError(t, s.Hardware.Delete(ctx, "hw-1"))
	_, err = s.Hardware.Get(ctx, "hw-1")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestUserIndexes(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Users.Create(ctx, testUser("user-1", "team-a", "hw-1")))
	require.NoError(t, s.Users.Create(ctx, testUser("user-2", "team-a", "hw-2")))
	require.NoError(t, s.Users.Create(ctx, testUser("user-3", "team-b", "hw-1")))

	onTeamA, err := s.Users.GetAllByIndex(ctx, "team", "team-a")
	require.NoError(t, err)
	assert.Len(t, onTeamA, 2)

	onHw1, err := s.Users.GetAllByIndex(ctx, "hardware", "hw-1")
	require.NoError(t, err)
	assert.Len(t, onHw1, 2)

	// Moving a user between teams must reindex.
	moved := testUser("user-1", "team-b", "hw-1")
	require.NoError(t, s.Users.Update(ctx, moved))

	onTeamA, err = s.Users.GetAllByIndex(ctx, "team", "team-a")
	require.NoError(t, err)
	assert.Len(t, onTeamA, 1)

	onTeamB, err := s.Users.GetAllByIndex(ctx, "team", "team-b")
	require.NoError(t, err)
	assert.Len(t, onTeamB, 2)
}

func TestOffsetAccumulateVsOverwrite(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := domain.OffsetTcStats{UserID: "user-1", PointsOffset: 100, MultipliedPointsOffset: 200, UnitsOffset: 1}
	require.NoError(t, s.CreateOrUpdateOffset(ctx, first))

	second := domain.OffsetTcStats{UserID: "user-1", PointsOffset: 50, MultipliedPointsOffset: 100, UnitsOffset: 2}
	require.NoError(t, s.CreateOrUpdateOffset(ctx, second))

	got, found, err := s.GetOffset(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(150), got.PointsOffset)
	assert.Equal(t, int64(300), got.MultipliedPointsOffset)
	assert.Equal(t, int64(3), got.UnitsOffset)

	replacement := domain.OffsetTcStats{UserID: "user-1", PointsOffset: 10, MultipliedPointsOffset: 20, UnitsOffset: 1}
	require.NoError(t, s.OverwriteOffset(ctx, replacement))

	got, found, err = s.GetOffset(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(10), got.PointsOffset)
	assert.Equal(t, int64(20), got.MultipliedPointsOffset)

	require.NoError(t, s.DeleteAllOffsets(ctx))
	_, found, err = s.GetOffset(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInitialAndTotalStatsRows(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, found, err := s.GetInitialStats(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, found)

	initial := domain.UserStats{UserID: "user-1", Timestamp: time.Now().UTC(), Points: 1000, Units: 5}
	require.NoError(t, s.PersistInitialStats(ctx, initial))

	got, found, err := s.GetInitialStats(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1000), got.Points)

	// A later persist replaces the row.
	initial.Points = 2000
	require.NoError(t, s.PersistInitialStats(ctx, initial))
	got, _, err = s.GetInitialStats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), got.Points)
}

func TestHourlySeriesQueries(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	for hour := 0; hour < 5; hour++ {
		row := domain.UserTcStats{
			UserID:           "user-1",
			Timestamp:        base.Add(time.Duration(hour) * time.Hour),
			Points:           int64(hour * 100),
			MultipliedPoints: int64(hour * 200),
			Units:            int64(hour),
		}
		require.NoError(t, s.PersistHourlyTcStats(ctx, row))
	}

	latest, found, err := s.GetLatestHourlyTcStats(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(400), latest.Points)

	_, found, err = s.GetLatestHourlyTcStats(ctx, "user-2")
	require.NoError(t, err)
	assert.False(t, found)

	present, err := s.AnyHourlyStatsPresent(ctx)
	require.NoError(t, err)
	assert.True(t, present)

	inRange, err := s.GetHourlyTcStatsInRange(ctx, "user-1", base.Add(time.Hour), base.Add(4*time.Hour))
	require.NoError(t, err)
	require.Len(t, inRange, 3)
	assert.Equal(t, int64(100), inRange[0].Points)
	assert.Equal(t, int64(300), inRange[2].Points)

	before, found, err := s.GetLastHourlyTcStatsBefore(ctx, "user-1", base.Add(3*time.Hour))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(200), before.Points)

	_, found, err = s.GetLastHourlyTcStatsBefore(ctx, "user-1", base)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMonthlyResultCreateOnce(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	result := domain.MonthlyResult{
		Year:      2026,
		Month:     time.February,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateMonthlyResult(ctx, result))

	err := s.CreateMonthlyResult(ctx, result)
	assert.True(t, apperrors.Is(err, apperrors.ErrAlreadyExists))

	got, found, err := s.GetMonthlyResult(ctx, 2026, time.February)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2026, got.Year)

	_, found, err = s.GetMonthlyResult(ctx, 2026, time.March)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRetiredStatsLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	retired := domain.RetiredUserTcStats{
		ID:          "ret-1",
		TeamID:      "team-a",
		DisplayName: "Departed",
		RetiredAt:   time.Now().UTC(),
		Stats:       domain.UserTcStats{UserID: "user-1", MultipliedPoints: 300},
	}
	require.NoError(t, s.CreateRetiredUserStats(ctx, retired))

	err := s.CreateRetiredUserStats(ctx, retired)
	assert.True(t, apperrors.Is(err, apperrors.ErrAlreadyExists))

	all, err := s.GetAllRetiredUserStats(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(300), all[0].Stats.MultipliedPoints)

	require.NoError(t, s.DeleteAllRetiredUserStats(ctx))
	all, err = s.GetAllRetiredUserStats(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
