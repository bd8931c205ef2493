package summary

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
	"github.com/teamfold/teamfold-server/internal/state"
	"github.com/teamfold/teamfold-server/internal/store"
)

func setupTestSummary(t *testing.T) (*Service, *facade.Facade, *state.Machine) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := store.New(dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	machine := state.New(logger)
	f := facade.New(s, logger, machine)
	return New(f, machine, logger), f, machine
}

func seedCompetition(t *testing.T, f *facade.Facade) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, f.CreateHardware(ctx, domain.Hardware{ID: "hw-1", Name: "GPU", Multiplier: 2.0}))
	require.NoError(t, f.CreateTeam(ctx, domain.Team{ID: "team-a", Name: "Alpha"}))
	require.NoError(t, f.CreateTeam(ctx, domain.Team{ID: "team-b", Name: "Beta"}))

	users := []struct {
		id, team string
		points   int64
	}{
		{"user-1", "team-a", 1000},
		{"user-2", "team-a", 500},
		{"user-3", "team-b", 2000},
	}
	for _, u := range users {
		_, err := f.CreateUser(ctx, domain.User{
			ID: u.id, DisplayName: u.id, FoldingName: "fold_" + u.id,
			Passkey: "pk", HardwareID: "hw-1", TeamID: u.team,
		})
		require.NoError(t, err)
		require.NoError(t, f.PersistHourlyTcStats(ctx, domain.UserTcStats{
			UserID: u.id, Timestamp: now, Points: u.points, MultipliedPoints: u.points * 2,
		}))
	}
}

func TestSummaryRanksTeamsAndUsers(t *testing.T) {
	svc, f, _ := setupTestSummary(t)
	seedCompetition(t, f)

	got, err := svc.GetCompetitionSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Teams, 2)

	assert.Equal(t, "Beta", got.Teams[0].Team.Name)
	assert.Equal(t, 1, got.Teams[0].Rank)
	assert.Equal(t, int64(4000), got.Teams[0].TotalMultipliedPoints)

	alpha := got.Teams[1]
	assert.Equal(t, 2, alpha.Rank)
	require.Len(t, alpha.ActiveUsers, 2)
	assert.Equal(t, "user-1", alpha.ActiveUsers[0].User.ID)
	assert.Equal(t, 1, alpha.ActiveUsers[0].RankInTeam)
	assert.Equal(t, 2, alpha.ActiveUsers[1].RankInTeam)

	assert.Equal(t, int64(7000), got.TotalMultipliedPoints())
}

func TestSummaryIncludesRetiredUsersInTotals(t *testing.T) {
	svc, f, _ := setupTestSummary(t)
	seedCompetition(t, f)
	ctx := context.Background()

	require.NoError(t, f.CreateRetiredUserStats(ctx, domain.RetiredUserTcStats{
		ID: "ret-1", TeamID: "team-a", DisplayName: "Departed",
		RetiredAt: time.Now().UTC(),
		Stats:     domain.UserTcStats{UserID: "gone", MultipliedPoints: 5000},
	}))

	got, err := svc.GetCompetitionSummary(ctx)
	require.NoError(t, err)

	// Alpha overtakes Beta on the strength of its retired snapshot.
	assert.Equal(t, "Alpha", got.Teams[0].Team.Name)
	assert.Equal(t, int64(8000), got.Teams[0].TotalMultipliedPoints)
	require.Len(t, got.Teams[0].RetiredUsers, 1)
}

func TestSummaryHealsStateAndServesCache(t *testing.T) {
	svc, f, machine := setupTestSummary(t)
	seedCompetition(t, f)
	ctx := context.Background()

	// Seeding left the state stale.
	assert.Equal(t, state.WriteExecuted, machine.Current())

	first, err := svc.GetCompetitionSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.Available, machine.Current())

	// No writes since: the cached summary is reused verbatim.
	second, err := svc.GetCompetitionSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.GeneratedAt, second.GeneratedAt)

	// A write forces a rebuild on the next read.
	require.NoError(t, f.CreateTeam(ctx, domain.Team{ID: "team-c", Name: "Gamma"}))
	assert.Equal(t, state.WriteExecuted, machine.Current())

	third, err := svc.GetCompetitionSummary(ctx)
	require.NoError(t, err)
	assert.Len(t, third.Teams, 3)
	assert.Equal(t, state.Available, machine.Current())
}

func TestTiedTeamsShareRank(t *testing.T) {
	svc, f, _ := setupTestSummary(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, f.CreateHardware(ctx, domain.Hardware{ID: "hw-1", Name: "GPU", Multiplier: 1.0}))
	for _, team := range []string{"team-a", "team-b", "team-c"} {
		require.NoError(t, f.CreateTeam(ctx, domain.Team{ID: team, Name: team}))
	}
	for _, u := range []struct {
		id, team string
		points   int64
	}{
		{"user-1", "team-a", 100},
		{"user-2", "team-b", 100},
		{"user-3", "team-c", 50},
	} {
		_, err := f.CreateUser(ctx, domain.User{
			ID: u.id, DisplayName: u.id, FoldingName: "fold_" + u.id,
			Passkey: "pk", HardwareID: "hw-1", TeamID: u.team,
		})
		require.NoError(t, err)
		require.NoError(t, f.PersistHourlyTcStats(ctx, domain.UserTcStats{
			UserID: u.id, Timestamp: now, MultipliedPoints: u.points,
		}))
	}

	got, err := svc.GetCompetitionSummary(ctx)
	require.NoError(t, err)
	require.Len(t, got.Teams, 3)

	assert.Equal(t, 1, got.Teams[0].Rank)
	assert.Equal(t, 1, got.Teams[1].Rank)
	assert.Equal(t, 3, got.Teams[2].Rank)
}
