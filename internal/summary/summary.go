// Package summary builds the ranked competition standings. The built
// summary is cached and served as long as the system state says no write
// has happened; any other state forces a rebuild, which is also the single
// place the state machine heals back to available.
package summary

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/teamfold/teamfold-server/internal/domain"
	"github.com/teamfold/teamfold-server/internal/facade"
	"github.com/teamfold/teamfold-server/internal/state"
)

// Service serves the competition summary.
type Service struct {
	facade *facade.Facade
	state  *state.Machine
	logger *slog.Logger

	mu        sync.Mutex
	cached    domain.CompetitionSummary
	hasCached bool
}

// New creates a summary service.
func New(f *facade.Facade, m *state.Machine, logger *slog.Logger) *Service {
	return &Service{facade: f, state: m, logger: logger}
}

// GetCompetitionSummary returns the current ranked standings. The cached
// summary is reused only while the system is in the available state;
// otherwise a fresh summary is built and the state heals to available.
func (s *Service) GetCompetitionSummary(ctx context.Context) (domain.CompetitionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasCached && s.state.Current() == state.Available {
		return s.cached, nil
	}

	summary, err := s.build(ctx)
	if err != nil {
		return domain.CompetitionSummary{}, err
	}

	s.cached = summary
	s.hasCached = true
	s.state.Heal()
	return summary, nil
}

// BuildFresh computes a summary straight from storage without touching the
// cached summary or the system state. The monthly reset uses it to freeze
// the closing month's standings while the reset bracket is still open.
func (s *Service) BuildFresh(ctx context.Context) (domain.CompetitionSummary, error) {
	return s.build(ctx)
}

// Invalidate drops the cached summary. Used by the monthly reset, where
// even a heal-to-available must not resurrect last month's standings.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasCached = false
}

func (s *Service) build(ctx context.Context) (domain.CompetitionSummary, error) {
	teams, err := s.facade.GetAllTeams(ctx)
	if err != nil {
		return domain.CompetitionSummary{}, err
	}

	retired, err := s.facade.GetAllRetiredUserStats(ctx)
	if err != nil {
		return domain.CompetitionSummary{}, err
	}
	retiredByTeam := make(map[string][]domain.RetiredUserSummary)
	for _, r := range retired {
		retiredByTeam[r.TeamID] = append(retiredByTeam[r.TeamID], domain.RetiredUserSummary{
			DisplayName: r.DisplayName,
			Stats:       r.Stats,
		})
	}

	summaries := make([]domain.TeamSummary, 0, len(teams))
	for _, team := range teams {
		teamSummary, err := s.buildTeam(ctx, team, retiredByTeam[team.ID])
		if err != nil {
			return domain.CompetitionSummary{}, err
		}
		summaries = append(summaries, teamSummary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].TotalMultipliedPoints > summaries[j].TotalMultipliedPoints
	})
	// Competition ranking: ties share a rank, the next distinct value
	// skips past them.
	for i := range summaries {
		switch {
		case i == 0:
			summaries[i].Rank = 1
		case summaries[i].TotalMultipliedPoints == summaries[i-1].TotalMultipliedPoints:
			summaries[i].Rank = summaries[i-1].Rank
		default:
			summaries[i].Rank = i + 1
		}
	}

	return domain.CompetitionSummary{
		GeneratedAt: time.Now().UTC(),
		Teams:       summaries,
	}, nil
}

func (s *Service) buildTeam(ctx context.Context, team domain.Team, retired []domain.RetiredUserSummary) (domain.TeamSummary, error) {
	users, err := s.facade.GetUsersOnTeam(ctx, team.ID)
	if err != nil {
		return domain.TeamSummary{}, err
	}

	active := make([]domain.UserSummary, 0, len(users))
	for _, view := range users {
		stats, found, err := s.facade.GetLatestHourlyTcStats(ctx, view.User.ID)
		if err != nil {
			return domain.TeamSummary{}, err
		}
		if !found {
			stats = domain.UserTcStats{UserID: view.User.ID}
		}
		active = append(active, domain.UserSummary{
			User:     view.User,
			Hardware: view.Hardware,
			Stats:    stats,
		})
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Stats.MultipliedPoints > active[j].Stats.MultipliedPoints
	})
	for i := range active {
		switch {
		case i == 0:
			active[i].RankInTeam = 1
		case active[i].Stats.MultipliedPoints == active[i-1].Stats.MultipliedPoints:
			active[i].RankInTeam = active[i-1].RankInTeam
		default:
			active[i].RankInTeam = i + 1
		}
	}

	summary := domain.TeamSummary{
		Team:         team,
		ActiveUsers:  active,
		RetiredUsers: retired,
	}
	for _, u := range active {
		summary.TotalPoints += u.Stats.Points
		summary.TotalMultipliedPoints += u.Stats.MultipliedPoints
		summary.TotalUnits += u.Stats.Units
	}
	for _, r := range retired {
		summary.TotalPoints += r.Stats.Points
		summary.TotalMultipliedPoints += r.Stats.MultipliedPoints
		summary.TotalUnits += r.Stats.Units
	}
	return summary, nil
}
