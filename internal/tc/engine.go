// Package tc implements the team-competition stats computation engine: it
// converts raw cumulative totals from the external network into reported
// competition deltas, and re-anchors a user's baseline whenever their
// attribution context changes mid-period.
package tc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teamfold/teamfold-server/internal/domain"
	"github.com/teamfold/teamfold-server/internal/facade"
	"github.com/teamfold/teamfold-server/internal/id"
	"github.com/teamfold/teamfold-server/internal/source"
)

// Engine computes and persists competition stats.
type Engine struct {
	facade *facade.Facade
	source source.StatsSource
	logger *slog.Logger

	// parsingEnabled mirrors the global stats-parsing switch. When false,
	// re-baselining is skipped entirely rather than attempted and failed.
	parsingEnabled bool
}

// New creates a computation engine.
func New(f *facade.Facade, src source.StatsSource, logger *slog.Logger, parsingEnabled bool) *Engine {
	return &Engine{
		facade:         f,
		source:         src,
		logger:         logger,
		parsingEnabled: parsingEnabled,
	}
}

// ParseUser runs one computation cycle for a single user: fetch the raw
// total from the external source, compute the delta against the stored
// baseline with the hardware multiplier baked in, apply the offset, and
// persist both the raw total and the resulting hourly record.
func (e *Engine) ParseUser(ctx context.Context, view domain.UserView) (domain.UserTcStats, error) {
	total, err := e.source.GetTotalStats(ctx, view.User)
	if err != nil {
		return domain.UserTcStats{}, err
	}

	if err := e.facade.PersistTotalStats(ctx, total); err != nil {
		return domain.UserTcStats{}, err
	}

	initial, err := e.facade.GetInitialStats(ctx, view.User.ID)
	if err != nil {
		return domain.UserTcStats{}, err
	}

	offset, err := e.facade.GetOffset(ctx, view.User.ID)
	if err != nil {
		return domain.UserTcStats{}, err
	}

	computed := domain.ComputeTcStats(view.User.ID, total.Timestamp, total, initial, offset, view.Multiplier())

	if err := e.facade.PersistHourlyTcStats(ctx, computed); err != nil {
		return domain.UserTcStats{}, err
	}

	e.logger.Debug("parsed user stats",
		"user", view.User.DisplayName,
		"points", computed.Points,
		"multipliedPoints", computed.MultipliedPoints,
		"units", computed.Units,
	)
	return computed, nil
}

// ParseTeam runs the computation cycle for every user on a team, in
// parallel. Users without a passkey are skipped; one user's failure is
// logged and does not stop the rest of the team.
func (e *Engine) ParseTeam(ctx context.Context, teamID string) error {
	users, err := e.facade.GetUsersOnTeam(ctx, teamID)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, view := range users {
		if !view.User.HasPasskey() {
			continue
		}

		wg.Add(1)
		go func(view domain.UserView) {
			defer wg.Done()
			if _, err := e.ParseUser(ctx, view); err != nil {
				e.logger.Error("failed to parse user stats, skipping for this cycle",
					"user", view.User.DisplayName, "error", err)
			}
		}(view)
	}
	wg.Wait()
	return nil
}

// ParseAll runs the computation cycle for every team. Each team is fully
// processed before the next starts, so team totals are read consistently.
func (e *Engine) ParseAll(ctx context.Context) error {
	teams, err := e.facade.GetAllTeams(ctx)
	if err != nil {
		return err
	}

	for _, team := range teams {
		if err := e.ParseTeam(ctx, team.ID); err != nil {
			return err
		}
	}
	return nil
}

// ReBaseline re-anchors a user's baseline after a state change. The raw
// total becomes the new zero point, and the user's current reported delta
// becomes the offset, so their visible competition points are unchanged.
// A connectivity failure abandons the re-baseline with the prior baseline
// intact.
func (e *Engine) ReBaseline(ctx context.Context, view domain.UserView) error {
	if !e.parsingEnabled {
		e.logger.Warn("stats parsing is disabled, skipping re-baseline",
			"user", view.User.DisplayName)
		return nil
	}

	total, err := e.source.GetTotalStats(ctx, view.User)
	if err != nil {
		e.logger.Error("failed to fetch totals, abandoning re-baseline",
			"user", view.User.DisplayName, "error", err)
		return err
	}

	current, found, err := e.facade.GetLatestHourlyTcStats(ctx, view.User.ID)
	if err != nil {
		return err
	}
	if !found {
		current = domain.UserTcStats{UserID: view.User.ID}
	}

	return e.anchorBaseline(ctx, view, total, current.AsOffset())
}

// anchorBaseline makes the raw total the user's new zero point and
// replaces their offset wholesale.
func (e *Engine) anchorBaseline(ctx context.Context, view domain.UserView, total domain.UserStats, offset domain.OffsetTcStats) error {
	if err := e.facade.PersistTotalStats(ctx, total); err != nil {
		return err
	}
	if err := e.facade.PersistInitialStats(ctx, total); err != nil {
		return err
	}
	if err := e.facade.OverwriteOffset(ctx, offset); err != nil {
		return err
	}

	e.logger.Info("re-baselined user",
		"user", view.User.DisplayName,
		"points", total.Points,
		"carriedMultipliedPoints", offset.MultipliedPointsOffset,
	)
	return nil
}

// UpdateUser persists a user change and re-anchors their stats when the
// change affects attribution. A captain moving to another team loses the
// captain flag; the new team chooses its own captain.
func (e *Engine) UpdateUser(ctx context.Context, user domain.User) (domain.UserView, error) {
	old, err := e.facade.GetUser(ctx, user.ID)
	if err != nil {
		return domain.UserView{}, err
	}

	if user.IsCaptain && old.User.TeamID != user.TeamID {
		user.IsCaptain = false
	}

	updated, err := e.facade.UpdateUser(ctx, user)
	if err != nil {
		return domain.UserView{}, err
	}

	if err := e.HandleUserChange(ctx, old.User, updated); err != nil {
		return domain.UserView{}, err
	}
	return updated, nil
}

// UpdateHardware persists a hardware change and re-baselines every
// referencing user when the multiplier changed.
func (e *Engine) UpdateHardware(ctx context.Context, hw domain.Hardware) error {
	old, err := e.facade.GetHardware(ctx, hw.ID)
	if err != nil {
		return err
	}

	if err := e.facade.UpdateHardware(ctx, hw); err != nil {
		return err
	}
	return e.HandleHardwareChange(ctx, old, hw)
}

// DeleteUser removes a user, preserving their nonzero stats for the team.
func (e *Engine) DeleteUser(ctx context.Context, userID string) error {
	view, err := e.facade.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	return e.OnUserDeleted(ctx, view)
}

// HandleUserChange inspects an update to a user and triggers the
// appropriate re-anchoring: a team move retires the old team's credit
// first, while hardware or external-identity changes re-baseline in place.
func (e *Engine) HandleUserChange(ctx context.Context, old domain.User, updated domain.UserView) error {
	if old.TeamID != updated.User.TeamID {
		return e.OnTeamChange(ctx, updated, old.TeamID)
	}

	if old.HardwareID != updated.User.HardwareID ||
		old.FoldingName != updated.User.FoldingName ||
		old.Passkey != updated.User.Passkey {
		return e.ReBaseline(ctx, updated)
	}
	return nil
}

// OnTeamChange handles a user moving between teams. If the user has
// nonzero current stats they are snapshotted against the old team, so the
// old team keeps the credit. The user then starts from zero on the new
// team: unlike a plain re-baseline, the offset is not carried, since the
// retired snapshot already holds those points and carrying them would
// count the work twice. A full recomputation pass runs afterwards so the
// rankings reflect the move immediately.
func (e *Engine) OnTeamChange(ctx context.Context, view domain.UserView, oldTeamID string) error {
	if err := e.retireCurrentStats(ctx, view.User, oldTeamID); err != nil {
		return err
	}

	if !e.parsingEnabled {
		e.logger.Warn("stats parsing is disabled, skipping re-baseline after team change",
			"user", view.User.DisplayName)
		return nil
	}

	total, err := e.source.GetTotalStats(ctx, view.User)
	if err != nil {
		e.logger.Error("failed to fetch totals, abandoning re-baseline",
			"user", view.User.DisplayName, "error", err)
		return err
	}
	if err := e.anchorBaseline(ctx, view, total, domain.OffsetTcStats{UserID: view.User.ID}); err != nil {
		return err
	}

	return e.ParseAll(ctx)
}

// OnUserDeleted snapshots a departing user's nonzero stats against their
// team, then removes the user.
func (e *Engine) OnUserDeleted(ctx context.Context, view domain.UserView) error {
	if err := e.retireCurrentStats(ctx, view.User, view.User.TeamID); err != nil {
		return err
	}
	return e.facade.DeleteUser(ctx, view.User.ID)
}

// HandleHardwareChange re-baselines every user referencing the hardware
// when its multiplier changed. One user's failure is logged and does not
// stop the rest.
func (e *Engine) HandleHardwareChange(ctx context.Context, old, updated domain.Hardware) error {
	if old.Multiplier == updated.Multiplier {
		return nil
	}

	users, err := e.facade.GetUsersOnHardware(ctx, updated.ID)
	if err != nil {
		return err
	}

	for _, view := range users {
		if err := e.ReBaseline(ctx, view); err != nil {
			e.logger.Error("failed to re-baseline user after multiplier change",
				"user", view.User.DisplayName, "error", err)
		}
	}
	return nil
}

// retireCurrentStats freezes the user's latest reported stats against a
// team, when there is anything worth keeping.
func (e *Engine) retireCurrentStats(ctx context.Context, user domain.User, teamID string) error {
	current, found, err := e.facade.GetLatestHourlyTcStats(ctx, user.ID)
	if err != nil {
		return err
	}
	if !found || current.IsZero() {
		return nil
	}

	retired := domain.RetiredUserTcStats{
		ID:          id.MustGenerate("ret"),
		TeamID:      teamID,
		DisplayName: user.DisplayName,
		RetiredAt:   time.Now().UTC(),
		Stats:       current,
	}
	return e.facade.CreateRetiredUserStats(ctx, retired)
}
