// Package scheduler drives the two periodic jobs of the competition: the
// hourly stats parse and the monthly reset. Both are disabled unless
// explicitly enabled by config, and both can be triggered manually through
// the same state-machine bracketing as the scheduled runs.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teamfold/teamfold-server/internal/config"
	"github.com/teamfold/teamfold-server/internal/domain"
	apperrors "github.com/teamfold/teamfold-server/internal/errors"
	"github.com/teamfold/teamfold-server/internal/facade"
	"github.com/teamfold/teamfold-server/internal/state"
	"github.com/teamfold/teamfold-server/internal/summary"
	"github.com/teamfold/teamfold-server/internal/tc"
)

// Scheduler owns the background parse and reset loops.
type Scheduler struct {
	engine  *tc.Engine
	facade  *facade.Facade
	state   *state.Machine
	summary *summary.Service
	logger  *slog.Logger
	cfg     config.SchedulerConfig

	// runMu serialises parse and reset runs, scheduled or manual. Both
	// jobs are idempotent, but interleaving them would tangle the state
	// machine brackets.
	runMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. Call Start to launch the enabled loops.
func New(engine *tc.Engine, f *facade.Facade, m *state.Machine, s *summary.Service, logger *slog.Logger, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		engine:  engine,
		facade:  f,
		state:   m,
		summary: s,
		logger:  logger,
		cfg:     cfg,
	}
}

// Start launches the loops that are enabled by config.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if s.cfg.ParsingEnabled {
		s.wg.Add(1)
		go s.parseLoop(ctx)
		s.logger.Info("hourly stats parsing enabled", "interval", s.cfg.ParseInterval)
	} else {
		s.logger.Warn("hourly stats parsing is disabled")
	}

	if s.cfg.ResetEnabled {
		s.wg.Add(1)
		go s.resetLoop(ctx)
		s.logger.Info("monthly stats reset enabled")
	} else {
		s.logger.Warn("monthly stats reset is disabled")
	}
}

// Stop cancels the loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) parseLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ParseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runParse(ctx)
		}
	}
}

func (s *Scheduler) resetLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		wait := time.Until(nextMonthStart(time.Now().UTC()))
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runReset(ctx)
		}
	}
}

// nextMonthStart returns the first instant of the month after t.
func nextMonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// TriggerParse runs a parse cycle outside the schedule. With wait set the
// call returns after the cycle completes; otherwise it runs in the
// background.
func (s *Scheduler) TriggerParse(wait bool) {
	if wait {
		s.runParse(context.Background())
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runParse(context.Background())
	}()
}

// TriggerReset runs the monthly reset outside the schedule, synchronously.
func (s *Scheduler) TriggerReset() error {
	return s.runReset(context.Background())
}

func (s *Scheduler) runParse(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	runID := uuid.NewString()
	started := time.Now()
	s.logger.Info("starting stats parse cycle", "run", runID)

	s.state.BeginUpdate()
	err := s.engine.ParseAll(ctx)
	s.state.FinishUpdate()

	if err != nil {
		s.logger.Error("stats parse cycle failed", "run", runID, "error", err)
		return
	}
	s.logger.Info("stats parse cycle complete", "run", runID, "took", time.Since(started))
}

// runReset performs the monthly reset: freeze the closing month's
// standings, make every user's current total the new baseline, clear
// offsets and retired snapshots, evict the volatile caches, then run one
// synchronous parse so the summary is immediately consistent.
func (s *Scheduler) runReset(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	runID := uuid.NewString()
	s.logger.Info("starting monthly stats reset", "run", runID)

	s.state.BeginReset()
	defer s.state.FinishReset()

	if err := s.captureMonthlyResult(ctx); err != nil {
		s.logger.Error("failed to capture monthly result, aborting reset", "run", runID, "error", err)
		return err
	}

	users, err := s.facade.GetAllUsers(ctx)
	if err != nil {
		return err
	}
	for _, view := range users {
		total, found, err := s.facade.GetTotalStats(ctx, view.User.ID)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if err := s.facade.PersistInitialStats(ctx, total); err != nil {
			return err
		}
	}

	if err := s.facade.DeleteAllOffsets(ctx); err != nil {
		return err
	}
	if err := s.facade.DeleteAllRetiredUserStats(ctx); err != nil {
		return err
	}

	s.facade.EvictVolatileCaches()
	s.summary.Invalidate()

	if err := s.engine.ParseAll(ctx); err != nil {
		s.logger.Error("post-reset parse failed", "run", runID, "error", err)
		return err
	}

	s.logger.Info("monthly stats reset complete", "run", runID)
	return nil
}

// captureMonthlyResult freezes the standings for the month that is ending.
// The reset fires just after the boundary, so the closing period is the
// month containing the previous day. A result already captured for that
// period is left untouched.
func (s *Scheduler) captureMonthlyResult(ctx context.Context) error {
	frozen, err := s.summary.BuildFresh(ctx)
	if err != nil {
		return err
	}

	period := time.Now().UTC().AddDate(0, 0, -1)
	result := domain.MonthlyResult{
		Year:      period.Year(),
		Month:     period.Month(),
		CreatedAt: time.Now().UTC(),
		Summary:   frozen,
	}

	err = s.facade.CreateMonthlyResult(ctx, result)
	if apperrors.Is(err, apperrors.ErrAlreadyExists) {
		s.logger.Warn("monthly result already captured",
			"year", result.Year, "month", int(result.Month))
		return nil
	}
	return err
}
