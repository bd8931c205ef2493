package providers

import (
	"github.com/samber/do/v2"

	"github.com/teamfold/teamfold-server/internal/config"
	"github.com/teamfold/teamfold-server/internal/facade"
	"github.com/teamfold/teamfold-server/internal/history"
	"github.com/teamfold/teamfold-server/internal/logger"
	"github.com/teamfold/teamfold-server/internal/scheduler"
	"github.com/teamfold/teamfold-server/internal/source"
	"github.com/teamfold/teamfold-server/internal/state"
	"github.com/teamfold/teamfold-server/internal/summary"
	"github.com/teamfold/teamfold-server/internal/tc"
)

// ProvideStatsSource provides the external stats source HTTP client.
func ProvideStatsSource(i do.Injector) (source.StatsSource, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return source.NewClient(cfg.Source.BaseURL, log.Logger, source.Options{
		Timeout:           cfg.Source.Timeout,
		RequestsPerSecond: cfg.Source.RequestsPerSecond,
		Burst:             cfg.Source.Burst,
	}), nil
}

// ProvideEngine provides the stats computation engine.
func ProvideEngine(i do.Injector) (*tc.Engine, error) {
	f := do.MustInvoke[*facade.Facade](i)
	src := do.MustInvoke[source.StatsSource](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return tc.New(f, src, log.Logger, cfg.Scheduler.ParsingEnabled), nil
}

// ProvideHistory provides the historic diff engine.
func ProvideHistory(i do.Injector) (*history.Engine, error) {
	f := do.MustInvoke[*facade.Facade](i)
	log := do.MustInvoke[*logger.Logger](i)
	return history.New(f, log.Logger), nil
}

// ProvideSummary provides the competition summary service.
func ProvideSummary(i do.Injector) (*summary.Service, error) {
	f := do.MustInvoke[*facade.Facade](i)
	machine := do.MustInvoke[*state.Machine](i)
	log := do.MustInvoke[*logger.Logger](i)
	return summary.New(f, machine, log.Logger), nil
}

// SchedulerHandle wraps the scheduler with shutdown capability.
type SchedulerHandle struct {
	*scheduler.Scheduler
}

// Shutdown implements do.Shutdownable.
func (h *SchedulerHandle) Shutdown() error {
	h.Scheduler.Stop()
	return nil
}

// ProvideScheduler provides the started background scheduler.
func ProvideScheduler(i do.Injector) (*SchedulerHandle, error) {
	engine := do.MustInvoke[*tc.Engine](i)
	f := do.MustInvoke[*facade.Facade](i)
	machine := do.MustInvoke[*state.Machine](i)
	summaries := do.MustInvoke[*summary.Service](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	s := scheduler.New(engine, f, machine, summaries, log.Logger, cfg.Scheduler)
	s.Start()

	return &SchedulerHandle{Scheduler: s}, nil
}
