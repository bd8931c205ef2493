// Package di provides dependency injection configuration for the TeamFold
// server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/teamfold/teamfold-server/internal/config"
	"github.com/teamfold/teamfold-server/internal/di/providers"
	"github.com/teamfold/teamfold-server/internal/facade"
	"github.com/teamfold/teamfold-server/internal/history"
	"github.com/teamfold/teamfold-server/internal/logger"
	"github.com/teamfold/teamfold-server/internal/source"
	"github.com/teamfold/teamfold-server/internal/state"
	"github.com/teamfold/teamfold-server/internal/summary"
	"github.com/teamfold/teamfold-server/internal/tc"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Storage layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideStateMachine)
	do.Provide(injector, providers.ProvideFacade)

	// Stats layer
	do.Provide(injector, providers.ProvideStatsSource)
	do.Provide(injector, providers.ProvideEngine)
	do.Provide(injector, providers.ProvideHistory)
	do.Provide(injector, providers.ProvideSummary)

	// Workers
	do.Provide(injector, providers.ProvideScheduler)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle
// management. This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*state.Machine](injector)
	_ = do.MustInvoke[*facade.Facade](injector)

	_ = do.MustInvoke[source.StatsSource](injector)
	_ = do.MustInvoke[*tc.Engine](injector)
	_ = do.MustInvoke[*history.Engine](injector)
	_ = do.MustInvoke[*summary.Service](injector)

	_ = do.MustInvoke[*providers.SchedulerHandle](injector)

	return nil
}
