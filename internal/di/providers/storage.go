package providers

import (
	"github.com/samber/do/v2"

	"github.com/teamfold/teamfold-server/internal/config"
	"github.com/teamfold/teamfold-server/internal/facade"
	"github.com/teamfold/teamfold-server/internal/logger"
	"github.com/teamfold/teamfold-server/internal/state"
	"github.com/teamfold/teamfold-server/internal/store"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Store.Close()
}

// ProvideStore provides the Badger-backed persistence layer.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	s, err := store.New(cfg.Data.BasePath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Database opened", "path", cfg.Data.BasePath)
	return &StoreHandle{Store: s}, nil
}

// ProvideStateMachine provides the system state machine.
func ProvideStateMachine(i do.Injector) (*state.Machine, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return state.New(log.Logger), nil
}

// ProvideFacade provides the storage facade, with the state machine wired
// in as the write recorder.
func ProvideFacade(i do.Injector) (*facade.Facade, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	machine := do.MustInvoke[*state.Machine](i)
	log := do.MustInvoke[*logger.Logger](i)

	return facade.New(storeHandle.Store, log.Logger, machine), nil
}
