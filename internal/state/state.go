// Package state tracks the coarse system state used to decide whether the
// cached competition summary is still trustworthy.
package state

import (
	"log/slog"
	"sync"
)

// SystemState is the coarse lifecycle state of the stats system.
type SystemState string

const (
	// Available means no write has happened since the summary was last
	// built; the cached summary is valid.
	Available SystemState = "AVAILABLE"

	// UpdatingStats means a stats parse cycle is in progress.
	UpdatingStats SystemState = "UPDATING_STATS"

	// ResettingStats means the monthly reset is in progress.
	ResettingStats SystemState = "RESETTING_STATS"

	// WriteExecuted means at least one write has happened since the summary
	// was last built; the cached summary is stale.
	WriteExecuted SystemState = "WRITE_EXECUTED"
)

// Machine serialises state transitions. It implements facade.WriteRecorder
// so every successful write through the facade marks the summary stale.
type Machine struct {
	mu      sync.Mutex
	current SystemState
	logger  *slog.Logger
}

// New creates a machine in the Available state.
func New(logger *slog.Logger) *Machine {
	return &Machine{
		current: Available,
		logger:  logger,
	}
}

// Current returns the current state.
func (m *Machine) Current() SystemState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// RecordWrite marks the summary stale. While a parse or reset is running
// the bracketing state already implies staleness, so it is left in place.
func (m *Machine) RecordWrite() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == UpdatingStats || m.current == ResettingStats {
		return
	}
	m.transition(WriteExecuted)
}

// BeginUpdate marks the start of a stats parse cycle.
func (m *Machine) BeginUpdate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(UpdatingStats)
}

// FinishUpdate marks the end of a stats parse cycle. The cycle wrote new
// hourly records, so the summary is stale until rebuilt.
func (m *Machine) FinishUpdate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(WriteExecuted)
}

// BeginReset marks the start of the monthly reset.
func (m *Machine) BeginReset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(ResettingStats)
}

// FinishReset marks the end of the monthly reset.
func (m *Machine) FinishReset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(WriteExecuted)
}

// Heal returns the system to Available. Only the summary builder calls
// this, after rebuilding the summary from storage.
func (m *Machine) Heal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(Available)
}

// transition is called with the mutex held.
func (m *Machine) transition(next SystemState) {
	if m.current == next {
		return
	}
	m.logger.Debug("system state transition", "from", string(m.current), "to", string(next))
	m.current = next
}
