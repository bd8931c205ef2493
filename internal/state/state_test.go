package state

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestMachine() *Machine {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStartsAvailable(t *testing.T) {
	m := newTestMachine()
	assert.Equal(t, Available, m.Current())
}

func TestWriteMarksStale(t *testing.T) {
	m := newTestMachine()
	m.RecordWrite()
	assert.Equal(t, WriteExecuted, m.Current())
}

func TestParseBracket(t *testing.T) {
	m := newTestMachine()

	m.BeginUpdate()
	assert.Equal(t, UpdatingStats, m.Current())

	// Writes during the parse keep the bracketing state.
	m.RecordWrite()
	assert.Equal(t, UpdatingStats, m.Current())

	m.FinishUpdate()
	assert.Equal(t, WriteExecuted, m.Current())
}

func TestResetBracket(t *testing.T) {
	m := newTestMachine()

	m.BeginReset()
	assert.Equal(t, ResettingStats, m.Current())

	m.RecordWrite()
	assert.Equal(t, ResettingStats, m.Current())

	m.FinishReset()
	assert.Equal(t, WriteExecuted, m.Current())
}

func TestHealReturnsToAvailable(t *testing.T) {
	m := newTestMachine()

	m.RecordWrite()
	m.Heal()
	assert.Equal(t, Available, m.Current())

	// A write after healing marks stale again.
	m.RecordWrite()
	assert.Equal(t, WriteExecuted, m.Current())
}
