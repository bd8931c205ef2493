// Package store implements the durable persistence layer on top of Badger.
// Entities (hardware, teams, users) and stats records are stored as
// JSON-encoded values under typed key prefixes; time-series records use
// lexicographically sortable timestamp keys so range queries are prefix scans.
package store

import (
	"encoding/json/v2"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/teamfold/teamfold-server/internal/domain"
)

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	// Generic entities
	Hardware *Entity[domain.Hardware]
	Teams    *Entity[domain.Team]
	Users    *Entity[domain.User]
}

// New creates a new Store instance with the given database path.
func New(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logger,
	}

	store.Hardware = NewEntity(store, "hardware:", func(h *domain.Hardware) string { return h.ID })
	store.Teams = NewEntity(store, "team:", func(t *domain.Team) string { return t.ID })
	store.Users = NewEntity(store, "user:", func(u *domain.User) string { return u.ID }).
		WithIndex("team", func(u *domain.User) string { return u.TeamID }).
		WithIndex("hardware", func(u *domain.User) string { return u.HardwareID })

	if logger != nil {
		logger.Info("badger database opened", "path", path)
	}

	return store, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("closing database")
	}
	return s.db.Close()
}

// Helper methods for database operations.

// getJSON retrieves a value by key. Returns badger.ErrKeyNotFound when absent.
func (s *Store) getJSON(key string, dest any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dest)
		})
	})
}

// setJSON stores a value by key.
func (s *Store) setJSON(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}
