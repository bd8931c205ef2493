package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	apperrors "github.com/teamfold/teamfold-server/internal/errors"
)

// Entity provides generic CRUD operations for any domain type.
type Entity[T any] struct {
	store   *Store
	prefix  string
	idOf    func(*T) string
	indexes []index[T]
}

// index defines a non-unique secondary index on an entity. Index keys are
// laid out as "{prefix}idx:{name}:{value}:{id}" so all entities sharing a
// value sit under one scannable prefix.
type index[T any] struct {
	name   string
	keyGen func(*T) string
}

// NewEntity creates a new Entity instance for type T.
func NewEntity[T any](s *Store, prefix string, idOf func(*T) string) *Entity[T] {
	return &Entity[T]{
		store:  s,
		prefix: prefix,
		idOf:   idOf,
	}
}

// WithIndex adds a secondary index to the entity.
func (e *Entity[T]) WithIndex(name string, keyGen func(*T) string) *Entity[T] {
	e.indexes = append(e.indexes, index[T]{name: name, keyGen: keyGen})
	return e
}

// Create creates a new entity.
// Returns ErrAlreadyExists if an entity with this ID already exists.
func (e *Entity[T]) Create(ctx context.Context, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id := e.idOf(entity)
	key := e.prefix + id

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	return e.store.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return apperrors.AlreadyExistsf("%s%s already exists", e.prefix, id)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check existing key: %w", err)
		}

		if err := txn.Set([]byte(key), data); err != nil {
			return fmt.Errorf("failed to set key: %w", err)
		}

		for _, idx := range e.indexes {
			if err := txn.Set([]byte(e.indexKey(idx, entity, id)), []byte(id)); err != nil {
				return fmt.Errorf("failed to set index key: %w", err)
			}
		}

		return nil
	})
}

// Get retrieves an entity by ID.
// Returns ErrNotFound if the entity does not exist.
func (e *Entity[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := e.prefix + id
	var entity T

	err := e.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return apperrors.NotFoundf("%s%s not found", e.prefix, id)
		}
		if err != nil {
			return fmt.Errorf("failed to get key: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entity)
		})
	})

	if err != nil {
		return nil, err
	}

	return &entity, nil
}

// Update updates an existing entity in place, reindexing as needed.
// Returns ErrNotFound if the entity does not exist.
func (e *Entity[T]) Update(ctx context.Context, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id := e.idOf(entity)
	key := e.prefix + id

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	return e.store.db.Update(func(txn *badger.Txn) error {
		var oldEntity T
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return apperrors.NotFoundf("%s%s not found", e.prefix, id)
		}
		if err != nil {
			return fmt.Errorf("failed to get existing key: %w", err)
		}

		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &oldEntity)
		}); err != nil {
			return fmt.Errorf("failed to unmarshal old entity: %w", err)
		}

		// Reindex: drop stale index keys, write current ones.
		for _, idx := range e.indexes {
			oldKey := e.indexKey(idx, &oldEntity, id)
			newKey := e.indexKey(idx, entity, id)
			if oldKey != newKey {
				if err := txn.Delete([]byte(oldKey)); err != nil {
					return fmt.Errorf("failed to delete old index key: %w", err)
				}
			}
			if err := txn.Set([]byte(newKey), []byte(id)); err != nil {
				return fmt.Errorf("failed to set index key: %w", err)
			}
		}

		if err := txn.Set([]byte(key), data); err != nil {
			return fmt.Errorf("failed to set key: %w", err)
		}

		return nil
	})
}

// Delete deletes an entity by ID.
// This operation is idempotent - it does not return an error if the entity does not exist.
func (e *Entity[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := e.prefix + id

	return e.store.db.Update(func(txn *badger.Txn) error {
		var entity T
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			// Idempotent - no error if doesn't exist
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get key: %w", err)
		}

		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entity)
		}); err != nil {
			return fmt.Errorf("failed to unmarshal entity: %w", err)
		}

		for _, idx := range e.indexes {
			if err := txn.Delete([]byte(e.indexKey(idx, &entity, id))); err != nil {
				return fmt.Errorf("failed to delete index key: %w", err)
			}
		}

		if err := txn.Delete([]byte(key)); err != nil {
			return fmt.Errorf("failed to delete key: %w", err)
		}

		return nil
	})
}

// GetAll returns all entities under this prefix.
func (e *Entity[T]) GetAll(ctx context.Context) ([]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entities []*T

	err := e.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(e.prefix)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(e.prefix)); it.ValidForPrefix([]byte(e.prefix)); it.Next() {
			// Skip index keys
			remainder := string(it.Item().Key())[len(e.prefix):]
			if strings.HasPrefix(remainder, "idx:") {
				continue
			}

			var entity T
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entity)
			})
			if err != nil {
				return err
			}
			entities = append(entities, &entity)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return entities, nil
}

// GetAllByIndex returns all entities whose indexed field equals value.
func (e *Entity[T]) GetAllByIndex(ctx context.Context, indexName, value string) ([]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scanPrefix := e.prefix + "idx:" + indexName + ":" + value + ":"
	var entities []*T

	err := e.store.db.View(func(txn *badger.Txn) error {
		// First pass: collect IDs from the index.
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(scanPrefix)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		var ids []string
		for it.Seek([]byte(scanPrefix)); it.ValidForPrefix([]byte(scanPrefix)); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}

		// Second pass: batch fetch in the same transaction (no N+1).
		entities = make([]*T, 0, len(ids))
		for _, id := range ids {
			item, err := txn.Get([]byte(e.prefix + id))
			if err != nil {
				continue // Skip dangling index entries
			}

			var entity T
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entity)
			}); err != nil {
				continue
			}
			entities = append(entities, &entity)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return entities, nil
}

func (e *Entity[T]) indexKey(idx index[T], entity *T, id string) string {
	return e.prefix + "idx:" + idx.name + ":" + idx.keyGen(entity) + ":" + id
}
