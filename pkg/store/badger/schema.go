package badger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/OFFIS-RIT/dochub/backend/pkg/schema"

	"github.com/dgraph-io/badger/v4"
)

// SchemaStore appends schema versions under ordered keys. Racing appends
// surface as badger transaction conflicts and are reported as version
// conflicts.
type SchemaStore struct {
	db *badger.DB
}

func (s *SchemaStore) Latest(ctx context.Context, scope string) (*schema.Schema, error) {
	var out *schema.Schema
	err := s.db.View(func(txn *badger.Txn) error {
		latest, err := latestVersion(txn, scope)
		if err != nil {
			return err
		}
		out = latest
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, schema.ErrNotFound
	}
	return out, nil
}

func (s *SchemaStore) Append(ctx context.Context, scope string, expectedVersion int, sc *schema.Schema, reason string) (*schema.Schema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	saved := sc.Clone()
	saved.Scope = scope
	saved.Version = expectedVersion + 1

	err := s.db.Update(func(txn *badger.Txn) error {
		latest, err := latestVersion(txn, scope)
		if err != nil {
			return err
		}
		current := 0
		if latest != nil {
			current = latest.Version
		}
		if current != expectedVersion {
			return schema.ErrVersionConflict
		}
		// Reading the target key puts it in the read set, so two first
		// appends of a scope conflict on commit.
		key := schemaKey(scope, saved.Version)
		if _, err := txn.Get(key); err == nil {
			return schema.ErrVersionConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		val, err := json.Marshal(storedSchema{Schema: saved, Reason: reason})
		if err != nil {
			return err
		}
		return txn.Set(key, val)
	})
	if errors.Is(err, badger.ErrConflict) {
		return nil, schema.ErrVersionConflict
	}
	if err != nil {
		return nil, err
	}
	return saved, nil
}

type storedSchema struct {
	Schema *schema.Schema `json:"schema"`
	Reason string         `json:"reason,omitempty"`
}

func latestVersion(txn *badger.Txn, scope string) (*schema.Schema, error) {
	prefix := schemaScopePrefix(scope)
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	// Reverse iteration starts at the largest key not above the seek key.
	it.Seek(append(append([]byte{}, prefix...), 0xFF))
	if !it.ValidForPrefix(prefix) {
		return nil, nil
	}
	var stored storedSchema
	if err := it.Item().Value(func(val []byte) error {
		return json.Unmarshal(val, &stored)
	}); err != nil {
		return nil, err
	}
	return stored.Schema, nil
}
