package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/dochub/backend/pkg/schema"

	pgxv5 "github.com/jackc/pgx/v5"
)

// SchemaStore keeps every schema version as a row of schema_versions. The
// (scope, version) primary key turns racing appends into version conflicts.
type SchemaStore struct {
	conn pgxIConn
}

func NewSchemaStore(conn pgxIConn) *SchemaStore {
	return &SchemaStore{conn: conn}
}

func (s *SchemaStore) Latest(ctx context.Context, scope string) (*schema.Schema, error) {
	var version int
	var body []byte
	err := s.conn.QueryRow(ctx, latestSchemaSQL, scope).Scan(&version, &body)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, schema.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var out schema.Schema
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode schema %q v%d: %w", scope, version, err)
	}
	out.Scope = scope
	out.Version = version
	return &out, nil
}

func (s *SchemaStore) Append(ctx context.Context, scope string, expectedVersion int, sc *schema.Schema, reason string) (*schema.Schema, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var current int
	if err := tx.QueryRow(ctx, currentSchemaVersionSQL, scope).Scan(&current); err != nil {
		return nil, err
	}
	if current != expectedVersion {
		return nil, schema.ErrVersionConflict
	}

	saved := sc.Clone()
	saved.Scope = scope
	saved.Version = expectedVersion + 1
	body, err := json.Marshal(saved)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, insertSchemaSQL, scope, saved.Version, body, reason); err != nil {
		if isUniqueViolation(err) {
			return nil, schema.ErrVersionConflict
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, schema.ErrVersionConflict
		}
		return nil, err
	}
	return saved, nil
}

const latestSchemaSQL = `
SELECT version, body FROM schema_versions
WHERE scope = $1
ORDER BY version DESC
LIMIT 1;
`

const currentSchemaVersionSQL = `
SELECT coalesce(max(version), 0) FROM schema_versions WHERE scope = $1;
`

const insertSchemaSQL = `
INSERT INTO schema_versions (scope, version, body, reason)
VALUES ($1, $2, $3, $4);
`
