package pgx

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/dochub/backend/pkg/pipelinelog"
	"github.com/OFFIS-RIT/dochub/backend/pkg/schema"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// Store is the postgres storage backend. The connection, usually a
// *pgxpool.Pool, is owned by the caller.
type Store struct {
	conn pgxIConn
}

func New(conn pgxIConn) *Store {
	return &Store{conn: conn}
}

func (s *Store) Logs() pipelinelog.Sink {
	return &LogSink{conn: s.conn}
}

func (s *Store) Artifacts() pipelinelog.ArtifactStore {
	return &ArtifactStore{conn: s.conn}
}

func (s *Store) Schemas() schema.Store {
	return &SchemaStore{conn: s.conn}
}

func (s *Store) Close() error {
	return nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
