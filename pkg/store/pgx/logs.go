package pgx

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
)

// LogSink appends pipeline log entries to pipeline_logs.
type LogSink struct {
	conn pgxIConn
}

func NewLogSink(conn pgxIConn) *LogSink {
	return &LogSink{conn: conn}
}

func (s *LogSink) Append(ctx context.Context, entry common.PipelineLogEntry) error {
	_, err := s.conn.Exec(ctx, insertLogSQL,
		entry.DocumentID,
		nullable(entry.RunID),
		entry.Stage,
		string(entry.Status),
		entry.Timestamp,
		entry.Seq,
		entry.Details,
	)
	return err
}

func (s *LogSink) List(ctx context.Context, documentID string) ([]common.PipelineLogEntry, error) {
	rows, err := s.conn.Query(ctx, listLogsSQL, documentID)
	if err != nil {
		return nil, err
	}
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.PipelineLogEntry, error) {
		var e common.PipelineLogEntry
		var runID *string
		var status string
		err := row.Scan(&e.DocumentID, &runID, &e.Stage, &status, &e.Timestamp, &e.Seq, &e.Details)
		if runID != nil {
			e.RunID = *runID
		}
		e.Status = common.LogStatus(status)
		return e, err
	})
}

// ArtifactStore keeps one payload per (document, stage, name); a later run
// overwrites the artifact of an earlier one.
type ArtifactStore struct {
	conn pgxIConn
}

func NewArtifactStore(conn pgxIConn) *ArtifactStore {
	return &ArtifactStore{conn: conn}
}

func (s *ArtifactStore) Put(ctx context.Context, a common.Artifact) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.conn.Exec(ctx, upsertArtifactSQL, a.DocumentID, a.Stage, a.Name, a.ContentType, a.Payload, createdAt)
	return err
}

func (s *ArtifactStore) List(ctx context.Context, documentID string, stage string) ([]common.Artifact, error) {
	rows, err := s.conn.Query(ctx, listArtifactsSQL, documentID, stage)
	if err != nil {
		return nil, err
	}
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Artifact, error) {
		var a common.Artifact
		err := row.Scan(&a.DocumentID, &a.Stage, &a.Name, &a.ContentType, &a.Payload, &a.CreatedAt)
		return a, err
	})
}

const insertLogSQL = `
INSERT INTO pipeline_logs (document_id, run_id, stage, status, logged_at, seq, details)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`

const listLogsSQL = `
SELECT document_id, run_id, stage, status, logged_at, seq, details
FROM pipeline_logs
WHERE document_id = $1
ORDER BY logged_at, seq;
`

const upsertArtifactSQL = `
INSERT INTO pipeline_artifacts (document_id, stage, name, content_type, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (document_id, stage, name) DO UPDATE
SET content_type = EXCLUDED.content_type,
    payload = EXCLUDED.payload,
    created_at = EXCLUDED.created_at;
`

const listArtifactsSQL = `
SELECT document_id, stage, name, content_type, payload, created_at
FROM pipeline_artifacts
WHERE document_id = $1 AND ($2 = '' OR stage = $2)
ORDER BY created_at, stage, name;
`
