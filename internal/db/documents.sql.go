package db

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"

	"github.com/jackc/pgx/v5"
)

const documentColumns = `id, name, file_path, coalesce(folder_id, ''), coalesce(user_id, ''), coalesce(mime_type, ''),
status, coalesce(error_stage, ''), coalesce(error_message, ''), coalesce(run_id, ''),
processing_started_at, updated_at`

func scanDocument(row pgx.Row) (common.Document, error) {
	var d common.Document
	var status string
	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.FilePath,
		&d.FolderID,
		&d.UserID,
		&d.MimeType,
		&status,
		&d.ErrorStage,
		&d.ErrorMessage,
		&d.RunID,
		&d.ProcessingStartedAt,
		&d.UpdatedAt,
	)
	d.Status = common.DocumentStatus(status)
	return d, err
}

const getDocument = `-- name: GetDocument :one
SELECT ` + documentColumns + `
FROM documents
WHERE id = $1
`

func (q *Queries) GetDocument(ctx context.Context, id string) (common.Document, error) {
	return scanDocument(q.db.QueryRow(ctx, getDocument, id))
}

const createDocument = `-- name: CreateDocument :one
INSERT INTO documents (id, name, file_path, folder_id, user_id, mime_type)
VALUES ($1, $2, $3, nullif($4, ''), nullif($5, ''), nullif($6, ''))
RETURNING ` + documentColumns

type CreateDocumentParams struct {
	ID       string
	Name     string
	FilePath string
	FolderID string
	UserID   string
	MimeType string
}

func (q *Queries) CreateDocument(ctx context.Context, arg CreateDocumentParams) (common.Document, error) {
	return scanDocument(q.db.QueryRow(ctx, createDocument,
		arg.ID,
		arg.Name,
		arg.FilePath,
		arg.FolderID,
		arg.UserID,
		arg.MimeType,
	))
}

const listDocumentsByStatus = `-- name: ListDocumentsByStatus :many
SELECT ` + documentColumns + `
FROM documents
WHERE status = $1
ORDER BY updated_at
LIMIT $2
`

func (q *Queries) ListDocumentsByStatus(ctx context.Context, status common.DocumentStatus, limit int32) ([]common.Document, error) {
	rows, err := q.db.Query(ctx, listDocumentsByStatus, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []common.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const claimProcessing = `-- name: ClaimProcessing :one
UPDATE documents
SET status = 'processing',
    run_id = $2,
    error_stage = NULL,
    error_message = NULL,
    processing_started_at = now(),
    updated_at = now()
WHERE id = $1 AND status <> 'processing'
RETURNING ` + documentColumns

// ClaimProcessing returns pgx.ErrNoRows when the document is missing or
// already processing.
func (q *Queries) ClaimProcessing(ctx context.Context, id string, runID string) (common.Document, error) {
	return scanDocument(q.db.QueryRow(ctx, claimProcessing, id, runID))
}

const finishRun = `-- name: FinishRun :execrows
UPDATE documents
SET status = $3,
    error_stage = nullif($4, ''),
    error_message = nullif($5, ''),
    updated_at = now()
WHERE id = $1 AND status = 'processing' AND run_id = $2
`

type FinishRunParams struct {
	ID           string
	RunID        string
	Status       common.DocumentStatus
	ErrorStage   string
	ErrorMessage string
}

func (q *Queries) FinishRun(ctx context.Context, arg FinishRunParams) (int64, error) {
	result, err := q.db.Exec(ctx, finishRun,
		arg.ID,
		arg.RunID,
		string(arg.Status),
		arg.ErrorStage,
		arg.ErrorMessage,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const markStuckDocuments = `-- name: MarkStuckDocuments :many
UPDATE documents
SET status = 'error',
    error_stage = NULL,
    error_message = $2,
    updated_at = now()
WHERE status = 'processing' AND processing_started_at < $1
RETURNING id
`

func (q *Queries) MarkStuckDocuments(ctx context.Context, olderThan time.Time, message string) ([]string, error) {
	rows, err := q.db.Query(ctx, markStuckDocuments, olderThan, message)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
