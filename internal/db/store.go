package db

import (
	"context"
	"errors"
	"time"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/executor"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipeline"

	"github.com/jackc/pgx/v5"
)

// DocumentStore adapts the document queries to the executor's contract.
type DocumentStore struct {
	q *Queries
}

func NewDocumentStore(conn DBTX) *DocumentStore {
	return &DocumentStore{q: New(conn)}
}

func (s *DocumentStore) Queries() *Queries {
	return s.q
}

func (s *DocumentStore) GetDocument(ctx context.Context, id string) (common.Document, error) {
	doc, err := s.q.GetDocument(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return common.Document{}, executor.ErrNotFound
	}
	return doc, err
}

func (s *DocumentStore) ClaimProcessing(ctx context.Context, id string, runID string) (common.Document, error) {
	doc, err := s.q.ClaimProcessing(ctx, id, runID)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := s.GetDocument(ctx, id)
		if getErr != nil {
			return common.Document{}, getErr
		}
		return current, executor.ErrAlreadyProcessing
	}
	return doc, err
}

func (s *DocumentStore) FinishRun(ctx context.Context, id string, runID string, status common.DocumentStatus, stage string, message string) error {
	n, err := s.q.FinishRun(ctx, FinishRunParams{
		ID:           id,
		RunID:        runID,
		Status:       status,
		ErrorStage:   stage,
		ErrorMessage: message,
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return pipeline.ErrConcurrencyConflict
	}
	return nil
}

func (s *DocumentStore) MarkStuck(ctx context.Context, olderThan time.Time, message string) ([]string, error) {
	return s.q.MarkStuckDocuments(ctx, olderThan, message)
}

var _ executor.DocumentStore = (*DocumentStore)(nil)
