package executor

import (
	"context"
	"errors"
	"time"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrAlreadyProcessing = errors.New("document is already processing")
	ErrNotReprocessable  = errors.New("only failed documents can be reprocessed")
)

// DocumentStore is the document record the executor drives through its
// status machine. ClaimProcessing and FinishRun are compare-and-set writes:
//
//   - ClaimProcessing moves a document that is not processing into
//     processing under runID, else ErrAlreadyProcessing.
//   - FinishRun moves a document out of processing only while runID still
//     owns it, else pipeline.ErrConcurrencyConflict.
//   - MarkStuck fails every run that started before olderThan and returns
//     the affected ids.
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (common.Document, error)
	ClaimProcessing(ctx context.Context, id string, runID string) (common.Document, error)
	FinishRun(ctx context.Context, id string, runID string, status common.DocumentStatus, stage string, message string) error
	MarkStuck(ctx context.Context, olderThan time.Time, message string) ([]string, error)
}
