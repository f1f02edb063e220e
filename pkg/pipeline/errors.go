package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is; a *StageError unwraps to its kind.
var (
	ErrExtraction          = errors.New("extraction failed")
	ErrSplit               = errors.New("split failed")
	ErrEmbedding           = errors.New("embedding failed")
	ErrIndex               = errors.New("indexing failed")
	ErrGraphExtraction     = errors.New("graph extraction failed")
	ErrGraphPersistence    = errors.New("graph persistence failed")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// StageError is the error a pipeline run ends with. Stage is the name of
// the stage that failed and is what document status surfaces.
type StageError struct {
	Stage     string
	Kind      error
	Err       error
	Retryable bool
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Message is the human readable part shown on the document.
func (e *StageError) Message() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Err.Error()
}

// retryableByDefault lists the kinds caused by remote services.
func retryableByDefault(kind error) bool {
	return kind == ErrEmbedding || kind == ErrIndex
}

// NewStageError wraps err for stage. Retryability follows the kind unless
// the caller overrides it with a later assignment; context errors are never
// retryable.
func NewStageError(stage string, kind error, err error) *StageError {
	return &StageError{
		Stage:     stage,
		Kind:      kind,
		Err:       err,
		Retryable: retryableByDefault(kind) && !isContextErr(err),
	}
}

// Transient returns a retryable StageError regardless of kind. Stages use
// it for provider failures inside otherwise permanent kinds.
func Transient(stage string, kind error, err error) *StageError {
	se := NewStageError(stage, kind, err)
	se.Retryable = !isContextErr(err)
	return se
}

// Permanent returns a StageError that is never retried.
func Permanent(stage string, kind error, err error) *StageError {
	se := NewStageError(stage, kind, err)
	se.Retryable = false
	return se
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsRetryable reports whether a failed run may be attempted again.
func IsRetryable(err error) bool {
	var se *StageError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// StageOf returns the failing stage of err, or "" when err is not a
// StageError.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// MessageOf returns the message to store on a failed document.
func MessageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Message()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
