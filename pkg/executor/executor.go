package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OFFIS-RIT/dochub/backend/internal/util"
	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/leaselock"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipeline"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipelinelog"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"
)

// CleanupMessage is stored on documents the cleanup pass fails.
const CleanupMessage = "Processing timed out. The document was stuck in processing state for too long."

// Processor runs the pipeline for one claimed document.
// *pipeline.Orchestrator implements it.
type Processor interface {
	Process(ctx context.Context, doc common.Document) (pipeline.Result, error)
}

// Locker serialises runs of one document across processes.
// *leaselock.Client implements it.
type Locker interface {
	WithLease(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Publisher hands a claimed run to another process instead of the local
// pool, e.g. a message queue.
type Publisher func(ctx context.Context, documentID string, runID string) error

type Params struct {
	Store     DocumentStore
	Processor Processor
	Logs      *pipelinelog.Logger
	Locker    Locker
	Publisher Publisher

	Workers        int
	MaxRetries     int
	Backoff        util.Backoff
	CleanupTimeout time.Duration
	Now            func() time.Time
}

// Status is what collaborators see of a document's processing state.
type Status struct {
	DocumentID   string                `json:"document_id"`
	Status       common.DocumentStatus `json:"status"`
	ErrorStage   string                `json:"error_stage,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	RunID        string                `json:"run_id,omitempty"`
	Active       bool                  `json:"active"`
}

// Executor runs document pipelines on a fixed pool of workers. It allows
// at most one run per document id and moves the document out of
// processing through a compare-and-set on the run id, so the loser of a
// race never overwrites the winner's terminal state.
type Executor struct {
	store      DocumentStore
	processor  Processor
	logs       *pipelinelog.Logger
	locker     Locker
	publisher  Publisher
	maxRetries int
	backoff    util.Backoff
	timeout    time.Duration
	now        func() time.Time

	pool *ants.Pool
	wg   sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]string
	results  map[string]pipeline.Result

	cronMu sync.Mutex
	cron   *cron.Cron
	closed bool
}

func New(p Params) (*Executor, error) {
	if p.Store == nil {
		return nil, errors.New("executor: document store is required")
	}
	if p.Processor == nil && p.Publisher == nil {
		return nil, errors.New("executor: processor or publisher is required")
	}
	if p.Workers <= 0 {
		p.Workers = 4
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.CleanupTimeout <= 0 {
		p.CleanupTimeout = 30 * time.Minute
	}
	if p.Now == nil {
		p.Now = time.Now
	}

	pool, err := ants.NewPool(p.Workers, ants.WithPanicHandler(func(v any) {
		logger.Error("[Executor] Worker panicked", "panic", v)
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	return &Executor{
		store:      p.Store,
		processor:  p.Processor,
		logs:       p.Logs,
		locker:     p.Locker,
		publisher:  p.Publisher,
		maxRetries: p.MaxRetries,
		backoff:    p.Backoff,
		timeout:    p.CleanupTimeout,
		now:        p.Now,
		pool:       pool,
		inflight:   map[string]string{},
		results:    map[string]pipeline.Result{},
	}, nil
}

// Trigger starts a run for the document. It returns false without error
// when a run is already active for the id, which makes repeated triggers
// idempotent.
func (e *Executor) Trigger(ctx context.Context, documentID string) (bool, error) {
	if e.isInflight(documentID) {
		logger.Debug("[Executor] Run already active", "document_id", documentID)
		return false, nil
	}
	return e.claimAndStart(ctx, documentID)
}

// Reprocess starts a new run for a document whose last run failed.
func (e *Executor) Reprocess(ctx context.Context, documentID string) (bool, error) {
	doc, err := e.store.GetDocument(ctx, documentID)
	if err != nil {
		return false, err
	}
	if doc.Status != common.StatusError {
		return false, ErrNotReprocessable
	}
	return e.claimAndStart(ctx, documentID)
}

func (e *Executor) claimAndStart(ctx context.Context, documentID string) (bool, error) {
	runID := uuid.NewString()
	if _, err := e.store.ClaimProcessing(ctx, documentID, runID); err != nil {
		if errors.Is(err, ErrAlreadyProcessing) {
			logger.Debug("[Executor] Document already processing", "document_id", documentID)
			return false, nil
		}
		return false, err
	}
	logger.Info("[Executor] Claimed document", "document_id", documentID, "run_id", runID)

	if e.publisher != nil {
		if err := e.publisher(ctx, documentID, runID); err != nil {
			e.finish(documentID, runID, common.StatusError, "", fmt.Sprintf("enqueue failed: %v", err))
			return false, fmt.Errorf("enqueue document %s: %w", documentID, err)
		}
		return true, nil
	}

	if err := e.Dispatch(ctx, documentID, runID); err != nil {
		e.finish(documentID, runID, common.StatusError, "", fmt.Sprintf("dispatch failed: %v", err))
		return false, err
	}
	return true, nil
}

// Dispatch runs an already claimed run on the worker pool. A second
// dispatch for a document whose run is active in this process is dropped.
// Dispatch blocks while every worker is busy.
func (e *Executor) Dispatch(ctx context.Context, documentID string, runID string) error {
	if e.processor == nil {
		return errors.New("executor: no processor configured")
	}

	e.mu.Lock()
	if active, ok := e.inflight[documentID]; ok {
		e.mu.Unlock()
		logger.Warn("[Executor] Dropping dispatch, run already active", "document_id", documentID, "active_run_id", active, "run_id", runID)
		return nil
	}
	e.inflight[documentID] = runID
	e.mu.Unlock()

	e.wg.Add(1)
	err := e.pool.Submit(func() {
		defer e.wg.Done()
		defer e.release(documentID)
		e.run(documentID, runID)
	})
	if err != nil {
		e.wg.Done()
		e.release(documentID)
		return fmt.Errorf("submit run: %w", err)
	}
	return nil
}

func (e *Executor) isInflight(documentID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inflight[documentID]
	return ok
}

func (e *Executor) release(documentID string) {
	e.mu.Lock()
	delete(e.inflight, documentID)
	e.mu.Unlock()
}

// run is not cancelled mid-stage; an abandoned run is failed by Cleanup.
func (e *Executor) run(documentID string, runID string) {
	ctx := context.Background()
	if e.locker == nil {
		e.runLocked(ctx, documentID, runID)
		return
	}

	err := e.locker.WithLease(ctx, leaselock.DocumentKey(documentID), func(ctx context.Context) error {
		e.runLocked(ctx, documentID, runID)
		return nil
	})
	if errors.Is(err, leaselock.ErrBusy) {
		logger.Warn("[Executor] Another worker holds the document, skipping run", "document_id", documentID, "run_id", runID)
		return
	}
	if err != nil {
		logger.Error("[Executor] Run lease failed", "document_id", documentID, "run_id", runID, "err", err)
	}
}

func (e *Executor) runLocked(ctx context.Context, documentID string, runID string) {
	doc, err := e.store.GetDocument(ctx, documentID)
	if err != nil {
		logger.Error("[Executor] Failed to load document", "document_id", documentID, "err", err)
		return
	}
	if doc.Status != common.StatusProcessing || doc.RunID != runID {
		logger.Warn("[Executor] Run no longer owns the document, skipping", "document_id", documentID, "run_id", runID, "status", doc.Status, "owner_run_id", doc.RunID)
		return
	}

	res, err := e.process(ctx, doc)
	e.mu.Lock()
	e.results[documentID] = res
	e.mu.Unlock()

	if err != nil {
		logger.Error("[Executor] Run failed", "document_id", documentID, "run_id", runID, "stage", pipeline.StageOf(err), "err", err)
		e.finish(documentID, runID, common.StatusError, pipeline.StageOf(err), pipeline.MessageOf(err))
		return
	}
	logger.Info("[Executor] Run completed", "document_id", documentID, "run_id", runID,
		"chunks", res.ChunkCount, "entities", res.EntityCount, "relationships", res.RelationshipCount, "skipped", res.SkippedRecords)
	e.finish(documentID, runID, common.StatusReady, "", "")
}

// process retries transient failures up to maxRetries times after the
// first attempt.
func (e *Executor) process(ctx context.Context, doc common.Document) (res pipeline.Result, err error) {
	err = util.RetryWithBackoff(ctx, e.maxRetries+1, e.backoff, pipeline.IsRetryable, func(ctx context.Context, attempt int) (err error) {
		if attempt > 1 {
			logger.Info("[Executor] Retrying document", "document_id", doc.ID, "attempt", attempt, "max_attempts", e.maxRetries+1)
		}
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("pipeline panicked: %v", r)
			}
		}()
		res, err = e.processor.Process(ctx, doc)
		return err
	})
	return res, err
}

// finish writes the terminal state. Losing the compare-and-set means a
// newer run or the cleanup pass owns the document, so it is a no-op.
func (e *Executor) finish(documentID, runID string, status common.DocumentStatus, stage, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := e.store.FinishRun(ctx, documentID, runID, status, stage, message)
	if errors.Is(err, pipeline.ErrConcurrencyConflict) {
		logger.Info("[Executor] Run lost status race, not writing terminal state", "document_id", documentID, "run_id", runID, "status", status)
		return
	}
	if err != nil {
		logger.Error("[Executor] Failed to write document status", "document_id", documentID, "run_id", runID, "status", status, "err", err)
	}
}

// Cleanup fails every document that has been processing for longer than
// the cleanup timeout and returns how many it changed.
func (e *Executor) Cleanup(ctx context.Context) (int, error) {
	ids, err := e.store.MarkStuck(ctx, e.now().Add(-e.timeout), CleanupMessage)
	if err != nil {
		return 0, fmt.Errorf("mark stuck documents: %w", err)
	}
	for _, id := range ids {
		logger.Warn("[Executor] Failed stuck document", "document_id", id, "timeout", e.timeout)
		e.logs.For(id, "").EndPipeline(errors.New(CleanupMessage), map[string]any{"reason": "cleanup"})
	}
	if len(ids) > 0 {
		logger.Info("[Executor] Cleanup fixed stuck documents", "count", len(ids))
	}
	return len(ids), nil
}

// StartCleanup runs Cleanup on a cron schedule such as "@every 5m" until
// Close is called.
func (e *Executor) StartCleanup(schedule string) error {
	e.cronMu.Lock()
	defer e.cronMu.Unlock()
	if e.closed {
		return errors.New("executor is closed")
	}
	if e.cron != nil {
		return errors.New("cleanup already scheduled")
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := e.Cleanup(ctx); err != nil {
			logger.Error("[Executor] Cleanup failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	c.Start()
	e.cron = c
	logger.Info("[Executor] Scheduled cleanup", "schedule", schedule, "timeout", e.timeout)
	return nil
}

// Status returns the stored status of a document and whether this
// process is running it.
func (e *Executor) Status(ctx context.Context, documentID string) (Status, error) {
	doc, err := e.store.GetDocument(ctx, documentID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		DocumentID:   doc.ID,
		Status:       doc.Status,
		ErrorStage:   doc.ErrorStage,
		ErrorMessage: doc.ErrorMessage,
		RunID:        doc.RunID,
		Active:       e.isInflight(documentID),
	}, nil
}

// LastResult returns the result of the latest run this process finished
// for the document.
func (e *Executor) LastResult(documentID string) (pipeline.Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, ok := e.results[documentID]
	return res, ok
}

// Wait blocks until every dispatched run has finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Close stops the cleanup schedule, waits for running pipelines and
// releases the pool.
func (e *Executor) Close() {
	e.cronMu.Lock()
	if e.closed {
		e.cronMu.Unlock()
		return
	}
	e.closed = true
	c := e.cron
	e.cronMu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	e.wg.Wait()
	e.pool.Release()
}
