package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OFFIS-RIT/dochub/backend/internal/util"
	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/leaselock"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipeline"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipelinelog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	calls   atomic.Int32
	gate    chan struct{}
	started chan string
	fn      func(attempt int32, doc common.Document) (pipeline.Result, error)
}

func (p *fakeProcessor) Process(ctx context.Context, doc common.Document) (pipeline.Result, error) {
	n := p.calls.Add(1)
	if p.started != nil {
		p.started <- doc.RunID
	}
	if p.gate != nil {
		<-p.gate
	}
	if p.fn != nil {
		return p.fn(n, doc)
	}
	return pipeline.Result{DocumentID: doc.ID, ChunkCount: 1, EmbeddingCount: 1}, nil
}

func newExecutor(t *testing.T, store DocumentStore, proc Processor, mod func(*Params)) *Executor {
	t.Helper()
	p := Params{
		Store:      store,
		Processor:  proc,
		Workers:    2,
		MaxRetries: 3,
		Backoff:    util.Backoff{Initial: time.Millisecond},
	}
	if mod != nil {
		mod(&p)
	}
	e, err := New(p)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func transient(err error) error {
	return pipeline.Transient(pipeline.StageEmbedding, pipeline.ErrEmbedding, err)
}

func TestTrigger_CompletesAsReady(t *testing.T) {
	store := NewMemoryDocumentStore(common.Document{ID: "doc-1"})
	e := newExecutor(t, store, &fakeProcessor{}, nil)

	accepted, err := e.Trigger(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.True(t, accepted)
	e.Wait()

	st, err := e.Status(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, common.StatusReady, st.Status)
	assert.Empty(t, st.ErrorMessage)
	assert.False(t, st.Active)

	res, ok := e.LastResult("doc-1")
	require.True(t, ok)
	assert.Equal(t, 1, res.ChunkCount)
}

func TestTrigger_ConcurrentTriggersRunOnce(t *testing.T) {
	store := NewMemoryDocumentStore(common.Document{ID: "doc-1"})
	proc := &fakeProcessor{gate: make(chan struct{})}
	e := newExecutor(t, store, proc, nil)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := e.Trigger(context.Background(), "doc-1")
			assert.NoError(t, err)
			if ok {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	close(proc.gate)
	e.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, int32(1), proc.calls.Load())
	assert.Equal(t, 1, store.TerminalWrites())
}

func TestFinish_LoserOfStatusRaceIsNoOp(t *testing.T) {
	store := NewMemoryDocumentStore(common.Document{ID: "doc-1"})
	proc := &fakeProcessor{
		gate:    make(chan struct{}),
		started: make(chan string, 2),
	}
	e := newExecutor(t, store, proc, nil)
	ctx := context.Background()

	// Run A claims and blocks inside the pipeline.
	_, err := store.ClaimProcessing(ctx, "doc-1", "run-a")
	require.NoError(t, err)
	require.NoError(t, e.Dispatch(ctx, "doc-1", "run-a"))
	<-proc.started

	// Run B takes over after A is considered stuck and finishes first.
	_, err = store.MarkStuck(ctx, time.Now().Add(time.Hour), CleanupMessage)
	require.NoError(t, err)
	_, err = store.ClaimProcessing(ctx, "doc-1", "run-b")
	require.NoError(t, err)
	require.NoError(t, store.FinishRun(ctx, "doc-1", "run-b", common.StatusReady, "", ""))

	close(proc.gate)
	e.Wait()

	doc, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, common.StatusReady, doc.Status)
	assert.Equal(t, "run-b", doc.RunID)
	// The cleanup write and run B; run A wrote nothing.
	assert.Equal(t, 2, store.TerminalWrites())
}

func TestDispatch_SkipsStaleRun(t *testing.T) {
	store := NewMemoryDocumentStore(common.Document{ID: "doc-1"})
	proc := &fakeProcessor{}
	e := newExecutor(t, store, proc, nil)

	_, err := store.ClaimProcessing(context.Background(), "doc-1", "run-new")
	require.NoError(t, err)
	require.NoError(t, e.Dispatch(context.Background(), "doc-1", "run-old"))
	e.Wait()

	assert.Equal(t, int32(0), proc.calls.Load())
	doc, _ := store.GetDocument(context.Background(), "doc-1")
	assert.Equal(t, common.StatusProcessing, doc.Status)
}

func TestRun_RetriesTransientFailures(t *testing.T) {
	store := NewMemoryDocumentStore(common.Document{ID: "doc-1"})
	proc := &fakeProcessor{fn: func(attempt int32, doc common.Document) (pipeline.Result, error) {
		if attempt < 3 {
			return pipeline.Result{}, transient(errors.New("rate limited"))
		}
		return pipeline.Result{ChunkCount: 2, EmbeddingCount: 2}, nil
	}}
	e := newExecutor(t, store, proc, nil)

	_, err := e.Trigger(context.Background(), "doc-1")
	require.NoError(t, err)
	e.Wait()

	assert.Equal(t, int32(3), proc.calls.Load())
	doc, _ := store.GetDocument(context.Background(), "doc-1")
	assert.Equal(t, common.StatusReady, doc.Status)
}

func TestRun_GivesUpAfterMaxRetries(t *testing.T) {
	store := NewMemoryDocumentStore(common.Document{ID: "doc-1"})
	proc := &fakeProcessor{fn: func(attempt int32, doc common.Document) (pipeline.Result, error) {
		return pipeline.Result{}, transient(errors.New("provider unavailable"))
	}}
	e := newExecutor(t, store, proc, nil)

	_, err := e.Trigger(context.Background(), "doc-1")
	require.NoError(t, err)
	e.Wait()

	assert.Equal(t, int32(4), proc.calls.Load())
	doc, _ := store.GetDocument(context.Background(), "doc-1")
	assert.Equal(t, common.StatusError, doc.Status)
	assert.Equal(t, pipeline.StageEmbedding, doc.ErrorStage)
	assert.Equal(t, "provider unavailable", doc.ErrorMessage)
}

func TestRun_PermanentFailureIsNotRetried(t *testing.T) {
	store := NewMemoryDocumentStore(common.Document{ID: "doc-1"})
	proc := &fakeProcessor{fn: func(attempt int32, doc common.Document) (pipeline.Result, error) {
		return pipeline.Result{FailedStage: pipeline.StageExtraction},
			pipeline.Permanent(pipeline.StageExtraction, pipeline.ErrExtraction, errors.New("corrupt file"))
	}}
	e := newExecutor(t, store, proc, nil)

	_, err := e.Trigger(context.Background(), "doc-1")
	require.NoError(t, err)
	e.Wait()

	assert.Equal(t, int32(1), proc.calls.Load())
	st, err := e.Status(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, common.StatusError, st.Status)
	assert.Equal(t, "text_extraction", st.ErrorStage)
	assert.Equal(t, "corrupt file", st.ErrorMessage)
}

func TestRun_PanicMarksError(t *testing.T) {
	store := NewMemoryDocumentStore(common.Document{ID: "doc-1"})
	proc := &fakeProcessor{fn: func(int32, common.Document) (pipeline.Result, error) {
		panic("nil map")
	}}
	e := newExecutor(t, store, proc, nil)

	_, err := e.Trigger(context.Background(), "doc-1")
	require.NoError(t, err)
	e.Wait()

	doc, _ := store.GetDocument(context.Background(), "doc-1")
	assert.Equal(t, common.StatusError, doc.Status)
	assert.Contains(t, doc.ErrorMessage, "nil map")
}

func TestReprocess_OnlyFromError(t *testing.T) {
	store := NewMemoryDocumentStore(
		common.Document{ID: "ready", Status: common.StatusReady},
		common.Document{ID: "failed", Status: common.StatusError, ErrorMessage: "boom"},
	)
	e := newExecutor(t, store, &fakeProcessor{}, nil)

	_, err := e.Reprocess(context.Background(), "ready")
	assert.ErrorIs(t, err, ErrNotReprocessable)

	accepted, err := e.Reprocess(context.Background(), "failed")
	require.NoError(t, err)
	assert.True(t, accepted)
	e.Wait()

	doc, _ := store.GetDocument(context.Background(), "failed")
	assert.Equal(t, common.StatusReady, doc.Status)
	assert.Empty(t, doc.ErrorMessage)

	_, err = e.Reprocess(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCleanup_FailsStuckDocuments(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryDocumentStore(common.Document{ID: "stuck"}, common.Document{ID: "fresh"})
	ctx := context.Background()

	store.SetClock(func() time.Time { return now.Add(-time.Hour) })
	_, err := store.ClaimProcessing(ctx, "stuck", "run-1")
	require.NoError(t, err)
	store.SetClock(func() time.Time { return now.Add(-time.Minute) })
	_, err = store.ClaimProcessing(ctx, "fresh", "run-2")
	require.NoError(t, err)

	logs := pipelinelog.NewMemoryStore()
	e := newExecutor(t, store, &fakeProcessor{}, func(p *Params) {
		p.CleanupTimeout = 30 * time.Minute
		p.Now = func() time.Time { return now }
		p.Logs = pipelinelog.New(logs)
	})

	n, err := e.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stuck, _ := store.GetDocument(ctx, "stuck")
	assert.Equal(t, common.StatusError, stuck.Status)
	assert.Equal(t, CleanupMessage, stuck.ErrorMessage)
	fresh, _ := store.GetDocument(ctx, "fresh")
	assert.Equal(t, common.StatusProcessing, fresh.Status)

	entries, err := logs.List(ctx, "stuck")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, common.LogError, entries[0].Status)

	// A crashed worker's late finish loses the race.
	assert.ErrorIs(t, store.FinishRun(ctx, "stuck", "run-1", common.StatusReady, "", ""), pipeline.ErrConcurrencyConflict)
}

func TestStartCleanup_RejectsBadSchedule(t *testing.T) {
	e := newExecutor(t, NewMemoryDocumentStore(), &fakeProcessor{}, nil)
	assert.Error(t, e.StartCleanup("not a schedule"))
	require.NoError(t, e.StartCleanup("@every 1h"))
	assert.Error(t, e.StartCleanup("@every 1h"))
}

func TestTrigger_Publisher(t *testing.T) {
	store := NewMemoryDocumentStore(common.Document{ID: "doc-1"}, common.Document{ID: "doc-2"})
	var published []string
	e := newExecutor(t, store, nil, func(p *Params) {
		p.Publisher = func(ctx context.Context, id, runID string) error {
			if id == "doc-2" {
				return errors.New("broker down")
			}
			published = append(published, id+"/"+runID)
			return nil
		}
	})

	accepted, err := e.Trigger(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.True(t, accepted)
	require.Len(t, published, 1)
	doc, _ := store.GetDocument(context.Background(), "doc-1")
	assert.Equal(t, common.StatusProcessing, doc.Status)
	assert.Equal(t, "doc-1/"+doc.RunID, published[0])

	_, err = e.Trigger(context.Background(), "doc-2")
	assert.Error(t, err)
	doc, _ = store.GetDocument(context.Background(), "doc-2")
	assert.Equal(t, common.StatusError, doc.Status)
}

type busyLocker struct{}

func (busyLocker) WithLease(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return leaselock.ErrBusy
}

func TestRun_SkipsWhenLeaseBusy(t *testing.T) {
	store := NewMemoryDocumentStore(common.Document{ID: "doc-1"})
	proc := &fakeProcessor{}
	e := newExecutor(t, store, proc, func(p *Params) { p.Locker = busyLocker{} })

	_, err := e.Trigger(context.Background(), "doc-1")
	require.NoError(t, err)
	e.Wait()

	assert.Equal(t, int32(0), proc.calls.Load())
}
