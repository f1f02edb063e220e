package pipelinelog

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"
)

// StagePipeline is the stage name of the whole-run start and end entries.
const StagePipeline = "pipeline"

// Sink stores log entries. Entries are only ever appended.
type Sink interface {
	Append(ctx context.Context, entry common.PipelineLogEntry) error
	List(ctx context.Context, documentID string) ([]common.PipelineLogEntry, error)
}

// ArtifactStore stores payloads keyed by (document id, stage, name).
type ArtifactStore interface {
	Put(ctx context.Context, artifact common.Artifact) error
	List(ctx context.Context, documentID string, stage string) ([]common.Artifact, error)
}

// Logger records per-document pipeline activity. Write failures are
// reported through the process logger and never returned to callers.
type Logger struct {
	sink          Sink
	artifacts     ArtifactStore
	saveArtifacts bool
	writeTimeout  time.Duration
	now           func() time.Time
	seq           atomic.Int64

	sinkBreaker     *breaker
	artifactBreaker *breaker
}

type Option func(*Logger)

// WithArtifacts enables artifact persistence into store.
func WithArtifacts(store ArtifactStore, enabled bool) Option {
	return func(l *Logger) {
		l.artifacts = store
		l.saveArtifacts = enabled && store != nil
	}
}

// WithWriteTimeout bounds every sink and artifact write.
func WithWriteTimeout(d time.Duration) Option {
	return func(l *Logger) {
		l.writeTimeout = d
	}
}

// WithStallCooldown sets how long writes to a sink are skipped after one
// of them ran into the write timeout.
func WithStallCooldown(d time.Duration) Option {
	return func(l *Logger) {
		l.sinkBreaker.cooldown = d
		l.artifactBreaker.cooldown = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

func New(sink Sink, opts ...Option) *Logger {
	l := &Logger{
		sink:         sink,
		writeTimeout: 2 * time.Second,
		now:          time.Now,

		sinkBreaker:     &breaker{cooldown: 30 * time.Second},
		artifactBreaker: &breaker{cooldown: 30 * time.Second},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// GetLog returns a document's entries ordered by timestamp.
func (l *Logger) GetLog(ctx context.Context, documentID string) ([]common.PipelineLogEntry, error) {
	if l == nil || l.sink == nil {
		return nil, nil
	}
	entries, err := l.sink.List(ctx, documentID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return entries[i].Seq < entries[j].Seq
	})
	return entries, nil
}

// GetArtifacts returns the artifacts a document's runs saved for stage.
// An empty stage returns all of them.
func (l *Logger) GetArtifacts(ctx context.Context, documentID string, stage string) ([]common.Artifact, error) {
	if l == nil || l.artifacts == nil {
		return nil, nil
	}
	return l.artifacts.List(ctx, documentID, stage)
}

// For starts recording for one run of a document.
func (l *Logger) For(documentID string, runID string) *Run {
	return &Run{
		logger:     l,
		documentID: documentID,
		runID:      runID,
		starts:     map[string]time.Time{},
		durations:  map[string]int64{},
	}
}

func (l *Logger) append(entry common.PipelineLogEntry) {
	if l == nil || l.sink == nil || !l.sinkBreaker.allow() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.writeTimeout)
	defer cancel()

	err := l.sink.Append(ctx, entry)
	if err != nil {
		logger.Warn("[PipelineLog] Failed to write log entry", "document_id", entry.DocumentID, "stage", entry.Stage, "status", entry.Status, "err", err)
	}
	if l.sinkBreaker.record(err) {
		logger.Warn("[PipelineLog] Log sink stalled, dropping entries", "cooldown", l.sinkBreaker.cooldown)
	}
}

func (l *Logger) put(artifact common.Artifact) {
	if l == nil || !l.saveArtifacts || !l.artifactBreaker.allow() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.writeTimeout)
	defer cancel()

	err := l.artifacts.Put(ctx, artifact)
	if err != nil {
		logger.Warn("[PipelineLog] Failed to save artifact", "document_id", artifact.DocumentID, "stage", artifact.Stage, "name", artifact.Name, "err", err)
	}
	if l.artifactBreaker.record(err) {
		logger.Warn("[PipelineLog] Artifact store stalled, dropping artifacts", "cooldown", l.artifactBreaker.cooldown)
	}
}

// breaker stops writing to a store that hangs until the write timeout.
// Fast failures keep it closed.
type breaker struct {
	cooldown time.Duration

	mu        sync.Mutex
	openUntil time.Time
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !time.Now().Before(b.openUntil)
}

// record reports whether err opened the breaker.
func (b *breaker) record(err error) bool {
	if !errors.Is(err, context.DeadlineExceeded) || b.cooldown <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	opened := !now.Before(b.openUntil)
	b.openUntil = now.Add(b.cooldown)
	return opened
}

// Run is the recorder of a single pipeline run. It is safe for concurrent
// use.
type Run struct {
	logger     *Logger
	documentID string
	runID      string

	mu            sync.Mutex
	pipelineStart time.Time
	starts        map[string]time.Time
	durations     map[string]int64
}

func (r *Run) DocumentID() string { return r.documentID }

func (r *Run) clock() time.Time {
	if r.logger == nil || r.logger.now == nil {
		return time.Now()
	}
	return r.logger.now()
}

func (r *Run) write(stage string, status common.LogStatus, details map[string]any) {
	if r.logger == nil {
		return
	}
	r.logger.append(common.PipelineLogEntry{
		DocumentID: r.documentID,
		RunID:      r.runID,
		Stage:      stage,
		Status:     status,
		Timestamp:  r.clock(),
		Seq:        r.logger.seq.Add(1),
		Details:    details,
	})
}

func merge(details map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(details)+len(extra))
	for k, v := range details {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// StartPipeline writes the run's opening entry.
func (r *Run) StartPipeline(details map[string]any) {
	r.mu.Lock()
	r.pipelineStart = r.clock()
	r.mu.Unlock()
	r.write(StagePipeline, common.LogStarted, details)
}

// EndPipeline writes the closing entry with the total and per-step
// durations. A non-nil err closes the run with an error entry.
func (r *Run) EndPipeline(err error, details map[string]any) {
	r.mu.Lock()
	total := int64(0)
	if !r.pipelineStart.IsZero() {
		total = r.clock().Sub(r.pipelineStart).Milliseconds()
	}
	steps := make(map[string]int64, len(r.durations))
	for k, v := range r.durations {
		steps[k] = v
	}
	r.mu.Unlock()

	extra := map[string]any{
		"total_duration_ms": total,
		"step_durations_ms": steps,
	}
	if err != nil {
		extra["error"] = err.Error()
		r.write(StagePipeline, common.LogError, merge(details, extra))
		return
	}
	r.write(StagePipeline, common.LogCompleted, merge(details, extra))
}

func (r *Run) StepStart(stage string, details map[string]any) {
	r.mu.Lock()
	r.starts[stage] = r.clock()
	r.mu.Unlock()
	r.write(stage, common.LogStarted, details)
}

func (r *Run) elapsed(stage string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	start, ok := r.starts[stage]
	if !ok {
		return 0
	}
	d := r.clock().Sub(start).Milliseconds()
	r.durations[stage] = d
	return d
}

// StepEnd closes a stage and records its duration.
func (r *Run) StepEnd(stage string, details map[string]any) {
	d := r.elapsed(stage)
	r.write(stage, common.LogCompleted, merge(details, map[string]any{"duration_ms": d}))
}

func (r *Run) StepError(stage string, err error, details map[string]any) {
	d := r.elapsed(stage)
	extra := map[string]any{"duration_ms": d}
	if err != nil {
		extra["error"] = err.Error()
	}
	r.write(stage, common.LogError, merge(details, extra))
}

// StepProgress records an in-progress event such as a processed chunk.
func (r *Run) StepProgress(stage string, details map[string]any) {
	r.write(stage, common.LogInProgress, details)
}

// Durations returns the stage durations recorded so far in milliseconds.
func (r *Run) Durations() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int64, len(r.durations))
	for k, v := range r.durations {
		out[k] = v
	}
	return out
}

// ArtifactsEnabled reports whether SaveArtifact persists anything. Callers
// use it to skip building large payloads.
func (r *Run) ArtifactsEnabled() bool {
	return r.logger != nil && r.logger.saveArtifacts
}

// SaveArtifact persists payload under (document, stage, name). Strings and
// byte slices are stored as text, anything else as indented JSON.
func (r *Run) SaveArtifact(stage string, name string, payload any) {
	if !r.ArtifactsEnabled() {
		return
	}

	var (
		data        []byte
		contentType = "text/plain"
	)
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	default:
		b, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			logger.Warn("[PipelineLog] Failed to encode artifact", "document_id", r.documentID, "stage", stage, "name", name, "err", err)
			return
		}
		data = b
		contentType = "application/json"
	}

	r.logger.put(common.Artifact{
		DocumentID:  r.documentID,
		Stage:       stage,
		Name:        name,
		ContentType: contentType,
		Payload:     data,
		CreatedAt:   r.clock(),
	})
}
