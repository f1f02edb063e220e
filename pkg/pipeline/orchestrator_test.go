package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipelinelog"
	"github.com/OFFIS-RIT/dochub/backend/pkg/schema"
)

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) Extract(ctx context.Context, doc common.Document) (string, error) {
	return f.text, f.err
}

type paragraphSplitter struct{}

func (paragraphSplitter) Split(ctx context.Context, text string) ([]common.Chunk, error) {
	var chunks []common.Chunk
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		chunks = append(chunks, common.Chunk{Index: len(chunks), Text: p, CharCount: len(p)})
	}
	return chunks, nil
}

type fakeEmbedder struct {
	drop int
	err  error
}

func (f fakeEmbedder) Embed(ctx context.Context, chunks []common.Chunk) ([]common.Embedding, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]common.Embedding, 0, len(chunks))
	for _, c := range chunks[f.drop:] {
		out = append(out, common.Embedding{ChunkIndex: c.Index, Vector: []float32{1, 2, 3}})
	}
	return out, nil
}

type memIndexer struct {
	byDoc map[string][]common.Chunk
	calls int
}

func (m *memIndexer) Index(ctx context.Context, doc common.Document, chunks []common.Chunk, embeddings []common.Embedding) error {
	m.calls++
	if m.byDoc == nil {
		m.byDoc = map[string][]common.Chunk{}
	}
	m.byDoc[doc.ID] = chunks
	return nil
}

type fakeGraph struct {
	calls int
	err   error
}

func (f *fakeGraph) ProcessDocument(ctx context.Context, doc common.Document, chunks []common.Chunk, s *schema.Schema) (GraphResult, error) {
	f.calls++
	pipelinelog.FromContext(ctx).StepProgress(StageGraph, map[string]any{"chunk_index": 0})
	if f.err != nil {
		return GraphResult{}, f.err
	}
	return GraphResult{EntityCount: 2, RelationshipCount: 1, SkippedRecords: 1}, nil
}

type staticSchemas struct{}

func (staticSchemas) Resolve(ctx context.Context, userID string) (*schema.Schema, error) {
	return schema.Default(), nil
}

const threeParagraphs = "Alice works at Acme Corp.\n\nAcme Corp builds rockets in Texas.\n\nAlice joined in 2019."

func newTestOrchestrator(ex Extractor, emb EmbeddingGenerator, idx *memIndexer, g *fakeGraph, store *pipelinelog.MemoryStore) *Orchestrator {
	return NewOrchestrator(OrchestratorParams{
		Extractor: ex,
		Splitter:  paragraphSplitter{},
		Embedder:  emb,
		Indexer:   idx,
		Graph:     g,
		Schemas:   staticSchemas{},
		Logs:      pipelinelog.New(store, pipelinelog.WithArtifacts(store.Artifacts(), true)),
	})
}

func TestProcess_Success(t *testing.T) {
	store := pipelinelog.NewMemoryStore()
	idx := &memIndexer{}
	g := &fakeGraph{}
	o := newTestOrchestrator(fakeExtractor{text: threeParagraphs}, fakeEmbedder{}, idx, g, store)

	res, err := o.Process(context.Background(), common.Document{ID: "doc-1", RunID: "run-1"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.ChunkCount != 3 || res.EmbeddingCount != res.ChunkCount {
		t.Fatalf("unexpected counts %+v", res)
	}
	if res.EntityCount != 2 || res.RelationshipCount != 1 || res.SkippedRecords != 1 {
		t.Fatalf("unexpected graph counts %+v", res)
	}

	entries, _ := store.List(context.Background(), "doc-1")
	completed := map[string]int{}
	started := map[string]int{}
	for _, e := range entries {
		switch e.Status {
		case common.LogStarted:
			started[e.Stage]++
		case common.LogCompleted:
			completed[e.Stage]++
		case common.LogError:
			t.Fatalf("unexpected error entry %+v", e)
		}
	}
	for _, stage := range Stages {
		if started[stage] != 1 || completed[stage] != 1 {
			t.Fatalf("stage %s: expected one started and one completed entry, got %d/%d", stage, started[stage], completed[stage])
		}
	}

	arts, _ := store.Artifacts().List(context.Background(), "doc-1", StageSplitting)
	if len(arts) != 4 {
		t.Fatalf("expected 3 chunk artifacts and metadata, got %d", len(arts))
	}
}

func TestProcess_ReprocessReplacesIndex(t *testing.T) {
	store := pipelinelog.NewMemoryStore()
	idx := &memIndexer{}
	o := newTestOrchestrator(fakeExtractor{text: threeParagraphs}, fakeEmbedder{}, idx, &fakeGraph{}, store)

	first, _ := o.Process(context.Background(), common.Document{ID: "doc-1"})
	second, _ := o.Process(context.Background(), common.Document{ID: "doc-1"})
	if first.ChunkCount != second.ChunkCount {
		t.Fatalf("expected same chunk count, got %d and %d", first.ChunkCount, second.ChunkCount)
	}
	if len(idx.byDoc["doc-1"]) != 3 {
		t.Fatalf("expected 3 indexed chunks, got %d", len(idx.byDoc["doc-1"]))
	}
}

func TestProcess_ExtractionErrorStopsPipeline(t *testing.T) {
	store := pipelinelog.NewMemoryStore()
	idx := &memIndexer{}
	g := &fakeGraph{}
	o := newTestOrchestrator(fakeExtractor{err: errors.New("corrupt pdf")}, fakeEmbedder{}, idx, g, store)

	res, err := o.Process(context.Background(), common.Document{ID: "doc-1"})
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
	if StageOf(err) != StageExtraction || res.FailedStage != StageExtraction {
		t.Fatalf("expected stage %s, got %s / %s", StageExtraction, StageOf(err), res.FailedStage)
	}
	if res.Error != "corrupt pdf" {
		t.Fatalf("unexpected message %q", res.Error)
	}
	if IsRetryable(err) {
		t.Fatal("extraction errors are permanent")
	}
	if idx.calls != 0 || g.calls != 0 || res.ChunkCount != 0 {
		t.Fatalf("later stages must not run: index=%d graph=%d chunks=%d", idx.calls, g.calls, res.ChunkCount)
	}

	entries, _ := store.List(context.Background(), "doc-1")
	last := entries[len(entries)-1]
	if last.Stage != pipelinelog.StagePipeline || last.Status != common.LogError {
		t.Fatalf("expected terminal pipeline error entry, got %+v", last)
	}
}

func TestProcess_EmptyTextIsExtractionError(t *testing.T) {
	o := newTestOrchestrator(fakeExtractor{text: "  \n"}, fakeEmbedder{}, &memIndexer{}, &fakeGraph{}, pipelinelog.NewMemoryStore())

	_, err := o.Process(context.Background(), common.Document{ID: "doc-1"})
	if !errors.Is(err, ErrExtraction) || StageOf(err) != StageExtraction {
		t.Fatalf("expected extraction error, got %v", err)
	}
}

func TestProcess_StageErrors(t *testing.T) {
	tests := []struct {
		name      string
		embedder  EmbeddingGenerator
		graph     *fakeGraph
		kind      error
		stage     string
		retryable bool
	}{
		{
			name:      "embedding provider failure",
			embedder:  fakeEmbedder{err: errors.New("429 rate limited")},
			graph:     &fakeGraph{},
			kind:      ErrEmbedding,
			stage:     StageEmbedding,
			retryable: true,
		},
		{
			name:      "embedding count mismatch",
			embedder:  fakeEmbedder{drop: 1},
			graph:     &fakeGraph{},
			kind:      ErrEmbedding,
			stage:     StageEmbedding,
			retryable: true,
		},
		{
			name:      "malformed graph output",
			embedder:  fakeEmbedder{},
			graph:     &fakeGraph{err: Permanent(StageGraph, ErrGraphExtraction, errors.New("malformed output"))},
			kind:      ErrGraphExtraction,
			stage:     StageGraph,
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &memIndexer{}
			o := newTestOrchestrator(fakeExtractor{text: threeParagraphs}, tt.embedder, idx, tt.graph, pipelinelog.NewMemoryStore())

			res, err := o.Process(context.Background(), common.Document{ID: "doc-1"})
			if !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
			if res.FailedStage != tt.stage {
				t.Fatalf("expected stage %s, got %s", tt.stage, res.FailedStage)
			}
			if IsRetryable(err) != tt.retryable {
				t.Fatalf("expected retryable=%v", tt.retryable)
			}
		})
	}
}

func TestProcess_NilLogger(t *testing.T) {
	o := NewOrchestrator(OrchestratorParams{
		Extractor: fakeExtractor{text: threeParagraphs},
		Splitter:  paragraphSplitter{},
		Embedder:  fakeEmbedder{},
		Indexer:   &memIndexer{},
		Graph:     &fakeGraph{},
		Schemas:   staticSchemas{},
	})
	if _, err := o.Process(context.Background(), common.Document{ID: "doc-1"}); err != nil {
		t.Fatalf("Process without logger: %v", err)
	}
}
