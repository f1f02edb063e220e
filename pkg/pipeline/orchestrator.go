package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipelinelog"
)

// Result is the outcome of one run. On failure FailedStage and Error are
// set and the counts reflect the stages that completed.
type Result struct {
	DocumentID        string           `json:"document_id"`
	RunID             string           `json:"run_id,omitempty"`
	ChunkCount        int              `json:"chunk_count"`
	EmbeddingCount    int              `json:"embedding_count"`
	EntityCount       int              `json:"entity_count"`
	RelationshipCount int              `json:"relationship_count"`
	SkippedRecords    int              `json:"skipped_records"`
	RelatedDocuments  int              `json:"related_documents"`
	DocumentType      string           `json:"document_type,omitempty"`
	FailedStage       string           `json:"failed_stage,omitempty"`
	Error             string           `json:"error,omitempty"`
	Durations         map[string]int64 `json:"step_durations_ms,omitempty"`
}

// Orchestrator runs the five stages of one document strictly in order.
type Orchestrator struct {
	extractor Extractor
	splitter  Splitter
	embedder  EmbeddingGenerator
	indexer   Indexer
	graph     GraphStage
	schemas   SchemaResolver
	logs      *pipelinelog.Logger
}

// OrchestratorParams wires the stage implementations. Logs may be nil.
type OrchestratorParams struct {
	Extractor Extractor
	Splitter  Splitter
	Embedder  EmbeddingGenerator
	Indexer   Indexer
	Graph     GraphStage
	Schemas   SchemaResolver
	Logs      *pipelinelog.Logger
}

func NewOrchestrator(p OrchestratorParams) *Orchestrator {
	return &Orchestrator{
		extractor: p.Extractor,
		splitter:  p.Splitter,
		embedder:  p.Embedder,
		indexer:   p.Indexer,
		graph:     p.Graph,
		schemas:   p.Schemas,
		logs:      p.Logs,
	}
}

// Logs returns the pipeline logger the orchestrator writes to.
func (o *Orchestrator) Logs() *pipelinelog.Logger {
	return o.logs
}

// Process runs extract, split, embed, index and graph generation for doc.
// The first failing stage aborts the run; the returned error is a
// *StageError naming that stage. Indexed chunks of a failed run stay in
// place and are replaced by the next run.
func (o *Orchestrator) Process(ctx context.Context, doc common.Document) (Result, error) {
	run := o.logs.For(doc.ID, doc.RunID)
	ctx = pipelinelog.WithRun(ctx, run)

	res := Result{DocumentID: doc.ID, RunID: doc.RunID}
	run.StartPipeline(map[string]any{
		"document_name": doc.Name,
		"file_path":     doc.FilePath,
	})

	fail := func(stage string, kind error, err error) (Result, error) {
		var se *StageError
		if !errors.As(err, &se) {
			se = NewStageError(stage, kind, err)
		}
		run.StepError(stage, se.Err, map[string]any{"retryable": se.Retryable})
		run.EndPipeline(se, nil)
		res.FailedStage = se.Stage
		res.Error = se.Message()
		res.Durations = run.Durations()
		logger.Error("[Pipeline] Stage failed", "document_id", doc.ID, "stage", se.Stage, "err", se.Err)
		return res, se
	}

	// extract
	run.StepStart(StageExtraction, nil)
	text, err := o.extractor.Extract(ctx, doc)
	if err == nil && strings.TrimSpace(text) == "" {
		err = Permanent(StageExtraction, ErrExtraction, errors.New("no text extracted from document"))
	}
	if err != nil {
		return fail(StageExtraction, ErrExtraction, err)
	}
	run.SaveArtifact(StageExtraction, "extracted_text.txt", text)
	run.StepEnd(StageExtraction, map[string]any{"text_length": len(text)})

	// split
	run.StepStart(StageSplitting, map[string]any{"text_length": len(text)})
	chunks, err := o.splitter.Split(ctx, text)
	if err == nil && len(chunks) == 0 {
		err = errors.New("text produced no chunks")
	}
	if err == nil {
		err = checkChunkOrder(chunks)
	}
	if err != nil {
		return fail(StageSplitting, ErrSplit, err)
	}
	res.ChunkCount = len(chunks)
	if run.ArtifactsEnabled() {
		meta := make([]map[string]any, len(chunks))
		for i, c := range chunks {
			run.SaveArtifact(StageSplitting, fmt.Sprintf("chunk_%d.txt", c.Index), c.Text)
			meta[i] = map[string]any{"index": c.Index, "char_count": c.CharCount, "token_count": c.TokenCount}
		}
		run.SaveArtifact(StageSplitting, "chunks_metadata.json", meta)
	}
	run.StepEnd(StageSplitting, map[string]any{"chunk_count": len(chunks)})

	// embed
	run.StepStart(StageEmbedding, map[string]any{"chunk_count": len(chunks)})
	embeddings, err := o.embedder.Embed(ctx, chunks)
	if err == nil && len(embeddings) != len(chunks) {
		err = fmt.Errorf("got %d embeddings for %d chunks", len(embeddings), len(chunks))
	}
	if err != nil {
		return fail(StageEmbedding, ErrEmbedding, err)
	}
	res.EmbeddingCount = len(embeddings)
	dim := 0
	if len(embeddings) > 0 {
		dim = len(embeddings[0].Vector)
	}
	run.SaveArtifact(StageEmbedding, "embeddings_metadata.json", map[string]any{
		"count":      len(embeddings),
		"dimensions": dim,
	})
	run.StepEnd(StageEmbedding, map[string]any{"embedding_count": len(embeddings), "dimensions": dim})

	// index
	run.StepStart(StageIndexing, map[string]any{"chunk_count": len(chunks)})
	if err := o.indexer.Index(ctx, doc, chunks, embeddings); err != nil {
		return fail(StageIndexing, ErrIndex, err)
	}
	run.StepEnd(StageIndexing, map[string]any{"chunk_count": len(chunks)})

	// graph
	run.StepStart(StageGraph, map[string]any{"chunk_count": len(chunks)})
	active, err := o.schemas.Resolve(ctx, doc.UserID)
	if err != nil {
		return fail(StageGraph, ErrGraphExtraction, Transient(StageGraph, ErrGraphExtraction, fmt.Errorf("resolve schema: %w", err)))
	}
	graph, err := o.graph.ProcessDocument(ctx, doc, chunks, active)
	if err != nil {
		return fail(StageGraph, ErrGraphExtraction, err)
	}
	res.EntityCount = graph.EntityCount
	res.RelationshipCount = graph.RelationshipCount
	res.SkippedRecords = graph.SkippedRecords
	res.RelatedDocuments = graph.RelatedDocuments
	res.DocumentType = graph.DocumentType
	run.StepEnd(StageGraph, map[string]any{
		"entity_count":       graph.EntityCount,
		"relationship_count": graph.RelationshipCount,
		"skipped_records":    graph.SkippedRecords,
		"skipped_chunks":     graph.SkippedChunks,
		"schema_version":     active.Version,
	})

	res.Durations = run.Durations()
	run.SaveArtifact(pipelinelog.StagePipeline, "metrics.json", res)
	run.EndPipeline(nil, map[string]any{
		"chunk_count":        res.ChunkCount,
		"entity_count":       res.EntityCount,
		"relationship_count": res.RelationshipCount,
		"skipped_records":    res.SkippedRecords,
	})
	return res, nil
}

func checkChunkOrder(chunks []common.Chunk) error {
	for i, c := range chunks {
		if c.Index != i {
			return fmt.Errorf("chunk %d has index %d", i, c.Index)
		}
	}
	return nil
}
