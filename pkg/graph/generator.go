package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/dochub/backend/pkg/ai"
	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipeline"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipelinelog"
	"github.com/OFFIS-RIT/dochub/backend/pkg/schema"

	"golang.org/x/sync/errgroup"
)

// Generator turns the chunks of a document into entities and
// relationships and persists them through a Client.
type Generator struct {
	ai            ai.GraphAIClient
	client        Client
	registrar     SchemaRegistrar
	parallel      int
	minChunkChars int
	classifyDocs  bool
	minConfidence float64
}

type GeneratorParams struct {
	AIClient  ai.GraphAIClient
	Client    Client
	Registrar SchemaRegistrar

	// Parallel bounds concurrent extraction calls per document.
	Parallel int
	// Chunks with fewer trimmed characters are not sent to the model.
	MinChunkChars int
	// Classify enables document type classification before extraction.
	Classify bool
	// Classifications below MinConfidence are ignored.
	MinConfidence float64
}

const (
	defaultMinChunkChars = 50
	defaultMinConfidence = 0.6
)

func NewGenerator(p GeneratorParams) *Generator {
	if p.Parallel <= 0 {
		p.Parallel = 1
	}
	if p.MinChunkChars < 0 {
		p.MinChunkChars = 0
	} else if p.MinChunkChars == 0 {
		p.MinChunkChars = defaultMinChunkChars
	}
	if p.MinConfidence <= 0 {
		p.MinConfidence = defaultMinConfidence
	}
	return &Generator{
		ai:            p.AIClient,
		client:        p.Client,
		registrar:     p.Registrar,
		parallel:      p.Parallel,
		minChunkChars: p.MinChunkChars,
		classifyDocs:  p.Classify,
		minConfidence: p.MinConfidence,
	}
}

// ProcessDocument extracts the graph of every chunk, merges duplicate
// entities, fits relationship types to s and persists the result.
//
// Extraction failures abort before anything is written. Persistence
// failures of single entities or relationships are logged and counted in
// SkippedRecords; relationships of a skipped entity are skipped as well.
func (g *Generator) ProcessDocument(
	ctx context.Context,
	doc common.Document,
	chunks []common.Chunk,
	s *schema.Schema,
) (pipeline.GraphResult, error) {
	run := pipelinelog.FromContext(ctx)
	var res pipeline.GraphResult
	if s == nil {
		s = schema.Default()
	}

	if g.classifyDocs {
		res.DocumentType = g.documentType(ctx, run, doc, chunks)
	}

	responses := make([]*extractResponse, len(chunks))
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallel)
	for i, chunk := range chunks {
		if len(strings.TrimSpace(chunk.Text)) < g.minChunkChars {
			res.SkippedChunks++
			continue
		}
		prompt := buildExtractPrompt(s, res.DocumentType, chunk.Text)
		eg.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return pipeline.NewStageError(pipeline.StageGraph, pipeline.ErrGraphExtraction, err)
			}
			run.SaveArtifact(pipeline.StageGraph, fmt.Sprintf("llm_request_%d.json", chunk.Index), map[string]any{
				"system": ai.ExtractSystemPrompt,
				"prompt": prompt,
			})
			out, attempts, err := g.extractChunk(gCtx, prompt)
			if err != nil {
				logger.Error("[Graph] Failed to extract chunk", "document_id", doc.ID, "chunk_index", chunk.Index, "attempts", attempts, "err", err)
				return err
			}
			run.SaveArtifact(pipeline.StageGraph, fmt.Sprintf("llm_response_%d.json", chunk.Index), out)
			run.StepProgress(pipeline.StageGraph, map[string]any{
				"chunk_index":   chunk.Index,
				"entities":      len(out.Entities),
				"relationships": len(out.Relationships),
				"attempts":      attempts,
			})
			responses[i] = &out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return res, err
	}

	merged := newCollector(doc.ID, s)
	for i, r := range responses {
		if r == nil {
			continue
		}
		if err := merged.addChunk(chunks[i].Index, *r); err != nil {
			return res, pipeline.Permanent(pipeline.StageGraph, pipeline.ErrGraphExtraction, err)
		}
	}
	if merged.dropped > 0 {
		logger.Debug("[Graph] Dropped incomplete records", "document_id", doc.ID, "count", merged.dropped)
	}

	relationships := g.fitRelationshipTypes(ctx, s, merged)

	if err := g.client.CreateDocumentNode(ctx, doc); err != nil {
		return res, pipeline.Transient(pipeline.StageGraph, pipeline.ErrGraphPersistence, fmt.Errorf("create document node: %w", err))
	}
	// Entities of an earlier run are merged into, relationships are
	// append-only and get rewritten.
	if err := g.client.DeleteDocumentRelationships(ctx, doc.ID); err != nil {
		return res, pipeline.Transient(pipeline.StageGraph, pipeline.ErrGraphPersistence, fmt.Errorf("clear document relationships: %w", err))
	}

	failed := make(map[common.EntityKey]struct{})
	for _, entity := range merged.entities {
		if err := ctx.Err(); err != nil {
			return res, pipeline.NewStageError(pipeline.StageGraph, pipeline.ErrGraphPersistence, err)
		}
		stored, err := g.client.CreateEntityNode(ctx, entity)
		if err != nil {
			res.SkippedRecords++
			failed[entity.Key().Normalized()] = struct{}{}
			logger.Warn("[Graph] Skipping entity", "document_id", doc.ID, "type", entity.Type, "name", entity.Name, "err", fmt.Errorf("%w: %v", pipeline.ErrGraphPersistence, err))
			continue
		}
		res.Entities = append(res.Entities, stored)
	}

	for _, rel := range relationships {
		if err := ctx.Err(); err != nil {
			return res, pipeline.NewStageError(pipeline.StageGraph, pipeline.ErrGraphPersistence, err)
		}
		_, srcFailed := failed[rel.Source.Normalized()]
		_, tgtFailed := failed[rel.Target.Normalized()]
		if srcFailed || tgtFailed {
			res.SkippedRecords++
			continue
		}
		created, err := g.client.CreateRelationship(ctx, rel)
		if err != nil {
			res.SkippedRecords++
			logger.Warn("[Graph] Skipping relationship", "document_id", doc.ID, "type", rel.Type, "source", rel.Source.Name, "target", rel.Target.Name, "err", fmt.Errorf("%w: %v", pipeline.ErrGraphPersistence, err))
			continue
		}
		if !created {
			continue
		}
		res.Relationships = append(res.Relationships, rel)
	}

	res.EntityCount = len(res.Entities)
	res.RelationshipCount = len(res.Relationships)

	if counter, ok := g.client.(RelatedDocumentCounter); ok {
		n, err := counter.RelatedDocuments(ctx, doc.ID)
		if err != nil {
			logger.Warn("[Graph] Failed to count related documents", "document_id", doc.ID, "err", err)
		} else {
			res.RelatedDocuments = n
		}
	}

	run.SaveArtifact(pipeline.StageGraph, "graph_data.json", map[string]any{
		"document_type":   res.DocumentType,
		"entities":        res.Entities,
		"relationships":   res.Relationships,
		"skipped_records": res.SkippedRecords,
	})
	logger.Info("[Graph] Document graph stored", "document_id", doc.ID, "entities", res.EntityCount, "relationships", res.RelationshipCount, "skipped", res.SkippedRecords)
	return res, nil
}

// documentType runs the advisory classification. Failures and low
// confidence answers yield an empty type.
func (g *Generator) documentType(ctx context.Context, run *pipelinelog.Run, doc common.Document, chunks []common.Chunk) string {
	cls, err := g.classify(ctx, doc, chunks)
	if err != nil {
		logger.Warn("[Graph] Document classification failed", "document_id", doc.ID, "err", err)
		return ""
	}
	run.SaveArtifact(pipeline.StageGraph, "classification.json", cls)
	if cls.Confidence < g.minConfidence {
		logger.Debug("[Graph] Ignoring low confidence classification", "document_id", doc.ID, "type", cls.DocumentType, "confidence", cls.Confidence)
		return ""
	}
	return cls.DocumentType
}

// fitRelationshipTypes maps emitted relationship types onto s. Types the
// schema does not know, or known types between endpoints it does not
// allow, are registered. A failed registration keeps the relationship
// under its canonical name.
func (g *Generator) fitRelationshipTypes(ctx context.Context, s *schema.Schema, c *collector) []common.Relationship {
	out := make([]common.Relationship, 0, len(c.relationships))
	for _, rel := range c.relationships {
		name, known := s.NormalizeRelationshipType(rel.Type)
		if !known {
			name = schema.CanonicalRelationshipName(rel.Type)
		}
		rt, _ := s.RelationshipType(name)
		if known && rt.Allows(rel.Source.Type, rel.Target.Type) {
			rel.Type = rt.Name
			out = append(out, rel)
			continue
		}

		rel.Type = name
		if g.registrar != nil {
			next, err := g.registrar.RegisterMissingRelationship(ctx, s, name, rel.Source.Type, rel.Target.Type)
			if err != nil {
				logger.Warn("[Graph] Failed to register relationship type", "type", name, "source", rel.Source.Type, "target", rel.Target.Type, "err", err)
			} else if next != nil {
				s = next
				if rt, ok := s.RelationshipType(name); ok {
					rel.Type = rt.Name
				}
			}
		}
		out = append(out, rel)
	}
	return out
}
