package pipeline

import (
	"context"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/schema"
)

// Stage names as they appear in logs and on failed documents.
const (
	StageExtraction = "text_extraction"
	StageSplitting  = "text_splitting"
	StageEmbedding  = "embedding_generation"
	StageIndexing   = "indexing"
	StageGraph      = "graph_generation"
)

// Stages lists the stage names in execution order.
var Stages = []string{StageExtraction, StageSplitting, StageEmbedding, StageIndexing, StageGraph}

// Extractor turns a document's file into plain text.
type Extractor interface {
	Extract(ctx context.Context, doc common.Document) (string, error)
}

// Splitter cuts text into ordered chunks with contiguous 0-based indexes.
type Splitter interface {
	Split(ctx context.Context, text string) ([]common.Chunk, error)
}

// EmbeddingGenerator returns exactly one embedding per chunk, matched by
// chunk index.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, chunks []common.Chunk) ([]common.Embedding, error)
}

// Indexer stores chunks and their embeddings. Indexing a document replaces
// whatever was stored for its id before.
type Indexer interface {
	Index(ctx context.Context, doc common.Document, chunks []common.Chunk, embeddings []common.Embedding) error
}

// GraphResult summarizes the graph stage of one run.
type GraphResult struct {
	Entities          []common.Entity       `json:"-"`
	Relationships     []common.Relationship `json:"-"`
	EntityCount       int                   `json:"entity_count"`
	RelationshipCount int                   `json:"relationship_count"`
	SkippedRecords    int                   `json:"skipped_records"`
	SkippedChunks     int                   `json:"skipped_chunks"`
	DocumentType      string                `json:"document_type,omitempty"`
	RelatedDocuments  int                   `json:"related_documents"`
}

// GraphStage extracts and persists the knowledge graph of a document.
type GraphStage interface {
	ProcessDocument(ctx context.Context, doc common.Document, chunks []common.Chunk, s *schema.Schema) (GraphResult, error)
}

// SchemaResolver returns the schema active for a user.
type SchemaResolver interface {
	Resolve(ctx context.Context, userID string) (*schema.Schema, error)
}
