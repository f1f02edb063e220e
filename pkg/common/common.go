package common

import (
	"strings"
	"time"
)

// DocumentStatus is the lifecycle state of a document's processing run.
type DocumentStatus string

const (
	// StatusPending is the status of an uploaded document that was never
	// processed.
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusError      DocumentStatus = "error"
)

// Document is the externally owned record the pipeline works on. Only the
// executor changes Status, and only through a compare-and-set on RunID.
type Document struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	FilePath            string         `json:"file_path"`
	FolderID            string         `json:"folder_id,omitempty"`
	UserID              string         `json:"user_id,omitempty"`
	MimeType            string         `json:"mime_type,omitempty"`
	Status              DocumentStatus `json:"status"`
	ErrorStage          string         `json:"error_stage,omitempty"`
	ErrorMessage        string         `json:"error_message,omitempty"`
	RunID               string         `json:"run_id,omitempty"`
	ProcessingStartedAt *time.Time     `json:"processing_started_at,omitempty"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// Chunk is one ordered text fragment of a document. Index is 0-based and
// contiguous within a run.
type Chunk struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	CharCount  int    `json:"char_count"`
	TokenCount int    `json:"token_count,omitempty"`
}

// Embedding belongs to the chunk with the same index.
type Embedding struct {
	ChunkIndex int       `json:"chunk_index"`
	Vector     []float32 `json:"-"`
}

// EntityKey identifies an entity inside one document. Name is compared
// case-insensitively.
type EntityKey struct {
	Type       string `json:"type"`
	Name       string `json:"name"`
	DocumentID string `json:"document_id"`
}

// Normalized returns the key with a lower-cased, trimmed name.
func (k EntityKey) Normalized() EntityKey {
	return EntityKey{
		Type:       k.Type,
		Name:       strings.ToLower(strings.TrimSpace(k.Name)),
		DocumentID: k.DocumentID,
	}
}

// Entity is a graph node extracted from a document.
type Entity struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	DocumentID string            `json:"document_id"`
	ChunkIndex int               `json:"chunk_index"`
	Properties map[string]string `json:"properties"`
}

func (e Entity) Key() EntityKey {
	return EntityKey{Type: e.Type, Name: e.Name, DocumentID: e.DocumentID}
}

// Relationship is a directed edge between two entities of the same document.
type Relationship struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Source     EntityKey         `json:"source"`
	Target     EntityKey         `json:"target"`
	DocumentID string            `json:"document_id"`
	ChunkIndex int               `json:"chunk_index"`
	Properties map[string]string `json:"properties"`
}

// GraphNode and GraphEdge are the retrieval shape handed to visualizers.
type GraphNode struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	Type       string            `json:"type"`
	Color      string            `json:"color"`
	Properties map[string]string `json:"properties,omitempty"`
}

type GraphEdge struct {
	ID         string            `json:"id"`
	Source     string            `json:"source"`
	Target     string            `json:"target"`
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties,omitempty"`
}

type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// LogStatus is the status of a pipeline log entry.
type LogStatus string

const (
	LogStarted    LogStatus = "started"
	LogInProgress LogStatus = "in_progress"
	LogCompleted  LogStatus = "completed"
	LogError      LogStatus = "error"
)

// PipelineLogEntry is one append-only diagnostic event. Entries of a document
// are ordered by Timestamp, then Seq.
type PipelineLogEntry struct {
	DocumentID string         `json:"document_id"`
	RunID      string         `json:"run_id,omitempty"`
	Stage      string         `json:"stage"`
	Status     LogStatus      `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Seq        int64          `json:"seq"`
	Details    map[string]any `json:"details,omitempty"`
}

// Artifact is an intermediate pipeline output kept for replay and debugging.
type Artifact struct {
	DocumentID  string    `json:"document_id"`
	Stage       string    `json:"stage"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Payload     []byte    `json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
}
