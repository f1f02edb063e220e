package graph

import (
	"context"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/schema"
)

// Client is the persistence boundary of the graph store.
//
// Entities are unique on (type, lower(name), document). Creating an entity
// that already exists merges property bags, keeping the stored value of
// every key that is already present, and returns the stored entity.
//
// Relationships are appended as given. When either endpoint does not exist
// CreateRelationship returns false and no error.
type Client interface {
	CreateDocumentNode(ctx context.Context, doc common.Document) error
	CreateEntityNode(ctx context.Context, entity common.Entity) (common.Entity, error)
	CreateRelationship(ctx context.Context, rel common.Relationship) (bool, error)

	GetDocumentGraph(ctx context.Context, documentID string) (common.Graph, error)
	GetFolderGraph(ctx context.Context, folderID string) (common.Graph, error)
	GetEntityGraph(ctx context.Context, name string, entityType string) (common.Graph, error)

	// DeleteDocumentRelationships removes the edges extracted from a
	// document and keeps its nodes.
	DeleteDocumentRelationships(ctx context.Context, documentID string) error
	DeleteDocumentData(ctx context.Context, documentID string) error
}

// RelatedDocumentCounter is implemented by clients that can count other
// documents sharing entities with a document.
type RelatedDocumentCounter interface {
	RelatedDocuments(ctx context.Context, documentID string) (int, error)
}

// SchemaRegistrar widens a schema with a relationship type met during
// extraction. *schema.Manager implements it.
type SchemaRegistrar interface {
	RegisterMissingRelationship(ctx context.Context, s *schema.Schema, relType, sourceType, targetType string) (*schema.Schema, error)
}
