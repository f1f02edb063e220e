package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/dochub/backend/internal/util"
	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/graph"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"
	"github.com/OFFIS-RIT/dochub/backend/pkg/schema"

	pgxv5 "github.com/jackc/pgx/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// GraphClient persists the knowledge graph in the graph_documents, entities
// and relationships tables. The unique index on (type, lower(name),
// document_id) keeps concurrent writers from duplicating an entity.
type GraphClient struct {
	conn   pgxIConn
	colors *schema.Schema
}

func NewGraphClient(conn pgxIConn, colors *schema.Schema) *GraphClient {
	if colors == nil {
		colors = schema.Default()
	}
	return &GraphClient{conn: conn, colors: colors}
}

func (g *GraphClient) CreateDocumentNode(ctx context.Context, doc common.Document) error {
	_, err := g.conn.Exec(ctx, upsertGraphDocumentSQL, doc.ID, doc.Name, nullable(doc.FolderID))
	return err
}

// CreateEntityNode inserts the entity or merges it into the stored one.
// Stored property values win over the new ones.
func (g *GraphClient) CreateEntityNode(ctx context.Context, entity common.Entity) (common.Entity, error) {
	if entity.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return common.Entity{}, fmt.Errorf("failed to generate ID for entity: %w", err)
		}
		entity.ID = id
	}
	props := util.SanitizeProperties(entity.Properties)

	row := g.conn.QueryRow(ctx, upsertEntitySQL,
		entity.ID,
		entity.Type,
		util.SanitizePostgresText(entity.Name),
		entity.DocumentID,
		entity.ChunkIndex,
		props,
	)
	var stored common.Entity
	if err := row.Scan(&stored.ID, &stored.Type, &stored.Name, &stored.DocumentID, &stored.ChunkIndex, &stored.Properties); err != nil {
		return common.Entity{}, err
	}
	return stored, nil
}

// CreateRelationship appends an edge between two stored entities. It
// reports false without an error when an endpoint does not exist.
func (g *GraphClient) CreateRelationship(ctx context.Context, rel common.Relationship) (bool, error) {
	if rel.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return false, fmt.Errorf("failed to generate ID for relationship: %w", err)
		}
		rel.ID = id
	}
	props := util.SanitizeProperties(rel.Properties)

	tag, err := g.conn.Exec(ctx, insertRelationshipSQL,
		rel.ID,
		rel.Type,
		rel.Source.Type, util.SanitizePostgresText(rel.Source.Name), rel.Source.DocumentID,
		rel.Target.Type, util.SanitizePostgresText(rel.Target.Name), rel.Target.DocumentID,
		rel.DocumentID,
		rel.ChunkIndex,
		props,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		logger.Warn("[Graph] Relationship endpoint missing, skipping", "type", rel.Type, "source", rel.Source.Name, "target", rel.Target.Name)
		return false, nil
	}
	return true, nil
}

func (g *GraphClient) GetDocumentGraph(ctx context.Context, documentID string) (common.Graph, error) {
	return g.scopedGraph(ctx, graphScope{
		documents:     selectGraphDocumentSQL,
		entities:      selectDocumentEntitiesSQL,
		relationships: selectDocumentRelationshipsSQL,
	}, documentID)
}

func (g *GraphClient) GetFolderGraph(ctx context.Context, folderID string) (common.Graph, error) {
	return g.scopedGraph(ctx, graphScope{
		documents:     selectFolderDocumentsSQL,
		entities:      selectFolderEntitiesSQL,
		relationships: selectFolderRelationshipsSQL,
	}, folderID)
}

type graphScope struct {
	documents     string
	entities      string
	relationships string
}

func (g *GraphClient) scopedGraph(ctx context.Context, scope graphScope, arg string) (common.Graph, error) {
	docs, err := g.queryDocuments(ctx, scope.documents, arg)
	if err != nil {
		return common.Graph{}, err
	}
	entities, err := g.queryEntities(ctx, scope.entities, arg)
	if err != nil {
		return common.Graph{}, err
	}
	rels, err := g.queryRelationships(ctx, scope.relationships, arg)
	if err != nil {
		return common.Graph{}, err
	}
	return buildGraph(g.colors, docs, entities, rels, nil), nil
}

// GetEntityGraph returns the entities named name (and of entityType, when
// set) across all documents, their documents and their direct neighbours.
func (g *GraphClient) GetEntityGraph(ctx context.Context, name string, entityType string) (common.Graph, error) {
	matched, err := g.queryEntities(ctx, selectEntitiesByNameSQL, name, entityType)
	if err != nil {
		return common.Graph{}, err
	}
	if len(matched) == 0 {
		return graph.NewGraphBuilder(g.colors).Graph(), nil
	}

	ids := make([]string, len(matched))
	docIDs := make([]string, 0, len(matched))
	seenDoc := map[string]bool{}
	for i, e := range matched {
		ids[i] = e.ID
		if !seenDoc[e.DocumentID] {
			seenDoc[e.DocumentID] = true
			docIDs = append(docIDs, e.DocumentID)
		}
	}

	docs, err := g.queryDocuments(ctx, selectGraphDocumentsByIDSQL, docIDs)
	if err != nil {
		return common.Graph{}, err
	}
	rels, err := g.queryRelationships(ctx, selectEntityRelationshipsSQL, ids)
	if err != nil {
		return common.Graph{}, err
	}
	neighbours, err := g.queryEntities(ctx, selectNeighbourEntitiesSQL, ids)
	if err != nil {
		return common.Graph{}, err
	}

	appearsIn := make(map[string]bool, len(matched))
	for _, e := range matched {
		appearsIn[e.ID] = true
	}
	return buildGraph(g.colors, docs, append(matched, neighbours...), rels, appearsIn), nil
}

func (g *GraphClient) DeleteDocumentRelationships(ctx context.Context, documentID string) error {
	_, err := g.conn.Exec(ctx, deleteDocumentRelationshipsSQL, documentID)
	return err
}

// DeleteDocumentData removes the document node; entities and edges of the
// document follow through cascading foreign keys.
func (g *GraphClient) DeleteDocumentData(ctx context.Context, documentID string) error {
	_, err := g.conn.Exec(ctx, deleteGraphDocumentSQL, documentID)
	return err
}

func (g *GraphClient) RelatedDocuments(ctx context.Context, documentID string) (int, error) {
	var n int
	if err := g.conn.QueryRow(ctx, countRelatedDocumentsSQL, documentID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// storedRelationship is a relationship row with resolved endpoint ids.
type storedRelationship struct {
	common.Relationship
	sourceID string
	targetID string
}

func (g *GraphClient) queryDocuments(ctx context.Context, sql string, args ...any) ([]common.Document, error) {
	rows, err := g.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Document, error) {
		var d common.Document
		var folder *string
		err := row.Scan(&d.ID, &d.Name, &folder)
		if folder != nil {
			d.FolderID = *folder
		}
		return d, err
	})
}

func (g *GraphClient) queryEntities(ctx context.Context, sql string, args ...any) ([]common.Entity, error) {
	rows, err := g.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Entity, error) {
		var e common.Entity
		err := row.Scan(&e.ID, &e.Type, &e.Name, &e.DocumentID, &e.ChunkIndex, &e.Properties)
		return e, err
	})
}

func (g *GraphClient) queryRelationships(ctx context.Context, sql string, args ...any) ([]storedRelationship, error) {
	rows, err := g.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (storedRelationship, error) {
		var r storedRelationship
		err := row.Scan(&r.ID, &r.Type, &r.sourceID, &r.targetID, &r.DocumentID, &r.ChunkIndex, &r.Properties)
		return r, err
	})
}

// buildGraph links entities to their documents. When appearsIn is set only
// the listed entities get an APPEARS_IN edge.
func buildGraph(
	colors *schema.Schema,
	docs []common.Document,
	entities []common.Entity,
	rels []storedRelationship,
	appearsIn map[string]bool,
) common.Graph {
	b := graph.NewGraphBuilder(colors)
	byID := make(map[string]common.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
		b.Document(d)
	}
	for _, e := range entities {
		b.Entity(e)
		if appearsIn == nil || appearsIn[e.ID] {
			b.AppearsIn(e, byID[e.DocumentID])
		}
	}
	for _, r := range rels {
		b.Relationship(r.Relationship, r.sourceID, r.targetID)
	}
	return b.Graph()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

const upsertGraphDocumentSQL = `
INSERT INTO graph_documents (document_id, name, folder_id)
VALUES ($1, $2, $3)
ON CONFLICT (document_id) DO UPDATE
SET name = EXCLUDED.name,
    folder_id = EXCLUDED.folder_id;
`

const upsertEntitySQL = `
INSERT INTO entities (id, type, name, document_id, chunk_index, properties)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (type, lower(name), document_id) DO UPDATE
SET properties = EXCLUDED.properties || entities.properties
RETURNING id, type, name, document_id, chunk_index, properties;
`

const insertRelationshipSQL = `
INSERT INTO relationships (id, type, source_id, target_id, document_id, chunk_index, properties)
SELECT $1, $2, s.id, t.id, $9, $10, $11
FROM entities s, entities t
WHERE s.type = $3 AND lower(s.name) = lower($4) AND s.document_id = $5
  AND t.type = $6 AND lower(t.name) = lower($7) AND t.document_id = $8;
`

const deleteDocumentRelationshipsSQL = `
DELETE FROM relationships WHERE document_id = $1;
`

const deleteGraphDocumentSQL = `
DELETE FROM graph_documents WHERE document_id = $1;
`

const selectGraphDocumentSQL = `
SELECT document_id, name, folder_id FROM graph_documents WHERE document_id = $1;
`

const selectGraphDocumentsByIDSQL = `
SELECT document_id, name, folder_id FROM graph_documents
WHERE document_id = ANY($1::text[])
ORDER BY created_at, document_id;
`

const selectFolderDocumentsSQL = `
SELECT document_id, name, folder_id FROM graph_documents
WHERE folder_id = $1
ORDER BY created_at, document_id;
`

const selectDocumentEntitiesSQL = `
SELECT id, type, name, document_id, chunk_index, properties FROM entities
WHERE document_id = $1
ORDER BY created_at, id;
`

const selectFolderEntitiesSQL = `
SELECT e.id, e.type, e.name, e.document_id, e.chunk_index, e.properties
FROM entities e
JOIN graph_documents d ON d.document_id = e.document_id
WHERE d.folder_id = $1
ORDER BY e.created_at, e.id;
`

const selectEntitiesByNameSQL = `
SELECT id, type, name, document_id, chunk_index, properties FROM entities
WHERE lower(name) = lower(btrim($1))
  AND ($2 = '' OR lower(type) = lower($2))
ORDER BY created_at, id;
`

const selectNeighbourEntitiesSQL = `
SELECT DISTINCT e.id, e.type, e.name, e.document_id, e.chunk_index, e.properties
FROM relationships r
JOIN entities e ON e.id IN (r.source_id, r.target_id)
WHERE (r.source_id = ANY($1::text[]) OR r.target_id = ANY($1::text[]))
  AND NOT e.id = ANY($1::text[]);
`

const selectDocumentRelationshipsSQL = `
SELECT id, type, source_id, target_id, document_id, chunk_index, properties FROM relationships
WHERE document_id = $1
ORDER BY created_at, id;
`

const selectFolderRelationshipsSQL = `
SELECT r.id, r.type, r.source_id, r.target_id, r.document_id, r.chunk_index, r.properties
FROM relationships r
JOIN graph_documents d ON d.document_id = r.document_id
WHERE d.folder_id = $1
ORDER BY r.created_at, r.id;
`

const selectEntityRelationshipsSQL = `
SELECT id, type, source_id, target_id, document_id, chunk_index, properties FROM relationships
WHERE source_id = ANY($1::text[]) OR target_id = ANY($1::text[])
ORDER BY created_at, id;
`

const countRelatedDocumentsSQL = `
SELECT count(DISTINCT o.document_id)
FROM entities e
JOIN entities o
  ON o.type = e.type
 AND lower(o.name) = lower(e.name)
 AND o.document_id <> e.document_id
WHERE e.document_id = $1;
`
