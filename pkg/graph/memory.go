package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"
	"github.com/OFFIS-RIT/dochub/backend/pkg/schema"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// AppearsIn links an entity node to the document it was extracted from.
const AppearsIn = "APPEARS_IN"

// DocumentNodeType is the node type of documents in retrieved graphs.
const DocumentNodeType = "Document"

// MemoryClient is a Client kept in process memory. It backs local runs of
// the CLI and tests.
type MemoryClient struct {
	mu            sync.RWMutex
	colors        *schema.Schema
	documents     map[string]common.Document
	docOrder      []string
	entities      map[common.EntityKey]*common.Entity
	entityOrder   []common.EntityKey
	relationships []common.Relationship
}

func NewMemoryClient(colors *schema.Schema) *MemoryClient {
	if colors == nil {
		colors = schema.Default()
	}
	return &MemoryClient{
		colors:    colors,
		documents: make(map[string]common.Document),
		entities:  make(map[common.EntityKey]*common.Entity),
	}
}

func (m *MemoryClient) CreateDocumentNode(ctx context.Context, doc common.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[doc.ID]; !ok {
		m.docOrder = append(m.docOrder, doc.ID)
	}
	m.documents[doc.ID] = doc
	return nil
}

func (m *MemoryClient) CreateEntityNode(ctx context.Context, entity common.Entity) (common.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.documents[entity.DocumentID]; !ok {
		return common.Entity{}, fmt.Errorf("document %s does not exist", entity.DocumentID)
	}
	key := entity.Key().Normalized()
	if existing, ok := m.entities[key]; ok {
		for k, v := range entity.Properties {
			if _, present := existing.Properties[k]; !present {
				existing.Properties[k] = v
			}
		}
		return cloneEntity(*existing), nil
	}

	stored := cloneEntity(entity)
	if stored.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return common.Entity{}, fmt.Errorf("failed to generate ID for entity: %w", err)
		}
		stored.ID = id
	}
	if stored.Properties == nil {
		stored.Properties = map[string]string{}
	}
	m.entities[key] = &stored
	m.entityOrder = append(m.entityOrder, key)
	return cloneEntity(stored), nil
}

func (m *MemoryClient) CreateRelationship(ctx context.Context, rel common.Relationship) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, okSrc := m.entities[rel.Source.Normalized()]
	tgt, okTgt := m.entities[rel.Target.Normalized()]
	if !okSrc || !okTgt {
		logger.Warn("[Graph] Relationship endpoint missing, skipping", "type", rel.Type, "source", rel.Source.Name, "target", rel.Target.Name)
		return false, nil
	}
	if rel.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return false, fmt.Errorf("failed to generate ID for relationship: %w", err)
		}
		rel.ID = id
	}
	rel.Source = src.Key()
	rel.Target = tgt.Key()
	m.relationships = append(m.relationships, rel)
	return true, nil
}

func (m *MemoryClient) GetDocumentGraph(ctx context.Context, documentID string) (common.Graph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graphOf(func(docID string) bool { return docID == documentID }), nil
}

func (m *MemoryClient) GetFolderGraph(ctx context.Context, folderID string) (common.Graph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graphOf(func(docID string) bool {
		doc, ok := m.documents[docID]
		return ok && doc.FolderID == folderID
	}), nil
}

// GetEntityGraph returns every entity named name (and of entityType, when
// set) across documents, the documents they appear in and their direct
// neighbours.
func (m *MemoryClient) GetEntityGraph(ctx context.Context, name string, entityType string) (common.Graph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b := NewGraphBuilder(m.colors)
	matched := make(map[common.EntityKey]bool)
	for _, key := range m.entityOrder {
		e := m.entities[key]
		if !strings.EqualFold(e.Name, strings.TrimSpace(name)) {
			continue
		}
		if entityType != "" && !strings.EqualFold(e.Type, entityType) {
			continue
		}
		matched[key] = true
		b.Entity(*e)
		b.AppearsIn(*e, m.documents[e.DocumentID])
	}
	for _, r := range m.relationships {
		src, tgt := r.Source.Normalized(), r.Target.Normalized()
		if !matched[src] && !matched[tgt] {
			continue
		}
		b.Entity(*m.entities[src])
		b.Entity(*m.entities[tgt])
		b.Relationship(r, m.entities[src].ID, m.entities[tgt].ID)
	}
	return b.Graph(), nil
}

func (m *MemoryClient) DeleteDocumentRelationships(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropRelationships(documentID)
	return nil
}

func (m *MemoryClient) dropRelationships(documentID string) {
	rels := m.relationships[:0]
	for _, r := range m.relationships {
		if r.DocumentID != documentID {
			rels = append(rels, r)
		}
	}
	m.relationships = rels
}

func (m *MemoryClient) DeleteDocumentData(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dropRelationships(documentID)

	order := m.entityOrder[:0]
	for _, key := range m.entityOrder {
		if key.DocumentID == documentID {
			delete(m.entities, key)
			continue
		}
		order = append(order, key)
	}
	m.entityOrder = order

	if _, ok := m.documents[documentID]; ok {
		delete(m.documents, documentID)
		docs := m.docOrder[:0]
		for _, id := range m.docOrder {
			if id != documentID {
				docs = append(docs, id)
			}
		}
		m.docOrder = docs
	}
	return nil
}

// RelatedDocuments counts other documents holding an entity with the same
// type and name as one of documentID's entities.
func (m *MemoryClient) RelatedDocuments(ctx context.Context, documentID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	own := make(map[[2]string]bool)
	for _, key := range m.entityOrder {
		if key.DocumentID == documentID {
			own[[2]string{key.Type, key.Name}] = true
		}
	}
	related := make(map[string]bool)
	for _, key := range m.entityOrder {
		if key.DocumentID != documentID && own[[2]string{key.Type, key.Name}] {
			related[key.DocumentID] = true
		}
	}
	return len(related), nil
}

func (m *MemoryClient) graphOf(include func(docID string) bool) common.Graph {
	b := NewGraphBuilder(m.colors)
	for _, id := range m.docOrder {
		if include(id) {
			b.Document(m.documents[id])
		}
	}
	for _, key := range m.entityOrder {
		if !include(key.DocumentID) {
			continue
		}
		e := m.entities[key]
		b.Entity(*e)
		b.AppearsIn(*e, m.documents[e.DocumentID])
	}
	for _, r := range m.relationships {
		if !include(r.DocumentID) {
			continue
		}
		b.Relationship(r, m.entities[r.Source.Normalized()].ID, m.entities[r.Target.Normalized()].ID)
	}
	return b.Graph()
}

func cloneEntity(e common.Entity) common.Entity {
	if e.Properties != nil {
		props := make(map[string]string, len(e.Properties))
		for k, v := range e.Properties {
			props[k] = v
		}
		e.Properties = props
	}
	return e
}
