package graph

import (
	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/schema"
)

// GraphBuilder assembles the node/edge shape handed to visualizers. Nodes
// and edges are added once; order follows the first add.
type GraphBuilder struct {
	colors *schema.Schema
	graph  common.Graph
	nodes  map[string]bool
	edges  map[string]bool
}

func NewGraphBuilder(colors *schema.Schema) *GraphBuilder {
	if colors == nil {
		colors = schema.Default()
	}
	return &GraphBuilder{
		colors: colors,
		graph:  common.Graph{Nodes: []common.GraphNode{}, Edges: []common.GraphEdge{}},
		nodes:  make(map[string]bool),
		edges:  make(map[string]bool),
	}
}

func (b *GraphBuilder) Document(doc common.Document) {
	if doc.ID == "" || b.nodes[doc.ID] {
		return
	}
	b.nodes[doc.ID] = true
	props := map[string]string{}
	if doc.FolderID != "" {
		props["folder_id"] = doc.FolderID
	}
	label := doc.Name
	if label == "" {
		label = doc.ID
	}
	b.graph.Nodes = append(b.graph.Nodes, common.GraphNode{
		ID:         doc.ID,
		Label:      label,
		Type:       DocumentNodeType,
		Color:      b.colors.ColorFor(DocumentNodeType),
		Properties: props,
	})
}

func (b *GraphBuilder) Entity(e common.Entity) {
	if e.ID == "" || b.nodes[e.ID] {
		return
	}
	b.nodes[e.ID] = true
	props := make(map[string]string, len(e.Properties)+1)
	for k, v := range e.Properties {
		props[k] = v
	}
	props["document_id"] = e.DocumentID
	b.graph.Nodes = append(b.graph.Nodes, common.GraphNode{
		ID:         e.ID,
		Label:      e.Name,
		Type:       e.Type,
		Color:      b.colors.ColorFor(e.Type),
		Properties: props,
	})
}

func (b *GraphBuilder) AppearsIn(e common.Entity, doc common.Document) {
	if doc.ID == "" {
		return
	}
	b.Document(doc)
	b.Edge(common.GraphEdge{
		ID:     e.ID + "_" + AppearsIn,
		Source: e.ID,
		Target: doc.ID,
		Type:   AppearsIn,
	})
}

func (b *GraphBuilder) Relationship(r common.Relationship, sourceID, targetID string) {
	b.Edge(common.GraphEdge{
		ID:         r.ID,
		Source:     sourceID,
		Target:     targetID,
		Type:       r.Type,
		Properties: r.Properties,
	})
}

func (b *GraphBuilder) Edge(e common.GraphEdge) {
	if e.ID == "" || b.edges[e.ID] {
		return
	}
	b.edges[e.ID] = true
	b.graph.Edges = append(b.graph.Edges, e)
}

func (b *GraphBuilder) Graph() common.Graph {
	return b.graph
}
