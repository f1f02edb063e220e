package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/dochub/backend/pkg/ai"
	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipeline"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipelinelog"
	"github.com/OFFIS-RIT/dochub/backend/pkg/schema"
)

// scriptedAI answers structured completions from a function of the call
// name and prompt and decodes them like the real adapters do.
type scriptedAI struct {
	mu      sync.Mutex
	prompts []string
	reply   func(name, prompt string) (string, error)
}

func (s *scriptedAI) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return s.reply("", prompt)
}

func (s *scriptedAI) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	raw, err := s.reply(name, prompt)
	if err != nil {
		return err
	}
	return ai.UnmarshalFlexible(raw, out)
}

func (s *scriptedAI) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return nil, errors.New("not implemented")
}

func (s *scriptedAI) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (s *scriptedAI) LoadModel(ctx context.Context, opts ...ai.GenerateOption) error { return nil }
func (s *scriptedAI) ResetMetrics()                                                  {}
func (s *scriptedAI) GetMetrics() ai.ModelMetrics                                    { return ai.ModelMetrics{} }

func (s *scriptedAI) extractCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.prompts {
		if strings.Contains(p, "# Text to analyze") {
			n++
		}
	}
	return n
}

const aliceChunk = "Alice works at Acme Corp as an engineer in the Berlin office of the company."

const aliceResponse = `{
  "entities": [
    {"id": "Alice", "type": "Person", "name": "Alice", "properties": [{"key": "role", "value": "engineer"}]},
    {"id": "AcmeCorp", "type": "company", "name": "Acme Corp", "properties": []}
  ],
  "relationships": [
    {"source": "Alice", "type": "works_at", "target": "AcmeCorp"}
  ]
}`

func newTestGenerator(client ai.GraphAIClient, store Client, registrar SchemaRegistrar) *Generator {
	return NewGenerator(GeneratorParams{
		AIClient:  client,
		Client:    store,
		Registrar: registrar,
	})
}

func TestProcessDocument_RegistersUnknownRelationship(t *testing.T) {
	ctx := context.Background()
	schemas := schema.NewManager(schema.NewMemoryStore())
	active, _ := schemas.Resolve(ctx, "")
	client := NewMemoryClient(nil)
	fake := &scriptedAI{reply: func(name, prompt string) (string, error) { return aliceResponse, nil }}

	g := newTestGenerator(fake, client, schemas)
	doc := common.Document{ID: "doc-1", Name: "alice.txt"}
	res, err := g.ProcessDocument(ctx, doc, []common.Chunk{{Index: 0, Text: aliceChunk}}, active)
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if res.EntityCount != 2 || res.RelationshipCount != 1 || res.SkippedRecords != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	byName := map[string]common.Entity{}
	for _, e := range res.Entities {
		byName[e.Name] = e
	}
	if byName["Alice"].Type != "Person" {
		t.Fatalf("expected Alice to be a Person, got %q", byName["Alice"].Type)
	}
	if byName["Acme Corp"].Type != "Organization" {
		t.Fatalf("expected Acme Corp to be an Organization, got %q", byName["Acme Corp"].Type)
	}

	rel := res.Relationships[0]
	if rel.Type != "works_at" || rel.Source.Name != "Alice" || rel.Target.Name != "Acme Corp" {
		t.Fatalf("unexpected relationship %+v", rel)
	}

	latest, _ := schemas.Resolve(ctx, "")
	rt, ok := latest.RelationshipType("works_at")
	if !ok {
		t.Fatal("expected works_at to be registered in the schema")
	}
	if !rt.Allows("Person", "Organization") {
		t.Fatalf("expected Person -> Organization to be allowed, got %+v", rt)
	}

	graph, _ := client.GetDocumentGraph(ctx, "doc-1")
	if len(graph.Nodes) != 3 {
		t.Fatalf("expected document and two entity nodes, got %d", len(graph.Nodes))
	}
	var appears, worksAt int
	for _, e := range graph.Edges {
		switch e.Type {
		case AppearsIn:
			appears++
		case "works_at":
			worksAt++
		}
	}
	if appears != 2 || worksAt != 1 {
		t.Fatalf("unexpected edges %+v", graph.Edges)
	}
}

func TestProcessDocument_MergesEntitiesFirstSeenWins(t *testing.T) {
	ctx := context.Background()
	responses := []string{
		`{"entities":[{"id":"Alice","type":"Person","name":"Alice","properties":[{"key":"role","value":"engineer"}]}],"relationships":[]}`,
		`{"entities":[{"id":"ALICE","type":"person","name":"ALICE","properties":{"role":"manager","team":"rockets"}}],"relationships":[]}`,
	}
	fake := &scriptedAI{reply: func(name, prompt string) (string, error) {
		if strings.Contains(prompt, "first chunk") {
			return responses[0], nil
		}
		return responses[1], nil
	}}
	client := NewMemoryClient(nil)
	g := newTestGenerator(fake, client, nil)

	chunks := []common.Chunk{
		{Index: 0, Text: "This is the first chunk, it says that Alice is an engineer."},
		{Index: 1, Text: "This is the second chunk, where ALICE is called a manager."},
	}
	res, err := g.ProcessDocument(ctx, common.Document{ID: "doc-1"}, chunks, schema.Default())
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if res.EntityCount != 1 {
		t.Fatalf("expected one merged entity, got %+v", res.Entities)
	}
	alice := res.Entities[0]
	if alice.Name != "Alice" || alice.ChunkIndex != 0 {
		t.Fatalf("expected the first occurrence to win, got %+v", alice)
	}
	if alice.Properties["role"] != "engineer" {
		t.Fatalf("expected role=engineer, got %q", alice.Properties["role"])
	}
	if alice.Properties["team"] != "rockets" {
		t.Fatalf("expected missing keys to be merged, got %+v", alice.Properties)
	}
}

func TestProcessDocument_StrictRetryOnMalformedOutput(t *testing.T) {
	ctx := context.Background()
	fake := &scriptedAI{reply: func(name, prompt string) (string, error) {
		if strings.Contains(prompt, "# IMPORTANT") {
			return aliceResponse, nil
		}
		return "I could not find any entities.", nil
	}}
	g := newTestGenerator(fake, NewMemoryClient(nil), nil)

	res, err := g.ProcessDocument(ctx, common.Document{ID: "doc-1"}, []common.Chunk{{Index: 0, Text: aliceChunk}}, schema.Default())
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if fake.extractCalls() != 2 {
		t.Fatalf("expected one retry, got %d calls", fake.extractCalls())
	}
	if res.EntityCount != 2 {
		t.Fatalf("expected entities from the retry, got %+v", res)
	}
}

func TestProcessDocument_MalformedTwiceIsPermanent(t *testing.T) {
	ctx := context.Background()
	fake := &scriptedAI{reply: func(name, prompt string) (string, error) {
		return "I could not find any entities.", nil
	}}
	client := NewMemoryClient(nil)
	g := newTestGenerator(fake, client, nil)

	_, err := g.ProcessDocument(ctx, common.Document{ID: "doc-1"}, []common.Chunk{{Index: 0, Text: aliceChunk}}, schema.Default())
	if !errors.Is(err, pipeline.ErrGraphExtraction) || !errors.Is(err, ai.ErrInvalidFormat) {
		t.Fatalf("expected graph extraction error wrapping invalid format, got %v", err)
	}
	if pipeline.IsRetryable(err) {
		t.Fatal("malformed output after the strict retry is permanent")
	}
	if fake.extractCalls() != 2 {
		t.Fatalf("expected exactly two attempts, got %d", fake.extractCalls())
	}
	graph, _ := client.GetDocumentGraph(ctx, "doc-1")
	if len(graph.Nodes) != 0 {
		t.Fatalf("nothing should be persisted, got %d nodes", len(graph.Nodes))
	}
}

func TestProcessDocument_ProviderErrorIsTransient(t *testing.T) {
	fake := &scriptedAI{reply: func(name, prompt string) (string, error) {
		return "", errors.New("503 service unavailable")
	}}
	g := newTestGenerator(fake, NewMemoryClient(nil), nil)

	_, err := g.ProcessDocument(context.Background(), common.Document{ID: "doc-1"}, []common.Chunk{{Index: 0, Text: aliceChunk}}, schema.Default())
	if !errors.Is(err, pipeline.ErrGraphExtraction) || !pipeline.IsRetryable(err) {
		t.Fatalf("expected retryable graph extraction error, got %v", err)
	}
	if fake.extractCalls() != 1 {
		t.Fatalf("provider errors are not retried with the strict prompt, got %d calls", fake.extractCalls())
	}
}

// flakyClient fails entity creation for one name.
type flakyClient struct {
	*MemoryClient
	failName string
}

func (f *flakyClient) CreateEntityNode(ctx context.Context, e common.Entity) (common.Entity, error) {
	if e.Name == f.failName {
		return common.Entity{}, errors.New("unique violation")
	}
	return f.MemoryClient.CreateEntityNode(ctx, e)
}

func TestProcessDocument_PersistenceFailuresAreSkipped(t *testing.T) {
	ctx := context.Background()
	resp := `{
	  "entities": [
	    {"id": "Alice", "type": "Person", "name": "Alice"},
	    {"id": "Bob", "type": "Person", "name": "Bob"},
	    {"id": "AcmeCorp", "type": "Organization", "name": "Acme Corp"}
	  ],
	  "relationships": [
	    {"source": "Alice", "type": "knows", "target": "Bob"},
	    {"source": "Alice", "type": "works for", "target": "AcmeCorp"}
	  ]
	}`
	fake := &scriptedAI{reply: func(name, prompt string) (string, error) { return resp, nil }}
	client := &flakyClient{MemoryClient: NewMemoryClient(nil), failName: "Bob"}
	g := newTestGenerator(fake, client, nil)

	res, err := g.ProcessDocument(ctx, common.Document{ID: "doc-1"}, []common.Chunk{{Index: 0, Text: aliceChunk}}, schema.Default())
	if err != nil {
		t.Fatalf("persistence failures must not abort the document: %v", err)
	}
	if res.SkippedRecords != 2 {
		t.Fatalf("expected Bob and the KNOWS edge to be skipped, got %d", res.SkippedRecords)
	}
	if res.EntityCount != 2 || res.RelationshipCount != 1 {
		t.Fatalf("unexpected counts %+v", res)
	}
	if res.Relationships[0].Type != "WORKS_FOR" {
		t.Fatalf("expected synonym to resolve to WORKS_FOR, got %q", res.Relationships[0].Type)
	}
}

func TestProcessDocument_ClassificationIsAdvisory(t *testing.T) {
	tests := []struct {
		name     string
		classify func() (string, error)
		wantType string
	}{
		{
			name:     "classification fails",
			classify: func() (string, error) { return "", errors.New("timeout") },
			wantType: "",
		},
		{
			name:     "low confidence",
			classify: func() (string, error) { return `{"document_type":"contract","confidence":0.2}`, nil },
			wantType: "",
		},
		{
			name:     "accepted",
			classify: func() (string, error) { return `{"document_type":"Contract","confidence":0.9}`, nil },
			wantType: "contract",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &scriptedAI{reply: func(name, prompt string) (string, error) {
				if name == "classify_document" {
					return tt.classify()
				}
				return aliceResponse, nil
			}}
			g := NewGenerator(GeneratorParams{AIClient: fake, Client: NewMemoryClient(nil), Classify: true})

			res, err := g.ProcessDocument(context.Background(), common.Document{ID: "doc-1", Name: "nda.pdf"}, []common.Chunk{{Index: 0, Text: aliceChunk}}, schema.Default())
			if err != nil {
				t.Fatalf("ProcessDocument: %v", err)
			}
			if res.DocumentType != tt.wantType {
				t.Fatalf("expected document type %q, got %q", tt.wantType, res.DocumentType)
			}
			if res.EntityCount != 2 {
				t.Fatalf("extraction must run regardless of classification, got %+v", res)
			}
		})
	}
}

func TestProcessDocument_SkipsShortChunksAndLogsProgress(t *testing.T) {
	store := pipelinelog.NewMemoryStore()
	logs := pipelinelog.New(store, pipelinelog.WithArtifacts(store.Artifacts(), true))
	ctx := pipelinelog.WithRun(context.Background(), logs.For("doc-1", "run-1"))

	fake := &scriptedAI{reply: func(name, prompt string) (string, error) { return aliceResponse, nil }}
	g := newTestGenerator(fake, NewMemoryClient(nil), nil)

	chunks := []common.Chunk{
		{Index: 0, Text: aliceChunk},
		{Index: 1, Text: "Page 2"},
	}
	res, err := g.ProcessDocument(ctx, common.Document{ID: "doc-1"}, chunks, schema.Default())
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if res.SkippedChunks != 1 || fake.extractCalls() != 1 {
		t.Fatalf("expected the short chunk to be skipped, got %+v after %d calls", res, fake.extractCalls())
	}

	entries, _ := store.List(context.Background(), "doc-1")
	progress := 0
	for _, e := range entries {
		if e.Stage == pipeline.StageGraph && e.Status == common.LogInProgress {
			progress++
		}
	}
	if progress != 1 {
		t.Fatalf("expected one progress entry, got %d", progress)
	}

	arts, _ := store.Artifacts().List(context.Background(), "doc-1", pipeline.StageGraph)
	names := map[string]bool{}
	for _, a := range arts {
		names[a.Name] = true
	}
	for _, want := range []string{"llm_request_0.json", "llm_response_0.json", "graph_data.json"} {
		if !names[want] {
			t.Fatalf("missing artifact %s, got %v", want, names)
		}
	}
}

func TestProcessDocument_RerunKeepsFirstSeenProperties(t *testing.T) {
	ctx := context.Background()
	client := NewMemoryClient(nil)
	withoutRole := strings.Replace(aliceResponse, `{"key": "role", "value": "engineer"}`, "", 1)
	replies := []string{aliceResponse, withoutRole}
	run := 0
	fake := &scriptedAI{reply: func(name, prompt string) (string, error) { return replies[run], nil }}
	g := newTestGenerator(fake, client, nil)
	doc := common.Document{ID: "doc-1"}
	chunks := []common.Chunk{{Index: 0, Text: aliceChunk}}

	for run = range replies {
		if _, err := g.ProcessDocument(ctx, doc, chunks, schema.Default()); err != nil {
			t.Fatalf("run %d: ProcessDocument: %v", run, err)
		}
	}

	graph, _ := client.GetDocumentGraph(ctx, "doc-1")
	if len(graph.Nodes) != 3 || len(graph.Edges) != 3 {
		t.Fatalf("expected a single copy of the graph, got %d nodes and %d edges", len(graph.Nodes), len(graph.Edges))
	}
	var alice *common.GraphNode
	for i := range graph.Nodes {
		if graph.Nodes[i].Label == "Alice" {
			alice = &graph.Nodes[i]
		}
	}
	if alice == nil {
		t.Fatal("Alice missing after rerun")
	}
	if alice.Properties["role"] != "engineer" {
		t.Fatalf("rerun lost first-seen role, properties = %v", alice.Properties)
	}
}
