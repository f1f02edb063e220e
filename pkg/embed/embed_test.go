package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/dochub/backend/pkg/ai"
	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
)

type batchAI struct {
	mu      sync.Mutex
	batches []int
	dim     int
	err     error
	short   bool
}

func (b *batchAI) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", errors.New("not implemented")
}

func (b *batchAI) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return errors.New("not implemented")
}

func (b *batchAI) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	v, err := b.GenerateEmbeddings(ctx, [][]byte{input})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (b *batchAI) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	b.mu.Lock()
	b.batches = append(b.batches, len(inputs))
	b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	n := len(inputs)
	if b.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, b.dim)
		v[0] = float32(len(inputs[i]))
		out[i] = v
	}
	return out, nil
}

func (b *batchAI) LoadModel(ctx context.Context, opts ...ai.GenerateOption) error { return nil }
func (b *batchAI) ResetMetrics()                                                  {}
func (b *batchAI) GetMetrics() ai.ModelMetrics                                    { return ai.ModelMetrics{} }

func makeChunks(n int) []common.Chunk {
	chunks := make([]common.Chunk, n)
	for i := range chunks {
		chunks[i] = common.Chunk{Index: i, Text: fmt.Sprintf("chunk number %d", i)}
	}
	return chunks
}

func TestGenerator_BatchesInOrder(t *testing.T) {
	client := &batchAI{dim: 4}
	g := NewGenerator(GeneratorParams{Client: client, BatchSize: 100, Parallel: 3, Dimensions: 4})

	chunks := makeChunks(250)
	got, err := g.Embed(context.Background(), chunks)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != len(chunks) {
		t.Fatalf("expected %d embeddings, got %d", len(chunks), len(got))
	}
	for i, e := range got {
		if e.ChunkIndex != i {
			t.Fatalf("embedding %d belongs to chunk %d", i, e.ChunkIndex)
		}
		if e.Vector[0] != float32(len(chunks[i].Text)) {
			t.Fatalf("embedding %d is out of order", i)
		}
	}

	sizes := map[int]int{}
	for _, n := range client.batches {
		sizes[n]++
	}
	if !reflect.DeepEqual(sizes, map[int]int{100: 2, 50: 1}) {
		t.Fatalf("unexpected batch sizes %v", client.batches)
	}
}

func TestGenerator_Errors(t *testing.T) {
	tests := []struct {
		name   string
		client *batchAI
		dim    int
	}{
		{"provider failure", &batchAI{dim: 4, err: errors.New("429 too many requests")}, 4},
		{"missing vectors", &batchAI{dim: 4, short: true}, 4},
		{"wrong dimensions", &batchAI{dim: 3}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(GeneratorParams{Client: tt.client, Dimensions: tt.dim})
			if _, err := g.Embed(context.Background(), makeChunks(3)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestHash_Deterministic(t *testing.T) {
	h := NewHash(64)
	chunks := []common.Chunk{
		{Index: 0, Text: "Alice works at Acme Corp."},
		{Index: 1, Text: "Alice works at Acme Corp."},
		{Index: 2, Text: "Rockets are built in Texas."},
		{Index: 3, Text: "   "},
	}
	got, err := h.Embed(context.Background(), chunks)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if !reflect.DeepEqual(got[0].Vector, got[1].Vector) {
		t.Fatal("equal texts must embed equally")
	}
	if reflect.DeepEqual(got[0].Vector, got[2].Vector) {
		t.Fatal("different texts should embed differently")
	}
	for i, e := range got {
		if len(e.Vector) != 64 {
			t.Fatalf("embedding %d has %d dimensions", i, len(e.Vector))
		}
		var norm float64
		for _, x := range e.Vector {
			norm += float64(x) * float64(x)
		}
		if math.Abs(norm-1) > 1e-4 {
			t.Fatalf("embedding %d is not unit length: %f", i, norm)
		}
	}
}
