package embed

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/dochub/backend/pkg/ai"
	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipeline"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipelinelog"
	"github.com/OFFIS-RIT/dochub/backend/pkg/store"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Generator embeds chunks through an AI provider in batches.
type Generator struct {
	client    ai.GraphAIClient
	batchSize int
	parallel  int
	dim       int
	limiter   *rate.Limiter
}

type GeneratorParams struct {
	Client ai.GraphAIClient
	// BatchSize is the number of chunks per provider request.
	BatchSize int
	// Parallel bounds concurrent batch requests.
	Parallel int
	// Dimensions, when set, is enforced on every returned vector.
	Dimensions int
	// RequestsPerSecond limits batch requests; zero disables the limit.
	RequestsPerSecond float64
}

const defaultBatchSize = 100

func NewGenerator(p GeneratorParams) *Generator {
	if p.BatchSize <= 0 {
		p.BatchSize = defaultBatchSize
	}
	if p.Parallel <= 0 {
		p.Parallel = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if p.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.RequestsPerSecond), 1)
	}
	return &Generator{
		client:    p.Client,
		batchSize: p.BatchSize,
		parallel:  p.Parallel,
		dim:       p.Dimensions,
		limiter:   limiter,
	}
}

// Embed returns one embedding per chunk in chunk order.
func (g *Generator) Embed(ctx context.Context, chunks []common.Chunk) ([]common.Embedding, error) {
	if g.client == nil {
		return nil, fmt.Errorf("ai client is nil")
	}
	out := make([]common.Embedding, len(chunks))
	run := pipelinelog.FromContext(ctx)

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallel)
	err := store.ChunkRange(len(chunks), g.batchSize, func(start, end int) error {
		eg.Go(func() error {
			if err := g.limiter.Wait(gCtx); err != nil {
				return err
			}
			inputs := make([][]byte, 0, end-start)
			for _, c := range chunks[start:end] {
				inputs = append(inputs, []byte(c.Text))
			}
			vectors, err := g.client.GenerateEmbeddings(gCtx, inputs)
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
			}
			if len(vectors) != len(inputs) {
				return fmt.Errorf("embed chunks %d-%d: got %d vectors for %d inputs", start, end-1, len(vectors), len(inputs))
			}
			for i, v := range vectors {
				if len(v) == 0 {
					return fmt.Errorf("empty embedding for chunk %d", chunks[start+i].Index)
				}
				if g.dim > 0 && len(v) != g.dim {
					return fmt.Errorf("embedding for chunk %d has %d dimensions, want %d", chunks[start+i].Index, len(v), g.dim)
				}
				out[start+i] = common.Embedding{ChunkIndex: chunks[start+i].Index, Vector: v}
			}
			logger.Debug("[Embed] Batch embedded", "start", start, "end", end)
			run.StepProgress(pipeline.StageEmbedding, map[string]any{"batch_start": start, "batch_end": end})
			return nil
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
