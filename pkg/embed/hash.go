package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
)

// Hash produces deterministic unit vectors from the words of a chunk
// without calling a provider. Chunks sharing words get similar vectors.
type Hash struct {
	dim int
}

const defaultHashDimensions = 1536

func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = defaultHashDimensions
	}
	return &Hash{dim: dim}
}

func (h *Hash) Embed(ctx context.Context, chunks []common.Chunk) ([]common.Embedding, error) {
	out := make([]common.Embedding, len(chunks))
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = common.Embedding{ChunkIndex: c.Index, Vector: h.vector(c.Text)}
	}
	return out, nil
}

func (h *Hash) vector(text string) []float32 {
	v := make([]float32, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(words) == 0 {
		v[0] = 1
		return v
	}

	for _, w := range words {
		f := fnv.New64a()
		_, _ = f.Write([]byte(w))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dim))
		if sum&(1<<63) != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}
