package store

import (
	"context"
	"sync"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
)

// MemoryIndexer keeps indexed chunks in process memory. Indexing a document
// replaces its previous chunks.
type MemoryIndexer struct {
	mu     sync.Mutex
	chunks map[string][]common.Chunk
	vecs   map[string][]common.Embedding
}

func NewMemoryIndexer() *MemoryIndexer {
	return &MemoryIndexer{
		chunks: map[string][]common.Chunk{},
		vecs:   map[string][]common.Embedding{},
	}
}

func (m *MemoryIndexer) Index(ctx context.Context, doc common.Document, chunks []common.Chunk, embeddings []common.Embedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[doc.ID] = append([]common.Chunk(nil), chunks...)
	m.vecs[doc.ID] = append([]common.Embedding(nil), embeddings...)
	return nil
}

func (m *MemoryIndexer) CountChunks(ctx context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks[documentID]), nil
}
