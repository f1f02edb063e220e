package pipelinelog

import (
	"context"
	"sync"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
)

// MemoryStore is an in-process Sink and ArtifactStore.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string][]common.PipelineLogEntry
	artifacts map[string][]common.Artifact
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:   map[string][]common.PipelineLogEntry{},
		artifacts: map[string][]common.Artifact{},
	}
}

func (m *MemoryStore) Append(ctx context.Context, entry common.PipelineLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.DocumentID] = append(m.entries[entry.DocumentID], entry)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, documentID string) ([]common.PipelineLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]common.PipelineLogEntry(nil), m.entries[documentID]...), nil
}

func (m *MemoryStore) Put(ctx context.Context, artifact common.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.artifacts[artifact.DocumentID]
	for i, a := range list {
		if a.Stage == artifact.Stage && a.Name == artifact.Name {
			list[i] = artifact
			return nil
		}
	}
	m.artifacts[artifact.DocumentID] = append(list, artifact)
	return nil
}

// Artifacts exposes the artifact half of the store as an ArtifactStore.
func (m *MemoryStore) Artifacts() ArtifactStore {
	return memoryArtifacts{m}
}

type memoryArtifacts struct{ m *MemoryStore }

func (a memoryArtifacts) Put(ctx context.Context, artifact common.Artifact) error {
	return a.m.Put(ctx, artifact)
}

func (a memoryArtifacts) List(ctx context.Context, documentID string, stage string) ([]common.Artifact, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()

	var out []common.Artifact
	for _, art := range a.m.artifacts[documentID] {
		if stage == "" || art.Stage == stage {
			out = append(out, art)
		}
	}
	return out, nil
}
