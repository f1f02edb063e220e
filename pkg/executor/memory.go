package executor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipeline"
)

// MemoryDocumentStore is a DocumentStore kept in process memory. It backs
// inline runs of the CLI and tests.
type MemoryDocumentStore struct {
	mu   sync.Mutex
	docs map[string]common.Document
	now  func() time.Time

	terminalWrites int
}

func NewMemoryDocumentStore(docs ...common.Document) *MemoryDocumentStore {
	m := &MemoryDocumentStore{docs: map[string]common.Document{}, now: time.Now}
	for _, d := range docs {
		m.Put(d)
	}
	return m
}

// SetClock replaces the time source used for processing timestamps.
func (m *MemoryDocumentStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryDocumentStore) Put(doc common.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.Status == "" {
		doc.Status = common.StatusPending
	}
	m.docs[doc.ID] = doc
}

func (m *MemoryDocumentStore) GetDocument(ctx context.Context, id string) (common.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return common.Document{}, ErrNotFound
	}
	return doc, nil
}

func (m *MemoryDocumentStore) ClaimProcessing(ctx context.Context, id string, runID string) (common.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return common.Document{}, ErrNotFound
	}
	if doc.Status == common.StatusProcessing {
		return doc, ErrAlreadyProcessing
	}
	now := m.now()
	doc.Status = common.StatusProcessing
	doc.RunID = runID
	doc.ErrorStage = ""
	doc.ErrorMessage = ""
	doc.ProcessingStartedAt = &now
	doc.UpdatedAt = now
	m.docs[id] = doc
	return doc, nil
}

func (m *MemoryDocumentStore) FinishRun(ctx context.Context, id string, runID string, status common.DocumentStatus, stage string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	if doc.Status != common.StatusProcessing || doc.RunID != runID {
		return pipeline.ErrConcurrencyConflict
	}
	doc.Status = status
	doc.ErrorStage = stage
	doc.ErrorMessage = message
	doc.UpdatedAt = m.now()
	m.docs[id] = doc
	m.terminalWrites++
	return nil
}

func (m *MemoryDocumentStore) MarkStuck(ctx context.Context, olderThan time.Time, message string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, doc := range m.docs {
		if doc.Status != common.StatusProcessing || doc.ProcessingStartedAt == nil {
			continue
		}
		if !doc.ProcessingStartedAt.Before(olderThan) {
			continue
		}
		doc.Status = common.StatusError
		doc.ErrorStage = ""
		doc.ErrorMessage = message
		doc.UpdatedAt = m.now()
		m.docs[id] = doc
		m.terminalWrites++
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// TerminalWrites counts the successful transitions out of processing.
func (m *MemoryDocumentStore) TerminalWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminalWrites
}
