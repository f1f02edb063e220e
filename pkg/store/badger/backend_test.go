package badger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipelinelog"
	"github.com/OFFIS-RIT/dochub/backend/pkg/schema"
	"github.com/OFFIS-RIT/dochub/backend/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ store.Backend = (*Backend)(nil)

func openMemory(t *testing.T) *Backend {
	t.Helper()
	b, err := Open("", true)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestOpen_FileSystem(t *testing.T) {
	b, err := Open(t.TempDir()+"/logs", false)
	require.NoError(t, err)
	assert.False(t, b.IsClosed())
	require.NoError(t, b.Close())
	assert.True(t, b.IsClosed())
}

func TestLogSink_OrdersByTimestampThenSeq(t *testing.T) {
	sink := openMemory(t).Logs()
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	entries := []common.PipelineLogEntry{
		{DocumentID: "doc-1", Stage: "indexing", Status: common.LogStarted, Timestamp: base.Add(2 * time.Second), Seq: 3},
		{DocumentID: "doc-1", Stage: "text_extraction", Status: common.LogStarted, Timestamp: base, Seq: 1},
		{DocumentID: "doc-1", Stage: "text_extraction", Status: common.LogCompleted, Timestamp: base, Seq: 2,
			Details: map[string]any{"text_length": 42}},
		{DocumentID: "doc-2", Stage: "text_extraction", Status: common.LogStarted, Timestamp: base, Seq: 4},
	}
	for _, e := range entries {
		require.NoError(t, sink.Append(ctx, e))
	}

	got, err := sink.List(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1), got[0].Seq)
	assert.Equal(t, int64(2), got[1].Seq)
	assert.Equal(t, "indexing", got[2].Stage)
	assert.Equal(t, float64(42), got[1].Details["text_length"])
	assert.True(t, got[0].Timestamp.Equal(base))
}

func TestArtifactStore_PutAndList(t *testing.T) {
	artifacts := openMemory(t).Artifacts()
	ctx := context.Background()

	put := func(stage, name, payload string) {
		require.NoError(t, artifacts.Put(ctx, common.Artifact{
			DocumentID:  "doc-1",
			Stage:       stage,
			Name:        name,
			ContentType: "text/plain",
			Payload:     []byte(payload),
		}))
	}
	put("text_splitting", "chunk_1.txt", "b")
	put("text_splitting", "chunk_0.txt", "a")
	put("text_extraction", "extracted_text.txt", "text")
	put("text_splitting", "chunk_0.txt", "a2")

	split, err := artifacts.List(ctx, "doc-1", "text_splitting")
	require.NoError(t, err)
	require.Len(t, split, 2)
	assert.Equal(t, "chunk_0.txt", split[0].Name)
	assert.Equal(t, "a2", string(split[0].Payload))
	assert.False(t, split[0].CreatedAt.IsZero())

	all, err := artifacts.List(ctx, "doc-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := artifacts.List(ctx, "doc-2", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSchemaStore_AppendAndLatest(t *testing.T) {
	schemas := openMemory(t).Schemas()
	ctx := context.Background()

	_, err := schemas.Latest(ctx, schema.SystemScope)
	assert.ErrorIs(t, err, schema.ErrNotFound)

	v1, err := schemas.Append(ctx, schema.SystemScope, 0, schema.Default(), "seed")
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)

	_, err = schemas.Append(ctx, schema.SystemScope, 0, schema.Default(), "stale")
	assert.ErrorIs(t, err, schema.ErrVersionConflict)

	for v := 1; v < 11; v++ {
		_, err := schemas.Append(ctx, schema.SystemScope, v, schema.Default(), "widen")
		require.NoError(t, err)
	}
	latest, err := schemas.Latest(ctx, schema.SystemScope)
	require.NoError(t, err)
	assert.Equal(t, 11, latest.Version)
	assert.Equal(t, len(schema.Default().EntityTypes), len(latest.EntityTypes))

	_, err = schemas.Latest(ctx, "user-1")
	assert.ErrorIs(t, err, schema.ErrNotFound)
}

func TestSchemaStore_ConcurrentAppendsConflict(t *testing.T) {
	schemas := openMemory(t).Schemas()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, conflicts int
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := schemas.Append(ctx, "user-1", 0, schema.Default(), "race")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, schema.ErrVersionConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, conflicts)
}

func TestManager_WidensThroughBadger(t *testing.T) {
	m := schema.NewManager(openMemory(t).Schemas())
	ctx := context.Background()

	active, err := m.Resolve(ctx, "")
	require.NoError(t, err)

	widened, err := m.RegisterMissingRelationship(ctx, active, "works_at", "Person", "Organization")
	require.NoError(t, err)
	_, known := widened.RelationshipType("works_at")
	assert.True(t, known)

	again, err := m.Resolve(ctx, "")
	require.NoError(t, err)
	_, known = again.RelationshipType("works_at")
	assert.True(t, known)
}

func TestLogger_ReadsBackThroughBadger(t *testing.T) {
	b := openMemory(t)
	logs := pipelinelog.New(b.Logs(), pipelinelog.WithArtifacts(b.Artifacts(), true))

	run := logs.For("doc-1", "run-1")
	run.StepStart("text_extraction", nil)
	run.SaveArtifact("text_extraction", "extracted_text.txt", "Alice works at Acme Corp.")
	run.StepEnd("text_extraction", nil)

	entries, err := logs.GetLog(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, common.LogStarted, entries[0].Status)
	assert.Equal(t, common.LogCompleted, entries[1].Status)

	arts, err := logs.GetArtifacts(context.Background(), "doc-1", "text_extraction")
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, "Alice works at Acme Corp.", string(arts[0].Payload))
}
