package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/dochub/backend/internal/util"
	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipeline"
	"github.com/OFFIS-RIT/dochub/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

const indexBatchSize = 500

// Indexer stores chunks with their embeddings in the chunks table.
type Indexer struct {
	conn pgxIConn
}

func NewIndexer(conn pgxIConn) *Indexer {
	return &Indexer{conn: conn}
}

// ChunkID is the stored id of a document's chunk.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

// Index replaces every chunk stored for doc in one transaction, so a rerun
// never leaves chunks of an older run behind.
func (i *Indexer) Index(ctx context.Context, doc common.Document, chunks []common.Chunk, embeddings []common.Embedding) error {
	vectors, err := vectorsByChunk(chunks, embeddings)
	if err != nil {
		return err
	}

	tx, err := i.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, deleteChunksSQL, doc.ID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	err = store.ChunkRange(len(chunks), indexBatchSize, func(start, end int) error {
		batch := &pgxv5.Batch{}
		for _, c := range chunks[start:end] {
			batch.Queue(insertChunkSQL,
				ChunkID(doc.ID, c.Index),
				doc.ID,
				c.Index,
				len(chunks),
				util.SanitizePostgresText(c.Text),
				c.CharCount,
				c.TokenCount,
				pgvector.NewVector(vectors[c.Index]),
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Debug("[Index] Stored chunks", "document_id", doc.ID, "chunks", len(chunks))
	return nil
}

// CountChunks returns how many chunks are stored for a document.
func (i *Indexer) CountChunks(ctx context.Context, documentID string) (int, error) {
	var n int
	if err := i.conn.QueryRow(ctx, countChunksSQL, documentID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func vectorsByChunk(chunks []common.Chunk, embeddings []common.Embedding) (map[int][]float32, error) {
	vectors := make(map[int][]float32, len(embeddings))
	for _, e := range embeddings {
		vectors[e.ChunkIndex] = e.Vector
	}
	for _, c := range chunks {
		if len(vectors[c.Index]) == 0 {
			// Retrying the index write cannot produce the vector.
			return nil, pipeline.Permanent(pipeline.StageIndexing, pipeline.ErrIndex, fmt.Errorf("chunk %d has no embedding", c.Index))
		}
	}
	return vectors, nil
}

const deleteChunksSQL = `
DELETE FROM chunks WHERE document_id = $1;
`

const insertChunkSQL = `
INSERT INTO chunks (id, document_id, chunk_index, chunk_count, text, char_count, token_count, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`

const countChunksSQL = `
SELECT count(*) FROM chunks WHERE document_id = $1;
`
