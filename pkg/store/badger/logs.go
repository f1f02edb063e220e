package badger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"

	"github.com/dgraph-io/badger/v4"
)

// LogSink stores pipeline log entries under keys ordered by timestamp and
// sequence number, so a prefix scan yields a document's timeline.
type LogSink struct {
	db *badger.DB
}

func (s *LogSink) Append(ctx context.Context, entry common.PipelineLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := logKey(entry.DocumentID, entry.Timestamp.UnixNano(), entry.Seq)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

func (s *LogSink) List(ctx context.Context, documentID string) ([]common.PipelineLogEntry, error) {
	var entries []common.PipelineLogEntry
	err := scanPrefix(ctx, s.db, logDocumentPrefix(documentID), func(val []byte) error {
		var e common.PipelineLogEntry
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// ArtifactStore keeps one payload per (document, stage, name).
type ArtifactStore struct {
	db *badger.DB
}

func (s *ArtifactStore) Put(ctx context.Context, a common.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	val, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(artifactKey(a.DocumentID, a.Stage, a.Name), val)
	})
}

// List returns the artifacts of stage, or of every stage when stage is
// empty, ordered by stage and name.
func (s *ArtifactStore) List(ctx context.Context, documentID string, stage string) ([]common.Artifact, error) {
	prefix := artifactDocumentPrefix(documentID)
	if stage != "" {
		prefix = artifactStagePrefix(documentID, stage)
	}
	var out []common.Artifact
	err := scanPrefix(ctx, s.db, prefix, func(val []byte) error {
		var a common.Artifact
		if err := json.Unmarshal(val, &a); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	return out, err
}

func scanPrefix(ctx context.Context, db *badger.DB, prefix []byte, fn func(val []byte) error) error {
	return db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}
