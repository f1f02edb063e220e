package store

import (
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipelinelog"
	"github.com/OFFIS-RIT/dochub/backend/pkg/schema"
)

// Backend is a storage backend for the diagnostic and schema data of the
// pipeline. Postgres and badger provide one each.
type Backend interface {
	Logs() pipelinelog.Sink
	Artifacts() pipelinelog.ArtifactStore
	Schemas() schema.Store
	Close() error
}
