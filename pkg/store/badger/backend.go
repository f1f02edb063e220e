package badger

import (
	"fmt"
	"os"
	"strings"

	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipelinelog"
	"github.com/OFFIS-RIT/dochub/backend/pkg/schema"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Backend is an embedded badger database holding pipeline logs, artifacts
// and schema versions. It serves single-node deployments and the CLI.
type Backend struct {
	db *badger.DB
}

// badgerLogger forwards badger's internal logging to the process logger.
type badgerLogger struct{}

var _ badger.Logger = badgerLogger{}

func (badgerLogger) Errorf(msg string, items ...any) {
	logger.Error("[Badger] " + strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

func (badgerLogger) Warningf(msg string, items ...any) {
	logger.Warn("[Badger] " + strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

func (badgerLogger) Infof(msg string, items ...any) {
	logger.Debug("[Badger] " + strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

func (badgerLogger) Debugf(msg string, items ...any) {
	logger.Debug("[Badger] " + strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

// Open opens the database in dir, creating the directory when missing. An
// in-memory database ignores dir.
func Open(dir string, inMemory bool) (*Backend, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		info, err := os.Stat(dir)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", dir)
		}
		opts = badger.DefaultOptions(dir)
	}

	opts.Logger = badgerLogger{}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Backend{db: db}, nil
}

func (b *Backend) Logs() pipelinelog.Sink {
	return &LogSink{db: b.db}
}

func (b *Backend) Artifacts() pipelinelog.ArtifactStore {
	return &ArtifactStore{db: b.db}
}

func (b *Backend) Schemas() schema.Store {
	return &SchemaStore{db: b.db}
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}
