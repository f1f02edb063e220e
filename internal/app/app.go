package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/dochub/backend/internal/db"
	"github.com/OFFIS-RIT/dochub/backend/internal/storage"
	"github.com/OFFIS-RIT/dochub/backend/internal/util"
	"github.com/OFFIS-RIT/dochub/backend/pkg/ai"
	oai "github.com/OFFIS-RIT/dochub/backend/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/dochub/backend/pkg/ai/openai"
	"github.com/OFFIS-RIT/dochub/backend/pkg/embed"
	"github.com/OFFIS-RIT/dochub/backend/pkg/executor"
	"github.com/OFFIS-RIT/dochub/backend/pkg/graph"
	"github.com/OFFIS-RIT/dochub/backend/pkg/leaselock"
	"github.com/OFFIS-RIT/dochub/backend/pkg/loader"
	fileio "github.com/OFFIS-RIT/dochub/backend/pkg/loader/io"
	loaders3 "github.com/OFFIS-RIT/dochub/backend/pkg/loader/s3"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipeline"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipelinelog"
	"github.com/OFFIS-RIT/dochub/backend/pkg/schema"
	"github.com/OFFIS-RIT/dochub/backend/pkg/splitter"
	"github.com/OFFIS-RIT/dochub/backend/pkg/store"
	badgerstore "github.com/OFFIS-RIT/dochub/backend/pkg/store/badger"
	pgstore "github.com/OFFIS-RIT/dochub/backend/pkg/store/pgx"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Services holds everything a process needs to run and inspect pipelines.
type Services struct {
	Config Config

	Pool         *pgxpool.Pool
	S3           *s3.Client
	AI           ai.GraphAIClient
	Documents    executor.DocumentStore
	Queries      *db.Queries
	Indexer      pipeline.Indexer
	Graph        graph.Client
	Schemas      *schema.Manager
	Logs         *pipelinelog.Logger
	Orchestrator *pipeline.Orchestrator
	Executor     *executor.Executor

	closers []func() error
}

// Options select how a process runs.
type Options struct {
	// Publisher sends claimed runs to a queue instead of the local pool.
	Publisher executor.Publisher
	// Local runs without postgres: documents, chunks and the graph live
	// in memory; logs, artifacts and schemas in badger.
	Local bool
	// Documents replaces the document store, e.g. for local runs.
	Documents executor.DocumentStore
}

// NewPool connects to postgres and registers the pgvector types on every
// connection.
func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewAIClient builds the configured provider adapter.
func NewAIClient(cfg Config) (ai.GraphAIClient, error) {
	switch cfg.AIAdapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel: cfg.EmbedModel,
			ExtractModel:   cfg.ExtractModel,
			ClassifyModel:  cfg.ClassifyModel,

			BaseURL: cfg.ChatURL,
			ApiKey:  cfg.ChatKey,

			MaxConcurrentRequests: int64(cfg.ParallelRequests),
			TimeoutMin:            cfg.AITimeoutMin,
		})
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return client, nil
	case "openai", "":
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel: cfg.EmbedModel,
			ExtractModel:   cfg.ExtractModel,
			ClassifyModel:  cfg.ClassifyModel,

			EmbeddingURL: cfg.EmbedURL,
			EmbeddingKey: cfg.EmbedKey,
			ChatURL:      cfg.ChatURL,
			ChatKey:      cfg.ChatKey,

			MaxConcurrentRequests: int64(cfg.ParallelRequests),
			TimeoutMin:            cfg.AITimeoutMin,
		}), nil
	default:
		return nil, fmt.Errorf("unknown AI_ADAPTER %q", cfg.AIAdapter)
	}
}

func NewSplitter(cfg Config) (pipeline.Splitter, error) {
	tokens := splitter.NewTiktoken("o200k_base")
	switch cfg.Splitter {
	case "token":
		return splitter.NewToken(cfg.MaxTokens, tokens), nil
	case "recursive", "":
		return splitter.NewRecursive(splitter.RecursiveParams{
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
			Tokens:       tokens,
		})
	default:
		return nil, fmt.Errorf("unknown SPLITTER %q", cfg.Splitter)
	}
}

func NewEmbedder(cfg Config, client ai.GraphAIClient) pipeline.EmbeddingGenerator {
	if cfg.EmbedMock {
		logger.Warn("[App] Using deterministic mock embeddings")
		return embed.NewHash(cfg.EmbedDimensions)
	}
	return embed.NewGenerator(embed.GeneratorParams{
		Client:            client,
		BatchSize:         cfg.EmbedBatchSize,
		Parallel:          cfg.ParallelRequests,
		Dimensions:        cfg.EmbedDimensions,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
}

// NewSource returns the file source for FILE_SOURCE, wrapped in a read
// cache shared by retries of the same run.
func NewSource(cfg Config, s3Client *s3.Client) (loader.Source, error) {
	var src loader.Source
	switch cfg.FileSource {
	case "local":
		src = fileio.NewFileSource(cfg.LocalRoot)
	case "s3", "":
		if s3Client == nil {
			return nil, errors.New("FILE_SOURCE=s3 needs an S3 client")
		}
		src = loaders3.NewSourceWithClient(cfg.Bucket, s3Client)
	default:
		return nil, fmt.Errorf("unknown FILE_SOURCE %q", cfg.FileSource)
	}
	return loader.NewCachedSource(src, 0), nil
}

func needsS3(cfg Config) bool {
	return cfg.FileSource == "s3" || cfg.FileSource == "" || cfg.ArtifactStore == "s3"
}

// New wires the services from cfg. Close releases them.
func New(ctx context.Context, cfg Config, opts Options) (*Services, error) {
	s := &Services{Config: cfg}
	if err := s.init(ctx, opts); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) init(ctx context.Context, opts Options) error {
	cfg := s.Config

	if !opts.Local {
		pool, err := NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		s.Pool = pool
		s.onClose(func() error { pool.Close(); return nil })
		s.Queries = db.New(pool)
	}

	if needsS3(cfg) && !(opts.Local && cfg.FileSource == "local") {
		client, err := storage.NewS3Client(ctx)
		if err != nil {
			return err
		}
		s.S3 = client
	}

	aiClient, err := NewAIClient(cfg)
	if err != nil {
		return err
	}
	s.AI = aiClient

	backend, err := s.backend(opts)
	if err != nil {
		return err
	}

	s.Schemas, err = s.schemaManager(ctx, backend.Schemas())
	if err != nil {
		return err
	}

	artifacts, err := s.artifactStore(backend)
	if err != nil {
		return err
	}
	s.Logs = pipelinelog.New(backend.Logs(), pipelinelog.WithArtifacts(artifacts, cfg.SaveArtifacts))

	switch {
	case opts.Documents != nil:
		s.Documents = opts.Documents
	case opts.Local:
		s.Documents = executor.NewMemoryDocumentStore()
	default:
		s.Documents = db.NewDocumentStore(s.Pool)
	}

	active, err := s.Schemas.Resolve(ctx, "")
	if err != nil {
		return fmt.Errorf("resolve system schema: %w", err)
	}
	if opts.Local {
		s.Indexer = store.NewMemoryIndexer()
		s.Graph = graph.NewMemoryClient(active)
	} else {
		s.Indexer = pgstore.NewIndexer(s.Pool)
		s.Graph = pgstore.NewGraphClient(s.Pool, active)
	}

	source, err := NewSource(cfg, s.S3)
	if err != nil {
		return err
	}
	split, err := NewSplitter(cfg)
	if err != nil {
		return err
	}

	s.Orchestrator = pipeline.NewOrchestrator(pipeline.OrchestratorParams{
		Extractor: loader.NewExtractor(source),
		Splitter:  split,
		Embedder:  NewEmbedder(cfg, aiClient),
		Indexer:   s.Indexer,
		Graph: graph.NewGenerator(graph.GeneratorParams{
			AIClient:      aiClient,
			Client:        s.Graph,
			Registrar:     s.Schemas,
			Parallel:      cfg.ParallelRequests,
			MinChunkChars: cfg.GraphMinChunkChars,
			Classify:      cfg.GraphClassify,
			MinConfidence: cfg.GraphMinConfidence,
		}),
		Schemas: s.Schemas,
		Logs:    s.Logs,
	})

	params := executor.Params{
		Store:          s.Documents,
		Processor:      s.Orchestrator,
		Logs:           s.Logs,
		Publisher:      opts.Publisher,
		Workers:        cfg.WorkerPoolSize,
		MaxRetries:     cfg.ExecutorMaxRetries,
		Backoff:        util.Backoff{Initial: cfg.ExecutorBackoff, Max: 8 * cfg.ExecutorBackoff, Factor: 2},
		CleanupTimeout: cfg.CleanupTimeout,
	}
	if s.Pool != nil {
		params.Locker = leaselock.New(s.Pool, leaselock.Options{TTL: cfg.RunLeaseTTL})
	}
	s.Executor, err = executor.New(params)
	if err != nil {
		return err
	}
	s.onClose(func() error { s.Executor.Close(); return nil })
	return nil
}

// backend picks the store behind pipeline logs and schemas.
func (s *Services) backend(opts Options) (store.Backend, error) {
	useBadger := opts.Local || s.Config.PipelineLogStore == "badger"
	switch {
	case useBadger:
		b, err := badgerstore.Open(s.Config.PipelineLogPath, false)
		if err != nil {
			return nil, fmt.Errorf("open pipeline log store: %w", err)
		}
		s.onClose(b.Close)
		return b, nil
	case s.Config.PipelineLogStore == "postgres" || s.Config.PipelineLogStore == "":
		return pgstore.New(s.Pool), nil
	default:
		return nil, fmt.Errorf("unknown PIPELINE_LOG_STORE %q", s.Config.PipelineLogStore)
	}
}

func (s *Services) artifactStore(backend store.Backend) (pipelinelog.ArtifactStore, error) {
	switch s.Config.ArtifactStore {
	case "s3":
		if s.S3 == nil {
			return nil, errors.New("ARTIFACT_STORE=s3 needs an S3 client")
		}
		return storage.NewArtifactStore(s.Config.Bucket, s.S3), nil
	case "postgres", "badger", "":
		return backend.Artifacts(), nil
	default:
		return nil, fmt.Errorf("unknown ARTIFACT_STORE %q", s.Config.ArtifactStore)
	}
}

// schemaManager seeds the system scope from SCHEMA_FILE when no system
// schema has been stored yet.
func (s *Services) schemaManager(ctx context.Context, st schema.Store) (*schema.Manager, error) {
	var opts []schema.ManagerOption
	var seed *schema.Schema
	if s.Config.SchemaFile != "" {
		loaded, err := schema.LoadYAML(s.Config.SchemaFile)
		if err != nil {
			return nil, fmt.Errorf("load schema file: %w", err)
		}
		seed = loaded
		opts = append(opts, schema.WithDefault(loaded))
	}
	m := schema.NewManager(st, opts...)

	if seed == nil {
		return m, nil
	}
	if _, err := st.Latest(ctx, schema.SystemScope); errors.Is(err, schema.ErrNotFound) {
		if _, err := m.Replace(ctx, schema.SystemScope, seed, "seed from "+s.Config.SchemaFile); err != nil {
			return nil, fmt.Errorf("seed system schema: %w", err)
		}
		logger.Info("[App] Seeded system schema", "file", s.Config.SchemaFile)
	} else if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Services) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close releases resources in reverse order of creation.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn("[App] Failed to close resource", "err", err)
		}
	}
	s.closers = nil
}
