package app

import (
	"time"

	"github.com/OFFIS-RIT/dochub/backend/internal/util"
)

// Config is the process configuration read from the environment.
type Config struct {
	DatabaseURL    string
	MigrationsPath string

	FileSource string
	LocalRoot  string
	Bucket     string

	AIAdapter         string
	ChatURL           string
	ChatKey           string
	EmbedURL          string
	EmbedKey          string
	ExtractModel      string
	ClassifyModel     string
	EmbedModel        string
	EmbedDimensions   int
	ParallelRequests  int
	RequestsPerSecond float64
	AITimeoutMin      int
	EmbedMock         bool
	EmbedBatchSize    int

	Splitter     string
	ChunkSize    int
	ChunkOverlap int
	MaxTokens    int

	GraphMinChunkChars int
	GraphClassify      bool
	GraphMinConfidence float64
	SchemaFile         string
	WorkerPoolSize     int
	ExecutorMaxRetries int
	ExecutorBackoff    time.Duration
	CleanupSchedule    string
	CleanupTimeout     time.Duration
	RunLeaseTTL        time.Duration
	PipelineLogStore   string
	PipelineLogPath    string
	ArtifactStore      string
	SaveArtifacts      bool
	Port               string
	AuthURL            string
	MasterAPIKey       string
	MasterUserID       string
	Debug              bool
}

func LoadConfig() Config {
	return Config{
		DatabaseURL:    util.GetEnv("DATABASE_URL"),
		MigrationsPath: util.GetEnvString("MIGRATIONS_PATH", "file://migrations"),

		FileSource: util.GetEnvString("FILE_SOURCE", "s3"),
		LocalRoot:  util.GetEnvString("FILE_ROOT", "."),
		Bucket:     util.GetEnvString("AWS_BUCKET", "dochub"),

		AIAdapter:         util.GetEnvString("AI_ADAPTER", "openai"),
		ChatURL:           util.GetEnv("AI_CHAT_URL"),
		ChatKey:           util.GetEnv("AI_CHAT_KEY"),
		EmbedURL:          util.GetEnv("AI_EMBED_URL"),
		EmbedKey:          util.GetEnv("AI_EMBED_KEY"),
		ExtractModel:      util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
		ClassifyModel:     util.GetEnv("AI_CHAT_CLASSIFY_MODEL"),
		EmbedModel:        util.GetEnv("AI_EMBED_MODEL"),
		EmbedDimensions:   int(util.GetEnvNumeric("AI_EMBED_DIM", 1536)),
		ParallelRequests:  int(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		RequestsPerSecond: util.GetEnvFloat("AI_REQUESTS_PER_SECOND", 10),
		AITimeoutMin:      int(util.GetEnvNumeric("AI_TIMEOUT_MIN", 5)),
		EmbedMock:         util.GetEnvBool("EMBED_MOCK", false),
		EmbedBatchSize:    int(util.GetEnvNumeric("EMBED_BATCH_SIZE", 100)),

		Splitter:     util.GetEnvString("SPLITTER", "recursive"),
		ChunkSize:    int(util.GetEnvNumeric("SPLIT_CHUNK_SIZE", 1000)),
		ChunkOverlap: int(util.GetEnvNumeric("SPLIT_CHUNK_OVERLAP", 200)),
		MaxTokens:    int(util.GetEnvNumeric("SPLIT_MAX_TOKENS", 500)),

		GraphMinChunkChars: int(util.GetEnvNumeric("GRAPH_MIN_CHUNK_CHARS", 50)),
		GraphClassify:      util.GetEnvBool("GRAPH_CLASSIFY", true),
		GraphMinConfidence: util.GetEnvFloat("GRAPH_CLASSIFY_MIN_CONFIDENCE", 0.6),
		SchemaFile:         util.GetEnv("SCHEMA_FILE"),
		WorkerPoolSize:     int(util.GetEnvNumeric("WORKER_POOL_SIZE", 4)),
		ExecutorMaxRetries: int(util.GetEnvNumeric("EXECUTOR_MAX_RETRIES", 3)),
		ExecutorBackoff:    util.GetEnvDuration("EXECUTOR_BACKOFF", 2*time.Second),
		CleanupSchedule:    util.GetEnvString("CLEANUP_SCHEDULE", "@every 5m"),
		CleanupTimeout:     util.GetEnvDuration("CLEANUP_TIMEOUT", 30*time.Minute),
		RunLeaseTTL:        util.GetEnvDuration("RUN_LEASE_TTL", 2*time.Minute),
		PipelineLogStore:   util.GetEnvString("PIPELINE_LOG_STORE", "postgres"),
		PipelineLogPath:    util.GetEnvString("PIPELINE_LOG_PATH", "./data/pipeline-log"),
		ArtifactStore:      util.GetEnvString("ARTIFACT_STORE", "postgres"),
		SaveArtifacts:      util.GetEnvBool("SAVE_ARTIFACTS", true),
		Port:               util.GetEnvString("PORT", "8080"),
		AuthURL:            util.GetEnv("AUTH_URL"),
		MasterAPIKey:       util.GetEnv("MASTER_API_KEY"),
		MasterUserID:       util.GetEnv("MASTER_USER_ID"),
		Debug:              util.GetEnvBool("DEBUG", false),
	}
}
