package openai

import (
	"sync"

	"github.com/OFFIS-RIT/dochub/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// GraphOpenAIClient talks to any OpenAI-compatible endpoint. Chat and
// embedding traffic may go to different base URLs and keys.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	embeddingModel string
	extractModel   string
	classifyModel  string

	chatURL    string
	timeoutMin int

	reqLock       *semaphore.Weighted
	embeddingLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewGraphOpenAIClientParams configures a GraphOpenAIClient.
//
// ExtractModel is the default for structured completions, ClassifyModel for
// plain completions. MaxConcurrentRequests bounds chat and embedding
// requests separately. TimeoutMin bounds a single request.
type NewGraphOpenAIClientParams struct {
	EmbeddingModel string
	ExtractModel   string
	ClassifyModel  string

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	MaxConcurrentRequests int64
	TimeoutMin            int
}

// NewGraphOpenAIClient creates a client with separate OpenAI clients for
// chat and embeddings.
//
// Example:
//
//	client := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		EmbeddingModel: "text-embedding-3-small",
//		ExtractModel:   "gpt-4o",
//		ChatKey:        os.Getenv("AI_CHAT_KEY"),
//		EmbeddingKey:   os.Getenv("AI_EMBED_KEY"),
//	})
func NewGraphOpenAIClient(
	params NewGraphOpenAIClientParams,
) *GraphOpenAIClient {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey)
	embedClient := newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey)

	parallel := params.MaxConcurrentRequests
	if parallel <= 0 {
		parallel = 15
	}
	timeout := params.TimeoutMin
	if timeout <= 0 {
		timeout = 5
	}
	classify := params.ClassifyModel
	if classify == "" {
		classify = params.ExtractModel
	}

	return &GraphOpenAIClient{
		embeddingModel: params.EmbeddingModel,
		extractModel:   params.ExtractModel,
		classifyModel:  classify,

		chatURL:    params.ChatURL,
		timeoutMin: timeout,

		reqLock:       semaphore.NewWeighted(parallel),
		embeddingLock: semaphore.NewWeighted(parallel),

		ChatClient:      chatClient,
		EmbeddingClient: embedClient,
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
