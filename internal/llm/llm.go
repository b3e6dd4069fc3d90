// Package llm is the gateway to the OpenAI API for embeddings and chat
// completions.
//
// The gateway owns two cross-cutting policies:
//
//   - Retry with exponential backoff, applied identically to embedding
//     and completion calls (see retry.go). The SDK's built-in retries
//     are disabled so this is the only retry layer.
//   - Model-family parameter shaping (see params.go). Reasoning-class
//     models take their token cap under a different parameter name and
//     reject custom sampling temperature; the mapping is a data table,
//     not a code path per model.
//
// Messages are forwarded to the provider exactly as supplied; the
// gateway never reorders turns or validates alternation.
package llm

import (
	"errors"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Message roles accepted by the chat completion API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Sentinel errors. Check with errors.Is.
var (
	// ErrMissingAPIKey indicates the client was constructed without a credential.
	ErrMissingAPIKey = errors.New("missing OpenAI API key")

	// ErrProvider indicates a provider failure, whether permanent or
	// after retry exhaustion. The underlying provider error is wrapped
	// alongside it.
	ErrProvider = errors.New("provider error")

	// ErrNoMessages indicates Complete was called with an empty message sequence.
	ErrNoMessages = errors.New("messages must not be empty")
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports provider token accounting for one completion.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Completion is the result of a chat completion call.
type Completion struct {
	Content      string
	Model        string // model identifier reported by the provider
	Usage        Usage
	FinishReason string
}

// CompletionOptions overrides the client defaults for a single call.
// Zero values mean "use the configured default".
type CompletionOptions struct {
	Temperature *float64
	MaxTokens   int
}

// Config configures the Client.
type Config struct {
	APIKey         string
	ChatModel      string  // e.g. "gpt-5-nano"
	EmbeddingModel string  // e.g. "text-embedding-3-small"
	Dimension      int     // expected embedding vector length
	Temperature    float64 // default sampling temperature
	MaxTokens      int     // default completion token cap

	// BaseURL overrides the API endpoint. Tests point this at a local
	// httptest server; empty means the public API.
	BaseURL string

	Retry RetryConfig // zero value = DefaultRetryConfig
}

// Client talks to the OpenAI API. It is safe for concurrent use.
type Client struct {
	api            openai.Client
	chatModel      string
	embeddingModel string
	dimension      int
	temperature    float64
	maxTokens      int
	retry          RetryConfig
	logger         *slog.Logger
}

// New creates a Client. Fails fast when no API key is configured so a
// misconfigured deployment dies at startup, not on the first request.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = slog.Default()
	}

	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retry policy lives in this package; a second retry layer in
		// the SDK would multiply the attempt count.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		api:            openai.NewClient(opts...),
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		dimension:      cfg.Dimension,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		retry:          retry,
		logger:         logger,
	}, nil
}

// healthProbeTimeout bounds the completion call made by TestConnection.
const healthProbeTimeout = 15 * time.Second
