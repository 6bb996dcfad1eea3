package openai

import (
	"time"

	"github.com/OFFIS-RIT/kgraph/pkg/embed"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// Strategy embeds text through an OpenAI compatible embeddings endpoint.
//
// A Strategy should be created using NewStrategy.
type Strategy struct {
	embed.UsageCounter

	reqLock   *semaphore.Weighted
	timeout   time.Duration
	tokenizer *embed.Tokenizer

	Client *openai.Client
}

// NewStrategyParams configures the endpoint and request limits.
//
// Tokenizer is optional; when set, inputs are cut to the model's maximum
// sequence length before they are sent.
type NewStrategyParams struct {
	BaseURL string
	APIKey  string

	MaxConcurrentRequests int64
	Timeout               time.Duration
	Tokenizer             *embed.Tokenizer
}

// NewStrategy creates a Strategy for the given endpoint.
//
// Example:
//
//	s := openai.NewStrategy(openai.NewStrategyParams{
//		BaseURL: "https://api.openai.com/v1",
//		APIKey:  os.Getenv("OPENAI_API_KEY"),
//	})
func NewStrategy(params NewStrategyParams) *Strategy {
	if params.MaxConcurrentRequests <= 0 {
		params.MaxConcurrentRequests = 4
	}
	if params.Timeout <= 0 {
		params.Timeout = time.Minute
	}
	return &Strategy{
		reqLock:   semaphore.NewWeighted(params.MaxConcurrentRequests),
		timeout:   params.Timeout,
		tokenizer: params.Tokenizer,
		Client:    newOpenaiClient(params.BaseURL, params.APIKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
