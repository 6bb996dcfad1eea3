package ollama

import (
	"net/http"
	"net/url"
	"time"

	"github.com/OFFIS-RIT/kgraph/pkg/embed"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// Strategy embeds text with a locally hosted Ollama server.
type Strategy struct {
	embed.UsageCounter

	reqLock   *semaphore.Weighted
	timeout   time.Duration
	tokenizer *embed.Tokenizer

	Client *api.Client
}

// NewStrategyParams contains configuration options for creating a new Strategy.
type NewStrategyParams struct {
	BaseURL string
	ApiKey  string

	MaxConcurrentRequests int64
	Timeout               time.Duration
	Tokenizer             *embed.Tokenizer
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		// don't overwrite if already set
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewStrategy connects to the Ollama server at BaseURL, or the default
// address taken from OLLAMA_HOST when BaseURL is empty.
func NewStrategy(params NewStrategyParams) (*Strategy, error) {
	if params.MaxConcurrentRequests <= 0 {
		params.MaxConcurrentRequests = 4
	}
	if params.Timeout <= 0 {
		params.Timeout = time.Minute
	}

	var cli *api.Client
	if params.BaseURL != "" {
		u, err := url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
		httpClient := &http.Client{
			Transport: &headerTransport{
				headers: map[string]string{
					"Authorization": "Bearer " + params.ApiKey,
				},
				rt: http.DefaultTransport,
			},
		}
		cli = api.NewClient(u, httpClient)
	} else {
		var err error
		cli, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
	}

	return &Strategy{
		reqLock:   semaphore.NewWeighted(params.MaxConcurrentRequests),
		timeout:   params.Timeout,
		tokenizer: params.Tokenizer,
		Client:    cli,
	}, nil
}
