// Package kserve runs embedding forward passes on a model server that speaks
// the KServe v2 inference protocol over REST, such as Triton.
package kserve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kgraph/pkg/embed"
	"github.com/OFFIS-RIT/kgraph/pkg/logger"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/semaphore"
)

// DefaultOutput is the tensor name exported by most sentence encoders.
const DefaultOutput = "last_hidden_state"

// Forwarder implements embed.Forwarder against /v2/models/{name}/infer.
//
// A Forwarder should be created using NewForwarder.
type Forwarder struct {
	client  *retryablehttp.Client
	baseURL string
	apiKey  string
	output  string
	timeout time.Duration
	reqLock *semaphore.Weighted
}

type NewForwarderParams struct {
	BaseURL string
	APIKey  string
	// Output names the hidden state tensor, DefaultOutput when empty.
	Output string

	MaxConcurrentRequests int64
	Timeout               time.Duration
	RetryMax              int
}

func NewForwarder(params NewForwarderParams) (*Forwarder, error) {
	if _, err := url.ParseRequestURI(params.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid inference url %q: %w", params.BaseURL, err)
	}
	if params.Output == "" {
		params.Output = DefaultOutput
	}
	if params.MaxConcurrentRequests <= 0 {
		params.MaxConcurrentRequests = 4
	}
	if params.Timeout <= 0 {
		params.Timeout = time.Minute
	}
	if params.RetryMax <= 0 {
		params.RetryMax = 3
	}

	client := retryablehttp.NewClient()
	client.RetryMax = params.RetryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = logger.Component("Inference")

	return &Forwarder{
		client:  client,
		baseURL: strings.TrimRight(params.BaseURL, "/"),
		apiKey:  params.APIKey,
		output:  params.Output,
		timeout: params.Timeout,
		reqLock: semaphore.NewWeighted(params.MaxConcurrentRequests),
	}, nil
}

type tensor struct {
	Name     string  `json:"name"`
	Shape    []int   `json:"shape"`
	Datatype string  `json:"datatype"`
	Data     []int64 `json:"data"`
}

type requestedOutput struct {
	Name string `json:"name"`
}

type inferRequest struct {
	Inputs  []tensor          `json:"inputs"`
	Outputs []requestedOutput `json:"outputs"`
}

type outputTensor struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float32 `json:"data"`
}

type inferResponse struct {
	ModelName string         `json:"model_name"`
	Outputs   []outputTensor `json:"outputs"`
	Error     string         `json:"error"`
}

func int64Tensor(name string, data []int64) tensor {
	return tensor{Name: name, Shape: []int{1, len(data)}, Datatype: "INT64", Data: data}
}

// Forward sends batch as one request of batch size 1.
func (f *Forwarder) Forward(ctx context.Context, model embed.ModelSpec, batch embed.TokenBatch) ([][]float32, error) {
	if len(batch.InputIDs) == 0 {
		return nil, fmt.Errorf("empty token batch for %s", model.Name)
	}
	body := inferRequest{
		Inputs: []tensor{
			int64Tensor("input_ids", batch.InputIDs),
			int64Tensor("attention_mask", batch.AttentionMask),
		},
		Outputs: []requestedOutput{{Name: f.output}},
	}
	if batch.SegmentIDs != nil {
		body.Inputs = append(body.Inputs, int64Tensor("token_type_ids", batch.SegmentIDs))
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inference request: %w", err)
	}

	rCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer f.reqLock.Release(1)

	endpoint := fmt.Sprintf("%s/v2/models/%s/infer", f.baseURL, url.PathEscape(model.Name))
	req, err := retryablehttp.NewRequestWithContext(rCtx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	res, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("inference server returned %s: %s", res.Status, strings.TrimSpace(string(msg)))
	}

	var out inferResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode inference response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("inference server error: %s", out.Error)
	}
	return f.hiddenStates(out, len(batch.InputIDs))
}

// hiddenStates splits the flat output tensor into one row per token. Shapes
// [1, tokens, dims] and [tokens, dims] are accepted.
func (f *Forwarder) hiddenStates(res inferResponse, tokens int) ([][]float32, error) {
	var t *outputTensor
	for i := range res.Outputs {
		if res.Outputs[i].Name == f.output {
			t = &res.Outputs[i]
			break
		}
	}
	if t == nil {
		return nil, fmt.Errorf("inference response has no %q output", f.output)
	}

	shape := t.Shape
	if len(shape) == 3 && shape[0] == 1 {
		shape = shape[1:]
	}
	if len(shape) != 2 || shape[0] != tokens || shape[1] <= 0 {
		return nil, fmt.Errorf("unexpected %s shape %v for %d tokens", t.Name, t.Shape, tokens)
	}
	dims := shape[1]
	if len(t.Data) != tokens*dims {
		return nil, fmt.Errorf("%s carries %d values, shape %v needs %d", t.Name, len(t.Data), t.Shape, tokens*dims)
	}

	rows := make([][]float32, tokens)
	for i := range rows {
		rows[i] = t.Data[i*dims : (i+1)*dims]
	}
	return rows, nil
}
