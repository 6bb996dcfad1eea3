package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/embed"

	"github.com/openai/openai-go/v3"
)

func (s *Strategy) Name() common.EmbeddingStrategyName {
	return common.StrategyRemote
}

// Embed sends all texts in one request. The response order follows the
// index field, not the array order.
func (s *Strategy) Embed(ctx context.Context, model embed.ModelSpec, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(texts))
	for i, t := range texts {
		if s.tokenizer != nil {
			t = s.tokenizer.Truncate(t, model.MaxSequenceLength)
		}
		inputs[i] = t
	}

	rCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		Model: model.Name,
	}
	if strings.HasPrefix(model.Name, "text-embedding-3") {
		body.Dimensions = openai.Int(int64(model.Dimensions))
	}

	if err := s.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer s.reqLock.Release(1)

	start := time.Now()
	response, err := s.Client.Embeddings.New(rCtx, body)
	if err != nil {
		return nil, err
	}

	s.Add(embed.Usage{
		InputTokens: int(response.Usage.PromptTokens),
		TotalTokens: int(response.Usage.TotalTokens),
		Requests:    1,
		DurationMs:  time.Since(start).Milliseconds(),
	})

	if len(response.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding response size mismatch: got %d want %d", len(response.Data), len(inputs))
	}

	out := make([][]float32, len(inputs))
	for _, embedding := range response.Data {
		dataIdx := int(embedding.Index)
		if dataIdx < 0 || dataIdx >= len(inputs) {
			return nil, fmt.Errorf("embedding index out of range: %d", embedding.Index)
		}
		vec := make([]float32, len(embedding.Embedding))
		for i, v := range embedding.Embedding {
			vec[i] = float32(v)
		}
		out[dataIdx] = vec
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
	}
	return out, nil
}
