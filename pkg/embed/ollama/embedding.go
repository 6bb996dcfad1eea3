package ollama

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/embed"

	"github.com/ollama/ollama/api"
)

func (s *Strategy) Name() common.EmbeddingStrategyName {
	return common.StrategyRemote
}

// Embed sends all texts in one Embed request.
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

	truncate := true
	req := &api.EmbedRequest{
		Model:    model.Name,
		Input:    inputs,
		Truncate: &truncate,
	}

	if err := s.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer s.reqLock.Release(1)

	res, err := s.Client.Embed(rCtx, req)
	if err != nil {
		return nil, err
	}

	s.Add(embed.Usage{
		InputTokens: res.PromptEvalCount,
		TotalTokens: res.PromptEvalCount,
		Requests:    1,
		DurationMs:  res.TotalDuration.Milliseconds(),
	})

	if len(res.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("embedding response size mismatch: got %d want %d", len(res.Embeddings), len(inputs))
	}
	return res.Embeddings, nil
}
