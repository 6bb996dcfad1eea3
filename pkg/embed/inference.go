package embed

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
)

// TokenBatch is the tensor input of one forward pass.
type TokenBatch struct {
	InputIDs      []int64
	AttentionMask []int64
	// SegmentIDs is only sent to models with UsesSegmentIDs.
	SegmentIDs []int64
}

// Runner is the model inference collaborator. Forward returns one hidden
// state vector per input token.
type Runner interface {
	Tokenize(ctx context.Context, model ModelSpec, text string) (TokenBatch, error)
	Forward(ctx context.Context, model ModelSpec, batch TokenBatch) ([][]float32, error)
}

// InferenceStrategy embeds text with a locally loaded model: tokenize,
// forward, mean pool over the attention mask.
type InferenceStrategy struct {
	runner Runner
}

func NewInferenceStrategy(runner Runner) *InferenceStrategy {
	return &InferenceStrategy{runner: runner}
}

func (s *InferenceStrategy) Name() common.EmbeddingStrategyName {
	return common.StrategyInference
}

func (s *InferenceStrategy) Embed(ctx context.Context, model ModelSpec, texts []string) ([][]float32, error) {
	if s.runner == nil {
		return nil, fmt.Errorf("no model runner loaded for %s", model.Name)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		batch, err := s.runner.Tokenize(ctx, model, text)
		if err != nil {
			return nil, fmt.Errorf("failed to tokenize input %d: %w", i, err)
		}
		batch = prepareBatch(model, batch)

		hidden, err := s.runner.Forward(ctx, model, batch)
		if err != nil {
			return nil, fmt.Errorf("forward pass failed for input %d: %w", i, err)
		}
		if len(hidden) != len(batch.InputIDs) {
			return nil, fmt.Errorf("forward pass returned %d token vectors for %d tokens", len(hidden), len(batch.InputIDs))
		}
		out[i] = MeanPool(hidden, batch.AttentionMask)
	}
	return out, nil
}

// prepareBatch bounds the batch to the model's sequence length and makes
// sure mask and segment tensors line up with the input ids.
func prepareBatch(model ModelSpec, b TokenBatch) TokenBatch {
	n := min(len(b.InputIDs), model.MaxSequenceLength)
	b.InputIDs = b.InputIDs[:n]

	mask := make([]int64, n)
	for i := range mask {
		mask[i] = 1
		if i < len(b.AttentionMask) {
			mask[i] = b.AttentionMask[i]
		}
	}
	b.AttentionMask = mask

	if !model.UsesSegmentIDs {
		b.SegmentIDs = nil
		return b
	}
	seg := make([]int64, n)
	copy(seg, b.SegmentIDs)
	b.SegmentIDs = seg
	return b
}
