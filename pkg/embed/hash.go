package embed

import (
	"context"
	"crypto/sha256"
	"math/rand/v2"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/trace"
)

// HashStrategy derives a pseudo-random vector from the SHA-256 of the text.
// The same text always yields the same vector. It carries no meaning and
// exists for development setups without a model; every use is reported to
// the tracer.
type HashStrategy struct {
	tracer trace.Tracer
}

func NewHashStrategy(tracer trace.Tracer) *HashStrategy {
	return &HashStrategy{tracer: tracer}
}

func (s *HashStrategy) Name() common.EmbeddingStrategyName {
	return common.StrategyHash
}

func (s *HashStrategy) Embed(_ context.Context, model ModelSpec, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = HashVector(text, model.Dimensions)
		trace.RecordEmbeddingFallback(s.tracer, model.Name)
	}
	return out, nil
}

// HashVector returns the normalized deterministic vector for text.
func HashVector(text string, dims int) []float32 {
	r := rand.New(rand.NewChaCha8(sha256.Sum256([]byte(text))))
	v := make([]float32, dims)
	for i := range v {
		v[i] = float32(r.Float64()*2 - 1)
	}
	Normalize(v)
	return v
}
