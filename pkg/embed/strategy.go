package embed

import (
	"context"
	"math"
	"sync"

	"github.com/OFFIS-RIT/kgraph/pkg/common"

	"github.com/go-playground/validator"
)

var validate = validator.New()

// Strategy turns texts into vectors for one model. Implementations return
// one vector per input text with the model's declared dimensionality. The
// engine normalizes whatever comes back.
type Strategy interface {
	Name() common.EmbeddingStrategyName
	Embed(ctx context.Context, model ModelSpec, texts []string) ([][]float32, error)
}

// Usage accumulates token and timing counters of a remote strategy.
type Usage struct {
	InputTokens    int     `json:"input_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	Requests       int     `json:"requests"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// UsageCounter is embedded by remote strategies.
type UsageCounter struct {
	mu    sync.Mutex
	usage Usage
}

func (c *UsageCounter) Add(u Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.usage.InputTokens += u.InputTokens
	c.usage.TotalTokens += u.TotalTokens
	c.usage.Requests += u.Requests
	c.usage.DurationMs += u.DurationMs

	if c.usage.DurationMs > 0 {
		tokensPerSecond := (float64(c.usage.TotalTokens) * 1000.0) / float64(c.usage.DurationMs)
		c.usage.TokenPerSecond = float32(math.Round(tokensPerSecond*100) / 100)
	}
}

// TakeUsage returns the counters accumulated since the last call and
// resets them.
func (c *UsageCounter) TakeUsage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.usage
	c.usage = Usage{}
	return u
}

// usageReporter is implemented by strategies that embed a UsageCounter.
type usageReporter interface {
	TakeUsage() Usage
}
