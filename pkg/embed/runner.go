package embed

import "context"

// Forwarder runs the model over one token batch and returns one hidden
// state vector per token.
type Forwarder interface {
	Forward(ctx context.Context, model ModelSpec, batch TokenBatch) ([][]float32, error)
}

// TokenRunner is a Runner that tokenizes locally with a tiktoken encoding
// and sends the batch to a Forwarder.
type TokenRunner struct {
	Forwarder
	tokenizer *Tokenizer
}

func NewTokenRunner(tokenizer *Tokenizer, forwarder Forwarder) *TokenRunner {
	return &TokenRunner{Forwarder: forwarder, tokenizer: tokenizer}
}

func (r *TokenRunner) Tokenize(_ context.Context, model ModelSpec, text string) (TokenBatch, error) {
	return r.tokenizer.Tokenize(model, text), nil
}
