package embed

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const DefaultEncoding = "cl100k_base"

// Tokenizer wraps a tiktoken BPE encoding. It serves the Tokenize half of
// a Runner and bounds inputs sent to remote models.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

func NewTokenizer(encoding string) (*Tokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", encoding, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// Tokenize encodes text into a batch bounded to the model's sequence length.
func (t *Tokenizer) Tokenize(model ModelSpec, text string) TokenBatch {
	ids := t.enc.Encode(text, nil, nil)
	if len(ids) > model.MaxSequenceLength {
		ids = ids[:model.MaxSequenceLength]
	}
	b := TokenBatch{
		InputIDs:      make([]int64, len(ids)),
		AttentionMask: make([]int64, len(ids)),
	}
	for i, id := range ids {
		b.InputIDs[i] = int64(id)
		b.AttentionMask[i] = 1
	}
	if model.UsesSegmentIDs {
		b.SegmentIDs = make([]int64, len(ids))
	}
	return b
}

func (t *Tokenizer) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Truncate cuts text to at most maxTokens tokens.
func (t *Tokenizer) Truncate(text string, maxTokens int) string {
	ids := t.enc.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text
	}
	return t.enc.Decode(ids[:maxTokens])
}
