package embed

import (
	"fmt"
	"sync"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
)

// ModelSpec declares the shape of an embedding model.
type ModelSpec struct {
	Name              string `json:"name" validate:"required"`
	Dimensions        int    `json:"dimensions" validate:"gt=0"`
	MaxSequenceLength int    `json:"max_sequence_length" validate:"gt=0"`
	// UsesSegmentIDs is set for encoders that expect a token type tensor
	// next to input ids and attention mask.
	UsesSegmentIDs bool `json:"uses_segment_ids"`
}

var (
	registryMu sync.RWMutex
	registry   = map[string]ModelSpec{
		"all-MiniLM-L6-v2":       {Name: "all-MiniLM-L6-v2", Dimensions: 384, MaxSequenceLength: 256},
		"bge-base-en-v1.5":       {Name: "bge-base-en-v1.5", Dimensions: 768, MaxSequenceLength: 512, UsesSegmentIDs: true},
		"nomic-embed-text":       {Name: "nomic-embed-text", Dimensions: 768, MaxSequenceLength: 2048},
		"text-embedding-3-small": {Name: "text-embedding-3-small", Dimensions: 1536, MaxSequenceLength: 8191},
	}
)

// LookupModel returns the registered spec for name.
func LookupModel(name string) (ModelSpec, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	spec, ok := registry[name]
	if !ok {
		return ModelSpec{}, fmt.Errorf("%w: unknown embedding model %q", common.ErrInvalidInput, name)
	}
	return spec, nil
}

// RegisterModel adds or replaces a model spec.
func RegisterModel(spec ModelSpec) error {
	if err := validate.Struct(spec); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	registryMu.Lock()
	registry[spec.Name] = spec
	registryMu.Unlock()
	return nil
}
