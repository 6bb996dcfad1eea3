package relate

import (
	"fmt"
	"slices"

	"github.com/OFFIS-RIT/kgraph/pkg/common"

	"github.com/go-playground/validator"
)

const (
	DefaultMinConfidence          = 0.5
	DefaultMaxDistance            = 100
	DefaultMaxEntitiesPerDocument = 500
	DefaultMaxCrossDocuments      = 200
	DefaultSimilarityPrefix       = 1000
	DefaultEvidenceWindow         = 50
)

// Options tunes one Build call. Start from DefaultOptions.
type Options struct {
	MinConfidence float64 `json:"min_confidence" validate:"gte=0,lte=1"`
	// MaxDistance is the largest character gap between two entities that
	// still counts as proximity.
	MaxDistance           int  `json:"max_distance" validate:"gte=0"`
	UseSemanticSimilarity bool `json:"use_semantic_similarity"`
	// Types keeps only these relationship types. Empty keeps all.
	Types []common.RelationshipType `json:"types"`

	MaxEntitiesPerDocument int `json:"max_entities_per_document" validate:"gt=0"`
	MaxCrossDocuments      int `json:"max_cross_documents" validate:"gt=0"`
	// SimilarityPrefix is the number of content bytes used as the query of
	// the cross-document comparison.
	SimilarityPrefix int `json:"similarity_prefix" validate:"gt=0"`
	// Model selects the embedding model, empty means the engine default.
	Model string `json:"model"`
}

func DefaultOptions() Options {
	return Options{
		MinConfidence:          DefaultMinConfidence,
		MaxDistance:            DefaultMaxDistance,
		UseSemanticSimilarity:  true,
		MaxEntitiesPerDocument: DefaultMaxEntitiesPerDocument,
		MaxCrossDocuments:      DefaultMaxCrossDocuments,
		SimilarityPrefix:       DefaultSimilarityPrefix,
	}
}

// Clone returns a copy that shares no slices with o.
func (o Options) Clone() Options {
	o.Types = slices.Clone(o.Types)
	return o
}

var validate = validator.New()

func (o Options) validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	return nil
}

func (o Options) keeps(t common.RelationshipType) bool {
	if len(o.Types) == 0 {
		return true
	}
	for _, k := range o.Types {
		if k == t {
			return true
		}
	}
	return false
}
