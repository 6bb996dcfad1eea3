package extract

import (
	"fmt"
	"slices"

	"github.com/OFFIS-RIT/kgraph/pkg/common"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-playground/validator"
)

const (
	DefaultMinConfidence = 0.5
	DefaultContextWindow = 50
	DefaultLanguage      = "en"
)

// Options tunes a single Extract call. Start from DefaultOptions and change
// what you need; the zero value disables merging and concepts.
type Options struct {
	// Types limits extraction to these entity types. Empty means all.
	Types            []common.EntityType `json:"types"`
	MinConfidence    float64             `json:"min_confidence" validate:"gte=0,lte=1"`
	ContextWindow    int                 `json:"context_window" validate:"gte=0,lte=10000"`
	MergeOverlapping bool                `json:"merge_overlapping"`
	ExtractConcepts  bool                `json:"extract_concepts"`
	Language         string              `json:"language" validate:"omitempty,max=16"`
	// UseNER adds the statistical named-entity recognizer on top of the
	// rule based strategies.
	UseNER bool `json:"use_ner"`
}

func DefaultOptions() Options {
	return Options{
		MinConfidence:    DefaultMinConfidence,
		ContextWindow:    DefaultContextWindow,
		MergeOverlapping: true,
		ExtractConcepts:  true,
		Language:         DefaultLanguage,
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
	for _, t := range o.Types {
		if !slices.Contains(common.ExtractableEntityTypes, t) {
			return fmt.Errorf("%w: entity type %q cannot be extracted", common.ErrInvalidInput, t)
		}
	}
	return nil
}

func (o Options) enabledTypes() mapset.Set[common.EntityType] {
	if len(o.Types) == 0 {
		return mapset.NewThreadUnsafeSet(common.ExtractableEntityTypes...)
	}
	return mapset.NewThreadUnsafeSet(o.Types...)
}
