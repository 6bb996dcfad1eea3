package extract

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/logger"
	"github.com/OFFIS-RIT/kgraph/pkg/trace"
)

const (
	organizationConfidence = 0.8
	locationConfidence     = 0.7
	gazetteerConfidence    = 0.75
	conceptConfidence      = 0.9
)

// Enrichment is what a knowledge base knows about an entity.
type Enrichment struct {
	Mentions int
	Aliases  []string
}

// Enricher looks entities up in an external knowledge base. A returned map
// is keyed by index into the given slice; missing indices are left alone.
type Enricher interface {
	Enrich(ctx context.Context, entities []common.Entity) (map[int]Enrichment, error)
}

// Result is the outcome of one Extract call.
type Result struct {
	Entities        []common.Entity `json:"entities"`
	Confidence      float64         `json:"confidence"`
	ProcessingTime  time.Duration   `json:"processing_time"`
	TokensProcessed int             `json:"tokens_processed"`
	Language        string          `json:"language"`
}

// Extractor detects typed entity mentions in text. It is safe for
// concurrent use.
type Extractor struct {
	vocab    *compiledVocabulary
	enricher Enricher
	tracer   trace.Tracer
	log      logger.ComponentLogger
}

type NewExtractorParams struct {
	// Vocabulary replaces the built-in concept and location lists.
	Vocabulary *Vocabulary
	Enricher   Enricher
	Tracer     trace.Tracer
}

func NewExtractor(params NewExtractorParams) *Extractor {
	v := DefaultVocabulary()
	if params.Vocabulary != nil {
		v = *params.Vocabulary
	}
	return &Extractor{
		vocab:    compileVocabulary(v),
		enricher: params.Enricher,
		tracer:   params.Tracer,
		log:      logger.Component("Extract"),
	}
}

// Extract runs every enabled strategy over text and returns the
// post-processed entities sorted by start position.
func (x *Extractor) Extract(ctx context.Context, text string, opts Options) (*Result, error) {
	start := time.Now()

	if err := opts.validate(); err != nil {
		return nil, common.NewExtractionError("validate options", err)
	}
	if !utf8.ValidString(text) {
		return nil, common.NewExtractionError("validate input", errors.New("text is not valid UTF-8"))
	}
	if err := ctx.Err(); err != nil {
		return nil, common.NewExtractionError("extract", err)
	}

	types := opts.enabledTypes()
	enabled := func(t common.EntityType) bool { return types.Contains(t) }

	entities := extractPatterns(text, enabled)
	if enabled(common.EntityPerson) {
		entities = append(entities, x.extractPersons(text)...)
	}
	if enabled(common.EntityOrganization) {
		entities = append(entities, x.extractSuffixed(text, organizationRe, common.EntityOrganization, organizationConfidence, "legal_suffix")...)
	}
	if enabled(common.EntityLocation) {
		entities = append(entities, x.extractSuffixed(text, locationRe, common.EntityLocation, locationConfidence, "place_suffix")...)
		entities = append(entities, extractVocabulary(text, x.vocab.locations, common.EntityLocation, gazetteerConfidence, common.SourceHeuristic)...)
	}
	if opts.ExtractConcepts && enabled(common.EntityConcept) {
		entities = append(entities, extractVocabulary(text, x.vocab.concepts, common.EntityConcept, conceptConfidence, common.SourceConcept)...)
	}
	if opts.UseNER {
		found, err := extractNER(text, enabled)
		if err != nil {
			return nil, common.NewExtractionError("named entity recognition", err)
		}
		entities = append(entities, found...)
	}

	if err := ctx.Err(); err != nil {
		return nil, common.NewExtractionError("extract", err)
	}

	attachContext(text, entities, opts.ContextWindow)
	entities = filterConfidence(entities, opts.MinConfidence)
	if opts.MergeOverlapping && len(entities) > 0 {
		entities = mergeOverlapping(entities)
	}
	normalizeAll(entities)
	countMentions(entities)
	x.enrich(ctx, entities)
	sortByStart(entities)

	res := &Result{
		Entities:        entities,
		Confidence:      meanConfidence(entities),
		ProcessingTime:  time.Since(start),
		TokensProcessed: len(strings.Fields(text)),
		Language:        opts.Language,
	}
	if res.Entities == nil {
		res.Entities = []common.Entity{}
	}

	trace.Record(x.tracer, trace.Event{
		Kind:        trace.EventExtraction,
		EntityTypes: histogram(entities),
		Count:       len(entities),
		Duration:    res.ProcessingTime,
	})
	x.log.Debug("extracted entities", "count", len(entities), "tokens", res.TokensProcessed, "duration", res.ProcessingTime)

	return res, nil
}

// enrich applies the knowledge base lookup. Failures are reported but never
// fail the extraction.
func (x *Extractor) enrich(ctx context.Context, entities []common.Entity) {
	if x.enricher == nil || len(entities) == 0 {
		return
	}
	found, err := x.enricher.Enrich(ctx, entities)
	if err != nil {
		x.log.Warn("knowledge base enrichment failed", "err", err)
		trace.RecordEnrichmentFailed(x.tracer, err)
		return
	}
	for i, e := range found {
		if i < 0 || i >= len(entities) {
			continue
		}
		if e.Mentions > 0 {
			entities[i].Mentions = e.Mentions
		}
		if len(e.Aliases) > 0 {
			entities[i].Aliases = e.Aliases
		}
	}
}

func meanConfidence(entities []common.Entity) float64 {
	if len(entities) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range entities {
		sum += e.Confidence
	}
	return common.Clamp01(sum / float64(len(entities)))
}

func histogram(entities []common.Entity) map[string]int {
	h := make(map[string]int)
	for _, e := range entities {
		h[string(e.Type)]++
	}
	return h
}
