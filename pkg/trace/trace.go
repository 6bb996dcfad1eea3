package trace

import (
	"sync"
	"time"

	"github.com/OFFIS-RIT/kgraph/pkg/logger"
)

type EventKind string

const (
	EventExtraction         EventKind = "extraction"
	EventEnrichmentFailed   EventKind = "enrichment_failed"
	EventEmbedding          EventKind = "embedding"
	EventEmbeddingFallback  EventKind = "embedding_fallback"
	EventEmbeddingUsage     EventKind = "embedding_usage"
	EventSearch             EventKind = "search"
	EventRelationshipsBuilt EventKind = "relationships_built"
	EventCapApplied         EventKind = "cap_applied"
	EventGraphQuery         EventKind = "graph_query"
)

// Event is an extensible envelope for pipeline lifecycle signals.
// Additive changes to this struct are backward compatible for implementers.
type Event struct {
	Kind EventKind

	DocumentID string
	Model      string
	Strategy   string
	Operation  string

	EntityTypes       map[string]int
	RelationshipTypes map[string]int

	Count    int
	Limit    int
	Duration time.Duration
	Error    string
}

// Tracer is a sink for pipeline events.
//
// Implementers can forward events to logs, metrics, or tests.
type Tracer interface {
	Record(event Event)
}

// MultiTracer fan-outs events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event Event) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

// LogTracer writes every event to the global logger. Fallback embeddings are
// logged at warn level, failures at error level, everything else at debug.
type LogTracer struct{}

func (LogTracer) Record(event Event) {
	keyvals := []any{"kind", string(event.Kind)}
	if event.DocumentID != "" {
		keyvals = append(keyvals, "document_id", event.DocumentID)
	}
	if event.Model != "" {
		keyvals = append(keyvals, "model", event.Model)
	}
	if event.Operation != "" {
		keyvals = append(keyvals, "operation", event.Operation)
	}
	if event.Count > 0 {
		keyvals = append(keyvals, "count", event.Count)
	}
	if event.Duration > 0 {
		keyvals = append(keyvals, "duration", event.Duration)
	}

	switch {
	case event.Kind == EventEmbeddingFallback:
		logger.Warn("[Trace] deterministic fallback embedding used", keyvals...)
	case event.Error != "":
		logger.Error("[Trace] "+string(event.Kind), append(keyvals, "err", event.Error)...)
	default:
		logger.Debug("[Trace] "+string(event.Kind), keyvals...)
	}
}

func Record(t Tracer, event Event) {
	if t == nil {
		return
	}
	t.Record(event)
}

func RecordEmbeddingFallback(t Tracer, model string) {
	Record(t, Event{Kind: EventEmbeddingFallback, Model: model, Strategy: "hash-fallback"})
}

func RecordEnrichmentFailed(t Tracer, err error) {
	if err == nil {
		return
	}
	Record(t, Event{Kind: EventEnrichmentFailed, Error: err.Error()})
}

func RecordCapApplied(t Tracer, operation string, count, limit int) {
	Record(t, Event{Kind: EventCapApplied, Operation: operation, Count: count, Limit: limit})
}

// Recorder keeps every event in memory.
//
// Recorder is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
