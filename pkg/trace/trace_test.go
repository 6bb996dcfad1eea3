package trace

import (
	"errors"
	"sync"
	"testing"
)

func TestMultiTracerSkipsNil(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	m := MultiTracer{a, nil, b}

	RecordEmbeddingFallback(m, "all-MiniLM-L6-v2")

	for _, r := range []*Recorder{a, b} {
		if r.Count(EventEmbeddingFallback) != 1 {
			t.Fatalf("expected one fallback event, got %+v", r.Events())
		}
	}
}

func TestRecordHelpersAreNilSafe(t *testing.T) {
	RecordEmbeddingFallback(nil, "m")
	RecordEnrichmentFailed(nil, errors.New("x"))
	RecordCapApplied(nil, "proximity", 10, 5)
}

func TestRecordEnrichmentFailedIgnoresNil(t *testing.T) {
	r := NewRecorder()
	RecordEnrichmentFailed(r, nil)
	if len(r.Events()) != 0 {
		t.Fatalf("expected no events, got %d", len(r.Events()))
	}
}

func TestRecorderConcurrent(t *testing.T) {
	r := NewRecorder()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record(Event{Kind: EventSearch})
		}()
	}
	wg.Wait()
	if got := r.Count(EventSearch); got != 50 {
		t.Fatalf("count = %d, want 50", got)
	}
}
