package app

import (
	"context"
	"testing"

	"github.com/OFFIS-RIT/kgraph/internal/config"
	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/store/memory"
)

func memoryConfig() config.Config {
	return config.Config{
		Port:          "8080",
		StoreBackend:  config.BackendMemory,
		GraphBackend:  config.BackendPostgres,
		VectorBackend: config.BackendPostgres,
		Embedding: config.Embedding{
			Strategy:      config.StrategyHash,
			Model:         "all-MiniLM-L6-v2",
			MaxConcurrent: 2,
		},
		Extraction:        config.Extraction{UseNER: false},
		ParallelDocuments: 2,
	}
}

func TestNewWithMemoryStore(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if _, ok := a.Store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", a.Store)
	}
	if a.Pool != nil || a.Leases != nil {
		t.Fatalf("memory store must not open a database")
	}
	if a.Engine.DefaultModel() != "all-MiniLM-L6-v2" {
		t.Fatalf("default model = %q", a.Engine.DefaultModel())
	}
}

func TestPipelineOptionsCarryExtractionConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Extraction.UseNER = true
	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if !a.PipelineOptions().Extract.UseNER {
		t.Fatalf("expected NER to be enabled in pipeline options")
	}
}

func TestEndToEndOnMemoryStore(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	ctx := context.Background()

	doc := common.Document{ID: "doc_1", Title: "Contact", Content: "Contact John Doe at john.doe@example.com or call 555-123-4567."}
	if err := a.Store.SaveDocument(ctx, doc); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	res, err := a.Pipeline.ProcessDocument(ctx, doc.ID, a.PipelineOptions())
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if res.Entities == 0 || res.Chunks == 0 {
		t.Fatalf("expected entities and chunks, got %+v", res)
	}
}

func TestNewStrategyErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Embedding
	}{
		{name: "unknown strategy", cfg: config.Embedding{Strategy: "nope", Tokenizer: "cl100k_base"}},
		{name: "missing strategy", cfg: config.Embedding{Tokenizer: "cl100k_base"}},
		{name: "inference without server", cfg: config.Embedding{Strategy: config.StrategyInference, Tokenizer: "cl100k_base"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newStrategy(tt.cfg, nil); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
