// Package app assembles the pipeline components from a Config. The server
// and the worker share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/kgraph/internal/config"
	"github.com/OFFIS-RIT/kgraph/internal/db"
	"github.com/OFFIS-RIT/kgraph/pkg/embed"
	"github.com/OFFIS-RIT/kgraph/pkg/embed/kserve"
	"github.com/OFFIS-RIT/kgraph/pkg/embed/ollama"
	"github.com/OFFIS-RIT/kgraph/pkg/embed/openai"
	"github.com/OFFIS-RIT/kgraph/pkg/extract"
	"github.com/OFFIS-RIT/kgraph/pkg/graph"
	"github.com/OFFIS-RIT/kgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/kgraph/pkg/logger"
	"github.com/OFFIS-RIT/kgraph/pkg/metrics"
	"github.com/OFFIS-RIT/kgraph/pkg/pipeline"
	"github.com/OFFIS-RIT/kgraph/pkg/relate"
	"github.com/OFFIS-RIT/kgraph/pkg/store"
	"github.com/OFFIS-RIT/kgraph/pkg/store/memory"
	"github.com/OFFIS-RIT/kgraph/pkg/store/neo4j"
	pgstore "github.com/OFFIS-RIT/kgraph/pkg/store/pgx"
	"github.com/OFFIS-RIT/kgraph/pkg/store/qdrant"
	"github.com/OFFIS-RIT/kgraph/pkg/trace"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Store is everything the components need from persistence.
type Store interface {
	store.DocumentStore
	store.GraphStore
	store.VectorStore
}

// App holds the wired components. Close releases the connections.
type App struct {
	Config    config.Config
	Pool      *pgxpool.Pool
	Store     Store
	Extractor *extract.Extractor
	Engine    *embed.Engine
	Builder   *relate.Builder
	Graph     *graph.Service
	Pipeline  *pipeline.Pipeline
	Leases    *leaselock.Client
	Metrics   *metrics.PipelineMetrics
	Tracer    trace.Tracer

	// ExtractOptions are the per request defaults, adjusted by config.
	ExtractOptions extract.Options

	closers []func() error
}

// New connects the configured backends and builds every component.
// Metrics are registered with reg when it is not nil.
func New(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*App, error) {
	a := &App{Config: cfg}
	a.Metrics = metrics.NewPipelineMetrics(reg)
	a.Tracer = trace.MultiTracer{trace.LogTracer{}, a.Metrics}

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config
	if cfg.StoreBackend == config.BackendMemory {
		logger.Warn("[App] Using in-memory store, data is lost on restart")
		a.Store = memory.New()
		return nil
	}

	if cfg.Migrate {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	a.Pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	a.Leases = leaselock.New(pool)

	pg := pgstore.NewGraphDBStorageWithConnection(pool)
	var graphSide store.GraphBackend = pg
	var vectorSide store.VectorStore = pg

	if cfg.GraphBackend == config.BackendNeo4j {
		g, err := neo4j.NewGraphStorage(neo4j.NewGraphStorageParams{
			URI:      cfg.Neo4j.URI,
			User:     cfg.Neo4j.User,
			Password: cfg.Neo4j.Password,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, g.Close)
		if err := g.Init(ctx); err != nil {
			return err
		}
		graphSide = g
	}
	if cfg.VectorBackend == config.BackendQdrant {
		v, err := qdrant.NewVectorStorage(qdrant.NewVectorStorageParams{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Qdrant.Collection,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, v.Close)
		vectorSide = v
	}

	if cfg.GraphBackend == config.BackendPostgres && cfg.VectorBackend == config.BackendPostgres {
		a.Store = pg
		return nil
	}
	composite, err := store.NewComposite(pg, graphSide, vectorSide)
	if err != nil {
		return err
	}
	a.Store = composite
	return nil
}

func (a *App) build() error {
	cfg := a.Config

	var vocab *extract.Vocabulary
	if cfg.Extraction.VocabularyFile != "" {
		v, err := extract.LoadVocabulary(cfg.Extraction.VocabularyFile)
		if err != nil {
			return err
		}
		vocab = &v
	}
	a.Extractor = extract.NewExtractor(extract.NewExtractorParams{
		Vocabulary: vocab,
		Tracer:     a.Tracer,
	})
	a.ExtractOptions = extract.DefaultOptions()
	a.ExtractOptions.UseNER = cfg.Extraction.UseNER

	strategy, err := newStrategy(cfg.Embedding, a.Tracer)
	if err != nil {
		return err
	}
	a.Engine, err = embed.NewEngine(embed.NewEngineParams{
		Strategy:      strategy,
		Store:         a.Store,
		DefaultModel:  cfg.Embedding.Model,
		MaxConcurrent: cfg.Embedding.MaxConcurrent,
		Tracer:        a.Tracer,
	})
	if err != nil {
		return err
	}

	var triggers []relate.Trigger
	if cfg.Extraction.TriggersFile != "" {
		triggers, err = relate.LoadTriggers(cfg.Extraction.TriggersFile)
		if err != nil {
			return err
		}
	}
	a.Builder, err = relate.NewBuilder(relate.NewBuilderParams{
		Store:    a.Store,
		Embedder: a.Engine,
		Triggers: triggers,
		Tracer:   a.Tracer,
	})
	if err != nil {
		return err
	}

	a.Graph = graph.NewService(graph.NewServiceParams{Store: a.Store, Tracer: a.Tracer})
	a.Pipeline = pipeline.New(pipeline.NewPipelineParams{
		Store:             a.Store,
		Extractor:         a.Extractor,
		Engine:            a.Engine,
		Builder:           a.Builder,
		ParallelDocuments: cfg.ParallelDocuments,
	})
	return nil
}

// PipelineOptions returns the pipeline defaults with the configured
// extraction settings applied.
func (a *App) PipelineOptions() pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.Extract = a.ExtractOptions
	return opts
}

func newStrategy(cfg config.Embedding, tracer trace.Tracer) (embed.Strategy, error) {
	switch cfg.Strategy {
	case config.StrategyHash:
		return embed.NewHashStrategy(tracer), nil
	case config.StrategyInference, config.StrategyOpenAI, config.StrategyOllama:
	default:
		return nil, fmt.Errorf("unknown embedding strategy %q", cfg.Strategy)
	}

	var forwarder *kserve.Forwarder
	if cfg.Strategy == config.StrategyInference {
		var err error
		forwarder, err = kserve.NewForwarder(kserve.NewForwarderParams{
			BaseURL:               cfg.URL,
			APIKey:                cfg.Key,
			Output:                cfg.Output,
			MaxConcurrentRequests: int64(cfg.MaxConcurrent),
			Timeout:               cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
	}

	tok, err := embed.NewTokenizer(cfg.Tokenizer)
	if err != nil {
		return nil, err
	}
	switch cfg.Strategy {
	case config.StrategyInference:
		return embed.NewInferenceStrategy(embed.NewTokenRunner(tok, forwarder)), nil
	case config.StrategyOpenAI:
		return openai.NewStrategy(openai.NewStrategyParams{
			BaseURL:               cfg.URL,
			APIKey:                cfg.Key,
			MaxConcurrentRequests: int64(cfg.MaxConcurrent),
			Timeout:               cfg.Timeout,
			Tokenizer:             tok,
		}), nil
	default:
		s, err := ollama.NewStrategy(ollama.NewStrategyParams{
			BaseURL:               cfg.URL,
			ApiKey:                cfg.Key,
			MaxConcurrentRequests: int64(cfg.MaxConcurrent),
			Timeout:               cfg.Timeout,
			Tokenizer:             tok,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Close releases every opened backend.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
