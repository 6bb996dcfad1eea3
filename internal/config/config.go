// Package config assembles the process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/OFFIS-RIT/kgraph/internal/util"

	"github.com/go-playground/validator"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendNeo4j    = "neo4j"
	BackendQdrant   = "qdrant"
)

const (
	StrategyHash      = "hash"
	StrategyInference = "inference"
	StrategyOpenAI    = "openai"
	StrategyOllama    = "ollama"
)

type Neo4j struct {
	URI      string `validate:"required"`
	User     string
	Password string
}

type Qdrant struct {
	Host       string `validate:"required"`
	Port       int    `validate:"gt=0,lte=65535"`
	APIKey     string
	Collection string `validate:"required"`
	UseTLS     bool
}

type Embedding struct {
	// Strategy has no default. The hash fallback must be asked for.
	Strategy      string `validate:"required,oneof=hash inference openai ollama"`
	Model         string `validate:"required"`
	URL           string `validate:"omitempty,url"`
	Key           string
	MaxConcurrent int           `validate:"gte=1,lte=64"`
	Timeout       time.Duration `validate:"gt=0"`
	Tokenizer     string
	// Output is the hidden state tensor read by the inference strategy.
	Output string
}

type Extraction struct {
	VocabularyFile string
	TriggersFile   string
	UseNER         bool
}

type RabbitMQ struct {
	User     string
	Password string
	Host     string `validate:"required"`
	Port     string `validate:"required"`
}

// URL returns the amqp connection url.
func (r RabbitMQ) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", r.User, r.Password, r.Host, r.Port)
}

type S3 struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// Enabled reports whether exports can be written to a bucket.
func (s S3) Enabled() bool {
	return s.Bucket != ""
}

// Config is the validated configuration of the server and the worker.
type Config struct {
	Debug bool
	Port  string `validate:"required,numeric"`

	DatabaseURL string
	Migrate     bool

	StoreBackend  string `validate:"oneof=postgres memory"`
	GraphBackend  string `validate:"oneof=postgres neo4j"`
	VectorBackend string `validate:"oneof=postgres qdrant"`

	Neo4j  *Neo4j
	Qdrant *Qdrant

	Embedding  Embedding
	Extraction Extraction
	RabbitMQ   RabbitMQ
	S3         S3

	ParallelDocuments int `validate:"gte=1,lte=64"`
}

// Load reads the environment and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Debug:         util.GetEnvBool("DEBUG", false),
		Port:          util.GetEnvString("PORT", "8080"),
		DatabaseURL:   util.GetEnv("DATABASE_URL"),
		Migrate:       util.GetEnvBool("MIGRATE", true),
		StoreBackend:  util.GetEnvString("STORE_BACKEND", BackendPostgres),
		GraphBackend:  util.GetEnvString("GRAPH_BACKEND", BackendPostgres),
		VectorBackend: util.GetEnvString("VECTOR_BACKEND", BackendPostgres),
		Embedding: Embedding{
			Strategy:      util.GetEnv("EMBED_STRATEGY"),
			Model:         util.GetEnvString("EMBED_MODEL", "all-MiniLM-L6-v2"),
			URL:           util.GetEnv("EMBED_URL"),
			Key:           util.GetEnv("EMBED_KEY"),
			MaxConcurrent: util.GetEnvInt("EMBED_MAX_CONCURRENT", 4),
			Timeout:       util.GetEnvDuration("EMBED_TIMEOUT", time.Minute),
			Tokenizer:     util.GetEnvString("EMBED_TOKENIZER", "cl100k_base"),
			Output:        util.GetEnv("EMBED_INFERENCE_OUTPUT"),
		},
		Extraction: Extraction{
			VocabularyFile: util.GetEnv("EXTRACT_VOCABULARY_FILE"),
			TriggersFile:   util.GetEnv("RELATE_TRIGGERS_FILE"),
			UseNER:         util.GetEnvBool("EXTRACT_USE_NER", false),
		},
		RabbitMQ: RabbitMQ{
			User:     util.GetEnv("RABBITMQ_USER"),
			Password: util.GetEnv("RABBITMQ_PASSWORD"),
			Host:     util.GetEnvString("RABBITMQ_HOST", "localhost"),
			Port:     util.GetEnvString("RABBITMQ_PORT", "5672"),
		},
		S3: S3{
			Region:    util.GetEnv("AWS_REGION"),
			Endpoint:  util.GetEnv("AWS_ENDPOINT"),
			AccessKey: util.GetEnv("AWS_ACCESS_KEY"),
			SecretKey: util.GetEnv("AWS_SECRET_KEY"),
			Bucket:    util.GetEnv("AWS_BUCKET"),
		},
		ParallelDocuments: util.GetEnvInt("PARALLEL_DOCUMENTS", 4),
	}
	if cfg.GraphBackend == BackendNeo4j {
		cfg.Neo4j = &Neo4j{
			URI:      util.GetEnv("NEO4J_URI"),
			User:     util.GetEnv("NEO4J_USER"),
			Password: util.GetEnv("NEO4J_PASSWORD"),
		}
	}
	if cfg.VectorBackend == BackendQdrant {
		cfg.Qdrant = &Qdrant{
			Host:       util.GetEnvString("QDRANT_HOST", "localhost"),
			Port:       util.GetEnvInt("QDRANT_PORT", 6334),
			APIKey:     util.GetEnv("QDRANT_API_KEY"),
			Collection: util.GetEnvString("QDRANT_COLLECTION", "kgraph_embeddings"),
			UseTLS:     util.GetEnvBool("QDRANT_TLS", false),
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	switch {
	case c.usesPostgres() && c.DatabaseURL == "":
		return fmt.Errorf("invalid configuration: DATABASE_URL is required for the %s backend", BackendPostgres)
	case c.GraphBackend == BackendNeo4j && c.Neo4j == nil:
		return fmt.Errorf("invalid configuration: %s settings are missing", BackendNeo4j)
	case c.VectorBackend == BackendQdrant && c.Qdrant == nil:
		return fmt.Errorf("invalid configuration: %s settings are missing", BackendQdrant)
	case c.Embedding.Strategy == StrategyInference && c.Embedding.URL == "":
		return fmt.Errorf("invalid configuration: EMBED_URL is required for the %s strategy", StrategyInference)
	}
	if c.StoreBackend == BackendMemory && (c.GraphBackend != BackendPostgres || c.VectorBackend != BackendPostgres) {
		return fmt.Errorf("invalid configuration: %s store cannot be combined with external graph or vector backends", BackendMemory)
	}
	return nil
}

// usesPostgres reports whether any backend needs the database.
func (c Config) usesPostgres() bool {
	return c.StoreBackend == BackendPostgres
}
