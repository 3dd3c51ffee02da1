package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EmbedderConfig configures the OpenAI embedding client.
type EmbedderConfig struct {
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
	MaxRetries  int    `yaml:"max_retries"`
	APIKey      string `yaml:"-"` // from OPENAI_API_KEY, never persisted
}

// SynthesizerConfig configures the Anthropic answer synthesizer.
type SynthesizerConfig struct {
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	APIKey    string `yaml:"-"` // from ANTHROPIC_API_KEY, never persisted
}

// QdrantConfig contains connection details for the remote index backend.
type QdrantConfig struct {
	Addr       string `yaml:"addr"`
	Collection string `yaml:"collection"`
}

// IndexConfig selects and configures the vector index backend.
type IndexConfig struct {
	Backend  string        `yaml:"backend"` // linear, hnsw, qdrant
	Path     string        `yaml:"path"`    // artifact path for persistent backends
	M        int           `yaml:"m"`       // hnsw connectivity
	EfSearch int           `yaml:"ef_search"`
	Qdrant   *QdrantConfig `yaml:"qdrant,omitempty"`
}

// ChunkerConfig configures how source files are split into chunks.
type ChunkerConfig struct {
	MaxChunkTokens int `yaml:"max_chunk_tokens"`
	OverlapTokens  int `yaml:"overlap_tokens"`
}

// RetrievalConfig holds the query-time defaults.
type RetrievalConfig struct {
	TopK             int `yaml:"top_k"`
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// Config is the root application configuration. It is loaded and validated
// once at startup and passed by reference to the constructors that need
// it; nothing reads ambient state on the retrieval path.
type Config struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Synthesizer SynthesizerConfig `yaml:"synthesizer"`
	Index       IndexConfig       `yaml:"index"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
}

// Load reads the config from path, fills in defaults, pulls API keys from
// the environment (after loading .env.local if present), and validates the
// result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	_ = godotenv.Load(".env.local")
	cfg.Embedder.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Synthesizer.APIKey = os.Getenv("ANTHROPIC_API_KEY")

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Embedder: EmbedderConfig{
			Model:       "text-embedding-3-small",
			Dimensions:  1536,
			TimeoutSecs: 30,
			BatchSize:   100,
			MaxRetries:  3,
		},
		Synthesizer: SynthesizerConfig{
			Model:     "claude-3-7-sonnet-latest",
			MaxTokens: 1024,
		},
		Index: IndexConfig{
			Backend:  "linear",
			Path:     "data/index/code.idx",
			M:        16,
			EfSearch: 20,
		},
		Chunker: ChunkerConfig{
			MaxChunkTokens: 512,
			OverlapTokens:  64,
		},
		Retrieval: RetrievalConfig{
			TopK:             5,
			MaxContextTokens: 2000,
		},
	}
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = def.Embedder.Model
	}
	if cfg.Embedder.Dimensions == 0 {
		cfg.Embedder.Dimensions = def.Embedder.Dimensions
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = def.Embedder.TimeoutSecs
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = def.Embedder.BatchSize
	}
	if cfg.Embedder.MaxRetries == 0 {
		cfg.Embedder.MaxRetries = def.Embedder.MaxRetries
	}
	if cfg.Synthesizer.Model == "" {
		cfg.Synthesizer.Model = def.Synthesizer.Model
	}
	if cfg.Synthesizer.MaxTokens == 0 {
		cfg.Synthesizer.MaxTokens = def.Synthesizer.MaxTokens
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = def.Index.Backend
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = def.Index.Path
	}
	if cfg.Index.M == 0 {
		cfg.Index.M = def.Index.M
	}
	if cfg.Index.EfSearch == 0 {
		cfg.Index.EfSearch = def.Index.EfSearch
	}
	if cfg.Index.Backend == "qdrant" && cfg.Index.Qdrant == nil {
		cfg.Index.Qdrant = &QdrantConfig{}
	}
	if cfg.Index.Qdrant != nil {
		if cfg.Index.Qdrant.Addr == "" {
			cfg.Index.Qdrant.Addr = "localhost:6334"
		}
		if cfg.Index.Qdrant.Collection == "" {
			cfg.Index.Qdrant.Collection = "code_chunks"
		}
	}
	if cfg.Chunker.MaxChunkTokens == 0 {
		cfg.Chunker.MaxChunkTokens = def.Chunker.MaxChunkTokens
	}
	if cfg.Chunker.OverlapTokens == 0 {
		cfg.Chunker.OverlapTokens = def.Chunker.OverlapTokens
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if cfg.Retrieval.MaxContextTokens == 0 {
		cfg.Retrieval.MaxContextTokens = def.Retrieval.MaxContextTokens
	}
}

// Validate checks the configuration invariants once at startup.
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case "linear", "hnsw", "qdrant":
	default:
		return fmt.Errorf("unknown index backend %q (want linear, hnsw or qdrant)", c.Index.Backend)
	}
	if c.Embedder.Dimensions < 1 {
		return fmt.Errorf("embedder dimensions must be >= 1, got %d", c.Embedder.Dimensions)
	}
	if c.Chunker.MaxChunkTokens < 1 {
		return fmt.Errorf("max_chunk_tokens must be >= 1, got %d", c.Chunker.MaxChunkTokens)
	}
	if c.Chunker.OverlapTokens < 0 || c.Chunker.OverlapTokens >= c.Chunker.MaxChunkTokens {
		return fmt.Errorf("overlap_tokens must be in [0, max_chunk_tokens), got %d", c.Chunker.OverlapTokens)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("top_k must be >= 1, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.MaxContextTokens < 1 {
		return fmt.Errorf("max_context_tokens must be >= 1, got %d", c.Retrieval.MaxContextTokens)
	}
	return nil
}
