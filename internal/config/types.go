// Package config provides configuration loading for ragd.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig indicates a configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
	Qdrant     QdrantConfig     `koanf:"qdrant"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Generation GenerationConfig `koanf:"generation"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Retention  RetentionConfig  `koanf:"retention"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// DevMode includes error cause chains in HTTP responses.
	DevMode bool `koanf:"devmode"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// QdrantConfig holds vector store connection settings.
type QdrantConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	UseTLS  bool          `koanf:"usetls"`
	Timeout time.Duration `koanf:"timeout"`

	// ChunkCollection and DocumentCollection name the two collections the
	// service bootstraps at startup.
	ChunkCollection    string `koanf:"chunkcollection"`
	DocumentCollection string `koanf:"documentcollection"`

	// VectorSize must match the embedding model's output dimensions.
	VectorSize uint64 `koanf:"vectorsize"`
}

// EmbeddingsConfig holds embedding provider settings.
type EmbeddingsConfig struct {
	BaseURL   string `koanf:"baseurl"`
	Model     string `koanf:"model"`
	APIKey    string `koanf:"apikey"`
	BatchSize int    `koanf:"batchsize"`
}

// GenerationConfig holds completion provider settings.
type GenerationConfig struct {
	BaseURL     string  `koanf:"baseurl"`
	Model       string  `koanf:"model"`
	APIKey      string  `koanf:"apikey"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"maxtokens"`
}

// IngestConfig holds chunking parameters.
type IngestConfig struct {
	WindowSize int `koanf:"windowsize"`
	Overlap    int `koanf:"overlap"`
}

// RetentionConfig holds lifecycle sweeper settings.
type RetentionConfig struct {
	// Window is how long an unaccessed document survives.
	Window time.Duration `koanf:"window"`

	// SweepInterval is the time between sweeps. Defaults to Window.
	SweepInterval time.Duration `koanf:"sweepinterval"`

	// PageSize bounds each metadata scan page.
	PageSize int `koanf:"pagesize"`

	// MaxPages caps how many pages one sweep or dedup scan visits.
	MaxPages int `koanf:"maxpages"`

	// OrphanGrace protects freshly written chunks of in-flight ingestions
	// from the orphan pass.
	OrphanGrace time.Duration `koanf:"orphangrace"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Qdrant: QdrantConfig{
			Host:               "localhost",
			Port:               6334,
			Timeout:            15 * time.Second,
			ChunkCollection:    "rag_chunks",
			DocumentCollection: "rag_documents",
			VectorSize:         1536,
		},
		Embeddings: EmbeddingsConfig{
			BaseURL:   "https://api.openai.com/v1",
			Model:     "text-embedding-3-small",
			BatchSize: 5,
		},
		Generation: GenerationConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   1024,
		},
		Ingest: IngestConfig{
			WindowSize: 2000,
			Overlap:    200,
		},
		Retention: RetentionConfig{
			Window:      24 * time.Hour,
			PageSize:    100,
			MaxPages:    100,
			OrphanGrace: time.Hour,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Qdrant.Host == "" {
		return fmt.Errorf("%w: qdrant host required", ErrInvalidConfig)
	}
	if c.Qdrant.ChunkCollection == "" || c.Qdrant.DocumentCollection == "" {
		return fmt.Errorf("%w: collection names required", ErrInvalidConfig)
	}
	if c.Qdrant.ChunkCollection == c.Qdrant.DocumentCollection {
		return fmt.Errorf("%w: chunk and document collections must differ", ErrInvalidConfig)
	}
	if c.Qdrant.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	if c.Embeddings.BaseURL == "" || c.Embeddings.Model == "" {
		return fmt.Errorf("%w: embeddings base URL and model required", ErrInvalidConfig)
	}
	if c.Generation.BaseURL == "" || c.Generation.Model == "" {
		return fmt.Errorf("%w: generation base URL and model required", ErrInvalidConfig)
	}
	if c.Ingest.WindowSize <= 0 {
		return fmt.Errorf("%w: ingest window size must be positive", ErrInvalidConfig)
	}
	if c.Ingest.Overlap < 0 || c.Ingest.Overlap >= c.Ingest.WindowSize {
		return fmt.Errorf("%w: ingest overlap must be in [0, window size)", ErrInvalidConfig)
	}
	if c.Retention.Window <= 0 {
		return fmt.Errorf("%w: retention window must be positive", ErrInvalidConfig)
	}
	if c.Retention.PageSize <= 0 || c.Retention.MaxPages <= 0 {
		return fmt.Errorf("%w: retention page size and max pages must be positive", ErrInvalidConfig)
	}
	return nil
}
