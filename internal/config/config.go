// Package config provides configuration loading for recalld.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables with the RECALLD_ prefix. Sections map onto the internal
// component configs via the Build helpers.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/recalld/internal/chunking"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/ingest"
	"github.com/fyrsmithlabs/recalld/internal/retrieval"
	"github.com/fyrsmithlabs/recalld/internal/retry"
	"github.com/fyrsmithlabs/recalld/internal/vectorindex"
)

// Config holds the complete recalld configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Index      IndexConfig      `koanf:"index"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Retry      RetryConfig      `koanf:"retry"`
}

// ServerConfig holds the optional HTTP sidecar configuration. The MCP
// protocol itself always runs on stdio; the HTTP server only serves health
// and metrics endpoints.
type ServerConfig struct {
	HTTPEnabled     bool     `koanf:"http_enabled"`
	HTTPAddr        string   `koanf:"http_addr"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export configuration.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
	Endpoint    string `koanf:"endpoint"`
	Insecure    bool   `koanf:"insecure"`
}

// EmbeddingsConfig holds embedding provider configuration.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	APIKey    Secret `koanf:"api_key"`
	BaseURL   string `koanf:"base_url"`
	Dimension int    `koanf:"dimension"`
	BatchSize int    `koanf:"batch_size"`
}

// IndexConfig holds vector index backend configuration. The qdrant_* fields
// are ignored unless provider is "qdrant"; likewise chromem_* for "chromem".
type IndexConfig struct {
	Provider        string `koanf:"provider"`
	ChromemPath     string `koanf:"chromem_path"`
	ChromemCompress bool   `koanf:"chromem_compress"`
	QdrantHost      string `koanf:"qdrant_host"`
	QdrantPort      int    `koanf:"qdrant_port"`
	QdrantAPIKey    Secret `koanf:"qdrant_api_key"`
	QdrantUseTLS    bool   `koanf:"qdrant_use_tls"`
}

// IngestConfig holds document ingestion configuration.
type IngestConfig struct {
	MaxChars         int      `koanf:"max_chars"`
	OverlapChars     int      `koanf:"overlap_chars"`
	DefaultNamespace string   `koanf:"default_namespace"`
	EmbedTimeout     Duration `koanf:"embed_timeout"`
}

// RetrievalConfig holds semantic search configuration.
type RetrievalConfig struct {
	DefaultTopK   int      `koanf:"default_top_k"`
	MaxTopK       int      `koanf:"max_top_k"`
	MaxQueryChars int      `koanf:"max_query_chars"`
	EmbedTimeout  Duration `koanf:"embed_timeout"`
}

// RetryConfig bounds retries of transient provider and backend failures.
// It is shared by the embedding and index clients.
type RetryConfig struct {
	MaxAttempts    int      `koanf:"max_attempts"`
	InitialBackoff Duration `koanf:"initial_backoff"`
	MaxBackoff     Duration `koanf:"max_backoff"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = ":9090"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "recalld"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}

	if cfg.Index.Provider == "" {
		cfg.Index.Provider = "chromem"
	}
	if cfg.Index.QdrantHost == "" {
		cfg.Index.QdrantHost = "localhost"
	}
	if cfg.Index.QdrantPort == 0 {
		cfg.Index.QdrantPort = 6334
	}
}

// Validate validates the configuration by building the component configs and
// running their own validation, plus the checks that only exist at this
// level.
func (c *Config) Validate() error {
	if c.Server.HTTPEnabled && c.Server.HTTPAddr == "" {
		return errors.New("server http_addr required when http_enabled is true")
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("server shutdown_timeout must be positive")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %q (must be json or console)", c.Logging.Format)
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return errors.New("telemetry service_name required when telemetry is enabled")
	}

	ec := c.BuildEmbeddings()
	ec.ApplyDefaults()
	if err := ec.Validate(); err != nil {
		return fmt.Errorf("embeddings: %w", err)
	}

	ic := c.BuildIndex(ec.Dimension)
	ic.ApplyDefaults()
	if err := ic.Validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}

	in := c.BuildIngest()
	in.ApplyDefaults()
	if err := in.Validate(); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	rc := c.BuildRetrieval()
	rc.ApplyDefaults()
	if err := rc.Validate(); err != nil {
		return fmt.Errorf("retrieval: %w", err)
	}

	return nil
}

// BuildRetry maps the retry section onto a retry.Policy.
func (c *Config) BuildRetry() retry.Policy {
	return retry.Policy{
		MaxAttempts:    c.Retry.MaxAttempts,
		InitialBackoff: c.Retry.InitialBackoff.Duration(),
		MaxBackoff:     c.Retry.MaxBackoff.Duration(),
	}
}

// BuildEmbeddings maps the embeddings section onto the provider config.
func (c *Config) BuildEmbeddings() embeddings.Config {
	return embeddings.Config{
		Provider:  c.Embeddings.Provider,
		Model:     c.Embeddings.Model,
		APIKey:    c.Embeddings.APIKey.Value(),
		BaseURL:   c.Embeddings.BaseURL,
		Dimension: c.Embeddings.Dimension,
		BatchSize: c.Embeddings.BatchSize,
	}
}

// BuildIndex maps the index section onto the vector index config. The
// vector size comes from the embedding provider, not from configuration.
func (c *Config) BuildIndex(vectorSize int) vectorindex.Config {
	return vectorindex.Config{
		Provider: c.Index.Provider,
		Chromem: vectorindex.ChromemConfig{
			Path:     c.Index.ChromemPath,
			Compress: c.Index.ChromemCompress,
		},
		Qdrant: vectorindex.QdrantConfig{
			Host:       c.Index.QdrantHost,
			Port:       c.Index.QdrantPort,
			APIKey:     c.Index.QdrantAPIKey.Value(),
			UseTLS:     c.Index.QdrantUseTLS,
			VectorSize: vectorSize,
		},
		Retry: c.BuildRetry(),
	}
}

// BuildIngest maps the ingest section onto the ingestion service config.
func (c *Config) BuildIngest() ingest.Config {
	return ingest.Config{
		Chunking: chunking.Config{
			MaxChars:     c.Ingest.MaxChars,
			OverlapChars: c.Ingest.OverlapChars,
		},
		Retry:            c.BuildRetry(),
		EmbedTimeout:     c.Ingest.EmbedTimeout.Duration(),
		DefaultNamespace: c.Ingest.DefaultNamespace,
	}
}

// BuildRetrieval maps the retrieval section onto the search service config.
func (c *Config) BuildRetrieval() retrieval.Config {
	return retrieval.Config{
		DefaultTopK:      c.Retrieval.DefaultTopK,
		MaxTopK:          c.Retrieval.MaxTopK,
		MaxQueryChars:    c.Retrieval.MaxQueryChars,
		Retry:            c.BuildRetry(),
		EmbedTimeout:     c.Retrieval.EmbedTimeout.Duration(),
		DefaultNamespace: c.Ingest.DefaultNamespace,
	}
}
