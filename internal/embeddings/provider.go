// Package embeddings provides embedding generation via multiple providers.
package embeddings

import (
	"context"
	"strings"

	"github.com/fyrsmithlabs/recalld/internal/faults"
)

// Provider is the interface for embedding providers.
type Provider interface {
	// EmbedDocuments generates one vector per input text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery generates a vector for a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// Config holds configuration for creating an embedding provider.
type Config struct {
	// Provider is the provider type: "openai" or "tei". Default: "openai"
	Provider string

	// Model is the embedding model name. Default: "text-embedding-3-small"
	Model string

	// APIKey authenticates against the provider (optional for TEI).
	APIKey string

	// BaseURL overrides the provider endpoint. Required for TEI,
	// optional for OpenAI-compatible gateways.
	BaseURL string

	// Dimension overrides the model's embedding dimension. When zero the
	// dimension is detected from the model name.
	Dimension int

	// BatchSize is the maximum number of texts per provider request.
	// Default: 96
	BatchSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.BatchSize == 0 {
		c.BatchSize = 96
	}
	if c.Dimension == 0 {
		c.Dimension = detectDimensionFromModel(c.Model)
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	switch c.Provider {
	case "openai":
		if c.APIKey == "" && c.BaseURL == "" {
			return faults.New(faults.KindInvalidArgument, "embeddings.validate",
				"openai provider requires an API key or a base URL")
		}
	case "tei":
		if c.BaseURL == "" {
			return faults.New(faults.KindInvalidArgument, "embeddings.validate",
				"tei provider requires a base URL")
		}
	default:
		return faults.New(faults.KindInvalidArgument, "embeddings.validate",
			"unknown provider %q", c.Provider)
	}
	if c.BatchSize < 0 {
		return faults.New(faults.KindInvalidArgument, "embeddings.validate",
			"batch_size must not be negative, got %d", c.BatchSize)
	}
	return nil
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg Config) (Provider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case "openai":
		return newOpenAIProvider(cfg)
	case "tei":
		return newTEIProvider(cfg)
	default:
		return nil, faults.New(faults.KindInvalidArgument, "embeddings.new",
			"unknown provider %q", cfg.Provider)
	}
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384 if the model is unknown.
func detectDimensionFromModel(model string) int {
	switch model {
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	case "text-embedding-3-large":
		return 3072
	}
	switch {
	case strings.Contains(model, "base"):
		return 768
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "small"), strings.Contains(model, "mini"),
		strings.Contains(model, "MiniLM"):
		return 384
	default:
		return 384
	}
}

// validateTexts rejects batches the providers would refuse anyway, so the
// failure is classified before a network round trip.
func validateTexts(op string, texts []string) error {
	if len(texts) == 0 {
		return faults.New(faults.KindInvalidInput, op, "texts cannot be empty")
	}
	for i, t := range texts {
		if t == "" {
			return faults.New(faults.KindInvalidInput, op, "text %d is empty", i)
		}
	}
	return nil
}
