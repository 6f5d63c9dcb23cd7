package vectorindex

import (
	"github.com/fyrsmithlabs/recalld/internal/faults"
	"github.com/fyrsmithlabs/recalld/internal/retry"
)

// Config selects and configures an index backend.
type Config struct {
	// Provider is the backend type: "chromem" or "qdrant".
	// Default: "chromem"
	Provider string

	// Chromem configures the embedded backend.
	Chromem ChromemConfig

	// Qdrant configures the Qdrant gRPC backend.
	Qdrant QdrantConfig

	// Retry bounds retries of transient backend failures.
	Retry retry.Policy
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "chromem"
	}
	c.Retry.ApplyDefaults()
	c.Qdrant.Retry = c.Retry
}

// Validate validates the configuration.
func (c Config) Validate() error {
	switch c.Provider {
	case "chromem":
		return nil
	case "qdrant":
		return c.Qdrant.Validate()
	default:
		return faults.New(faults.KindInvalidArgument, "vectorindex.validate",
			"unknown provider %q", c.Provider)
	}
}

// New creates an index backend based on the configuration.
func New(cfg Config) (Index, error) {
	cfg.ApplyDefaults()
	switch cfg.Provider {
	case "chromem":
		return NewChromemIndex(cfg.Chromem)
	case "qdrant":
		return NewQdrantIndex(cfg.Qdrant)
	default:
		return nil, faults.New(faults.KindInvalidArgument, "vectorindex.new",
			"unknown provider %q", cfg.Provider)
	}
}
