// Package retrieval orchestrates semantic search: query embedding, index
// lookup, and result formatting.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/faults"
	"github.com/fyrsmithlabs/recalld/internal/retry"
	"github.com/fyrsmithlabs/recalld/internal/vectorindex"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("recalld.retrieval")

// Config holds configuration for the retrieval service.
type Config struct {
	// DefaultTopK is used when a caller does not request a result count.
	// Default: 5
	DefaultTopK int

	// MaxTopK caps requested result counts to bound query cost.
	// Default: 50
	MaxTopK int

	// MaxQueryChars caps query length. Default: 8192
	MaxQueryChars int

	// Retry bounds retries of transient embedding failures.
	Retry retry.Policy

	// EmbedTimeout caps one query-embedding attempt. Default: 10s
	EmbedTimeout time.Duration

	// DefaultNamespace is used when a request names no namespace.
	// Default: "default"
	DefaultNamespace string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.DefaultTopK == 0 {
		c.DefaultTopK = 5
	}
	if c.MaxTopK == 0 {
		c.MaxTopK = 50
	}
	if c.MaxQueryChars == 0 {
		c.MaxQueryChars = 8192
	}
	c.Retry.ApplyDefaults()
	if c.EmbedTimeout == 0 {
		c.EmbedTimeout = 10 * time.Second
	}
	if c.DefaultNamespace == "" {
		c.DefaultNamespace = vectorindex.DefaultNamespace
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	const op = "retrieval.validate"
	if c.DefaultTopK < 0 || c.MaxTopK < 0 {
		return faults.New(faults.KindInvalidArgument, op, "top_k bounds must not be negative")
	}
	if c.DefaultTopK > c.MaxTopK {
		return faults.New(faults.KindInvalidArgument, op,
			"default top_k (%d) exceeds max top_k (%d)", c.DefaultTopK, c.MaxTopK)
	}
	return vectorindex.ValidateNamespace(c.DefaultNamespace)
}

// Service answers semantic search queries.
type Service struct {
	config   Config
	embedder embeddings.Provider
	index    vectorindex.Index
	logger   *zap.Logger
}

// NewService creates a retrieval service.
func NewService(config Config, embedder embeddings.Provider, index vectorindex.Index, logger *zap.Logger) (*Service, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, faults.New(faults.KindInvalidArgument, "retrieval.new", "embedder required")
	}
	if index == nil {
		return nil, faults.New(faults.KindInvalidArgument, "retrieval.new", "index required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{config: config, embedder: embedder, index: index, logger: logger}, nil
}

// DefaultTopK exposes the configured default result count for callers that
// need to resolve an omitted top_k before calling Search.
func (s *Service) DefaultTopK() int {
	return s.config.DefaultTopK
}

// Params describes one search.
type Params struct {
	// Namespace selects the search namespace. Empty uses the default.
	Namespace string

	// Query is the natural-language query text.
	Query string

	// TopK is the requested result count. Must be positive; values above
	// the configured maximum are clamped.
	TopK int

	// Filter restricts results by metadata: scalars for equality, lists
	// for membership, {gte,lte,gt,lt} objects for ranges.
	Filter map[string]any
}

// Search embeds the query and returns the nearest records, ordered by
// descending score with ascending record ID as the tie break. Searching a
// namespace that was never written returns no results.
func (s *Service) Search(ctx context.Context, params Params) ([]vectorindex.SearchResult, error) {
	const op = "retrieval.search"
	ctx, span := tracer.Start(ctx, "Retrieval.Search")
	defer span.End()

	namespace := params.Namespace
	if namespace == "" {
		namespace = s.config.DefaultNamespace
	}
	if err := vectorindex.ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.Int("top_k", params.TopK),
	)

	if strings.TrimSpace(params.Query) == "" {
		return nil, faults.New(faults.KindInvalidArgument, op, "query cannot be empty")
	}
	if len([]rune(params.Query)) > s.config.MaxQueryChars {
		return nil, faults.New(faults.KindInvalidArgument, op,
			"query exceeds %d characters", s.config.MaxQueryChars)
	}
	if params.TopK <= 0 {
		return nil, faults.New(faults.KindInvalidArgument, op,
			"top_k must be positive, got %d", params.TopK)
	}
	topK := params.TopK
	if topK > s.config.MaxTopK {
		topK = s.config.MaxTopK
	}
	if err := vectorindex.ValidateFilter(params.Filter); err != nil {
		return nil, err
	}

	vector, err := s.embedQuery(ctx, op, params.Query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results, err := s.index.Query(ctx, namespace, vector, topK, params.Filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.logger.Debug("search served",
		zap.String("namespace", namespace),
		zap.Int("top_k", topK),
		zap.Int("results", len(results)),
	)
	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

func (s *Service) embedQuery(ctx context.Context, op string, query string) ([]float32, error) {
	var vector []float32
	err := retry.Do(ctx, s.config.Retry, op, faults.Retryable, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.config.EmbedTimeout)
		defer cancel()
		out, err := s.embedder.EmbedQuery(ctx, query)
		if err != nil {
			return err
		}
		vector = out
		return nil
	})
	return vector, err
}

// FormatResults renders search results as the text block returned to
// conversational clients.
func FormatResults(results []vectorindex.SearchResult) string {
	var b strings.Builder
	b.WriteString("Retrieved Contexts:\n\n")
	for i, res := range results {
		fmt.Fprintf(&b, "Result %d | Similarity: %.3f | Record ID: %s\n", i+1, res.Score, res.ID)
		b.WriteString(strings.TrimSpace(res.Text))
		b.WriteString("\n")
		b.WriteString(strings.Repeat("-", 10))
		b.WriteString("\n\n")
	}
	return b.String()
}
