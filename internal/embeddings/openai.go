package embeddings

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/fyrsmithlabs/recalld/internal/faults"
)

// openAIProvider generates embeddings through the OpenAI embeddings API or
// any OpenAI-compatible gateway.
type openAIProvider struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dimension int
	batchSize int
	metrics   *Metrics
}

func newOpenAIProvider(cfg Config) (*openAIProvider, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &openAIProvider{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     openai.EmbeddingModel(cfg.Model),
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		metrics:   NewMetrics(),
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts. Batches larger than
// the configured batch size are split into sequential provider requests; the
// returned vectors are in input order regardless of batching.
func (p *openAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embeddings.embed_documents"
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, string(p.model), "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if genErr = validateTexts(op, texts); genErr != nil {
		return nil, genErr
	}

	vectors := make([][]float32, 0, len(texts))
	for lo := 0; lo < len(texts); lo += p.batchSize {
		hi := lo + p.batchSize
		if hi > len(texts) {
			hi = len(texts)
		}
		batch, err := p.embed(ctx, op, texts[lo:hi])
		if err != nil {
			genErr = err
			return nil, genErr
		}
		vectors = append(vectors, batch...)
	}

	if len(vectors) != len(texts) {
		genErr = faults.New(faults.KindInternal, op,
			"provider returned %d vectors for %d texts", len(vectors), len(texts))
		return nil, genErr
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *openAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	const op = "embeddings.embed_query"
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, string(p.model), "embed_query", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = faults.New(faults.KindInvalidInput, op, "text cannot be empty")
		return nil, genErr
	}

	vectors, err := p.embed(ctx, op, []string{text})
	if err != nil {
		genErr = err
		return nil, genErr
	}
	return vectors[0], nil
}

func (p *openAIProvider) embed(ctx context.Context, op string, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: p.model,
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError(op, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, faults.New(faults.KindInternal, op,
			"provider returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, faults.New(faults.KindInternal, op,
				"provider returned embedding index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, faults.New(faults.KindInternal, op,
				"provider returned no embedding for text %d", i)
		}
	}
	return vectors, nil
}

// classifyOpenAIError maps provider failures onto the shared taxonomy. A 429
// normally means throttling and is retryable, except when the provider
// signals a billing quota, which no retry will fix.
func classifyOpenAIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			if code, ok := apiErr.Code.(string); ok && code == "insufficient_quota" {
				return faults.Wrap(faults.KindQuotaExceeded, op, err)
			}
			return faults.Wrap(faults.KindRateLimited, op, err)
		case apiErr.HTTPStatusCode >= 500:
			return faults.Wrap(faults.KindUnavailable, op, err)
		case apiErr.HTTPStatusCode == http.StatusBadRequest,
			apiErr.HTTPStatusCode == http.StatusUnprocessableEntity:
			return faults.Wrap(faults.KindInvalidInput, op, err)
		default:
			return faults.Wrap(faults.KindUnavailable, op, err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return faults.Wrap(faults.KindUnavailable, op, err)
	}
	// Transport-level failures (connection refused, DNS) are transient.
	return faults.Wrap(faults.KindUnavailable, op, err)
}

// Dimension returns the embedding dimension based on the configured model.
func (p *openAIProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op since the provider holds no persistent connections.
func (p *openAIProvider) Close() error {
	return nil
}
