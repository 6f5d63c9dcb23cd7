package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/recalld/internal/faults"
)

// teiProvider generates embeddings through a Text Embeddings Inference
// server's /embed endpoint.
type teiProvider struct {
	baseURL   string
	model     string
	client    *http.Client
	dimension int
	metrics   *Metrics
}

func newTEIProvider(cfg Config) (*teiProvider, error) {
	return &teiProvider{
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		client:    &http.Client{},
		dimension: cfg.Dimension,
		metrics:   NewMetrics(),
	}, nil
}

// teiRequest is the request body for the TEI embed endpoint.
type teiRequest struct {
	Inputs   interface{} `json:"inputs"`
	Truncate bool        `json:"truncate"`
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *teiProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embeddings.embed_documents"
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if genErr = validateTexts(op, texts); genErr != nil {
		return nil, genErr
	}

	vectors, err := p.post(ctx, op, texts)
	if err != nil {
		genErr = err
		return nil, genErr
	}
	if len(vectors) != len(texts) {
		genErr = faults.New(faults.KindInternal, op,
			"provider returned %d vectors for %d texts", len(vectors), len(texts))
		return nil, genErr
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *teiProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	const op = "embeddings.embed_query"
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, "embed_query", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = faults.New(faults.KindInvalidInput, op, "text cannot be empty")
		return nil, genErr
	}

	vectors, err := p.post(ctx, op, text)
	if err != nil {
		genErr = err
		return nil, genErr
	}
	if len(vectors) == 0 {
		genErr = faults.New(faults.KindInternal, op, "provider returned empty response")
		return nil, genErr
	}
	return vectors[0], nil
}

func (p *teiProvider) post(ctx context.Context, op string, inputs interface{}) ([][]float32, error) {
	body, err := json.Marshal(teiRequest{Inputs: inputs, Truncate: true})
	if err != nil {
		return nil, faults.Wrap(faults.KindInternal, op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, faults.Wrap(faults.KindInternal, op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, faults.Wrap(faults.KindUnavailable, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, classifyTEIStatus(op, resp.StatusCode, string(respBody))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, faults.Wrap(faults.KindUnavailable, op, err)
	}
	return vectors, nil
}

func classifyTEIStatus(op string, status int, body string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return faults.New(faults.KindRateLimited, op, "status %d: %s", status, body)
	case status == http.StatusBadRequest, status == http.StatusRequestEntityTooLarge,
		status == http.StatusUnprocessableEntity:
		return faults.New(faults.KindInvalidInput, op, "status %d: %s", status, body)
	case status >= 500:
		return faults.New(faults.KindUnavailable, op, "status %d: %s", status, body)
	default:
		return faults.New(faults.KindUnavailable, op, "unexpected status %d: %s", status, body)
	}
}

// Dimension returns the embedding dimension based on the configured model.
func (p *teiProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op for TEI since it uses HTTP.
func (p *teiProvider) Close() error {
	return nil
}
