package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/faults"
)

func TestNewProviderValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown provider", Config{Provider: "cohere"}},
		{"openai without credentials", Config{Provider: "openai"}},
		{"tei without base url", Config{Provider: "tei"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(tt.cfg)
			require.Error(t, err)
			assert.Equal(t, faults.KindInvalidArgument, faults.KindOf(err))
		})
	}
}

func TestDetectDimensionFromModel(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"text-embedding-ada-002", 1536},
		{"BAAI/bge-small-en-v1.5", 384},
		{"BAAI/bge-base-en-v1.5", 768},
		{"BAAI/bge-large-en-v1.5", 1024},
		{"all-MiniLM-L6-v2", 384},
		{"something-unheard-of", 384},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, detectDimensionFromModel(tt.model))
		})
	}
}

func TestConfigDimensionOverride(t *testing.T) {
	cfg := Config{Provider: "tei", BaseURL: "http://localhost:8080", Dimension: 512}
	cfg.ApplyDefaults()
	assert.Equal(t, 512, cfg.Dimension)

	p, err := NewProvider(cfg)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, 512, p.Dimension())
}

// fakeTEI serves the TEI /embed contract, returning a constant-valued vector
// per input.
func fakeTEI(t *testing.T, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed", r.URL.Path)

		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":"provider failure"}`)
			return
		}

		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var count int
		switch in := req.Inputs.(type) {
		case string:
			count = 1
		case []interface{}:
			count = len(in)
		}

		vectors := make([][]float32, count)
		for i := range vectors {
			vectors[i] = []float32{float32(i), 1, 2}
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	}))
}

func newTestTEI(t *testing.T, baseURL string) Provider {
	t.Helper()
	p, err := NewProvider(Config{Provider: "tei", Model: "BAAI/bge-small-en-v1.5", BaseURL: baseURL})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestTEIEmbedDocuments(t *testing.T) {
	srv := fakeTEI(t, http.StatusOK)
	defer srv.Close()

	p := newTestTEI(t, srv.URL)
	vectors, err := p.EmbedDocuments(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{1, 1, 2}, vectors[1])
}

func TestTEIEmbedQuery(t *testing.T) {
	srv := fakeTEI(t, http.StatusOK)
	defer srv.Close()

	p := newTestTEI(t, srv.URL)
	vector, err := p.EmbedQuery(context.Background(), "what are cats")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 2}, vector)
}

func TestTEIEmptyInput(t *testing.T) {
	srv := fakeTEI(t, http.StatusOK)
	defer srv.Close()

	p := newTestTEI(t, srv.URL)

	_, err := p.EmbedDocuments(context.Background(), nil)
	assert.Equal(t, faults.KindInvalidInput, faults.KindOf(err))

	_, err = p.EmbedDocuments(context.Background(), []string{"ok", ""})
	assert.Equal(t, faults.KindInvalidInput, faults.KindOf(err))

	_, err = p.EmbedQuery(context.Background(), "")
	assert.Equal(t, faults.KindInvalidInput, faults.KindOf(err))
}

func TestTEIStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   faults.Kind
	}{
		{http.StatusTooManyRequests, faults.KindRateLimited},
		{http.StatusBadRequest, faults.KindInvalidInput},
		{http.StatusRequestEntityTooLarge, faults.KindInvalidInput},
		{http.StatusInternalServerError, faults.KindUnavailable},
		{http.StatusBadGateway, faults.KindUnavailable},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			srv := fakeTEI(t, tt.status)
			defer srv.Close()

			p := newTestTEI(t, srv.URL)
			_, err := p.EmbedDocuments(context.Background(), []string{"text"})
			require.Error(t, err)
			assert.Equal(t, tt.want, faults.KindOf(err))
		})
	}
}

func TestTEIConnectionRefused(t *testing.T) {
	p := newTestTEI(t, "http://127.0.0.1:1")
	_, err := p.EmbedQuery(context.Background(), "query")
	require.Error(t, err)
	assert.Equal(t, faults.KindUnavailable, faults.KindOf(err))
}

// fakeOpenAI serves the OpenAI embeddings contract.
func fakeOpenAI(t *testing.T, status int, errCode string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)

		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"error":{"message":"failure","type":"api_error","code":%q}}`, errCode)
			return
		}

		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			data[i] = item{Object: "embedding", Index: i, Embedding: []float32{float32(i), 0.5}}
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "text-embedding-3-small",
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		}))
	}))
}

func newTestOpenAI(t *testing.T, baseURL string, batchSize int) Provider {
	t.Helper()
	p, err := NewProvider(Config{
		Provider:  "openai",
		APIKey:    "test-key",
		BaseURL:   baseURL + "/v1",
		BatchSize: batchSize,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestOpenAIEmbedDocuments(t *testing.T) {
	srv := fakeOpenAI(t, http.StatusOK, "")
	defer srv.Close()

	p := newTestOpenAI(t, srv.URL, 0)
	vectors, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0, 0.5}, vectors[0])
	assert.Equal(t, []float32{1, 0.5}, vectors[1])
	assert.Equal(t, 1536, p.Dimension())
}

func TestOpenAIBatching(t *testing.T) {
	srv := fakeOpenAI(t, http.StatusOK, "")
	defer srv.Close()

	p := newTestOpenAI(t, srv.URL, 2)
	texts := []string{"a", "b", "c", "d", "e"}
	vectors, err := p.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	// Batches of 2,2,1: the last vector is index 0 of its own batch.
	assert.Equal(t, []float32{0, 0.5}, vectors[4])
}

func TestOpenAIErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		errCode string
		want    faults.Kind
	}{
		{"rate limited", http.StatusTooManyRequests, "rate_limit_exceeded", faults.KindRateLimited},
		{"quota exhausted", http.StatusTooManyRequests, "insufficient_quota", faults.KindQuotaExceeded},
		{"server error", http.StatusInternalServerError, "api_error", faults.KindUnavailable},
		{"bad request", http.StatusBadRequest, "invalid_request_error", faults.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeOpenAI(t, tt.status, tt.errCode)
			defer srv.Close()

			p := newTestOpenAI(t, srv.URL, 0)
			_, err := p.EmbedQuery(context.Background(), "query")
			require.Error(t, err)
			assert.Equal(t, tt.want, faults.KindOf(err))
		})
	}
}
