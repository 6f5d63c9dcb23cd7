package mcp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/chunking"
	"github.com/fyrsmithlabs/recalld/internal/ingest"
	"github.com/fyrsmithlabs/recalld/internal/retrieval"
	"github.com/fyrsmithlabs/recalld/internal/retry"
	"github.com/fyrsmithlabs/recalld/internal/vectorindex"
)

// wordEmbedder maps a few known words onto fixed axes so similarity in tests
// is predictable.
type wordEmbedder struct{}

var wordAxes = map[string]int{"cats": 0, "dogs": 1, "weather": 2}

func (wordEmbedder) embed(text string) []float32 {
	v := make([]float32, 4)
	v[3] = 0.05
	for word, axis := range wordAxes {
		if strings.Contains(strings.ToLower(text), word) {
			v[axis] = 1
		}
	}
	return v
}

func (e wordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e wordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (wordEmbedder) Dimension() int { return 4 }
func (wordEmbedder) Close() error   { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	idx, err := vectorindex.NewChromemIndex(vectorindex.ChromemConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	fast := retry.Policy{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	ingestSvc, err := ingest.NewService(ingest.Config{
		Chunking: chunking.Config{MaxChars: 60, OverlapChars: 10},
		Retry:    fast,
	}, wordEmbedder{}, idx, zap.NewNop())
	require.NoError(t, err)

	retrievalSvc, err := retrieval.NewService(retrieval.Config{Retry: fast}, wordEmbedder{}, idx, zap.NewNop())
	require.NoError(t, err)

	srv, err := NewServer(DefaultConfig(), ingestSvc, retrievalSvc)
	require.NoError(t, err)
	return srv
}

func storeDoc(t *testing.T, srv *Server, id, text string, metadata map[string]any) storeDocumentOutput {
	t.Helper()
	_, out, err := srv.handleStoreDocument(context.Background(), &mcp.CallToolRequest{}, storeDocumentInput{
		DocumentID: id,
		Text:       text,
		Metadata:   metadata,
	})
	require.NoError(t, err)
	return out
}

func TestNewServerRequiresServices(t *testing.T) {
	srv := newTestServer(t)
	_, err := NewServer(nil, nil, srv.retrievalSvc)
	assert.Error(t, err)
	_, err = NewServer(nil, srv.ingestSvc, nil)
	assert.Error(t, err)
}

func TestStoreAndSearchRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	out := storeDoc(t, srv, "pets", "Cats are mammals. Dogs are mammals too.", map[string]any{"topic": "animals"})
	assert.Equal(t, "pets", out.DocumentID)
	assert.Equal(t, "default", out.Namespace)
	assert.GreaterOrEqual(t, out.ChunkCount, 1)

	result, searchOut, err := srv.handleSearch(ctx, &mcp.CallToolRequest{}, searchInput{
		Query: "what about cats",
		TopK:  1,
	})
	require.NoError(t, err)
	require.Equal(t, 1, searchOut.Count)
	assert.True(t, strings.HasPrefix(searchOut.Results[0].RecordID, "pets:"))
	assert.Contains(t, searchOut.Results[0].Text, "mammals")
	assert.Equal(t, map[string]any{"topic": "animals"}, searchOut.Results[0].Metadata)

	text := result.Content[0].(*mcp.TextContent).Text
	assert.True(t, strings.HasPrefix(text, "Retrieved Contexts:\n\n"))
	assert.Contains(t, text, "Record ID: pets:")
}

func TestSearchDefaultsTopK(t *testing.T) {
	srv := newTestServer(t)
	storeDoc(t, srv, "pets", "Cats and dogs.", nil)

	_, out, err := srv.handleSearch(context.Background(), &mcp.CallToolRequest{}, searchInput{
		Query: "cats",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)
}

func TestSearchErrorsCarryCode(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := srv.handleSearch(context.Background(), &mcp.CallToolRequest{}, searchInput{
		Query: "ok",
		TopK:  -1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[invalid_argument]")

	_, _, err = srv.handleStoreDocument(context.Background(), &mcp.CallToolRequest{}, storeDocumentInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[invalid_argument]")
}

func TestReadDocumentRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	text := "Cats are mammals. Dogs are mammals too. The weather is unrelated to either of those topics today."
	storeDoc(t, srv, "doc", text, nil)

	result, out, err := srv.handleReadDocument(ctx, &mcp.CallToolRequest{}, readDocumentInput{DocumentID: "doc"})
	require.NoError(t, err)
	assert.Equal(t, text, out.Text)
	assert.Equal(t, text, result.Content[0].(*mcp.TextContent).Text)

	_, _, err = srv.handleReadDocument(ctx, &mcp.CallToolRequest{}, readDocumentInput{DocumentID: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[not_found]")
}

func TestDeleteDocument(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	stored := storeDoc(t, srv, "doomed", "Cats are mammals. Dogs are mammals too. More text to chunk here.", nil)

	_, out, err := srv.handleDeleteDocument(ctx, &mcp.CallToolRequest{}, deleteDocumentInput{DocumentID: "doomed"})
	require.NoError(t, err)
	assert.True(t, out.Found)
	assert.Equal(t, stored.ChunkCount, out.RecordsDeleted)

	result, out, err := srv.handleDeleteDocument(ctx, &mcp.CallToolRequest{}, deleteDocumentInput{DocumentID: "doomed"})
	require.NoError(t, err)
	assert.False(t, out.Found)
	assert.Zero(t, out.RecordsDeleted)
	assert.Contains(t, result.Content[0].(*mcp.TextContent).Text, "not found")
}

func TestListDocumentsAndStats(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	storeDoc(t, srv, "b_doc", "Dogs bark.", nil)
	storeDoc(t, srv, "a_doc", "Cats purr.", nil)

	_, listOut, err := srv.handleListDocuments(ctx, &mcp.CallToolRequest{}, listDocumentsInput{})
	require.NoError(t, err)
	require.Equal(t, 2, listOut.Count)
	assert.Equal(t, "a_doc", listOut.Documents[0].DocumentID)
	assert.Equal(t, "b_doc", listOut.Documents[1].DocumentID)

	_, statsOut, err := srv.handleIndexStats(ctx, &mcp.CallToolRequest{}, indexStatsInput{})
	require.NoError(t, err)
	assert.Equal(t, "default", statsOut.Namespace)
	assert.Equal(t, 2, statsOut.Documents)
	assert.Equal(t, 2, statsOut.Records)
	assert.Equal(t, "chromem", statsOut.Provider)
}

func TestStoreDocumentReplacesAndReportsOrphans(t *testing.T) {
	srv := newTestServer(t)

	long := strings.Repeat("Cats are mammals. Dogs are mammals too. ", 4)
	first := storeDoc(t, srv, "doc", long, nil)
	require.Greater(t, first.ChunkCount, 1)

	second := storeDoc(t, srv, "doc", "Cats only now.", nil)
	assert.True(t, second.Replaced)
	assert.Equal(t, 1, second.ChunkCount)
	assert.Equal(t, first.ChunkCount-1, second.OrphansDeleted)
}

func TestKnowledgeSearchPrompt(t *testing.T) {
	srv := newTestServer(t)
	storeDoc(t, srv, "pets", "Cats are mammals.", nil)

	res, err := srv.handleKnowledgeSearchPrompt(context.Background(), &mcp.GetPromptRequest{
		Params: &mcp.GetPromptParams{
			Name:      "knowledge-search",
			Arguments: map[string]string{"query": "cats", "top_k": "3"},
		},
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(res.Messages), 2)
	assert.Contains(t, res.Messages[1].Content.(*mcp.TextContent).Text, "Cats are mammals.")

	_, err = srv.handleKnowledgeSearchPrompt(context.Background(), &mcp.GetPromptRequest{
		Params: &mcp.GetPromptParams{
			Name:      "knowledge-search",
			Arguments: map[string]string{"query": "cats", "top_k": "lots"},
		},
	})
	require.Error(t, err)
}
