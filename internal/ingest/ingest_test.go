package ingest

import (
	"context"
	"hash/fnv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/chunking"
	"github.com/fyrsmithlabs/recalld/internal/faults"
	"github.com/fyrsmithlabs/recalld/internal/retry"
	"github.com/fyrsmithlabs/recalld/internal/vectorindex"
)

// stubEmbedder produces deterministic vectors from text content. failures is
// a queue of errors returned before embedding starts succeeding.
type stubEmbedder struct {
	calls    int
	failures []error
}

func (e *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if len(e.failures) > 0 {
		err := e.failures[0]
		e.failures = e.failures[1:]
		return nil, err
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = textVector(t)
	}
	return vectors, nil
}

func (e *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *stubEmbedder) Dimension() int { return 4 }
func (e *stubEmbedder) Close() error   { return nil }

func textVector(text string) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	sum := h.Sum32()
	return []float32{
		float32(sum & 0xff),
		float32((sum >> 8) & 0xff),
		float32((sum >> 16) & 0xff),
		1,
	}
}

func newTestService(t *testing.T, cfg Config) (*Service, *stubEmbedder, vectorindex.Index) {
	t.Helper()
	idx, err := vectorindex.NewChromemIndex(vectorindex.ChromemConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	embedder := &stubEmbedder{}
	svc, err := NewService(cfg, embedder, idx, zap.NewNop())
	require.NoError(t, err)
	return svc, embedder, idx
}

func smallChunkConfig() Config {
	return Config{
		Chunking: chunking.Config{MaxChars: 40, OverlapChars: 8},
		Retry:    retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	}
}

func TestIngestSingleChunk(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	res, err := svc.Ingest(context.Background(), Request{
		DocumentID: "guide",
		Text:       "A short document.",
		Metadata:   map[string]any{"author": "kim"},
	})
	require.NoError(t, err)

	assert.Equal(t, "guide", res.DocumentID)
	assert.Equal(t, "default", res.Namespace)
	assert.Equal(t, 1, res.ChunkCount)
	assert.Equal(t, 1, res.RecordsWritten)
	assert.Zero(t, res.OrphansDeleted)
	assert.False(t, res.Replaced)
}

func TestIngestGeneratesDocumentID(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	res, err := svc.Ingest(context.Background(), Request{Text: "anonymous document"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.DocumentID)

	// A second anonymous ingest is a distinct document.
	res2, err := svc.Ingest(context.Background(), Request{Text: "anonymous document"})
	require.NoError(t, err)
	assert.NotEqual(t, res.DocumentID, res2.DocumentID)
}

func TestIngestValidation(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
	}{
		{"empty text", Request{DocumentID: "d", Text: "   "}},
		{"bad namespace", Request{DocumentID: "d", Text: "x", Namespace: "Not-Valid"}},
		{"reserved metadata key", Request{DocumentID: "d", Text: "x", Metadata: map[string]any{"document_id": "v"}}},
		{"nested metadata", Request{DocumentID: "d", Text: "x", Metadata: map[string]any{"m": map[string]any{"a": 1}}}},
		{"non-scalar list element", Request{DocumentID: "d", Text: "x", Metadata: map[string]any{"m": []any{[]any{1}}}}},
		{"oversized document id", Request{DocumentID: strings.Repeat("a", 600), Text: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ingest(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, faults.KindInvalidArgument, faults.KindOf(err))
		})
	}
}

func TestIngestMultiChunkAndReadRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t, smallChunkConfig())
	ctx := context.Background()

	text := "Cats are mammals. Dogs are mammals too. Birds are not mammals at all, but they are warm-blooded."
	res, err := svc.Ingest(ctx, Request{
		DocumentID: "animals",
		Text:       text,
		Metadata:   map[string]any{"topic": "biology"},
	})
	require.NoError(t, err)
	require.Greater(t, res.ChunkCount, 1)

	doc, err := svc.Read(ctx, "", "animals")
	require.NoError(t, err)
	assert.Equal(t, text, doc.Text)
	assert.Equal(t, res.ChunkCount, doc.ChunkCount)
	assert.Equal(t, map[string]any{"topic": "biology"}, doc.Metadata)
}

func TestIngestIdempotent(t *testing.T) {
	svc, _, idx := newTestService(t, smallChunkConfig())
	ctx := context.Background()

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 4)
	first, err := svc.Ingest(ctx, Request{DocumentID: "fox", Text: text})
	require.NoError(t, err)

	second, err := svc.Ingest(ctx, Request{DocumentID: "fox", Text: text})
	require.NoError(t, err)

	assert.Equal(t, first.ChunkCount, second.ChunkCount)
	assert.True(t, second.Replaced)
	assert.Zero(t, second.OrphansDeleted)

	stats, err := idx.Stats(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, first.ChunkCount, stats.Records)
}

func TestIngestShrinkingDocumentDeletesOrphans(t *testing.T) {
	svc, _, idx := newTestService(t, smallChunkConfig())
	ctx := context.Background()

	long := strings.Repeat("Sentences about many different things. ", 5)
	first, err := svc.Ingest(ctx, Request{DocumentID: "doc", Text: long})
	require.NoError(t, err)
	require.Greater(t, first.ChunkCount, 2)

	second, err := svc.Ingest(ctx, Request{DocumentID: "doc", Text: "Tiny now."})
	require.NoError(t, err)
	assert.Equal(t, 1, second.ChunkCount)
	assert.True(t, second.Replaced)
	assert.Equal(t, first.ChunkCount-1, second.OrphansDeleted)

	stats, err := idx.Stats(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Records)

	doc, err := svc.Read(ctx, "", "doc")
	require.NoError(t, err)
	assert.Equal(t, "Tiny now.", doc.Text)
}

func TestIngestUnchunked(t *testing.T) {
	svc, _, idx := newTestService(t, smallChunkConfig())
	ctx := context.Background()

	noChunk := false
	text := strings.Repeat("well beyond one chunk of text. ", 10)
	res, err := svc.Ingest(ctx, Request{DocumentID: "whole", Text: text, Chunk: &noChunk})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunkCount)

	records, err := idx.Fetch(ctx, "default", []string{"whole:0"})
	require.NoError(t, err)
	require.Contains(t, records, "whole:0")
	assert.Equal(t, text, records["whole:0"].Text)
}

func TestIngestRetriesTransientEmbeddingFailures(t *testing.T) {
	svc, embedder, _ := newTestService(t, smallChunkConfig())
	embedder.failures = []error{
		faults.New(faults.KindRateLimited, "embeddings.embed_documents", "429"),
	}

	res, err := svc.Ingest(context.Background(), Request{DocumentID: "doc", Text: "retry me"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunkCount)
	assert.Equal(t, 2, embedder.calls)
}

func TestIngestDoesNotRetryQuotaFailures(t *testing.T) {
	svc, embedder, _ := newTestService(t, smallChunkConfig())
	embedder.failures = []error{
		faults.New(faults.KindQuotaExceeded, "embeddings.embed_documents", "billing"),
	}

	_, err := svc.Ingest(context.Background(), Request{DocumentID: "doc", Text: "no retry"})
	require.Error(t, err)
	assert.Equal(t, faults.KindQuotaExceeded, faults.KindOf(err))
	assert.Equal(t, 1, embedder.calls)
}

func TestReadMissingDocument(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	_, err := svc.Read(context.Background(), "", "nope")
	require.Error(t, err)
	assert.Equal(t, faults.KindNotFound, faults.KindOf(err))
}

func TestReadIncompleteDocument(t *testing.T) {
	svc, _, idx := newTestService(t, smallChunkConfig())
	ctx := context.Background()

	text := strings.Repeat("Plenty of text to spread across chunks. ", 4)
	res, err := svc.Ingest(ctx, Request{DocumentID: "torn", Text: text})
	require.NoError(t, err)
	require.Greater(t, res.ChunkCount, 1)

	// Remove a middle record to simulate a partially failed rewrite.
	_, err = idx.Delete(ctx, "default", []string{vectorindex.RecordID("torn", 1)})
	require.NoError(t, err)

	_, err = svc.Read(ctx, "", "torn")
	require.Error(t, err)
	assert.Equal(t, faults.KindInternal, faults.KindOf(err))
}

func TestDeleteDocument(t *testing.T) {
	svc, _, idx := newTestService(t, smallChunkConfig())
	ctx := context.Background()

	text := strings.Repeat("Several sentences that split apart nicely. ", 4)
	res, err := svc.Ingest(ctx, Request{DocumentID: "doomed", Text: text})
	require.NoError(t, err)

	del, err := svc.Delete(ctx, "", "doomed")
	require.NoError(t, err)
	assert.True(t, del.Found)
	assert.Equal(t, res.ChunkCount, del.RecordsDeleted)

	stats, err := idx.Stats(ctx, "default")
	require.NoError(t, err)
	assert.Zero(t, stats.Records)

	again, err := svc.Delete(ctx, "", "doomed")
	require.NoError(t, err)
	assert.False(t, again.Found)
	assert.Zero(t, again.RecordsDeleted)
}

func TestListDocumentsAndStats(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Ingest(ctx, Request{DocumentID: "b_doc", Text: "second"})
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, Request{DocumentID: "a_doc", Text: "first"})
	require.NoError(t, err)

	docs, err := svc.ListDocuments(ctx, "")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a_doc", docs[0].DocumentID)
	assert.Equal(t, "b_doc", docs[1].DocumentID)

	stats, err := svc.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 2, stats.Records)
}
