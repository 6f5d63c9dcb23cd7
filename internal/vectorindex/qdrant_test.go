package vectorindex

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointIDDeterministic(t *testing.T) {
	a := pointID("default", "guide:0")
	b := pointID("default", "guide:0")
	assert.Equal(t, a.GetUuid(), b.GetUuid())

	// Different record or namespace, different point.
	assert.NotEqual(t, a.GetUuid(), pointID("default", "guide:1").GetUuid())
	assert.NotEqual(t, a.GetUuid(), pointID("other", "guide:0").GetUuid())
}

func TestRecordPayloadRoundTrip(t *testing.T) {
	rec := Record{
		ID:         "guide:2",
		DocumentID: "guide",
		Sequence:   2,
		ChunkCount: 5,
		Text:       "chunk text",
		CharStart:  180,
		CharEnd:    260,
		Metadata: map[string]any{
			"author":    "kim",
			"year":      int64(2024),
			"published": true,
			"rating":    4.5,
			"tags":      []any{"go", "search"},
		},
	}

	decoded, err := recordFromPayload(recordPayload(rec))
	require.NoError(t, err)

	assert.Equal(t, rec.ID, decoded.ID)
	assert.Equal(t, rec.DocumentID, decoded.DocumentID)
	assert.Equal(t, rec.Sequence, decoded.Sequence)
	assert.Equal(t, rec.ChunkCount, decoded.ChunkCount)
	assert.Equal(t, rec.Text, decoded.Text)
	assert.Equal(t, rec.CharStart, decoded.CharStart)
	assert.Equal(t, rec.CharEnd, decoded.CharEnd)
	assert.Equal(t, rec.Metadata, decoded.Metadata)
}

func TestRecordFromPayloadRejectsForeignPoints(t *testing.T) {
	payload := map[string]*qdrant.Value{
		"content": {Kind: &qdrant.Value_StringValue{StringValue: "not ours"}},
	}
	_, err := recordFromPayload(payload)
	assert.Error(t, err)
}

func TestBuildFilterShapes(t *testing.T) {
	t.Run("nil filter", func(t *testing.T) {
		assert.Nil(t, buildFilter(nil))
	})

	t.Run("string equality", func(t *testing.T) {
		f := buildFilter(map[string]any{"author": "kim"})
		require.Len(t, f.Must, 1)
		field := f.Must[0].GetField()
		require.NotNil(t, field)
		assert.Equal(t, "author", field.Key)
		assert.Equal(t, "kim", field.Match.GetKeyword())
	})

	t.Run("integer equality", func(t *testing.T) {
		f := buildFilter(map[string]any{"year": 2024})
		field := f.Must[0].GetField()
		require.NotNil(t, field)
		assert.Equal(t, int64(2024), field.Match.GetInteger())
	})

	t.Run("bool equality", func(t *testing.T) {
		f := buildFilter(map[string]any{"published": true})
		field := f.Must[0].GetField()
		require.NotNil(t, field)
		assert.True(t, field.Match.GetBoolean())
	})

	t.Run("float equality becomes degenerate range", func(t *testing.T) {
		f := buildFilter(map[string]any{"rating": 4.5})
		field := f.Must[0].GetField()
		require.NotNil(t, field)
		require.NotNil(t, field.Range)
		assert.Equal(t, 4.5, *field.Range.Gte)
		assert.Equal(t, 4.5, *field.Range.Lte)
	})

	t.Run("string membership", func(t *testing.T) {
		f := buildFilter(map[string]any{"tag": []any{"go", "rust"}})
		field := f.Must[0].GetField()
		require.NotNil(t, field)
		assert.Equal(t, []string{"go", "rust"}, field.Match.GetKeywords().Strings)
	})

	t.Run("mixed membership becomes should group", func(t *testing.T) {
		f := buildFilter(map[string]any{"v": []any{"a", 1}})
		inner := f.Must[0].GetFilter()
		require.NotNil(t, inner)
		assert.Len(t, inner.Should, 2)
	})

	t.Run("range", func(t *testing.T) {
		f := buildFilter(map[string]any{"year": map[string]any{"gte": 2020, "lt": 2025}})
		field := f.Must[0].GetField()
		require.NotNil(t, field)
		require.NotNil(t, field.Range)
		assert.Equal(t, float64(2020), *field.Range.Gte)
		assert.Equal(t, float64(2025), *field.Range.Lt)
		assert.Nil(t, field.Range.Lte)
		assert.Nil(t, field.Range.Gt)
	})
}

func TestQdrantConfigDefaults(t *testing.T) {
	var cfg QdrantConfig
	cfg.ApplyDefaults()
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)

	assert.Error(t, cfg.Validate(), "vector size still unset")
	cfg.VectorSize = 1536
	assert.NoError(t, cfg.Validate())
}
