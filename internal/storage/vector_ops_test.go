package storage

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeVector_RoundTrip(t *testing.T) {
	vec := []float32{0, 1.5, -2.25, float32(math.Pi)}
	blob := SerializeVector(vec)
	assert.Len(t, blob, len(vec)*4)
	assert.Equal(t, vec, DeserializeVector(blob))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"dimension mismatch", []float32{1, 0, 0}, []float32{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSanitizeFTSQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"empty", "", ""},
		{"punctuation only", "*()\"", ""},
		{"single term", "overview", `"overview"`},
		{"operators are quoted", "auth AND NOT token", `"auth" OR "AND" OR "NOT" OR "token"`},
		{"duplicates collapse", "Bug bug fix", `"Bug" OR "fix"`},
		{"special characters stripped", `root-cause "solution"*`, `"root" OR "cause" OR "solution"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeFTSQuery(tt.query))
		})
	}
}

func TestSearchVector(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	_, collection := setupCollection(t, s)

	require.NoError(t, s.UpsertChunks(ctx, []*Chunk{
		{CollectionID: collection.ID, ChunkID: "x", Source: "architecture/a.md", Category: "architecture", Text: "x axis", Vector: serializeVector([]float32{1, 0, 0})},
		{CollectionID: collection.ID, ChunkID: "xy", Source: "api/b.md", Category: "api", Text: "diagonal", Vector: serializeVector([]float32{1, 1, 0})},
		{CollectionID: collection.ID, ChunkID: "z", Source: "api/c.md", Category: "api", Text: "z axis", Vector: serializeVector([]float32{0, 0, 1})},
		{CollectionID: collection.ID, ChunkID: "bad", Source: "api/d.md", Category: "api", Text: "wrong dim", Vector: serializeVector([]float32{1, 0})},
	}))

	t.Run("ranked by similarity", func(t *testing.T) {
		results, err := s.SearchVector(ctx, collection.ID, []float32{1, 0, 0}, 10, nil)
		require.NoError(t, err)
		require.Len(t, results, 3, "mismatched dimension is skipped")
		assert.Equal(t, "x", results[0].Chunk.ChunkID)
		assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-6)
		assert.Equal(t, "xy", results[1].Chunk.ChunkID)
		assert.InDelta(t, 1/math.Sqrt2, results[1].SimilarityScore, 1e-6)
		assert.Equal(t, "architecture/a.md", results[0].Chunk.Source)
	})

	t.Run("limit", func(t *testing.T) {
		results, err := s.SearchVector(ctx, collection.ID, []float32{1, 0, 0}, 1, nil)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("category filter", func(t *testing.T) {
		results, err := s.SearchVector(ctx, collection.ID, []float32{1, 0, 0}, 10, &SearchFilters{Category: "api"})
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, r := range results {
			assert.Equal(t, "api", r.Chunk.Category)
		}
	})

	t.Run("source prefix filter", func(t *testing.T) {
		results, err := s.SearchVector(ctx, collection.ID, []float32{1, 0, 0}, 10, &SearchFilters{SourcePrefix: "architecture/"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "x", results[0].Chunk.ChunkID)
	})

	t.Run("min relevance", func(t *testing.T) {
		results, err := s.SearchVector(ctx, collection.ID, []float32{1, 0, 0}, 10, &SearchFilters{MinRelevance: 0.5})
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("other collection is invisible", func(t *testing.T) {
		results, err := s.SearchVector(ctx, collection.ID+1000, []float32{1, 0, 0}, 10, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestSearchText(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	_, collection := setupCollection(t, s)

	require.NoError(t, s.UpsertChunks(ctx, []*Chunk{
		{CollectionID: collection.ID, ChunkID: "a", Source: "architecture/overview.md", Heading: "Overview", Category: "architecture", Text: "System overview of the payment service", Vector: serializeVector([]float32{1, 0, 0})},
		{CollectionID: collection.ID, ChunkID: "b", Source: "api/payments.md", Heading: "Endpoints", Category: "api", Text: "POST /payments creates a payment", Vector: serializeVector([]float32{0, 1, 0})},
	}))

	results, err := s.SearchText(ctx, collection.ID, "overview", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Chunk.ChunkID)
	assert.Greater(t, results[0].BM25Score, 0.0)
	assert.LessOrEqual(t, results[0].BM25Score, 1.0)

	results, err = s.SearchText(ctx, collection.ID, "payment", 10, &SearchFilters{Category: "api"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Chunk.ChunkID)

	// Punctuation alone has no searchable term
	results, err = s.SearchText(ctx, collection.ID, "***", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
