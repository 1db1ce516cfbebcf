package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askfolio/askfolio/internal/domain"
	"github.com/askfolio/askfolio/internal/service"
)

const testDims = 384

func uniformVector(value float32) []float32 {
	v := make([]float32, testDims)
	for i := range v {
		v[i] = value
	}
	return v
}

func batchOf(texts []string, embeddings [][]float32) service.IndexBatch {
	metadata := make([]domain.ChunkMetadata, len(texts))
	for i := range texts {
		metadata[i] = domain.ChunkMetadata{ChunkID: texts[i], Section: domain.SectionProjects}
	}
	return service.IndexBatch{Texts: texts, Embeddings: embeddings, Metadata: metadata}
}

func TestIndex_SearchEmptyIndex(t *testing.T) {
	ix := New(testDims)

	results, err := ix.Search(context.Background(), uniformVector(0.1), 3)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndex_SearchInvalidK(t *testing.T) {
	ix := New(testDims)

	_, err := ix.Search(context.Background(), uniformVector(0.1), 0)

	assert.ErrorIs(t, err, domain.ErrInvalidK)
}

func TestIndex_SearchDimensionMismatch(t *testing.T) {
	ix := New(testDims)

	_, err := ix.Search(context.Background(), make([]float32, 10), 3)

	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestIndex_UpsertShapeMismatch(t *testing.T) {
	ix := New(testDims)
	batch := service.IndexBatch{
		Texts:      []string{"a", "b"},
		Embeddings: [][]float32{uniformVector(0.1)},
		Metadata:   []domain.ChunkMetadata{{}, {}},
	}

	err := ix.Upsert(context.Background(), batch)

	assert.ErrorIs(t, err, domain.ErrShapeMismatch)
	assert.Equal(t, 0, ix.Count(context.Background()))
}

func TestIndex_UpsertDimensionMismatch_NoPartialInsert(t *testing.T) {
	ix := New(testDims)
	batch := batchOf(
		[]string{"good", "bad"},
		[][]float32{uniformVector(0.1), make([]float32, 12)},
	)

	err := ix.Upsert(context.Background(), batch)

	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Equal(t, 0, ix.Count(context.Background()))
}

// Known uniform embeddings: the two chunks nearest 0.15 come back first,
// ordered by descending similarity, deterministically.
func TestIndex_SearchNearestNeighbors(t *testing.T) {
	ix := New(testDims)
	ctx := context.Background()

	batch := batchOf(
		[]string{"chunk-0.1", "chunk-0.2", "chunk-0.3"},
		[][]float32{uniformVector(0.1), uniformVector(0.2), uniformVector(0.3)},
	)
	require.NoError(t, ix.Upsert(ctx, batch))

	results, err := ix.Search(ctx, uniformVector(0.15), 2)

	require.NoError(t, err)
	require.Len(t, results, 2)
	// Uniform vectors are all parallel, so cosine similarity ties at 1.0
	// and insertion order breaks the tie.
	assert.Equal(t, "chunk-0.1", results[0].Text)
	assert.Equal(t, "chunk-0.2", results[1].Text)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestIndex_SearchOrderedByDescendingScore(t *testing.T) {
	ix := New(3)
	ctx := context.Background()

	texts := []string{"x", "y", "z"}
	embeddings := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	metadata := make([]domain.ChunkMetadata, 3)
	require.NoError(t, ix.Upsert(ctx, service.IndexBatch{Texts: texts, Embeddings: embeddings, Metadata: metadata}))

	results, err := ix.Search(ctx, []float32{1, 0, 0}, 5)

	require.NoError(t, err)
	require.Len(t, results, 3, "k above entry count returns all entries")
	assert.Equal(t, "x", results[0].Text)
	assert.Equal(t, "y", results[1].Text)
	assert.Equal(t, "z", results[2].Text)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
	}
}

func TestIndex_ClearIdempotent(t *testing.T) {
	ix := New(testDims)
	ctx := context.Background()

	require.NoError(t, ix.Clear(ctx))

	batch := batchOf([]string{"a"}, [][]float32{uniformVector(0.5)})
	require.NoError(t, ix.Upsert(ctx, batch))
	assert.Equal(t, 1, ix.Count(ctx))

	require.NoError(t, ix.Clear(ctx))
	require.NoError(t, ix.Clear(ctx))
	assert.Equal(t, 0, ix.Count(ctx))
}
