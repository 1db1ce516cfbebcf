//go:build integration

package pgvector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askfolio/askfolio/internal/domain"
	"github.com/askfolio/askfolio/internal/service"
	"github.com/askfolio/askfolio/internal/testutil"
)

const testDims = 384

func uniformVector(value float32) []float32 {
	v := make([]float32, testDims)
	for i := range v {
		v[i] = value
	}
	return v
}

func testBatch(texts []string, embeddings [][]float32) service.IndexBatch {
	metadata := make([]domain.ChunkMetadata, len(texts))
	for i := range texts {
		metadata[i] = domain.ChunkMetadata{
			ChunkID:   texts[i],
			Section:   domain.SectionProjects,
			CharCount: len(texts[i]),
			Source:    "profile.json",
		}
	}
	return service.IndexBatch{Texts: texts, Embeddings: embeddings, Metadata: metadata}
}

func TestIndex_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../../migrations")
	defer pool.Close()

	ix := New(pool, testDims)

	batch := testBatch(
		[]string{"chunk-0.1", "chunk-0.2", "chunk-0.3"},
		[][]float32{uniformVector(0.1), uniformVector(0.2), uniformVector(0.3)},
	)
	require.NoError(t, ix.Upsert(ctx, batch))
	assert.Equal(t, 3, ix.Count(ctx))

	results, err := ix.Search(ctx, uniformVector(0.15), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// Parallel vectors tie on cosine similarity; insertion order decides.
	assert.Equal(t, "chunk-0.1", results[0].Text)
	assert.Equal(t, "chunk-0.2", results[1].Text)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestIndex_SearchEmptyAndValidation(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../../migrations")
	defer pool.Close()

	ix := New(pool, testDims)

	results, err := ix.Search(ctx, uniformVector(0.5), 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = ix.Search(ctx, uniformVector(0.5), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidK)

	_, err = ix.Search(ctx, make([]float32, 3), 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestIndex_UpsertValidationLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../../migrations")
	defer pool.Close()

	ix := New(pool, testDims)

	bad := testBatch(
		[]string{"good", "bad"},
		[][]float32{uniformVector(0.1), make([]float32, 7)},
	)
	assert.ErrorIs(t, ix.Upsert(ctx, bad), domain.ErrDimensionMismatch)
	assert.Equal(t, 0, ix.Count(ctx))

	mismatched := service.IndexBatch{
		Texts:      []string{"only-text"},
		Embeddings: nil,
		Metadata:   nil,
	}
	assert.ErrorIs(t, ix.Upsert(ctx, mismatched), domain.ErrShapeMismatch)
	assert.Equal(t, 0, ix.Count(ctx))
}

func TestIndex_ClearIdempotent(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../../migrations")
	defer pool.Close()

	ix := New(pool, testDims)

	require.NoError(t, ix.Clear(ctx))

	batch := testBatch([]string{"a"}, [][]float32{uniformVector(0.2)})
	require.NoError(t, ix.Upsert(ctx, batch))
	require.Equal(t, 1, ix.Count(ctx))

	require.NoError(t, ix.Clear(ctx))
	require.NoError(t, ix.Clear(ctx))
	assert.Equal(t, 0, ix.Count(ctx))
}
