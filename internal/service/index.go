package service

import (
	"context"

	"github.com/askfolio/askfolio/internal/domain"
)

// VectorIndex is the similarity index consumed by the indexer and the RAG
// engine. Implementations must support concurrent readers; writes happen
// only during reindex.
type VectorIndex interface {
	// Upsert stores the batch atomically. Shape and dimensionality are
	// validated before any entry becomes visible.
	Upsert(ctx context.Context, batch IndexBatch) error
	// Search returns up to k entries ordered by descending cosine
	// similarity, ties broken by insertion order. An empty index yields an
	// empty slice, not an error.
	Search(ctx context.Context, embedding []float32, k int) ([]ScoredChunk, error)
	// Clear removes all entries. Clearing an empty index is a no-op.
	Clear(ctx context.Context) error
	// Count returns the number of live entries, or 0 on any backend
	// failure. It must never return an error: it is used for startup
	// idempotency checks and cannot be allowed to block boot.
	Count(ctx context.Context) int
}

// IndexBatch carries parallel slices of texts, embeddings and metadata for
// a single atomic upsert.
type IndexBatch struct {
	Texts      []string
	Embeddings [][]float32
	Metadata   []domain.ChunkMetadata
}

// Validate checks the batch shape and that every embedding has the given
// dimensionality. Called by index implementations before writing anything.
func (b IndexBatch) Validate(dimensions int) error {
	if len(b.Texts) != len(b.Embeddings) || len(b.Texts) != len(b.Metadata) {
		return domain.ErrShapeMismatch
	}
	for _, emb := range b.Embeddings {
		if len(emb) != dimensions {
			return domain.ErrDimensionMismatch
		}
	}
	return nil
}

// Len returns the number of entries in the batch.
func (b IndexBatch) Len() int {
	return len(b.Texts)
}

// ScoredChunk is one retrieval result: chunk text plus cosine similarity
// in [-1, 1], scored as 1 - cosine_distance.
type ScoredChunk struct {
	Text  string
	Score float32
}
