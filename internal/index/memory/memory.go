// Package memory provides an in-memory similarity index. It backs tests
// and lets the service run in a degraded, non-persistent mode when no
// database is configured.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/askfolio/askfolio/internal/domain"
	"github.com/askfolio/askfolio/internal/service"
)

// Index is an in-memory service.VectorIndex with cosine similarity search.
// Safe for concurrent readers and a single writer.
type Index struct {
	mu         sync.RWMutex
	dimensions int
	entries    []entry
}

type entry struct {
	text      string
	embedding []float32
	metadata  domain.ChunkMetadata
}

// New creates an empty index with fixed embedding dimensionality.
func New(dimensions int) *Index {
	return &Index{dimensions: dimensions}
}

// Upsert stores the batch. Nothing is written if validation fails.
func (ix *Index) Upsert(_ context.Context, batch service.IndexBatch) error {
	if err := batch.Validate(ix.dimensions); err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i := range batch.Texts {
		embedding := make([]float32, len(batch.Embeddings[i]))
		copy(embedding, batch.Embeddings[i])
		ix.entries = append(ix.entries, entry{
			text:      batch.Texts[i],
			embedding: embedding,
			metadata:  batch.Metadata[i],
		})
	}
	return nil
}

// Search returns up to k entries by descending cosine similarity. The sort
// is stable, so equal scores keep insertion order.
func (ix *Index) Search(_ context.Context, embedding []float32, k int) ([]service.ScoredChunk, error) {
	if k < 1 {
		return nil, domain.ErrInvalidK
	}
	if len(embedding) != ix.dimensions {
		return nil, domain.ErrDimensionMismatch
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	results := make([]service.ScoredChunk, 0, len(ix.entries))
	for _, e := range ix.entries {
		results = append(results, service.ScoredChunk{
			Text:  e.text,
			Score: cosine(embedding, e.embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Clear removes all entries.
func (ix *Index) Clear(_ context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = nil
	return nil
}

// Count returns the number of stored entries.
func (ix *Index) Count(_ context.Context) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
