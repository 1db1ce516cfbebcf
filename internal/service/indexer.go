package service

import (
	"context"
	"fmt"
	"log"

	"github.com/askfolio/askfolio/internal/domain"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ProfileLoader loads the source profile document.
type ProfileLoader interface {
	Load(ctx context.Context) (*domain.Profile, error)
	// Source describes where the document comes from, for metadata and logs.
	Source() string
}

// IndexReport summarizes one reindex run.
type IndexReport struct {
	Success             bool   `json:"success"`
	ChunksProcessed     int    `json:"chunks_processed"`
	EmbeddingsGenerated int    `json:"embeddings_generated"`
	ExistingChunks      int    `json:"existing_chunks,omitempty"`
	Message             string `json:"message"`
}

// Indexer populates the similarity index from the profile document.
type Indexer struct {
	loader  ProfileLoader
	encoder EmbeddingClient
	index   VectorIndex
}

// NewIndexer creates a new Indexer instance
func NewIndexer(loader ProfileLoader, encoder EmbeddingClient, index VectorIndex) *Indexer {
	return &Indexer{
		loader:  loader,
		encoder: encoder,
		index:   index,
	}
}

// Reindex chunks the profile, embeds each chunk and stores the batch.
//
// Idempotent: with force=false a populated index is left untouched and the
// run reports success with zero processed chunks, so repeated startups
// never duplicate data. With force=true any existing entries are cleared
// first. A chunk whose embedding fails is logged and skipped; a missing or
// unreadable profile yields a failure report rather than aborting the
// caller, which keeps serving in a degraded unindexed state.
func (ix *Indexer) Reindex(ctx context.Context, force bool) *IndexReport {
	existing := ix.index.Count(ctx)
	if existing > 0 && !force {
		log.Printf("index already contains %d chunks, skipping reindex", existing)
		return &IndexReport{
			Success:        true,
			ExistingChunks: existing,
			Message:        "index already populated",
		}
	}

	if force && existing > 0 {
		log.Printf("clearing %d existing chunks before reindex", existing)
		if err := ix.index.Clear(ctx); err != nil {
			return &IndexReport{
				Success: false,
				Message: fmt.Sprintf("failed to clear index: %v", err),
			}
		}
	}

	profile, err := ix.loader.Load(ctx)
	if err != nil {
		log.Printf("reindex failed to load profile: %v", err)
		return &IndexReport{
			Success: false,
			Message: fmt.Sprintf("failed to load profile: %v", err),
		}
	}

	chunks := BuildChunks(profile)
	if len(chunks) == 0 {
		log.Printf("no chunks generated from profile %s", ix.loader.Source())
		return &IndexReport{
			Success: false,
			Message: "no chunks generated from profile",
		}
	}

	source := ix.loader.Source()
	batch := IndexBatch{
		Texts:      make([]string, 0, len(chunks)),
		Embeddings: make([][]float32, 0, len(chunks)),
		Metadata:   make([]domain.ChunkMetadata, 0, len(chunks)),
	}
	for _, chunk := range chunks {
		embedding, err := ix.encoder.GenerateEmbedding(ctx, chunk.Text)
		if err != nil {
			// Partial-failure tolerance: one bad chunk never fails the run.
			log.Printf("skipping chunk %s: embedding failed: %v", chunk.ID, err)
			continue
		}
		batch.Texts = append(batch.Texts, chunk.Text)
		batch.Embeddings = append(batch.Embeddings, embedding)
		batch.Metadata = append(batch.Metadata, chunk.Metadata(source))
	}

	if batch.Len() == 0 {
		return &IndexReport{
			Success:         false,
			ChunksProcessed: len(chunks),
			Message:         "all chunk embeddings failed",
		}
	}

	if err := ix.index.Upsert(ctx, batch); err != nil {
		return &IndexReport{
			Success:             false,
			ChunksProcessed:     len(chunks),
			EmbeddingsGenerated: batch.Len(),
			Message:             fmt.Sprintf("failed to store chunks: %v", err),
		}
	}

	log.Printf("reindex complete: %d chunks processed, %d embeddings stored", len(chunks), batch.Len())
	return &IndexReport{
		Success:             true,
		ChunksProcessed:     len(chunks),
		EmbeddingsGenerated: batch.Len(),
		Message:             "index populated",
	}
}
