package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/askfolio/askfolio/internal/service"
)

// ReindexProcessor rebuilds the similarity index so profile edits are
// picked up without a restart. Each run clears and fully re-embeds;
// schedule it at hours, not seconds.
type ReindexProcessor struct {
	indexer *service.Indexer
}

// NewReindexProcessor creates a processor around the given indexer.
func NewReindexProcessor(indexer *service.Indexer) *ReindexProcessor {
	return &ReindexProcessor{indexer: indexer}
}

// Process runs one forced reindex. The index is cleared before the
// rebuild, so a failing run degrades retrieval until the next interval.
func (p *ReindexProcessor) Process(ctx context.Context) error {
	report := p.indexer.Reindex(ctx, true)
	if !report.Success {
		return fmt.Errorf("scheduled reindex failed: %s", report.Message)
	}
	log.Printf("scheduled reindex complete: %d chunks, %d embeddings",
		report.ChunksProcessed, report.EmbeddingsGenerated)
	return nil
}
