// Package pgvector implements the similarity index on Postgres with the
// pgvector extension.
package pgvector

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/askfolio/askfolio/internal/domain"
	"github.com/askfolio/askfolio/internal/service"
)

// Index stores chunk embeddings in the profile_chunks table. The seq column
// is a bigserial preserving insertion order, used to break similarity ties
// deterministically.
type Index struct {
	pool       *pgxpool.Pool
	dimensions int
}

// New creates an index over the given pool with fixed dimensionality.
func New(pool *pgxpool.Pool, dimensions int) *Index {
	return &Index{pool: pool, dimensions: dimensions}
}

// Upsert validates and stores the batch in a single transaction, so no
// entry becomes visible unless all do.
func (ix *Index) Upsert(ctx context.Context, batch service.IndexBatch) error {
	if err := batch.Validate(ix.dimensions); err != nil {
		return err
	}

	tx, err := ix.pool.Begin(ctx)
	if err != nil {
		return domain.NewDomainErrorWithCause(
			domain.ErrCodeIndexUnavailable, "failed to begin index transaction", err)
	}
	defer tx.Rollback(ctx)

	for i := range batch.Texts {
		meta := batch.Metadata[i]
		_, err := tx.Exec(ctx,
			`INSERT INTO profile_chunks
				(chunk_id, content, section, subsection, char_count, source, embedding)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7)`,
			meta.ChunkID,
			batch.Texts[i],
			string(meta.Section),
			meta.Subsection,
			meta.CharCount,
			meta.Source,
			pgv.NewVector(batch.Embeddings[i]),
		)
		if err != nil {
			return domain.NewDomainErrorWithCause(
				domain.ErrCodeIndexUnavailable,
				fmt.Sprintf("failed to store chunk %s", meta.ChunkID), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.NewDomainErrorWithCause(
			domain.ErrCodeIndexUnavailable, "failed to commit index batch", err)
	}
	return nil
}

// Search runs an exact cosine search. No ANN index is used: the corpus is
// small and an approximate scan would break the deterministic ordering.
func (ix *Index) Search(ctx context.Context, embedding []float32, k int) ([]service.ScoredChunk, error) {
	if k < 1 {
		return nil, domain.ErrInvalidK
	}
	if len(embedding) != ix.dimensions {
		return nil, domain.ErrDimensionMismatch
	}

	rows, err := ix.pool.Query(ctx,
		`SELECT content, 1 - (embedding <=> $1) AS score
		 FROM profile_chunks
		 ORDER BY embedding <=> $1 ASC, seq ASC
		 LIMIT $2`,
		pgv.NewVector(embedding), k,
	)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(
			domain.ErrCodeIndexUnavailable, "similarity search failed", err)
	}
	defer rows.Close()

	results := make([]service.ScoredChunk, 0, k)
	for rows.Next() {
		var r service.ScoredChunk
		var score float64
		if err := rows.Scan(&r.Text, &score); err != nil {
			return nil, domain.NewDomainErrorWithCause(
				domain.ErrCodeIndexUnavailable, "failed to scan search result", err)
		}
		r.Score = float32(score)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewDomainErrorWithCause(
			domain.ErrCodeIndexUnavailable, "similarity search failed", err)
	}
	return results, nil
}

// Clear truncates the table, resetting the insertion sequence as well.
func (ix *Index) Clear(ctx context.Context) error {
	_, err := ix.pool.Exec(ctx, `TRUNCATE profile_chunks RESTART IDENTITY`)
	if err != nil {
		return domain.NewDomainErrorWithCause(
			domain.ErrCodeIndexUnavailable, "failed to clear index", err)
	}
	return nil
}

// Count returns the number of stored chunks, or 0 when the store is
// unreachable. Used for the startup idempotency check, which must never
// block boot on a degraded store.
func (ix *Index) Count(ctx context.Context) int {
	var count int
	err := ix.pool.QueryRow(ctx, `SELECT COUNT(*) FROM profile_chunks`).Scan(&count)
	if err != nil {
		log.Printf("index count unavailable, reporting 0: %v", err)
		return 0
	}
	return count
}
