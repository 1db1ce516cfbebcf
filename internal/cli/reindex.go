package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/askfolio/askfolio/internal/config"
	"github.com/askfolio/askfolio/internal/database"
	"github.com/askfolio/askfolio/internal/index/memory"
	"github.com/askfolio/askfolio/internal/index/pgvector"
	"github.com/askfolio/askfolio/internal/service"
)

// ReindexCmd returns the reindex command
func ReindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the profile similarity index",
		Long:  "Chunk and embed the profile document and store the vectors in the database",
		RunE:  runReindex,
	}

	cmd.Flags().Bool("force", false, "Clear an already populated index before rebuilding")
	cmd.Flags().Bool("dry-run", false, "Index into memory only and report, leaving the database untouched")

	return cmd
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	encoder, loader, err := buildEncoderAndLoader(ctx, cfg)
	if err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	var index service.VectorIndex
	if dryRun {
		index = memory.New(encoder.Dimensions())
		// The memory index starts empty, so force has nothing to clear.
		force = false
	} else {
		pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()
		index = pgvector.New(pool, encoder.Dimensions())
	}

	report := service.NewIndexer(loader, encoder, index).Reindex(ctx, force)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	if !report.Success {
		return fmt.Errorf("reindex failed: %s", report.Message)
	}
	return nil
}
