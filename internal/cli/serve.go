// Package cli implements the askfoliod commands.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/askfolio/askfolio/internal/api/handlers"
	"github.com/askfolio/askfolio/internal/api/middleware"
	"github.com/askfolio/askfolio/internal/config"
	"github.com/askfolio/askfolio/internal/database"
	"github.com/askfolio/askfolio/internal/index/pgvector"
	"github.com/askfolio/askfolio/internal/jobs"
	"github.com/askfolio/askfolio/internal/llm"
	"github.com/askfolio/askfolio/internal/openai"
	"github.com/askfolio/askfolio/internal/profile"
	"github.com/askfolio/askfolio/internal/repository"
	"github.com/askfolio/askfolio/internal/server"
	"github.com/askfolio/askfolio/internal/service"
	"github.com/askfolio/askfolio/internal/storage"
	"github.com/askfolio/askfolio/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the askfolio API server, indexing the profile document on first boot",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SentryDSN != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	encoder, loader, err := buildEncoderAndLoader(ctx, cfg)
	if err != nil {
		return err
	}

	index := pgvector.New(pool, encoder.Dimensions())
	indexer := service.NewIndexer(loader, encoder, index)

	// First boot populates the index; a failure degrades to contextless
	// answers rather than refusing to start.
	report := indexer.Reindex(ctx, false)
	if !report.Success {
		log.Printf("startup indexing failed, serving without context: %s", report.Message)
	}

	var reindexWorker *jobs.Worker
	if cfg.ReindexInterval > 0 {
		reindexWorker = jobs.NewWorker(jobs.NewReindexProcessor(indexer), cfg.ReindexInterval)
		go reindexWorker.Start(ctx)
		log.Printf("scheduled reindex every %v", cfg.ReindexInterval)
	}

	clients, err := buildCompletionClients(cfg)
	if err != nil {
		return err
	}

	engine := service.NewEngine(encoder, index, clients...)
	transcripts := repository.NewTranscriptRepository(pool)
	chatHandler := handlers.NewChatHandler(engine, transcripts)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	router := server.NewRouter(server.RouterConfig{
		ChatHandler:    chatHandler,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimiter:    rateLimiter,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if reindexWorker != nil {
		reindexWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	rateLimiter.Stop()

	log.Println("server exited")
	return nil
}

// buildEncoderAndLoader wires the embeddings client and the profile source.
func buildEncoderAndLoader(ctx context.Context, cfg *config.Config) (*openai.Client, service.ProfileLoader, error) {
	encoder := openai.NewClient(openai.Config{
		BaseURL: cfg.EmbeddingBaseURL,
		APIKey:  cfg.EmbeddingAPIKey,
		Model:   cfg.EmbeddingModel,
	})

	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		log.Printf("loading profile from s3 bucket '%s' key '%s'", cfg.S3Bucket, cfg.S3ObjectKey)
		return encoder, profile.NewObjectLoader(s3Client, cfg.S3ObjectKey), nil
	}

	return encoder, profile.NewFileLoader(cfg.ProfilePath), nil
}

// buildCompletionClients assembles the provider chain in fallback order.
func buildCompletionClients(cfg *config.Config) ([]service.CompletionClient, error) {
	var clients []service.CompletionClient

	if cfg.HasOpenRouter() {
		clients = append(clients, llm.NewClient(llm.Config{
			Provider: "openrouter",
			BaseURL:  cfg.OpenRouterBaseURL,
			APIKey:   cfg.OpenRouterAPIKey,
			Model:    cfg.OpenRouterModel,
			Timeout:  cfg.CompletionTimeout,
		}))
	}
	if cfg.HasGroq() {
		clients = append(clients, llm.NewClient(llm.Config{
			Provider: "groq",
			BaseURL:  cfg.GroqBaseURL,
			APIKey:   cfg.GroqAPIKey,
			Model:    cfg.GroqModel,
			Timeout:  cfg.CompletionTimeout,
		}))
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("no completion provider configured: set ASKFOLIO_OPENROUTER_API_KEY or ASKFOLIO_GROQ_API_KEY")
	}

	return clients, nil
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
