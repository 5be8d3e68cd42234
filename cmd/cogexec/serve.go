package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/longregen/cogexec/internal/adapters/audit"
	"github.com/longregen/cogexec/internal/adapters/embedding"
	"github.com/longregen/cogexec/internal/adapters/entailment"
	cogexechttp "github.com/longregen/cogexec/internal/adapters/http"
	"github.com/longregen/cogexec/internal/adapters/http/handlers"
	"github.com/longregen/cogexec/internal/adapters/id"
	"github.com/longregen/cogexec/internal/adapters/memstore"
	"github.com/longregen/cogexec/internal/adapters/postgres"
	"github.com/longregen/cogexec/internal/adapters/ratelimit"
	"github.com/longregen/cogexec/internal/adapters/tracing"
	"github.com/longregen/cogexec/internal/application/executor"
	"github.com/longregen/cogexec/internal/application/memory"
	"github.com/longregen/cogexec/internal/application/orchestrator"
	"github.com/longregen/cogexec/internal/application/verifier"
	"github.com/longregen/cogexec/internal/application/wall"
	"github.com/longregen/cogexec/internal/ports"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the cogexec HTTP API server.

The server accepts utterances over POST /api/v1/turns and streams turn
progress over a WebSocket at GET /api/v1/ws.

A PostgreSQL database (COGEXEC_POSTGRES_URL) persists memory across
restarts; without one, an in-process store is used and memory does not
survive a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func maskDatabaseURL(dbURL string) string {
	parsed, err := url.Parse(dbURL)
	if err != nil {
		return "[invalid URL]"
	}
	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), "****")
		}
	}
	return parsed.String()
}

func runServer(ctx context.Context) error {
	log.Println("Starting cogexec API server...")
	log.Printf("  HTTP:     http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("  Planner:  %s", cfg.Planner.LLMURL)
	if cfg.Database.PostgresURL != "" {
		log.Printf("  Postgres: %s", maskDatabaseURL(cfg.Database.PostgresURL))
	} else {
		log.Println("  Postgres: not configured, using in-process memory store")
	}
	log.Println()

	log.Println("Initializing OpenTelemetry tracing...")
	shutdown, err := tracing.InitTracer("cogexec")
	if err != nil {
		log.Printf("Warning: failed to initialize tracing: %v", err)
	} else {
		defer func() {
			if err := shutdown(ctx); err != nil {
				log.Printf("error shutting down tracer: %v", err)
			}
		}()
	}

	var pool *pgxpool.Pool
	var backend ports.MemoryBackend
	var citationStore ports.CitationStore
	if cfg.Database.PostgresURL != "" {
		poolConfig, err := pgxpool.ParseConfig(cfg.Database.PostgresURL)
		if err != nil {
			return fmt.Errorf("failed to parse database URL: %w", err)
		}
		poolConfig.ConnConfig.RuntimeParams["timezone"] = "UTC"

		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return fmt.Errorf("failed to create database pool: %w", err)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Println("Database connection established")
		backend = postgres.NewMemoryBackend(pool)
		citationStore = postgres.NewCitationStore(pool)
	} else {
		backend = memstore.New()
		citationStore = memstore.NewCitationStore()
	}

	idGen := id.New()

	embeddingClient := embedding.NewClient(cfg.Memory.EmbeddingURL, cfg.Memory.EmbeddingAPIKey, cfg.Memory.EmbeddingModel, cfg.Memory.EmbeddingDimensions)
	memSvc := memory.NewService(backend, embeddingClient, idGen)
	log.Println("Memory service initialized")

	reg, dispatch, err := buildRegistry(citationStore)
	if err != nil {
		return err
	}
	log.Println("Tool registry initialized")

	pl := buildPlanner(reg)
	log.Println("Planner initialized")

	limiter := ratelimit.NewLimiter(buildRateLimitConfigs())
	auditCfg := audit.Config{Dir: cfg.Audit.Dir, MaxBytes: cfg.Audit.MaxBytes, MaxAge: time.Duration(cfg.Audit.MaxAgeHours) * time.Hour}
	auditSink, err := audit.NewSink(auditCfg)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	w := wall.New(reg, limiter, auditSink, nil)
	log.Println("Validation Wall initialized")

	ex := executor.New(reg, dispatch, cfg.Executor.ScratchRoot)
	ex.SetToolTimeout("research", time.Duration(cfg.Executor.MaxResearchTimeoutSec)*time.Second)
	log.Println("Sandbox Executor initialized")

	var entailmentModel ports.EntailmentModel
	if cfg.Verifier.UseKeywordFallback || cfg.Verifier.EntailmentURL == "" {
		entailmentModel = entailment.NewKeywordOverlap()
	} else {
		entailmentModel = entailment.NewClient(cfg.Verifier.EntailmentURL, cfg.Verifier.EntailmentAPIKey, cfg.Verifier.EntailmentModel)
	}
	v := verifier.New(reg, entailmentModel, citationStore)
	log.Println("Verifier initialized")

	notifier := handlers.NewWebSocketNotifier()
	orch := orchestrator.New(memSvc, pl, w, ex, v, idGen, notifier)
	log.Println("Pipeline Orchestrator initialized")

	server := cogexechttp.NewServer(cfg, orch, pool, notifier)

	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		log.Printf("received signal: %v", sig)
		log.Println("shutting down gracefully...")

		shutdownCtx, shutdownCancel := context.WithTimeout(serverCtx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		log.Println("server stopped")
		return nil
	}
}
