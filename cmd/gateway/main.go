// Command gateway starts the knowledge ingestion and retrieval gateway.
//
// The gateway is the single entry point for knowledge operations: document
// admission into the corpus, PDF and web ingestion jobs, completion
// webhooks, and intent-classified query answering against the external
// retrieval service. State lives in PostgreSQL (corpus, audit trail) and
// Redis (job tracking); completion events go out through Kafka.
//
// Usage:
//
//	go run ./cmd/gateway [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mecaparts/knowledge-gateway/internal/completion"
	"github.com/mecaparts/knowledge-gateway/internal/frontmatter"
	"github.com/mecaparts/knowledge-gateway/internal/gammes"
	gwhandler "github.com/mecaparts/knowledge-gateway/internal/gateway/handler"
	"github.com/mecaparts/knowledge-gateway/internal/gateway/router"
	"github.com/mecaparts/knowledge-gateway/internal/ingest"
	"github.com/mecaparts/knowledge-gateway/internal/intent"
	"github.com/mecaparts/knowledge-gateway/internal/jobs"
	"github.com/mecaparts/knowledge-gateway/internal/knowledge"
	"github.com/mecaparts/knowledge-gateway/internal/retrieval"
	"github.com/mecaparts/knowledge-gateway/internal/webhook"
	"github.com/mecaparts/knowledge-gateway/pkg/config"
	"github.com/mecaparts/knowledge-gateway/pkg/health"
	"github.com/mecaparts/knowledge-gateway/pkg/kafka"
	"github.com/mecaparts/knowledge-gateway/pkg/logger"
	"github.com/mecaparts/knowledge-gateway/pkg/metrics"
	"github.com/mecaparts/knowledge-gateway/pkg/postgres"
	"github.com/mecaparts/knowledge-gateway/pkg/redis"
	"github.com/mecaparts/knowledge-gateway/pkg/resilience"
)

// main wires PostgreSQL, Redis, Kafka, the external retrieval client behind
// its circuit breaker, and all domain services into the HTTP router.
// Graceful shutdown is triggered by SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting knowledge gateway",
		"port", cfg.Server.Port,
		"knowledge_root", cfg.Knowledge.Root,
		"retrieval_url", cfg.Retrieval.BaseURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// PostgreSQL: corpus documents and webhook audit trail.
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	// Redis: job tracking and the single-flight web job marker.
	rdb, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	slog.Info("connected to redis")

	// Kafka: completion event producer.
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IngestionCompleted)
	defer producer.Close()

	m := metrics.New()

	// External retrieval service behind a shared circuit breaker.
	breaker := resilience.NewCircuitBreaker("retrieval", resilience.CircuitBreakerConfig{})
	retrievalClient := retrieval.NewClient(cfg.Retrieval.BaseURL, cfg.Retrieval.Timeout, breaker, m)

	// Corpus admission.
	docStore := knowledge.NewPostgresStore(db)
	pipeline := ingest.NewPipeline(docStore, m)
	cleanup := ingest.NewCleanup(docStore)

	// Intake validation and gamme resolution over the knowledge root.
	intake := frontmatter.NewIntake(cfg.Knowledge.Root, cfg.Knowledge.QuarantineDir, cfg.Knowledge.IntakeCutoff, m)
	resolver := gammes.NewResolver(cfg.Knowledge.Root, cfg.Knowledge.GammesDir, cfg.Knowledge.DiagnosticsDir, retrievalClient)
	completionResolver := completion.NewResolver(
		cfg.Knowledge.Root, cfg.Knowledge.IntakeDir, cfg.Knowledge.IntakeCutoff,
		resolver, producer, m,
	)

	// Ingestion jobs.
	jobStore := jobs.NewRedisStore(rdb, cfg.Jobs.TTL)
	worker := jobs.NewCommandWorker(cfg.Jobs.ExtractorBin, retrievalClient)
	orchestrator := jobs.NewOrchestrator(jobs.Config{
		KnowledgeRoot: cfg.Knowledge.Root,
		ScratchDir:    cfg.Knowledge.ScratchDir,
		IntakeSubdir:  cfg.Knowledge.IntakeDir,
		PollInterval:  cfg.Jobs.PollInterval,
		PollAttempts:  cfg.Jobs.PollAttempts,
	}, jobStore, worker, intake, completionResolver, retrievalClient, m)

	sweeper := jobs.NewSweeper(jobStore, cfg.Jobs.SweepInterval, cfg.Jobs.OrphanAfter)
	go sweeper.Start(ctx)

	if cfg.Knowledge.WatchIntake {
		watcher := frontmatter.NewWatcher(intake, cfg.Knowledge.IntakeDir, 0)
		go func() {
			if err := watcher.Start(ctx); err != nil {
				slog.Error("intake watcher failed", "error", err)
			}
		}()
	}

	// Webhooks and query intents.
	webhookHandler := webhook.NewHandler(completionResolver, webhook.NewPostgresAuditStore(db), m)
	stats := intent.NewStats(m)

	// Health checks for the readiness probe.
	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if err := rdb.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("retrieval", func(ctx context.Context) health.ComponentHealth {
		if breaker.GetState() == resilience.StateOpen {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit breaker open"}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port)
		go metricsServer.Start()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	h := gwhandler.New(
		pipeline, cleanup,
		intake, cfg.Knowledge.IntakeDir,
		orchestrator, jobStore,
		webhookHandler, retrievalClient, stats,
	)
	chain := router.New(h, checker, m)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("knowledge gateway listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("knowledge gateway stopped")
}
