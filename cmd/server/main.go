package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/Isydoria/lighton-workflow-generator/internal/api/http"
	appExecution "github.com/Isydoria/lighton-workflow-generator/internal/application/execution"
	"github.com/Isydoria/lighton-workflow-generator/internal/application/generator"
	appWorkflow "github.com/Isydoria/lighton-workflow-generator/internal/application/workflow"
	"github.com/Isydoria/lighton-workflow-generator/internal/config"
	"github.com/Isydoria/lighton-workflow-generator/internal/domain/execution"
	"github.com/Isydoria/lighton-workflow-generator/internal/domain/workflow"
	"github.com/Isydoria/lighton-workflow-generator/internal/infrastructure/memory"
	"github.com/Isydoria/lighton-workflow-generator/internal/infrastructure/postgres"
	"github.com/Isydoria/lighton-workflow-generator/internal/metrics"
	"github.com/Isydoria/lighton-workflow-generator/internal/paradigm"
	"github.com/Isydoria/lighton-workflow-generator/internal/sandbox"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// repositories
	var workflowRepo workflow.Repository
	var executionRepo execution.Repository
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db error: %v", err)
		}
		defer pool.Close()
		if err := postgres.RunMigrations(ctx, pool, "internal/migrations"); err != nil {
			log.Fatalf("migration error: %v", err)
		}
		workflowRepo = postgres.NewWorkflowRepository(pool)
		executionRepo = postgres.NewExecutionRepository(pool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory storage")
		workflowRepo = memory.NewWorkflowStore()
		executionRepo = memory.NewExecutionStore()
	}

	clientOpts := func() []paradigm.Option {
		return []paradigm.Option{
			paradigm.WithChatModel(cfg.ChatModel),
			paradigm.WithFallbackTool(cfg.SearchFallbackTool),
			paradigm.WithIngestPoll(cfg.IngestPoll),
			paradigm.WithAnalysisPoll(cfg.AnalysisPoll),
			paradigm.WithCallObserver(metrics.ObserveAPICall),
		}
	}

	// shared client for generation and file passthrough; executions get
	// their own so upload cleanup stays per-run
	sharedClient := paradigm.NewClient(cfg.ParadigmAPIKey, cfg.ParadigmBaseURL, logger, clientOpts()...)
	clientFactory := func() appExecution.DocumentClient {
		return paradigm.NewClient(cfg.ParadigmAPIKey, cfg.ParadigmBaseURL, logger, clientOpts()...)
	}

	// services
	gen := generator.NewChatGenerator(sharedClient, cfg.ChatModel, logger)
	workflowSvc := appWorkflow.NewService(workflowRepo, gen, appExecution.OperationNames(), cfg.WorkflowTTL, logger)
	runner := sandbox.NewRunner(cfg.ExecutionTimeout, logger)
	executionSvc := appExecution.NewService(workflowRepo, executionRepo, runner, clientFactory, cfg.WorkflowTTL, logger)

	apiServer := httpapi.NewServer(workflowSvc, executionSvc, sharedClient, cfg.CORSOrigins)

	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		// no WriteTimeout: synchronous executions can run for the full
		// execution timeout
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// expiry sweep
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				now := time.Now().UTC()
				if n, err := workflowRepo.DeleteExpired(gctx, now); err != nil {
					logger.Error().Err(err).Msg("workflow expiry sweep failed")
				} else if n > 0 {
					logger.Info().Int("deleted", n).Msg("expired workflows removed")
				}
				if n, err := executionRepo.DeleteExpired(gctx, now); err != nil {
					logger.Error().Err(err).Msg("execution expiry sweep failed")
				} else if n > 0 {
					logger.Info().Int("deleted", n).Msg("expired executions removed")
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
}
