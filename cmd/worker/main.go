// workflowcore worker - event-sourced workflow execution engine
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/smilemakc/workflowcore/internal/config"
	"github.com/smilemakc/workflowcore/internal/domainerr"
	"github.com/smilemakc/workflowcore/internal/healthhttp"
	"github.com/smilemakc/workflowcore/internal/infrastructure/cache"
	"github.com/smilemakc/workflowcore/internal/infrastructure/lock"
	"github.com/smilemakc/workflowcore/internal/infrastructure/logger"
	"github.com/smilemakc/workflowcore/internal/infrastructure/storage"
	"github.com/smilemakc/workflowcore/internal/infrastructure/stream"
	"github.com/smilemakc/workflowcore/internal/worker"
	"github.com/smilemakc/workflowcore/pkg/actions"
	"github.com/smilemakc/workflowcore/pkg/eventsourcing"
	"github.com/smilemakc/workflowcore/pkg/runtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)

	appLogger.Info("starting workflowcore worker", "mode", cfg.Worker.Mode)

	dbConfig := &storage.Config{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MinConnections,
		ConnMaxLifetime: cfg.Database.MaxConnLifetime,
		ConnMaxIdleTime: cfg.Database.MaxIdleTime,
		Debug:           cfg.Database.Debug,
	}
	db, err := storage.NewDB(dbConfig)
	if err != nil {
		appLogger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer storage.Close(db)

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		appLogger.Error("failed to initialize redis", "error", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	rdb := redisCache.Client()
	streamClient := stream.NewClient(rdb)
	lockService := lock.NewService(rdb)

	eventRepo := storage.NewEventRepository(db)
	processingRepo := storage.NewProcessingRepository(db)
	executionRepo := storage.NewExecutionRepository(db)
	actionResultRepo := storage.NewActionResultRepository(db)
	registrationRepo := storage.NewRegistrationRepository(db)
	attachmentRepo := storage.NewAttachmentRepository(db)

	actionRegistry := actions.NewRegistry(actionResultRepo).WithTxOpener(storage.NewBunTxOpener(db))
	registerBuiltinActions(actionRegistry, appLogger)

	cache60s := eventsourcing.NewCache(60 * time.Second)
	engine := eventsourcing.NewEngine(eventRepo, cache60s)

	wfRuntime := runtime.New(runtime.Deps{
		Executions:    executionRepo,
		Events:        eventRepo,
		Processing:    processingRepo,
		Registrations: registrationRepo,
		Actions:       actionRegistry,
		Engine:        engine,
		Tx:            storage.NewDBTxRunner(db),
		Stream:        streamClient,
		Locks:         lockService,
		Config: runtime.Config{
			LockTTL:      cfg.Worker.LockTTL,
			LockWaitTime: cfg.Worker.LockWaitTime,
			MaxRetries:   cfg.Worker.MaxRetries,
		},
		Logger: appLogger,
	})
	registerWorkflows(wfRuntime)

	w := worker.New(worker.Deps{
		Config:      cfg.Worker,
		Runtime:     wfRuntime,
		Processing:  processingRepo,
		Attachments: attachmentRepo,
		Events:      eventRepo,
		Stream:      streamClient,
		Logger:      appLogger,
		Classifier:  domainerr.DefaultClassifier{},
	})

	healthServer := healthhttp.NewServer(&healthAdapter{w: w})
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      healthServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		appLogger.Info("health HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("health HTTP server error", "error", err)
		}
	}()

	ctx := context.Background()
	if err := w.Run(ctx); err != nil {
		appLogger.Error("worker exited with error", "error", err)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("health HTTP server shutdown failed", "error", err)
	}

	appLogger.Info("worker stopped")
}

// healthAdapter bridges worker.Snapshot to healthhttp.Snapshot so healthhttp
// never imports the worker package.
type healthAdapter struct {
	w *worker.Worker
}

func (a *healthAdapter) Health() healthhttp.Snapshot {
	s := a.w.Health()
	return healthhttp.Snapshot{
		Status:           s.Status,
		WorkerID:         s.WorkerID,
		Uptime:           s.Uptime,
		EventsProcessed:  s.EventsProcessed,
		EventsSucceeded:  s.EventsSucceeded,
		EventsFailed:     s.EventsFailed,
		AvgDurationMs:    s.AvgDurationMs,
		LastError:        s.LastError,
		LastErrorTime:    s.LastErrorTime,
		ActiveEventCount: s.ActiveEventCount,
		MemoryUsageBytes: s.MemoryUsageBytes,
	}
}
