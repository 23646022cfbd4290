package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/mdconv/internal/api"
	"github.com/timmy/mdconv/internal/api/handler"
	"github.com/timmy/mdconv/internal/cache"
	"github.com/timmy/mdconv/internal/config"
	"github.com/timmy/mdconv/internal/jobs"
	"github.com/timmy/mdconv/internal/logger"
	"github.com/timmy/mdconv/internal/pipeline"
	"github.com/timmy/mdconv/internal/repository"
	"github.com/timmy/mdconv/internal/service"
	"github.com/timmy/mdconv/internal/storage"
)

func main() {
	appLogger := logger.NewFromEnv(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// CONFIG_PATH is honoured by config.Load when the path is empty
	cfg, err := config.Load("")
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx := appLogger.WithContext(context.Background())
	health := map[string]handler.HealthCheck{}

	layout := cache.Layout{
		UploadRoot:   cfg.Paths.Uploads,
		MarkdownRoot: cfg.Paths.Markdown,
		CacheRoot:    cfg.Paths.Cache,
	}
	for _, dir := range []string{layout.UploadRoot, layout.MarkdownRoot, layout.CacheRoot, cfg.Paths.Work} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			appLogger.WithError(err).Fatalf("Failed to create %s", dir)
		}
	}
	health["filesystem"] = func(context.Context) error {
		_, err := os.Stat(layout.MarkdownRoot)
		return err
	}

	// Job state
	var jobStore jobs.Store
	if cfg.Database.Driver == "memory" {
		jobStore = jobs.NewMemoryStore()
		appLogger.Warn("Using in-memory job store; jobs will not survive a restart")
	} else {
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize database")
		}
		sqlDB, err := db.DB()
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to get database handle")
		}
		defer sqlDB.Close()
		health["database"] = sqlDB.PingContext
		jobStore = repository.NewJobRepository(db)
	}

	// Optional S3-compatible mirror of outputs
	var (
		pipelineOpts []pipeline.Option
		serviceOpts  []service.ConversionOption
	)
	if cfg.Storage.Enabled {
		objectStorage, err := storage.NewStorage(cfg.Storage)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}
		if err := objectStorage.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
		mirror := storage.NewMirror(objectStorage, cfg.Storage.Prefix)
		pipelineOpts = append(pipelineOpts, pipeline.WithPublisher(mirror))
		serviceOpts = append(serviceOpts, service.WithMirror(mirror))
		appLogger.WithField("bucket", cfg.Storage.Bucket).Info("Output mirror enabled")
	}

	pipe, err := pipeline.FromConfig(ctx, cfg, layout, pipelineOpts...)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to build conversion pipeline")
	}

	cacheStore := cache.NewStore(layout)
	manager := jobs.NewManager(jobStore, pipe, cacheStore, cfg.Jobs.Workers)
	if _, err := manager.RecoverOrphaned(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to recover orphaned jobs")
	}

	sweeper, err := jobs.NewSweeper(jobStore, cfg.Jobs.Retention, cfg.Jobs.SweepSchedule)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to schedule job sweeper")
	}
	sweeper.Start()
	defer sweeper.Stop()

	svc := service.NewConversionService(cacheStore, manager, serviceOpts...)
	router := api.SetupRouter(&cfg.Server, svc, handler.NewHealthHandler(health))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Conversions still running at shutdown were cancelled")
	}

	appLogger.Info("Server exited")
}
