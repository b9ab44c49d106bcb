// Package bootstrap provides dependency initialization for the render API.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/clipforge/render-api/internal/config"
	"github.com/clipforge/render-api/internal/fetch"
	"github.com/clipforge/render-api/internal/job"
	"github.com/clipforge/render-api/internal/scheduler"
	"github.com/clipforge/render-api/internal/storage"
	"github.com/clipforge/render-api/internal/transcode"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Repository job.Repository
	Store      storage.Store
	Scheduler  *scheduler.Scheduler
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize storage
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize asset fetcher
	fetcher := fetch.NewFetcher(
		fetch.WithConnectTimeout(cfg.ConnectTimeout),
		fetch.WithStallTimeout(cfg.StallTimeout),
	)

	// Initialize transcode executor
	executor := transcode.NewExecutor(cfg.FFmpegPath,
		transcode.WithTimeout(cfg.TranscodeTimeout),
	)

	// Initialize job repository
	repo := job.NewMemoryRepository()

	// Initialize the scheduler
	sched := scheduler.New(repo, store, fetcher, executor, logger, scheduler.Options{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		JobTimeout:        cfg.JobTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		FallbackEnabled:   cfg.FallbackEnabled,
		MaxThreads:        cfg.FFmpegThreads,
		Retention:         cfg.Retention,
		ErrorRetention:    cfg.ErrorRetention,
		SweepInterval:     cfg.SweepInterval,
	})

	return &Dependencies{
		Repository: repo,
		Store:      store,
		Scheduler:  sched,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Store(cfg.TempDir, cfg.OutputDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStore(cfg.TempDir, cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
		slog.String("output_dir", cfg.OutputDir),
	)
	return localStore, nil
}
