package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"kakeibo/internal/backend"
	"kakeibo/internal/cache"
	"kakeibo/internal/cli"
	apphttp "kakeibo/internal/http"
	"kakeibo/internal/log"
	"kakeibo/internal/worker"
)

const cacheSweepInterval = 5 * time.Minute

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	backups, closeBackups, err := backend.NewBackupService(context.Background(), cfg, res.Snapshotter, logger)
	if err != nil {
		logger.Error("Failed to initialize backups", log.FieldError, err)
		os.Exit(1)
	}

	opts := apphttp.Options{
		Logger:             logger,
		UploadMaxBytes:     cfg.UploadMaxBytes,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}
	// Leave the interface nil when backups are off.
	if backups != nil {
		opts.Backup = backups
	}
	srv := apphttp.NewServer(":"+cfg.Port, res.Ledger, opts)

	cacheManager := cache.NewManager(func(removed int) {
		logger.WithComponent(log.ComponentCache).Debug("Expired summaries removed", "removed", removed)
	})
	cacheManager.Register(res.Ledger)
	cacheManager.StartCleanup(cacheSweepInterval)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if err := closeBackups(); err != nil {
			logger.Warn("Backup uploader close error", log.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	// Replacements committed by other processes refresh the summaries this
	// process serves.
	periodWorker := worker.NewPeriodWorker(res.Ledger, logger, cfg.StartupWarmPeriods)
	if err := periodWorker.StartupWarm(ctx); err != nil {
		logger.Error("Startup warm failed", log.FieldError, err)
	}
	if res.AMQP != nil {
		go func() {
			err := res.AMQP.ConsumePeriodsReplaced(ctx, periodWorker.HandlePeriodsReplaced)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
		}()
	}

	logger.Info("Starting kakeibo server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp", res.AMQP != nil,
		"backups", backups != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
