package main

import (
	"context"
	"os"

	"kakeibo/internal/backend"
	"kakeibo/internal/backup"
	"kakeibo/internal/cli"
	"kakeibo/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting kakeibo-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	// Backups only read the store; notifications go to the server.
	backendCfg.AMQPURL = ""
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err)
		os.Exit(1)
	}

	backups, closeBackups, err := backend.NewBackupService(context.Background(), cfg, res.Snapshotter, logger)
	if err != nil {
		logger.Error("Failed to initialize backups", log.FieldError, err)
		os.Exit(1)
	}
	if backups == nil {
		logger.Error("Nothing to schedule, the worker needs BACKUP_ENABLED=true")
		_ = res.Cleanup()
		os.Exit(1)
	}
	scheduler, err := backup.NewScheduler(backups, cfg.BackupSchedule, cfg.BackupTimezone, logger)
	if err != nil {
		logger.Error("Failed to create backup scheduler", log.FieldError, err)
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("Backup scheduler started", "schedule", cfg.BackupSchedule, "next", scheduler.Next())

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := scheduler.Stop(ctx); err != nil {
			logger.Warn("Backup still running at shutdown", log.FieldError, err)
		}
		if err := closeBackups(); err != nil {
			logger.Warn("Backup uploader close error", log.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
