package backend

import (
	"context"
	"fmt"

	"kakeibo/internal/amqp"
	"kakeibo/internal/backup"
	"kakeibo/internal/config"
	"kakeibo/internal/log"
	"kakeibo/internal/services"
	"kakeibo/internal/storage"
	"kakeibo/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Nop()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, cfg Config) (*BackendResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		store services.RecordStore
		snap  backup.Snapshotter
	)
	switch cfg.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		store, snap = repo, repo
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
	case MemoryBackend:
		store = memory.New()
		f.logger.InfoContext(ctx, "Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}

	amqpClient := f.connectAMQP(ctx, cfg)
	// Keep the interface nil when AMQP is off.
	var publisher services.Publisher
	if amqpClient != nil {
		publisher = amqpClient
	}

	ledger := services.NewLedgerService(store, publisher, services.Options{
		CacheSize:   cfg.CacheSize,
		CacheTTL:    cfg.CacheTTL,
		WarmWorkers: cfg.WarmWorkers,
		Logger:      f.logger,
	})

	return &BackendResult{
		Ledger:      ledger,
		AMQP:        amqpClient,
		Snapshotter: snap,
		Cleanup:     ledger.Close,
	}, nil
}

// connectAMQP returns nil when AMQP is disabled or unreachable; the
// ledger works without notifications.
func (f *DefaultFactory) connectAMQP(ctx context.Context, cfg Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, f.logger)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without notifications", log.FieldError, err)
		return nil
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)
	return client
}

// NewBackupService builds the backup service and its uploader from the
// application config. It returns nil when backups are disabled or the
// backend has nothing to snapshot.
func NewBackupService(ctx context.Context, appCfg *config.Config, snap backup.Snapshotter, logger *log.Logger) (*backup.Service, CleanupFunc, error) {
	noop := func() error { return nil }
	if !appCfg.BackupEnabled || snap == nil {
		return nil, noop, nil
	}

	var (
		uploader backup.Uploader
		cleanup  CleanupFunc = noop
	)
	switch {
	case appCfg.BackupNASURL != "":
		uploader = backup.NewNASUploader(appCfg.BackupNASURL, appCfg.BackupNASToken)
	case appCfg.BackupGCSBucket != "":
		gcs, err := backup.NewGCSUploader(ctx, appCfg.BackupGCSBucket, appCfg.BackupGCSPrefix)
		if err != nil {
			return nil, noop, fmt.Errorf("init GCS uploader: %w", err)
		}
		uploader, cleanup = gcs, gcs.Close
	}
	return backup.NewService(snap, uploader, appCfg.BackupDir, logger), cleanup, nil
}
