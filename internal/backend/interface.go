package backend

import (
	"context"
	"time"

	"kakeibo/internal/amqp"
	"kakeibo/internal/backup"
	"kakeibo/internal/services"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult carries the wired ledger and the resources behind it.
type BackendResult struct {
	Ledger *services.LedgerService
	// AMQP is nil when notifications are disabled or the broker was
	// unreachable at startup.
	AMQP *amqp.Client
	// Snapshotter is nil for backends that cannot be backed up.
	Snapshotter backup.Snapshotter
	Cleanup     CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	CacheSize   int
	CacheTTL    time.Duration
	WarmWorkers int
}

// BackendType represents the type of ledger store
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

func (bt BackendType) String() string {
	return string(bt)
}
