// Package http serves the ledger over a small JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"kakeibo/internal/backup"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/middleware/ratelimit"
	"kakeibo/internal/middleware/security"
	"kakeibo/internal/middleware/trace"
	"kakeibo/internal/services"
	"kakeibo/internal/sheets"
)

const defaultUploadMaxBytes = 10 << 20

// Ledger is the part of services.LedgerService the API needs.
type Ledger interface {
	Ingest(ctx context.Context, r sheets.RowReader) (services.IngestResult, error)
	Settle(ctx context.Context, period core.Period) (core.Summary, core.Settlement, error)
	Periods(ctx context.Context) ([]core.PeriodCount, error)
	Ping(ctx context.Context) error
}

// Backups is the part of backup.Service the API needs.
type Backups interface {
	Perform(ctx context.Context) (backup.Result, error)
	Health(ctx context.Context) backup.HealthStatus
}

// Options configures a Server. Zero values pick defaults.
type Options struct {
	Logger             *log.Logger
	UploadMaxBytes     int64
	RateLimitPerMinute int
	// Backup is optional; the backup endpoints answer 503 without it.
	Backup Backups
}

type Server struct {
	http.Server
	ledger    Ledger
	backup    Backups
	logger    *log.Logger
	maxUpload int64

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	startedAt        time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, ledger Ledger, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.UploadMaxBytes <= 0 {
		opts.UploadMaxBytes = defaultUploadMaxBytes
	}
	logger := opts.Logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		ledger:           ledger,
		backup:           opts.Backup,
		logger:           logger,
		maxUpload:        opts.UploadMaxBytes,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		securityDetector: security.NewDetector(),
		startedAt:        time.Now(),
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /summary", s.handleSummary)
	mux.HandleFunc("GET /periods", s.handlePeriods)
	mux.HandleFunc("POST /backup/manual", s.handleBackupManual)
	mux.HandleFunc("GET /backup/status", s.handleBackupStatus)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	var h http.Handler = mux
	h = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, http.MethodPost)(h)
	h = s.securityDetector.Middleware(h)
	h = s.traceMiddleware.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Close releases background resources without draining connections.
func (s *Server) Close() error {
	s.rateLimiter.Stop()
	return s.Server.Close()
}
