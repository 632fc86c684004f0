// Package backup snapshots the ledger database and ships it off-site.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kakeibo/internal/log"
)

// Snapshotter writes a consistent copy of the ledger to a file.
type Snapshotter interface {
	Snapshot(ctx context.Context, dest string) error
}

// Uploader ships a finished snapshot somewhere durable.
type Uploader interface {
	Name() string
	Upload(ctx context.Context, path, fileName string) error
}

// Health states reported by Service.Health.
const (
	StatusOK      = "ok"
	StatusWarning = "warning"
	StatusError   = "error"
)

var ErrBackupRunning = errors.New("backup already running")

// Result describes one backup run.
type Result struct {
	FileName    string        `json:"fileName"`
	Bytes       int64         `json:"bytes"`
	Uploaded    bool          `json:"uploaded"`
	Destination string        `json:"destination,omitempty"`
	LocalPath   string        `json:"localPath,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// HealthStatus is the backup subsystem's self check.
type HealthStatus struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	LastRun *Result `json:"lastRun,omitempty"`
}

type Service struct {
	snap     Snapshotter
	uploader Uploader
	dir      string
	logger   *log.Logger
	now      func() time.Time

	running sync.Mutex
	mu      sync.Mutex
	last    *Result
}

// NewService creates a backup service writing snapshots under dir.
// uploader may be nil, in which case snapshots stay on local disk.
func NewService(snap Snapshotter, uploader Uploader, dir string, logger *log.Logger) *Service {
	if dir == "" {
		dir = os.TempDir()
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		snap:     snap,
		uploader: uploader,
		dir:      dir,
		logger:   logger.WithComponent(log.ComponentBackup),
		now:      time.Now,
	}
}

func (s *Service) fileName(t time.Time) string {
	return fmt.Sprintf("kakeibo_backup_%s.db", t.UTC().Format("2006-01-02T15-04-05.000Z"))
}

// Perform takes one snapshot and uploads it. The local file is removed
// after an upload attempt whether or not it succeeded. Overlapping calls
// fail with ErrBackupRunning.
func (s *Service) Perform(ctx context.Context) (Result, error) {
	if !s.running.TryLock() {
		return Result{}, ErrBackupRunning
	}
	defer s.running.Unlock()

	start := s.now()
	res := Result{FileName: s.fileName(start), StartedAt: start}
	err := s.perform(ctx, &res)
	res.Duration = s.now().Sub(start)
	if err != nil {
		res.Error = err.Error()
		s.logger.ErrorContext(ctx, "Backup failed",
			log.FieldBackupFile, res.FileName,
			log.FieldError, err)
	}
	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()
	return res, err
}

func (s *Service) perform(ctx context.Context, res *Result) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	path := filepath.Join(s.dir, res.FileName)

	s.logger.InfoContext(ctx, "Starting backup", log.FieldBackupFile, res.FileName)
	if err := s.snap.Snapshot(ctx, path); err != nil {
		os.Remove(path)
		return fmt.Errorf("snapshot: %w", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}
	res.Bytes = fi.Size()

	if s.uploader == nil {
		res.LocalPath = path
		s.logger.WarnContext(ctx, "No backup uploader configured, snapshot kept locally",
			log.FieldBackupFile, path,
			log.FieldBytes, res.Bytes)
		return nil
	}

	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.WarnContext(ctx, "Failed to remove local snapshot", log.FieldBackupFile, path, log.FieldError, err)
		}
	}()
	if err := s.uploader.Upload(ctx, path, res.FileName); err != nil {
		return fmt.Errorf("upload to %s: %w", s.uploader.Name(), err)
	}
	res.Uploaded = true
	res.Destination = s.uploader.Name()
	s.logger.InfoContext(ctx, "Backup uploaded",
		log.FieldBackupFile, res.FileName,
		log.FieldBytes, res.Bytes,
		"destination", res.Destination)
	return nil
}

// LastResult returns the most recent run, if any.
func (s *Service) LastResult() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}

// Health reports error when the backup directory is unusable or the last
// run failed, warning when no uploader is configured, ok otherwise.
func (s *Service) Health(ctx context.Context) HealthStatus {
	var h HealthStatus
	if last, ok := s.LastResult(); ok {
		h.LastRun = &last
	}

	if err := checkWritable(s.dir); err != nil {
		h.Status, h.Message = StatusError, fmt.Sprintf("backup dir not writable: %v", err)
		return h
	}
	if h.LastRun != nil && h.LastRun.Error != "" {
		h.Status, h.Message = StatusError, "last backup failed: "+h.LastRun.Error
		return h
	}
	if s.uploader == nil {
		h.Status, h.Message = StatusWarning, "no uploader configured; snapshots are kept locally"
		return h
	}
	h.Status, h.Message = StatusOK, "backups upload to "+s.uploader.Name()
	return h
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".kakeibo-health-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
