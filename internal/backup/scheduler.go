package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kakeibo/internal/log"

	"github.com/robfig/cron/v3"
)

// Scheduler runs backups on a cron schedule in a fixed time zone.
type Scheduler struct {
	cron    *cron.Cron
	loc     *time.Location
	entry   cron.EntryID
	service *Service
	logger  *log.Logger
}

// NewScheduler parses a standard five-field cron spec evaluated in tz.
func NewScheduler(service *Service, spec, tz string, logger *log.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	if logger == nil {
		logger = log.Nop()
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		loc:     loc,
		service: service,
		logger:  logger.WithComponent(log.ComponentBackup),
	}
	s.entry, err = s.cron.AddFunc(spec, s.run)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx := context.Background()
	s.logger.InfoContext(ctx, "Scheduled backup starting")
	if _, err := s.service.Perform(ctx); errors.Is(err, ErrBackupRunning) {
		s.logger.WarnContext(ctx, "Skipping scheduled backup, previous run still active")
	}
}

// Next returns the next scheduled run after now.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Schedule.Next(time.Now().In(s.loc))
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Backup scheduler started", "next_run", s.Next())
}

// Stop halts scheduling and waits for a running backup up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
