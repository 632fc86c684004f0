package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"kakeibo/internal/cache"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/sheets"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RecordStore is the transactional ledger store.
type RecordStore interface {
	// ReplacePeriods atomically swaps every record of periods for records.
	ReplacePeriods(ctx context.Context, periods []core.Period, records []core.LedgerRecord) error
	ListExpenseRecords(ctx context.Context, period core.Period) ([]core.LedgerRecord, error)
	ListPeriods(ctx context.Context) ([]core.PeriodCount, error)
	// PeriodVersion counts committed replacements of period. Every process
	// sharing the store sees the same value.
	PeriodVersion(ctx context.Context, period core.Period) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Publisher announces committed replacements.
type Publisher interface {
	PublishPeriodsReplaced(ctx context.Context, batchID string, periods []string, processed int) error
	Close() error
}

// IngestResult reports one ingest batch. Errors holds row-level messages
// and is filled even when Ingest fails.
type IngestResult struct {
	Success        bool
	BatchID        string
	Processed      int
	Errors         []string
	TouchedPeriods []core.Period
}

// Options tunes a LedgerService.
type Options struct {
	CacheSize   int
	CacheTTL    time.Duration
	WarmWorkers int
	Logger      *log.Logger
}

// cachedSummary is a summary tagged with the period version it was built from.
type cachedSummary struct {
	version int64
	summary core.Summary
}

// LedgerService folds row sources into the store and serves summaries.
type LedgerService struct {
	store     RecordStore
	publisher Publisher
	summaries *cache.LRUCache[cachedSummary]
	loader    *cache.Loader[cachedSummary]
	warm      int
	logger    *log.Logger
	slog      *log.StructuredLogger
}

// NewLedgerService wires a service. publisher may be nil.
func NewLedgerService(store RecordStore, publisher Publisher, opts Options) *LedgerService {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 64
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.WarmWorkers <= 0 {
		opts.WarmWorkers = 4
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	logger := opts.Logger.WithComponent(log.ComponentLedger)
	summaries := cache.NewLRUCache[cachedSummary](opts.CacheSize, opts.CacheTTL)
	return &LedgerService{
		store:     store,
		publisher: publisher,
		summaries: summaries,
		loader:    cache.NewLoader[cachedSummary](summaries),
		warm:      opts.WarmWorkers,
		logger:    logger,
		slog:      log.NewStructuredLogger(logger),
	}
}

// Ingest parses every row from r and replaces the touched periods with the
// valid records in one transaction. Malformed rows are skipped and listed
// in the result. A batch without valid records leaves the store untouched
// and returns ErrNoValidRecords; a failed transaction returns a
// *PersistenceError.
func (s *LedgerService) Ingest(ctx context.Context, r sheets.RowReader) (IngestResult, error) {
	res := IngestResult{BatchID: uuid.NewString()}

	var records []core.LedgerRecord
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var rowErr *sheets.RowError
		if errors.As(err, &rowErr) {
			res.Errors = append(res.Errors, rowErr.Error())
			s.logger.DebugContext(ctx, "Skipping unreadable row", log.FieldBatchID, res.BatchID, log.FieldError, err)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("read rows: %w", err)
		}
		rec, err := core.ParseRow(row)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			s.logger.DebugContext(ctx, "Skipping invalid row", log.FieldBatchID, res.BatchID, log.FieldError, err)
			continue
		}
		records = append(records, rec)
	}

	if len(res.Errors) > 0 {
		s.logger.WarnContext(ctx, "Rows rejected during ingest",
			log.FieldBatchID, res.BatchID,
			log.FieldRowErrors, len(res.Errors))
	}
	if len(records) == 0 {
		return res, ErrNoValidRecords
	}

	periods := core.Periods(records)
	// The transaction runs to completion even if the caller goes away.
	if err := s.store.ReplacePeriods(context.WithoutCancel(ctx), periods, records); err != nil {
		perr := &PersistenceError{Periods: periods, Err: err}
		s.slog.LogError(ctx, "Ledger batch rolled back", perr, log.OpReplace,
			log.NewFields().WithBatch(res.BatchID, len(records), periodStrings(periods)))
		return res, perr
	}

	s.loader.Invalidate(periodStrings(periods)...)

	res.Success = true
	res.Processed = len(records)
	res.TouchedPeriods = periods
	s.slog.LogIngest(ctx, res.BatchID, res.Processed, len(res.Errors), periodStrings(periods))

	if s.publisher != nil {
		if err := s.publisher.PublishPeriodsReplaced(ctx, res.BatchID, periodStrings(periods), res.Processed); err != nil {
			// Don't fail the ingest, the batch is committed.
			s.logger.ErrorContext(ctx, "Failed to publish periods replaced",
				log.FieldBatchID, res.BatchID, log.FieldError, err)
		}
	}
	return res, nil
}

// Summarize returns the expense summary of period. A cached summary is
// served only while the stored period version still matches it, so a
// replacement committed by any process sharing the store is seen on the
// next call. Callers must not modify the returned slices.
func (s *LedgerService) Summarize(ctx context.Context, period core.Period) (core.Summary, error) {
	version, err := s.store.PeriodVersion(ctx, period)
	if err != nil {
		return core.Summary{}, fmt.Errorf("load period %s: %w", period, err)
	}

	key := string(period)
	load := func(ctx context.Context) (cachedSummary, error) {
		return s.loadSummary(ctx, period)
	}
	entry, err := s.loader.GetOrLoad(ctx, key, load)
	if err != nil {
		return core.Summary{}, err
	}
	if entry.version < version {
		s.logger.DebugContext(ctx, "Cached summary is stale",
			log.FieldPeriod, key,
			"cached_version", entry.version,
			"stored_version", version)
		s.loader.Invalidate(key)
		if entry, err = s.loader.GetOrLoad(ctx, key, load); err != nil {
			return core.Summary{}, err
		}
	}
	return entry.summary, nil
}

func (s *LedgerService) loadSummary(ctx context.Context, period core.Period) (cachedSummary, error) {
	// Read the version before the records: the tag may lag the data, never lead it.
	version, err := s.store.PeriodVersion(ctx, period)
	if err != nil {
		return cachedSummary{}, fmt.Errorf("load period %s: %w", period, err)
	}
	records, err := s.store.ListExpenseRecords(ctx, period)
	if err != nil {
		return cachedSummary{}, fmt.Errorf("load period %s: %w", period, err)
	}
	sum := core.Aggregate(period, records)
	s.logger.DebugContext(ctx, "Summary computed",
		log.FieldPeriod, string(period),
		log.FieldGrandTotal, sum.GrandTotal,
		log.FieldPersons, sum.PersonCount,
		"version", version)
	return cachedSummary{version: version, summary: sum}, nil
}

// Settle summarizes period and computes its settlement.
func (s *LedgerService) Settle(ctx context.Context, period core.Period) (core.Summary, core.Settlement, error) {
	sum, err := s.Summarize(ctx, period)
	if err != nil {
		return core.Summary{}, core.Settlement{}, err
	}
	return sum, core.Settle(sum.PersonTotals), nil
}

// Periods lists stored periods with their record counts, newest first.
func (s *LedgerService) Periods(ctx context.Context) ([]core.PeriodCount, error) {
	periods, err := s.store.ListPeriods(ctx)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	return periods, nil
}

// WarmSummaries computes the summaries of periods concurrently so later
// reads hit the cache.
func (s *LedgerService) WarmSummaries(ctx context.Context, periods []core.Period) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.warm)
	for _, p := range periods {
		g.Go(func() error {
			_, err := s.Summarize(ctx, p)
			return err
		})
	}
	return g.Wait()
}

// CleanExpired drops expired summaries. It lets a cache.Manager sweep the
// service.
func (s *LedgerService) CleanExpired() int {
	return s.summaries.CleanExpired()
}

func (s *LedgerService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close closes both storage and AMQP connections
func (s *LedgerService) Close() error {
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	return errors.Join(errs...)
}

func periodStrings(periods []core.Period) []string {
	out := make([]string, len(periods))
	for i, p := range periods {
		out[i] = string(p)
	}
	return out
}
