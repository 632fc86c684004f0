package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/log"

	_ "modernc.org/sqlite"
)

const recordDateLayout = "2006-01-02"

var ErrPeriodMismatch = core.ErrPeriodMismatch

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	path    string
	logger  *log.Logger

	// writeMu serializes replacements so concurrent batches never interleave.
	writeMu sync.Mutex
}

// DSN returns the connection string used for dbPath.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.WithComponent(log.ComponentStorage)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dsn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("SQLite ledger ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		path:    dbPath,
		logger:  logger,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ReplacePeriods deletes every stored record of each period in periods and
// inserts records, all in one transaction. On any failure nothing changes.
func (r *SQLiteRepository) ReplacePeriods(ctx context.Context, periods []core.Period, records []core.LedgerRecord) error {
	if len(periods) == 0 {
		if len(records) > 0 {
			return fmt.Errorf("%w: no periods given for %d records", ErrPeriodMismatch, len(records))
		}
		return nil
	}
	allowed := make(map[core.Period]bool, len(periods))
	for _, p := range periods {
		allowed[p] = true
	}
	for _, rec := range records {
		if !allowed[rec.Period] {
			return fmt.Errorf("%w: %s", ErrPeriodMismatch, rec.Period)
		}
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	start := time.Now()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	for _, p := range periods {
		deleted, err := qtx.DeleteLedgerRecordsByPeriod(ctx, string(p))
		if err != nil {
			return fmt.Errorf("delete period %s: %w", p, err)
		}
		r.logger.InfoContext(ctx, "Cleared period", log.FieldPeriod, string(p), log.FieldDeleted, deleted)
		if err := qtx.BumpPeriodVersion(ctx, string(p)); err != nil {
			return fmt.Errorf("bump version of %s: %w", p, err)
		}
	}

	for i, rec := range records {
		err := qtx.InsertLedgerRecord(ctx, InsertLedgerRecordParams{
			RecordDate:    rec.Date.Format(recordDateLayout),
			IncomeExpense: string(rec.FlowDirection),
			PaymentMethod: rec.PaymentMethod,
			Category:      rec.Category,
			Person:        rec.Person,
			Amount:        rec.Amount,
			Location:      rec.Location,
			Memo:          rec.Memo,
			YearMonth:     string(rec.Period),
		})
		if err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.InfoContext(ctx, "Periods replaced",
		log.FieldPeriods, periodStrings(periods),
		"inserted", len(records),
		log.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// ListExpenseRecords returns the expense records of period ordered by
// category, person and date.
func (r *SQLiteRepository) ListExpenseRecords(ctx context.Context, period core.Period) ([]core.LedgerRecord, error) {
	rows, err := r.queries.ListRecordsByFlow(ctx, ListRecordsByFlowParams{
		YearMonth:     string(period),
		IncomeExpense: string(core.FlowExpense),
	})
	if err != nil {
		return nil, fmt.Errorf("list records for %s: %w", period, err)
	}
	out := make([]core.LedgerRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toCore()
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", row.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// PeriodVersion returns how many times period has been replaced. It is 0
// for a period that was never written.
func (r *SQLiteRepository) PeriodVersion(ctx context.Context, period core.Period) (int64, error) {
	version, err := r.queries.GetPeriodVersion(ctx, string(period))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read version of %s: %w", period, err)
	}
	return version, nil
}

// ListPeriods returns every stored period with its record count, newest first.
func (r *SQLiteRepository) ListPeriods(ctx context.Context) ([]core.PeriodCount, error) {
	rows, err := r.queries.ListPeriods(ctx)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	out := make([]core.PeriodCount, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.PeriodCount{Period: core.Period(row.YearMonth), RecordCount: row.RecordCount})
	}
	return out, nil
}

// Snapshot writes a consistent copy of the database to dest. dest must not
// exist.
func (r *SQLiteRepository) Snapshot(ctx context.Context, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("snapshot to %s: %w", dest, err)
	}
	return nil
}

func (row LedgerRecord) toCore() (core.LedgerRecord, error) {
	date, err := time.Parse(recordDateLayout, row.RecordDate)
	if err != nil {
		return core.LedgerRecord{}, err
	}
	return core.LedgerRecord{
		Date:          date,
		FlowDirection: core.FlowDirection(row.IncomeExpense),
		PaymentMethod: row.PaymentMethod,
		Category:      row.Category,
		Person:        row.Person,
		Amount:        row.Amount,
		Location:      row.Location,
		Memo:          row.Memo,
		Period:        core.Period(row.YearMonth),
	}, nil
}

func periodStrings(periods []core.Period) []string {
	out := make([]string, len(periods))
	for i, p := range periods {
		out[i] = string(p)
	}
	return out
}
