package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}

type LedgerRecord struct {
	ID            int64
	RecordDate    string
	IncomeExpense string
	PaymentMethod string
	Category      string
	Person        string
	Amount        int64
	Location      string
	Memo          string
	YearMonth     string
}

const deleteLedgerRecordsByPeriod = `DELETE FROM ledger_records WHERE year_month = ?`

func (q *Queries) DeleteLedgerRecordsByPeriod(ctx context.Context, yearMonth string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteLedgerRecordsByPeriod, yearMonth)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const insertLedgerRecord = `INSERT INTO ledger_records (
    record_date, income_expense, payment_method, category, person, amount, location, memo, year_month
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

type InsertLedgerRecordParams struct {
	RecordDate    string
	IncomeExpense string
	PaymentMethod string
	Category      string
	Person        string
	Amount        int64
	Location      string
	Memo          string
	YearMonth     string
}

func (q *Queries) InsertLedgerRecord(ctx context.Context, arg InsertLedgerRecordParams) error {
	_, err := q.db.ExecContext(ctx, insertLedgerRecord,
		arg.RecordDate,
		arg.IncomeExpense,
		arg.PaymentMethod,
		arg.Category,
		arg.Person,
		arg.Amount,
		arg.Location,
		arg.Memo,
		arg.YearMonth,
	)
	return err
}

const listRecordsByFlow = `SELECT id, record_date, income_expense, payment_method, category, person, amount, location, memo, year_month
FROM ledger_records
WHERE year_month = ? AND income_expense = ?
ORDER BY category, person, record_date, id`

type ListRecordsByFlowParams struct {
	YearMonth     string
	IncomeExpense string
}

func (q *Queries) ListRecordsByFlow(ctx context.Context, arg ListRecordsByFlowParams) ([]LedgerRecord, error) {
	rows, err := q.db.QueryContext(ctx, listRecordsByFlow, arg.YearMonth, arg.IncomeExpense)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LedgerRecord
	for rows.Next() {
		var i LedgerRecord
		if err := rows.Scan(
			&i.ID,
			&i.RecordDate,
			&i.IncomeExpense,
			&i.PaymentMethod,
			&i.Category,
			&i.Person,
			&i.Amount,
			&i.Location,
			&i.Memo,
			&i.YearMonth,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listPeriods = `SELECT year_month, COUNT(*) AS record_count
FROM ledger_records
GROUP BY year_month
ORDER BY year_month DESC`

type ListPeriodsRow struct {
	YearMonth   string
	RecordCount int64
}

func (q *Queries) ListPeriods(ctx context.Context) ([]ListPeriodsRow, error) {
	rows, err := q.db.QueryContext(ctx, listPeriods)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListPeriodsRow
	for rows.Next() {
		var i ListPeriodsRow
		if err := rows.Scan(&i.YearMonth, &i.RecordCount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const bumpPeriodVersion = `INSERT INTO period_versions (year_month, version) VALUES (?, 1)
ON CONFLICT(year_month) DO UPDATE SET version = version + 1`

func (q *Queries) BumpPeriodVersion(ctx context.Context, yearMonth string) error {
	_, err := q.db.ExecContext(ctx, bumpPeriodVersion, yearMonth)
	return err
}

const getPeriodVersion = `SELECT version FROM period_versions WHERE year_month = ?`

func (q *Queries) GetPeriodVersion(ctx context.Context, yearMonth string) (int64, error) {
	row := q.db.QueryRowContext(ctx, getPeriodVersion, yearMonth)
	var version int64
	err := row.Scan(&version)
	return version, err
}
