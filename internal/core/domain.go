package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	FlowExpense FlowDirection = "Expense"
	FlowIncome  FlowDirection = "Income"
)

type (
	// FlowDirection tells whether a record is money going out or coming in.
	// Only FlowExpense takes part in aggregation and settlement.
	FlowDirection string

	// Period is the calendar year-month key ("2024-03") records are grouped
	// and replaced by.
	Period string

	// RawRow is one row of an expense export, before validation.
	RawRow struct {
		Line           int
		ParentCategory string
		Date           string
		FlowDirection  string
		PaymentMethod  string
		Amount         string
		Location       string
		Memo           string
	}

	// LedgerRecord is one validated financial event.
	LedgerRecord struct {
		Date          time.Time
		FlowDirection FlowDirection
		PaymentMethod string
		Category      string
		Person        string
		Amount        int64
		Location      string
		Memo          string
		Period        Period
	}

	// PeriodCount is the number of stored records for a period.
	PeriodCount struct {
		Period      Period
		RecordCount int64
	}
)

var (
	ErrInvalidPeriod  = errors.New("invalid period")
	ErrPeriodMismatch = errors.New("record period not in replaced set")
)

// ParseFlowDirection maps export literals onto a FlowDirection. Unknown
// text is kept as-is so it is stored but never summed.
func ParseFlowDirection(s string) FlowDirection {
	s = strings.TrimSpace(s)
	switch {
	case s == "支出" || strings.EqualFold(s, string(FlowExpense)):
		return FlowExpense
	case s == "収入" || strings.EqualFold(s, string(FlowIncome)):
		return FlowIncome
	default:
		return FlowDirection(s)
	}
}

// IsExpense reports whether the record participates in aggregation.
func (f FlowDirection) IsExpense() bool {
	return f == FlowExpense
}

// PeriodOf derives the period key from a date.
func PeriodOf(t time.Time) Period {
	return Period(fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month())))
}

// ParsePeriod validates a "YYYY-MM" key.
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return PeriodOf(t), nil
}

func (p Period) String() string {
	return string(p)
}

// NewDate returns a UTC midnight date.
func NewDate(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// Periods returns the distinct periods of records in first-seen order.
func Periods(records []LedgerRecord) []Period {
	seen := make(map[Period]struct{}, 4)
	var out []Period
	for _, r := range records {
		if _, ok := seen[r.Period]; ok {
			continue
		}
		seen[r.Period] = struct{}{}
		out = append(out, r.Period)
	}
	return out
}
