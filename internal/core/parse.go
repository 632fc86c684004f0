package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidComposite = errors.New("invalid composite field")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
)

// dateLayouts are tried in order against the date portion of a row.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-1-2",
	"2006/1/2",
	"2006.01.02",
	"20060102",
}

// ValidationError describes why a single row was rejected.
type ValidationError struct {
	Line  int
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("row %d: %v: %q", e.Line, e.Err, e.Value)
	}
	return fmt.Sprintf("%v: %q", e.Err, e.Value)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ParseRow validates one raw row and turns it into a LedgerRecord.
// It is pure: the same row always yields the same record or error.
func ParseRow(row RawRow) (LedgerRecord, error) {
	category, person, err := splitComposite(row.ParentCategory)
	if err != nil {
		return LedgerRecord{}, &ValidationError{Line: row.Line, Field: "ParentCategory", Value: row.ParentCategory, Err: err}
	}

	date, err := ParseDate(row.Date)
	if err != nil {
		return LedgerRecord{}, &ValidationError{Line: row.Line, Field: "Date", Value: row.Date, Err: err}
	}

	amount, err := ParseAmount(row.Amount)
	if err != nil {
		return LedgerRecord{}, &ValidationError{Line: row.Line, Field: "Amount", Value: row.Amount, Err: err}
	}

	return LedgerRecord{
		Date:          date,
		FlowDirection: ParseFlowDirection(row.FlowDirection),
		PaymentMethod: row.PaymentMethod,
		Category:      category,
		Person:        person,
		Amount:        amount,
		Location:      row.Location,
		Memo:          row.Memo,
		Period:        PeriodOf(date),
	}, nil
}

// splitComposite splits "<category>/<person>". Segments after the second
// are ignored.
func splitComposite(s string) (category, person string, err error) {
	parts := strings.Split(s, "/")
	if len(parts) < 2 {
		return "", "", ErrInvalidComposite
	}
	category = strings.TrimSpace(parts[0])
	person = strings.TrimSpace(parts[1])
	if category == "" || person == "" {
		return "", "", ErrInvalidComposite
	}
	return category, person, nil
}

// ParseDate parses the date part of a field, dropping any time component
// after the first space or ISO 8601 'T' separator.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " T"); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}
