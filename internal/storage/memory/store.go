// Package memory is an in-process ledger store for tests and ephemeral runs.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"kakeibo/internal/core"
)

// Store keeps records per period and swaps whole period sets on replace.
type Store struct {
	mu       sync.RWMutex
	periods  map[core.Period][]core.LedgerRecord
	versions map[core.Period]int64
}

func New() *Store {
	return &Store{
		periods:  map[core.Period][]core.LedgerRecord{},
		versions: map[core.Period]int64{},
	}
}

// ReplacePeriods swaps the contents of every period in periods for the
// matching records. Readers see either the old or the new state.
func (s *Store) ReplacePeriods(_ context.Context, periods []core.Period, records []core.LedgerRecord) error {
	if len(periods) == 0 {
		if len(records) > 0 {
			return fmt.Errorf("%w: no periods given for %d records", core.ErrPeriodMismatch, len(records))
		}
		return nil
	}
	next := make(map[core.Period][]core.LedgerRecord, len(periods))
	for _, p := range periods {
		next[p] = nil
	}
	for _, r := range records {
		if _, ok := next[r.Period]; !ok {
			return fmt.Errorf("%w: %s", core.ErrPeriodMismatch, r.Period)
		}
		if r.Amount < 0 {
			return fmt.Errorf("negative amount %d", r.Amount)
		}
		next[r.Period] = append(next[r.Period], r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for p, recs := range next {
		s.versions[p]++
		if len(recs) == 0 {
			delete(s.periods, p)
			continue
		}
		s.periods[p] = recs
	}
	return nil
}

// ListExpenseRecords returns copies of the expense records in period,
// ordered by category, person and date.
func (s *Store) ListExpenseRecords(_ context.Context, period core.Period) ([]core.LedgerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.LedgerRecord
	for _, r := range s.periods[period] {
		if r.FlowDirection.IsExpense() {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b core.LedgerRecord) int {
		return cmp.Or(
			cmp.Compare(a.Category, b.Category),
			cmp.Compare(a.Person, b.Person),
			a.Date.Compare(b.Date),
		)
	})
	return out, nil
}

// PeriodVersion returns how many times period has been replaced.
func (s *Store) PeriodVersion(_ context.Context, period core.Period) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[period], nil
}

// ListPeriods returns the stored periods, newest first.
func (s *Store) ListPeriods(_ context.Context) ([]core.PeriodCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.PeriodCount, 0, len(s.periods))
	for p, recs := range s.periods {
		out = append(out, core.PeriodCount{Period: p, RecordCount: int64(len(recs))})
	}
	slices.SortFunc(out, func(a, b core.PeriodCount) int {
		return cmp.Compare(b.Period, a.Period)
	})
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
