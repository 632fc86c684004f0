package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"kakeibo/internal/core"
)

func record(month, day int, category, person string, amount int64, flow core.FlowDirection) core.LedgerRecord {
	d := core.NewDate(2024, month, day)
	return core.LedgerRecord{Date: d, FlowDirection: flow, Category: category, Person: person, Amount: amount, Period: core.PeriodOf(d)}
}

func TestStoreReplaceAndList(t *testing.T) {
	s := New()
	ctx := context.Background()
	batch := []core.LedgerRecord{
		record(3, 5, "Food", "Bob", 1000, core.FlowExpense),
		record(3, 1, "Food", "Bob", 500, core.FlowExpense),
		record(3, 2, "Daily", "Alice", 700, core.FlowExpense),
		record(3, 3, "Salary", "Alice", 9999, core.FlowIncome),
		record(4, 1, "Food", "Carol", 10, core.FlowExpense),
	}
	for i := 0; i < 2; i++ {
		if err := s.ReplacePeriods(ctx, core.Periods(batch), batch); err != nil {
			t.Fatalf("ReplacePeriods: %v", err)
		}
	}

	got, _ := s.ListExpenseRecords(ctx, "2024-03")
	want := []core.LedgerRecord{batch[2], batch[1], batch[0]}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v\nwant %+v", got, want)
	}

	periods, _ := s.ListPeriods(ctx)
	wantPeriods := []core.PeriodCount{{Period: "2024-04", RecordCount: 1}, {Period: "2024-03", RecordCount: 4}}
	if !reflect.DeepEqual(periods, wantPeriods) {
		t.Fatalf("periods %+v", periods)
	}
}

func TestStoreFailedReplaceKeepsState(t *testing.T) {
	s := New()
	ctx := context.Background()
	good := []core.LedgerRecord{record(3, 1, "Food", "Alice", 100, core.FlowExpense), record(4, 1, "Food", "Bob", 200, core.FlowExpense)}
	if err := s.ReplacePeriods(ctx, core.Periods(good), good); err != nil {
		t.Fatal(err)
	}
	bad := []core.LedgerRecord{record(3, 2, "Food", "Carol", 1, core.FlowExpense), record(4, 2, "Food", "Dave", -1, core.FlowExpense)}
	if err := s.ReplacePeriods(ctx, core.Periods(bad), bad); err == nil {
		t.Fatalf("expected error")
	}
	march, _ := s.ListExpenseRecords(ctx, "2024-03")
	april, _ := s.ListExpenseRecords(ctx, "2024-04")
	if len(march) != 1 || march[0].Person != "Alice" || len(april) != 1 || april[0].Person != "Bob" {
		t.Fatalf("state changed after failed replace: %+v %+v", march, april)
	}
}

func TestStoreEmptyReplaceRemovesPeriod(t *testing.T) {
	s := New()
	ctx := context.Background()
	batch := []core.LedgerRecord{record(3, 1, "Food", "Alice", 100, core.FlowExpense)}
	_ = s.ReplacePeriods(ctx, core.Periods(batch), batch)
	if err := s.ReplacePeriods(ctx, []core.Period{"2024-03"}, nil); err != nil {
		t.Fatal(err)
	}
	periods, _ := s.ListPeriods(ctx)
	if len(periods) != 0 {
		t.Fatalf("expected no periods, got %+v", periods)
	}
}

func TestStoreRejectsRecordsWithoutPeriods(t *testing.T) {
	s := New()
	ctx := context.Background()
	batch := []core.LedgerRecord{record(3, 1, "Food", "Alice", 100, core.FlowExpense)}
	if err := s.ReplacePeriods(ctx, nil, batch); !errors.Is(err, core.ErrPeriodMismatch) {
		t.Fatalf("expected ErrPeriodMismatch, got %v", err)
	}
	if err := s.ReplacePeriods(ctx, []core.Period{"2024-04"}, batch); !errors.Is(err, core.ErrPeriodMismatch) {
		t.Fatalf("expected ErrPeriodMismatch for a foreign record, got %v", err)
	}
	if periods, _ := s.ListPeriods(ctx); len(periods) != 0 {
		t.Fatalf("rejected batch was stored: %+v", periods)
	}
	if err := s.ReplacePeriods(ctx, nil, nil); err != nil {
		t.Fatalf("empty replace: %v", err)
	}
}

func TestStorePeriodVersion(t *testing.T) {
	s := New()
	ctx := context.Background()
	if v, _ := s.PeriodVersion(ctx, "2024-03"); v != 0 {
		t.Fatalf("unwritten period version=%d", v)
	}
	batch := []core.LedgerRecord{record(3, 1, "Food", "Alice", 100, core.FlowExpense)}
	for i := 0; i < 2; i++ {
		if err := s.ReplacePeriods(ctx, core.Periods(batch), batch); err != nil {
			t.Fatal(err)
		}
	}
	bad := []core.LedgerRecord{record(3, 2, "Food", "Bob", -1, core.FlowExpense)}
	_ = s.ReplacePeriods(ctx, core.Periods(bad), bad)

	if v, _ := s.PeriodVersion(ctx, "2024-03"); v != 2 {
		t.Fatalf("version=%d, want 2", v)
	}
	if v, _ := s.PeriodVersion(ctx, "2024-04"); v != 0 {
		t.Fatalf("untouched period version=%d", v)
	}
}
