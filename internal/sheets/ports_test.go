package sheets

import (
	"errors"
	"testing"
)

func TestParseHeaderJapanese(t *testing.T) {
	h, err := ParseHeader([]string{"\ufeff日付", "方法", "親カテゴリ", "カテゴリ", "金額", "収入/支出", "メモ"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := h.Row(2, []string{"2024-03-01", "x", "Food/Alice", "y", "3000", "支出"})
	if row.Line != 2 || row.Date != "2024-03-01" || row.ParentCategory != "Food/Alice" || row.Amount != "3000" || row.FlowDirection != "支出" {
		t.Fatalf("unexpected row %+v", row)
	}
	if row.Memo != "" || row.Location != "" {
		t.Fatalf("missing cells should be empty: %+v", row)
	}
}

func TestParseHeaderEnglish(t *testing.T) {
	h, err := ParseHeader([]string{" ParentCategory ", "Date", "FlowDirection", "PaymentMethod", "Amount", "Location", "Memo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := h.Row(3, []string{"Food/Bob", "2024-03-05", "Expense", "Card", "1000", "Shop", "note"})
	if row.PaymentMethod != "Card" || row.Location != "Shop" || row.Memo != "note" {
		t.Fatalf("unexpected row %+v", row)
	}
}

func TestParseHeaderMissingRequired(t *testing.T) {
	_, err := ParseHeader([]string{"Date", "Amount"})
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
}

func TestRowErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := &RowError{Line: 4, Err: base}
	if !errors.Is(err, base) || err.Error() != "row 4: boom" {
		t.Fatalf("unexpected RowError behaviour: %v", err)
	}
}
