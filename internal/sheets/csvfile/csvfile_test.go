package csvfile

import (
	"errors"
	"io"
	"strings"
	"testing"

	"kakeibo/internal/sheets"
)

const zaimExport = "\ufeff日付,方法,カテゴリ,カテゴリの内訳,支払元,入金先,品目,メモ,お店,通貨,収入,支出,振替,残高調整,通貨変換前の金額,集計の設定,親カテゴリ,金額,収入/支出,入金/支払方法,場所\n" +
	"2024-03-01,payment,食費,食料品,財布,,,veg,,JPY,0,3000,0,0,3000,常に集計に含める,Food/Alice,3000,支出,Cash,Market\n" +
	"2024-03-05 18:00,payment,食費,外食,,,,,,JPY,0,1000,0,0,1000,常に集計に含める,Food/Bob,1000,支出,Card,Cafe\n"

func readAll(t *testing.T, r *Reader) (rows int, rowErrs int) {
	t.Helper()
	for {
		_, err := r.Read()
		if err == io.EOF {
			return
		}
		var re *sheets.RowError
		if errors.As(err, &re) {
			rowErrs++
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		rows++
	}
}

func TestReaderZaimExport(t *testing.T) {
	r, err := NewReader(strings.NewReader(zaimExport))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	first, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if first.Line != 2 || first.ParentCategory != "Food/Alice" || first.Amount != "3000" ||
		first.FlowDirection != "支出" || first.PaymentMethod != "Cash" || first.Location != "Market" || first.Memo != "veg" {
		t.Fatalf("unexpected first row %+v", first)
	}
	second, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if second.Date != "2024-03-05 18:00" || second.Line != 3 {
		t.Fatalf("unexpected second row %+v", second)
	}
	if _, err := r.Read(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestReaderShortRowsAndParseErrors(t *testing.T) {
	in := "ParentCategory,Date,Amount\n" +
		"Food/Alice,2024-03-01\n" +
		"Food/\"Bob,2024-03-02,5\n" +
		"Food/Carol,2024-03-03,7\n"
	r, err := NewReader(strings.NewReader(in))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	rows, rowErrs := readAll(t, r)
	if rows != 2 || rowErrs != 1 {
		t.Fatalf("rows=%d rowErrs=%d", rows, rowErrs)
	}
}

func TestReaderHeaderErrors(t *testing.T) {
	if _, err := NewReader(strings.NewReader("")); err == nil {
		t.Fatalf("expected error for empty input")
	}
	if _, err := NewReader(strings.NewReader("Amount,Memo\n1,x\n")); !errors.Is(err, sheets.ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
}
