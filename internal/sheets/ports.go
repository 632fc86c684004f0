package sheets

import (
	"errors"
	"fmt"
	"strings"

	"kakeibo/internal/core"
)

// Ports for inbound row sources.
type (
	// RowReader yields export rows in order, one per call, and returns
	// io.EOF after the last row. A *RowError reports a single malformed
	// row; reading may continue after it. Any other error is fatal.
	RowReader interface {
		Read() (core.RawRow, error)
	}
)

// RowError is a row-level read failure.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

var ErrMissingColumn = errors.New("missing required column")

// Column names accepted in export headers, English first.
var columnAliases = map[string][]string{
	"ParentCategory": {"ParentCategory", "親カテゴリ"},
	"Date":           {"Date", "日付"},
	"FlowDirection":  {"FlowDirection", "収入/支出"},
	"PaymentMethod":  {"PaymentMethod", "入金/支払方法"},
	"Amount":         {"Amount", "金額"},
	"Location":       {"Location", "場所"},
	"Memo":           {"Memo", "メモ"},
}

// Header maps canonical column names to positions in a row.
type Header map[string]int

// ParseHeader locates the known columns in a header row. ParentCategory
// and Date are required.
func ParseHeader(cells []string) (Header, error) {
	pos := make(map[string]int, len(cells))
	for i, c := range cells {
		c = strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
		if _, dup := pos[c]; !dup {
			pos[c] = i
		}
	}
	h := Header{}
	for canonical, aliases := range columnAliases {
		for _, a := range aliases {
			if i, ok := pos[a]; ok {
				h[canonical] = i
				break
			}
		}
	}
	for _, required := range []string{"ParentCategory", "Date"} {
		if _, ok := h[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}
	return h, nil
}

// Row builds a RawRow from cells. Missing trailing cells read as empty.
func (h Header) Row(line int, cells []string) core.RawRow {
	get := func(name string) string {
		i, ok := h[name]
		if !ok || i >= len(cells) {
			return ""
		}
		return cells[i]
	}
	return core.RawRow{
		Line:           line,
		ParentCategory: get("ParentCategory"),
		Date:           get("Date"),
		FlowDirection:  get("FlowDirection"),
		PaymentMethod:  get("PaymentMethod"),
		Amount:         get("Amount"),
		Location:       get("Location"),
		Memo:           get("Memo"),
	}
}
