// Package memory provides an in-memory row source.
package memory

import (
	"io"
	"sync"

	"kakeibo/internal/core"
	"kakeibo/internal/sheets"
)

type item struct {
	row core.RawRow
	err error
}

// Reader replays a fixed sequence of rows and errors.
type Reader struct {
	mu    sync.Mutex
	items []item
	pos   int
}

var _ sheets.RowReader = (*Reader)(nil)

// NewReader returns a Reader over rows. Rows without a line number are
// numbered as if a header occupied line 1.
func NewReader(rows ...core.RawRow) *Reader {
	r := &Reader{}
	for _, row := range rows {
		r.Add(row)
	}
	return r
}

// Add appends a row.
func (r *Reader) Add(row core.RawRow) *Reader {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row.Line == 0 {
		row.Line = len(r.items) + 2
	}
	r.items = append(r.items, item{row: row})
	return r
}

// AddError appends an error to be returned in sequence.
func (r *Reader) AddError(err error) *Reader {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item{err: err})
	return r
}

// Read implements sheets.RowReader.
func (r *Reader) Read() (core.RawRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos >= len(r.items) {
		return core.RawRow{}, io.EOF
	}
	it := r.items[r.pos]
	r.pos++
	return it.row, it.err
}

// Len reports the number of queued items.
func (r *Reader) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
