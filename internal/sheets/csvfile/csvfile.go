// Package csvfile reads expense exports in CSV form.
package csvfile

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"kakeibo/internal/core"
	"kakeibo/internal/sheets"
)

// Reader streams rows from a CSV export with a header line.
type Reader struct {
	csv    *csv.Reader
	header sheets.Header
}

var _ sheets.RowReader = (*Reader)(nil)

// NewReader reads the header line from r and returns a Reader positioned
// at the first data row.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	cells, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("read header: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h, err := sheets.ParseHeader(cells)
	if err != nil {
		return nil, err
	}
	return &Reader{csv: cr, header: h}, nil
}

// Read implements sheets.RowReader.
func (r *Reader) Read() (core.RawRow, error) {
	cells, err := r.csv.Read()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return core.RawRow{}, &sheets.RowError{Line: perr.StartLine, Err: perr.Err}
		}
		return core.RawRow{}, err
	}
	line, _ := r.csv.FieldPos(0)
	return r.header.Row(line, cells), nil
}
