// Package table holds the columnar tabular model shared by every pipeline
// stage. Artifacts are persisted as CSV; encoding is deterministic so that
// identical inputs always yield byte-identical artifact content.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Table is a rectangular set of string cells with a named header row.
type Table struct {
	Columns []string
	Rows    [][]string
}

func New(columns ...string) *Table {
	return &Table{Columns: columns}
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of a named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// AppendRow adds one row. The row must match the header width.
func (t *Table) AppendRow(row []string) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("row has %d cells, header has %d columns", len(row), len(t.Columns))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Column returns a copy of the named column's cells.
func (t *Table) Column(name string) ([]string, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Select returns a new table holding the requested columns, in the
// requested order.
func (t *Table) Select(columns []string) (*Table, error) {
	indices := make([]int, len(columns))
	for i, name := range columns {
		idx := t.ColumnIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("column %q not found", name)
		}
		indices[i] = idx
	}
	out := &Table{Columns: append([]string(nil), columns...)}
	out.Rows = make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		selected := make([]string, len(indices))
		for j, idx := range indices {
			selected[j] = row[idx]
		}
		out.Rows[i] = selected
	}
	return out, nil
}

// AddColumn appends a column of cells to every row. A stage derives new
// features by adding columns rather than mutating existing ones.
func (t *Table) AddColumn(name string, cells []string) error {
	if t.HasColumn(name) {
		return fmt.Errorf("column %q already exists", name)
	}
	if len(cells) != len(t.Rows) {
		return fmt.Errorf("column %q has %d cells, table has %d rows", name, len(cells), len(t.Rows))
	}
	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], cells[i])
	}
	return nil
}

// SetColumn replaces the cells of an existing column.
func (t *Table) SetColumn(name string, cells []string) error {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return fmt.Errorf("column %q not found", name)
	}
	if len(cells) != len(t.Rows) {
		return fmt.Errorf("column %q has %d cells, table has %d rows", name, len(cells), len(t.Rows))
	}
	for i := range t.Rows {
		t.Rows[i][idx] = cells[i]
	}
	return nil
}

// Clone returns a deep copy. Stages must not mutate their inputs in place.
func (t *Table) Clone() *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	out.Rows = make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}

// Float64Column parses a column as float64. Empty cells map to NaN via the
// ok mask (ok[i] == false).
func (t *Table) Float64Column(name string) ([]float64, []bool, error) {
	cells, err := t.Column(name)
	if err != nil {
		return nil, nil, err
	}
	values := make([]float64, len(cells))
	ok := make([]bool, len(cells))
	for i, cell := range cells {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		v, parseErr := strconv.ParseFloat(cell, 64)
		if parseErr != nil {
			return nil, nil, fmt.Errorf("column %q row %d: %w", name, i, parseErr)
		}
		values[i] = v
		ok[i] = true
	}
	return values, ok, nil
}

// FormatFloats renders float64 cells with a fixed precision so encoding is
// platform independent and reruns are byte identical.
func FormatFloats(values []float64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strconv.FormatFloat(v, 'f', 6, 64)
	}
	return out
}

// WriteCSV encodes the table with the header row first.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV decodes a table written by WriteCSV.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	out := &Table{Columns: header}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}
