package tabular

import (
	"fmt"

	"bankml/internal/errors"
)

// Table is an in-memory rectangular table of string cells with a header row.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Len returns the number of data rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of name in the header, or -1
func (t *Table) ColumnIndex(name string) int {
	for i, h := range t.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column's cells
func (t *Table) Column(name string) ([]string, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, errors.NotFound(fmt.Sprintf("column %q", name))
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Select returns a new table holding the given rows in the given order.
// Row slices are shared with the receiver.
func (t *Table) Select(rows []int) *Table {
	out := &Table{
		Headers: append([]string(nil), t.Headers...),
		Rows:    make([][]string, len(rows)),
	}
	for i, r := range rows {
		out.Rows[i] = t.Rows[r]
	}
	return out
}

// Project returns a new table restricted to the named columns, in order.
func (t *Table) Project(columns ...string) (*Table, error) {
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = t.ColumnIndex(c)
		if idx[i] < 0 {
			return nil, errors.NotFound(fmt.Sprintf("column %q", c))
		}
	}
	out := &Table{
		Headers: append([]string(nil), columns...),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, row := range t.Rows {
		projected := make([]string, len(idx))
		for j, k := range idx {
			projected[j] = row[k]
		}
		out.Rows[i] = projected
	}
	return out, nil
}
