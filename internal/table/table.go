// Package table holds the in-memory data model: an ordered set of named,
// equal-length columns, each either categorical (explicit ordered levels)
// or numeric, with missing as a distinct state.
package table

import (
	"fmt"
)

// Table is an ordered collection of equal-length columns. Tables are never
// mutated; With returns a new table sharing the existing columns.
type Table struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New builds a table from columns. Names must be unique and all columns
// must have the same length.
func New(cols ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if c == nil {
			return nil, fmt.Errorf("column %d is nil", i)
		}
		if i == 0 {
			t.rows = c.Len()
		} else if c.Len() != t.rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d: %w", c.Name, c.Len(), t.rows, ErrLength)
		}
		if _, ok := t.index[c.Name]; ok {
			return nil, fmt.Errorf("column %q: %w", c.Name, ErrDuplicateColumn)
		}
		t.index[c.Name] = i
		t.cols = append(t.cols, c)
	}
	return t, nil
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return t.rows }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.cols) }

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Columns returns the columns in order. The slice is a copy; the columns
// themselves are shared and must not be modified.
func (t *Table) Columns() []*Column {
	return append([]*Column(nil), t.cols...)
}

// Has reports whether a column named name exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("column %q: %w", name, ErrNoColumn)
	}
	return t.cols[i], nil
}

// With returns a new table with cols appended. Existing columns are never
// replaced: a name clash is ErrDuplicateColumn.
func (t *Table) With(cols ...*Column) (*Table, error) {
	all := make([]*Column, 0, len(t.cols)+len(cols))
	all = append(all, t.cols...)
	all = append(all, cols...)
	return New(all...)
}

// Select returns a new table holding only the named columns, in the given
// order.
func (t *Table) Select(names ...string) (*Table, error) {
	cols := make([]*Column, 0, len(names))
	for _, n := range names {
		c, err := t.Column(n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return New(cols...)
}

// Take returns a new table with the given rows, in order.
func (t *Table) Take(rows []int) *Table {
	cols := make([]*Column, len(t.cols))
	for j, c := range t.cols {
		cols[j] = c.Take(rows)
	}
	out, _ := New(cols...)
	if len(cols) == 0 {
		out.rows = len(rows)
	}
	return out
}

// Row returns the cells of row i in column order.
func (t *Table) Row(i int) []Value {
	out := make([]Value, len(t.cols))
	for j, c := range t.cols {
		out[j] = c.At(i)
	}
	return out
}
