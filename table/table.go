package table

import (
	"fmt"
	"reflect"
	"time"
)

// Field describes one column of a Schema.
type Field struct {
	Name   string
	Type   Type
	Levels []string
}

// Schema is the ordered list of declared column types of a table.
type Schema []Field

// Field returns the field with the given name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Table is an ordered set of equal-length columns.
type Table struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New builds a table from columns that must all have the same length and
// distinct names.
func New(cols ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(cols))}
	for _, c := range cols {
		if err := t.Set(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Empty returns a table with the schema's columns and zero rows.
func Empty(schema Schema) *Table {
	t := &Table{index: make(map[string]int, len(schema))}
	for _, f := range schema {
		t.index[f.Name] = len(t.cols)
		t.cols = append(t.cols, &Column{Name: f.Name, Type: f.Type, Values: []any{}, Levels: f.Levels})
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// Columns returns the columns in order. The slice must not be modified.
func (t *Table) Columns() []*Column { return t.cols }

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Set replaces the column with the same name, or appends it.
func (t *Table) Set(c *Column) error {
	if len(t.cols) > 0 && c.Len() != t.rows {
		return fmt.Errorf("table: column %q has %d rows, table has %d", c.Name, c.Len(), t.rows)
	}
	if len(t.cols) == 0 {
		t.rows = c.Len()
	}
	if i, ok := t.index[c.Name]; ok {
		t.cols[i] = c
		return nil
	}
	t.index[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// Drop removes the named columns; absent names are ignored.
func (t *Table) Drop(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	kept := t.cols[:0]
	for _, c := range t.cols {
		if !drop[c.Name] {
			kept = append(kept, c)
		}
	}
	t.cols = kept
	t.index = make(map[string]int, len(kept))
	for i, c := range kept {
		t.index[c.Name] = i
	}
}

// Filter returns a new table with the rows for which keep returns true.
func (t *Table) Filter(keep func(row int) bool) *Table {
	rows := make([]int, 0, t.rows)
	for i := 0; i < t.rows; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	out := &Table{index: make(map[string]int, len(t.cols)), rows: len(rows)}
	for i, c := range t.cols {
		out.index[c.Name] = i
		out.cols = append(out.cols, c.Take(rows))
	}
	return out
}

// Clone returns a deep copy of the column slices.
func (t *Table) Clone() *Table {
	out := &Table{index: make(map[string]int, len(t.cols)), rows: t.rows}
	for i, c := range t.cols {
		out.index[c.Name] = i
		out.cols = append(out.cols, c.Clone())
	}
	return out
}

// Schema returns the declared column types.
func (t *Table) Schema() Schema {
	s := make(Schema, len(t.cols))
	for i, c := range t.cols {
		s[i] = Field{Name: c.Name, Type: c.Type, Levels: c.Levels}
	}
	return s
}

// Row returns row i as decoded values keyed by column name.
func (t *Table) Row(i int) map[string]any {
	row := make(map[string]any, len(t.cols))
	for _, c := range t.cols {
		row[c.Name] = c.Value(i)
	}
	return row
}

// Bytes estimates the footprint of all columns.
func (t *Table) Bytes() int {
	n := 0
	for _, c := range t.cols {
		n += c.Bytes()
	}
	return n
}

// Equal reports whether a and b have the same column names, types and
// decoded values.
func Equal(a, b *Table) bool {
	if a.Len() != b.Len() || len(a.cols) != len(b.cols) {
		return false
	}
	for i, ca := range a.cols {
		cb := b.cols[i]
		if ca.Name != cb.Name || ca.Type != cb.Type {
			return false
		}
		for r := 0; r < a.rows; r++ {
			if !valueEqual(ca.Value(r), cb.Value(r)) {
				return false
			}
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	ta, aok := a.(time.Time)
	tb, bok := b.(time.Time)
	if aok && bok {
		return ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}
