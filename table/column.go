// Package table holds the typed, column-oriented representation that the
// transform stage works on. Every column declares its storage type and every
// value in it is either nil (missing) or of the Go type that storage type
// maps to.
package table

import (
	"fmt"
	"sort"
	"time"
)

// Type is the declared storage type of a column.
type Type int

const (
	Int8 Type = iota + 1
	Int16
	Int32
	Int64
	Float32
	Float64
	String
	Category
	Date
	Bool
	List
)

var typeNames = map[Type]string{
	Int8:     "int8",
	Int16:    "int16",
	Int32:    "int32",
	Int64:    "int64",
	Float32:  "float32",
	Float64:  "float64",
	String:   "string",
	Category: "category",
	Date:     "date",
	Bool:     "bool",
	List:     "list",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("table: unknown column type %q", s)
}

// IsInteger reports whether t is one of the signed integer widths.
func (t Type) IsInteger() bool {
	return t == Int8 || t == Int16 || t == Int32 || t == Int64
}

// IsFloat reports whether t is a floating point type.
func (t Type) IsFloat() bool {
	return t == Float32 || t == Float64
}

// Column is one named, typed column.
//
// Values of a Category column are int32 codes into Levels; use Value to get
// the decoded label. Values of a List column are []string or []int64.
type Column struct {
	Name   string
	Type   Type
	Values []any
	Levels []string
}

// NewColumn builds a column without validating values against typ.
func NewColumn(name string, typ Type, values []any) *Column {
	return &Column{Name: name, Type: typ, Values: values}
}

// NewCategory dictionary-encodes string labels. Nil entries stay missing.
// When levels is nil the sorted distinct labels are used.
func NewCategory(name string, labels []any, levels []string) (*Column, error) {
	if levels == nil {
		seen := make(map[string]struct{})
		for _, v := range labels {
			if s, ok := v.(string); ok {
				if _, dup := seen[s]; !dup {
					seen[s] = struct{}{}
					levels = append(levels, s)
				}
			}
		}
		sort.Strings(levels)
	}

	codes := make(map[string]int32, len(levels))
	for i, l := range levels {
		codes[l] = int32(i)
	}

	values := make([]any, len(labels))
	for i, v := range labels {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("table: category %q row %d: want string, got %T", name, i, v)
		}
		code, ok := codes[s]
		if !ok {
			return nil, fmt.Errorf("table: category %q row %d: label %q not in levels", name, i, s)
		}
		values[i] = code
	}
	return &Column{Name: name, Type: Category, Values: values, Levels: levels}, nil
}

// Len returns the number of rows.
func (c *Column) Len() int { return len(c.Values) }

// IsNull reports whether row i is missing.
func (c *Column) IsNull(i int) bool { return c.Values[i] == nil }

// Value returns row i, decoding category codes to their label.
func (c *Column) Value(i int) any {
	v := c.Values[i]
	if v == nil || c.Type != Category {
		return v
	}
	return c.Levels[v.(int32)]
}

// Labels returns the decoded values of the column.
func (c *Column) Labels() []any {
	out := make([]any, c.Len())
	for i := range out {
		out[i] = c.Value(i)
	}
	return out
}

// Clone returns a copy that shares no slices with c.
func (c *Column) Clone() *Column {
	values := make([]any, len(c.Values))
	copy(values, c.Values)
	var levels []string
	if c.Levels != nil {
		levels = append([]string(nil), c.Levels...)
	}
	return &Column{Name: c.Name, Type: c.Type, Values: values, Levels: levels}
}

// Take returns a new column with only the given rows, in order.
func (c *Column) Take(rows []int) *Column {
	values := make([]any, len(rows))
	for i, r := range rows {
		values[i] = c.Values[r]
	}
	out := &Column{Name: c.Name, Type: c.Type, Values: values}
	if c.Levels != nil {
		out.Levels = append([]string(nil), c.Levels...)
	}
	return out
}

// Distinct counts distinct non-missing decoded values.
func (c *Column) Distinct() int {
	seen := make(map[any]struct{})
	for i := range c.Values {
		v := c.Value(i)
		if v == nil {
			continue
		}
		switch x := v.(type) {
		case []string, []int64:
			seen[fmt.Sprint(x)] = struct{}{}
		case time.Time:
			seen[x.UnixNano()] = struct{}{}
		default:
			seen[x] = struct{}{}
		}
	}
	return len(seen)
}

// Bytes estimates the in-memory footprint of the column's values.
func (c *Column) Bytes() int {
	n := 0
	for _, l := range c.Levels {
		n += 16 + len(l)
	}
	for _, v := range c.Values {
		switch x := v.(type) {
		case nil:
			n += 1
		case int8, bool:
			n += 1
		case int16:
			n += 2
		case int32, float32:
			n += 4
		case int64, float64:
			n += 8
		case string:
			n += 16 + len(x)
		case time.Time:
			n += 24
		case []string:
			n += 24
			for _, s := range x {
				n += 16 + len(s)
			}
		case []int64:
			n += 24 + 8*len(x)
		default:
			n += 16
		}
	}
	return n
}
