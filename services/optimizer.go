package services

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"tmdb-etl/table"
)

// categoryRatio is the distinct/total ratio below which a text column is
// dictionary encoded.
const categoryRatio = 0.5

// Change records one column whose storage type was narrowed.
type Change struct {
	Column string
	From   table.Type
	To     table.Type
}

// Report describes the effect of one Optimize call.
type Report struct {
	BytesBefore int
	BytesAfter  int
	Changes     []Change
	// Skipped maps a column to the reason its planned narrowing was refused.
	Skipped map[string]string
}

// Reduction is the relative footprint reduction in percent.
func (r Report) Reduction() float64 {
	if r.BytesBefore == 0 {
		return 0
	}
	return 100 * float64(r.BytesBefore-r.BytesAfter) / float64(r.BytesBefore)
}

func (r Report) String() string {
	return fmt.Sprintf("memory usage reduced from %.2f MB to %.2f MB (%.1f%% reduction)",
		float64(r.BytesBefore)/(1<<20), float64(r.BytesAfter)/(1<<20), r.Reduction())
}

// Plan picks the narrowest declared storage type for a column.
//
//   - list, category, date and bool columns keep their type
//   - integers take the smallest signed width covering [min, max]
//   - float64 becomes float32
//   - text becomes a date when isDate, a category when fewer than half of
//     the rows are distinct, and stays text otherwise
func Plan(c *table.Column, isDate bool) table.Type {
	switch {
	case c.Type.IsInteger():
		return planInteger(c)
	case c.Type == table.Float64:
		return table.Float32
	case c.Type == table.String:
		if isDate {
			return table.Date
		}
		if c.Len() > 0 && float64(c.Distinct())/float64(c.Len()) < categoryRatio {
			return table.Category
		}
	}
	return c.Type
}

func planInteger(c *table.Column) table.Type {
	lo, hi, seen := int64(math.MaxInt64), int64(math.MinInt64), false
	for _, v := range c.Values {
		i, ok := table.AsInt64(v)
		if !ok {
			continue
		}
		seen = true
		lo = min(lo, i)
		hi = max(hi, i)
	}
	if !seen {
		return c.Type
	}
	for _, typ := range []table.Type{table.Int8, table.Int16, table.Int32} {
		tlo, thi := table.IntRange(typ)
		if lo >= tlo && hi <= thi {
			return typ
		}
	}
	return table.Int64
}

// Narrow converts c to target and returns the new column. It refuses, with
// an error, any conversion that would lose a value: an integer out of range,
// a float beyond float32 range, or an unsupported type pair. Unparseable
// dates are the exception and become missing.
func Narrow(c *table.Column, target table.Type) (*table.Column, error) {
	if target == c.Type {
		return c.Clone(), nil
	}

	out := make([]any, c.Len())
	switch {
	case c.Type.IsInteger() && target.IsInteger():
		for i, v := range c.Values {
			n, err := table.Coerce(v, target)
			if err != nil {
				return nil, eris.Wrapf(err, "optimize: narrow %s row %d", c.Name, i)
			}
			out[i] = n
		}

	case c.Type == table.Float64 && target == table.Float32:
		for i, v := range c.Values {
			if v == nil {
				continue
			}
			f, _ := table.AsFloat64(v)
			if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
				return nil, eris.Errorf("optimize: narrow %s row %d: %g overflows float32", c.Name, i, f)
			}
			out[i] = float32(f)
		}

	case c.Type == table.String && target == table.Date:
		for i, v := range c.Values {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if d, ok := table.ParseDate(s); ok {
				out[i] = d
			}
		}

	case c.Type == table.String && target == table.Category:
		cat, err := table.NewCategory(c.Name, c.Values, nil)
		if err != nil {
			return nil, eris.Wrap(err, "optimize")
		}
		return cat, nil

	default:
		return nil, eris.Errorf("optimize: cannot narrow %s from %s to %s", c.Name, c.Type, target)
	}
	return table.NewColumn(c.Name, target, out), nil
}

// Optimize returns a copy of t with every column narrowed to its planned
// type. Row count and values are unchanged apart from the float32 precision
// loss, date parsing and category encoding. Running it on its own output is
// a no-op.
func Optimize(t *table.Table, dateColumns []string) (*table.Table, Report) {
	isDate := make(map[string]bool, len(dateColumns))
	for _, name := range dateColumns {
		isDate[name] = true
	}

	report := Report{BytesBefore: t.Bytes()}
	cols := make([]*table.Column, 0, len(t.Columns()))
	for _, c := range t.Columns() {
		target := Plan(c, isDate[c.Name])
		narrowed, err := Narrow(c, target)
		if err != nil {
			if report.Skipped == nil {
				report.Skipped = make(map[string]string)
			}
			report.Skipped[c.Name] = err.Error()
			narrowed = c.Clone()
		}
		if narrowed.Type != c.Type {
			report.Changes = append(report.Changes, Change{Column: c.Name, From: c.Type, To: narrowed.Type})
		}
		cols = append(cols, narrowed)
	}

	if len(cols) == 0 {
		return t.Clone(), report
	}
	out, err := table.New(cols...)
	if err != nil {
		// unreachable: narrowing preserves column length
		panic(err)
	}
	report.BytesAfter = out.Bytes()
	return out, report
}
