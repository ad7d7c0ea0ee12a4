package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used on every text boundary.
const DateLayout = "2006-01-02"

// AsInt64 widens any integer value, or an integral float, to int64.
func AsInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return int64(x), true
		}
	case float32:
		f := float64(x)
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return int64(f), true
		}
	}
	return 0, false
}

// AsFloat64 widens any numeric value to float64.
func AsFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	if i, ok := AsInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// ParseDate parses YYYY-MM-DD, falling back to RFC3339. The result is
// truncated to midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		y, m, d := t.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// Coerce converts a scalar value to the Go type that typ stores. Strings are
// parsed, numbers are converted with a range check. Category values are
// returned as their string label; the caller encodes the column.
func Coerce(v any, typ Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && typ != String && typ != Category {
		return parseText(s, typ)
	}

	switch typ {
	case Int8, Int16, Int32, Int64:
		i, ok := AsInt64(v)
		if !ok {
			return nil, fmt.Errorf("table: cannot convert %T to %s", v, typ)
		}
		return narrowInt(i, typ)
	case Float32:
		f, ok := AsFloat64(v)
		if !ok {
			return nil, fmt.Errorf("table: cannot convert %T to %s", v, typ)
		}
		return float32(f), nil
	case Float64:
		f, ok := AsFloat64(v)
		if !ok {
			return nil, fmt.Errorf("table: cannot convert %T to %s", v, typ)
		}
		return f, nil
	case String, Category:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	case Date:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case List:
		switch v.(type) {
		case []string, []int64:
			return v, nil
		}
	}
	return nil, fmt.Errorf("table: cannot convert %T to %s", v, typ)
}

func parseText(s string, typ Type) (any, error) {
	if s == "" {
		return nil, nil
	}
	switch typ {
	case Int8, Int16, Int32, Int64:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("table: parse %s %q: %w", typ, s, err)
		}
		return narrowInt(i, typ)
	case Float32:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, fmt.Errorf("table: parse %s %q: %w", typ, s, err)
		}
		return float32(f), nil
	case Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("table: parse %s %q: %w", typ, s, err)
		}
		return f, nil
	case Date:
		t, ok := ParseDate(s)
		if !ok {
			return nil, fmt.Errorf("table: parse date %q", s)
		}
		return t, nil
	case Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("table: parse bool %q: %w", s, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("table: cannot parse text as %s", typ)
}

// IntRange returns the inclusive bounds of a signed integer type.
func IntRange(typ Type) (int64, int64) {
	switch typ {
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Int32:
		return math.MinInt32, math.MaxInt32
	}
	return math.MinInt64, math.MaxInt64
}

func narrowInt(i int64, typ Type) (any, error) {
	lo, hi := IntRange(typ)
	if i < lo || i > hi {
		return nil, fmt.Errorf("table: %d out of range for %s", i, typ)
	}
	switch typ {
	case Int8:
		return int8(i), nil
	case Int16:
		return int16(i), nil
	case Int32:
		return int32(i), nil
	}
	return i, nil
}
