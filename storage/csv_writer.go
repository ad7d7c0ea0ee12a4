package storage

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"tmdb-etl/models"
	"tmdb-etl/table"
)

// WriteCSV writes t to path with a header row, creating (or truncating) the
// file. Missing values are empty cells, dates are YYYY-MM-DD and list values
// are JSON arrays.
func WriteCSV(path string, t *table.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return eris.Wrap(&models.IOError{Path: path, Err: err}, "csv: create output dir")
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(&models.IOError{Path: path, Err: err}, "csv: create file")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(t.Names()); err != nil {
		return eris.Wrap(&models.IOError{Path: path, Err: err}, "csv: write header")
	}

	cols := t.Columns()
	row := make([]string, len(cols))
	for i := 0; i < t.Len(); i++ {
		for j, c := range cols {
			cell, err := formatCell(c.Value(i))
			if err != nil {
				return eris.Wrapf(err, "csv: column %s row %d", c.Name, i)
			}
			row[j] = cell
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(&models.IOError{Path: path, Err: err}, "csv: write row")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(&models.IOError{Path: path, Err: err}, "csv: flush")
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(&models.IOError{Path: path, Err: err}, "csv: close")
	}
	return nil
}

func formatCell(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case time.Time:
		return x.Format(table.DateLayout), nil
	case []string, []int64:
		b, err := json.Marshal(x)
		return string(b), err
	}
	if i, ok := table.AsInt64(v); ok {
		return strconv.FormatInt(i, 10), nil
	}
	return "", eris.Errorf("unsupported value type %T", v)
}

// ReadCSV reads a file written by WriteCSV back into the declared types of
// schema. Columns are matched by header name; a schema field without a
// column is an error. Empty cells are missing values in every column type,
// so a present empty string reads back as missing.
func ReadCSV(path string, schema table.Schema) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(&models.IOError{Path: path, Err: err}, "csv: open")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(&models.IOError{Path: path, Err: err}, "csv: read header")
	}
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[name] = i
	}
	for _, field := range schema {
		if _, ok := pos[field.Name]; !ok {
			return nil, eris.Errorf("csv: %s has no column %q", path, field.Name)
		}
	}

	values := make([][]any, len(schema))
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(&models.IOError{Path: path, Err: err}, "csv: read row")
		}
		for j, field := range schema {
			v, err := parseCell(rec[pos[field.Name]], field.Type)
			if err != nil {
				return nil, eris.Wrapf(err, "csv: %s line %d column %s", path, line, field.Name)
			}
			values[j] = append(values[j], v)
		}
	}
	return buildTable(schema, values)
}

func parseCell(s string, typ table.Type) (any, error) {
	switch typ {
	case table.String, table.Category:
		if s == "" {
			return nil, nil
		}
		return s, nil
	case table.List:
		if s == "" {
			return nil, nil
		}
		return decodeList([]byte(s))
	}
	return table.Coerce(s, typ)
}

// decodeList reads a JSON array of strings or integers. An empty array is
// read as []string.
func decodeList(data []byte) (any, error) {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "decode list")
	}
	allNumbers := len(raw) > 0
	for _, v := range raw {
		if _, ok := v.(float64); !ok {
			allNumbers = false
		}
	}
	if allNumbers {
		out := make([]int64, len(raw))
		for i, v := range raw {
			n, ok := table.AsInt64(v)
			if !ok {
				return nil, eris.Errorf("decode list: %v is not an integer", v)
			}
			out[i] = n
		}
		return out, nil
	}
	out := make([]string, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, eris.Errorf("decode list: mixed element types")
		}
		out[i] = s
	}
	return out, nil
}

// buildTable assembles columns of already typed values, encoding category
// columns with the schema's levels.
func buildTable(schema table.Schema, values [][]any) (*table.Table, error) {
	cols := make([]*table.Column, len(schema))
	for j, field := range schema {
		if field.Type == table.Category {
			c, err := table.NewCategory(field.Name, values[j], field.Levels)
			if err != nil {
				return nil, err
			}
			cols[j] = c
			continue
		}
		cols[j] = table.NewColumn(field.Name, field.Type, values[j])
	}
	return table.New(cols...)
}
