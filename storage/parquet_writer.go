package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"github.com/rotisserie/eris"

	"tmdb-etl/models"
	"tmdb-etl/table"
)

// WriteParquet writes t to path as a single row group, snappy compressed.
// Category columns are stored as plain strings and dates as DATE.
func WriteParquet(path string, t *table.Table) error {
	schema, err := arrowSchema(t)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return eris.Wrap(&models.IOError{Path: path, Err: err}, "parquet: create output dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(&models.IOError{Path: path, Err: err}, "parquet: create file")
	}
	defer f.Close() //nolint:errcheck

	pool := memory.NewGoAllocator()
	b := array.NewRecordBuilder(pool, schema)
	defer b.Release()

	for j, c := range t.Columns() {
		for i := 0; i < c.Len(); i++ {
			if err := appendValue(b.Field(j), c.Value(i)); err != nil {
				return eris.Wrapf(err, "parquet: column %s row %d", c.Name, i)
			}
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(pool), pqarrow.WithStoreSchema())

	fw, err := pqarrow.NewFileWriter(schema, f, props, arrowProps)
	if err != nil {
		return eris.Wrap(err, "parquet: create writer")
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return eris.Wrap(err, "parquet: write record")
	}
	if err := fw.Close(); err != nil {
		return eris.Wrap(&models.IOError{Path: path, Err: err}, "parquet: close")
	}
	return nil
}

func arrowSchema(t *table.Table) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(t.Columns()))
	for _, c := range t.Columns() {
		dt, err := arrowType(c)
		if err != nil {
			return nil, err
		}
		fields = append(fields, arrow.Field{Name: c.Name, Type: dt, Nullable: true})
	}
	return arrow.NewSchema(fields, nil), nil
}

func arrowType(c *table.Column) (arrow.DataType, error) {
	switch c.Type {
	case table.Int8:
		return arrow.PrimitiveTypes.Int8, nil
	case table.Int16:
		return arrow.PrimitiveTypes.Int16, nil
	case table.Int32:
		return arrow.PrimitiveTypes.Int32, nil
	case table.Int64:
		return arrow.PrimitiveTypes.Int64, nil
	case table.Float32:
		return arrow.PrimitiveTypes.Float32, nil
	case table.Float64:
		return arrow.PrimitiveTypes.Float64, nil
	case table.String, table.Category:
		return arrow.BinaryTypes.String, nil
	case table.Date:
		return arrow.FixedWidthTypes.Date32, nil
	case table.Bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case table.List:
		for _, v := range c.Values {
			if _, ok := v.([]int64); ok {
				return arrow.ListOf(arrow.PrimitiveTypes.Int64), nil
			}
			if v != nil {
				break
			}
		}
		return arrow.ListOf(arrow.BinaryTypes.String), nil
	}
	return nil, eris.Errorf("parquet: column %s has unsupported type %s", c.Name, c.Type)
}

func appendValue(builder array.Builder, v any) error {
	if v == nil {
		builder.AppendNull()
		return nil
	}

	switch b := builder.(type) {
	case *array.Int8Builder:
		n, ok := v.(int8)
		if !ok {
			return eris.Errorf("want int8, got %T", v)
		}
		b.Append(n)
	case *array.Int16Builder:
		n, ok := v.(int16)
		if !ok {
			return eris.Errorf("want int16, got %T", v)
		}
		b.Append(n)
	case *array.Int32Builder:
		n, ok := v.(int32)
		if !ok {
			return eris.Errorf("want int32, got %T", v)
		}
		b.Append(n)
	case *array.Int64Builder:
		n, ok := table.AsInt64(v)
		if !ok {
			return eris.Errorf("want int64, got %T", v)
		}
		b.Append(n)
	case *array.Float32Builder:
		f, ok := v.(float32)
		if !ok {
			return eris.Errorf("want float32, got %T", v)
		}
		b.Append(f)
	case *array.Float64Builder:
		f, ok := table.AsFloat64(v)
		if !ok {
			return eris.Errorf("want float64, got %T", v)
		}
		b.Append(f)
	case *array.StringBuilder:
		s, ok := v.(string)
		if !ok {
			return eris.Errorf("want string, got %T", v)
		}
		b.Append(s)
	case *array.Date32Builder:
		d, ok := v.(time.Time)
		if !ok {
			return eris.Errorf("want date, got %T", v)
		}
		b.Append(arrow.Date32FromTime(d))
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if !ok {
			return eris.Errorf("want bool, got %T", v)
		}
		b.Append(x)
	case *array.ListBuilder:
		b.Append(true)
		switch vb := b.ValueBuilder().(type) {
		case *array.StringBuilder:
			items, ok := v.([]string)
			if !ok {
				return eris.Errorf("want []string, got %T", v)
			}
			vb.AppendValues(items, nil)
		case *array.Int64Builder:
			items, ok := v.([]int64)
			if !ok {
				return eris.Errorf("want []int64, got %T", v)
			}
			vb.AppendValues(items, nil)
		}
	default:
		return eris.Errorf("unsupported builder %T", builder)
	}
	return nil
}

// ReadParquet reads a file written by WriteParquet. With a schema the
// values are converted to the declared types and category columns are
// re-encoded; with a nil schema the column types follow the file.
func ReadParquet(ctx context.Context, path string, schema table.Schema) (*table.Table, error) {
	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, eris.Wrap(&models.IOError{Path: path, Err: err}, "parquet: open")
	}
	defer pf.Close() //nolint:errcheck

	pool := memory.NewGoAllocator()
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, pool)
	if err != nil {
		return nil, eris.Wrap(err, "parquet: create reader")
	}
	fileSchema, err := fr.Schema()
	if err != nil {
		return nil, eris.Wrap(err, "parquet: read schema")
	}

	if schema == nil {
		schema, err = schemaFromArrow(fileSchema)
		if err != nil {
			return nil, err
		}
	}
	index := make(map[string]int, fileSchema.NumFields())
	for i, f := range fileSchema.Fields() {
		index[f.Name] = i
	}
	for _, field := range schema {
		if _, ok := index[field.Name]; !ok {
			return nil, eris.Errorf("parquet: %s has no column %q", path, field.Name)
		}
	}

	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return nil, eris.Wrap(err, "parquet: record reader")
	}
	defer rr.Release()

	values := make([][]any, len(schema))
	for rr.Next() {
		rec := rr.Record()
		for j, field := range schema {
			col := rec.Column(index[field.Name])
			for i := 0; i < col.Len(); i++ {
				v, err := arrowValue(col, i)
				if err != nil {
					return nil, eris.Wrapf(err, "parquet: column %s", field.Name)
				}
				if field.Type != table.Category && field.Type != table.List {
					if v, err = table.Coerce(v, field.Type); err != nil {
						return nil, eris.Wrapf(err, "parquet: column %s row %d", field.Name, i)
					}
				}
				values[j] = append(values[j], v)
			}
		}
	}
	if err := rr.Err(); err != nil {
		return nil, eris.Wrap(err, "parquet: read records")
	}
	return buildTable(schema, values)
}

func arrowValue(col arrow.Array, i int) (any, error) {
	if col.IsNull(i) {
		return nil, nil
	}
	switch c := col.(type) {
	case *array.Int8:
		return c.Value(i), nil
	case *array.Int16:
		return c.Value(i), nil
	case *array.Int32:
		return c.Value(i), nil
	case *array.Int64:
		return c.Value(i), nil
	case *array.Float32:
		return c.Value(i), nil
	case *array.Float64:
		return c.Value(i), nil
	case *array.String:
		return c.Value(i), nil
	case *array.Boolean:
		return c.Value(i), nil
	case *array.Date32:
		return c.Value(i).ToTime().UTC(), nil
	case *array.List:
		start, end := c.ValueOffsets(i)
		switch items := c.ListValues().(type) {
		case *array.String:
			out := make([]string, 0, end-start)
			for k := start; k < end; k++ {
				out = append(out, items.Value(int(k)))
			}
			return out, nil
		case *array.Int64:
			out := make([]int64, 0, end-start)
			for k := start; k < end; k++ {
				out = append(out, items.Value(int(k)))
			}
			return out, nil
		}
	}
	return nil, eris.Errorf("unsupported arrow type %s", col.DataType())
}

func schemaFromArrow(s *arrow.Schema) (table.Schema, error) {
	out := make(table.Schema, 0, s.NumFields())
	for _, f := range s.Fields() {
		var typ table.Type
		switch f.Type.ID() {
		case arrow.INT8:
			typ = table.Int8
		case arrow.INT16:
			typ = table.Int16
		case arrow.INT32:
			typ = table.Int32
		case arrow.INT64:
			typ = table.Int64
		case arrow.FLOAT32:
			typ = table.Float32
		case arrow.FLOAT64:
			typ = table.Float64
		case arrow.STRING:
			typ = table.String
		case arrow.DATE32:
			typ = table.Date
		case arrow.BOOL:
			typ = table.Bool
		case arrow.LIST:
			typ = table.List
		default:
			return nil, eris.Errorf("parquet: column %s has unsupported type %s", f.Name, f.Type)
		}
		out = append(out, table.Field{Name: f.Name, Type: typ})
	}
	return out, nil
}
