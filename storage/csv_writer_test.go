package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tmdb-etl/table"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// finalizedTable mirrors the column types of an enriched endpoint table.
func finalizedTable(t *testing.T) *table.Table {
	t.Helper()
	level, err := table.NewCategory("rating_level", []any{"good", nil, "poor"}, []string{"poor", "average", "good", "excellent"})
	require.NoError(t, err)

	tbl, err := table.New(
		table.NewColumn("id", table.Int64, []any{int64(550), int64(13), int64(680)}),
		table.NewColumn("title", table.String, []any{"Fight Club", "Forrest Gump, the \"movie\"", "Pulp\nFiction"}),
		table.NewColumn("vote_average", table.Float32, []any{float32(8.4), float32(6.1), nil}),
		table.NewColumn("popularity", table.Float64, []any{61.416, nil, 55.25}),
		table.NewColumn("release_date", table.Date, []any{date(1999, 10, 15), date(1994, 6, 23), nil}),
		table.NewColumn("release_year", table.Int16, []any{int16(1999), int16(1994), nil}),
		table.NewColumn("release_month", table.Int8, []any{int8(10), int8(6), nil}),
		level,
		table.NewColumn("genres", table.List, []any{[]string{"Drama"}, []string{}, nil}),
		table.NewColumn("genre_ids", table.List, []any{[]int64{18}, []int64{35, 18}, nil}),
		table.NewColumn("video", table.Bool, []any{false, true, nil}),
	)
	require.NoError(t, err)
	return tbl
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "tmdb_popular.csv")
	want := finalizedTable(t)

	require.NoError(t, WriteCSV(path, want))

	got, err := ReadCSV(path, want.Schema())
	require.NoError(t, err)
	assert.True(t, table.Equal(want, got), "round trip changed the table:\nwant %v\ngot  %v", want.Row(1), got.Row(1))

	level, ok := got.Column("rating_level")
	require.True(t, ok)
	assert.Equal(t, table.Category, level.Type)
	assert.Equal(t, []string{"poor", "average", "good", "excellent"}, level.Levels)
}

func TestCSVCellFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	require.NoError(t, WriteCSV(path, finalizedTable(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.SplitN(string(data), "\n", 3)

	assert.Equal(t,
		"id,title,vote_average,popularity,release_date,release_year,release_month,rating_level,genres,genre_ids,video",
		lines[0])
	assert.Equal(t, `550,Fight Club,8.4,61.416,1999-10-15,1999,10,good,"[""Drama""]",[18],false`, lines[1])
}

func TestCSVRoundTripMissingText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	tbl, err := table.New(
		table.NewColumn("id", table.Int64, []any{int64(1), int64(2)}),
		table.NewColumn("overview", table.String, []any{"x", nil}),
	)
	require.NoError(t, err)
	require.NoError(t, WriteCSV(path, tbl))

	got, err := ReadCSV(path, tbl.Schema())
	require.NoError(t, err)
	c, _ := got.Column("overview")
	assert.Equal(t, []any{"x", nil}, c.Values)
}

func TestCSVEmptyTextReadsMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	tbl, err := table.New(
		table.NewColumn("id", table.Int64, []any{int64(1)}),
		table.NewColumn("genres_str", table.String, []any{""}),
	)
	require.NoError(t, err)
	require.NoError(t, WriteCSV(path, tbl))

	// an empty cell cannot tell "" from missing
	got, err := ReadCSV(path, tbl.Schema())
	require.NoError(t, err)
	c, _ := got.Column("genres_str")
	assert.Equal(t, []any{nil}, c.Values)
}

func TestCSVZeroRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	schema := table.Schema{{Name: "id", Type: table.Int64}, {Name: "title", Type: table.String}}

	require.NoError(t, WriteCSV(path, table.Empty(schema)))

	got, err := ReadCSV(path, schema)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
	assert.Equal(t, []string{"id", "title"}, got.Names())
}

func TestReadCSVMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	require.NoError(t, os.WriteFile(path, []byte("id\n1\n"), 0644))

	_, err := ReadCSV(path, table.Schema{{Name: "id", Type: table.Int64}, {Name: "title", Type: table.String}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"title"`)
}

func TestDecodeList(t *testing.T) {
	tests := []struct {
		in   string
		want any
		err  bool
	}{
		{`[28,12]`, []int64{28, 12}, false},
		{`["Action","Adventure"]`, []string{"Action", "Adventure"}, false},
		{`[]`, []string{}, false},
		{`[1,"a"]`, nil, true},
		{`[1.5]`, nil, true},
		{`not json`, nil, true},
	}
	for _, tt := range tests {
		got, err := decodeList([]byte(tt.in))
		if (err != nil) != tt.err {
			t.Errorf("decodeList(%s) error = %v, want error %v", tt.in, err, tt.err)
			continue
		}
		if !tt.err {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}
