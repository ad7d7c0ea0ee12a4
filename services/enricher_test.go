package services

import (
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tmdb-etl/models"
	"tmdb-etl/table"
)

func sp(s string) *string   { return &s }
func fp(f float64) *float64 { return &f }
func bp(b bool) *bool       { return &b }

var testGenres = &models.GenreReference{Genres: []models.Genre{
	{ID: 28, Name: "Action"},
	{ID: 35, Name: "Comedy"},
}}

func finalize(t *testing.T, movies []models.Movie, genres *models.GenreReference) *table.Table {
	t.Helper()
	tbl, err := ToTable(movies)
	require.NoError(t, err)
	opt, _ := Optimize(tbl, DateColumns)
	out, err := NewEnricher(newTestLogger()).Enrich(opt, genres)
	require.NoError(t, err)
	return out
}

func TestEnrichEndToEndSnapshot(t *testing.T) {
	// page 2 failed during extraction and is absent
	snap := snapshotOf(t, models.Popular, map[int]string{
		1: `{"page":1,"total_pages":3,"results":[
			{"id":1,"title":"Dated","release_date":"2021-05-01","popularity":10.5,"vote_average":7.2,
			 "genre_ids":[28,99],"poster_path":"/a.jpg","backdrop_path":null,"adult":false,"video":false},
			{"id":2,"title":"Undated","release_date":"","popularity":3,"vote_average":5,"genre_ids":[]}
		]}`,
	})

	movies, err := NewFlattener(newTestLogger()).Flatten(snap)
	require.NoError(t, err)
	out := finalize(t, movies, testGenres)

	require.Equal(t, 1, out.Len())
	row := out.Row(0)
	assert.Equal(t, int16(2021), row["release_year"])
	assert.Equal(t, int8(5), row["release_month"])
	assert.Equal(t, "Dated", row["title"])
	assert.Equal(t, PosterBaseURL+"/a.jpg", row["poster_url"])
	assert.Equal(t, BackdropBaseURL, row["backdrop_url"])
	assert.Equal(t, []string{"Action", "Unknown"}, row["genres"])
	assert.Equal(t, "Action, Unknown", row["genres_str"])
	assert.Equal(t, "low", row["popularity_level"])
	assert.Equal(t, "good", row["rating_level"])

	for _, dropped := range rawOnlyColumns {
		_, ok := out.Column(dropped)
		assert.False(t, ok, dropped)
	}
}

func TestEnrichDropsExactlyUndatedRows(t *testing.T) {
	movies := []models.Movie{
		{ID: 1, ReleaseDate: sp("2020-01-02"), Popularity: fp(1), VoteAverage: fp(9)},
		{ID: 2, Popularity: fp(2), VoteAverage: fp(6)},
		{ID: 3, ReleaseDate: sp("2019-12-31"), Popularity: fp(3), VoteAverage: fp(4)},
		{ID: 4, ReleaseDate: sp("not a date"), Popularity: fp(4), VoteAverage: fp(8)},
	}
	out := finalize(t, movies, testGenres)

	require.Equal(t, 2, out.Len())
	ids, _ := out.Column("id")
	assert.Equal(t, []any{int8(1), int8(3)}, ids.Values)

	for _, name := range []string{"release_year", "release_month", "popularity_level", "rating_level"} {
		c, ok := out.Column(name)
		require.True(t, ok, name)
		for i := 0; i < out.Len(); i++ {
			assert.False(t, c.IsNull(i), "%s row %d", name, i)
		}
	}
	months, _ := out.Column("release_month")
	assert.Equal(t, []any{int8(1), int8(12)}, months.Values)
}

func TestEnrichLevelsNullWithoutSourceValue(t *testing.T) {
	movies := []models.Movie{
		{ID: 1, ReleaseDate: sp("2020-01-01"), Popularity: fp(4), VoteAverage: fp(6)},
		{ID: 2, ReleaseDate: sp("2020-01-01"), VoteAverage: fp(11)},
		{ID: 3, ReleaseDate: sp("2020-01-01"), Popularity: fp(8), VoteAverage: fp(-0.5)},
		{ID: 4, ReleaseDate: sp("2020-01-01"), Popularity: fp(2)},
	}
	out := finalize(t, movies, testGenres)
	require.Equal(t, 4, out.Len(), "rows without a level are kept")

	pop, _ := out.Column("popularity_level")
	assert.Nil(t, pop.Value(1), "missing popularity has no level")
	for _, i := range []int{0, 2, 3} {
		assert.NotNil(t, pop.Value(i), "row %d", i)
	}

	rating, _ := out.Column("rating_level")
	assert.Equal(t, []any{"average", nil, nil, nil}, rating.Labels())
}

func TestEnrichGenreResolution(t *testing.T) {
	movies := []models.Movie{
		{ID: 1, ReleaseDate: sp("2020-01-01"), GenreIDs: []int64{35, 12345}},
		{ID: 2, ReleaseDate: sp("2020-01-01"), GenreIDs: []int64{}},
		{ID: 3, ReleaseDate: sp("2020-01-01")},
	}
	out := finalize(t, movies, testGenres)

	genres, _ := out.Column("genres")
	str, _ := out.Column("genres_str")
	assert.Equal(t, []any{[]string{"Comedy", "Unknown"}, []string{}, []string{}}, genres.Values)
	assert.Equal(t, []any{"Comedy, Unknown", "", ""}, str.Values)
}

func TestEnrichWithoutGenreReference(t *testing.T) {
	out := finalize(t, []models.Movie{{ID: 1, ReleaseDate: sp("2020-01-01"), GenreIDs: []int64{28}}}, &models.GenreReference{})
	genres, _ := out.Column("genres")
	assert.Equal(t, []any{[]string{"Unknown"}}, genres.Values)
}

func TestEnrichMissingColumn(t *testing.T) {
	tbl, err := ToTable([]models.Movie{{ID: 1, ReleaseDate: sp("2020-01-01")}})
	require.NoError(t, err)
	tbl.Drop("vote_average")

	_, err = NewEnricher(newTestLogger()).Enrich(tbl, testGenres)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vote_average")
}

func TestEnrichEmptyTable(t *testing.T) {
	out := finalize(t, nil, testGenres)
	assert.Equal(t, 0, out.Len())
	_, ok := out.Column("popularity_level")
	assert.True(t, ok)
}

func TestEnrichKeepsOptionalFlagsOptional(t *testing.T) {
	tbl, err := ToTable([]models.Movie{{ID: 1, ReleaseDate: sp("2020-01-01"), Adult: bp(true)}})
	require.NoError(t, err)
	tbl.Drop("video", "adult")

	out, err := NewEnricher(newTestLogger()).Enrich(tbl, testGenres)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
}

func TestRatingLevel(t *testing.T) {
	tests := []struct {
		in   float64
		want string
		ok   bool
	}{
		{0, "poor", true},
		{4.99, "poor", true},
		{5, "average", true},
		{6.99, "average", true},
		{7, "good", true},
		{8.49, "good", true},
		{8.5, "excellent", true},
		{10, "excellent", true},
		{10.01, "", false},
		{-0.1, "", false},
	}
	for _, tt := range tests {
		got, ok := RatingLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("RatingLevel(%v) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestQuantileEdges(t *testing.T) {
	assert.Equal(t, []float64{1, 2.75, 4.5, 6.25, 8}, QuantileEdges([]float64{8, 1, 2, 3, 4, 5, 6, 7}, 4))
	assert.Equal(t, []float64{5, 5, 5, 6, 9}, QuantileEdges([]float64{5, 9, 5, 5}, 4))
	assert.Nil(t, QuantileEdges(nil, 4))
}

func TestBucketIndexTiesGoLower(t *testing.T) {
	edges := QuantileEdges([]float64{1, 2, 3, 4, 5}, 4) // [1 2 3 4 5]
	tests := []struct {
		v    float64
		want int
	}{
		{1, 0}, {2, 0}, {2.5, 1}, {3, 1}, {4, 2}, {4.01, 3}, {5, 3},
	}
	for _, tt := range tests {
		if got := BucketIndex(edges, tt.v); got != tt.want {
			t.Errorf("BucketIndex(%v) = %d; want %d", tt.v, got, tt.want)
		}
	}
}

func TestPopularityLevelFewDistinctValues(t *testing.T) {
	movies := []models.Movie{
		{ID: 1, ReleaseDate: sp("2020-01-01"), Popularity: fp(5)},
		{ID: 2, ReleaseDate: sp("2020-01-01"), Popularity: fp(9)},
		{ID: 3, ReleaseDate: sp("2020-01-01"), Popularity: fp(5)},
		{ID: 4, ReleaseDate: sp("2020-01-01"), Popularity: fp(5)},
	}
	out := finalize(t, movies, testGenres)
	levels, _ := out.Column("popularity_level")
	assert.Equal(t, []any{"low", "very high", "low", "low"}, levels.Labels())

	same := finalize(t, movies[:1], testGenres)
	levels, _ = same.Column("popularity_level")
	assert.Equal(t, []any{"low"}, levels.Labels())
}

func TestProperty_BucketsAreMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("larger values never land in a lower bucket", prop.ForAll(
		func(values []float64) bool {
			if len(values) == 0 {
				return true
			}
			edges := QuantileEdges(values, 4)
			sorted := append([]float64(nil), values...)
			sort.Float64s(sorted)

			prev := 0
			for _, v := range sorted {
				b := BucketIndex(edges, v)
				if b < prev || b < 0 || b > 3 {
					return false
				}
				prev = b
			}
			return BucketIndex(edges, sorted[0]) == 0
		},
		gen.SliceOf(gen.Float64Range(0, 1000)),
	))

	properties.Property("edges are non-decreasing", prop.ForAll(
		func(values []float64) bool {
			edges := QuantileEdges(values, 4)
			return sort.Float64sAreSorted(edges)
		},
		gen.SliceOf(gen.Float64Range(-50, 50)),
	))

	properties.TestingRun(t)
}
