package services

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"tmdb-etl/models"
	"tmdb-etl/table"
	"tmdb-etl/utils"
)

const (
	PosterBaseURL   = "https://image.tmdb.org/t/p/w342"
	BackdropBaseURL = "https://image.tmdb.org/t/p/w780"

	// UnknownGenre is the name given to genre ids missing from the reference.
	UnknownGenre = "Unknown"
)

var (
	PopularityLevels = []string{"low", "medium", "high", "very high"}
	RatingLevels     = []string{"poor", "average", "good", "excellent"}

	// ratingEdges bound the rating bins; each bin is [lo, hi) except the
	// last, which includes 10.
	ratingEdges = []float64{0, 5, 7, 8.5, 10}

	// rawOnlyColumns are superseded by derived columns and dropped.
	rawOnlyColumns = []string{"poster_path", "backdrop_path", "genre_ids", "adult", "video"}
)

// DateColumns lists the text columns the optimizer parses as dates.
var DateColumns = []string{"release_date"}

// Enricher derives the analysis columns of a finalized table.
type Enricher struct {
	logger *utils.Logger
}

// NewEnricher creates an Enricher with the given logger.
func NewEnricher(logger *utils.Logger) *Enricher {
	return &Enricher{logger: logger}
}

// Enrich returns a new table with the derived columns added and the raw-only
// columns removed. Rows without a release date are dropped first, so every
// remaining row gets a release_year and release_month. Bucket boundaries are
// computed from t alone. popularity_level is null where popularity is
// missing, and rating_level where vote_average is missing or outside [0,10].
func (e *Enricher) Enrich(t *table.Table, genres *models.GenreReference) (*table.Table, error) {
	for _, name := range []string{"poster_path", "backdrop_path", "release_date", "popularity", "vote_average", "genre_ids"} {
		if _, ok := t.Column(name); !ok {
			return nil, eris.Errorf("enrich: missing column %q", name)
		}
	}
	out := t.Clone()

	// 1. missing image paths become ""
	for _, name := range []string{"poster_path", "backdrop_path"} {
		c, _ := out.Column(name)
		filled := make([]any, c.Len())
		for i := range filled {
			if v, ok := c.Value(i).(string); ok {
				filled[i] = v
			} else {
				filled[i] = ""
			}
		}
		if err := out.Set(table.NewColumn(name, table.String, filled)); err != nil {
			return nil, eris.Wrap(err, "enrich")
		}
	}

	// 2. drop undated rows
	dates, err := releaseDates(out)
	if err != nil {
		return nil, err
	}
	before := out.Len()
	out = out.Filter(func(i int) bool { return dates.Values[i] != nil })
	dates = dates.Take(keptRows(dates))
	if err := out.Set(dates); err != nil {
		return nil, eris.Wrap(err, "enrich")
	}
	if dropped := before - out.Len(); dropped > 0 {
		e.logger.Info("[enrich] dropped %d of %d rows without release_date", dropped, before)
	}

	n := out.Len()
	poster, _ := out.Column("poster_path")
	backdrop, _ := out.Column("backdrop_path")
	popularity, _ := out.Column("popularity")
	rating, _ := out.Column("vote_average")
	genreIDs, _ := out.Column("genre_ids")

	posterURL := make([]any, n)
	backdropURL := make([]any, n)
	years := make([]any, n)
	months := make([]any, n)
	ratingLabels := make([]any, n)
	genreNames := make([]any, n)
	genreStr := make([]any, n)

	lookup := map[int64]string{}
	if genres != nil {
		lookup = genres.Lookup()
	}

	popValues := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		// 3. media URLs
		posterURL[i] = PosterBaseURL + poster.Values[i].(string)
		backdropURL[i] = BackdropBaseURL + backdrop.Values[i].(string)

		// 4. calendar features
		d := dates.Values[i].(time.Time)
		years[i] = int16(d.Year())
		months[i] = int8(d.Month())

		if f, ok := table.AsFloat64(popularity.Value(i)); ok && !math.IsNaN(f) {
			popValues = append(popValues, f)
		}

		// 6. rating bins
		if f, ok := table.AsFloat64(rating.Value(i)); ok {
			if label, ok := RatingLevel(f); ok {
				ratingLabels[i] = label
			}
		}

		// 7. genre names
		names := ResolveGenres(genreIDList(genreIDs.Value(i)), lookup)
		genreNames[i] = names
		genreStr[i] = strings.Join(names, ", ")
	}

	// 5. popularity quantile buckets
	edges := QuantileEdges(popValues, len(PopularityLevels))
	popLabels := make([]any, n)
	for i := 0; i < n; i++ {
		f, ok := table.AsFloat64(popularity.Value(i))
		if !ok || math.IsNaN(f) {
			continue
		}
		popLabels[i] = PopularityLevels[BucketIndex(edges, f)]
	}

	popLevel, err := table.NewCategory("popularity_level", popLabels, PopularityLevels)
	if err != nil {
		return nil, eris.Wrap(err, "enrich")
	}
	ratingLevel, err := table.NewCategory("rating_level", ratingLabels, RatingLevels)
	if err != nil {
		return nil, eris.Wrap(err, "enrich")
	}

	for _, c := range []*table.Column{
		table.NewColumn("poster_url", table.String, posterURL),
		table.NewColumn("backdrop_url", table.String, backdropURL),
		table.NewColumn("release_year", table.Int16, years),
		table.NewColumn("release_month", table.Int8, months),
		popLevel,
		ratingLevel,
		table.NewColumn("genres", table.List, genreNames),
		table.NewColumn("genres_str", table.String, genreStr),
	} {
		if err := out.Set(c); err != nil {
			return nil, eris.Wrap(err, "enrich")
		}
	}

	// 8. raw-only columns
	out.Drop(rawOnlyColumns...)
	return out, nil
}

// releaseDates returns release_date as a Date column, parsing text values.
func releaseDates(t *table.Table) (*table.Column, error) {
	c, _ := t.Column("release_date")
	switch c.Type {
	case table.Date:
		return c.Clone(), nil
	case table.String, table.Category:
		values := make([]any, c.Len())
		for i := range values {
			if s, ok := c.Value(i).(string); ok {
				if d, ok := table.ParseDate(s); ok {
					values[i] = d
				}
			}
		}
		return table.NewColumn(c.Name, table.Date, values), nil
	}
	return nil, eris.Errorf("enrich: release_date has type %s", c.Type)
}

func keptRows(c *table.Column) []int {
	rows := make([]int, 0, c.Len())
	for i, v := range c.Values {
		if v != nil {
			rows = append(rows, i)
		}
	}
	return rows
}

func genreIDList(v any) []int64 {
	switch ids := v.(type) {
	case []int64:
		return ids
	case []any:
		out := make([]int64, 0, len(ids))
		for _, id := range ids {
			if n, ok := table.AsInt64(id); ok {
				out = append(out, n)
			}
		}
		return out
	}
	return nil
}

// ResolveGenres maps ids to names, using UnknownGenre for ids absent from
// lookup. The result is never nil.
func ResolveGenres(ids []int64, lookup map[int64]string) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		name, ok := lookup[id]
		if !ok {
			name = UnknownGenre
		}
		names[i] = name
	}
	return names
}

// RatingLevel bins a rating: [0,5) poor, [5,7) average, [7,8.5) good,
// [8.5,10] excellent. Values outside [0,10] have no level.
func RatingLevel(v float64) (string, bool) {
	if math.IsNaN(v) || v < ratingEdges[0] || v > ratingEdges[len(ratingEdges)-1] {
		return "", false
	}
	for i := 1; i < len(ratingEdges)-1; i++ {
		if v < ratingEdges[i] {
			return RatingLevels[i-1], true
		}
	}
	return RatingLevels[len(RatingLevels)-1], true
}

// QuantileEdges returns the q+1 bucket edges of values at the 0, 1/q, ...,
// 1 quantiles, using linear interpolation between closest ranks. Edges may
// repeat when values do. It returns nil for no values.
func QuantileEdges(values []float64, q int) []float64 {
	if len(values) == 0 || q < 1 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	last := len(sorted) - 1
	edges := make([]float64, q+1)
	for k := 0; k <= q; k++ {
		h := float64(last) * float64(k) / float64(q)
		lo := int(math.Floor(h))
		if lo >= last {
			edges[k] = sorted[last]
			continue
		}
		edges[k] = math.Min(sorted[lo]+(h-float64(lo))*(sorted[lo+1]-sorted[lo]), sorted[lo+1])
	}
	return edges
}

// BucketIndex places v in the first bucket whose upper edge is >= v. Buckets
// are right-closed and the first one also holds the minimum, so a value on
// an edge goes to the lower bucket. When edges repeat the lowest matching
// bucket wins.
func BucketIndex(edges []float64, v float64) int {
	for i := 1; i < len(edges); i++ {
		if v <= edges[i] {
			return i - 1
		}
	}
	return max(len(edges)-2, 0)
}
