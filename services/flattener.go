package services

import (
	"errors"
	"sort"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"tmdb-etl/models"
	"tmdb-etl/table"
	"tmdb-etl/utils"
)

// Flattener turns raw snapshots into validated movie records.
type Flattener struct {
	logger *utils.Logger
}

// NewFlattener creates a Flattener with the given logger.
func NewFlattener(logger *utils.Logger) *Flattener {
	return &Flattener{logger: logger}
}

// Flatten concatenates the results of every page in ascending page index.
// Records that are not objects, have no id, or carry a field of the wrong
// type are skipped with a warning.
func (f *Flattener) Flatten(snap *models.Snapshot) ([]models.Movie, error) {
	if snap == nil {
		return nil, eris.New("flatten: nil snapshot")
	}

	var (
		movies  []models.Movie
		skipped int
	)
	for _, page := range snap.Pages() {
		for i, raw := range page.Results {
			m, err := models.DecodeMovie(raw)
			if err != nil {
				skipped++
				if errors.Is(err, models.ErrMissingID) {
					f.logger.Warn("[flatten] %s page %d record %d has no id, skipped", snap.Endpoint, page.Index, i)
				} else {
					f.logger.Warn("[flatten] %s page %d record %d skipped: %v", snap.Endpoint, page.Index, i, err)
				}
				continue
			}
			movies = append(movies, *m)
		}
	}

	f.logger.Info("[flatten] %s: %d records from %d pages (skipped %d)",
		snap.Endpoint, len(movies), snap.Len(), skipped)
	return movies, nil
}

// movieColumns is the declared order and type of the typed listing fields.
var movieColumns = table.Schema{
	{Name: "adult", Type: table.Bool},
	{Name: "backdrop_path", Type: table.String},
	{Name: "genre_ids", Type: table.List},
	{Name: "id", Type: table.Int64},
	{Name: "original_language", Type: table.String},
	{Name: "original_title", Type: table.String},
	{Name: "overview", Type: table.String},
	{Name: "popularity", Type: table.Float64},
	{Name: "poster_path", Type: table.String},
	{Name: "release_date", Type: table.String},
	{Name: "title", Type: table.String},
	{Name: "video", Type: table.Bool},
	{Name: "vote_average", Type: table.Float64},
	{Name: "vote_count", Type: table.Int64},
}

// MovieSchema returns the column layout ToTable produces before extras.
func MovieSchema() table.Schema {
	out := make(table.Schema, len(movieColumns))
	copy(out, movieColumns)
	return out
}

// ToTable builds the typed table for a set of records. Extra fields become
// additional columns, sorted by name, with a type inferred from their values.
func ToTable(movies []models.Movie) (*table.Table, error) {
	n := len(movies)
	values := make(map[string][]any, len(movieColumns))
	for _, f := range movieColumns {
		values[f.Name] = make([]any, n)
	}

	extras := make(map[string][]any)
	for i, m := range movies {
		values["id"][i] = m.ID
		values["title"][i] = str(m.Title)
		values["original_title"][i] = str(m.OriginalTitle)
		values["original_language"][i] = str(m.OriginalLanguage)
		values["overview"][i] = str(m.Overview)
		values["popularity"][i] = f64(m.Popularity)
		values["vote_average"][i] = f64(m.VoteAverage)
		values["release_date"][i] = str(m.ReleaseDate)
		values["poster_path"][i] = str(m.PosterPath)
		values["backdrop_path"][i] = str(m.BackdropPath)
		values["adult"][i] = boolean(m.Adult)
		values["video"][i] = boolean(m.Video)
		if m.VoteCount != nil {
			values["vote_count"][i] = *m.VoteCount
		}
		if m.GenreIDs != nil {
			values["genre_ids"][i] = append([]int64(nil), m.GenreIDs...)
		}

		for key, v := range m.Extras {
			col, ok := extras[key]
			if !ok {
				col = make([]any, n)
				extras[key] = col
			}
			col[i] = v
		}
	}

	cols := make([]*table.Column, 0, len(movieColumns)+len(extras))
	for _, f := range movieColumns {
		cols = append(cols, table.NewColumn(f.Name, f.Type, values[f.Name]))
	}

	keys := make([]string, 0, len(extras))
	for k := range extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		col, err := extraColumn(k, extras[k])
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}

	t, err := table.New(cols...)
	if err != nil {
		return nil, eris.Wrap(err, "flatten: build table")
	}
	return t, nil
}

// extraColumn infers a storage type for decoded JSON values: bool, int64
// when every number is integral, float64, or string. Anything else (mixed
// kinds, objects, arrays) is stored as its JSON text.
func extraColumn(name string, raw []any) (*table.Column, error) {
	allBool, allString, allNumber, allIntegral := true, true, true, true
	for _, v := range raw {
		if v == nil {
			continue
		}
		_, isBool := v.(bool)
		_, isString := v.(string)
		f, isNumber := v.(float64)
		allBool = allBool && isBool
		allString = allString && isString
		allNumber = allNumber && isNumber
		if isNumber {
			_, integral := table.AsInt64(f)
			allIntegral = allIntegral && integral
		}
	}

	out := make([]any, len(raw))
	switch {
	case allBool:
		copy(out, raw)
		return table.NewColumn(name, table.Bool, out), nil
	case allNumber && allIntegral:
		for i, v := range raw {
			if v != nil {
				out[i], _ = table.AsInt64(v)
			}
		}
		return table.NewColumn(name, table.Int64, out), nil
	case allNumber:
		copy(out, raw)
		return table.NewColumn(name, table.Float64, out), nil
	case allString:
		copy(out, raw)
		return table.NewColumn(name, table.String, out), nil
	}

	for i, v := range raw {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			out[i] = s
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, eris.Wrapf(err, "flatten: encode extra field %s", name)
		}
		out[i] = string(b)
	}
	return table.NewColumn(name, table.String, out), nil
}

// GenresTable builds the genre reference table: id, name.
func GenresTable(ref *models.GenreReference) *table.Table {
	if ref == nil {
		ref = &models.GenreReference{}
	}
	ids := make([]any, len(ref.Genres))
	names := make([]any, len(ref.Genres))
	for i, g := range ref.Genres {
		ids[i] = g.ID
		names[i] = g.Name
	}
	t, _ := table.New(
		table.NewColumn("id", table.Int64, ids),
		table.NewColumn("name", table.String, names),
	)
	return t
}

func str(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func f64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolean(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}
