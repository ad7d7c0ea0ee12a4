package models

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// ErrMissingID is returned for a listing record without an id.
var ErrMissingID = errors.New("record has no id")

// Movie is one listing record validated against the declared schema.
// Pointer fields are nullable; fields the schema does not know about are
// kept in Extras with their decoded JSON value.
type Movie struct {
	ID               int64
	Title            *string
	OriginalTitle    *string
	OriginalLanguage *string
	Overview         *string
	Popularity       *float64
	VoteAverage      *float64
	VoteCount        *int64
	ReleaseDate      *string
	PosterPath       *string
	BackdropPath     *string
	GenreIDs         []int64
	Adult            *bool
	Video            *bool

	Extras map[string]any
}

// DecodeMovie validates one raw listing record.
func DecodeMovie(raw []byte) (*Movie, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode movie: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("decode movie: record is null")
	}

	m := &Movie{}
	idRaw, ok := fields["id"]
	if !ok || isNull(idRaw) {
		return nil, ErrMissingID
	}
	if err := json.Unmarshal(idRaw, &m.ID); err != nil {
		return nil, fmt.Errorf("decode movie field id: %w", err)
	}

	known := map[string]any{
		"title":             &m.Title,
		"original_title":    &m.OriginalTitle,
		"original_language": &m.OriginalLanguage,
		"overview":          &m.Overview,
		"popularity":        &m.Popularity,
		"vote_average":      &m.VoteAverage,
		"vote_count":        &m.VoteCount,
		"release_date":      &m.ReleaseDate,
		"poster_path":       &m.PosterPath,
		"backdrop_path":     &m.BackdropPath,
		"genre_ids":         &m.GenreIDs,
		"adult":             &m.Adult,
		"video":             &m.Video,
	}

	for key, value := range fields {
		if key == "id" {
			continue
		}
		dst, isKnown := known[key]
		if !isKnown {
			var v any
			if err := json.Unmarshal(value, &v); err != nil {
				return nil, fmt.Errorf("decode movie extra %s: %w", key, err)
			}
			if m.Extras == nil {
				m.Extras = make(map[string]any)
			}
			m.Extras[key] = v
			continue
		}
		if isNull(value) {
			continue
		}
		if err := json.Unmarshal(value, dst); err != nil {
			return nil, fmt.Errorf("decode movie %d field %s: %w", m.ID, key, err)
		}
	}

	// TMDb sends "" for unknown release dates.
	if m.ReleaseDate != nil && *m.ReleaseDate == "" {
		m.ReleaseDate = nil
	}
	return m, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
