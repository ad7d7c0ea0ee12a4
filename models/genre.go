package models

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Genre is one entry of the genre reference list.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// GenreReference is the genre list loaded once per run and shared read-only
// by every enrichment pass.
type GenreReference struct {
	Genres []Genre
	Body   json.RawMessage
}

type genreEnvelope struct {
	Genres []Genre `json:"genres"`
}

// DecodeGenres parses a genre list response body. A body without a genres
// key yields an empty reference.
func DecodeGenres(body []byte) (*GenreReference, error) {
	var env genreEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode genres: %w", err)
	}
	raw := make(json.RawMessage, len(body))
	copy(raw, body)
	return &GenreReference{Genres: env.Genres, Body: raw}, nil
}

// Lookup builds the id to name mapping.
func (g *GenreReference) Lookup() map[int64]string {
	m := make(map[int64]string, len(g.Genres))
	for _, genre := range g.Genres {
		m[genre.ID] = genre.Name
	}
	return m
}

// MarshalJSON writes the verbatim body when there is one.
func (g *GenreReference) MarshalJSON() ([]byte, error) {
	if len(g.Body) > 0 {
		return g.Body, nil
	}
	genres := g.Genres
	if genres == nil {
		genres = []Genre{}
	}
	return json.Marshal(genreEnvelope{Genres: genres})
}

// UnmarshalJSON reads a genre list body.
func (g *GenreReference) UnmarshalJSON(data []byte) error {
	ref, err := DecodeGenres(data)
	if err != nil {
		return err
	}
	*g = *ref
	return nil
}
