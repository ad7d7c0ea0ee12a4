package tmdb

import (
	"context"

	"github.com/rotisserie/eris"

	"tmdb-etl/models"
)

// FetchGenres downloads the movie genre reference list.
func (f *Fetcher) FetchGenres(ctx context.Context) (*models.GenreReference, error) {
	res := f.Fetch(ctx, f.GenresURL())
	if res.Err != nil {
		return nil, eris.Wrap(res.Err, "tmdb: fetch genres")
	}
	ref, err := models.DecodeGenres(res.Body)
	if err != nil {
		return nil, eris.Wrap(&models.NetworkError{URL: res.URL, Err: err}, "tmdb: fetch genres")
	}
	return ref, nil
}
