package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tmdb-etl/utils"
)

type recordingPublisher struct {
	keys []string
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, localPath, key string) error {
	if _, err := os.Stat(localPath); err != nil {
		return err
	}
	p.keys = append(p.keys, key)
	return p.err
}

func TestTabularSinkWritesBothFormats(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "processed")
	sink := NewTabularSink(utils.NewNopLogger(), nil, "")
	want := finalizedTable(t)

	paths, err := sink.Write(context.Background(), want, dir, "tmdb_popular")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "tmdb_popular.csv"),
		filepath.Join(dir, "tmdb_popular.parquet"),
	}, paths)

	fromCSV, err := ReadCSV(paths[0], want.Schema())
	require.NoError(t, err)
	fromParquet, err := ReadParquet(context.Background(), paths[1], want.Schema())
	require.NoError(t, err)
	assert.Equal(t, want.Len(), fromCSV.Len())
	assert.Equal(t, want.Len(), fromParquet.Len())
}

func TestTabularSinkPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	sink := NewTabularSink(utils.NewNopLogger(), pub, "tmdb/processed")

	_, err := sink.Write(context.Background(), finalizedTable(t), t.TempDir(), "genres")
	require.NoError(t, err)
	assert.Equal(t, []string{"tmdb/processed/genres.csv", "tmdb/processed/genres.parquet"}, pub.keys)
}

func TestTabularSinkIgnoresPublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("bucket gone")}
	sink := NewTabularSink(utils.NewNopLogger(), pub, "")

	paths, err := sink.Write(context.Background(), finalizedTable(t), t.TempDir(), "tmdb_upcoming")
	require.NoError(t, err)
	assert.Len(t, paths, 2)
	assert.Len(t, pub.keys, 2)
}
