package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tmdb-etl/models"
)

type upload struct {
	bucket, key, contentType, body string
}

type fakeUploader struct {
	uploads []upload
	err     error
}

func (f *fakeUploader) Upload(ctx context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.uploads = append(f.uploads, upload{
		bucket:      aws.ToString(in.Bucket),
		key:         aws.ToString(in.Key),
		contentType: aws.ToString(in.ContentType),
		body:        string(body),
	})
	return &manager.UploadOutput{}, nil
}

func TestS3PublisherUploadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tmdb_popular.csv")
	require.NoError(t, os.WriteFile(path, []byte("id\n1\n"), 0644))

	up := &fakeUploader{}
	p := &S3Publisher{bucket: "etl-bucket", uploader: up}

	require.NoError(t, p.Publish(context.Background(), path, "tmdb/processed/tmdb_popular.csv"))
	require.Len(t, up.uploads, 1)
	assert.Equal(t, upload{
		bucket:      "etl-bucket",
		key:         "tmdb/processed/tmdb_popular.csv",
		contentType: "text/csv",
		body:        "id\n1\n",
	}, up.uploads[0])
}

func TestS3PublisherMissingFile(t *testing.T) {
	p := &S3Publisher{bucket: "b", uploader: &fakeUploader{}}

	err := p.Publish(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), "k")
	var ioErr *models.IOError
	assert.True(t, errors.As(err, &ioErr))
}

func TestS3PublisherUploadError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.parquet")
	require.NoError(t, os.WriteFile(path, []byte("PAR1"), 0644))
	p := &S3Publisher{bucket: "b", uploader: &fakeUploader{err: errors.New("access denied")}}

	err := p.Publish(context.Background(), path, "x.parquet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, name, want string
	}{
		{"", "genres.csv", "genres.csv"},
		{"tmdb/processed", "genres.csv", "tmdb/processed/genres.csv"},
		{"/tmdb/processed/", "genres.csv", "tmdb/processed/genres.csv"},
		{"/", "genres.csv", "genres.csv"},
	}
	for _, tt := range tests {
		if got := ObjectKey(tt.prefix, tt.name); got != tt.want {
			t.Errorf("ObjectKey(%q, %q) = %q, want %q", tt.prefix, tt.name, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv", contentType("a/b.csv"))
	assert.Equal(t, "application/json", contentType("genres.json"))
	assert.Equal(t, "application/octet-stream", contentType("tmdb_popular.parquet"))
}
