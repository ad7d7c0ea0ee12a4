package storage

import (
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"tmdb-etl/models"
)

// RawStore keeps the raw API snapshots as JSON files in one directory.
type RawStore struct {
	dir string
}

// NewRawStore creates a RawStore rooted at dir. The directory is created on
// the first write.
func NewRawStore(dir string) *RawStore {
	return &RawStore{dir: dir}
}

// SnapshotPath is where the snapshot of an endpoint lives.
func (s *RawStore) SnapshotPath(e models.Endpoint) string {
	return filepath.Join(s.dir, "tmdb_"+string(e)+".json")
}

// GenresPath is where the genre reference lives.
func (s *RawStore) GenresPath() string {
	return filepath.Join(s.dir, "genres.json")
}

// SaveSnapshot persists snap and returns the file path.
func (s *RawStore) SaveSnapshot(snap *models.Snapshot) (string, error) {
	path := s.SnapshotPath(snap.Endpoint)
	return path, Persist(path, snap)
}

// SaveGenres persists the genre reference and returns the file path.
func (s *RawStore) SaveGenres(ref *models.GenreReference) (string, error) {
	path := s.GenresPath()
	return path, Persist(path, ref)
}

// LoadSnapshot reads back the snapshot of an endpoint.
func (s *RawStore) LoadSnapshot(e models.Endpoint) (*models.Snapshot, error) {
	path := s.SnapshotPath(e)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(&models.IOError{Path: path, Err: err}, "storage: load snapshot")
	}
	snap := models.NewSnapshot(e)
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, eris.Wrapf(err, "storage: decode %s", path)
	}
	snap.Requested = snap.Len()
	return snap, nil
}

// LoadGenres reads back the genre reference.
func (s *RawStore) LoadGenres() (*models.GenreReference, error) {
	path := s.GenresPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(&models.IOError{Path: path, Err: err}, "storage: load genres")
	}
	ref, err := models.DecodeGenres(data)
	if err != nil {
		return nil, eris.Wrapf(err, "storage: decode %s", path)
	}
	return ref, nil
}

// Persist writes v as indented JSON to path, creating missing directories
// and replacing whatever was there before.
func Persist(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "storage: encode %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return eris.Wrap(&models.IOError{Path: path, Err: err}, "storage: create dir")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return eris.Wrap(&models.IOError{Path: path, Err: err}, "storage: write")
	}
	return nil
}
