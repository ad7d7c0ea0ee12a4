package storage

import (
	"context"

	"tmdb-etl/table"
)

// TableWriter persists a finalized table as files under dir sharing one
// base name.
type TableWriter interface {
	Write(ctx context.Context, t *table.Table, dir, basename string) ([]string, error)
}

// TableLoader is the interface any relational backend must satisfy.
type TableLoader interface {
	BulkReplace(ctx context.Context, name string, t *table.Table) error
	Close() error
}

// Publisher copies a local file to remote object storage under key.
type Publisher interface {
	Publish(ctx context.Context, localPath, key string) error
}
