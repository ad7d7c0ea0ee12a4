package storage

import (
	"context"
	"path/filepath"

	"tmdb-etl/table"
	"tmdb-etl/utils"
)

// TabularSink writes each finalized table as CSV and Parquet siblings and,
// when a Publisher is set, mirrors both files to object storage.
type TabularSink struct {
	logger    *utils.Logger
	publisher Publisher
	prefix    string
}

// NewTabularSink creates a sink. publisher may be nil.
func NewTabularSink(logger *utils.Logger, publisher Publisher, prefix string) *TabularSink {
	return &TabularSink{logger: logger, publisher: publisher, prefix: prefix}
}

// Write stores t as <dir>/<basename>.csv and <dir>/<basename>.parquet and
// returns both paths. Publish failures are logged, not returned.
func (s *TabularSink) Write(ctx context.Context, t *table.Table, dir, basename string) ([]string, error) {
	csvPath := filepath.Join(dir, basename+".csv")
	parquetPath := filepath.Join(dir, basename+".parquet")

	if err := WriteCSV(csvPath, t); err != nil {
		return nil, err
	}
	if err := WriteParquet(parquetPath, t); err != nil {
		return nil, err
	}
	s.logger.Info("[sink] saved %s & %s (%d rows)", csvPath, parquetPath, t.Len())

	paths := []string{csvPath, parquetPath}
	if s.publisher != nil {
		for _, p := range paths {
			key := ObjectKey(s.prefix, filepath.Base(p))
			if err := s.publisher.Publish(ctx, p, key); err != nil {
				s.logger.Warn("[sink] publish %s failed: %v", p, err)
				continue
			}
			s.logger.Info("[sink] published %s", key)
		}
	}
	return paths, nil
}
