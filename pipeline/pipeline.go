// Package pipeline wires the extract, transform and load stages together.
// Each stage can run on its own from the files the previous stage wrote, or
// in sequence with the results handed over in memory.
package pipeline

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"tmdb-etl/config"
	"tmdb-etl/metrics"
	"tmdb-etl/models"
	"tmdb-etl/scraper/tmdb"
	"tmdb-etl/services"
	"tmdb-etl/storage"
	"tmdb-etl/table"
	"tmdb-etl/utils"
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageTransform Stage = "transform"
	StageLoad      Stage = "load"
)

// Extracted is the output of the extract stage: one snapshot per endpoint
// that passed page-count discovery, in endpoint order, and the genre
// reference.
type Extracted struct {
	Snapshots []*models.Snapshot
	Genres    *models.GenreReference
}

// NamedTable is a finalized table and the relational table name it loads
// into.
type NamedTable struct {
	Name  string
	Table *table.Table
}

// LoaderFactory opens the relational store for one load pass.
type LoaderFactory func(ctx context.Context) (storage.TableLoader, error)

// Runner executes the stages of one run and collects its summary.
type Runner struct {
	cfg        *config.Config
	logger     *utils.Logger
	metrics    *metrics.Pipeline
	raw        *storage.RawStore
	sink       storage.TableWriter
	publisher  storage.Publisher
	openLoader LoaderFactory
	summary    *models.RunSummary

	flattener *services.Flattener
	enricher  *services.Enricher
}

// Option customizes a Runner.
type Option func(*Runner)

// WithPublisher mirrors every processed file through p.
func WithPublisher(p storage.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithLoader replaces the configured SQL store.
func WithLoader(f LoaderFactory) Option {
	return func(r *Runner) { r.openLoader = f }
}

// WithMetrics records into m instead of a fresh registry.
func WithMetrics(m *metrics.Pipeline) Option {
	return func(r *Runner) { r.metrics = m }
}

// New creates a Runner with a fresh run id.
func New(cfg *config.Config, logger *utils.Logger, opts ...Option) *Runner {
	runID := uuid.NewString()
	r := &Runner{
		cfg:     cfg,
		logger:  logger.With("run_id", runID),
		raw:     storage.NewRawStore(cfg.RawDir),
		summary: &models.RunSummary{RunID: runID, StartedAt: time.Now()},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	if r.openLoader == nil {
		r.openLoader = r.openSQLStore
	}
	r.sink = storage.NewTabularSink(r.logger, r.publisher, cfg.S3Prefix)
	r.flattener = services.NewFlattener(r.logger)
	r.enricher = services.NewEnricher(r.logger)
	return r
}

// Summary returns the outcomes recorded so far.
func (r *Runner) Summary() *models.RunSummary { return r.summary }

// Run executes extract, transform and load in sequence. Partial results
// flow on: an endpoint that failed extraction is simply absent downstream.
// The returned error joins every stage error.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("=== TMDb ETL run %s starting ===", r.summary.RunID)

	extracted, extractErr := r.Extract(ctx)
	if extracted == nil {
		return extractErr
	}
	tables, transformErr := r.Transform(ctx, extracted)
	if ctx.Err() != nil {
		return errors.Join(extractErr, transformErr)
	}
	loadErr := r.Load(ctx, tables)
	return errors.Join(extractErr, transformErr, loadErr)
}

// Extract fetches every endpoint and the genre reference and persists them
// to the raw store. A nil result means nothing could be extracted at all:
// the API key is missing or ctx was cancelled.
func (r *Runner) Extract(ctx context.Context) (*Extracted, error) {
	defer r.stageTimer(StageExtract)()

	if err := r.cfg.RequireAPIKey(); err != nil {
		return nil, err
	}

	fetcher := tmdb.NewFetcher(tmdb.Options{
		APIKey:  r.cfg.APIKey,
		BaseURL: r.cfg.BaseURL,
		Timeout: r.cfg.RequestTimeout,
	})
	collector := tmdb.NewCollector(fetcher, r.logger, r.metrics)

	out := &Extracted{}
	var errs []error
	for _, e := range models.Endpoints() {
		snap, err := collector.Collect(ctx, e, r.cfg.MaxPages, r.cfg.DelayFor(string(e)))
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "pipeline: extract cancelled")
			}
			r.logger.Error("[extract] %s: %v", e, err)
			r.summary.RecordEndpoint(models.EndpointReport{Endpoint: e, Err: err})
			errs = append(errs, err)
			continue
		}

		r.summary.RecordEndpoint(models.EndpointReport{
			Endpoint:   e,
			TotalPages: snap.TotalPages,
			Requested:  snap.Requested,
			Fetched:    snap.Len(),
		})
		if path, err := r.raw.SaveSnapshot(snap); err != nil {
			r.logger.Error("[extract] %s: %v", e, err)
			errs = append(errs, err)
		} else {
			r.logger.Info("[extract] saved %d pages to %s", snap.Len(), path)
		}
		out.Snapshots = append(out.Snapshots, snap)
	}

	genres, err := fetcher.FetchGenres(ctx)
	if err != nil {
		r.logger.Error("[extract] genre list unavailable, every genre will resolve to %q: %v", services.UnknownGenre, err)
		errs = append(errs, err)
		genres = &models.GenreReference{}
	}
	if path, err := r.raw.SaveGenres(genres); err != nil {
		r.logger.Error("[extract] %v", err)
		errs = append(errs, err)
	} else {
		r.logger.Info("[extract] saved %d genres to %s", len(genres.Genres), path)
	}
	out.Genres = genres

	return out, errors.Join(errs...)
}

// TransformRaw runs the transform stage on the snapshots in the raw store.
// Endpoints without a snapshot file are skipped with an error.
func (r *Runner) TransformRaw(ctx context.Context) ([]NamedTable, error) {
	in := &Extracted{}
	var errs []error
	for _, e := range models.Endpoints() {
		snap, err := r.raw.LoadSnapshot(e)
		if err != nil {
			r.logger.Error("[transform] %s: %v", e, err)
			errs = append(errs, err)
			continue
		}
		in.Snapshots = append(in.Snapshots, snap)
	}

	genres, err := r.raw.LoadGenres()
	if err != nil {
		r.logger.Error("[transform] genre reference unavailable: %v", err)
		errs = append(errs, err)
		genres = &models.GenreReference{}
	}
	in.Genres = genres

	tables, err := r.Transform(ctx, in)
	return tables, errors.Join(append(errs, err)...)
}

// Transform flattens, optimizes and enriches each snapshot into a finalized
// table, builds the genre table, and writes every table through the sink.
func (r *Runner) Transform(ctx context.Context, in *Extracted) ([]NamedTable, error) {
	defer r.stageTimer(StageTransform)()

	var (
		out  []NamedTable
		errs []error
	)
	for _, snap := range in.Snapshots {
		if err := ctx.Err(); err != nil {
			return out, eris.Wrap(err, "pipeline: transform cancelled")
		}
		name := snap.Endpoint.TableName()
		t, err := r.finalize(snap, in.Genres)
		if err != nil {
			r.logger.Error("[transform] %s: %v", name, err)
			errs = append(errs, err)
			continue
		}
		if err := r.write(ctx, name, t); err != nil {
			errs = append(errs, err)
		}
		out = append(out, NamedTable{Name: name, Table: t})
	}

	genres := services.GenresTable(in.Genres)
	if err := r.write(ctx, models.GenresTable, genres); err != nil {
		errs = append(errs, err)
	}
	out = append(out, NamedTable{Name: models.GenresTable, Table: genres})

	return out, errors.Join(errs...)
}

func (r *Runner) finalize(snap *models.Snapshot, genres *models.GenreReference) (*table.Table, error) {
	movies, err := r.flattener.Flatten(snap)
	if err != nil {
		return nil, err
	}
	t, err := services.ToTable(movies)
	if err != nil {
		return nil, err
	}
	optimized, report := services.Optimize(t, services.DateColumns)
	r.logger.Info("[optimize] %s: %s", snap.Endpoint, report)
	for col, reason := range report.Skipped {
		r.logger.Debug("[optimize] %s.%s kept: %s", snap.Endpoint, col, reason)
	}
	return r.enricher.Enrich(optimized, genres)
}

func (r *Runner) write(ctx context.Context, name string, t *table.Table) error {
	if _, err := r.sink.Write(ctx, t, r.cfg.ProcessedDir, processedBase(name)); err != nil {
		r.logger.Error("[transform] %s: %v", name, err)
		return err
	}
	r.metrics.TableFinalized(name, t.Len())
	return nil
}

// processedBase is the file base name of a finalized table.
func processedBase(name string) string {
	return "tmdb_" + name
}

// LoadFiles runs the load stage on the Parquet files of the processed
// directory. Column types are taken from the files. A missing or unreadable
// file is a failure of that table only: it is logged and recorded in the
// summary, and the other tables are still loaded.
func (r *Runner) LoadFiles(ctx context.Context) error {
	var tables []NamedTable
	names := make([]string, 0, len(models.Endpoints())+1)
	for _, e := range models.Endpoints() {
		names = append(names, e.TableName())
	}
	names = append(names, models.GenresTable)

	for _, name := range names {
		path := filepath.Join(r.cfg.ProcessedDir, processedBase(name)+".parquet")
		t, err := storage.ReadParquet(ctx, path, nil)
		if err != nil {
			r.tableFailed(name, err)
			continue
		}
		tables = append(tables, NamedTable{Name: name, Table: t})
	}

	return r.Load(ctx, tables)
}

// Load bulk-replaces every table in the relational store. A failed table is
// logged and recorded in the summary and the metrics; the remaining tables
// are still loaded and the error is not returned. Only a store that cannot
// be opened fails the stage.
func (r *Runner) Load(ctx context.Context, tables []NamedTable) error {
	defer r.stageTimer(StageLoad)()

	if len(tables) == 0 {
		r.logger.Warn("[load] nothing to load")
		return nil
	}

	loader, err := r.openLoader(ctx)
	if err != nil {
		r.logger.Error("[load] cannot open store: %v", err)
		for _, nt := range tables {
			r.summary.RecordTable(models.TableReport{Table: nt.Name, Err: err})
			r.metrics.TableLoadFailed(nt.Name)
		}
		return eris.Wrap(err, "pipeline: open store")
	}
	defer func() {
		if err := loader.Close(); err != nil {
			r.logger.Warn("[load] close store: %v", err)
		}
	}()

	for _, nt := range tables {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "pipeline: load cancelled")
		}
		if err := loader.BulkReplace(ctx, nt.Name, nt.Table); err != nil {
			r.tableFailed(nt.Name, err)
			continue
		}
		if nt.Table.Len() == 0 {
			r.logger.Warn("[load] %s: loaded 0 rows", nt.Name)
		} else {
			r.logger.Info("[load] %s: loaded %d rows", nt.Name, nt.Table.Len())
		}
		r.summary.RecordTable(models.TableReport{Table: nt.Name, Rows: nt.Table.Len(), Loaded: true})
		r.metrics.TableLoaded(nt.Name, nt.Table.Len())
	}
	return nil
}

func (r *Runner) tableFailed(name string, err error) {
	r.logger.Error("[load] %s: %v", name, err)
	r.summary.RecordTable(models.TableReport{Table: name, Err: err})
	r.metrics.TableLoadFailed(name)
}

func (r *Runner) openSQLStore(ctx context.Context) (storage.TableLoader, error) {
	retry := utils.RetryConfig{
		MaxAttempts: r.cfg.MaxRetries,
		BaseDelay:   time.Second,
		Logger:      r.logger,
	}
	store, err := storage.OpenSQLStore(ctx, storage.Dialect(r.cfg.StoreDriver), r.cfg.DSN(), retry, r.logger)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Finish logs and prints the run summary and writes the metrics textfile.
func (r *Runner) Finish(w io.Writer) {
	svc := services.NewSummaryService(r.logger)
	svc.Log(r.summary)
	svc.Print(w, r.summary)

	if err := r.metrics.WriteTextfile(r.cfg.MetricsPath); err != nil {
		r.logger.Warn("[metrics] %v", err)
	}
}

func (r *Runner) stageTimer(stage Stage) func() {
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		r.metrics.StageDone(string(stage), elapsed)
		r.logger.Info("[%s] stage finished in %s", stage, elapsed.Round(time.Millisecond))
	}
}
