// Package metrics tracks pipeline progress with Prometheus collectors. A run
// is a short-lived batch process, so instead of serving /metrics the
// registry is written once to a node_exporter textfile at the end of the run.
//
// All recording methods are safe to call on a nil *Pipeline.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// Pipeline groups the collectors of one run.
type Pipeline struct {
	registry *prometheus.Registry

	pagesFetched   *prometheus.CounterVec
	pagesFailed    *prometheus.CounterVec
	fetchSeconds   *prometheus.HistogramVec
	rowsFinalized  *prometheus.GaugeVec
	rowsLoaded     *prometheus.GaugeVec
	loadFailures   *prometheus.CounterVec
	stageDurations *prometheus.GaugeVec
}

// New registers the pipeline collectors on a fresh registry.
func New() *Pipeline {
	p := &Pipeline{
		registry: prometheus.NewRegistry(),
		pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tmdb_etl",
			Name:      "pages_fetched_total",
			Help:      "Listing pages fetched successfully.",
		}, []string{"endpoint"}),
		pagesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tmdb_etl",
			Name:      "pages_failed_total",
			Help:      "Listing pages skipped after an HTTP or network error.",
		}, []string{"endpoint", "reason"}),
		fetchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tmdb_etl",
			Name:      "page_fetch_seconds",
			Help:      "Latency of listing page requests.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		rowsFinalized: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tmdb_etl",
			Name:      "rows_finalized",
			Help:      "Rows in each finalized table.",
		}, []string{"table"}),
		rowsLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tmdb_etl",
			Name:      "rows_loaded",
			Help:      "Rows written to the relational store per table.",
		}, []string{"table"}),
		loadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tmdb_etl",
			Name:      "table_load_failures_total",
			Help:      "Tables whose bulk replace failed.",
		}, []string{"table"}),
		stageDurations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tmdb_etl",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage.",
		}, []string{"stage"}),
	}
	p.registry.MustRegister(
		p.pagesFetched, p.pagesFailed, p.fetchSeconds,
		p.rowsFinalized, p.rowsLoaded, p.loadFailures, p.stageDurations,
	)
	return p
}

// Registry exposes the underlying registry, e.g. for testutil.
func (p *Pipeline) Registry() *prometheus.Registry { return p.registry }

func (p *Pipeline) PageFetched(endpoint string, elapsed time.Duration) {
	if p == nil {
		return
	}
	p.pagesFetched.WithLabelValues(endpoint).Inc()
	p.fetchSeconds.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (p *Pipeline) PageFailed(endpoint, reason string) {
	if p == nil {
		return
	}
	p.pagesFailed.WithLabelValues(endpoint, reason).Inc()
}

func (p *Pipeline) TableFinalized(table string, rows int) {
	if p == nil {
		return
	}
	p.rowsFinalized.WithLabelValues(table).Set(float64(rows))
}

func (p *Pipeline) TableLoaded(table string, rows int) {
	if p == nil {
		return
	}
	p.rowsLoaded.WithLabelValues(table).Set(float64(rows))
}

func (p *Pipeline) TableLoadFailed(table string) {
	if p == nil {
		return
	}
	p.loadFailures.WithLabelValues(table).Inc()
}

func (p *Pipeline) StageDone(stage string, elapsed time.Duration) {
	if p == nil {
		return
	}
	p.stageDurations.WithLabelValues(stage).Set(elapsed.Seconds())
}

// WriteTextfile writes the registry in the text exposition format.
func (p *Pipeline) WriteTextfile(path string) error {
	if p == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "metrics: create dir")
	}
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return eris.Wrap(err, "metrics: write textfile")
	}
	return nil
}
