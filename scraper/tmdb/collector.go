package tmdb

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"tmdb-etl/metrics"
	"tmdb-etl/models"
	"tmdb-etl/utils"
)

// PageFetcher is the part of Fetcher the collector depends on.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) PageResult
	ListURL(e models.Endpoint, page int) string
}

// Collector drives a PageFetcher across an endpoint's page range.
type Collector struct {
	fetcher PageFetcher
	logger  *utils.Logger
	metrics *metrics.Pipeline
}

// NewCollector creates a Collector. m may be nil.
func NewCollector(f PageFetcher, logger *utils.Logger, m *metrics.Pipeline) *Collector {
	return &Collector{fetcher: f, logger: logger, metrics: m}
}

// UpperBound is the exclusive end of the page range a run requests:
// min(totalPages, maxPages). Pages 1..UpperBound-1 are fetched, so the page
// equal to the bound is never requested.
func UpperBound(totalPages, maxPages int) int {
	return min(totalPages, maxPages)
}

// Collect fetches page 1 to learn the page count, then every page in
// [1, UpperBound). Each request starts at least delay after the previous
// one finished. A failed page is logged and left out of the snapshot; only
// a failed page-count discovery is returned as an error, in which case
// there is no snapshot.
func (c *Collector) Collect(ctx context.Context, e models.Endpoint, maxPages int, delay time.Duration) (*models.Snapshot, error) {
	throttle := utils.NewThrottle(delay)

	if err := throttle.Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "tmdb: %s", e)
	}
	first := c.fetcher.Fetch(ctx, c.fetcher.ListURL(e, 1))
	throttle.Done()
	page, err := first.Page()
	if err != nil {
		c.metrics.PageFailed(string(e), first.Kind().String())
		return nil, eris.Wrapf(err, "tmdb: discover page count for %s", e)
	}

	upper := UpperBound(page.TotalPages, maxPages)
	snap := models.NewSnapshot(e)
	snap.TotalPages = page.TotalPages
	snap.Requested = max(upper-1, 0)

	c.logger.Info("[tmdb] %s: source reports %d pages, requesting pages 1..%d (cap %d)",
		e, page.TotalPages, upper-1, maxPages)

	for i := 1; i < upper; i++ {
		if err := throttle.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "tmdb: %s page %d", e, i)
		}

		res := c.fetcher.Fetch(ctx, c.fetcher.ListURL(e, i))
		throttle.Done()
		p, err := res.Page()
		if err != nil {
			c.metrics.PageFailed(string(e), res.Kind().String())
			if res.Kind() == ResultHTTPError {
				c.logger.Warn("[tmdb] %s page %d failed with status %d", e, i, res.Status)
			} else {
				c.logger.Warn("[tmdb] %s page %d: %v", e, i, err)
			}
			continue
		}

		snap.Add(i, p)
		c.metrics.PageFetched(string(e), res.Elapsed)
		c.logger.Info("[tmdb] %s page %d downloaded in %.2fs", e, i, res.Elapsed.Seconds())
	}

	c.logger.Info("[tmdb] %s: fetched %d/%d pages", e, snap.Len(), snap.Requested)
	return snap, nil
}
