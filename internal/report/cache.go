// Package report caches the weekly report for the lifetime of a session.
// The document is fetched at most once; only Invalidate allows a refetch.
package report

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spyhelmet/helmetmon/internal/metrics"
	"github.com/spyhelmet/helmetmon/internal/models"
)

const flightKey = "weekly"

// Fetcher retrieves the weekly report document.
type Fetcher interface {
	FetchReport(ctx context.Context) (models.Report, error)
}

// State is a read-only copy of the cache.
type State struct {
	Visible bool           `json:"visible"`
	Fetched bool           `json:"fetched"`
	Report  *models.Report `json:"report"`
}

// Cache is a single-flight, fetch-once cache around the report endpoint.
// Visibility is tracked separately and never depends on fetch success.
type Cache struct {
	fetcher  Fetcher
	timeout  time.Duration
	recorder metrics.Recorder
	logger   *zap.Logger
	group    singleflight.Group

	mu      sync.Mutex
	visible bool
	fetched bool
	doc     models.Report
	// gen is bumped by Invalidate so a fetch started before it cannot
	// repopulate the cache.
	gen uint64
}

// New creates an empty cache. timeout bounds the shared fetch; zero
// leaves it to the fetcher.
func New(fetcher Fetcher, timeout time.Duration, recorder metrics.Recorder, logger *zap.Logger) *Cache {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{fetcher: fetcher, timeout: timeout, recorder: recorder, logger: logger}
}

// Open marks the report visible and returns a copy of it, fetching it
// first if it has not been fetched yet. A failed fetch is returned to the
// caller and leaves the cache empty so a later Open can retry.
//
// Concurrent callers share one fetch. The fetch is detached from any
// single caller's cancellation; each caller stops waiting when its own
// ctx is done.
func (c *Cache) Open(ctx context.Context) (models.Report, error) {
	c.mu.Lock()
	c.visible = true
	if c.fetched {
		doc := cloneReport(c.doc)
		c.mu.Unlock()
		return doc, nil
	}
	gen := c.gen
	c.mu.Unlock()

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		return c.fetch(fetchCtx, gen)
	})

	select {
	case <-ctx.Done():
		return models.Report{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.Report{}, res.Err
		}
		if res.Shared {
			c.logger.Debug("Joined in-flight weekly report fetch")
		}
		return cloneReport(res.Val.(models.Report)), nil
	}
}

func (c *Cache) fetch(ctx context.Context, gen uint64) (models.Report, error) {
	c.mu.Lock()
	if c.fetched {
		doc := c.doc
		c.mu.Unlock()
		return doc, nil
	}
	c.mu.Unlock()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	doc, err := c.fetcher.FetchReport(ctx)
	if err != nil {
		c.recorder.ReportFetched(metrics.OutcomeError)
		c.logger.Warn("Weekly report fetch failed", zap.Error(err))
		return models.Report{}, err
	}
	c.recorder.ReportFetched(metrics.OutcomeSuccess)

	c.mu.Lock()
	if c.gen == gen {
		c.doc = cloneReport(doc)
		c.fetched = true
	}
	c.mu.Unlock()
	return doc, nil
}

// Close hides the report. The cached document is kept.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = false
}

// Invalidate discards the cached document, e.g. on logout.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.fetched = false
	c.doc = models.Report{}
	c.group.Forget(flightKey)
	c.logger.Info("Weekly report cache invalidated")
}

// State returns a copy of the cache state.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{Visible: c.visible, Fetched: c.fetched}
	if c.fetched {
		doc := cloneReport(c.doc)
		s.Report = &doc
	}
	return s
}

// cloneReport copies the break list so callers never share the cache's
// backing array.
func cloneReport(r models.Report) models.Report {
	if r.RecommendedBreaks != nil {
		r.RecommendedBreaks = append([]models.Break(nil), r.RecommendedBreaks...)
	}
	return r
}
