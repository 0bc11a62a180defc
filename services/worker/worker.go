package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vishalnemlekar/instabot/internal/catalog"
	"github.com/vishalnemlekar/instabot/internal/crawler"
	"github.com/vishalnemlekar/instabot/logger"
	"github.com/vishalnemlekar/instabot/services/cache"
	"github.com/vishalnemlekar/instabot/services/publisher"
	"github.com/vishalnemlekar/instabot/services/syncer"
)

// ParentCrawler collects the rows of one parent category
type ParentCrawler interface {
	Crawl(ctx context.Context, b crawler.Browser, parentURL string) (crawler.ParentResult, error)
}

// RowSyncer writes collected rows to the store
type RowSyncer interface {
	Sync(ctx context.Context, runID string, rows []catalog.Row) syncer.Summary
}

// ParentStats describes what happened to one parent during a pass
type ParentStats struct {
	URL         string        `json:"url"`
	Category    string        `json:"category,omitempty"`
	Tiles       int           `json:"tiles"`
	SkippedTile int           `json:"skipped_tiles"`
	Rows        int           `json:"rows"`
	Exhausted   int           `json:"exhausted_scopes"`
	RateLimited bool          `json:"rate_limited"`
	CooledDown  bool          `json:"cooled_down"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// PassStats summarizes one outer pass over every parent
type PassStats struct {
	RunID     string         `json:"run_id"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Parents   []ParentStats  `json:"parents"`
	Sync      syncer.Summary `json:"sync"`
	Error     string         `json:"error,omitempty"`
}

// Snapshot is the worker state exposed to the status endpoint
type Snapshot struct {
	Passes int        `json:"passes"`
	Last   *PassStats `json:"last,omitempty"`
}

// Worker handles the crawling and syncing process
type Worker struct {
	ctx           context.Context
	parents       []string
	openBrowser   crawler.BrowserFactory
	crawler       ParentCrawler
	syncer        RowSyncer
	publisher     publisher.Publisher
	cooldown      *cache.Cooldown
	crawlInterval time.Duration
	verbose       bool
	logger        *logger.Logger

	newRunID func() string

	mu     sync.RWMutex
	passes int
	last   *PassStats
}

// Option customizes a Worker
type Option func(*Worker)

// WithPublisher trims the change feed after every pass
func WithPublisher(p publisher.Publisher) Option {
	return func(w *Worker) { w.publisher = p }
}

// WithCooldown skips parents that were rate limited recently
func WithCooldown(c *cache.Cooldown) Option {
	return func(w *Worker) { w.cooldown = c }
}

// WithVerbose logs a sample row per parent
func WithVerbose(v bool) Option {
	return func(w *Worker) { w.verbose = v }
}

// NewWorker creates a new worker
func NewWorker(
	ctx context.Context,
	parents []string,
	openBrowser crawler.BrowserFactory,
	c ParentCrawler,
	s RowSyncer,
	crawlInterval time.Duration,
	opts ...Option,
) *Worker {
	w := &Worker{
		ctx:           ctx,
		parents:       parents,
		openBrowser:   openBrowser,
		crawler:       c,
		syncer:        s,
		crawlInterval: crawlInterval,
		logger:        logger.ForWorker(),
		newRunID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs passes until the worker's context is cancelled
func (w *Worker) Start() {
	for {
		stats := w.RunOnce()
		w.logger.Info().
			Str("run_id", stats.RunID).
			Dur("elapsed", stats.Duration).
			Int("written", stats.Sync.Written).
			Msg("Pass finished")

		select {
		case <-w.ctx.Done():
			w.logger.Info().Msg("Worker stopped")
			return
		case <-time.After(w.crawlInterval):
		}
	}
}

// RunOnce opens a browser, processes every parent in order and closes it
func (w *Worker) RunOnce() PassStats {
	ctx := w.ctx
	stats := PassStats{RunID: w.newRunID(), StartedAt: time.Now()}
	log := w.logger.WithStr("run_id", stats.RunID)
	log.Info().Int("parents", len(w.parents)).Msg("Starting pass")

	b, err := w.openBrowser(ctx)
	if err != nil {
		log.WithError(err).Error().Msg("Failed to start browser, skipping pass")
		stats.Error = err.Error()
		w.record(&stats)
		return stats
	}

	for _, parent := range w.parents {
		if ctx.Err() != nil {
			break
		}
		ps := w.processParent(ctx, b, stats.RunID, parent, &stats.Sync)
		stats.Parents = append(stats.Parents, ps)
	}

	if err := b.Close(); err != nil {
		log.WithError(err).Warn().Msg("Failed to close browser")
	}

	// Trim all streams after crawling
	if w.publisher != nil {
		if err := w.publisher.TrimStreams(ctx); err != nil {
			log.WithError(err).Error().Msg("Stream trimming failed")
		}
	}

	w.record(&stats)
	return stats
}

// processParent crawls and syncs one parent. Errors and panics stay inside.
func (w *Worker) processParent(ctx context.Context, b crawler.Browser, runID, parent string, total *syncer.Summary) (ps ParentStats) {
	start := time.Now()
	ps.URL = parent
	log := w.logger.WithFields(logger.Fields{"run_id": runID, "parent": parent})

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Parent crawl panicked")
			ps.Error = fmt.Sprint("panic: ", r)
		}
		ps.Duration = time.Since(start)
	}()

	if w.cooldown.Active(parent) {
		log.Warn().Dur("block", w.cooldown.Block()).Msg("Parent is cooling down after rate limiting, skipping")
		ps.CooledDown = true
		return ps
	}

	res, err := w.crawler.Crawl(ctx, b, parent)
	ps.Category = res.Category
	ps.Tiles = len(res.Facets)
	ps.SkippedTile = len(res.Skipped)
	ps.Rows = len(res.Rows)
	ps.Exhausted = res.Exhausted
	ps.RateLimited = res.RateLimited
	if err != nil {
		log.WithError(err).Error().Msg("Parent crawl failed")
		ps.Error = err.Error()
		return ps
	}

	if res.RateLimited {
		if err := w.cooldown.Start(parent); err != nil {
			log.WithError(err).Warn().Msg("Failed to record cooldown")
		}
	}

	if w.verbose && len(res.Rows) > 0 {
		w.logSample(log, res.Rows[0])
	}

	sum := w.syncer.Sync(ctx, runID, res.Rows)
	total.Add(sum)
	return ps
}

func (w *Worker) logSample(log *logger.Logger, r catalog.Row) {
	data, err := json.Marshal(r)
	if err != nil {
		log.WithError(err).Warn().Msg("Failed to encode sample row")
		return
	}
	log.Debug().RawJSON("row", data).Msg("Sample row")
}

func (w *Worker) record(stats *PassStats) {
	stats.Duration = time.Since(stats.StartedAt)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.passes++
	w.last = stats
}

// Snapshot returns the number of finished passes and the last one
func (w *Worker) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Snapshot{Passes: w.passes, Last: w.last}
}
