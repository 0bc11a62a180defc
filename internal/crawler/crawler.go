package crawler

import (
	"context"
	"time"

	"github.com/vishalnemlekar/instabot/internal/catalog"
	"github.com/vishalnemlekar/instabot/logger"
	pkgerrors "github.com/vishalnemlekar/instabot/pkg/errors"
)

// ParentResult is everything collected for one parent category
type ParentResult struct {
	URL         string
	Category    string
	Facets      []Facet
	Rows        []catalog.Row
	ParentRows  int
	FacetRows   map[string]int
	Skipped     []Facet
	TilesFound  bool
	Exhausted   int
	RateLimited bool
	Duration    time.Duration
}

// CategoryCrawler crawls one parent category page: the parent listing first,
// then every facet in the order the page shows them
type CategoryCrawler struct {
	Selectors Selectors
	Timings   Timings

	sleep func(ctx context.Context, d time.Duration) error
}

// NewCategoryCrawler creates a crawler using the production selectors and pacing
func NewCategoryCrawler() *CategoryCrawler {
	return &CategoryCrawler{
		Selectors: DefaultSelectors(),
		Timings:   DefaultTimings(),
		sleep:     sleepCtx,
	}
}

// Crawl collects and deduplicates every row reachable from parentURL. Only a
// failure to load the parent page is returned as an error; everything else
// degrades to partial results.
func (c *CategoryCrawler) Crawl(ctx context.Context, b Browser, parentURL string) (ParentResult, error) {
	start := time.Now()
	res := ParentResult{URL: parentURL, FacetRows: map[string]int{}}
	log := logger.ForCrawler(parentURL)

	cc, err := ParseContext(parentURL)
	if err != nil {
		return res, pkgerrors.NewNavigation(parentURL, "invalid parent url", err)
	}
	res.Category = cc.CategoryName

	if err := b.Navigate(ctx, parentURL); err != nil {
		return res, pkgerrors.NewNavigation(parentURL, "failed to load parent page", err)
	}
	if err := c.pause(ctx, c.Timings.Settle); err != nil {
		return res, err
	}

	var facets []Facet
	if err := c.awaitTiles(ctx, b); err != nil {
		log.Warn().Err(err).Msg("Tiles never rendered, crawling parent only")
	} else {
		res.TilesFound = true
		facets = DiscoverFacets(ctx, b, c.Selectors, log)
	}
	res.Facets = facets
	log.Info().Int("tiles", len(facets)).Msg("Discovered tiles")

	pager := NewPaginator(b, c.Timings, log)
	pager.sleep = c.pause

	parent := pager.FetchParent(ctx, cc)
	res.ParentRows = len(parent.Rows)
	res.add(parent)
	log.Info().Int("rows", len(parent.Rows)).Int("pages", parent.Pages).Msg("Collected parent")

	for i, f := range facets {
		if ctx.Err() != nil {
			break
		}
		flog := log.WithFields(logger.Fields{"tile": f.Label, "tile_id": f.ID})
		flog.Debug().Msgf("Tile %d/%d", i+1, len(facets))

		if err := c.openFacet(ctx, b, f); err != nil {
			flog.Warn().Err(err).Msg("Skipping tile")
			res.Skipped = append(res.Skipped, f)
			continue
		}

		now := cc
		if loc, err := b.Location(ctx); err == nil {
			now = cc.Derive(loc)
		} else {
			flog.Warn().Err(err).Msg("Failed to read location, keeping parent context")
		}
		flog.Debug().
			Str("category", now.CategoryName).
			Str("primary", now.PrimaryStoreID).
			Str("secondary", now.SecondaryStoreID).
			Str("taxonomy", now.TaxonomyType).
			Msg("Tile context")

		facetRes := pager.FetchFacet(ctx, now, f)
		res.FacetRows[f.ID] = len(facetRes.Rows)
		res.add(facetRes)
		flog.Info().Int("rows", len(facetRes.Rows)).Str("strategy", facetRes.Strategy).Msg("Collected tile")

		if err := c.pause(ctx, c.Timings.AfterFacet); err != nil {
			break
		}
	}

	before := len(res.Rows)
	res.Rows = Dedupe(res.Rows)
	res.Duration = time.Since(start)
	log.Info().
		Int("collected", before).
		Int("unique", len(res.Rows)).
		Dur("duration", res.Duration).
		Msg("Parent crawl finished")

	return res, nil
}

func (r *ParentResult) add(s ScopeResult) {
	r.Rows = append(r.Rows, s.Rows...)
	if s.Exhausted {
		r.Exhausted++
	}
	r.RateLimited = r.RateLimited || s.RateLimited
}

func (c *CategoryCrawler) pause(ctx context.Context, d time.Duration) error {
	if c.sleep != nil {
		return c.sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

// awaitTiles waits for the tile grid, nudging lazy rendering with a few
// half-viewport scrolls when it does not show up in time
func (c *CategoryCrawler) awaitTiles(ctx context.Context, b Browser) error {
	if err := b.WaitFor(ctx, c.Selectors.Tile, c.Timings.TileWait); err == nil {
		return nil
	}

	for i := 0; i < c.Timings.ScrollSteps; i++ {
		if err := b.ScrollBy(ctx, 0.5); err != nil {
			return pkgerrors.NewSelectorTimeout("parent", c.Selectors.Tile, err)
		}
		if err := c.pause(ctx, c.Timings.ScrollPause); err != nil {
			return err
		}
	}

	if err := b.WaitFor(ctx, c.Selectors.Tile, c.Timings.TileRetryWait); err != nil {
		return pkgerrors.NewSelectorTimeout("parent", c.Selectors.Tile, err)
	}
	return nil
}

// openFacet clicks the facet tile and waits for its listing to load
func (c *CategoryCrawler) openFacet(ctx context.Context, b Browser, f Facet) error {
	sel := c.Selectors.FacetSelector(f.ID)
	if err := b.Click(ctx, sel, c.Timings.ClickTimeout); err != nil {
		return pkgerrors.NewNavigation(f.Label, "failed to click tile", err)
	}
	if err := b.WaitIdle(ctx, c.Timings.IdleTimeout); err == nil {
		return nil
	}
	if err := b.WaitFor(ctx, c.Selectors.ProductCard, c.Timings.CardTimeout); err != nil {
		return pkgerrors.NewSelectorTimeout(f.Label, c.Selectors.ProductCard, err)
	}
	return nil
}
