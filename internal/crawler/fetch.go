package crawler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/vishalnemlekar/instabot/internal/catalog"
	"github.com/vishalnemlekar/instabot/logger"
	pkgerrors "github.com/vishalnemlekar/instabot/pkg/errors"
)

const (
	listingPath       = "/api/instamart/category-listing"
	filterListingPath = "/api/instamart/category-listing/filter"
)

// Protocol builds the request for one page of a scope
type Protocol interface {
	Name() string
	Request(page int) FetchRequest
}

// OffsetProtocol pages the GET listing endpoint by a fixed offset step
type OffsetProtocol struct {
	Context    CategoryContext
	FilterName string
	Step       int
}

// Name returns the protocol name used in logs
func (p OffsetProtocol) Name() string { return "offset" }

// Request returns the request for page n
func (p OffsetProtocol) Request(n int) FetchRequest {
	params := map[string]string{
		"categoryName":   p.Context.CategoryName,
		"storeId":        p.Context.StoreID,
		"offset":         strconv.Itoa(n * p.Step),
		"filterName":     p.FilterName,
		"primaryStoreId": p.Context.PrimaryStoreID,
		"taxonomyType":   p.Context.TaxonomyType,
	}
	if p.Context.SecondaryStoreID != "" {
		params["secondaryStoreId"] = p.Context.SecondaryStoreID
	}
	return FetchRequest{Method: http.MethodGet, Path: listingPath, Params: params}
}

// CursorProtocol pages the POST filter endpoint by page number
type CursorProtocol struct {
	Context  CategoryContext
	FilterID string
	Limit    int
}

// Name returns the protocol name used in logs
func (p CursorProtocol) Name() string { return "cursor" }

// Request returns the request for page n
func (p CursorProtocol) Request(n int) FetchRequest {
	params := map[string]string{
		"filterId":       p.FilterID,
		"storeId":        p.Context.StoreID,
		"offset":         "0",
		"primaryStoreId": p.Context.PrimaryStoreID,
		"type":           p.Context.TaxonomyType,
		"pageNo":         strconv.Itoa(n),
		"limit":          strconv.Itoa(p.Limit),
		"filterName":     "",
		"categoryName":   p.Context.CategoryName,
	}
	if p.Context.SecondaryStoreID != "" {
		params["secondaryStoreId"] = p.Context.SecondaryStoreID
	}
	return FetchRequest{Method: http.MethodPost, Path: filterListingPath, Params: params, Body: "{}"}
}

// ScopeResult is what one scope produced
type ScopeResult struct {
	Rows        []catalog.Row
	Pages       int
	Strategy    string
	Exhausted   bool
	RateLimited bool
}

func (r *ScopeResult) merge(o ScopeResult) {
	r.Rows = append(r.Rows, o.Rows...)
	r.Pages += o.Pages
	r.Exhausted = r.Exhausted || o.Exhausted
	r.RateLimited = r.RateLimited || o.RateLimited
	if len(o.Rows) > 0 {
		r.Strategy = o.Strategy
	}
}

// Paginator fetches every page of a scope through the browser
type Paginator struct {
	Browser Browser
	Timings Timings
	Logger  *logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewPaginator creates a paginator for b
func NewPaginator(b Browser, timings Timings, log *logger.Logger) *Paginator {
	if log == nil {
		log = logger.Nop()
	}
	return &Paginator{Browser: b, Timings: timings, Logger: log, sleep: sleepCtx}
}

// FetchAll pages through proto until a page is empty or the payload says
// there is nothing more. Each page gets Timings.Attempts tries; when they are
// used up the rows gathered so far are returned with Exhausted set.
func (p *Paginator) FetchAll(ctx context.Context, proto Protocol, attr Attribution, gap time.Duration) ScopeResult {
	res := ScopeResult{Strategy: proto.Name()}
	limiter := newLimiter(gap)
	log := p.Logger.WithFields(logger.Fields{"tile": attr.TileName, "protocol": proto.Name()})

	for page := 0; ; page++ {
		if err := limiter.Wait(ctx); err != nil {
			return res
		}

		payload, err := p.fetchPage(ctx, proto.Request(page), attr, &res)
		if err != nil {
			log.Warn().Err(err).Int("page", page).Msg("Giving up on scope")
			res.Exhausted = true
			return res
		}
		res.Pages++

		items := ResolveItems(payload)
		log.Debug().Int("page", page).Int("items", len(items)).Msg("Fetched page")
		if len(items) == 0 {
			return res
		}
		res.Rows = append(res.Rows, FlattenAll(items, attr)...)

		if more := HasMore(payload); more != nil && !*more {
			return res
		}
	}
}

func (p *Paginator) fetchPage(ctx context.Context, req FetchRequest, attr Attribution, res *ScopeResult) (Payload, error) {
	attempts := max(p.Timings.Attempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		payload, err := p.Browser.FetchJSON(ctx, req)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if pkgerrors.Is(err, pkgerrors.ErrorTypeRateLimit) {
			res.RateLimited = true
		}

		p.Logger.Debug().Err(err).
			Str("tile", attr.TileName).
			Int("attempt", attempt).
			Msg("Page fetch failed")

		if attempt == attempts {
			break
		}
		if err := p.sleep(ctx, p.Timings.RetryDelay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// FetchParent pages the parent scope with the offset protocol
func (p *Paginator) FetchParent(ctx context.Context, cc CategoryContext) ScopeResult {
	proto := OffsetProtocol{Context: cc, Step: p.Timings.OffsetPageSize}
	return p.FetchAll(ctx, proto, ParentAttribution(cc.CategoryName), p.Timings.ParentGap)
}

// FetchFacet tries the cursor protocol, then the offset protocol scoped by the
// facet id, then the offset protocol scoped by the facet label. A strategy is
// only tried when every earlier one produced no rows.
func (p *Paginator) FetchFacet(ctx context.Context, cc CategoryContext, f Facet) ScopeResult {
	byLabel := cc.WithCategory(f.Label)
	strategies := []struct {
		proto Protocol
		attr  Attribution
	}{
		{CursorProtocol{Context: cc, FilterID: f.ID, Limit: p.Timings.CursorPageLimit}, FacetAttribution(f, cc.CategoryName)},
		{OffsetProtocol{Context: cc, FilterName: f.ID, Step: p.Timings.OffsetPageSize}, FacetAttribution(f, cc.CategoryName)},
		{OffsetProtocol{Context: byLabel, Step: p.Timings.OffsetPageSize}, FacetAttribution(f, byLabel.CategoryName)},
	}

	var res ScopeResult
	for i, s := range strategies {
		if ctx.Err() != nil {
			break
		}
		r := p.FetchAll(ctx, s.proto, s.attr, p.Timings.FacetGap)
		res.merge(r)
		if len(r.Rows) > 0 {
			break
		}
		p.Logger.Debug().
			Str("tile", f.Label).
			Int("strategy", i+1).
			Msg("Facet strategy returned nothing")
	}
	return res
}

func newLimiter(gap time.Duration) *rate.Limiter {
	if gap <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(gap), 1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
