package crawler

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/vishalnemlekar/instabot/helpers"
)

const (
	// ParentTileID and ParentTileName attribute rows fetched for the parent scope
	ParentTileID   = "parent"
	ParentTileName = "Parent"

	defaultTaxonomyType = "Speciality taxonomy 1"
)

// Payload is one decoded listing response
type Payload map[string]any

// FetchRequest describes an in-page call to the listing API
type FetchRequest struct {
	Method string
	Path   string
	Params map[string]string
	Body   string
}

// Facet is one sub-category tile on a parent page
type Facet struct {
	ID    string
	Label string
}

// Attribution is stamped onto every row produced by a scope
type Attribution struct {
	TileID   string
	TileName string
	Category string
}

// ParentAttribution returns the attribution used for the parent scope
func ParentAttribution(category string) Attribution {
	return Attribution{TileID: ParentTileID, TileName: ParentTileName, Category: category}
}

// FacetAttribution returns the attribution used for a facet scope
func FacetAttribution(f Facet, category string) Attribution {
	return Attribution{TileID: f.ID, TileName: f.Label, Category: category}
}

// CategoryContext carries the query parameters the listing API needs
type CategoryContext struct {
	CategoryName     string
	StoreID          string
	PrimaryStoreID   string
	SecondaryStoreID string
	TaxonomyType     string
}

// ParseContext reads a category context from a parent URL's query string
func ParseContext(rawURL string) (CategoryContext, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return CategoryContext{}, err
	}
	q := u.Query()

	storeID := q.Get("storeId")
	return CategoryContext{
		CategoryName:     helpers.DecodePlus(q.Get("categoryName")),
		StoreID:          storeID,
		PrimaryStoreID:   helpers.QueryValue(q, "primaryStoreId", storeID),
		SecondaryStoreID: q.Get("secondaryStoreId"),
		TaxonomyType:     helpers.DecodePlus(helpers.QueryValue(q, "taxonomyType", defaultTaxonomyType)),
	}, nil
}

// Derive re-reads the context from the URL the page ended up on after a
// facet click. Fields absent there keep the parent's values; the store id
// always comes from the parent.
func (c CategoryContext) Derive(rawURL string) CategoryContext {
	u, err := url.Parse(rawURL)
	if err != nil {
		return c
	}
	q := u.Query()

	return CategoryContext{
		CategoryName:     helpers.DecodePlus(helpers.QueryValue(q, "categoryName", c.CategoryName)),
		StoreID:          c.StoreID,
		PrimaryStoreID:   helpers.QueryValue(q, "primaryStoreId", c.PrimaryStoreID),
		SecondaryStoreID: helpers.QueryValue(q, "secondaryStoreId", c.SecondaryStoreID),
		TaxonomyType:     helpers.DecodePlus(helpers.QueryValue(q, "taxonomyType", c.TaxonomyType)),
	}
}

// WithCategory returns a copy of c with another category name
func (c CategoryContext) WithCategory(name string) CategoryContext {
	c.CategoryName = strings.TrimSpace(name)
	return c
}

// Selectors contains CSS selectors for the parent page
type Selectors struct {
	Tile        string
	TileIDAttr  string
	TileLabels  []string
	ProductCard string
}

// FacetSelector returns the selector matching the tile of one facet
func (s Selectors) FacetSelector(id string) string {
	return fmt.Sprintf(`[%s="%s"]`, s.TileIDAttr, strings.ReplaceAll(id, `"`, `\"`))
}

// DefaultSelectors returns the selectors the catalog site currently renders
func DefaultSelectors() Selectors {
	return Selectors{
		Tile:        "li[data-itemid]",
		TileIDAttr:  "data-itemid",
		TileLabels:  []string{`[class*="aXZVg"]`, "div span", "span", "div"},
		ProductCard: `div[data-testid="product-card"]`,
	}
}

// Timings holds every wait, gap and timeout of a parent crawl
type Timings struct {
	Settle          time.Duration
	TileWait        time.Duration
	TileRetryWait   time.Duration
	ScrollSteps     int
	ScrollPause     time.Duration
	ClickTimeout    time.Duration
	IdleTimeout     time.Duration
	CardTimeout     time.Duration
	ParentGap       time.Duration
	FacetGap        time.Duration
	AfterFacet      time.Duration
	RetryDelay      time.Duration
	Attempts        int
	OffsetPageSize  int
	CursorPageLimit int
}

// DefaultTimings returns the production pacing
func DefaultTimings() Timings {
	return Timings{
		Settle:          2 * time.Second,
		TileWait:        15 * time.Second,
		TileRetryWait:   8 * time.Second,
		ScrollSteps:     5,
		ScrollPause:     250 * time.Millisecond,
		ClickTimeout:    8 * time.Second,
		IdleTimeout:     10 * time.Second,
		CardTimeout:     10 * time.Second,
		ParentGap:       800 * time.Millisecond,
		FacetGap:        600 * time.Millisecond,
		AfterFacet:      4 * time.Second,
		RetryDelay:      time.Second,
		Attempts:        3,
		OffsetPageSize:  20,
		CursorPageLimit: 40,
	}
}
