package crawler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/vishalnemlekar/instabot/pkg/errors"
)

var testContext = CategoryContext{
	CategoryName:   "Dairy, Bread and Eggs",
	StoreID:        "788745",
	PrimaryStoreID: "788745",
	TaxonomyType:   "Speciality taxonomy 1",
}

func TestOffsetProtocolRequest(t *testing.T) {
	p := OffsetProtocol{Context: testContext, FilterName: "F1", Step: 20}

	req := p.Request(2)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/api/instamart/category-listing", req.Path)
	assert.Equal(t, "40", req.Params["offset"])
	assert.Equal(t, "F1", req.Params["filterName"])
	assert.Equal(t, "Dairy, Bread and Eggs", req.Params["categoryName"])
	assert.Equal(t, "Speciality taxonomy 1", req.Params["taxonomyType"])
	assert.NotContains(t, req.Params, "secondaryStoreId")

	cc := testContext
	cc.SecondaryStoreID = "99"
	req = OffsetProtocol{Context: cc, Step: 20}.Request(0)
	assert.Equal(t, "99", req.Params["secondaryStoreId"])
	assert.Equal(t, "", req.Params["filterName"])
}

func TestCursorProtocolRequest(t *testing.T) {
	p := CursorProtocol{Context: testContext, FilterID: "F1", Limit: 40}

	req := p.Request(3)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/instamart/category-listing/filter", req.Path)
	assert.Equal(t, "{}", req.Body)
	assert.Equal(t, map[string]string{
		"filterId":       "F1",
		"storeId":        "788745",
		"offset":         "0",
		"primaryStoreId": "788745",
		"type":           "Speciality taxonomy 1",
		"pageNo":         "3",
		"limit":          "40",
		"filterName":     "",
		"categoryName":   "Dairy, Bread and Eggs",
	}, req.Params)
}

func TestFetchAllPagesUntilEmpty(t *testing.T) {
	sizes := []int{5, 3, 0}
	calls := 0
	fb := newFakeBrowser(func(req FetchRequest) (Payload, error) {
		n := sizes[calls]
		calls++
		return productsPage("p"+req.Params["offset"], n), nil
	})

	p := NewPaginator(fb, testTimings(), nil)
	res := p.FetchAll(context.Background(), OffsetProtocol{Context: testContext, Step: 20}, ParentAttribution("Dairy"), 0)

	assert.Len(t, res.Rows, 8)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Pages)
	assert.False(t, res.Exhausted)

	var offsets []string
	for _, r := range fb.requests {
		offsets = append(offsets, r.Params["offset"])
	}
	assert.Equal(t, []string{"0", "20", "40"}, offsets)
	assert.Equal(t, "parent", res.Rows[0].TileID)
	assert.Equal(t, "Dairy", res.Rows[0].Category)
}

func TestFetchAllStopsWhenHasMoreFalse(t *testing.T) {
	fb := newFakeBrowser(func(req FetchRequest) (Payload, error) {
		p := productsPage("a", 5)
		p["data"] = map[string]any{"hasMore": false}
		return p, nil
	})

	p := NewPaginator(fb, testTimings(), nil)
	res := p.FetchAll(context.Background(), CursorProtocol{Context: testContext, FilterID: "F", Limit: 40}, Attribution{}, 0)

	assert.Len(t, res.Rows, 5)
	assert.Len(t, fb.requests, 1)
}

func TestFetchAllContinuesWhenHasMoreAbsentOrTrue(t *testing.T) {
	calls := 0
	fb := newFakeBrowser(func(req FetchRequest) (Payload, error) {
		calls++
		if calls == 3 {
			return Payload{"products": []any{}}, nil
		}
		p := productsPage(strconv.Itoa(calls), 2)
		if calls == 1 {
			p["data"] = map[string]any{"pagination": map[string]any{"hasMore": true}}
		}
		return p, nil
	})

	res := NewPaginator(fb, testTimings(), nil).FetchAll(context.Background(),
		OffsetProtocol{Context: testContext, Step: 20}, Attribution{}, 0)
	assert.Len(t, res.Rows, 4)
	assert.Equal(t, 3, calls)
}

func TestFetchAllRetryExhaustion(t *testing.T) {
	calls := 0
	fb := newFakeBrowser(func(req FetchRequest) (Payload, error) {
		calls++
		if req.Params["offset"] == "0" {
			return productsPage("ok", 2), nil
		}
		return nil, errors.New("evaluation failed")
	})

	res := NewPaginator(fb, testTimings(), nil).FetchAll(context.Background(),
		OffsetProtocol{Context: testContext, Step: 20}, Attribution{}, 0)

	assert.Len(t, res.Rows, 2)
	assert.True(t, res.Exhausted)
	assert.Equal(t, 1+3, calls)
}

func TestFetchAllRetryRecovers(t *testing.T) {
	calls := 0
	fb := newFakeBrowser(func(req FetchRequest) (Payload, error) {
		calls++
		switch calls {
		case 1, 2:
			return nil, pkgerrors.NewRateLimit(req.Path, 429)
		case 3:
			return productsPage("x", 3), nil
		default:
			return Payload{}, nil
		}
	})

	var slept []time.Duration
	timings := testTimings()
	timings.RetryDelay = time.Second
	p := NewPaginator(fb, timings, nil)
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	res := p.FetchAll(context.Background(), OffsetProtocol{Context: testContext, Step: 20}, Attribution{}, 0)
	assert.Len(t, res.Rows, 3)
	assert.False(t, res.Exhausted)
	assert.True(t, res.RateLimited)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, slept)
}

func TestFetchAllStopsOnCancel(t *testing.T) {
	fb := newFakeBrowser(func(req FetchRequest) (Payload, error) {
		return productsPage("x", 1), nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewPaginator(fb, testTimings(), nil).FetchAll(ctx, OffsetProtocol{Context: testContext, Step: 20}, Attribution{}, time.Second)
	assert.Empty(t, res.Rows)
	assert.Empty(t, fb.requests)
}

func TestFetchFacetFallbackOrder(t *testing.T) {
	fb := newFakeBrowser(func(req FetchRequest) (Payload, error) {
		// only the label-scoped offset call answers
		if req.Method == http.MethodGet && req.Params["categoryName"] == "Milk" && req.Params["offset"] == "0" {
			return productsPage("milk", 2), nil
		}
		return Payload{"products": []any{}}, nil
	})

	facet := Facet{ID: "F1", Label: "Milk"}
	res := NewPaginator(fb, testTimings(), nil).FetchFacet(context.Background(), testContext, facet)

	require.Len(t, fb.requests, 4)
	assert.Equal(t, filterListingPath, fb.requests[0].Path)
	assert.Equal(t, "F1", fb.requests[0].Params["filterId"])
	assert.Equal(t, listingPath, fb.requests[1].Path)
	assert.Equal(t, "F1", fb.requests[1].Params["filterName"])
	assert.Equal(t, "Dairy, Bread and Eggs", fb.requests[1].Params["categoryName"])
	assert.Equal(t, "Milk", fb.requests[2].Params["categoryName"])
	assert.Equal(t, "", fb.requests[2].Params["filterName"])
	assert.Equal(t, "20", fb.requests[3].Params["offset"])

	require.Len(t, res.Rows, 2)
	assert.Equal(t, "F1", res.Rows[0].TileID)
	assert.Equal(t, "Milk", res.Rows[0].TileName)
	assert.Equal(t, "Milk", res.Rows[0].Category)
	assert.Equal(t, "offset", res.Strategy)
}

func TestFetchFacetCursorFirst(t *testing.T) {
	fb := newFakeBrowser(func(req FetchRequest) (Payload, error) {
		if req.Method == http.MethodPost && req.Params["pageNo"] == "0" {
			return productsPage("c", 4), nil
		}
		return Payload{}, nil
	})

	res := NewPaginator(fb, testTimings(), nil).FetchFacet(context.Background(), testContext, Facet{ID: "F1", Label: "Milk"})

	assert.Len(t, res.Rows, 4)
	assert.Equal(t, "cursor", res.Strategy)
	for _, r := range fb.requests {
		assert.Equal(t, http.MethodPost, r.Method)
	}
	assert.Len(t, fb.requests, 2)
	assert.Equal(t, "Dairy, Bread and Eggs", res.Rows[0].Category)
}

func TestNewLimiter(t *testing.T) {
	assert.True(t, newLimiter(0).Allow())
	assert.True(t, newLimiter(0).Allow())

	l := newLimiter(time.Hour)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}
