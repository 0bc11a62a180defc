package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeBrowser serves canned pages and records every call
type fakeBrowser struct {
	mu sync.Mutex

	html       string
	location   string
	afterClick string
	navErr     error
	htmlErr    error
	idleErr    error
	waitErrs   map[string]error
	clickErr   map[string]error
	handler    func(req FetchRequest) (Payload, error)

	requests []FetchRequest
	clicks   []string
	waits    []string
	scrolls  int
	closed   bool
}

func newFakeBrowser(handler func(FetchRequest) (Payload, error)) *fakeBrowser {
	return &fakeBrowser{
		waitErrs: map[string]error{},
		clickErr: map[string]error{},
		handler:  handler,
	}
}

func (f *fakeBrowser) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.navErr != nil {
		return f.navErr
	}
	f.location = url
	return nil
}

func (f *fakeBrowser) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, selector)
	return f.waitErrs[selector]
}

func (f *fakeBrowser) ScrollBy(ctx context.Context, viewportFraction float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrolls++
	return nil
}

func (f *fakeBrowser) Click(ctx context.Context, selector string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, selector)
	if err := f.clickErr[selector]; err != nil {
		return err
	}
	if f.afterClick != "" {
		f.location = f.afterClick
	}
	return nil
}

func (f *fakeBrowser) WaitIdle(ctx context.Context, timeout time.Duration) error {
	return f.idleErr
}

func (f *fakeBrowser) Location(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.location, nil
}

func (f *fakeBrowser) HTML(ctx context.Context) (string, error) {
	return f.html, f.htmlErr
}

func (f *fakeBrowser) FetchJSON(ctx context.Context, req FetchRequest) (Payload, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.handler == nil {
		return Payload{}, nil
	}
	return f.handler(req)
}

func (f *fakeBrowser) Close() error {
	f.closed = true
	return nil
}

// productsPage builds a payload with n items whose ids start at prefix-0
func productsPage(prefix string, n int) Payload {
	items := make([]any, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, map[string]any{
			"id":           fmt.Sprintf("%s-%d", prefix, i),
			"display_name": fmt.Sprintf("Item %s %d", prefix, i),
			"price":        map[string]any{"mrp": "100", "offer_price": "80"},
		})
	}
	return Payload{"products": items}
}

func testTimings() Timings {
	t := DefaultTimings()
	t.Settle = 0
	t.TileWait = 0
	t.TileRetryWait = 0
	t.ScrollPause = 0
	t.ClickTimeout = 0
	t.IdleTimeout = 0
	t.CardTimeout = 0
	t.ParentGap = 0
	t.FacetGap = 0
	t.AfterFacet = 0
	t.RetryDelay = 0
	return t
}
