package crawler

import (
	"context"
	"time"
)

// Browser is the rendering and in-page network capability the crawler drives.
// Implementations hold one page whose cookies carry across calls.
type Browser interface {
	// Navigate loads url and returns once the document has loaded
	Navigate(ctx context.Context, url string) error

	// WaitFor blocks until selector matches or timeout elapses
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error

	// ScrollBy scrolls the page by a fraction of the viewport height
	ScrollBy(ctx context.Context, viewportFraction float64) error

	// Click scrolls the first node matching selector into view and clicks it
	Click(ctx context.Context, selector string, timeout time.Duration) error

	// WaitIdle waits for the page to finish loading after a client-side navigation
	WaitIdle(ctx context.Context, timeout time.Duration) error

	// Location returns the current page URL
	Location(ctx context.Context) (string, error)

	// HTML returns the rendered document
	HTML(ctx context.Context) (string, error)

	// FetchJSON issues req from inside the page and decodes the JSON body
	FetchJSON(ctx context.Context, req FetchRequest) (Payload, error)

	Close() error
}

// BrowserFactory opens a fresh browser for one pass
type BrowserFactory func(ctx context.Context) (Browser, error)
