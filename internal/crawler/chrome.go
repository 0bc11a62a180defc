package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/vishalnemlekar/instabot/helpers"
	"github.com/vishalnemlekar/instabot/logger"
	pkgerrors "github.com/vishalnemlekar/instabot/pkg/errors"
)

const statusRateLimited = 430

// ChromeOptions configures the headless browser
type ChromeOptions struct {
	Headless        bool
	UserAgent       string
	Width, Height   int
	NavigateTimeout time.Duration
	ExecPath        string
}

// DefaultChromeOptions emulates a small mobile screen
func DefaultChromeOptions() ChromeOptions {
	return ChromeOptions{
		Headless:        true,
		UserAgent:       helpers.RandomUserAgent(),
		Width:           375,
		Height:          667,
		NavigateTimeout: 45 * time.Second,
	}
}

// ChromeBrowser drives one headless Chrome tab through chromedp
type ChromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	cancelAlloc context.CancelFunc
	opts        ChromeOptions
	log         *logger.Logger
}

// NewChromeBrowser starts a browser and opens its first tab
func NewChromeBrowser(ctx context.Context, opts ChromeOptions) (*ChromeBrowser, error) {
	log := logger.ForBrowser()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(opts.UserAgent),
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(func(format string, v ...interface{}) {
		log.Debug().Msgf(format, v...)
	}))

	// first Run launches the process
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		cancelAlloc()
		return nil, pkgerrors.NewNavigation("browser", "failed to start chrome", err)
	}

	log.Info().Str("user_agent", opts.UserAgent).Msg("Browser started")
	return &ChromeBrowser{ctx: tabCtx, cancel: cancel, cancelAlloc: cancelAlloc, opts: opts, log: log}, nil
}

// NewChromeFactory returns a BrowserFactory opening a ChromeBrowser per pass
func NewChromeFactory(opts ChromeOptions) BrowserFactory {
	return func(ctx context.Context) (Browser, error) {
		b, err := NewChromeBrowser(ctx, opts)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx
func (b *ChromeBrowser) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(b.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate implements Browser
func (b *ChromeBrowser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx, b.opts.NavigateTimeout, chromedp.Navigate(url))
}

// WaitFor implements Browser
func (b *ChromeBrowser) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	return b.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// ScrollBy implements Browser
func (b *ChromeBrowser) ScrollBy(ctx context.Context, viewportFraction float64) error {
	script := fmt.Sprintf(`window.scrollBy(0, window.innerHeight * %f)`, viewportFraction)
	return b.run(ctx, 5*time.Second, chromedp.Evaluate(script, nil))
}

// Click implements Browser
func (b *ChromeBrowser) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return b.run(ctx, timeout,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

// WaitIdle polls the document until it reports complete
func (b *ChromeBrowser) WaitIdle(ctx context.Context, timeout time.Duration) error {
	return b.run(ctx, timeout, chromedp.ActionFunc(func(ctx context.Context) error {
		for {
			var state string
			if err := chromedp.Evaluate(`document.readyState`, &state).Do(ctx); err != nil {
				return err
			}
			if state == "complete" {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(200 * time.Millisecond):
			}
		}
	}))
}

// Location implements Browser
func (b *ChromeBrowser) Location(ctx context.Context) (string, error) {
	var loc string
	err := b.run(ctx, 5*time.Second, chromedp.Location(&loc))
	return loc, err
}

// HTML implements Browser
func (b *ChromeBrowser) HTML(ctx context.Context) (string, error) {
	var html string
	err := b.run(ctx, 10*time.Second, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

type fetchResult struct {
	Status int    `json:"status"`
	OK     bool   `json:"ok"`
	Body   string `json:"body"`
}

// FetchJSON runs fetch() inside the page so the site's cookies ride along
func (b *ChromeBrowser) FetchJSON(ctx context.Context, req FetchRequest) (Payload, error) {
	script, err := fetchScript(req)
	if err != nil {
		return nil, pkgerrors.NewFetch(req.Path, "failed to build request", err)
	}

	var res fetchResult
	err = b.run(ctx, 30*time.Second, chromedp.Evaluate(script, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return nil, pkgerrors.NewFetch(req.Path, "in-page fetch failed", err)
	}

	switch {
	case res.Status == http.StatusTooManyRequests || res.Status == statusRateLimited:
		return nil, pkgerrors.NewRateLimit(req.Path, res.Status)
	case !res.OK:
		return nil, pkgerrors.NewFetch(req.Path, fmt.Sprintf("unexpected status code: %d", res.Status), nil)
	}

	payload, err := DecodePayload([]byte(res.Body))
	if err != nil {
		return nil, pkgerrors.NewParsing(req.Path, "malformed listing payload", err)
	}
	return payload, nil
}

func fetchScript(req FetchRequest) (string, error) {
	path, err := json.Marshal(req.Path)
	if err != nil {
		return "", err
	}
	params, err := json.Marshal(req.Params)
	if err != nil {
		return "", err
	}
	method, err := json.Marshal(req.Method)
	if err != nil {
		return "", err
	}
	body := []byte("null")
	if req.Body != "" {
		if body, err = json.Marshal(req.Body); err != nil {
			return "", err
		}
	}

	return fmt.Sprintf(`(async () => {
	const r = await fetch(%s + '?' + new URLSearchParams(%s), {
		method: %s,
		credentials: 'same-origin',
		headers: {'Accept': 'application/json', 'Content-Type': 'application/json'},
		body: %s
	});
	return {status: r.status, ok: r.ok, body: await r.text()};
})()`, path, params, method, body), nil
}

// Close shuts the tab and the browser process down
func (b *ChromeBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	b.cancelAlloc()
	b.log.Debug().Msg("Browser closed")
	return err
}
