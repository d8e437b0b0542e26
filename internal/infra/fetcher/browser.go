package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"brickwatch/internal/observability/metrics"
	"brickwatch/internal/resilience/retry"
)

// stealthScript hides the most common headless-browser tells. It is injected
// before any page script runs.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
window.chrome = window.chrome || { runtime: {} };
`

// viewports holds common desktop resolutions. Each fetch picks one so the
// shared browser does not present a fixed window size.
var viewports = []struct {
	width, height int64
}{
	{1920, 1080},
	{1680, 1050},
	{1536, 864},
	{1440, 900},
}

// BrowserFetcher fetches pages through a headless Chrome instance and returns
// the rendered DOM.
//
// One browser process is shared by all fetches; each fetch runs in its own
// tab. The process starts lazily on the first fetch and is rebuilt if it
// dies, so a crashed renderer costs one failed fetch rather than a worker
// restart.
type BrowserFetcher struct {
	config Config

	mu          sync.Mutex
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
}

// NewBrowserFetcher creates a browser fetcher. The browser process itself is
// not started until the first Fetch.
func NewBrowserFetcher(config Config) *BrowserFetcher {
	return &BrowserFetcher{config: config}
}

// ensureBrowser returns a live shared browser context, starting or rebuilding
// the browser process as needed.
func (f *BrowserFetcher) ensureBrowser() (context.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browserCtx != nil && f.browserCtx.Err() == nil {
		return f.browserCtx, nil
	}

	// A dead context means the process crashed or never started; tear the
	// old allocator chain down before building a fresh one.
	if f.browserStop != nil {
		f.browserStop()
	}
	if f.allocCancel != nil {
		f.allocCancel()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("lang", "en-US"),
	)
	if !f.config.BrowserHeadless {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)

	// Start the process eagerly so startup failures surface here instead
	// of midway through a navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		browserStop()
		allocCancel()
		return nil, fmt.Errorf("ensureBrowser: start browser: %w", err)
	}

	f.allocCancel = allocCancel
	f.browserCtx = browserCtx
	f.browserStop = browserStop
	return f.browserCtx, nil
}

// Fetch renders the page at req.URL in a fresh tab and returns its DOM.
//
// The navigation status maps onto the same error taxonomy as the plain
// client: status >= 400 comes back as *retry.HTTPError, deadline overruns as
// *retry.TimeoutError, and everything else as *retry.NetworkError.
func (f *BrowserFetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	browserCtx, err := f.ensureBrowser()
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = f.config.Timeout
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()

	// Tab contexts descend from the shared browser, not from the caller;
	// propagate caller cancellation by hand.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	userAgent := pick(f.config.UserAgents)
	acceptLanguage := pick(f.config.AcceptLanguages)
	viewport := viewports[rand.IntN(len(viewports))]

	start := time.Now()
	if err := chromedp.Run(tabCtx,
		network.Enable(),
		emulation.SetUserAgentOverride(userAgent).WithAcceptLanguage(acceptLanguage),
		chromedp.EmulateViewport(viewport.width, viewport.height),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	); err != nil {
		metrics.RecordFetchError("browser", time.Since(start))
		return nil, classifyBrowserError(ctx, req.URL, err)
	}

	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(req.URL))
	if err != nil {
		metrics.RecordFetchError("browser", time.Since(start))
		return nil, classifyBrowserError(ctx, req.URL, err)
	}

	// Same-document navigations carry no network response; count them as OK.
	statusCode := http.StatusOK
	if resp != nil {
		statusCode = int(resp.Status)
	}

	// Error pages rarely render the awaited selector; classify them before
	// burning the rest of the deadline waiting for it.
	if statusCode >= 400 {
		metrics.RecordFetch("browser", statusCode, time.Since(start), 0)
		return nil, &retry.HTTPError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("unexpected status: %d", statusCode),
		}
	}

	waits := []chromedp.Action{chromedp.WaitReady("body", chromedp.ByQuery)}
	if req.WaitForSelector != "" {
		waits = append(waits, chromedp.WaitVisible(req.WaitForSelector, chromedp.ByQuery))
	}
	if err := chromedp.Run(tabCtx, waits...); err != nil {
		metrics.RecordFetchError("browser", time.Since(start))
		return nil, classifyBrowserError(ctx, req.URL, err)
	}

	if err := f.actHuman(tabCtx); err != nil {
		metrics.RecordFetchError("browser", time.Since(start))
		return nil, classifyBrowserError(ctx, req.URL, err)
	}

	var html, finalURL string
	if err := chromedp.Run(tabCtx,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		metrics.RecordFetchError("browser", time.Since(start))
		return nil, classifyBrowserError(ctx, req.URL, err)
	}

	metrics.RecordFetch("browser", statusCode, time.Since(start), len(html))

	// The DOM is assembled in memory before we see it, so the cap is a
	// truncation rather than a bounded read.
	if int64(len(html)) > f.config.MaxBodySize {
		html = html[:f.config.MaxBodySize]
	}

	return &Result{
		Body:        html,
		StatusCode:  statusCode,
		FinalURL:    finalURL,
		ContentType: "text/html",
	}, nil
}

// actHuman mimics a reader skimming the page: a few wheel scrolls with a
// drifting cursor and randomized pauses in between.
func (f *BrowserFetcher) actHuman(ctx context.Context) error {
	scrolls := 2 + rand.IntN(3)
	for i := 0; i < scrolls; i++ {
		if err := f.dwell(ctx); err != nil {
			return err
		}

		x := float64(200 + rand.IntN(600))
		y := float64(150 + rand.IntN(400))
		if err := chromedp.Run(ctx,
			input.DispatchMouseEvent(input.MouseMoved, x, y),
			input.DispatchMouseEvent(input.MouseWheel, x, y).
				WithDeltaX(0).
				WithDeltaY(float64(250+rand.IntN(500))),
		); err != nil {
			return err
		}
	}
	return f.dwell(ctx)
}

// dwell pauses for a random human-scale interval, honoring cancellation.
func (f *BrowserFetcher) dwell(ctx context.Context) error {
	delay := f.config.HumanDelayMin
	if f.config.HumanDelayMax > f.config.HumanDelayMin {
		delay += rand.N(f.config.HumanDelayMax - f.config.HumanDelayMin)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// classifyBrowserError maps chromedp failures onto the retry taxonomy.
// Caller cancellation passes through untouched; a tab killed by its own
// deadline counts as a timeout.
func classifyBrowserError(callerCtx context.Context, url string, err error) error {
	if errors.Is(callerCtx.Err(), context.Canceled) {
		return fmt.Errorf("Fetch: %w", context.Canceled)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &retry.TimeoutError{URL: url}
	}

	return &retry.NetworkError{URL: url, Err: err}
}

// Close shuts the shared browser down. Safe to call when no browser was ever
// started.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browserCtx == nil {
		return nil
	}

	err := chromedp.Cancel(f.browserCtx)
	f.browserStop()
	f.allocCancel()
	f.browserCtx = nil

	if err != nil {
		return fmt.Errorf("Close: %w", err)
	}
	return nil
}
