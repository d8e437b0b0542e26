// Package fetcher retrieves pages from scrape targets.
//
// Two modes share one Request/Result contract: a plain HTTP client for
// targets that serve usable HTML directly, and a headless browser for
// targets that render client-side or fingerprint plain clients. The caller
// picks the mode per source; everything downstream sees the same Result.
package fetcher

import (
	"context"
	"time"

	"brickwatch/internal/domain/entity"
)

// Request describes one page fetch.
type Request struct {
	// URL is the absolute page URL.
	URL string

	// Mode selects the fetch strategy. Default: simple.
	Mode entity.FetchMode

	// WaitForSelector, in browser mode, is a CSS selector that must be
	// visible before the page counts as loaded. Empty waits for the body.
	WaitForSelector string

	// Timeout overrides the configured per-fetch timeout when positive.
	Timeout time.Duration
}

// Result is the outcome of a successful fetch.
type Result struct {
	// Body is the page HTML. In browser mode this is the rendered DOM,
	// not the initial response body.
	Body string

	// StatusCode is the HTTP status of the final (post-redirect) response.
	StatusCode int

	// FinalURL is the URL after redirects.
	FinalURL string

	// ContentType is the response Content-Type header.
	ContentType string
}

// Fetcher retrieves pages.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Result, error)
}

// Config holds fetcher configuration shared by both modes.
type Config struct {
	// Timeout bounds a single fetch including redirects and, in browser
	// mode, rendering.
	Timeout time.Duration

	// MaxBodySize caps how many bytes are read from a response.
	MaxBodySize int64

	// UserAgents is the pool a fetch picks its User-Agent from, uniformly
	// at random.
	UserAgents []string

	// AcceptLanguages is the pool a fetch picks its Accept-Language from.
	AcceptLanguages []string

	// BrowserHeadless runs the browser without a display. Disable locally
	// to watch a scrape happen.
	BrowserHeadless bool

	// HumanDelayMin and HumanDelayMax bound the randomized pauses between
	// simulated user interactions in browser mode.
	HumanDelayMin time.Duration
	HumanDelayMax time.Duration
}

// DefaultConfig returns the production fetch configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:     30 * time.Second,
		MaxBodySize: 10 * 1024 * 1024,
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		},
		AcceptLanguages: []string{
			"en-US,en;q=0.9",
			"en-GB,en;q=0.9",
			"en-US,en;q=0.8,de;q=0.5",
			"en-CA,en;q=0.9,fr-CA;q=0.7",
		},
		BrowserHeadless: true,
		HumanDelayMin:   100 * time.Millisecond,
		HumanDelayMax:   1500 * time.Millisecond,
	}
}

// Client routes requests to the right fetcher for their mode.
//
// The browser starts lazily on the first browser-mode request, so pipelines
// configured with only simple sources never launch one.
type Client struct {
	simple  *SimpleFetcher
	browser *BrowserFetcher
}

// NewClient creates a dual-mode fetch client.
func NewClient(config Config) *Client {
	return &Client{
		simple:  NewSimpleFetcher(config),
		browser: NewBrowserFetcher(config),
	}
}

// Fetch dispatches on req.Mode.
func (c *Client) Fetch(ctx context.Context, req Request) (*Result, error) {
	if req.Mode == entity.FetchModeBrowser {
		return c.browser.Fetch(ctx, req)
	}
	return c.simple.Fetch(ctx, req)
}

// Close releases the headless browser if one was started.
func (c *Client) Close() error {
	return c.browser.Close()
}
