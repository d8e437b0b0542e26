// Command diagnose_sources probes every configured scrape target with one
// plain GET and reports reachability, so an operator can tell a broken
// source apart from a broken pipeline before digging into worker logs.
//
// It deliberately bypasses the rate limiter, the breaker, and the browser:
// one request per source, straight http.Client. Run it sparingly.
//
// Usage: go run scripts/diagnose_sources.go [-config config/sources.yaml] [-json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"brickwatch/internal/config"
)

// SourceDiagnostic is one probe result.
type SourceDiagnostic struct {
	Source        string `json:"source"`
	URL           string `json:"url"`
	Status        string `json:"status"` // "OK", "HTTP_ERROR", "TIMEOUT", "NETWORK_ERROR", "BLOCKED"
	HTTPCode      int    `json:"http_code,omitempty"`
	FinalURL      string `json:"final_url,omitempty"`
	ResponseTime  int64  `json:"response_time_ms"`
	ContentLength int64  `json:"content_length"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

const probeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

func main() {
	configPath := flag.String("config", "config/sources.yaml", "sources config file")
	jsonOut := flag.Bool("json", false, "emit JSON instead of a table")
	flag.Parse()

	sources, err := config.LoadSourcesConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "diagnose_sources: %v\n", err)
		os.Exit(1)
	}

	targets := []struct {
		name string
		url  string
	}{
		{"marketplace", sources.Marketplace.BaseURL},
		{"retirement_tracker", sources.Retirement.PageURL},
		{"metadata_site", fmt.Sprintf(sources.Metadata.SearchURLTemplate, "10030")},
		{"reddit", fmt.Sprintf(sources.Reddit.SearchURLTemplate, "10030")},
	}
	if sources.Discovery.FeedURL != "" {
		targets = append(targets, struct {
			name string
			url  string
		}{"discovery_feed", sources.Discovery.FeedURL})
	}

	client := &http.Client{Timeout: 30 * time.Second}
	results := make([]SourceDiagnostic, 0, len(targets))
	failed := false

	for _, t := range targets {
		result := probe(client, t.name, t.url)
		if result.Status != "OK" {
			failed = true
		}
		results = append(results, result)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(results)
	} else {
		printTable(results)
	}

	if failed {
		os.Exit(1)
	}
}

func probe(client *http.Client, name, url string) SourceDiagnostic {
	result := SourceDiagnostic{Source: name, URL: url}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Status = "NETWORK_ERROR"
		result.ErrorMessage = err.Error()
		return result
	}
	req.Header.Set("User-Agent", probeUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	start := time.Now()
	resp, err := client.Do(req)
	result.ResponseTime = time.Since(start).Milliseconds()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.Status = "TIMEOUT"
		} else {
			result.Status = "NETWORK_ERROR"
		}
		result.ErrorMessage = err.Error()
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	n, _ := io.Copy(io.Discard, io.LimitReader(resp.Body, 10<<20))
	result.ContentLength = n
	result.HTTPCode = resp.StatusCode
	if resp.Request != nil && resp.Request.URL.String() != url {
		result.FinalURL = resp.Request.URL.String()
	}

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		// the source is up but refusing us; a browser-mode scrape may still work
		result.Status = "BLOCKED"
	case resp.StatusCode >= 400:
		result.Status = "HTTP_ERROR"
	default:
		result.Status = "OK"
	}
	return result
}

func printTable(results []SourceDiagnostic) {
	fmt.Printf("%-20s %-13s %5s %8s %10s  %s\n", "SOURCE", "STATUS", "HTTP", "TIME(ms)", "BYTES", "NOTE")
	for _, r := range results {
		note := r.ErrorMessage
		if note == "" && r.FinalURL != "" {
			note = "redirected to " + r.FinalURL
		}
		fmt.Printf("%-20s %-13s %5d %8d %10d  %s\n",
			r.Source, r.Status, r.HTTPCode, r.ResponseTime, r.ContentLength, note)
	}
}
