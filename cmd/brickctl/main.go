// Package main provides brickctl, a small CLI over the control-plane API.
// Usage: brickctl [--api URL] <command> [args]
//
// Commands:
//
//	status                  print queue counts, jobs, workers, breakers
//	reset                   obliterate the queue, reset breakers, re-sweep
//	sweep [--all]           run the scheduler sweep (--all ignores intervals)
//	detect                  run the missing-data detector
//	force-scrape ID...      enqueue HIGH-priority jobs for the given items
//	import FILE --url URL   import a saved retail listing page
//
// Exit codes: 0 success, 1 unrecoverable error, 2 invalid input.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	var apiURL string
	flag.StringVar(&apiURL, "api", "", "control-plane base URL (default $BRICKWATCH_API or http://localhost:8080)")
	flag.Usage = usage
	flag.Parse()

	if apiURL == "" {
		apiURL = os.Getenv("BRICKWATCH_API")
	}
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	apiURL = strings.TrimRight(apiURL, "/")

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(exitUsage)
	}

	c := &client{base: apiURL, http: &http.Client{Timeout: 5 * time.Minute}}

	var err error
	switch args[0] {
	case "status":
		err = c.get("/api/queue/status")
	case "reset":
		err = c.post("/api/queue/reset", nil)
	case "sweep":
		err = runSweep(c, args[1:])
	case "detect":
		err = c.post("/api/detect-missing", nil)
	case "force-scrape":
		err = runForceScrape(c, args[1:])
	case "import":
		err = runImport(c, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "brickctl: unknown command %q\n\n", args[0])
		usage()
		os.Exit(exitUsage)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "brickctl: %v\n", err)
		var uerr *usageError
		if errors.As(err, &uerr) {
			os.Exit(exitUsage)
		}
		os.Exit(exitError)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: brickctl [--api URL] <command> [args]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  status                  print queue counts, jobs, workers, breakers")
	fmt.Fprintln(os.Stderr, "  reset                   obliterate the queue, reset breakers, re-sweep")
	fmt.Fprintln(os.Stderr, "  sweep [--all]           run the scheduler sweep (--all ignores intervals)")
	fmt.Fprintln(os.Stderr, "  detect                  run the missing-data detector")
	fmt.Fprintln(os.Stderr, "  force-scrape ID...      enqueue HIGH-priority jobs for the given items")
	fmt.Fprintln(os.Stderr, "  import FILE --url URL   import a saved retail listing page")
}

// usageError marks an error caused by bad input (local or a 4xx response),
// which maps to exit code 2.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

type client struct {
	base string
	http *http.Client
}

func (c *client) get(path string) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return c.render(path, resp)
}

func (c *client) post(path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	resp, err := c.http.Post(c.base+path, "application/json", reader)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	return c.render(path, resp)
}

// render prints the response body as indented JSON. A 4xx surfaces the
// server's {error} message as invalid input; a 5xx as an unrecoverable error.
func (c *client) render(path string, resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := serverError(raw)
		if resp.StatusCode < 500 {
			return usagef("%s: %s", path, msg)
		}
		return fmt.Errorf("%s: %s (HTTP %d)", path, msg, resp.StatusCode)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		// not JSON, print as-is
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

func serverError(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}

func runSweep(c *client, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	all := fs.Bool("all", false, "ignore scrape intervals and enqueue everything")
	if err := fs.Parse(args); err != nil {
		return usagef("sweep: %v", err)
	}
	path := "/api/scheduler/run"
	if *all {
		path += "?mode=all"
	}
	return c.post(path, nil)
}

func runForceScrape(c *client, args []string) error {
	if len(args) == 0 {
		return usagef("force-scrape: at least one item ID is required")
	}
	return c.post("/api/force-scrape", map[string]any{"itemIds": args})
}

func runImport(c *client, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	sourceURL := fs.String("url", "", "URL the page was saved from")
	if err := fs.Parse(args); err != nil {
		return usagef("import: %v", err)
	}
	if fs.NArg() != 1 {
		return usagef("import: exactly one HTML file is required")
	}
	if *sourceURL == "" {
		return usagef("import: --url is required")
	}

	html, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return usagef("import: %v", err)
	}

	return c.post("/api/retail/import", map[string]any{
		"html":       string(html),
		"source_url": *sourceURL,
	})
}
