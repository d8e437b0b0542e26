// Package slo tracks the scrape pipeline's service level objectives over a
// rolling window of finished jobs. The gauges it exports are what the
// alerting rules compare against the targets below.
package slo

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SLO targets for the pipeline.
const (
	// ScrapeSuccessSLO is the minimum acceptable ratio of successful scrape
	// jobs over the rolling window. Terminal failures and panics count
	// against it; retries do not, only their final outcome does.
	ScrapeSuccessSLO = 0.95

	// ScrapeLatencyP95SLO is the p95 job duration target in seconds. A
	// browser-mode scrape is slow, so the target is generous.
	ScrapeLatencyP95SLO = 60.0

	// DefaultWindowSize is the number of finished jobs the rolling window
	// holds. At normal sweep volume this covers roughly a day.
	DefaultWindowSize = 500
)

var (
	scrapeSuccessRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slo_scrape_success_ratio",
		Help: "Ratio of successful scrape jobs over the rolling window (0-1), target: 0.95",
	})

	scrapeLatencyP95 = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slo_scrape_latency_p95_seconds",
		Help: "p95 scrape job duration over the rolling window, target: 60",
	})

	windowJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slo_window_jobs",
		Help: "Number of finished jobs currently in the SLO window",
	})
)

type sample struct {
	success bool
	seconds float64
}

// Tracker keeps the rolling window and refreshes the SLO gauges on every
// recorded outcome. Safe for concurrent use by the pool's consumers.
type Tracker struct {
	mu     sync.Mutex
	window []sample
	next   int
	filled bool
}

// NewTracker creates a tracker with the given window size.
// Zero or negative means DefaultWindowSize.
func NewTracker(windowSize int) *Tracker {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Tracker{window: make([]sample, windowSize)}
}

// Record adds one finished job to the window and refreshes the gauges.
func (t *Tracker) Record(success bool, seconds float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.window[t.next] = sample{success: success, seconds: seconds}
	t.next++
	if t.next == len(t.window) {
		t.next = 0
		t.filled = true
	}

	ratio, p95, n := t.snapshotLocked()
	scrapeSuccessRatio.Set(ratio)
	scrapeLatencyP95.Set(p95)
	windowJobs.Set(float64(n))
}

// Snapshot returns the current success ratio, p95 latency in seconds, and
// the number of jobs in the window. With an empty window the ratio is 1.
func (t *Tracker) Snapshot() (ratio, p95 float64, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() (float64, float64, int) {
	n := t.next
	if t.filled {
		n = len(t.window)
	}
	if n == 0 {
		return 1, 0, 0
	}

	succeeded := 0
	durations := make([]float64, n)
	for i := 0; i < n; i++ {
		if t.window[i].success {
			succeeded++
		}
		durations[i] = t.window[i].seconds
	}
	sort.Float64s(durations)

	idx := (n * 95) / 100
	if idx >= n {
		idx = n - 1
	}
	return float64(succeeded) / float64(n), durations[idx], n
}
