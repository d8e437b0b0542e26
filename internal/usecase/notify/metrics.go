package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for alert delivery monitoring
var (
	// alertDispatchedTotal tracks total alerts dispatched per channel
	alertDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_dispatched_total",
			Help: "Total number of alerts dispatched",
		},
		[]string{"channel"},
	)

	// alertSentTotal tracks alert delivery results per channel
	alertSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_sent_total",
			Help: "Total number of alerts sent",
		},
		[]string{"channel", "status"}, // status: success|failure
	)

	// alertDuration tracks alert delivery duration
	alertDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alert_duration_seconds",
			Help:    "Alert delivery duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30}, // 100ms to 30s
		},
		[]string{"channel"},
	)

	// circuitBreakerOpenTotal tracks circuit breaker open events
	circuitBreakerOpenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_circuit_breaker_open_total",
			Help: "Total number of circuit breaker open events",
		},
		[]string{"channel"},
	)

	// alertDroppedTotal tracks dropped alerts (worker pool full, breaker open)
	alertDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_dropped_total",
			Help: "Total number of dropped alerts",
		},
		[]string{"channel", "reason"}, // reason: pool_full|circuit_open|disabled
	)

	// activeDeliveries tracks currently active delivery goroutines
	activeDeliveries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alert_active_goroutines",
			Help: "Number of active alert delivery goroutines",
		},
	)

	// channelsEnabled tracks number of enabled channels
	channelsEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alert_channels_enabled",
			Help: "Number of enabled alert channels",
		},
	)
)

// RecordDispatch records an alert dispatch attempt for a channel.
func RecordDispatch(channel string) {
	alertDispatchedTotal.WithLabelValues(channel).Inc()
}

// RecordSuccess records a successful delivery and its duration.
func RecordSuccess(channel string, duration time.Duration) {
	alertSentTotal.WithLabelValues(channel, "success").Inc()
	alertDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordFailure records a failed delivery and its duration.
func RecordFailure(channel string, duration time.Duration) {
	alertSentTotal.WithLabelValues(channel, "failure").Inc()
	alertDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordDropped records a dropped alert with its reason
// (pool_full, circuit_open, disabled).
func RecordDropped(channel string, reason string) {
	alertDroppedTotal.WithLabelValues(channel, reason).Inc()
}

// RecordCircuitBreakerOpen records a circuit breaker open event.
func RecordCircuitBreakerOpen(channel string) {
	circuitBreakerOpenTotal.WithLabelValues(channel).Inc()
}

// IncrementActiveGoroutines increments the active goroutines gauge by 1.
func IncrementActiveGoroutines() {
	activeDeliveries.Inc()
}

// DecrementActiveGoroutines decrements the active goroutines gauge by 1.
func DecrementActiveGoroutines() {
	activeDeliveries.Dec()
}

// SetChannelsEnabled sets the number of enabled alert channels.
func SetChannelsEnabled(count float64) {
	channelsEnabled.Set(count)
}
