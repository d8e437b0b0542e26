package ratelimit

import "time"

// NoopMetrics is a Metrics implementation that discards all observations.
//
// This is the default when no metrics collector is configured, and is useful
// in tests where metric assertions are not the point.
type NoopMetrics struct{}

// RecordGrant does nothing.
func (m *NoopMetrics) RecordGrant(domain string) {}

// RecordDeferred does nothing.
func (m *NoopMetrics) RecordDeferred(domain string) {}

// RecordWaitDuration does nothing.
func (m *NoopMetrics) RecordWaitDuration(domain string, duration time.Duration) {}

// RecordStoreError does nothing.
func (m *NoopMetrics) RecordStoreError(domain string) {}
