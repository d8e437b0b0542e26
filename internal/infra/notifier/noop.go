package notifier

import "context"

// NoOpNotifier discards alerts. It is used when a channel is disabled so
// callers never need a nil check.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier instance.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// NotifyAlert does nothing and returns nil immediately.
func (n *NoOpNotifier) NotifyAlert(ctx context.Context, alert *Alert) error {
	return nil
}
