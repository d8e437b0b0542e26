package ratelimit

import (
	"fmt"
	"time"
)

// Rule describes the pacing policy for one target domain.
type Rule struct {
	// MinInterval is the minimum gap between two consecutive requests to the
	// domain. Zero disables the gap check.
	MinInterval time.Duration

	// MaxPerWindow caps the number of requests inside a sliding Window.
	// Zero disables the window check.
	MaxPerWindow int

	// Window is the sliding-window length used with MaxPerWindow.
	Window time.Duration

	// Jitter adds a random duration in [0, Jitter) to every computed wait so
	// paced requests do not land on an exact metronome.
	Jitter time.Duration
}

// Validate checks that the rule is internally consistent.
func (r Rule) Validate() error {
	if r.MinInterval < 0 {
		return fmt.Errorf("min interval must be non-negative, got %v", r.MinInterval)
	}
	if r.MaxPerWindow < 0 {
		return fmt.Errorf("max per window must be non-negative, got %d", r.MaxPerWindow)
	}
	if r.MaxPerWindow > 0 && r.Window <= 0 {
		return fmt.Errorf("window must be positive when max per window is set, got %v", r.Window)
	}
	if r.Jitter < 0 {
		return fmt.Errorf("jitter must be non-negative, got %v", r.Jitter)
	}
	return nil
}

// Config holds the limiter configuration.
type Config struct {
	// DefaultRule applies to any domain without an explicit entry in Rules.
	DefaultRule Rule

	// Rules maps a domain to its pacing rule.
	Rules map[string]Rule

	// MaxWait caps the total time WaitForNextRequest is willing to block.
	// When the projected wait exceeds this, the call fails instead of
	// stalling a worker slot for the rest of the window.
	MaxWait time.Duration
}

// DefaultConfig returns a configuration with conservative defaults:
// a five second gap per domain, no window ceiling, and a one hour wait cap.
func DefaultConfig() Config {
	return Config{
		DefaultRule: Rule{
			MinInterval: 5 * time.Second,
			Jitter:      500 * time.Millisecond,
		},
		Rules:   map[string]Rule{},
		MaxWait: 1 * time.Hour,
	}
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if err := c.DefaultRule.Validate(); err != nil {
		return fmt.Errorf("default rule: %w", err)
	}
	for domain, rule := range c.Rules {
		if domain == "" {
			return fmt.Errorf("rule with empty domain")
		}
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rule for %s: %w", domain, err)
		}
	}
	if c.MaxWait < 0 {
		return fmt.Errorf("max wait must be non-negative, got %v", c.MaxWait)
	}
	return nil
}

// RuleFor returns the rule that applies to domain.
func (c Config) RuleFor(domain string) Rule {
	if rule, ok := c.Rules[domain]; ok {
		return rule
	}
	return c.DefaultRule
}
