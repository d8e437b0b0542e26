package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"brickwatch/pkg/ratelimit"
)

// RateLimitRule is the YAML shape of one domain's outbound pacing rule.
// Durations use Go syntax ("240s", "1h").
type RateLimitRule struct {
	MinInterval  time.Duration `yaml:"min_interval"`
	MaxPerWindow int           `yaml:"max_per_window"`
	Window       time.Duration `yaml:"window"`
	Jitter       time.Duration `yaml:"jitter"`
}

// SourceSettings configures one scrape target. Which URL field applies
// depends on the source: the marketplace addresses items under a base URL,
// the retirement tracker is a single page, and the metadata site and the
// community board are reached through a search-URL template with one %s verb.
type SourceSettings struct {
	BaseURL           string `yaml:"base_url,omitempty"`
	PageURL           string `yaml:"page_url,omitempty"`
	SearchURLTemplate string `yaml:"search_url_template,omitempty"`

	// Domain keys the rate limiter. Derived from the URL when empty.
	Domain string `yaml:"domain,omitempty"`

	// WaitForSelector applies to browser-mode sources only.
	WaitForSelector string `yaml:"wait_for_selector,omitempty"`

	// IntervalDays is how often an item on this source is re-scraped.
	IntervalDays int `yaml:"interval_days"`

	// RateLimit overrides the default pacing rule for this source's domain.
	RateLimit *RateLimitRule `yaml:"rate_limit,omitempty"`
}

// DiscoverySettings configures the new-release feed that seeds product stubs.
type DiscoverySettings struct {
	FeedURL string `yaml:"feed_url"`
}

// SourcesConfig is the config/sources.yaml document.
type SourcesConfig struct {
	Marketplace SourceSettings    `yaml:"marketplace"`
	Retirement  SourceSettings    `yaml:"retirement"`
	Metadata    SourceSettings    `yaml:"metadata"`
	Reddit      SourceSettings    `yaml:"reddit"`
	Discovery   DiscoverySettings `yaml:"discovery"`

	// RateLimitDefault applies to any domain without a per-source rule.
	RateLimitDefault RateLimitRule `yaml:"rate_limit_default"`

	// RateLimitMaxWait caps how long one scrape blocks on pacing.
	RateLimitMaxWait time.Duration `yaml:"rate_limit_max_wait"`
}

// DefaultSourcesConfig returns the built-in scrape cadences and pacing rules.
// URLs have no sane default and must come from the YAML file.
func DefaultSourcesConfig() *SourcesConfig {
	return &SourcesConfig{
		Marketplace: SourceSettings{
			IntervalDays: 7,
			RateLimit: &RateLimitRule{
				MinInterval:  240 * time.Second,
				MaxPerWindow: 15,
				Window:       time.Hour,
				Jitter:       5 * time.Second,
			},
		},
		Retirement: SourceSettings{
			IntervalDays: 30,
		},
		Metadata: SourceSettings{
			IntervalDays: 90,
		},
		Reddit: SourceSettings{
			IntervalDays: 7,
			RateLimit: &RateLimitRule{
				MinInterval: 5 * time.Second,
				Jitter:      time.Second,
			},
		},
		RateLimitDefault: RateLimitRule{
			MinInterval: 5 * time.Second,
			Jitter:      500 * time.Millisecond,
		},
		RateLimitMaxWait: time.Hour,
	}
}

// LoadSourcesConfig reads and validates a sources YAML file. Fields the file
// omits keep their defaults, so a minimal file only needs the four URLs.
func LoadSourcesConfig(path string) (*SourcesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources config: %w", err)
	}

	cfg := DefaultSourcesConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse sources config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sources config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every source has a usable URL and cadence.
func (c *SourcesConfig) Validate() error {
	if err := validateURL("marketplace.base_url", c.Marketplace.BaseURL); err != nil {
		return err
	}
	if err := validateURL("retirement.page_url", c.Retirement.PageURL); err != nil {
		return err
	}
	if err := validateTemplate("metadata.search_url_template", c.Metadata.SearchURLTemplate); err != nil {
		return err
	}
	if err := validateTemplate("reddit.search_url_template", c.Reddit.SearchURLTemplate); err != nil {
		return err
	}
	if c.Discovery.FeedURL != "" {
		if err := validateURL("discovery.feed_url", c.Discovery.FeedURL); err != nil {
			return err
		}
	}

	for name, s := range map[string]SourceSettings{
		"marketplace": c.Marketplace,
		"retirement":  c.Retirement,
		"metadata":    c.Metadata,
		"reddit":      c.Reddit,
	} {
		if s.IntervalDays <= 0 {
			return fmt.Errorf("%s.interval_days must be positive, got %d", name, s.IntervalDays)
		}
		if s.RateLimit != nil {
			if err := s.RateLimit.rule().Validate(); err != nil {
				return fmt.Errorf("%s.rate_limit: %w", name, err)
			}
		}
	}

	if err := c.RateLimitDefault.rule().Validate(); err != nil {
		return fmt.Errorf("rate_limit_default: %w", err)
	}
	if c.RateLimitMaxWait <= 0 {
		return fmt.Errorf("rate_limit_max_wait must be positive, got %v", c.RateLimitMaxWait)
	}
	return nil
}

// RateLimitConfig maps the per-source rules onto the limiter's domain-keyed
// configuration.
func (c *SourcesConfig) RateLimitConfig() ratelimit.Config {
	rules := map[string]ratelimit.Rule{}
	add := func(s SourceSettings) {
		if s.RateLimit == nil {
			return
		}
		if domain := s.domain(); domain != "" {
			rules[domain] = s.RateLimit.rule()
		}
	}
	add(c.Marketplace)
	add(c.Retirement)
	add(c.Metadata)
	add(c.Reddit)

	return ratelimit.Config{
		DefaultRule: c.RateLimitDefault.rule(),
		Rules:       rules,
		MaxWait:     c.RateLimitMaxWait,
	}
}

func (r RateLimitRule) rule() ratelimit.Rule {
	return ratelimit.Rule{
		MinInterval:  r.MinInterval,
		MaxPerWindow: r.MaxPerWindow,
		Window:       r.Window,
		Jitter:       r.Jitter,
	}
}

// domain resolves the rate-limit key for the source, preferring an explicit
// override over the URL host.
func (s SourceSettings) domain() string {
	if s.Domain != "" {
		return s.Domain
	}
	raw := s.BaseURL
	if raw == "" {
		raw = s.PageURL
	}
	if raw == "" && s.SearchURLTemplate != "" {
		raw = fmt.Sprintf(s.SearchURLTemplate, "0")
	}
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

func validateURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be http or https, got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host: %q", field, raw)
	}
	return nil
}

func validateTemplate(field, tmpl string) error {
	if strings.Count(tmpl, "%s") != 1 {
		return fmt.Errorf("%s must contain exactly one %%s verb, got %q", field, tmpl)
	}
	return validateURL(field, fmt.Sprintf(tmpl, "0"))
}
