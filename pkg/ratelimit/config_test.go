package ratelimit

import (
	"testing"
	"time"
)

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{
			name: "valid gap only",
			rule: Rule{MinInterval: 5 * time.Second},
		},
		{
			name: "valid gap plus window",
			rule: Rule{MinInterval: 240 * time.Second, MaxPerWindow: 15, Window: time.Hour},
		},
		{
			name: "zero rule is valid",
			rule: Rule{},
		},
		{
			name:    "negative interval",
			rule:    Rule{MinInterval: -time.Second},
			wantErr: true,
		},
		{
			name:    "negative max per window",
			rule:    Rule{MaxPerWindow: -1},
			wantErr: true,
		},
		{
			name:    "window ceiling without window length",
			rule:    Rule{MaxPerWindow: 10},
			wantErr: true,
		},
		{
			name:    "negative jitter",
			rule:    Rule{Jitter: -time.Millisecond},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "default config",
			config: DefaultConfig(),
		},
		{
			name: "empty domain key",
			config: Config{
				Rules: map[string]Rule{"": {MinInterval: time.Second}},
			},
			wantErr: true,
		},
		{
			name: "invalid nested rule",
			config: Config{
				Rules: map[string]Rule{"x.example.com": {MinInterval: -1}},
			},
			wantErr: true,
		},
		{
			name:    "negative max wait",
			config:  Config{MaxWait: -time.Second},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_RuleFor(t *testing.T) {
	config := Config{
		DefaultRule: Rule{MinInterval: time.Second},
		Rules: map[string]Rule{
			"slow.example.com": {MinInterval: 10 * time.Minute},
		},
	}

	if got := config.RuleFor("slow.example.com"); got.MinInterval != 10*time.Minute {
		t.Errorf("explicit rule: got %v", got.MinInterval)
	}
	if got := config.RuleFor("other.example.com"); got.MinInterval != time.Second {
		t.Errorf("fallback rule: got %v", got.MinInterval)
	}
}
