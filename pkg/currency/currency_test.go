package currency

import (
	"testing"
)

func TestParseCents(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "plain dollars", input: "$1,234.56", want: 123456},
		{name: "currency prefix", input: "US $12.30", want: 1230},
		{name: "no symbol", input: "1234.5", want: 123450},
		{name: "whole number", input: "89", want: 8900},
		{name: "single fraction digit", input: "0.5", want: 50},
		{name: "excess fraction digits truncated", input: "1.999", want: 199},
		{name: "zero", input: "$0.00", want: 0},
		{name: "large", input: "$12,345,678.90", want: 1234567890},
		{name: "empty", input: "", wantErr: true},
		{name: "no digits", input: "N/A", wantErr: true},
		{name: "two decimal points", input: "1.2.3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCents(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseCents(%q) expected error, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCents(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseCents(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		name  string
		cents int64
		want  string
	}{
		{name: "zero", cents: 0, want: "$0.00"},
		{name: "under a dollar", cents: 7, want: "$0.07"},
		{name: "no separator", cents: 99999, want: "$999.99"},
		{name: "one separator", cents: 123456, want: "$1,234.56"},
		{name: "two separators", cents: 1234567890, want: "$12,345,678.90"},
		{name: "negative", cents: -150, want: "-$1.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatCents(tt.cents); got != tt.want {
				t.Errorf("FormatCents(%d) = %q, want %q", tt.cents, got, tt.want)
			}
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	cases := []int64{0, 1, 99, 100, 101, 999, 1000, 123456, 999999999, 1234567890123}
	for _, cents := range cases {
		got, err := ParseCents(FormatCents(cents))
		if err != nil {
			t.Fatalf("round trip of %d failed to parse: %v", cents, err)
		}
		if got != cents {
			t.Errorf("round trip of %d = %d", cents, got)
		}
	}
}
