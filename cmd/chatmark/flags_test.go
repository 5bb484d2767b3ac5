package main

import (
	"errors"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// TestValidateFormat - Output format names
// ---------------------------------------------------------------------------

func TestValidateFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format  string
		wantErr bool
	}{
		{"term", false},
		{"html", false},
		{"markdown", false},
		{"HTML", true},
		{"pdf", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()

			err := validateFormat(tt.format)
			if tt.wantErr && !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("validateFormat(%q) error = %v, want %v", tt.format, err, ErrInvalidFormat)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("validateFormat(%q) unexpected error: %v", tt.format, err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestParseDuration - Positive durations only
// ---------------------------------------------------------------------------

func TestParseDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value   string
		want    time.Duration
		wantErr bool
	}{
		{"30s", 30 * time.Second, false},
		{"2m", 2 * time.Minute, false},
		{"0s", 0, true},
		{"-5s", 0, true},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Parallel()

			got, err := parseDuration("--timeout", tt.value)
			if tt.wantErr {
				if !errors.Is(err, ErrUsage) {
					t.Errorf("parseDuration(%q) error = %v, want %v", tt.value, err, ErrUsage)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("parseDuration(%q) = %v, %v; want %v", tt.value, got, err, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestParseAskFlags - Defaults and shorthands
// ---------------------------------------------------------------------------

func TestParseAskFlags(t *testing.T) {
	t.Parallel()

	f, rest, err := parseAskFlags([]string{"-C", "abc", "what", "--web-search", "now"}, nil)
	if err != nil {
		t.Fatalf("parseAskFlags() unexpected error: %v", err)
	}
	if f.conversation != "abc" || !f.webSearch || f.format != formatTerm {
		t.Errorf("flags = %+v", f)
	}
	if len(rest) != 2 || rest[0] != "what" || rest[1] != "now" {
		t.Errorf("args = %v", rest)
	}
}
