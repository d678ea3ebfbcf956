package core

import (
	"testing"
	"time"
)

func TestParseDelay(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  time.Duration
	}{
		{"bare millis", "600000", 10 * time.Minute},
		{"fractional millis", "1500.5", 1500500 * time.Microsecond},
		{"go duration", "90s", 90 * time.Second},
		{"word minutes", "10 minutes", 10 * time.Minute},
		{"word singular", "1 hour", time.Hour},
		{"word abbreviation", "30 secs", 30 * time.Second},
		{"word days", "2 days", 48 * time.Hour},
		{"mixed case", "5 Minutes", 5 * time.Minute},
		{"padded", "  15 minutes  ", 15 * time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDelay(tc.input)
			if err != nil {
				t.Fatalf("parse %q: %v", tc.input, err)
			}
			if got != tc.want {
				t.Fatalf("parse %q: got %v want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestParseDelayRejectsBadInput(t *testing.T) {
	for _, input := range []string{"", "   ", "soon", "10 fortnights", "-5000", "0", "-3 minutes", "ten minutes"} {
		if _, err := ParseDelay(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	opts, err := cfg.ReceiptOptions()
	if err != nil {
		t.Fatalf("receipt options: %v", err)
	}
	if opts.Delay != 10*time.Minute {
		t.Fatalf("unexpected default delay: %v", opts.Delay)
	}
	if !opts.WatchedStatuses.Contains(StatusSent) || !opts.WatchedStatuses.Contains(StatusDelivered) {
		t.Fatalf("unexpected watched statuses: %v", opts.WatchedStatuses.Values())
	}
	if opts.WatchedStatuses.Contains(StatusRead) {
		t.Fatalf("read should not be watched by default")
	}
	if opts.IdentityMode != IdentityModeOff {
		t.Fatalf("unexpected identity mode: %v", opts.IdentityMode)
	}
}

func TestConfigValidateRejectsBadDelay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Receipts.Delay = "whenever"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for unparseable delay")
	}
}

func TestConfigValidateRejectsUnknownStatus(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Receipts.WatchedStatuses = []string{"sent", "vanished"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for unknown status")
	}
}
