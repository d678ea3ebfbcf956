package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type ReceiptsConfig struct {
	// Delay accepts numeric milliseconds ("600000" or 600000) or a
	// human-readable expression ("10 minutes"); it is normalized once
	// at load time and rejected here when unparseable.
	Delay           string   `koanf:"delay" mapstructure:"delay"`
	WatchedStatuses []string `koanf:"watched_statuses" mapstructure:"watched_statuses"`
	IdentityMode    string   `koanf:"identity_mode" mapstructure:"identity_mode"`
}

type WorkerConfig struct {
	Concurrency    int    `koanf:"concurrency" mapstructure:"concurrency"`
	MaxAttempts    int    `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff string `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     string `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Receipts    ReceiptsConfig `koanf:"receipts" mapstructure:"receipts"`
	Worker      WorkerConfig   `koanf:"worker" mapstructure:"worker"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "receipts",
		Receipts: ReceiptsConfig{
			Delay:           "10 minutes",
			WatchedStatuses: []string{string(StatusSent), string(StatusDelivered)},
			IdentityMode:    string(IdentityModeOff),
		},
		Worker: WorkerConfig{
			Concurrency:    50,
			MaxAttempts:    10,
			InitialBackoff: "1 second",
			MaxBackoff:     "5 minutes",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if _, err := ParseDelay(c.Receipts.Delay); err != nil {
		return err
	}
	if _, err := ParseStatusSet(c.Receipts.WatchedStatuses); err != nil {
		return err
	}
	if _, err := ParseIdentityMode(c.Receipts.IdentityMode); err != nil {
		return err
	}
	if c.Worker.Concurrency < 0 {
		return fmt.Errorf("core: worker concurrency must not be negative")
	}
	if c.Worker.MaxAttempts < 0 {
		return fmt.Errorf("core: worker max_attempts must not be negative")
	}
	if strings.TrimSpace(c.Worker.InitialBackoff) != "" {
		if _, err := ParseDelay(c.Worker.InitialBackoff); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.Worker.MaxBackoff) != "" {
		if _, err := ParseDelay(c.Worker.MaxBackoff); err != nil {
			return err
		}
	}
	return nil
}

// ReceiptOptions normalizes the loaded receipt settings into the
// canonical runtime shape. Custom resolvers are runtime-only wiring
// and are attached by the caller afterwards.
func (c Config) ReceiptOptions() (ReceiptOptions, error) {
	delay, err := ParseDelay(c.Receipts.Delay)
	if err != nil {
		return ReceiptOptions{}, err
	}
	watched, err := ParseStatusSet(c.Receipts.WatchedStatuses)
	if err != nil {
		return ReceiptOptions{}, err
	}
	mode, err := ParseIdentityMode(c.Receipts.IdentityMode)
	if err != nil {
		return ReceiptOptions{}, err
	}
	return ReceiptOptions{
		Delay:           delay,
		WatchedStatuses: watched,
		IdentityMode:    mode,
	}, nil
}

var durationUnits = map[string]time.Duration{
	"ms":           time.Millisecond,
	"millisecond":  time.Millisecond,
	"milliseconds": time.Millisecond,
	"s":            time.Second,
	"sec":          time.Second,
	"secs":         time.Second,
	"second":       time.Second,
	"seconds":      time.Second,
	"m":            time.Minute,
	"min":          time.Minute,
	"mins":         time.Minute,
	"minute":       time.Minute,
	"minutes":      time.Minute,
	"h":            time.Hour,
	"hr":           time.Hour,
	"hrs":          time.Hour,
	"hour":         time.Hour,
	"hours":        time.Hour,
	"d":            24 * time.Hour,
	"day":          24 * time.Hour,
	"days":         24 * time.Hour,
}

// ParseDelay normalizes a configured delay into a time.Duration. Bare
// numbers are milliseconds; "10 minutes", "90s", and Go duration
// syntax are accepted. Anything else fails at load time so bad input
// never reaches event processing.
func ParseDelay(value string) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("core: delay is required")
	}

	if millis, err := strconv.ParseFloat(trimmed, 64); err == nil {
		normalized := time.Duration(millis * float64(time.Millisecond))
		if normalized <= 0 {
			return 0, fmt.Errorf("core: delay %q must be positive", value)
		}
		return normalized, nil
	}

	if parsed, err := time.ParseDuration(trimmed); err == nil {
		if parsed <= 0 {
			return 0, fmt.Errorf("core: delay %q must be positive", value)
		}
		return parsed, nil
	}

	fields := strings.Fields(strings.ToLower(trimmed))
	if len(fields) == 2 {
		amount, err := strconv.ParseFloat(fields[0], 64)
		if err == nil {
			if unit, ok := durationUnits[fields[1]]; ok {
				normalized := time.Duration(amount * float64(unit))
				if normalized <= 0 {
					return 0, fmt.Errorf("core: delay %q must be positive", value)
				}
				return normalized, nil
			}
		}
	}
	return 0, fmt.Errorf("core: unparseable delay %q", value)
}
