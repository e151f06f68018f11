package purge

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Config holds the validated retention parameters of a scheduler.
type Config struct {
	Enabled           bool
	ExecutionInterval time.Duration
	MaxHistory        time.Duration
	ExecuteOnStartup  bool
}

// Validate checks the invariants of an enabled configuration. A disabled
// configuration is always valid because it never arms a timer.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ExecutionInterval <= 0 {
		return fmt.Errorf("%w: execution interval must be positive, got %s", ErrMisconfiguredRetention, c.ExecutionInterval)
	}
	if c.MaxHistory < 0 {
		return fmt.Errorf("%w: max history must not be negative, got %s", ErrMisconfiguredRetention, c.MaxHistory)
	}
	return nil
}

// Properties is the raw configuration surface: amounts with separate units.
type Properties struct {
	Enabled               bool
	ExecutionInterval     int
	ExecutionIntervalUnit string
	MaxHistory            int
	MaxHistoryUnit        string
	ExecuteOnStartup      bool
}

// DefaultProperties purges once a day and keeps thirty days of history.
func DefaultProperties() Properties {
	return Properties{
		ExecutionInterval:     24,
		ExecutionIntervalUnit: "hours",
		MaxHistory:            30,
		MaxHistoryUnit:        "days",
	}
}

// Config converts the properties into a validated Config.
func (p Properties) Config() (Config, error) {
	intervalUnit, err := ParseUnit(p.ExecutionIntervalUnit)
	if err != nil {
		return Config{}, fmt.Errorf("%w: execution interval unit: %v", ErrMisconfiguredRetention, err)
	}
	historyUnit, err := ParseUnit(p.MaxHistoryUnit)
	if err != nil {
		return Config{}, fmt.Errorf("%w: max history unit: %v", ErrMisconfiguredRetention, err)
	}
	interval, ok := scale(p.ExecutionInterval, intervalUnit)
	if !ok {
		return Config{}, fmt.Errorf("%w: execution interval %d %s overflows a duration", ErrMisconfiguredRetention, p.ExecutionInterval, p.ExecutionIntervalUnit)
	}
	maxHistory, ok := scale(p.MaxHistory, historyUnit)
	if !ok {
		return Config{}, fmt.Errorf("%w: max history %d %s overflows a duration", ErrMisconfiguredRetention, p.MaxHistory, p.MaxHistoryUnit)
	}
	cfg := Config{
		Enabled:           p.Enabled,
		ExecutionInterval: interval,
		MaxHistory:        maxHistory,
		ExecuteOnStartup:  p.ExecuteOnStartup,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// scale multiplies amount by unit, reporting false when the product does not
// fit in a time.Duration.
func scale(amount int, unit time.Duration) (time.Duration, bool) {
	limit := int64(math.MaxInt64 / unit)
	if n := int64(amount); n > limit || n < -limit {
		return 0, false
	}
	return time.Duration(amount) * unit, true
}

var units = map[string]time.Duration{
	"ns": time.Nanosecond, "nanosecond": time.Nanosecond, "nanoseconds": time.Nanosecond,
	"us": time.Microsecond, "microsecond": time.Microsecond, "microseconds": time.Microsecond,
	"ms": time.Millisecond, "millisecond": time.Millisecond, "milliseconds": time.Millisecond,
	"s": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
}

// ParseUnit maps a time unit name (e.g. "seconds", "SECONDS", "d") to its duration.
func ParseUnit(s string) (time.Duration, error) {
	u, ok := units[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown time unit %q", s)
	}
	return u, nil
}
