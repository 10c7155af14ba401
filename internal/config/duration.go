package config

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a single-unit span such as "30s", "15m", "1h" or "7d".
// Compound values like "1h30m" are not accepted.
type Duration time.Duration

var units = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
}

// ParseDuration parses "<digits><unit>" with unit one of s, m, h, d.
func ParseDuration(s string) (Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration %q: want <number><s|m|h|d>", s)
	}

	unit, ok := units[s[len(s)-1]]
	if !ok {
		return 0, fmt.Errorf("invalid duration %q: unknown unit %q", s, s[len(s)-1:])
	}

	digits := s[:len(s)-1]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, fmt.Errorf("invalid duration %q: value must be a plain integer", s)
		}
	}

	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if v > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("invalid duration %q: out of range", s)
	}

	return Duration(time.Duration(v) * unit), nil
}

// MustDuration is ParseDuration for literals; it panics on bad input.
func MustDuration(s string) Duration {
	d, err := ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// String renders d in the largest unit that divides it exactly.
func (d Duration) String() string {
	v := time.Duration(d)
	for _, u := range []struct {
		suffix string
		size   time.Duration
	}{
		{"d", 24 * time.Hour},
		{"h", time.Hour},
		{"m", time.Minute},
		{"s", time.Second},
	} {
		if v != 0 && v%u.size == 0 {
			return strconv.FormatInt(int64(v/u.size), 10) + u.suffix
		}
	}
	if v == 0 {
		return "0s"
	}
	return v.String()
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a string", node.Line)
	}
	parsed, err := ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// TimeOfDay is a wall-clock time used to anchor retention boundaries.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS" in 24h notation.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if len(s) != len(layout) {
			continue
		}
		t, err := time.Parse(layout, s)
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
		}
		return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
}

// On returns the instant at this time of day on the calendar date of t in loc.
func (o TimeOfDay) On(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), o.Hour, o.Minute, o.Second, 0, loc)
}

func (o TimeOfDay) String() string {
	if o.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", o.Hour, o.Minute, o.Second)
	}
	return fmt.Sprintf("%02d:%02d", o.Hour, o.Minute)
}

func (o *TimeOfDay) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: time of day must be a string", node.Line)
	}
	parsed, err := ParseTimeOfDay(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*o = parsed
	return nil
}

func (o TimeOfDay) MarshalYAML() (any, error) {
	return o.String(), nil
}
