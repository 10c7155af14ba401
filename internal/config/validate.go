package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"github.com/keepoid/keepoid/internal/core"
)

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs error
	missing := func(msg string) {
		errs = multierr.Append(errs, core.WrapError(core.ErrConfigMissing, errors.New(msg)))
	}
	invalid := func(format string, args ...any) {
		errs = multierr.Append(errs, core.WrapError(core.ErrConfigInvalid, fmt.Errorf(format, args...)))
	}

	if c.Path == "" {
		missing("path is required")
	}
	if c.Identifier == "" {
		missing("identifier is required")
	} else if strings.ContainsAny(c.Identifier, "@ \t") {
		invalid("identifier %q must not contain '@' or whitespace", c.Identifier)
	}
	if c.PruneAfter == nil {
		missing("pruneAfter is required")
	}

	if len(c.Retention) == 0 {
		missing("retention must define at least one rule")
	}
	names := map[string]int{}
	for i, r := range c.Retention {
		if r.Interval <= 0 {
			invalid("retention[%d].interval must be positive", i)
		}
		if r.Count <= 0 {
			invalid("retention[%d].count must be positive, got %d", i, r.Count)
		}
		if r.Path != "" && c.Path != "" {
			p := strings.TrimSuffix(r.Path, "/")
			switch {
			case p != c.Path && !strings.HasPrefix(p, c.Path+"/"):
				invalid("retention[%d].path %q is outside path %q", i, r.Path, c.Path)
			case p == c.Path && c.SkipParent:
				invalid("retention[%d].path %q is the parent dataset excluded by skipParent", i, r.Path)
			}
		}
		if r.Name != "" {
			if prev, dup := names[r.Name]; dup {
				invalid("retention[%d].name %q already used by retention[%d]", i, r.Name, prev)
			}
			names[r.Name] = i
		}
	}

	if err := checkLayout(c.TimestampFormat); err != nil {
		invalid("timestampFormat: %v", err)
	}
	switch c.TimestampSource {
	case "", TimestampFromLabel, TimestampFromCreation:
	default:
		invalid("timestampSource must be %q or %q, got %q", TimestampFromLabel, TimestampFromCreation, c.TimestampSource)
	}
	if c.Timezone != "" && c.Timezone != DefaultTimezone {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			invalid("timezone: %v", err)
		}
	}
	if c.Workers < 0 {
		invalid("workers cannot be negative, got %d", c.Workers)
	}

	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			invalid("schedule %q: %v", c.Schedule, err)
		}
	}
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			invalid("logging.level: %v", err)
		}
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		invalid("logging.format must be json or text, got %q", c.Logging.Format)
	}
	switch c.ConfigReload.Method {
	case "", "auto", "poll", "fsnotify":
	default:
		invalid("configReload.method must be auto, poll or fsnotify, got %q", c.ConfigReload.Method)
	}
	if c.ZFS.DestroyRetries < 0 {
		invalid("zfs.destroyRetries cannot be negative, got %d", c.ZFS.DestroyRetries)
	}

	if errs != nil {
		return core.WrapError(core.ErrConfigInvalid, errs)
	}
	return nil
}

// checkLayout makes sure a reference instant survives a format/parse round trip.
func checkLayout(layout string) error {
	if layout == "" {
		return nil
	}
	ref := time.Date(2023, 10, 27, 14, 5, 9, 0, time.UTC)
	s := ref.Format(layout)
	if s == layout {
		return fmt.Errorf("layout %q has no time fields", layout)
	}
	back, err := time.Parse(layout, s)
	if err != nil {
		return err
	}
	if back.Format("2006-01-02T15") != ref.Format("2006-01-02T15") {
		return fmt.Errorf("layout %q must carry at least date and hour", layout)
	}
	return nil
}
