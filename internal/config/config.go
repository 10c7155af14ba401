package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultTimestampFormat = "2006-01-02T15:04:05"
	DefaultTimezone        = "Local"
	DefaultZFSCommand      = "zfs"
	DefaultDestroyRetries  = 5

	TimestampFromLabel    = "label"
	TimestampFromCreation = "creation"
)

type Config struct {
	StartTime       TimeOfDay       `yaml:"startTime"`
	PruneAfter      *Duration       `yaml:"pruneAfter"`
	Path            string          `yaml:"path"`
	SkipParent      bool            `yaml:"skipParent"`
	Identifier      string          `yaml:"identifier"`
	TimestampFormat string          `yaml:"timestampFormat"`
	TimestampSource string          `yaml:"timestampSource"` // label or creation
	Timezone        string          `yaml:"timezone"`
	CoverWindow     bool            `yaml:"coverWindow"`
	Workers         int             `yaml:"workers"`
	Retention       []RetentionRule `yaml:"retention"`

	Schedule     string        `yaml:"schedule"` // cron expression, daemon mode only
	Logging      LoggingConfig `yaml:"logging"`
	ConfigReload ReloadConfig  `yaml:"configReload"`
	Metrics      MetricsConfig `yaml:"metrics"`
	Journal      JournalConfig `yaml:"journal"`
	ZFS          ZFSConfig     `yaml:"zfs"`
}

// RetentionRule guarantees Count snapshots spaced Interval apart.
// Nil or empty fields fall back to the global settings.
type RetentionRule struct {
	Name        string     `yaml:"name"`
	Interval    Duration   `yaml:"interval"`
	Count       int        `yaml:"count"`
	StartTime   *TimeOfDay `yaml:"startTime"`
	Path        string     `yaml:"path"`
	CoverWindow *bool      `yaml:"coverWindow"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "text"
}

type ReloadConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Method       string   `yaml:"method"` // "auto", "poll", "fsnotify"
	PollInterval Duration `yaml:"pollInterval"`
	Debounce     Duration `yaml:"debounce"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // node_exporter textfile collector target
	Listen   string `yaml:"listen"`   // daemon /metrics address, e.g. ":9184"
}

type JournalConfig struct {
	Path string `yaml:"path"`
}

type ZFSConfig struct {
	Command        string `yaml:"command"`
	DestroyRetries int    `yaml:"destroyRetries"`
}

// ResolvedRule is a retention rule with every fallback applied.
type ResolvedRule struct {
	Name         string
	Interval     time.Duration
	Count        int
	Anchor       TimeOfDay
	Path         string
	PathOverride bool
	CoverWindow  bool
}

// Rules resolves each retention rule against the global settings.
func (c *Config) Rules() []ResolvedRule {
	out := make([]ResolvedRule, 0, len(c.Retention))
	for _, r := range c.Retention {
		rr := ResolvedRule{
			Name:        r.Name,
			Interval:    r.Interval.Std(),
			Count:       r.Count,
			Anchor:      c.StartTime,
			Path:        c.Path,
			CoverWindow: c.CoverWindow,
		}
		if rr.Name == "" {
			rr.Name = fmt.Sprintf("%sx%d", r.Interval, r.Count)
		}
		if r.StartTime != nil {
			rr.Anchor = *r.StartTime
		}
		if p := strings.TrimSuffix(r.Path, "/"); p != "" {
			rr.Path = p
			rr.PathOverride = true
		}
		if r.CoverWindow != nil {
			rr.CoverWindow = *r.CoverWindow
		}
		out = append(out, rr)
	}
	return out
}

// Grace returns pruneAfter, or zero when unset.
func (c *Config) Grace() time.Duration {
	if c.PruneAfter == nil {
		return 0
	}
	return c.PruneAfter.Std()
}

// Location resolves the timezone used for labels and anchors.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == DefaultTimezone {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) applyDefaults() {
	c.Path = strings.TrimSuffix(c.Path, "/")
	if c.TimestampFormat == "" {
		c.TimestampFormat = DefaultTimestampFormat
	}
	if c.TimestampSource == "" {
		c.TimestampSource = TimestampFromLabel
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.ConfigReload.Method == "" {
		c.ConfigReload.Method = "auto"
	}
	if c.ConfigReload.PollInterval == 0 {
		c.ConfigReload.PollInterval = Duration(5 * time.Second)
	}
	if c.ConfigReload.Debounce == 0 {
		c.ConfigReload.Debounce = Duration(time.Second)
	}
	if c.ZFS.Command == "" {
		c.ZFS.Command = DefaultZFSCommand
	}
	if c.ZFS.DestroyRetries == 0 {
		c.ZFS.DestroyRetries = DefaultDestroyRetries
	}
}
