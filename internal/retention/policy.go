package retention

import (
	"strings"
	"time"

	"github.com/keepoid/keepoid/internal/config"
)

// Policy is one resolved retention rule.
type Policy struct {
	Name         string
	Interval     time.Duration
	Count        int
	Anchor       config.TimeOfDay
	Path         string
	PathOverride bool

	// CoverWindow adds one slot past Count so the snapshot covering the
	// oldest edge of the window survives until a newer one takes its place.
	CoverWindow bool
}

// PoliciesFrom resolves the retention rules of cfg.
func PoliciesFrom(cfg *config.Config) []Policy {
	rules := cfg.Rules()
	out := make([]Policy, 0, len(rules))
	for _, r := range rules {
		out = append(out, Policy{
			Name:         r.Name,
			Interval:     r.Interval,
			Count:        r.Count,
			Anchor:       r.Anchor,
			Path:         r.Path,
			PathOverride: r.PathOverride,
			CoverWindow:  r.CoverWindow,
		})
	}
	return out
}

// Slots is the number of boundaries the policy guarantees.
func (p Policy) Slots() int {
	if p.CoverWindow {
		return p.Count + 1
	}
	return p.Count
}

// AppliesTo reports whether the policy governs dataset. An overridden path
// must match exactly; otherwise every dataset at or below Path is covered.
func (p Policy) AppliesTo(dataset string) bool {
	if p.PathOverride {
		return dataset == p.Path
	}
	return p.Path == "" || dataset == p.Path || strings.HasPrefix(dataset, p.Path+"/")
}

// Boundaries returns Slots() instants spaced Interval apart, most recent
// first. The first is the latest instant not after now that sits a whole
// number of intervals away from the anchor time of now's calendar day.
// Whole-day intervals step in calendar days, so boundaries keep their wall
// clock time across DST changes.
func (p Policy) Boundaries(now time.Time, loc *time.Location) []time.Time {
	edges := p.edges(now, loc)
	if len(edges) == 0 {
		return nil
	}
	return edges[:p.Slots()]
}

// edges returns Slots()+1 instants: every boundary plus the lower edge of
// the oldest window.
func (p Policy) edges(now time.Time, loc *time.Location) []time.Time {
	if p.Interval <= 0 || p.Count <= 0 {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}

	out := make([]time.Time, p.Slots()+1)

	if p.Interval%day != 0 {
		epoch := p.Anchor.On(now, loc)
		first := epoch.Add(floorDiv(now.Sub(epoch), p.Interval) * p.Interval)
		for i := range out {
			out[i] = first.Add(-time.Duration(i) * p.Interval)
		}
		return out
	}

	// whole days: do the arithmetic on wall clock readings, which have no
	// DST, then place each reading back into loc
	wallNow := wallClock(now.In(loc))
	epoch := p.Anchor.On(wallNow, time.UTC)
	first := epoch.Add(floorDiv(wallNow.Sub(epoch), p.Interval) * p.Interval)
	for i := range out {
		w := first.Add(-time.Duration(i) * p.Interval)
		out[i] = time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), 0, loc)
	}
	return out
}

const day = 24 * time.Hour

func floorDiv(d, interval time.Duration) time.Duration {
	k := d / interval
	if d%interval < 0 {
		k--
	}
	return k
}

// wallClock reinterprets t's wall clock reading in UTC.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
