// Package snapshot turns raw ZFS snapshot names into typed records and
// groups them by dataset.
package snapshot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Separator divides the dataset path from the snapshot label.
const Separator = "@"

// ErrNotApplicable marks names keepoid has no authority over.
var ErrNotApplicable = errors.New("snapshot not applicable")

// ErrBadTimestamp marks names that carry the identifier but no readable
// time. They are still not applicable, but point at a listing anomaly.
var ErrBadTimestamp = fmt.Errorf("%w: unreadable timestamp", ErrNotApplicable)

// Snapshot represents a single managed snapshot.
type Snapshot struct {
	Dataset   string
	Name      string // dataset@label, unique
	Label     string
	Timestamp time.Time
}

func (s Snapshot) String() string { return s.Name }

// Parser builds Snapshots from names reported by the listing collaborator.
type Parser struct {
	Root       string // configured path
	Identifier string
	Layout     string
	Location   *time.Location
	SkipParent bool

	// UseCreation takes the timestamp from the listed creation time
	// instead of the label. The label must still carry the identifier.
	UseCreation bool
}

// Entry is a listed snapshot name and its creation time, when known.
type Entry struct {
	Name     string
	Creation time.Time
}

// Parse returns the Snapshot for name, or an error wrapping ErrNotApplicable.
func (p Parser) Parse(name string) (Snapshot, error) {
	return p.ParseEntry(Entry{Name: name})
}

func (p Parser) ParseEntry(e Entry) (Snapshot, error) {
	name := e.Name
	dataset, label, ok := strings.Cut(name, Separator)
	if !ok || dataset == "" || label == "" {
		return Snapshot{}, fmt.Errorf("%w: %q is not dataset@label", ErrNotApplicable, name)
	}
	if p.Root != "" && dataset != p.Root && !strings.HasPrefix(dataset, p.Root+"/") {
		return Snapshot{}, fmt.Errorf("%w: %q is outside %q", ErrNotApplicable, name, p.Root)
	}
	if p.SkipParent && dataset == p.Root {
		return Snapshot{}, fmt.Errorf("%w: %q belongs to the parent dataset", ErrNotApplicable, name)
	}
	if !strings.HasPrefix(label, p.Identifier) {
		return Snapshot{}, fmt.Errorf("%w: label %q lacks identifier %q", ErrNotApplicable, label, p.Identifier)
	}

	loc := p.Location
	if loc == nil {
		loc = time.Local
	}

	var ts time.Time
	if p.UseCreation {
		if e.Creation.IsZero() {
			return Snapshot{}, fmt.Errorf("%w: %q has no creation time", ErrBadTimestamp, name)
		}
		ts = e.Creation.In(loc)
	} else {
		var err error
		ts, err = time.ParseInLocation(p.Layout, strings.TrimPrefix(label, p.Identifier), loc)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: label %q: %v", ErrBadTimestamp, label, err)
		}
	}

	return Snapshot{
		Dataset:   dataset,
		Name:      name,
		Label:     label,
		Timestamp: ts,
	}, nil
}

// Skipped records a name that was dropped and why.
type Skipped struct {
	Name   string
	Reason string
}

// ParseAll parses every name, dropping and logging the ones that do not apply.
// Duplicate names are only kept once.
func (p Parser) ParseAll(names []string, log *zap.Logger) ([]Snapshot, []Skipped) {
	entries := make([]Entry, len(names))
	for i, n := range names {
		entries[i] = Entry{Name: n}
	}
	return p.ParseEntries(entries, log)
}

func (p Parser) ParseEntries(entries []Entry, log *zap.Logger) ([]Snapshot, []Skipped) {
	var (
		snaps   []Snapshot
		skipped []Skipped
		seen    = make(map[string]struct{}, len(entries))
	)

	for _, e := range entries {
		name := e.Name
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		s, err := p.ParseEntry(e)
		if err != nil {
			if errors.Is(err, ErrBadTimestamp) {
				log.Warn("ignoring snapshot with unreadable timestamp", zap.String("snapshot", name), zap.Error(err))
			} else {
				log.Debug("ignoring snapshot", zap.String("snapshot", name), zap.Error(err))
			}
			skipped = append(skipped, Skipped{Name: name, Reason: err.Error()})
			continue
		}
		snaps = append(snaps, s)
	}

	return snaps, skipped
}
