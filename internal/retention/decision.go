package retention

import (
	"time"

	"github.com/keepoid/keepoid/internal/snapshot"
)

// Decision partitions the considered snapshots of one run.
// Keep, Prune and Pending are disjoint and ordered by dataset, then time.
type Decision struct {
	Now time.Time

	Keep    []snapshot.Snapshot // held by at least one rule slot
	Prune   []snapshot.Snapshot // unheld and older than pruneAfter
	Pending []snapshot.Snapshot // unheld but still inside the grace period

	Selections []Selection
	Coverage   []Coverage
}

// Coverage summarises how many slots of a rule were filled for a dataset.
type Coverage struct {
	Dataset string
	Rule    string
	Slots   int
	Filled  int
}

// KeptBy returns the slots that hold the named snapshot.
func (d *Decision) KeptBy(name string) []Selection {
	var out []Selection
	for _, s := range d.Selections {
		if s.Snapshot.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// PruneNames returns the literal names handed to the destroy collaborator.
func (d *Decision) PruneNames() []string {
	return names(d.Prune)
}

func (d *Decision) KeepNames() []string {
	return names(d.Keep)
}

func (d *Decision) PendingNames() []string {
	return names(d.Pending)
}

// Considered is the number of snapshots the decision covers.
func (d *Decision) Considered() int {
	return len(d.Keep) + len(d.Prune) + len(d.Pending)
}

func names(snaps []snapshot.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.Name
	}
	return out
}
