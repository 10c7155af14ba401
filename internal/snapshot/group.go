package snapshot

import (
	"sort"
	"time"
)

// Groups maps a dataset path to its snapshots, oldest first.
type Groups map[string][]Snapshot

// Group partitions snaps by dataset. Each group is ordered by
// (Timestamp, Name) so later entries win ties.
func Group(snaps []Snapshot) Groups {
	g := Groups{}
	for _, s := range snaps {
		g[s.Dataset] = append(g[s.Dataset], s)
	}
	for _, list := range g {
		Sort(list)
	}
	return g
}

// Datasets returns the group keys in lexical order.
func (g Groups) Datasets() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sort orders snaps by (Timestamp, Name).
func Sort(snaps []Snapshot) {
	sort.Slice(snaps, func(i, j int) bool {
		return Less(snaps[i], snaps[j])
	})
}

func Less(a, b Snapshot) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Name < b.Name
}

// LatestAtOrBefore returns the index of the last snapshot in the sorted
// slice whose timestamp is not after t, or -1.
func LatestAtOrBefore(sorted []Snapshot, t time.Time) int {
	return sort.Search(len(sorted), func(i int) bool {
		return sorted[i].Timestamp.After(t)
	}) - 1
}
