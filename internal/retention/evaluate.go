package retention

import (
	"time"

	"github.com/keepoid/keepoid/internal/snapshot"
)

// Selection records the snapshot holding one boundary of a rule.
type Selection struct {
	Rule     string
	Dataset  string
	Index    int
	Boundary time.Time
	Snapshot snapshot.Snapshot
}

// Evaluate picks, for each boundary of p, the newest unclaimed snapshot in
// the window (previous boundary, boundary]. Equal timestamps resolve to the
// greatest name. sorted must be ordered by snapshot.Less. Boundaries with an
// empty window produce no selection.
func Evaluate(p Policy, sorted []snapshot.Snapshot, now time.Time, loc *time.Location) []Selection {
	var (
		out     []Selection
		claimed = map[string]bool{}
	)

	edges := p.edges(now, loc)
	for i := 0; i+1 < len(edges); i++ {
		b, lower := edges[i], edges[i+1]

		for j := snapshot.LatestAtOrBefore(sorted, b); j >= 0 && sorted[j].Timestamp.After(lower); j-- {
			s := sorted[j]
			if claimed[s.Name] {
				continue
			}
			claimed[s.Name] = true
			out = append(out, Selection{
				Rule:     p.Name,
				Dataset:  s.Dataset,
				Index:    i,
				Boundary: b,
				Snapshot: s,
			})
			break
		}
	}

	return out
}
