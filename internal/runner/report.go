package runner

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/keepoid/keepoid/internal/retention"
)

// Report is the outcome of one run.
type Report struct {
	ID       string
	Started  time.Time
	Duration time.Duration
	DryRun   bool

	Decision  *retention.Decision
	Skipped   int
	Destroyed []string
	Failed    []Failure
}

// Failure is a snapshot that could not be destroyed.
type Failure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// WriteText prints one `<state>\t<name>` line per snapshot and a summary.
func (r *Report) WriteText(w io.Writer) error {
	d := r.Decision
	for _, line := range []struct {
		state string
		names []string
	}{
		{"keep", d.KeepNames()},
		{"pending", d.PendingNames()},
		{"prune", d.PruneNames()},
	} {
		for _, n := range line.names {
			if _, err := fmt.Fprintf(w, "%s\t%s\n", line.state, n); err != nil {
				return err
			}
		}
	}

	for _, f := range r.Failed {
		if _, err := fmt.Fprintf(w, "failed\t%s\t%s\n", f.Name, f.Error); err != nil {
			return err
		}
	}

	mode := ""
	if r.DryRun {
		mode = " (dry run)"
	}
	_, err := fmt.Fprintf(w, "# %d kept, %d pending, %d to prune, %d destroyed, %d failed%s\n",
		len(d.Keep), len(d.Pending), len(d.Prune), len(r.Destroyed), len(r.Failed), mode)
	return err
}

type jsonSelection struct {
	Rule     string    `json:"rule"`
	Index    int       `json:"index"`
	Boundary time.Time `json:"boundary"`
	Snapshot string    `json:"snapshot"`
}

type jsonReport struct {
	ID         string          `json:"id"`
	Now        time.Time       `json:"now"`
	DryRun     bool            `json:"dryRun"`
	Keep       []string        `json:"keep"`
	Pending    []string        `json:"pending"`
	Prune      []string        `json:"prune"`
	Destroyed  []string        `json:"destroyed"`
	Failed     []Failure       `json:"failed"`
	Selections []jsonSelection `json:"selections"`
}

func (r *Report) WriteJSON(w io.Writer) error {
	d := r.Decision
	out := jsonReport{
		ID:         r.ID,
		Now:        d.Now,
		DryRun:     r.DryRun,
		Keep:       d.KeepNames(),
		Pending:    d.PendingNames(),
		Prune:      d.PruneNames(),
		Destroyed:  nonNil(r.Destroyed),
		Failed:     r.Failed,
		Selections: make([]jsonSelection, len(d.Selections)),
	}
	if out.Failed == nil {
		out.Failed = []Failure{}
	}
	for i, s := range d.Selections {
		out.Selections[i] = jsonSelection{
			Rule:     s.Rule,
			Index:    s.Index,
			Boundary: s.Boundary,
			Snapshot: s.Snapshot.Name,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
