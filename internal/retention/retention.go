// Package retention decides which snapshots are kept and which may be pruned.
// It is a pure computation: no clock reads and no I/O.
package retention

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/keepoid/keepoid/internal/config"
	"github.com/keepoid/keepoid/internal/snapshot"
)

type Engine struct {
	mu       sync.RWMutex
	policies []Policy
	grace    time.Duration
	loc      *time.Location
	workers  int
	log      *zap.Logger
}

func New(cfg *config.Config, log *zap.Logger) *Engine {
	e := &Engine{log: log.Named("retention")}
	e.UpdateConfig(cfg)
	return e
}

// UpdateConfig swaps in new rules; runs already in progress keep the old ones.
func (e *Engine) UpdateConfig(cfg *config.Config) {
	policies := PoliciesFrom(cfg)
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = policies
	e.grace = cfg.Grace()
	e.loc = cfg.Location()
	e.workers = workers
}

type groupResult struct {
	keep       map[string]bool
	selections []Selection
	coverage   []Coverage
}

// Decide evaluates every rule against the inventory as of now.
// It returns ctx.Err() without a decision when ctx ends first.
func (e *Engine) Decide(ctx context.Context, inventory []snapshot.Snapshot, now time.Time) (*Decision, error) {
	e.mu.RLock()
	policies := e.policies
	grace := e.grace
	loc := e.loc
	workers := e.workers
	e.mu.RUnlock()

	groups := snapshot.Group(dedupe(inventory))
	datasets := groups.Datasets()
	results := make([]groupResult, len(datasets))

	eval := func(i int) {
		results[i] = e.evaluateGroup(policies, datasets[i], groups[datasets[i]], now, loc)
	}
	if err := forEach(ctx, len(datasets), workers, eval); err != nil {
		return nil, err
	}

	d := &Decision{Now: now}
	for i, ds := range datasets {
		r := results[i]
		d.Selections = append(d.Selections, r.selections...)
		d.Coverage = append(d.Coverage, r.coverage...)

		for _, s := range groups[ds] {
			switch {
			case r.keep[s.Name]:
				d.Keep = append(d.Keep, s)
			case now.Sub(s.Timestamp) > grace:
				d.Prune = append(d.Prune, s)
			default:
				d.Pending = append(d.Pending, s)
			}
		}
	}

	e.log.Debug("retention decided",
		zap.Time("now", now),
		zap.Int("datasets", len(datasets)),
		zap.Int("keep", len(d.Keep)),
		zap.Int("prune", len(d.Prune)),
		zap.Int("pending", len(d.Pending)),
	)

	return d, nil
}

// evaluateGroup unions the selections of every rule that applies to dataset.
func (e *Engine) evaluateGroup(policies []Policy, dataset string, sorted []snapshot.Snapshot, now time.Time, loc *time.Location) groupResult {
	r := groupResult{keep: map[string]bool{}}

	applied := 0
	for _, p := range policies {
		if !p.AppliesTo(dataset) {
			continue
		}
		applied++

		sel := Evaluate(p, sorted, now, loc)
		for _, s := range sel {
			r.keep[s.Snapshot.Name] = true
		}
		r.selections = append(r.selections, sel...)
		r.coverage = append(r.coverage, Coverage{
			Dataset: dataset,
			Rule:    p.Name,
			Slots:   p.Slots(),
			Filled:  len(sel),
		})

		if len(sel) < p.Slots() {
			e.log.Debug("rule slots unsatisfied",
				zap.String("dataset", dataset),
				zap.String("rule", p.Name),
				zap.Int("slots", p.Slots()),
				zap.Int("filled", len(sel)),
			)
		}
	}

	if applied == 0 {
		e.log.Warn("no retention rule applies to dataset", zap.String("dataset", dataset))
	}
	return r
}

// forEach runs fn(0..n-1) on up to workers goroutines.
func forEach(ctx context.Context, n, workers int, fn func(i int)) error {
	if workers <= 1 || n <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(i)
		}
		return ctx.Err()
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}

feed:
	for i := 0; i < n; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return ctx.Err()
}

// dedupe drops repeated names, keeping the first occurrence.
func dedupe(snaps []snapshot.Snapshot) []snapshot.Snapshot {
	seen := make(map[string]struct{}, len(snaps))
	out := make([]snapshot.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if _, ok := seen[s.Name]; ok {
			continue
		}
		seen[s.Name] = struct{}{}
		out = append(out, s)
	}
	return out
}
