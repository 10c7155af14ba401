// Package runner performs one retention run: list, decide, report, destroy,
// and record.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keepoid/keepoid/internal/config"
	"github.com/keepoid/keepoid/internal/core"
	"github.com/keepoid/keepoid/internal/journal"
	"github.com/keepoid/keepoid/internal/metrics"
	"github.com/keepoid/keepoid/internal/retention"
	"github.com/keepoid/keepoid/internal/snapshot"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options control a single run.
type Options struct {
	DryRun bool
	Now    time.Time // zero means the current time
	Output io.Writer // nil means stdout
	Format string    // text or json
}

type Runner struct {
	mu        sync.RWMutex
	cfg       *config.Config
	engine    *retention.Engine
	lister    Lister
	destroyer Destroyer
	journal   *journal.Journal
	metrics   *metrics.Registry
	clock     func() time.Time
	log       *zap.Logger
}

type Option func(*Runner)

func WithJournal(j *journal.Journal) Option { return func(r *Runner) { r.journal = j } }

func WithMetrics(m *metrics.Registry) Option { return func(r *Runner) { r.metrics = m } }

func WithClock(clock func() time.Time) Option { return func(r *Runner) { r.clock = clock } }

func New(cfg *config.Config, lister Lister, destroyer Destroyer, log *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		engine:    retention.New(cfg, log),
		lister:    lister,
		destroyer: destroyer,
		clock:     time.Now,
		log:       log.Named("runner"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// UpdateConfig applies a reloaded configuration to subsequent runs.
func (r *Runner) UpdateConfig(cfg *config.Config) {
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
	r.engine.UpdateConfig(cfg)
}

// Run evaluates retention once. A destroy failure still produces a report;
// the returned error then wraps core.ErrDestroyFailed.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	if err := CheckFormat(opts.Format); err != nil {
		return nil, err
	}

	r.mu.RLock()
	cfg := r.cfg
	r.mu.RUnlock()

	rep := &Report{
		ID:      uuid.NewString(),
		Started: r.clock(),
		DryRun:  opts.DryRun,
	}
	log := r.log.With(zap.String("run", rep.ID))

	now := opts.Now
	if now.IsZero() {
		now = rep.Started
	}

	err := r.run(ctx, cfg, now, opts, rep, log)
	rep.Duration = r.clock().Sub(rep.Started)

	r.record(ctx, rep, now, err, log)

	if err != nil {
		log.Error("run failed", zap.Error(err))
		return rep, err
	}
	log.Info("run complete",
		zap.Int("kept", len(rep.Decision.Keep)),
		zap.Int("pending", len(rep.Decision.Pending)),
		zap.Int("pruned", len(rep.Decision.Prune)),
		zap.Bool("dryRun", opts.DryRun),
		zap.Duration("duration", rep.Duration),
	)
	return rep, nil
}

func (r *Runner) run(ctx context.Context, cfg *config.Config, now time.Time, opts Options, rep *Report, log *zap.Logger) error {
	records, err := r.lister.List(ctx, cfg.Path)
	if err != nil {
		return core.WrapError(core.ErrListFailed, err)
	}

	entries := make([]snapshot.Entry, len(records))
	for i, rec := range records {
		entries[i] = snapshot.Entry{Name: rec.Name, Creation: rec.Creation}
	}
	inventory, skipped := parserFor(cfg).ParseEntries(entries, log)
	rep.Skipped = len(skipped)
	log.Debug("inventory parsed", zap.Int("listed", len(records)), zap.Int("managed", len(inventory)), zap.Int("skipped", len(skipped)))

	decision, err := r.engine.Decide(ctx, inventory, now)
	if err != nil {
		return err
	}
	rep.Decision = decision

	prune := decision.PruneNames()
	if !opts.DryRun && len(prune) > 0 {
		results, destroyErr := r.destroyer.DestroyAll(ctx, prune)
		for _, res := range results {
			if res.Err != nil {
				rep.Failed = append(rep.Failed, Failure{Name: res.Name, Error: res.Err.Error()})
				continue
			}
			rep.Destroyed = append(rep.Destroyed, res.Name)
		}
		if destroyErr != nil {
			// still write the report so the operator sees what happened
			if werr := writeReport(rep, opts); werr != nil {
				log.Warn("writing report", zap.Error(werr))
			}
			return core.WrapError(core.ErrDestroyFailed, destroyErr)
		}
	}

	return writeReport(rep, opts)
}

// CheckFormat rejects report formats other than text and json.
func CheckFormat(format string) error {
	switch format {
	case "", FormatText, FormatJSON:
		return nil
	}
	return fmt.Errorf("unknown report format %q", format)
}

func writeReport(rep *Report, opts Options) error {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	var err error
	switch opts.Format {
	case FormatJSON:
		err = rep.WriteJSON(out)
	default:
		err = rep.WriteText(out)
	}
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// record updates the journal and metrics. Failures here are logged, never
// returned, so they cannot mask the outcome of the run itself.
func (r *Runner) record(ctx context.Context, rep *Report, now time.Time, runErr error, log *zap.Logger) {
	d := rep.Decision

	if r.metrics != nil {
		if d != nil {
			r.metrics.SetSnapshots(len(d.Keep), len(d.Pending), len(d.Prune))
			r.metrics.ResetCoverage()
			for _, c := range d.Coverage {
				r.metrics.SetCoverage(c.Dataset, c.Rule, c.Slots, c.Filled)
			}
			if rep.DryRun {
				for range d.Prune {
					r.metrics.RecordDestroy(metrics.OutcomeSkipped)
				}
			}
		}
		for range rep.Destroyed {
			r.metrics.RecordDestroy(metrics.OutcomeDestroyed)
		}
		for range rep.Failed {
			r.metrics.RecordDestroy(metrics.OutcomeFailed)
		}
		r.metrics.RecordRun(rep.Duration, rep.Started.Add(rep.Duration), runErr == nil)

		r.mu.RLock()
		textfile := r.cfg.Metrics.Textfile
		r.mu.RUnlock()
		if textfile != "" {
			if err := r.metrics.WriteTextfile(textfile); err != nil {
				log.Warn("metrics textfile not written", zap.Error(err))
			}
		}
	}

	if r.journal == nil || errors.Is(runErr, context.Canceled) {
		return
	}

	run := journal.Run{
		ID:       rep.ID,
		Started:  rep.Started,
		Finished: rep.Started.Add(rep.Duration),
		Now:      now,
		DryRun:   rep.DryRun,
		Failed:   len(rep.Failed),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if d != nil {
		run.Kept, run.Pending, run.Pruned = len(d.Keep), len(d.Pending), len(d.Prune)
		run.Actions = actionsFor(rep)
	}

	// a cancelled run context must not lose the journal row
	if err := r.journal.Record(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("journal not updated", zap.Error(core.WrapError(core.ErrJournalFailed, err)))
	}
}

func actionsFor(rep *Report) []journal.Action {
	if rep.DryRun {
		names := rep.Decision.PruneNames()
		out := make([]journal.Action, len(names))
		for i, n := range names {
			out[i] = journal.Action{Snapshot: n, Outcome: journal.OutcomeDryRun}
		}
		return out
	}

	var out []journal.Action
	for _, n := range rep.Destroyed {
		out = append(out, journal.Action{Snapshot: n, Outcome: journal.OutcomeDestroyed})
	}
	for _, f := range rep.Failed {
		out = append(out, journal.Action{Snapshot: f.Name, Outcome: journal.OutcomeFailed, Error: f.Error})
	}
	return out
}

func parserFor(cfg *config.Config) snapshot.Parser {
	return snapshot.Parser{
		Root:        cfg.Path,
		Identifier:  cfg.Identifier,
		Layout:      cfg.TimestampFormat,
		Location:    cfg.Location(),
		SkipParent:  cfg.SkipParent,
		UseCreation: cfg.TimestampSource == config.TimestampFromCreation,
	}
}
