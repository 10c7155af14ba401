// Package worker executes retention runs one at a time from a mailbox.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/keepoid/keepoid/internal/mailbox"
)

// RunFunc performs one retention run.
type RunFunc func(ctx context.Context, job Job) error

// Worker never runs two jobs at once. Jobs queued while a run is in
// progress collapse into a single follow-up run.
type Worker struct {
	mb  *mailbox.Mailbox[Job]
	run RunFunc
	log *zap.Logger
}

// New creates a worker that takes jobs from mb.
func New(mb *mailbox.Mailbox[Job], run RunFunc, log *zap.Logger) *Worker {
	log.Debug("creating worker")
	return &Worker{
		mb:  mb,
		run: run,
		log: log.Named("worker"),
	}
}

// Submit queues a run, replacing any run still waiting.
func (w *Worker) Submit(reason string) {
	w.mb.Put(Job{Reason: reason, Queued: time.Now()})
}

// Start runs the worker loop until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("starting worker")
	for {
		job, ok := w.mb.Take(ctx)
		if !ok {
			w.log.Info("worker stopped")
			return
		}
		w.Handle(ctx, job)
	}
}

// Handle executes a single job. A panic in the run is logged, not propagated.
func (w *Worker) Handle(ctx context.Context, job Job) {
	log := w.log.With(zap.String("reason", job.Reason), zap.Duration("waited", time.Since(job.Queued)))

	defer func() {
		if r := recover(); r != nil {
			log.Error("run panicked", zap.Any("panic", r))
		}
	}()

	log.Debug("run starting")
	if err := w.run(ctx, job); err != nil {
		log.Error("run failed", zap.Error(err))
		return
	}
	log.Debug("run finished")
}
