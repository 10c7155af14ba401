// Package metrics exposes retention run statistics to Prometheus, either
// through the node_exporter textfile collector or an HTTP endpoint.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Snapshot states.
const (
	StateKeep    = "keep"
	StatePending = "pending"
	StatePrune   = "prune"
)

// Destroy outcomes.
const (
	OutcomeDestroyed = "destroyed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped" // dry run
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	snapshots       *prometheus.GaugeVec
	ruleSlots       *prometheus.GaugeVec
	ruleFilled      *prometheus.GaugeVec
	destroys        *prometheus.CounterVec
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	lastSuccess     prometheus.Gauge
	lastRunDuration prometheus.Gauge
}

// NewRegistry creates a registry with every keepoid metric registered.
// withRuntime adds the Go and process collectors, which only make sense
// for a long running process.
func NewRegistry(withRuntime bool) *Registry {
	reg := prometheus.NewRegistry()

	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	r := &Registry{
		Registry: reg,

		snapshots: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keepoid_snapshots",
				Help: "Snapshots considered in the last run by state",
			},
			[]string{"state"},
		),
		ruleSlots: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keepoid_rule_slots",
				Help: "Slots a retention rule tries to fill for a dataset",
			},
			[]string{"dataset", "rule"},
		),
		ruleFilled: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keepoid_rule_slots_filled",
				Help: "Slots of a retention rule holding a snapshot in the last run",
			},
			[]string{"dataset", "rule"},
		),
		destroys: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keepoid_destroys_total",
				Help: "Snapshot destroy attempts by outcome",
			},
			[]string{"outcome"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keepoid_runs_total",
				Help: "Retention runs by result",
			},
			[]string{"result"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "keepoid_run_duration_seconds",
				Help:    "Retention run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "keepoid_last_success_timestamp_seconds",
				Help: "Unix time of the last successful run",
			},
		),
		lastRunDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "keepoid_last_run_duration_seconds",
				Help: "Duration of the last run in seconds",
			},
		),
	}

	reg.MustRegister(r.snapshots)
	reg.MustRegister(r.ruleSlots)
	reg.MustRegister(r.ruleFilled)
	reg.MustRegister(r.destroys)
	reg.MustRegister(r.runs)
	reg.MustRegister(r.runDuration)
	reg.MustRegister(r.lastSuccess)
	reg.MustRegister(r.lastRunDuration)

	return r
}

// SetSnapshots records how many snapshots ended in each state.
func (r *Registry) SetSnapshots(keep, pending, prune int) {
	r.snapshots.WithLabelValues(StateKeep).Set(float64(keep))
	r.snapshots.WithLabelValues(StatePending).Set(float64(pending))
	r.snapshots.WithLabelValues(StatePrune).Set(float64(prune))
}

// ResetCoverage drops the rule gauges so datasets that disappeared
// between runs are not reported forever.
func (r *Registry) ResetCoverage() {
	r.ruleSlots.Reset()
	r.ruleFilled.Reset()
}

func (r *Registry) SetCoverage(dataset, rule string, slots, filled int) {
	r.ruleSlots.WithLabelValues(dataset, rule).Set(float64(slots))
	r.ruleFilled.WithLabelValues(dataset, rule).Set(float64(filled))
}

func (r *Registry) RecordDestroy(outcome string) {
	r.destroys.WithLabelValues(outcome).Inc()
}

// RecordRun records a finished run. finished is only used on success.
func (r *Registry) RecordRun(duration time.Duration, finished time.Time, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	r.runs.WithLabelValues(result).Inc()
	r.runDuration.Observe(duration.Seconds())
	r.lastRunDuration.Set(duration.Seconds())
	if success {
		r.lastSuccess.Set(float64(finished.Unix()))
	}
}

// WriteTextfile atomically writes every metric for the node_exporter
// textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.Registry); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{})
}
