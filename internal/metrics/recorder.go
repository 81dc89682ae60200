// Package metrics records reconciliation runs as Prometheus series and pushes
// them to a Pushgateway, since a batch job does not live long enough to be scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/nwanne56/PlanetTerp/internal/errors"
	"github.com/nwanne56/PlanetTerp/internal/reconcile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Run outcomes
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeFailed     = "failed"
)

// Recorder owns a private registry so pushes carry only reconciliation series
type Recorder struct {
	registry *prometheus.Registry

	rows         *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	lastRun      *prometheus.GaugeVec
	runs         *prometheus.CounterVec
	violations   *prometheus.GaugeVec
}

// NewRecorder registers the reconciliation series on a fresh registry
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		rows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "planetterp_reconcile_rows_total",
			Help: "Rows affected by reconciliation steps",
		}, []string{"step", "action"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planetterp_reconcile_step_duration_seconds",
			Help:    "Time spent in each reconciliation step",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"step"}),
		lastRun: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "planetterp_reconcile_last_run_timestamp_seconds",
			Help: "Unix time the last reconciliation run finished",
		}, []string{"outcome"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "planetterp_reconcile_runs_total",
			Help: "Reconciliation runs by outcome",
		}, []string{"outcome"}),
		violations: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "planetterp_reconcile_invariant_violations",
			Help: "Violations found by each invariant check in the last run",
		}, []string{"check"}),
	}
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe records a finished run. Row counts of a run that did not commit are
// still recorded, labelled by what the steps did inside the rolled back transaction.
func (r *Recorder) Observe(report *reconcile.Report) {
	if report == nil {
		return
	}

	for _, step := range report.Steps {
		r.stepDuration.WithLabelValues(step.Name).Observe(step.Duration.Seconds())
		for _, c := range step.Counts {
			r.rows.WithLabelValues(step.Name, c.Action).Add(float64(c.Rows))
		}
	}

	if report.Verification != nil {
		for _, c := range report.Verification.Checks {
			r.violations.WithLabelValues(c.Name).Set(float64(c.Violations))
		}
	}

	outcome := Outcome(report)
	r.runs.WithLabelValues(outcome).Inc()
	r.lastRun.WithLabelValues(outcome).Set(timestamp(report.FinishedAt))
}

// ObserveFailure records a run that failed before producing a report
func (r *Recorder) ObserveFailure(err error, at time.Time) {
	if err == nil {
		return
	}
	r.runs.WithLabelValues(OutcomeFailed).Inc()
	r.lastRun.WithLabelValues(OutcomeFailed).Set(timestamp(at))
}

// Outcome classifies a report
func Outcome(report *reconcile.Report) string {
	switch {
	case report.Error != "":
		return OutcomeFailed
	case report.Committed:
		return OutcomeCommitted
	default:
		return OutcomeRolledBack
	}
}

// Push sends every series to the Pushgateway at url under job, replacing the
// previous push for that job
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}

	pusher := push.New(url, job).Gatherer(r.registry)
	if err := pusher.PushContext(ctx); err != nil {
		return errors.ConnectivityError(err, fmt.Sprintf("push metrics to %s", url))
	}
	return nil
}

func timestamp(t time.Time) float64 {
	if t.IsZero() {
		t = time.Now()
	}
	return float64(t.UnixNano()) / 1e9
}
