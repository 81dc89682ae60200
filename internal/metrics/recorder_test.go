package metrics

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nwanne56/PlanetTerp/internal/errors"
	"github.com/nwanne56/PlanetTerp/internal/reconcile"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var finished = time.Date(2024, time.January, 15, 3, 0, 0, 0, time.UTC)

func committedReport() *reconcile.Report {
	return &reconcile.Report{
		RunID:      "run-1",
		Committed:  true,
		StartedAt:  finished.Add(-2 * time.Second),
		FinishedAt: finished,
		Steps: []reconcile.StepReport{
			{
				Name:     reconcile.StepSanitize,
				Duration: 300 * time.Millisecond,
				Counts:   []reconcile.Count{{Action: "emails_nulled", Rows: 4}, {Action: "professors_deleted", Rows: 1}},
			},
			{
				Name:     reconcile.StepMigrateGrades,
				Duration: time.Second,
				Counts:   []reconcile.Count{{Action: "grades_copied", Rows: 120}},
			},
		},
		Verification: &reconcile.Verification{Checks: []reconcile.CheckResult{{Name: "duplicate_slugs"}}},
	}
}

func TestObserve(t *testing.T) {
	r := NewRecorder()
	r.Observe(committedReport())

	assert.Equal(t, 4.0, testutil.ToFloat64(r.rows.WithLabelValues(reconcile.StepSanitize, "emails_nulled")))
	assert.Equal(t, 120.0, testutil.ToFloat64(r.rows.WithLabelValues(reconcile.StepMigrateGrades, "grades_copied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues(OutcomeCommitted)))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(r.lastRun.WithLabelValues(OutcomeCommitted)))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.violations.WithLabelValues("duplicate_slugs")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.stepDuration))
}

func TestObserve_NilReport(t *testing.T) {
	r := NewRecorder()
	r.Observe(nil)
	assert.Equal(t, 0, testutil.CollectAndCount(r.runs))
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name   string
		report reconcile.Report
		want   string
	}{
		{"committed", reconcile.Report{Committed: true}, OutcomeCommitted},
		{"dry run", reconcile.Report{DryRun: true}, OutcomeRolledBack},
		{"failed", reconcile.Report{Error: "constraint violation"}, OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(&tt.report))
		})
	}
}

func TestObserveFailure(t *testing.T) {
	r := NewRecorder()
	r.ObserveFailure(stderrors.New("connection refused"), finished)
	r.ObserveFailure(nil, finished)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues(OutcomeFailed)))
}

func TestPush(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotMethod = req.Method
		gotPath = req.URL.Path
		body, _ := io.ReadAll(req.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r := NewRecorder()
	r.Observe(committedReport())
	require.NoError(t, r.Push(context.Background(), server.URL, "planetterp_reconcile"))

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/metrics/job/planetterp_reconcile", gotPath)
	assert.Contains(t, gotBody, "planetterp_reconcile_rows_total")
}

func TestPush_Disabled(t *testing.T) {
	r := NewRecorder()
	assert.NoError(t, r.Push(context.Background(), "", "planetterp_reconcile"))
}

func TestPush_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	r := NewRecorder()
	err := r.Push(context.Background(), server.URL, "planetterp_reconcile")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnectivity))
}
