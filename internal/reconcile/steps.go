// Package reconcile merges the legacy historical tables into the current
// PlanetTerp schema and cleans up placeholder rows left by older imports.
package reconcile

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/nwanne56/PlanetTerp/internal/database"
	"github.com/nwanne56/PlanetTerp/internal/errors"
	"github.com/sirupsen/logrus"
)

// Step names, in execution order
const (
	StepSanitize         = "sanitize"
	StepCollapseReviewer = "collapse-reviewer"
	StepDedupeProfessors = "dedupe-professors"
	StepBackfillCourses  = "backfill-courses"
	StepReconcileCourses = "reconcile-courses"
	StepSettleCourseIDs  = "settle-course-ids"
	StepMigrateGrades    = "migrate-grades"
)

// Step is one discrete unit of the procedure
type Step struct {
	Name        string
	Description string
	Run         func(ctx context.Context, env *Env) (StepResult, error)
}

// Steps returns every step in the order it must run
func Steps() []Step {
	return []Step{
		{
			Name:        StepSanitize,
			Description: "Null invalid emails and delete rows tied to negative professor ids",
			Run:         sanitize,
		},
		{
			Name:        StepCollapseReviewer,
			Description: "Remap reviews by the sentinel reviewer to the fallback user",
			Run:         collapseReviewer,
		},
		{
			Name:        StepDedupeProfessors,
			Description: "Merge professors sharing a slug into the oldest one",
			Run:         dedupeProfessors,
		},
		{
			Name:        StepBackfillCourses,
			Description: "Insert historical courses missing from courses and re-point their grades",
			Run:         backfillCourses,
		},
		{
			Name:        StepReconcileCourses,
			Description: "Re-point historical grades of already matched courses",
			Run:         reconcileCourses,
		},
		{
			Name:        StepSettleCourseIDs,
			Description: "Finalize staged historical grade course ids",
			Run:         settleCourseIDs,
		},
		{
			Name:        StepMigrateGrades,
			Description: "Copy every historical grade row into grades",
			Run:         migrateGrades,
		},
	}
}

// StepNames returns the names of every step in order
func StepNames() []string {
	steps := Steps()
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}

// Count is the number of rows a step affected for one action
type Count struct {
	Action string `json:"action" yaml:"action"`
	Rows   int64  `json:"rows" yaml:"rows"`
}

// StepResult holds per-action row counts in the order actions first occurred
type StepResult struct {
	Counts []Count
}

// newResult returns a result reporting every action, including those that end at zero
func newResult(actions ...string) StepResult {
	var r StepResult
	for _, a := range actions {
		r.Add(a, 0)
	}
	return r
}

// Add accumulates n rows under action
func (r *StepResult) Add(action string, n int64) {
	for i := range r.Counts {
		if r.Counts[i].Action == action {
			r.Counts[i].Rows += n
			return
		}
	}
	r.Counts = append(r.Counts, Count{Action: action, Rows: n})
}

// Get returns the rows recorded for action
func (r StepResult) Get(action string) int64 {
	for _, c := range r.Counts {
		if c.Action == action {
			return c.Rows
		}
	}
	return 0
}

// Env is what a step runs against: one open transaction plus run settings
type Env struct {
	Tx      sqlx.ExtContext
	Dialect database.Dialect
	Options Options
	Logger  logrus.FieldLogger
}

// exec runs a statement written with ? placeholders and returns rows affected
func (e *Env) exec(ctx context.Context, what, query string, args ...interface{}) (int64, error) {
	res, err := e.Tx.ExecContext(ctx, e.Dialect.Rebind(query), args...)
	if err != nil {
		return 0, errors.Classify(err, what)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.DatabaseError(err, fmt.Sprintf("%s: rows affected", what))
	}
	return n, nil
}

func (e *Env) get(ctx context.Context, what string, dest interface{}, query string, args ...interface{}) error {
	if err := sqlx.GetContext(ctx, e.Tx, dest, e.Dialect.Rebind(query), args...); err != nil {
		return errors.Classify(err, what)
	}
	return nil
}

func (e *Env) selectAll(ctx context.Context, what string, dest interface{}, query string, args ...interface{}) error {
	if err := sqlx.SelectContext(ctx, e.Tx, dest, e.Dialect.Rebind(query), args...); err != nil {
		return errors.Classify(err, what)
	}
	return nil
}
