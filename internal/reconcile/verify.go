package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/nwanne56/PlanetTerp/internal/database"
	"github.com/nwanne56/PlanetTerp/internal/errors"
	"golang.org/x/sync/errgroup"
)

// Check is one read-only invariant over the store
type Check struct {
	Name        string
	Description string
	// Requires lists the steps that establish the invariant
	Requires []string
	query    func(d database.Dialect) string
	args     func(v *Verifier) []interface{}
}

// CheckResult is the outcome of one check
type CheckResult struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Violations  int64  `json:"violations" yaml:"violations"`
}

// Verification collects check outcomes in check order
type Verification struct {
	Checks []CheckResult `json:"checks" yaml:"checks"`
}

// OK reports whether every check passed
func (v *Verification) OK() bool {
	return len(v.Failed()) == 0
}

// Failed returns the checks with at least one violation
func (v *Verification) Failed() []CheckResult {
	var failed []CheckResult
	for _, c := range v.Checks {
		if c.Violations > 0 {
			failed = append(failed, c)
		}
	}
	return failed
}

// Err returns a validation error naming the failed checks, or nil
func (v *Verification) Err() error {
	failed := v.Failed()
	if len(failed) == 0 {
		return nil
	}

	names := make([]string, len(failed))
	for i, c := range failed {
		names[i] = fmt.Sprintf("%s=%d", c.Name, c.Violations)
	}
	return errors.ValidationErrorf("%d invariant checks failed: %s", len(failed), strings.Join(names, ", ")).
		WithContext("failed_checks", len(failed))
}

func static(query string) func(database.Dialect) string {
	return func(database.Dialect) string { return query }
}

// Checks returns every invariant check
func Checks() []Check {
	return []Check{
		{
			Name:        "long_or_empty_emails",
			Description: "user emails longer than 254 characters or empty",
			Requires:    []string{StepSanitize},
			query: func(d database.Dialect) string {
				return fmt.Sprintf(`SELECT COUNT(*) FROM users WHERE %s > %d OR email = ''`, d.CharLength("email"), maxEmailLength)
			},
		},
		{
			Name:        "negative_professor_refs",
			Description: "rows referencing a negative professor id",
			Requires:    []string{StepSanitize},
			query: static(`SELECT
				(SELECT COUNT(*) FROM reviews WHERE professor_id < 0) +
				(SELECT COUNT(*) FROM grades WHERE professor_id < 0) +
				(SELECT COUNT(*) FROM grades_historical WHERE professor_id < 0) +
				(SELECT COUNT(*) FROM professor_courses WHERE professor_id < 0)`),
		},
		{
			Name:        "negative_professor_ids",
			Description: "professors with a negative id",
			Requires:    []string{StepSanitize},
			query:       static(`SELECT COUNT(*) FROM professors WHERE id < 0`),
		},
		{
			Name:        "sentinel_reviewer_refs",
			Description: "reviews by the sentinel reviewer",
			Requires:    []string{StepCollapseReviewer},
			query:       static(`SELECT COUNT(*) FROM reviews WHERE reviewer_id = ?`),
			args:        func(v *Verifier) []interface{} { return []interface{}{v.SentinelReviewerID} },
		},
		{
			Name:        "duplicate_slugs",
			Description: "slugs shared by more than one professor",
			Requires:    []string{StepDedupeProfessors},
			query: static(`SELECT COUNT(*) FROM (
				SELECT slug FROM professors WHERE slug IS NOT NULL GROUP BY slug HAVING COUNT(*) > 1
			) dup`),
		},
		{
			Name:        "unmatched_historical_courses",
			Description: "historical courses with no current course sharing their natural key",
			Requires:    []string{StepBackfillCourses},
			query: static(`SELECT COUNT(*) FROM courses_historical h
				LEFT JOIN courses c ON c.department = h.department AND c.course_number = h.course_number
				WHERE c.id IS NULL`),
		},
		{
			Name:        "duplicate_course_keys",
			Description: "historical natural keys present more than once in courses",
			Requires:    []string{StepBackfillCourses},
			query: static(`SELECT COUNT(*) FROM (
				SELECT c.department, c.course_number FROM courses c
				JOIN (SELECT DISTINCT department, course_number FROM courses_historical) h
					ON c.department = h.department AND c.course_number = h.course_number
				GROUP BY c.department, c.course_number HAVING COUNT(*) > 1
			) dup`),
		},
		{
			Name:        "dangling_historical_grade_courses",
			Description: "historical grades whose course_id has no course",
			Requires:    []string{StepBackfillCourses, StepReconcileCourses, StepSettleCourseIDs},
			query: static(`SELECT COUNT(*) FROM grades_historical g
				LEFT JOIN courses c ON c.id = g.course_id
				WHERE c.id IS NULL`),
		},
		{
			Name:        "staged_course_ids",
			Description: "historical grades left with a staged course id",
			Requires:    []string{StepSettleCourseIDs},
			query:       static(`SELECT COUNT(*) FROM grades_historical WHERE course_id < 0`),
		},
	}
}

// Verifier runs invariant checks against a store
type Verifier struct {
	Dialect            database.Dialect
	SentinelReviewerID int64
}

// Applicable returns the checks whose required steps all ran.
// A nil ran means every step ran.
func Applicable(ran []string) []Check {
	if ran == nil {
		return Checks()
	}

	done := make(map[string]bool, len(ran))
	for _, name := range ran {
		done[name] = true
	}

	var checks []Check
	for _, c := range Checks() {
		ok := true
		for _, req := range c.Requires {
			if !done[req] {
				ok = false
				break
			}
		}
		if ok {
			checks = append(checks, c)
		}
	}
	return checks
}

// Verify runs checks one after another on q, which may be an open transaction
func (v *Verifier) Verify(ctx context.Context, q sqlx.QueryerContext, checks []Check) (*Verification, error) {
	result := &Verification{Checks: make([]CheckResult, 0, len(checks))}
	for _, c := range checks {
		cr, err := v.run(ctx, q, c)
		if err != nil {
			return nil, err
		}
		result.Checks = append(result.Checks, cr)
	}
	return result, nil
}

// VerifyConcurrently runs checks in parallel over the pool
func (v *Verifier) VerifyConcurrently(ctx context.Context, db *sqlx.DB, checks []Check) (*Verification, error) {
	results := make([]CheckResult, len(checks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, c := range checks {
		g.Go(func() error {
			cr, err := v.run(gctx, db, c)
			if err != nil {
				return err
			}
			results[i] = cr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Verification{Checks: results}, nil
}

func (v *Verifier) run(ctx context.Context, q sqlx.QueryerContext, c Check) (CheckResult, error) {
	var args []interface{}
	if c.args != nil {
		args = c.args(v)
	}

	var n int64
	if err := sqlx.GetContext(ctx, q, &n, v.Dialect.Rebind(c.query(v.Dialect)), args...); err != nil {
		return CheckResult{}, errors.Classify(err, "check "+c.Name)
	}
	return CheckResult{Name: c.Name, Description: c.Description, Violations: n}, nil
}
