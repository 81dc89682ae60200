package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/nwanne56/PlanetTerp/internal/database"
	"github.com/nwanne56/PlanetTerp/internal/database/dbtest"
	"github.com/nwanne56/PlanetTerp/internal/logging"
	"github.com/nwanne56/PlanetTerp/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2019, time.September, 1, 12, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return t0.AddDate(0, 0, n)
}

// fixture seeds the PlanetTerp tables of a throwaway database
type fixture struct {
	t  *testing.T
	db *database.DB
}

func newFixture(t *testing.T) *fixture {
	return &fixture{t: t, db: dbtest.NewSQLite(t)}
}

func (f *fixture) exec(query string, args ...interface{}) {
	f.t.Helper()
	dbtest.Exec(f.t, f.db, query, args...)
}

func (f *fixture) count(query string, args ...interface{}) int {
	f.t.Helper()
	return dbtest.Count(f.t, f.db, query, args...)
}

func (f *fixture) user(id int64, email interface{}) {
	f.t.Helper()
	f.exec(`INSERT INTO users (id, email) VALUES (?, ?)`, id, email)
}

func (f *fixture) professor(id int64, slug interface{}, created time.Time) {
	f.t.Helper()
	f.exec(`INSERT INTO professors (id, slug, created) VALUES (?, ?, ?)`, id, slug, created)
}

func (f *fixture) review(id, professorID int64, reviewerID interface{}) {
	f.t.Helper()
	f.exec(`INSERT INTO reviews (id, professor_id, reviewer_id) VALUES (?, ?, ?)`, id, professorID, reviewerID)
}

func (f *fixture) course(id int64, dept, number string, created time.Time) {
	f.t.Helper()
	f.exec(`INSERT INTO courses (id, department, course_number, created) VALUES (?, ?, ?, ?)`, id, dept, number, created)
}

func (f *fixture) historicalCourse(id int64, dept, number string, created time.Time) {
	f.t.Helper()
	f.exec(`INSERT INTO courses_historical (id, department, course_number, created) VALUES (?, ?, ?, ?)`, id, dept, number, created)
}

func (f *fixture) professorCourse(professorID, courseID int64) {
	f.t.Helper()
	f.exec(`INSERT INTO professor_courses (professor_id, course_id) VALUES (?, ?)`, professorID, courseID)
}

// grade inserts a row into grades or grades_historical with distinguishable bucket counts
func (f *fixture) grade(table string, id, courseID int64, professorID interface{}, seed int) {
	f.t.Helper()
	g := gradeRow(id, courseID, seed)
	f.exec(`INSERT INTO `+table+` (id, semester, course_id, section, professor_id, num_students,
		"APLUS", "A", "AMINUS", "BPLUS", "B", "BMINUS", "CPLUS", "C", "CMINUS",
		"DPLUS", "D", "DMINUS", "F", "W", "OTHER")
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Semester, g.CourseID, g.Section, professorID, g.NumStudents,
		g.APlus, g.A, g.AMinus, g.BPlus, g.B, g.BMinus, g.CPlus, g.C, g.CMinus,
		g.DPlus, g.D, g.DMinus, g.F, g.W, g.Other)
}

func gradeRow(id, courseID int64, seed int) models.Grade {
	g := models.Grade{ID: id, Semester: "201908", CourseID: courseID, NumStudents: seed * 15}
	g.Section.String, g.Section.Valid = "0101", true
	g.GradeCounts = models.GradeCounts{
		APlus: seed, A: seed + 1, AMinus: seed + 2,
		BPlus: seed + 3, B: seed + 4, BMinus: seed + 5,
		CPlus: seed + 6, C: seed + 7, CMinus: seed + 8,
		DPlus: seed + 9, D: seed + 10, DMinus: seed + 11,
		F: seed + 12, W: seed + 13, Other: seed + 14,
	}
	return g
}

func (f *fixture) courseIDsOf(table string) map[int64]int64 {
	f.t.Helper()
	var rows []struct {
		ID       int64 `db:"id"`
		CourseID int64 `db:"course_id"`
	}
	require.NoError(f.t, f.db.SelectContext(context.Background(), &rows, `SELECT id, course_id FROM `+table+` ORDER BY id`))

	ids := make(map[int64]int64, len(rows))
	for _, r := range rows {
		ids[r.ID] = r.CourseID
	}
	return ids
}

// professorIDsOf maps row id to professor_id, with NULL reported as 0
func (f *fixture) professorIDsOf(table string) map[int64]int64 {
	f.t.Helper()
	var rows []struct {
		ID          int64 `db:"id"`
		ProfessorID int64 `db:"professor_id"`
	}
	require.NoError(f.t, f.db.SelectContext(context.Background(), &rows, `SELECT id, COALESCE(professor_id, 0) AS professor_id FROM `+table+` ORDER BY id`))

	ids := make(map[int64]int64, len(rows))
	for _, r := range rows {
		ids[r.ID] = r.ProfessorID
	}
	return ids
}

func (f *fixture) courses() map[models.CourseKey]int64 {
	f.t.Helper()
	var rows []models.Course
	require.NoError(f.t, f.db.SelectContext(context.Background(), &rows, `SELECT id, department, course_number, created FROM courses`))

	byKey := make(map[models.CourseKey]int64, len(rows))
	for _, c := range rows {
		byKey[c.Key()] = c.ID
	}
	return byKey
}

func stepOptions(opts Options) Options {
	defaults := DefaultOptions()
	if opts.MatchedCourseMode == "" {
		opts.MatchedCourseMode = defaults.MatchedCourseMode
	}
	if opts.SentinelReviewerID == 0 {
		opts.SentinelReviewerID = defaults.SentinelReviewerID
	}
	if opts.FallbackReviewerID == 0 {
		opts.FallbackReviewerID = defaults.FallbackReviewerID
	}
	return opts
}

// step runs fn in its own committed transaction
func (f *fixture) step(fn func(context.Context, *Env) (StepResult, error), opts Options) StepResult {
	f.t.Helper()
	result, err := f.stepErr(fn, opts)
	require.NoError(f.t, err)
	return result
}

// stepErr runs fn and commits only if it succeeds
func (f *fixture) stepErr(fn func(context.Context, *Env) (StepResult, error), opts Options) (StepResult, error) {
	f.t.Helper()
	ctx := context.Background()

	tx, err := f.db.BeginTxx(ctx, nil)
	require.NoError(f.t, err)
	defer tx.Rollback()

	env := &Env{Tx: tx, Dialect: f.db.Dialect, Options: stepOptions(opts), Logger: logging.Discard()}
	result, err := fn(ctx, env)
	if err != nil {
		return result, err
	}
	require.NoError(f.t, tx.Commit())
	return result, nil
}

func (f *fixture) runner(opts Options) *Runner {
	f.t.Helper()
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return t0 }
	}
	r, err := NewRunner(f.db, opts, logging.Discard())
	require.NoError(f.t, err)
	return r
}
