package reconcile

import (
	"context"
	"database/sql"

	"github.com/nwanne56/PlanetTerp/internal/config"
	"github.com/nwanne56/PlanetTerp/internal/errors"
	"github.com/nwanne56/PlanetTerp/internal/models"
	"github.com/sirupsen/logrus"
)

// Re-pointed historical grade course ids are written negated and only flipped
// back by settleCourseIDs. A staged value can never equal a historical id still
// waiting to be processed, so no grade row is rewritten twice.

// oldestFirst orders historical courses by creation. A NULL created sorts as
// oldest, the same convention newestFirst uses for professors.
const oldestFirst = `ORDER BY (h.created IS NULL) DESC, h.created ASC, h.id ASC`

const repointHistoricalGrades = `UPDATE grades_historical SET course_id = ? WHERE course_id = ?`

func backfillCourses(ctx context.Context, env *Env) (StepResult, error) {
	result := newResult("courses_inserted", "historical_grades_repointed")

	if err := ensureNoStagedCourseIDs(ctx, env); err != nil {
		return result, err
	}

	var unmatched []models.Course
	if err := env.selectAll(ctx, "list unmatched historical courses", &unmatched,
		`SELECT h.id, h.department, h.course_number, h.created
		FROM courses_historical h
		LEFT JOIN courses c ON c.department = h.department AND c.course_number = h.course_number
		WHERE c.id IS NULL `+oldestFirst); err != nil {
		return result, err
	}
	if len(unmatched) == 0 {
		return result, nil
	}

	base, err := nextCourseID(ctx, env)
	if err != nil {
		return result, err
	}

	// Historical rows repeating a natural key share the id of the first occurrence
	assigned := make(map[models.CourseKey]int64)
	for _, h := range unmatched {
		id, ok := assigned[h.Key()]
		if !ok {
			id = base + int64(len(assigned))
			assigned[h.Key()] = id

			n, err := env.exec(ctx, "insert backfilled course",
				`INSERT INTO courses (id, department, course_number, created) VALUES (?, ?, ?, ?)`,
				id, h.Department, h.CourseNumber, h.Created)
			if err != nil {
				return result, withCourse(err, h)
			}
			result.Add("courses_inserted", n)
		}

		n, err := env.exec(ctx, "re-point historical grades to backfilled course", repointHistoricalGrades, -id, h.ID)
		if err != nil {
			return result, withCourse(err, h)
		}
		result.Add("historical_grades_repointed", n)
	}

	if err := env.Dialect.SyncSequence(ctx, env.Tx, "courses"); err != nil {
		return result, errors.Classify(err, "sync courses sequence")
	}

	env.Logger.WithFields(logrus.Fields{
		"first_id": base,
		"last_id":  base + int64(len(assigned)) - 1,
	}).Debug("backfilled historical courses")

	return result, nil
}

// stagesCourseIDs reports whether step writes negated course ids for settleCourseIDs
func stagesCourseIDs(step string) bool {
	return step == StepBackfillCourses || step == StepReconcileCourses
}

// ensureNoStagedCourseIDs fails when grades_historical already holds negative
// course ids. settleCourseIDs flips every negative id, so a legacy value would be
// turned into a course that does not exist.
func ensureNoStagedCourseIDs(ctx context.Context, env *Env) error {
	var staged int64
	if err := env.get(ctx, "count staged course ids", &staged,
		`SELECT COUNT(*) FROM grades_historical WHERE course_id < 0`); err != nil {
		return err
	}
	if staged > 0 {
		return errors.DataAssumptionErrorf(
			"grades_historical already holds %d negative course ids", staged).
			WithContext("negative_course_ids", staged)
	}
	return nil
}

// nextCourseID returns MAX(courses.id) + 1
func nextCourseID(ctx context.Context, env *Env) (int64, error) {
	var maxID sql.NullInt64
	if err := env.get(ctx, "read max course id", &maxID, `SELECT MAX(id) FROM courses`); err != nil {
		return 0, err
	}
	if !maxID.Valid {
		return 0, errors.DataAssumptionErrorf("courses table is empty; cannot derive ids for historical courses")
	}
	return maxID.Int64 + 1, nil
}

// historicalMatch pairs a historical course with the current course sharing its natural key
type historicalMatch struct {
	HistoricalID int64 `db:"historical_id"`
	CourseID     int64 `db:"course_id"`
}

func reconcileCourses(ctx context.Context, env *Env) (StepResult, error) {
	if env.Options.MatchedCourseMode == config.MatchedCourseModeOffset {
		return reconcileCoursesByOffset(ctx, env)
	}

	result := newResult("courses_matched", "historical_grades_repointed")

	var matches []historicalMatch
	if err := env.selectAll(ctx, "list matched historical courses", &matches,
		`SELECT h.id AS historical_id, c.id AS course_id
		FROM courses_historical h
		JOIN courses c ON c.department = h.department AND c.course_number = h.course_number
		`+oldestFirst); err != nil {
		return result, err
	}

	for _, m := range matches {
		n, err := env.exec(ctx, "re-point historical grades to matched course", repointHistoricalGrades, -m.CourseID, m.HistoricalID)
		if err != nil {
			return result, err
		}
		result.Add("courses_matched", 1)
		result.Add("historical_grades_repointed", n)
	}

	return result, nil
}

// reconcileCoursesByOffset assigns MAX(id)+1+idx over every historical course,
// the way the legacy cleanup script did, regardless of the matched course id.
func reconcileCoursesByOffset(ctx context.Context, env *Env) (StepResult, error) {
	result := newResult("courses_matched", "historical_grades_repointed")

	env.Logger.Warn("reconcile-courses is running in offset mode; historical grades will not point at their matched courses")

	var historical []models.Course
	if err := env.selectAll(ctx, "list historical courses", &historical,
		`SELECT h.id, h.department, h.course_number, h.created FROM courses_historical h `+oldestFirst); err != nil {
		return result, err
	}
	if len(historical) == 0 {
		return result, nil
	}

	base, err := nextCourseID(ctx, env)
	if err != nil {
		return result, err
	}

	for idx, h := range historical {
		n, err := env.exec(ctx, "re-point historical grades by offset", repointHistoricalGrades, -(base + int64(idx)), h.ID)
		if err != nil {
			return result, err
		}
		result.Add("courses_matched", 1)
		result.Add("historical_grades_repointed", n)
	}

	return result, nil
}

func settleCourseIDs(ctx context.Context, env *Env) (StepResult, error) {
	var result StepResult

	n, err := env.exec(ctx, "settle staged course ids",
		`UPDATE grades_historical SET course_id = -course_id WHERE course_id < 0`)
	if err != nil {
		return result, err
	}
	result.Add("historical_grades_settled", n)
	return result, nil
}

func withCourse(err error, h models.Course) error {
	if e, ok := errors.As(err); ok {
		return e.WithContext("historical_course_id", h.ID).
			WithContext("course", h.Department+h.CourseNumber)
	}
	return err
}
