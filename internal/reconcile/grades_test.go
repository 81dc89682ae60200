package reconcile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/nwanne56/PlanetTerp/internal/errors"
	"github.com/nwanne56/PlanetTerp/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) grades(table string) []models.Grade {
	f.t.Helper()
	var rows []models.Grade
	require.NoError(f.t, f.db.Select(&rows, `SELECT * FROM `+table+` ORDER BY id`))
	return rows
}

func TestMigrateGrades_CopiesEveryColumn(t *testing.T) {
	f := newFixture(t)
	f.course(1, "CMSC", "131", day(0))
	f.course(2, "MATH", "140", day(0))
	f.professor(1, "jane-doe", day(0))
	f.grade("grades", 1, 1, 1, 9)
	f.grade("grades_historical", 50, 1, 1, 1)
	f.grade("grades_historical", 51, 2, nil, 2)

	result := f.step(migrateGrades, Options{})
	assert.Equal(t, int64(2), result.Get("grades_copied"))

	historical := f.grades("grades_historical")
	current := f.grades("grades")
	require.Len(t, current, 3)

	// New rows get fresh ids; every other column is copied verbatim
	ignoreID := cmpopts.IgnoreFields(models.Grade{}, "ID")
	if diff := cmp.Diff(historical, current[1:], ignoreID); diff != "" {
		t.Errorf("copied grades (-historical +current):\n%s", diff)
	}
	assert.False(t, current[2].ProfessorID.Valid)
}

// Rerunning the copy duplicates rows. This is known, undesired behavior kept
// until copied rows can be told apart from native ones.
func TestMigrateGrades_NotIdempotent(t *testing.T) {
	f := newFixture(t)
	f.course(1, "CMSC", "131", day(0))
	f.grade("grades_historical", 1, 1, nil, 1)
	f.grade("grades_historical", 2, 1, nil, 2)

	f.step(migrateGrades, Options{})
	f.step(migrateGrades, Options{})

	assert.Equal(t, 4, f.count(`SELECT COUNT(*) FROM grades`))
	assert.Equal(t, 2, f.count(`SELECT COUNT(*) FROM grades WHERE "APLUS" = 1`))
}

func TestMigrateGrades_DanglingCourseIsConstraintViolation(t *testing.T) {
	f := newFixture(t)
	f.grade("grades_historical", 1, 404, nil, 1)

	_, err := f.stepErr(migrateGrades, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConstraint))
	assert.Equal(t, 0, f.count(`SELECT COUNT(*) FROM grades`))
}
