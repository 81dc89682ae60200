package reconcile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedDuplicates creates A(t1), B(t2), C(t3) sharing slug "x" with rows pointing at each
func seedDuplicates(f *fixture) {
	f.t.Helper()
	f.user(1, "admin@planetterp.com")
	f.course(1, "CMSC", "131", day(0))

	f.professor(3, "x", day(3)) // C
	f.professor(1, "x", day(1)) // A
	f.professor(2, "x", day(2)) // B
	f.professor(4, "y", day(0))

	f.review(1, 1, 1)
	f.review(2, 2, 1)
	f.review(3, 3, 1)
	f.review(4, 4, 1)
	f.grade("grades", 1, 1, 2, 1)
	f.grade("grades", 2, 1, 3, 2)
	f.grade("grades_historical", 1, 1, 3, 1)
	f.professorCourse(2, 1)
	f.professorCourse(3, 2)
}

func (f *fixture) professorIDs() []int64 {
	f.t.Helper()
	var ids []int64
	require.NoError(f.t, f.db.Select(&ids, `SELECT id FROM professors ORDER BY id`))
	return ids
}

type fkState struct {
	Professors       []int64
	Reviews          map[int64]int64
	Grades           map[int64]int64
	HistoricalGrades map[int64]int64
	ProfessorCourses map[int64]int64
}

func (f *fixture) fkState() fkState {
	return fkState{
		Professors:       f.professorIDs(),
		Reviews:          f.professorIDsOf("reviews"),
		Grades:           f.professorIDsOf("grades"),
		HistoricalGrades: f.professorIDsOf("grades_historical"),
		ProfessorCourses: f.professorIDsOf("professor_courses"),
	}
}

func TestDedupeProfessors_SurvivorIsOldest(t *testing.T) {
	f := newFixture(t)
	seedDuplicates(f)

	result := f.step(dedupeProfessors, Options{})

	assert.Equal(t, int64(2), result.Get("professors_merged"))
	assert.Equal(t, int64(2), result.Get("reviews_repointed"))
	assert.Equal(t, int64(2), result.Get("grades_repointed"))
	assert.Equal(t, int64(1), result.Get("historical_grades_repointed"))
	assert.Equal(t, int64(2), result.Get("professor_courses_repointed"))

	want := fkState{
		Professors:       []int64{1, 4},
		Reviews:          map[int64]int64{1: 1, 2: 1, 3: 1, 4: 4},
		Grades:           map[int64]int64{1: 1, 2: 1},
		HistoricalGrades: map[int64]int64{1: 1},
		ProfessorCourses: map[int64]int64{1: 1, 2: 1},
	}
	if diff := cmp.Diff(want, f.fkState()); diff != "" {
		t.Errorf("state after dedupe (-want +got):\n%s", diff)
	}
}

func TestDedupeProfessors_Idempotent(t *testing.T) {
	f := newFixture(t)
	seedDuplicates(f)

	f.step(dedupeProfessors, Options{})
	once := f.fkState()

	second := f.step(dedupeProfessors, Options{})
	for _, c := range second.Counts {
		assert.Zero(t, c.Rows, c.Action)
	}
	if diff := cmp.Diff(once, f.fkState()); diff != "" {
		t.Errorf("second dedupe changed state (-once +twice):\n%s", diff)
	}
}

func TestDedupeProfessors_SlugUniqueness(t *testing.T) {
	f := newFixture(t)
	f.professor(1, "a", day(5))
	f.professor(2, "a", day(1))
	f.professor(3, "b", day(2))
	f.professor(4, "b", day(2))
	f.professor(5, "b", day(9))
	f.professor(6, nil, day(0))
	f.professor(7, nil, day(0))
	f.professor(8, "c", day(0))

	f.step(dedupeProfessors, Options{})

	assert.Equal(t, 0, f.count(`SELECT COUNT(*) FROM (
		SELECT slug FROM professors WHERE slug IS NOT NULL GROUP BY slug HAVING COUNT(*) > 1) d`))
	assert.Equal(t, []int64{2, 3, 6, 7, 8}, f.professorIDs(), "null slugs are never merged")
}

func TestDedupeProfessors_TieKeepsLowestID(t *testing.T) {
	f := newFixture(t)
	f.user(1, "admin@planetterp.com")
	f.professor(9, "tie", day(1))
	f.professor(5, "tie", day(1))
	f.professor(7, "tie", day(1))
	f.review(1, 9, 1)
	f.review(2, 7, 1)

	result := f.step(dedupeProfessors, Options{})

	assert.Equal(t, int64(2), result.Get("professors_merged"))
	assert.Equal(t, []int64{5}, f.professorIDs())
	assert.Equal(t, map[int64]int64{1: 5, 2: 5}, f.professorIDsOf("reviews"))
}

func TestDedupeProfessors_NullCreatedSurvives(t *testing.T) {
	f := newFixture(t)
	f.professor(1, "z", day(1))
	f.exec(`INSERT INTO professors (id, slug, created) VALUES (2, 'z', NULL)`)

	f.step(dedupeProfessors, Options{})
	assert.Equal(t, []int64{2}, f.professorIDs())
}

func TestDedupeProfessors_MergesProfessorCourses(t *testing.T) {
	f := newFixture(t)
	f.professor(1, "x", day(1))
	f.professor(2, "x", day(2))
	f.professorCourse(1, 10)
	f.professorCourse(2, 10)
	f.professorCourse(2, 11)

	result := f.step(dedupeProfessors, Options{})

	assert.Equal(t, int64(1), result.Get("professor_courses_merged"))
	assert.Equal(t, int64(1), result.Get("professor_courses_repointed"))

	var courses []int64
	require.NoError(t, f.db.Select(&courses, `SELECT course_id FROM professor_courses WHERE professor_id = 1 ORDER BY course_id`))
	assert.Equal(t, []int64{10, 11}, courses)
	assert.Equal(t, 0, f.count(`SELECT COUNT(*) FROM professor_courses WHERE professor_id = 2`))
}
