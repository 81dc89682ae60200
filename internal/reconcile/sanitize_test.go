package reconcile

import (
	"database/sql"
	"strings"
	"testing"

	"github.com/nwanne56/PlanetTerp/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize_Emails(t *testing.T) {
	f := newFixture(t)

	valid254 := strings.Repeat("a", 242) + "@example.com"
	require.Len(t, valid254, 254)
	too255 := strings.Repeat("a", 243) + "@example.com"
	require.Len(t, too255, 255)

	f.exec(`INSERT INTO users (id, email) VALUES (1, ?), (2, ?), (3, ''), (4, NULL), (5, 'terp@umd.edu')`, valid254, too255)

	result := f.step(sanitize, Options{})
	assert.Equal(t, int64(2), result.Get("emails_nulled"))

	tests := []struct {
		id   int64
		want sql.NullString
	}{
		{1, sql.NullString{String: valid254, Valid: true}},
		{2, sql.NullString{}},
		{3, sql.NullString{}},
		{4, sql.NullString{}},
		{5, sql.NullString{String: "terp@umd.edu", Valid: true}},
	}
	for _, tt := range tests {
		var got sql.NullString
		require.NoError(t, f.db.Get(&got, `SELECT email FROM users WHERE id = ?`, tt.id))
		assert.Equal(t, tt.want, got, "user %d", tt.id)
	}
}

func TestSanitize_NegativeProfessors(t *testing.T) {
	f := newFixture(t)

	f.user(1, "terp@umd.edu")
	f.professor(-5, "placeholder", day(0))
	f.professor(7, "jane-doe", day(0))
	f.course(1, "CMSC", "131", day(0))

	f.review(1, -5, 1)
	f.review(2, 7, 1)
	f.grade("grades", 1, 1, -5, 1)
	f.grade("grades", 2, 1, 7, 2)
	f.grade("grades", 3, 1, nil, 3)
	f.grade("grades_historical", 1, 1, -5, 1)
	f.professorCourse(-5, 1)
	f.professorCourse(7, 1)

	result := f.step(sanitize, Options{})

	assert.Equal(t, int64(1), result.Get("reviews_deleted"))
	assert.Equal(t, int64(1), result.Get("grades_deleted"))
	assert.Equal(t, int64(1), result.Get("historical_grades_deleted"))
	assert.Equal(t, int64(1), result.Get("professor_courses_deleted"))
	assert.Equal(t, int64(1), result.Get("professors_deleted"))

	assert.Equal(t, 0, f.count(`SELECT COUNT(*) FROM professors WHERE id < 0`))
	assert.Equal(t, 1, f.count(`SELECT COUNT(*) FROM reviews`))
	assert.Equal(t, 2, f.count(`SELECT COUNT(*) FROM grades`), "null professor_id rows are kept")
	assert.Equal(t, 0, f.count(`SELECT COUNT(*) FROM grades_historical`))
	assert.Equal(t, 1, f.count(`SELECT COUNT(*) FROM professor_courses`))
}

func TestSanitize_CleanStoreIsNoop(t *testing.T) {
	f := newFixture(t)
	f.user(1, "terp@umd.edu")
	f.professor(1, "jane-doe", day(0))

	result := f.step(sanitize, Options{})
	for _, c := range result.Counts {
		assert.Zero(t, c.Rows, c.Action)
	}
}

func TestCollapseReviewer(t *testing.T) {
	f := newFixture(t)
	f.user(-1, nil)
	f.user(1, "admin@planetterp.com")
	f.user(2, "terp@umd.edu")
	f.professor(1, "jane-doe", day(0))
	f.review(1, 1, -1)
	f.review(2, 1, -1)
	f.review(3, 1, 2)

	result := f.step(collapseReviewer, Options{})

	assert.Equal(t, int64(2), result.Get("reviews_remapped"))
	assert.Equal(t, int64(1), result.Get("users_deleted"))
	assert.Equal(t, map[int64]int64{1: 1, 2: 1, 3: 2}, f.reviewerIDs())
	assert.Equal(t, 0, f.count(`SELECT COUNT(*) FROM users WHERE id = -1`))
}

func TestCollapseReviewer_MissingFallback(t *testing.T) {
	f := newFixture(t)
	f.user(-1, nil)
	f.professor(1, "jane-doe", day(0))
	f.review(1, 1, -1)

	_, err := f.stepErr(collapseReviewer, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeDataAssumption))
	assert.Equal(t, map[int64]int64{1: -1}, f.reviewerIDs())
}

func TestCollapseReviewer_NothingToRemap(t *testing.T) {
	f := newFixture(t)
	f.user(2, "terp@umd.edu")

	result := f.step(collapseReviewer, Options{})
	assert.Zero(t, result.Get("reviews_remapped"))
	assert.Zero(t, result.Get("users_deleted"))
}

func TestCollapseReviewer_CustomIDs(t *testing.T) {
	f := newFixture(t)
	f.user(-9, nil)
	f.user(42, "moderator@planetterp.com")
	f.professor(1, "jane-doe", day(0))
	f.review(1, 1, -9)

	result := f.step(collapseReviewer, Options{SentinelReviewerID: -9, FallbackReviewerID: 42})
	assert.Equal(t, int64(1), result.Get("reviews_remapped"))
	assert.Equal(t, map[int64]int64{1: 42}, f.reviewerIDs())
}

func (f *fixture) reviewerIDs() map[int64]int64 {
	f.t.Helper()
	var rows []struct {
		ID         int64 `db:"id"`
		ReviewerID int64 `db:"reviewer_id"`
	}
	require.NoError(f.t, f.db.Select(&rows, `SELECT id, reviewer_id FROM reviews ORDER BY id`))

	ids := make(map[int64]int64, len(rows))
	for _, r := range rows {
		ids[r.ID] = r.ReviewerID
	}
	return ids
}
