package models

import (
	"database/sql"
)

// User represents a row of the users table
type User struct {
	ID    int64          `json:"id" db:"id"`
	Email sql.NullString `json:"email" db:"email"`
}

// Professor represents a row of the professors table
type Professor struct {
	ID      int64          `json:"id" db:"id"`
	Slug    sql.NullString `json:"slug" db:"slug"`
	Created sql.NullTime   `json:"created" db:"created"`
}

// Review represents a row of the reviews table
type Review struct {
	ID          int64 `json:"id" db:"id"`
	ProfessorID int64 `json:"professor_id" db:"professor_id"`
	ReviewerID  int64 `json:"reviewer_id" db:"reviewer_id"`
}

// Course represents a row of courses or courses_historical.
// Department and CourseNumber form the natural key shared by both tables.
type Course struct {
	ID           int64        `json:"id" db:"id"`
	Department   string       `json:"department" db:"department"`
	CourseNumber string       `json:"course_number" db:"course_number"`
	Created      sql.NullTime `json:"created" db:"created"`
}

// CourseKey is the natural key of a course
type CourseKey struct {
	Department   string `json:"department" db:"department"`
	CourseNumber string `json:"course_number" db:"course_number"`
}

// Key returns the natural key of the course
func (c Course) Key() CourseKey {
	return CourseKey{Department: c.Department, CourseNumber: c.CourseNumber}
}

// ProfessorCourse represents a row of the professor_courses join table
type ProfessorCourse struct {
	ID          int64 `json:"id" db:"id"`
	ProfessorID int64 `json:"professor_id" db:"professor_id"`
	CourseID    int64 `json:"course_id" db:"course_id"`
}

// Grade represents a row of grades or grades_historical.
// Bucket columns keep the production upper-case names.
type Grade struct {
	ID          int64          `json:"id" db:"id"`
	Semester    string         `json:"semester" db:"semester"`
	CourseID    int64          `json:"course_id" db:"course_id"`
	Section     sql.NullString `json:"section" db:"section"`
	ProfessorID sql.NullInt64  `json:"professor_id" db:"professor_id"`
	NumStudents int            `json:"num_students" db:"num_students"`
	GradeCounts
}

// GradeCounts holds the per-letter counts of a grade row
type GradeCounts struct {
	APlus  int `json:"APLUS" db:"APLUS"`
	A      int `json:"A" db:"A"`
	AMinus int `json:"AMINUS" db:"AMINUS"`
	BPlus  int `json:"BPLUS" db:"BPLUS"`
	B      int `json:"B" db:"B"`
	BMinus int `json:"BMINUS" db:"BMINUS"`
	CPlus  int `json:"CPLUS" db:"CPLUS"`
	C      int `json:"C" db:"C"`
	CMinus int `json:"CMINUS" db:"CMINUS"`
	DPlus  int `json:"DPLUS" db:"DPLUS"`
	D      int `json:"D" db:"D"`
	DMinus int `json:"DMINUS" db:"DMINUS"`
	F      int `json:"F" db:"F"`
	W      int `json:"W" db:"W"`
	Other  int `json:"OTHER" db:"OTHER"`
}

// GradeBucketColumns lists the letter-grade columns in schema order
var GradeBucketColumns = []string{
	"APLUS", "A", "AMINUS",
	"BPLUS", "B", "BMINUS",
	"CPLUS", "C", "CMINUS",
	"DPLUS", "D", "DMINUS",
	"F", "W", "OTHER",
}

// GradeColumns lists every grade column copied between grade tables, excluding id
func GradeColumns() []string {
	cols := []string{"semester", "course_id", "section", "professor_id", "num_students"}
	return append(cols, GradeBucketColumns...)
}
