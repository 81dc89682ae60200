package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/nwanne56/PlanetTerp/internal/models"
)

// Tables lists the PlanetTerp tables touched by reconciliation, parents first
var Tables = []string{
	"users",
	"professors",
	"reviews",
	"courses",
	"courses_historical",
	"grades",
	"grades_historical",
	"professor_courses",
}

// sqliteSchema mirrors the production tables closely enough for local rehearsals.
// grades_historical carries no foreign keys, matching the legacy shadow table.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email VARCHAR(254)
	)`,
	`CREATE TABLE IF NOT EXISTS professors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name VARCHAR(100) NOT NULL DEFAULT '',
		slug VARCHAR(100),
		created DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		professor_id INTEGER NOT NULL REFERENCES professors(id),
		reviewer_id INTEGER REFERENCES users(id),
		content TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS courses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		department VARCHAR(4) NOT NULL,
		course_number VARCHAR(6) NOT NULL,
		created DATETIME,
		UNIQUE (department, course_number)
	)`,
	`CREATE TABLE IF NOT EXISTS courses_historical (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		department VARCHAR(4) NOT NULL,
		course_number VARCHAR(6) NOT NULL,
		created DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS grades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		semester VARCHAR(6) NOT NULL,
		course_id INTEGER NOT NULL REFERENCES courses(id),
		section VARCHAR(4),
		professor_id INTEGER REFERENCES professors(id),
		num_students INTEGER NOT NULL DEFAULT 0,
		` + bucketColumnsDDL() + `
	)`,
	`CREATE TABLE IF NOT EXISTS grades_historical (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		semester VARCHAR(6) NOT NULL,
		course_id INTEGER NOT NULL,
		section VARCHAR(4),
		professor_id INTEGER,
		num_students INTEGER NOT NULL DEFAULT 0,
		` + bucketColumnsDDL() + `
	)`,
	`CREATE TABLE IF NOT EXISTS professor_courses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		professor_id INTEGER NOT NULL REFERENCES professors(id),
		course_id INTEGER NOT NULL,
		UNIQUE (professor_id, course_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_professors_slug ON professors(slug)`,
	`CREATE INDEX IF NOT EXISTS idx_courses_historical_key ON courses_historical(department, course_number)`,
	`CREATE INDEX IF NOT EXISTS idx_grades_historical_course ON grades_historical(course_id)`,
}

func bucketColumnsDDL() string {
	cols := make([]string, len(models.GradeBucketColumns))
	for i, col := range models.GradeBucketColumns {
		cols[i] = fmt.Sprintf(`"%s" INTEGER NOT NULL DEFAULT 0 CHECK ("%s" >= 0)`, col, col)
	}
	return strings.Join(cols, ",\n\t\t")
}

// EnsureSchema creates the PlanetTerp tables on a SQLite rehearsal database.
// MySQL and Postgres schemas are owned by the web application's migrations.
func EnsureSchema(ctx context.Context, db *DB) error {
	if !db.Dialect.IsSQLite() {
		return fmt.Errorf("schema creation is only supported for sqlite3, got %s", db.Dialect.Driver)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range sqliteSchema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	if db.logger != nil {
		db.logger.WithField("tables", len(Tables)).Debug("sqlite schema ensured")
	}
	return nil
}
