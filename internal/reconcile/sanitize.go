package reconcile

import (
	"context"
	"fmt"
)

// maxEmailLength is the longest address RFC 5321 allows
const maxEmailLength = 254

// Tables whose professor_id must not be negative after sanitation
var professorRefTables = []struct {
	table  string
	action string
}{
	{"reviews", "reviews_deleted"},
	{"grades", "grades_deleted"},
	{"grades_historical", "historical_grades_deleted"},
	{"professor_courses", "professor_courses_deleted"},
}

func sanitize(ctx context.Context, env *Env) (StepResult, error) {
	var result StepResult

	query := fmt.Sprintf(`UPDATE users SET email = NULL WHERE %s > ? OR email = ''`, env.Dialect.CharLength("email"))
	n, err := env.exec(ctx, "null invalid emails", query, maxEmailLength)
	if err != nil {
		return result, err
	}
	result.Add("emails_nulled", n)

	// Children first so the professor delete never trips a foreign key
	for _, ref := range professorRefTables {
		n, err := env.exec(ctx, "delete "+ref.table+" with negative professor ids",
			"DELETE FROM "+ref.table+" WHERE professor_id < 0")
		if err != nil {
			return result, err
		}
		result.Add(ref.action, n)
	}

	n, err = env.exec(ctx, "delete professors with negative ids", `DELETE FROM professors WHERE id < 0`)
	if err != nil {
		return result, err
	}
	result.Add("professors_deleted", n)

	return result, nil
}
