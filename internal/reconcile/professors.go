package reconcile

import (
	"context"

	"github.com/nwanne56/PlanetTerp/internal/models"
	"github.com/sirupsen/logrus"
)

// newestFirst orders professors newest first. A NULL created sorts as oldest and
// equal timestamps fall back to id, so the last row is always the same survivor.
const newestFirst = `ORDER BY (created IS NULL) ASC, created DESC, id DESC`

// Tables re-pointed from a duplicate professor to its survivor
var professorFKTables = []struct {
	table  string
	action string
}{
	{"reviews", "reviews_repointed"},
	{"grades", "grades_repointed"},
	{"grades_historical", "historical_grades_repointed"},
}

func dedupeProfessors(ctx context.Context, env *Env) (StepResult, error) {
	result := newResult(
		"professors_merged",
		"reviews_repointed",
		"grades_repointed",
		"historical_grades_repointed",
		"professor_courses_merged",
		"professor_courses_repointed",
	)

	var professors []models.Professor
	if err := env.selectAll(ctx, "list slugged professors", &professors,
		`SELECT id, slug, created FROM professors WHERE slug IS NOT NULL `+newestFirst); err != nil {
		return result, err
	}

	resolved := make(map[string]bool)
	for _, p := range professors {
		slug := p.Slug.String
		if resolved[slug] {
			continue
		}
		resolved[slug] = true

		var ids []int64
		if err := env.selectAll(ctx, "list professors by slug", &ids,
			`SELECT id FROM professors WHERE slug = ? `+newestFirst, slug); err != nil {
			return result, err
		}
		if len(ids) < 2 {
			continue
		}

		survivor := ids[len(ids)-1]
		for _, dup := range ids[:len(ids)-1] {
			if dup == survivor {
				continue
			}
			if err := mergeProfessor(ctx, env, dup, survivor, &result); err != nil {
				return result, err
			}
		}

		env.Logger.WithFields(logrus.Fields{
			"slug":       slug,
			"survivor":   survivor,
			"duplicates": len(ids) - 1,
		}).Debug("merged duplicate professors")
	}

	return result, nil
}

// mergeProfessor moves every reference from dup to survivor and deletes dup
func mergeProfessor(ctx context.Context, env *Env, dup, survivor int64, result *StepResult) error {
	for _, ref := range professorFKTables {
		n, err := env.exec(ctx, "re-point "+ref.table,
			"UPDATE "+ref.table+" SET professor_id = ? WHERE professor_id = ?", survivor, dup)
		if err != nil {
			return err
		}
		result.Add(ref.action, n)
	}

	// Drop join rows the survivor already has; the derived table keeps MySQL
	// from rejecting a subquery on the table being deleted from.
	n, err := env.exec(ctx, "merge professor_courses",
		`DELETE FROM professor_courses WHERE professor_id = ? AND course_id IN (
			SELECT course_id FROM (SELECT course_id FROM professor_courses WHERE professor_id = ?) AS kept
		)`, dup, survivor)
	if err != nil {
		return err
	}
	result.Add("professor_courses_merged", n)

	n, err = env.exec(ctx, "re-point professor_courses",
		`UPDATE professor_courses SET professor_id = ? WHERE professor_id = ?`, survivor, dup)
	if err != nil {
		return err
	}
	result.Add("professor_courses_repointed", n)

	n, err = env.exec(ctx, "delete duplicate professor", `DELETE FROM professors WHERE id = ?`, dup)
	if err != nil {
		return err
	}
	result.Add("professors_merged", n)
	return nil
}
