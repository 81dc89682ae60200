package reconcile

import (
	"context"

	"github.com/nwanne56/PlanetTerp/internal/models"
)

// migrateGrades copies every historical grade row into grades verbatim.
// It does not check for rows copied by an earlier run, so rerunning it
// duplicates grades.
func migrateGrades(ctx context.Context, env *Env) (StepResult, error) {
	var result StepResult

	cols := env.Dialect.QuoteAll(models.GradeColumns())
	n, err := env.exec(ctx, "copy historical grades",
		"INSERT INTO grades ("+cols+") SELECT "+cols+" FROM grades_historical ORDER BY id")
	if err != nil {
		return result, err
	}
	result.Add("grades_copied", n)
	return result, nil
}
