package reconcile

import (
	"context"

	"github.com/nwanne56/PlanetTerp/internal/errors"
)

func collapseReviewer(ctx context.Context, env *Env) (StepResult, error) {
	var result StepResult
	sentinel := env.Options.SentinelReviewerID
	fallback := env.Options.FallbackReviewerID

	var pending int64
	if err := env.get(ctx, "count sentinel reviews", &pending,
		`SELECT COUNT(*) FROM reviews WHERE reviewer_id = ?`, sentinel); err != nil {
		return result, err
	}

	if pending > 0 {
		var exists int64
		if err := env.get(ctx, "look up fallback reviewer", &exists,
			`SELECT COUNT(*) FROM users WHERE id = ?`, fallback); err != nil {
			return result, err
		}
		if exists == 0 {
			return result, errors.DataAssumptionErrorf(
				"%d reviews reference sentinel reviewer %d but fallback user %d does not exist",
				pending, sentinel, fallback,
			).WithContext("sentinel_reviewer_id", sentinel).WithContext("fallback_reviewer_id", fallback)
		}
	}

	n, err := env.exec(ctx, "remap sentinel reviews",
		`UPDATE reviews SET reviewer_id = ? WHERE reviewer_id = ?`, fallback, sentinel)
	if err != nil {
		return result, err
	}
	result.Add("reviews_remapped", n)

	n, err = env.exec(ctx, "delete sentinel user", `DELETE FROM users WHERE id = ?`, sentinel)
	if err != nil {
		return result, err
	}
	result.Add("users_deleted", n)

	return result, nil
}
