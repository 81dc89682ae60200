package main

import (
	"fmt"

	"github.com/nwanne56/PlanetTerp/internal/database"
	"github.com/nwanne56/PlanetTerp/internal/reconcile"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the post-reconciliation invariants without changing data",
	Long: `Runs every invariant check against the configured database and prints
the violation count of each. Exits non-zero when any check fails.

Useful after a run with --skip-verify, or to audit a database restored from backup.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := validateConfig(); err != nil {
			return err
		}

		db, err := database.Open(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		verifier := &reconcile.Verifier{
			Dialect:            db.Dialect,
			SentinelReviewerID: cfg.Reconcile.SentinelReviewerID,
		}
		v, err := verifier.VerifyConcurrently(ctx, db.DB, reconcile.Checks())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, c := range v.Checks {
			status := "ok"
			if c.Violations > 0 {
				status = "FAIL"
			}
			fmt.Fprintf(out, "%-4s %-28s %6d  %s\n", status, c.Name, c.Violations, c.Description)
		}

		return v.Err()
	},
}
