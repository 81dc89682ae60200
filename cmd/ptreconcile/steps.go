package main

import (
	"fmt"

	"github.com/nwanne56/PlanetTerp/internal/reconcile"
	"github.com/spf13/cobra"
)

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "List the reconciliation steps in execution order",
	Args:  cobra.NoArgs,
	// No config or database needed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		for i, s := range reconcile.Steps() {
			fmt.Fprintf(cmd.OutOrStdout(), "%d. %-20s %s\n", i+1, s.Name, s.Description)
		}
	},
}
