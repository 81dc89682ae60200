package main

import (
	"fmt"
	"path/filepath"

	"github.com/nwanne56/PlanetTerp/internal/config"
	"github.com/nwanne56/PlanetTerp/internal/database"
	"github.com/spf13/cobra"
)

var writeConfig string

var initLocalCmd = &cobra.Command{
	Use:   "init-local <path>",
	Short: "Create an empty SQLite database with the PlanetTerp schema",
	Long: `Creates a SQLite database at <path> with the tables the reconciliation
touches, for rehearsing a run against a local copy of production data.

Examples:
  ptreconcile init-local ./rehearsal.db
  ptreconcile init-local ./rehearsal.db --write-config .planetterp/planetterp.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolve %s: %w", args[0], err)
		}

		local := *cfg
		local.Database = config.DatabaseConfig{
			Driver:       config.DriverSQLite,
			SQLitePath:   path,
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		}

		db, err := database.Open(cmd.Context(), local.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.EnsureSchema(cmd.Context(), db); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)

		if writeConfig != "" {
			if err := local.Save(writeConfig); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", writeConfig)
		}
		return nil
	},
}

func init() {
	initLocalCmd.Flags().StringVar(&writeConfig, "write-config", "", "also write a config file pointing at the new database")
}
