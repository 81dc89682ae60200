package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nwanne56/PlanetTerp/internal/config"
	"github.com/nwanne56/PlanetTerp/internal/errors"
	"github.com/nwanne56/PlanetTerp/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile   string
	verbose   bool
	logger    *logrus.Logger
	logCloser io.Closer
	cfg       *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := runCLI(ctx, os.Stderr)
	stop()
	os.Exit(code)
}

// runCLI executes the command tree and returns the process status. The log
// file is closed here because cobra skips post-run hooks when a command fails.
func runCLI(ctx context.Context, stderr io.Writer) int {
	err := rootCmd.ExecuteContext(ctx)
	closeLog()
	if err == nil {
		return 0
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	if e, ok := errors.As(err); ok && verbose {
		fmt.Fprintln(stderr, e.DetailedString())
	}
	return errors.ExitCode(err)
}

func closeLog() {
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
}

var rootCmd = &cobra.Command{
	Use:   "ptreconcile",
	Short: "PlanetTerp data reconciliation",
	Long: `ptreconcile cleans up legacy PlanetTerp data and merges the historical
course and grade tables into the current schema.

Run without arguments it executes every step in one transaction:
  1. sanitize            null invalid emails, drop rows tied to negative professor ids
  2. collapse-reviewer   remap the sentinel reviewer to the fallback user
  3. dedupe-professors   merge professors sharing a slug into the oldest one
  4. backfill-courses    insert historical courses missing from courses
  5. reconcile-courses   re-point historical grades of matched courses
  6. settle-course-ids   finalize staged course ids
  7. migrate-grades      copy historical grades into grades

Any failure rolls the whole run back.`,
	Version:       Version,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	RunE: runReconcile,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: planetterp.yaml in ., .planetterp/ or ~/.planetterp/)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Set custom version template
	rootCmd.SetVersionTemplate(`ptreconcile {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(stepsCmd)
	rootCmd.AddCommand(initLocalCmd)
	rootCmd.AddCommand(keychainCmd)
}

// setup loads configuration and builds the logger
func setup() error {
	var loadErr error
	cfg, loadErr = config.Load(cfgFile)
	if loadErr != nil {
		if cfgFile != "" {
			return errors.ConfigErrorf("load %s: %v", cfgFile, loadErr)
		}
		cfg = config.Default()
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}

	closeLog()

	var err error
	logger, logCloser, err = logging.New(logging.Config{
		Level:      level,
		JSONFormat: cfg.Log.Format == "json",
		OutputFile: cfg.Log.File,
	})
	if err != nil {
		return errors.ConfigErrorf("configure logging: %v", err)
	}

	if loadErr != nil {
		logger.WithError(loadErr).Warn("Failed to load config, using defaults")
	}
	return nil
}

// validateConfig logs warnings and fails on configuration errors
func validateConfig() error {
	result := cfg.Validate()
	for _, w := range result.Warnings {
		logger.Warn(w)
	}
	return cfg.ValidateOrError()
}
