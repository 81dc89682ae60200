package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/nwanne56/PlanetTerp/internal/config"
	"github.com/nwanne56/PlanetTerp/internal/database"
	"github.com/nwanne56/PlanetTerp/internal/metrics"
	"github.com/nwanne56/PlanetTerp/internal/output"
	"github.com/nwanne56/PlanetTerp/internal/reconcile"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	dryRun      bool
	reportPath  string
	matchedMode string
	stepNames   []string
	skipVerify  bool
	assumeYes   bool
	quiet       bool
)

func init() {
	flags := rootCmd.Flags()
	flags.BoolVar(&dryRun, "dry-run", false, "run every step, then roll back")
	flags.StringVar(&reportPath, "report", "", "write the run report to this path (.json, .yaml or .yml)")
	flags.StringVar(&matchedMode, "matched-course-mode", "", "reconcile-courses behavior: matched or offset (legacy)")
	flags.StringSliceVar(&stepNames, "step", nil, "run only the named step (repeatable, order is fixed)")
	flags.BoolVar(&skipVerify, "skip-verify", false, "skip the invariant checks before commit")
	flags.BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")
	flags.BoolVarP(&quiet, "quiet", "q", false, "print only the outcome line")
}

// applyRunFlags lets explicit flags override the loaded configuration
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	if cmd.Flags().Changed("matched-course-mode") {
		c.Reconcile.MatchedCourseMode = matchedMode
	}
	if cmd.Flags().Changed("skip-verify") {
		c.Reconcile.SkipVerify = skipVerify
	}
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	applyRunFlags(cmd, cfg)
	if err := validateConfig(); err != nil {
		return err
	}

	opts := reconcile.OptionsFromConfig(cfg.Reconcile)
	opts.DryRun = dryRun
	opts.Steps = stepNames

	if !dryRun && !assumeYes && term.IsTerminal(int(os.Stdin.Fd())) {
		ok, err := confirm(os.Stdin, cmd.OutOrStdout(),
			fmt.Sprintf("Reconcile %s? Changes are committed on success.", describeTarget(cfg.Database)))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	recorder := metrics.NewRecorder()

	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		recorder.ObserveFailure(err, time.Now())
		pushMetrics(ctx, recorder)
		return err
	}
	defer db.Close()

	runner, err := reconcile.NewRunner(db, opts, logger)
	if err != nil {
		recorder.ObserveFailure(err, time.Now())
		pushMetrics(ctx, recorder)
		return err
	}

	report, runErr := runner.Run(ctx)
	recorder.Observe(report)
	pushMetrics(ctx, recorder)

	if reportPath != "" {
		if err := output.WriteReport(reportPath, report); err != nil {
			logger.WithError(err).Warn("Failed to write report")
		} else {
			logger.WithField("path", reportPath).Info("report written")
		}
	}

	level := output.VerbosityStandard
	if quiet {
		level = output.VerbosityQuiet
	}
	if err := output.NewFormatter(level).Format(report, cmd.OutOrStdout()); err != nil {
		logger.WithError(err).Warn("Failed to print summary")
	}

	return runErr
}

func pushMetrics(ctx context.Context, recorder *metrics.Recorder) {
	if err := recorder.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		logger.WithError(err).Warn("Failed to push metrics")
	}
}

// confirm asks a yes/no question; anything but y or yes is a no
func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "%s (y/N): ", prompt)

	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read confirmation: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(response)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func describeTarget(db config.DatabaseConfig) string {
	switch {
	case db.Driver == config.DriverSQLite:
		return db.SQLitePath
	case db.DSN != "":
		return fmt.Sprintf("the %s database from the configured DSN", db.Driver)
	default:
		return fmt.Sprintf("%s database %q on %s:%d", db.Driver, db.Name, db.Host, db.Port)
	}
}
