package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nwanne56/PlanetTerp/internal/config"
	"github.com/nwanne56/PlanetTerp/internal/database"
	"github.com/nwanne56/PlanetTerp/internal/errors"
	"github.com/sirupsen/logrus"
)

// Options control a reconciliation run
type Options struct {
	DryRun             bool
	MatchedCourseMode  string
	SentinelReviewerID int64
	FallbackReviewerID int64
	SkipVerify         bool
	// Steps restricts the run to the named steps; empty runs all of them
	Steps       []string
	LockTimeout time.Duration
	Clock       func() time.Time
}

// DefaultOptions returns the options of a full committed run
func DefaultOptions() Options {
	return Options{
		MatchedCourseMode:  config.MatchedCourseModeMatched,
		SentinelReviewerID: -1,
		FallbackReviewerID: 1,
		LockTimeout:        10 * time.Second,
		Clock:              time.Now,
	}
}

// OptionsFromConfig maps the reconcile section of the configuration onto Options
func OptionsFromConfig(cfg config.ReconcileConfig) Options {
	opts := DefaultOptions()
	if cfg.MatchedCourseMode != "" {
		opts.MatchedCourseMode = cfg.MatchedCourseMode
	}
	if cfg.SentinelReviewerID != 0 {
		opts.SentinelReviewerID = cfg.SentinelReviewerID
	}
	if cfg.FallbackReviewerID != 0 {
		opts.FallbackReviewerID = cfg.FallbackReviewerID
	}
	if cfg.LockTimeout > 0 {
		opts.LockTimeout = cfg.LockTimeout
	}
	opts.SkipVerify = cfg.SkipVerify
	return opts
}

// StepReport describes one executed step
type StepReport struct {
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description" yaml:"description"`
	Duration    time.Duration `json:"duration_ns" yaml:"duration"`
	Counts      []Count       `json:"counts" yaml:"counts"`
}

// Rows returns the count recorded for action
func (s StepReport) Rows(action string) int64 {
	return StepResult{Counts: s.Counts}.Get(action)
}

// Report summarizes a run
type Report struct {
	RunID             string        `json:"run_id" yaml:"run_id"`
	Driver            string        `json:"driver" yaml:"driver"`
	DryRun            bool          `json:"dry_run" yaml:"dry_run"`
	Committed         bool          `json:"committed" yaml:"committed"`
	MatchedCourseMode string        `json:"matched_course_mode" yaml:"matched_course_mode"`
	StartedAt         time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt        time.Time     `json:"finished_at" yaml:"finished_at"`
	Steps             []StepReport  `json:"steps" yaml:"steps"`
	Verification      *Verification `json:"verification,omitempty" yaml:"verification,omitempty"`
	Error             string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Step returns the report of the named step, if it ran
func (r *Report) Step(name string) (StepReport, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepReport{}, false
}

// Duration returns the wall time of the run
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Runner executes the selected steps in one transaction
type Runner struct {
	db     *database.DB
	opts   Options
	steps  []Step
	logger *logrus.Logger
}

// NewRunner validates opts and selects the steps to run
func NewRunner(db *database.DB, opts Options, logger *logrus.Logger) (*Runner, error) {
	defaults := DefaultOptions()
	if opts.MatchedCourseMode == "" {
		opts.MatchedCourseMode = defaults.MatchedCourseMode
	}
	if opts.SentinelReviewerID == 0 {
		opts.SentinelReviewerID = defaults.SentinelReviewerID
	}
	if opts.FallbackReviewerID == 0 {
		opts.FallbackReviewerID = defaults.FallbackReviewerID
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaults.LockTimeout
	}
	if opts.Clock == nil {
		opts.Clock = defaults.Clock
	}

	switch opts.MatchedCourseMode {
	case config.MatchedCourseModeMatched, config.MatchedCourseModeOffset:
	default:
		return nil, errors.ConfigErrorf("unknown matched course mode %q (want %s or %s)",
			opts.MatchedCourseMode, config.MatchedCourseModeMatched, config.MatchedCourseModeOffset)
	}

	steps, err := selectSteps(opts.Steps)
	if err != nil {
		return nil, err
	}

	return &Runner{db: db, opts: opts, steps: steps, logger: logger}, nil
}

// selectSteps keeps the named steps in execution order
func selectSteps(names []string) ([]Step, error) {
	all := Steps()
	if len(names) == 0 {
		return all, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	var steps []Step
	for _, s := range all {
		if wanted[s.Name] {
			steps = append(steps, s)
			delete(wanted, s.Name)
		}
	}
	for n := range wanted {
		return nil, errors.ConfigErrorf("unknown step %q", n)
	}

	selected := make(map[string]bool, len(steps))
	for _, s := range steps {
		selected[s.Name] = true
	}
	if (selected[StepBackfillCourses] || selected[StepReconcileCourses]) && !selected[StepSettleCourseIDs] {
		return nil, errors.ConfigErrorf("%s and %s stage course ids and must run with %s",
			StepBackfillCourses, StepReconcileCourses, StepSettleCourseIDs)
	}
	return steps, nil
}

// Steps returns the steps this runner will execute
func (r *Runner) Steps() []Step {
	return r.steps
}

// Run executes the procedure. On failure the transaction is rolled back and the
// returned report covers the steps that ran before the error.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:             uuid.NewString(),
		Driver:            r.db.Dialect.Driver,
		DryRun:            r.opts.DryRun,
		MatchedCourseMode: r.opts.MatchedCourseMode,
		StartedAt:         r.opts.Clock(),
	}
	log := r.logger.WithField("run_id", report.RunID)

	err := r.run(ctx, report, log)
	report.FinishedAt = r.opts.Clock()
	if err != nil {
		report.Error = err.Error()
		entry := log.WithError(err)
		if e, ok := errors.As(err); ok {
			entry = entry.WithFields(e.Fields())
		}
		entry.Error("reconciliation failed, transaction rolled back")
		return report, err
	}

	log.WithFields(logrus.Fields{
		"committed": report.Committed,
		"duration":  report.Duration().String(),
	}).Info("reconciliation finished")
	return report, nil
}

func (r *Runner) run(ctx context.Context, report *Report, log *logrus.Entry) error {
	conn, err := r.db.Connx(ctx)
	if err != nil {
		return errors.ConnectivityError(err, "acquire connection")
	}
	defer conn.Close()

	d := r.db.Dialect
	if err := d.AcquireLock(ctx, conn, database.LockName, r.opts.LockTimeout); err != nil {
		return err
	}
	defer func() {
		if err := d.ReleaseLock(context.Background(), conn, database.LockName); err != nil {
			log.WithError(err).Warn("failed to release reconciliation lock")
		}
	}()

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Classify(err, "begin transaction")
	}
	defer tx.Rollback()

	env := &Env{Tx: tx, Dialect: d, Options: r.opts, Logger: log}
	ran := make([]string, 0, len(r.steps))
	staging := false

	for _, step := range r.steps {
		stepLog := log.WithField("step", step.Name)
		stepLog.Info(step.Description)

		if stagesCourseIDs(step.Name) && !staging {
			staging = true
			env.Logger = stepLog
			if err := ensureNoStagedCourseIDs(ctx, env); err != nil {
				return withStep(err, step.Name)
			}
		}

		start := r.opts.Clock()
		env.Logger = stepLog
		result, err := step.Run(ctx, env)
		report.Steps = append(report.Steps, StepReport{
			Name:        step.Name,
			Description: step.Description,
			Duration:    r.opts.Clock().Sub(start),
			Counts:      result.Counts,
		})
		if err != nil {
			return withStep(err, step.Name)
		}
		ran = append(ran, step.Name)

		fields := logrus.Fields{}
		for _, c := range result.Counts {
			fields[c.Action] = c.Rows
		}
		stepLog.WithFields(fields).Info("step finished")
	}

	if !r.opts.SkipVerify {
		verifier := &Verifier{Dialect: d, SentinelReviewerID: r.opts.SentinelReviewerID}
		verification, err := verifier.Verify(ctx, tx, Applicable(ran))
		if err != nil {
			return err
		}
		report.Verification = verification
		if err := verification.Err(); err != nil {
			return err
		}
	}

	if r.opts.DryRun {
		if err := tx.Rollback(); err != nil {
			return errors.Classify(err, "roll back dry run")
		}
		log.Info("dry run, changes rolled back")
		return nil
	}

	if err := tx.Commit(); err != nil {
		return errors.Classify(err, "commit")
	}
	report.Committed = true
	return nil
}

func withStep(err error, step string) error {
	if e, ok := errors.As(err); ok {
		return e.WithContext("step", step)
	}
	return errors.Wrap(err, errors.ErrorTypeInternal, errors.SeverityCritical, "step "+step).WithContext("step", step)
}

// String renders a one-line outcome
func (r *Report) String() string {
	outcome := "committed"
	switch {
	case r.Error != "":
		outcome = "failed"
	case !r.Committed:
		outcome = "rolled back"
	}
	return fmt.Sprintf("run %s %s after %d steps in %s", r.RunID, outcome, len(r.Steps), r.Duration())
}
