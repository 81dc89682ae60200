package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nwanne56/PlanetTerp/internal/reconcile"
	"gopkg.in/yaml.v3"
)

// Formatter renders a run report
type Formatter interface {
	Format(report *reconcile.Report, w io.Writer) error
}

// VerbosityLevel determines output detail
type VerbosityLevel int

const (
	VerbosityQuiet    VerbosityLevel = iota // One-line outcome
	VerbosityStandard                       // Per-step counts and failed checks
	VerbosityJSON                           // Machine-readable JSON
	VerbosityYAML                           // Machine-readable YAML
)

// NewFormatter creates the formatter for level
func NewFormatter(level VerbosityLevel) Formatter {
	switch level {
	case VerbosityQuiet:
		return &QuietFormatter{}
	case VerbosityJSON:
		return &JSONFormatter{}
	case VerbosityYAML:
		return &YAMLFormatter{}
	default:
		return &StandardFormatter{}
	}
}

// QuietFormatter prints the outcome only (for cron mail)
type QuietFormatter struct{}

func (f *QuietFormatter) Format(report *reconcile.Report, w io.Writer) error {
	_, err := fmt.Fprintln(w, report.String())
	return err
}

// StandardFormatter prints one line per step with its counts
type StandardFormatter struct{}

func (f *StandardFormatter) Format(report *reconcile.Report, w io.Writer) error {
	mode := "commit"
	if report.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(w, "PlanetTerp reconciliation %s (%s, %s)\n", report.RunID, report.Driver, mode)
	fmt.Fprintf(w, "Matched course mode: %s\n\n", report.MatchedCourseMode)

	for i, step := range report.Steps {
		fmt.Fprintf(w, "%d. %-20s %s\n", i+1, step.Name, formatCounts(step.Counts))
	}

	if report.Verification != nil {
		failed := report.Verification.Failed()
		if len(failed) == 0 {
			fmt.Fprintf(w, "\nVerification: %d checks passed\n", len(report.Verification.Checks))
		} else {
			fmt.Fprintf(w, "\nVerification: %d of %d checks failed\n", len(failed), len(report.Verification.Checks))
			for _, c := range failed {
				fmt.Fprintf(w, "  - %s: %d (%s)\n", c.Name, c.Violations, c.Description)
			}
		}
	}

	fmt.Fprintln(w)
	_, err := fmt.Fprintln(w, report.String())
	return err
}

func formatCounts(counts []reconcile.Count) string {
	if len(counts) == 0 {
		return "-"
	}
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprintf("%s=%d", c.Action, c.Rows)
	}
	return strings.Join(parts, " ")
}

// JSONFormatter writes the report as indented JSON
type JSONFormatter struct{}

func (f *JSONFormatter) Format(report *reconcile.Report, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// YAMLFormatter writes the report as YAML
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(report *reconcile.Report, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}

// WriteSummary prints the standard summary
func WriteSummary(w io.Writer, report *reconcile.Report) error {
	return NewFormatter(VerbosityStandard).Format(report, w)
}

// WriteReport writes the report to path as YAML for .yaml/.yml and JSON otherwise
func WriteReport(path string, report *reconcile.Report) error {
	level := VerbosityJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		level = VerbosityYAML
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	defer file.Close()

	if err := NewFormatter(level).Format(report, file); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return file.Close()
}
