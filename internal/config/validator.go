package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/nwanne56/PlanetTerp/internal/errors"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	return sb.String()
}

// Validate checks the configuration needed by a reconciliation run
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{Valid: true}

	c.validateDatabase(result)
	c.validateReconcile(result)
	c.validateMetrics(result)
	c.validateLog(result)

	return result
}

// ValidateOrError returns a ConfigError when validation fails
func (c *Config) ValidateOrError() error {
	result := c.Validate()
	if result.HasErrors() {
		return errors.ConfigError(strings.TrimSpace(result.Error()))
	}
	return nil
}

func (c *Config) validateDatabase(result *ValidationResult) {
	db := c.Database

	switch db.Driver {
	case DriverSQLite:
		if db.SQLitePath == "" && db.DSN == "" {
			result.AddError("database.sqlite_path (PLANETTERP_SQLITE_PATH) is required for the sqlite3 driver")
		}
		return
	case DriverMySQL, DriverPgx, DriverPostgres:
	default:
		result.AddError("database.driver %q is not supported (use mysql, pgx, postgres or sqlite3)", db.Driver)
		return
	}

	if db.DSN != "" {
		if db.Driver != DriverMySQL {
			if _, err := url.Parse(db.DSN); err != nil {
				result.AddError("database.dsn is invalid: %v", err)
			}
		}
		return
	}

	if db.Host == "" {
		result.AddError("PLANETTERP_MYSQL_HOST is required but not set")
	}
	if db.Port <= 0 || db.Port > 65535 {
		result.AddError("database.port %d is out of range", db.Port)
	}
	if db.User == "" {
		result.AddError("PLANETTERP_MYSQL_USER is required but not set")
	}
	if db.Password == "" {
		result.AddWarning("database password is empty. Set PLANETTERP_MYSQL_PASSWORD or store it with: ptreconcile keychain set")
	}
	if db.Name == "" {
		result.AddError("database name is empty (PLANETTERP_MYSQL_DB_NAME)")
	}
}

func (c *Config) validateReconcile(result *ValidationResult) {
	r := c.Reconcile

	switch r.MatchedCourseMode {
	case MatchedCourseModeMatched:
	case MatchedCourseModeOffset:
		result.AddWarning("reconcile.matched_course_mode=offset reproduces the legacy MAX(id)+idx course assignment")
	default:
		result.AddError("reconcile.matched_course_mode %q is not supported (use matched or offset)", r.MatchedCourseMode)
	}

	if r.SentinelReviewerID >= 0 {
		result.AddError("reconcile.sentinel_reviewer_id must be negative, got %d", r.SentinelReviewerID)
	}
	if r.FallbackReviewerID <= 0 {
		result.AddError("reconcile.fallback_reviewer_id must be positive, got %d", r.FallbackReviewerID)
	}
	if r.LockTimeout < 0 {
		result.AddError("reconcile.lock_timeout must not be negative")
	}
}

func (c *Config) validateMetrics(result *ValidationResult) {
	if c.Metrics.PushgatewayURL == "" {
		return
	}
	u, err := url.Parse(c.Metrics.PushgatewayURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		result.AddError("metrics.pushgateway_url %q is not an absolute URL", c.Metrics.PushgatewayURL)
	}
	if c.Metrics.Job == "" {
		result.AddError("metrics.job is required when a pushgateway is configured")
	}
}

func (c *Config) validateLog(result *ValidationResult) {
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		result.AddError("log.format %q is not supported (use text or json)", c.Log.Format)
	}
}
