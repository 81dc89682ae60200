package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported database drivers
const (
	DriverMySQL    = "mysql"
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Matched course modes for the reconcile-courses step
const (
	// MatchedCourseModeMatched re-points grades to the matched current course id
	MatchedCourseModeMatched = "matched"
	// MatchedCourseModeOffset reproduces the legacy MAX(id)+idx assignment
	MatchedCourseModeOffset = "offset"
)

// DefaultDatabaseName is used when PLANETTERP_MYSQL_DB_NAME is not set
const DefaultDatabaseName = "planetterp"

// Config holds all configuration settings
type Config struct {
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver" mapstructure:"driver"` // "mysql", "pgx", "postgres", "sqlite3"
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Name            string        `yaml:"name" mapstructure:"name"`
	DSN             string        `yaml:"dsn" mapstructure:"dsn"` // Overrides host/port/user/password/name
	SQLitePath      string        `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	UseKeychain     bool          `yaml:"use_keychain" mapstructure:"use_keychain"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

type ReconcileConfig struct {
	MatchedCourseMode  string        `yaml:"matched_course_mode" mapstructure:"matched_course_mode"`
	SentinelReviewerID int64         `yaml:"sentinel_reviewer_id" mapstructure:"sentinel_reviewer_id"`
	FallbackReviewerID int64         `yaml:"fallback_reviewer_id" mapstructure:"fallback_reviewer_id"`
	LockTimeout        time.Duration `yaml:"lock_timeout" mapstructure:"lock_timeout"`
	SkipVerify         bool          `yaml:"skip_verify" mapstructure:"skip_verify"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" mapstructure:"pushgateway_url"`
	Job            string `yaml:"job" mapstructure:"job"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" mapstructure:"format"` // "text", "json"
	File   string `yaml:"file" mapstructure:"file"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          DriverMySQL,
			Host:            "localhost",
			Port:            3306,
			Name:            DefaultDatabaseName,
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Reconcile: ReconcileConfig{
			MatchedCourseMode:  MatchedCourseModeMatched,
			SentinelReviewerID: -1,
			FallbackReviewerID: 1,
			LockTimeout:        10 * time.Second,
		},
		Metrics: MetricsConfig{
			Job: "planetterp_reconcile",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from file, .env files and the environment
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	setDefaults(v, cfg)

	v.SetEnvPrefix("PLANETTERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("planetterp")
		v.AddConfigPath(".")
		v.AddConfigPath(".planetterp")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".planetterp"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := resolvePassword(cfg, NewKeyringManager()); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.name", cfg.Database.Name)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime)
	v.SetDefault("reconcile.matched_course_mode", cfg.Reconcile.MatchedCourseMode)
	v.SetDefault("reconcile.sentinel_reviewer_id", cfg.Reconcile.SentinelReviewerID)
	v.SetDefault("reconcile.fallback_reviewer_id", cfg.Reconcile.FallbackReviewerID)
	v.SetDefault("reconcile.lock_timeout", cfg.Reconcile.LockTimeout)
	v.SetDefault("metrics.job", cfg.Metrics.Job)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}

// loadEnvFiles loads .env files in order of precedence.
// godotenv never overrides variables that are already set, so the first file wins.
func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}

	if path, err := findEnvFile(); err == nil {
		_ = godotenv.Load(path)
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".planetterp", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		_ = godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies the explicit environment variables the production
// deployment sets. They take precedence over the config file.
func applyEnvOverrides(cfg *Config) {
	cfg.Database.Driver = GetString("PLANETTERP_DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Host = GetString("PLANETTERP_MYSQL_HOST", cfg.Database.Host)
	cfg.Database.Port = GetInt("PLANETTERP_MYSQL_PORT", cfg.Database.Port)
	cfg.Database.User = GetString("PLANETTERP_MYSQL_USER", cfg.Database.User)
	cfg.Database.Password = GetString("PLANETTERP_MYSQL_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = GetString("PLANETTERP_MYSQL_DB_NAME", cfg.Database.Name)
	cfg.Database.DSN = GetString("PLANETTERP_DB_DSN", cfg.Database.DSN)
	cfg.Database.UseKeychain = GetBool("PLANETTERP_DB_USE_KEYCHAIN", cfg.Database.UseKeychain)

	if path := os.Getenv("PLANETTERP_SQLITE_PATH"); path != "" {
		cfg.Database.SQLitePath = expandPath(path)
	}

	cfg.Reconcile.MatchedCourseMode = GetString("PLANETTERP_MATCHED_COURSE_MODE", cfg.Reconcile.MatchedCourseMode)
	cfg.Reconcile.SentinelReviewerID = GetInt64("PLANETTERP_SENTINEL_REVIEWER_ID", cfg.Reconcile.SentinelReviewerID)
	cfg.Reconcile.FallbackReviewerID = GetInt64("PLANETTERP_FALLBACK_REVIEWER_ID", cfg.Reconcile.FallbackReviewerID)
	cfg.Reconcile.LockTimeout = GetDuration("PLANETTERP_LOCK_TIMEOUT", cfg.Reconcile.LockTimeout)

	cfg.Metrics.PushgatewayURL = GetString("PLANETTERP_PUSHGATEWAY_URL", cfg.Metrics.PushgatewayURL)

	cfg.Log.Level = GetString("PLANETTERP_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = GetString("PLANETTERP_LOG_FORMAT", cfg.Log.Format)
	if file := os.Getenv("PLANETTERP_LOG_FILE"); file != "" {
		cfg.Log.File = expandPath(file)
	}
}

// resolvePassword fills the database password from the OS keychain when the
// environment and config file left it empty.
// Precedence: 1. Env var 2. Config file 3. Keychain
func resolvePassword(cfg *Config, km *KeyringManager) error {
	if cfg.Database.Password != "" || !cfg.Database.UseKeychain {
		return nil
	}
	if !km.IsAvailable() {
		return fmt.Errorf("database.use_keychain is set but the OS keychain is not available")
	}
	password, err := km.GetDBPassword()
	if err != nil {
		return err
	}
	cfg.Database.Password = password
	return nil
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file. The password is never written.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	db := c.Database
	db.Password = ""

	v.Set("database", db)
	v.Set("reconcile", c.Reconcile)
	v.Set("metrics", c.Metrics)
	v.Set("log", c.Log)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
