package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/nwanne56/PlanetTerp/internal/config"
	"github.com/nwanne56/PlanetTerp/internal/errors"
	"github.com/sirupsen/logrus"
)

// DB wraps the sqlx pool together with the dialect of its driver
type DB struct {
	*sqlx.DB
	Dialect Dialect
	logger  *logrus.Logger
}

// Open connects to the store described by cfg and verifies connectivity.
// Credentials are never logged.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *logrus.Logger) (*DB, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, errors.ConfigError(err.Error())
	}

	dsn, err := DSN(cfg)
	if err != nil {
		return nil, errors.ConfigError(err.Error())
	}

	if dialect.IsSQLite() && cfg.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, errors.ConfigErrorf("create database directory: %v", err)
		}
	}

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, errors.ConnectivityError(err, "open database")
	}

	// Fail fast on startup
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.ConnectivityError(err, fmt.Sprintf("connect to %s at %s", cfg.Driver, address(cfg))).
			WithContext("driver", cfg.Driver)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	logger.WithFields(logrus.Fields{
		"driver":   cfg.Driver,
		"address":  address(cfg),
		"database": cfg.Name,
	}).Info("database connected")

	return &DB{DB: db, Dialect: dialect, logger: logger}, nil
}

// Wrap adopts an existing sqlx pool
func Wrap(db *sqlx.DB, logger *logrus.Logger) (*DB, error) {
	dialect, err := DialectFor(db.DriverName())
	if err != nil {
		return nil, err
	}
	return &DB{DB: db, Dialect: dialect, logger: logger}, nil
}

// Close closes the pool
func (db *DB) Close() error {
	err := db.DB.Close()
	if db.logger != nil {
		db.logger.Debug("database closed")
	}
	return err
}

// DSN builds the driver-specific data source name from cfg
func DSN(cfg config.DatabaseConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	switch cfg.Driver {
	case config.DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		mc.DBName = cfg.Name
		mc.ParseTime = true
		mc.Params = map[string]string{"charset": "utf8mb4"}
		return mc.FormatDSN(), nil

	case config.DriverPgx, config.DriverPostgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Path:     "/" + cfg.Name,
			RawQuery: "sslmode=disable",
		}
		return u.String(), nil

	case config.DriverSQLite:
		if cfg.SQLitePath == "" {
			return "", fmt.Errorf("sqlite path is required")
		}
		return SQLiteDSN(cfg.SQLitePath, 5000), nil

	default:
		return "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// SQLiteDSN returns a DSN with foreign keys enforced and immediate write transactions
func SQLiteDSN(path string, busyTimeoutMS int) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_txlock=immediate&_busy_timeout=%d", path, busyTimeoutMS)
}

func address(cfg config.DatabaseConfig) string {
	if cfg.Driver == config.DriverSQLite {
		return cfg.SQLitePath
	}
	if cfg.DSN != "" {
		return "(dsn)"
	}
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}
