package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nwanne56/PlanetTerp/internal/errors"
)

// LockName is the advisory lock that serializes reconciliation runs
const LockName = "planetterp-reconcile"

// lockPollInterval is how often Postgres retries pg_try_advisory_lock
const lockPollInterval = 250 * time.Millisecond

// AcquireLock takes the session-level advisory lock on conn.
// The lock belongs to the connection, so callers must release it on the same one.
// SQLite has no advisory locks; the immediate write transaction serializes writers.
func (d Dialect) AcquireLock(ctx context.Context, conn sqlx.QueryerContext, name string, timeout time.Duration) error {
	switch {
	case d.IsMySQL():
		return acquireMySQLLock(ctx, conn, name, timeout)
	case d.IsPostgres():
		return acquirePostgresLock(ctx, conn, name, timeout)
	default:
		return nil
	}
}

// ReleaseLock releases a lock taken with AcquireLock
func (d Dialect) ReleaseLock(ctx context.Context, conn sqlx.QueryerContext, name string) error {
	var query string
	switch {
	case d.IsMySQL():
		query = `SELECT RELEASE_LOCK(?)`
	case d.IsPostgres():
		query = `SELECT pg_advisory_unlock(hashtext($1))`
	default:
		return nil
	}

	var released sql.NullBool
	if err := conn.QueryRowxContext(ctx, query, name).Scan(&released); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	if !released.Valid || !released.Bool {
		return fmt.Errorf("release lock %s: lock was not held by this session", name)
	}
	return nil
}

func acquireMySQLLock(ctx context.Context, conn sqlx.QueryerContext, name string, timeout time.Duration) error {
	// GET_LOCK returns 1 on success, 0 on timeout and NULL on error
	var got sql.NullInt64
	seconds := int(timeout / time.Second)
	if err := conn.QueryRowxContext(ctx, `SELECT GET_LOCK(?, ?)`, name, seconds).Scan(&got); err != nil {
		return errors.Classify(err, "acquire reconciliation lock")
	}
	if !got.Valid || got.Int64 != 1 {
		return errors.ConcurrencyError(nil, fmt.Sprintf("lock %s is held by another session (waited %s)", name, timeout)).
			WithContext("lock", name)
	}
	return nil
}

func acquirePostgresLock(ctx context.Context, conn sqlx.QueryerContext, name string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var got bool
		if err := conn.QueryRowxContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, name).Scan(&got); err != nil {
			return errors.Classify(err, "acquire reconciliation lock")
		}
		if got {
			return nil
		}
		if !time.Now().Before(deadline) {
			return errors.ConcurrencyError(nil, fmt.Sprintf("lock %s is held by another session (waited %s)", name, timeout)).
				WithContext("lock", name)
		}

		select {
		case <-ctx.Done():
			return errors.ConcurrencyError(ctx.Err(), "acquire reconciliation lock")
		case <-time.After(lockPollInterval):
		}
	}
}
