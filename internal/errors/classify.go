package errors

import (
	"context"
	"database/sql/driver"
	stderrors "errors"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// MySQL server error numbers treated as constraint violations
var mysqlConstraintErrors = map[uint16]bool{
	1048: true, // ER_BAD_NULL_ERROR
	1062: true, // ER_DUP_ENTRY
	1216: true, // ER_NO_REFERENCED_ROW
	1217: true, // ER_ROW_IS_REFERENCED
	1451: true, // ER_ROW_IS_REFERENCED_2
	1452: true, // ER_NO_REFERENCED_ROW_2
}

// Classify maps a driver error onto the error taxonomy.
// Already structured errors are returned unchanged.
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}

	switch {
	case isContention(err):
		return ConcurrencyError(err, message)
	case isConstraint(err):
		return ConstraintViolation(err, message)
	case isConnectivity(err):
		return ConnectivityError(err, message)
	default:
		return DatabaseError(err, message)
	}
}

// MySQL lock wait timeout and deadlock
var mysqlContentionErrors = map[uint16]bool{
	1205: true,
	1213: true,
}

// Postgres serialization failure, deadlock and lock_not_available
var pgContentionCodes = map[string]bool{
	"40001": true,
	"40P01": true,
	"55P03": true,
}

// isContention reports errors caused by another session holding locks on the store
func isContention(err error) bool {
	var myErr *mysql.MySQLError
	if stderrors.As(err, &myErr) {
		return mysqlContentionErrors[myErr.Number]
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgContentionCodes[pgErr.Code]
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return pgContentionCodes[string(pqErr.Code)]
	}

	var liteErr sqlite3.Error
	if stderrors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	return false
}

func isConstraint(err error) bool {
	var myErr *mysql.MySQLError
	if stderrors.As(err, &myErr) {
		return mysqlConstraintErrors[myErr.Number]
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "23")
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return pqErr.Code.Class() == "23"
	}

	var liteErr sqlite3.Error
	if stderrors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrConstraint
	}

	return false
}

func isConnectivity(err error) bool {
	if stderrors.Is(err, driver.ErrBadConn) || stderrors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var connErr *pgconn.ConnectError
	if stderrors.As(err, &connErr) {
		return true
	}

	var netErr net.Error
	return stderrors.As(err, &netErr)
}
