package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/nwanne56/PlanetTerp/internal/config"
)

// Dialect captures the SQL differences between the supported stores.
// Statements are written with ? placeholders and rebound per driver.
type Dialect struct {
	Driver   string
	BindType int
}

// DialectFor returns the dialect of a configured driver
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case config.DriverMySQL, config.DriverPgx, config.DriverPostgres, config.DriverSQLite:
		return Dialect{Driver: driver, BindType: sqlx.BindType(driver)}, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// IsMySQL reports whether the dialect targets MySQL
func (d Dialect) IsMySQL() bool { return d.Driver == config.DriverMySQL }

// IsPostgres reports whether the dialect targets Postgres through pgx or lib/pq
func (d Dialect) IsPostgres() bool {
	return d.Driver == config.DriverPgx || d.Driver == config.DriverPostgres
}

// IsSQLite reports whether the dialect targets SQLite
func (d Dialect) IsSQLite() bool { return d.Driver == config.DriverSQLite }

// Rebind converts ? placeholders to the driver's bind style
func (d Dialect) Rebind(query string) string {
	return sqlx.Rebind(d.BindType, query)
}

// Quote quotes an identifier
func (d Dialect) Quote(ident string) string {
	switch {
	case d.IsMySQL():
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	case d.IsPostgres():
		return pq.QuoteIdentifier(ident)
	default:
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
}

// QuoteAll quotes every identifier and joins them with ", "
func (d Dialect) QuoteAll(idents []string) string {
	quoted := make([]string, len(idents))
	for i, ident := range idents {
		quoted[i] = d.Quote(ident)
	}
	return strings.Join(quoted, ", ")
}

// CharLength returns the SQL expression for the character length of expr
func (d Dialect) CharLength(expr string) string {
	if d.IsSQLite() {
		return "LENGTH(" + expr + ")"
	}
	return "CHARACTER_LENGTH(" + expr + ")"
}

// SyncSequence advances the id sequence of table past MAX(id).
// Only Postgres needs this after rows are inserted with explicit ids; MySQL and
// SQLite move their auto-increment counters on their own.
func (d Dialect) SyncSequence(ctx context.Context, exec sqlx.ExecerContext, table string) error {
	if !d.IsPostgres() {
		return nil
	}
	query := fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%s', 'id'), (SELECT MAX(id) FROM %s))`,
		table, pq.QuoteIdentifier(table),
	)
	if _, err := exec.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("sync %s id sequence: %w", table, err)
	}
	return nil
}
