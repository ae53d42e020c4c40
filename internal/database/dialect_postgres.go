package database

import (
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	_ "github.com/lib/pq"
)

// PostgresDialect implements Dialect for PostgreSQL. The same SQL runs on
// either lib/pq ("postgres") or pgx's database/sql driver ("pgx").
type PostgresDialect struct {
	driver string
}

// NewPostgresDialect creates a new PostgreSQL dialect backed by lib/pq
func NewPostgresDialect() *PostgresDialect {
	return &PostgresDialect{driver: "postgres"}
}

// NewPgxDialect creates a PostgreSQL dialect backed by the pgx stdlib driver
func NewPgxDialect() *PostgresDialect {
	return &PostgresDialect{driver: "pgx"}
}

func (d *PostgresDialect) DriverName() string {
	return d.driver
}

func (d *PostgresDialect) DSN(config DialectConfig) string {
	return config.URL
}

func (d *PostgresDialect) RewriteQuery(query string) string {
	// PostgreSQL uses $1, $2, etc. instead of ?
	return rewritePlaceholdersToNumbered(query)
}

func (d *PostgresDialect) SupportsLastInsertId() bool {
	// PostgreSQL doesn't support LastInsertId(), needs RETURNING clause
	return false
}

func (d *PostgresDialect) SupportsRowLocking() bool {
	return true
}

func (d *PostgresDialect) ForUpdate() string {
	return " FOR UPDATE"
}

func (d *PostgresDialect) ConfigureConnection(db *sql.DB) error {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
	return nil
}

func (d *PostgresDialect) MigrationsSubdir() string {
	return "postgres"
}

func (d *PostgresDialect) CreateMigrationsTableQuery() string {
	return `
		CREATE TABLE IF NOT EXISTS migrations (
			id BIGSERIAL PRIMARY KEY,
			filename TEXT UNIQUE NOT NULL,
			executed_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);
	`
}
