package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a row does not exist or is not visible to the caller
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when registering an email that is already taken
	ErrDuplicateEmail = errors.New("email already registered")
)

// Driver names
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Database wraps a SQLite or PostgreSQL connection
type Database struct {
	db     *sql.DB
	driver string
}

// New opens the database named by dsn. postgres:// and postgresql:// DSNs
// use lib/pq, anything else is treated as a SQLite file path.
func New(dsn string) (*Database, error) {
	driver := DriverSQLite
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = DriverPostgres
	}

	if driver == DriverSQLite && !strings.Contains(dsn, "_time_format=") {
		// Fixed-width timestamps so ORDER BY and range filters compare correctly
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_time_format=sqlite"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// Enable WAL mode for better concurrent access
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
		// foreign_keys is per connection
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db, driver: driver}, nil
}

// Driver returns the driver in use
func (d *Database) Driver() string {
	return d.driver
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks the connection
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Migrate runs database migrations
func (d *Database) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			phone TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_players (
			user_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, player_id),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			animal TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			alert_level TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			bbox TEXT NOT NULL DEFAULT '',
			camera_id TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMP NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS outbox (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			msg_key TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			processed_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_user_time ON alerts(user_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_time ON alerts(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(processed_at, created_at)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Printf("[Database] Migrations completed (%s)", d.driver)
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL
func (d *Database) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *Database) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.querier(ctx).ExecContext(ctx, d.rebind(query), args...)
}

func (d *Database) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.querier(ctx).QueryContext(ctx, d.rebind(query), args...)
}

func (d *Database) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.querier(ctx).QueryRowContext(ctx, d.rebind(query), args...)
}

// isUniqueViolation reports whether err is a unique constraint failure on
// either backend
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// now returns the current time in the form stored in the database
func now() time.Time {
	return dbTime(time.Now())
}

// dbTime normalizes t to UTC microseconds so both backends store and order
// it identically
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
