// Package sqlstore persists drafts, submissions and metric history in SQLite
// or Postgres through database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"   // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/opsboard/pulse/pkg/logger"
)

// Dialect selects placeholder style and column types.
type Dialect string

// Supported dialects. Their values are the database/sql driver names.
const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ErrUnsupportedDriver is returned by Open for unknown drivers.
var ErrUnsupportedDriver = errors.New("unsupported storage driver")

const timeLayout = time.RFC3339Nano

// Option applies a configuration option to the DB.
type Option func(*DB)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *DB) {
		if l != nil {
			d.log = l
		}
	}
}

// DB wraps a *sql.DB with the dialect its queries are written for.
type DB struct {
	db      *sql.DB
	dialect Dialect
	log     logger.Logger
}

// Open connects with driver ("sqlite" or "postgres"), pings, and creates the
// tables when missing.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*DB, error) {
	dialect := Dialect(driver)
	if dialect != SQLite && dialect != Postgres {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if dialect == SQLite {
		// One connection keeps ":memory:" databases shared and serializes writers.
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	d := New(conn, dialect, opts...)
	if err := d.Migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	d.log.Info(ctx, "storage ready", logger.String("driver", driver))
	return d, nil
}

// New wraps an open connection. It does not create tables; call Migrate.
func New(conn *sql.DB, dialect Dialect, opts ...Option) *DB {
	d := &DB{db: conn, dialect: dialect}
	for _, opt := range opts {
		opt(d)
	}
	d.log = logger.OrGet(d.log, "sqlstore")
	return d
}

// Migrate creates the tables when missing.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS drafts (
			subject_key TEXT NOT NULL,
			period TEXT NOT NULL,
			fields TEXT NOT NULL,
			saved_at TEXT NOT NULL,
			PRIMARY KEY (subject_key, period)
		)`,
		`CREATE TABLE IF NOT EXISTS submissions (
			subject_key TEXT NOT NULL,
			period TEXT NOT NULL,
			fields TEXT NOT NULL,
			submitted_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (subject_key, period)
		)`,
		`CREATE TABLE IF NOT EXISTS metric_records (
			subject_id TEXT NOT NULL,
			period TEXT NOT NULL,
			metric_values TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (subject_id, period)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (d *DB) Close() error { return d.db.Close() }

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

// Drafts returns the draft persistence view.
func (d *DB) Drafts() *Drafts { return &Drafts{d: d} }

// Submissions returns the submission store view.
func (d *DB) Submissions() *Submissions { return &Submissions{d: d} }

// Metrics returns the metric history view.
func (d *DB) Metrics() *Metrics { return &Metrics{d: d} }

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func (d *DB) rebind(q string) string {
	if d.dialect != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
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

func (d *DB) exec(ctx context.Context, q string, args ...any) error {
	_, err := d.db.ExecContext(ctx, d.rebind(q), args...)
	return err
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
