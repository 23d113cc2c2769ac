/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence contract the engine consumes with one
  database file: appointments and their service lines, payments, clients,
  the service catalog, public booking offers and the cash book.

INTERFACES IMPLEMENTED:
  booking.TxStore:  Appointments, payments, clients, catalog + WithTx
  publiclink.Store: Booking offers (also inside WithTx)
  cashbook.Store:   Cash categories and entries

NORMALIZATION:
  Rows are converted to the canonical booking types exactly once, in the
  scan helpers. Older shapes are accepted there and nowhere else:
  - status spellings such as "canceled" or "no-show"
  - dates stored as full timestamps
  - service lines without a snapshotted name (falls back to the catalog)

KEY TABLES:
  appointments:     One row per appointment, recurrence pattern inline
  service_bookings: Snapshotted service lines (cascade on delete)
  payments:         Deposits, final payments and refunds (cascade on delete)
  clients, services: Directory and catalog
  offers:           Public booking offers, availability as JSON
  cash_categories, cash_entries: The business cash book

INDEXES:
  - idx_appointments_owner_date: Day views and conflict checks (hot path)
  - idx_appointments_series:     Propagation and extension
  - idx_appointments_client:     Deposit credit lookup
  - idx_payments_appointment:    Balance computation

CONCURRENCY:
  WithTx and Reset hold a mutex so compound writes do not interleave.
  Everything else relies on SQLite's single-writer locking with a busy
  timeout. ":memory:" databases are pinned to one connection, otherwise
  every pooled connection would see its own empty database.

WAL MODE:
  File databases are opened with WAL: readers never block the writer.

USAGE:
  store, err := sqlite.New("./data/booking.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New() with CREATE ... IF NOT EXISTS.

SEE ALSO:
  - booking/store.go: Interface definitions
  - booking/store/memory.go: In-memory implementation for testing
  - store/postgres: Same contracts on PostgreSQL
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/cashbook"
	"github.com/warp/booking-engine/publiclink"
)

var (
	_ booking.TxStore  = (*Store)(nil)
	_ publiclink.Store = (*Store)(nil)
	_ cashbook.Store   = (*Store)(nil)
	_ publiclink.Store = (*txStore)(nil)
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement; Store runs them on the pool, txStore on a
// transaction.
type queries struct {
	q querier
}

// Store implements all storage interfaces using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{queries: queries{q: db}, db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS appointments (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	date TEXT NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	status TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT 'manual',
	client_id TEXT,
	guest_name TEXT,
	resource_id TEXT NOT NULL DEFAULT '',
	modality TEXT NOT NULL DEFAULT 'in_person',
	video_link TEXT,
	notes TEXT,
	internal_notes TEXT,
	root_series_id TEXT,
	pattern_type TEXT,
	pattern_count INTEGER NOT NULL DEFAULT 0,
	pattern_end_date TEXT,
	pattern_indeterminate INTEGER NOT NULL DEFAULT 0,
	series_end_date TEXT,
	reminder_sent INTEGER NOT NULL DEFAULT 0,
	reminder_sent_at TEXT,
	completed_at TEXT,
	cancelled_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_appointments_owner_date
	ON appointments(owner_id, date, resource_id);
CREATE INDEX IF NOT EXISTS idx_appointments_series
	ON appointments(root_series_id, date);
CREATE INDEX IF NOT EXISTS idx_appointments_client
	ON appointments(client_id, status);

CREATE TABLE IF NOT EXISTS service_bookings (
	appointment_id TEXT NOT NULL REFERENCES appointments(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	service_id TEXT NOT NULL,
	service_name TEXT,
	price TEXT NOT NULL,
	duration_minutes INTEGER NOT NULL,
	PRIMARY KEY (appointment_id, position)
);

CREATE TABLE IF NOT EXISTS payments (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	appointment_id TEXT NOT NULL REFERENCES appointments(id) ON DELETE CASCADE,
	kind TEXT NOT NULL CHECK (kind IN ('deposit', 'final_payment', 'refund')),
	amount TEXT NOT NULL,
	paid_at TEXT NOT NULL,
	method TEXT,
	notes TEXT,
	linked INTEGER NOT NULL DEFAULT 0,
	external_ref TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payments_appointment
	ON payments(appointment_id, kind);

CREATE TABLE IF NOT EXISTS clients (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	phone TEXT,
	handle TEXT,
	email TEXT,
	street TEXT,
	city TEXT,
	province TEXT,
	post_code TEXT,
	notes TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_clients_owner ON clients(owner_id, name);

CREATE TABLE IF NOT EXISTS services (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	price TEXT NOT NULL,
	duration_minutes INTEGER NOT NULL,
	requires_deposit INTEGER NOT NULL DEFAULT 0,
	deposit_percent TEXT NOT NULL DEFAULT '0',
	active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS offers (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	client_id TEXT NOT NULL,
	service_ids TEXT NOT NULL,
	resource_id TEXT NOT NULL DEFAULT '',
	availability TEXT NOT NULL,
	created_at TEXT NOT NULL,
	expires_at TEXT NOT NULL,
	redeemed_at TEXT,
	appointment_id TEXT
);

CREATE TABLE IF NOT EXISTS cash_categories (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	direction TEXT NOT NULL CHECK (direction IN ('income', 'expense')),
	created_at TEXT NOT NULL,
	UNIQUE (owner_id, name, direction)
);

CREATE TABLE IF NOT EXISTS cash_entries (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	category_id TEXT NOT NULL REFERENCES cash_categories(id),
	date TEXT NOT NULL,
	direction TEXT NOT NULL,
	amount TEXT NOT NULL,
	method TEXT,
	description TEXT,
	source_type TEXT,
	source_id TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cash_entries_owner_date
	ON cash_entries(owner_id, date);
`

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn inside one database transaction. The store handed to fn
// also implements publiclink.Store so offers can be redeemed atomically.
func (s *Store) WithTx(ctx context.Context, fn func(booking.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{queries: queries{q: sqlTx}}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	queries
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"cash_entries", "cash_categories", "offers", "payments",
		"service_bookings", "appointments", "clients", "services",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseDate accepts "YYYY-MM-DD" and full timestamps written by older rows.
func parseDate(s string) (calendar.Date, error) {
	if len(s) > 10 {
		s = s[:10]
	}
	return calendar.ParseDate(s)
}

func nullDate(d *calendar.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(ns sql.NullString) (*calendar.Date, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := parseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isForeignKeyError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// affected maps a zero-row write to notFound.
func affected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
