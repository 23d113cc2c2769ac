/*
Package postgres implements the engine's storage contracts on PostgreSQL
through pgx.

PURPOSE:
  Production backing store. Same contracts and semantics as store/sqlite;
  only the dialect differs: native DATE, TIME, NUMERIC and TIMESTAMPTZ
  columns, $n placeholders, and database-enforced cascades.

INTERFACES IMPLEMENTED:
  booking.TxStore:  Appointments, payments, clients, catalog + WithTx
  publiclink.Store: Booking offers (also inside WithTx)
  cashbook.Store:   Cash categories and entries

NORMALIZATION:
  Money is read as text and parsed into decimal.Decimal; TIME columns come
  back as "HH:MM:SS" and are parsed into calendar.TimeOfDay. Nothing above
  this package sees pgx types.

CONNECTION POOL:
  Open parses the DSN into a pgxpool.Config with bounded connections and
  pings before returning.

SEE ALSO:
  - store/sqlite: SQLite implementation and its tests
  - booking/store.go: Interface definitions
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/cashbook"
	"github.com/warp/booking-engine/publiclink"
)

var (
	_ booking.TxStore  = (*Store)(nil)
	_ publiclink.Store = (*Store)(nil)
	_ cashbook.Store   = (*Store)(nil)
	_ publiclink.Store = (*txStore)(nil)
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	q querier
}

// Store is the PostgreSQL store.
type Store struct {
	queries
	pool *pgxpool.Pool
}

// Open connects, pings and migrates.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return s, nil
}

// New wraps an existing pool without migrating.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{q: pool}, pool: pool}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the schema if missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS appointments (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	date DATE NOT NULL,
	start_time TIME NOT NULL,
	end_time TIME NOT NULL,
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
	pattern_end_date DATE,
	pattern_indeterminate BOOLEAN NOT NULL DEFAULT FALSE,
	series_end_date DATE,
	reminder_sent BOOLEAN NOT NULL DEFAULT FALSE,
	reminder_sent_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	cancelled_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_appointments_owner_date ON appointments(owner_id, date, resource_id);
CREATE INDEX IF NOT EXISTS idx_appointments_series ON appointments(root_series_id, date);
CREATE INDEX IF NOT EXISTS idx_appointments_client ON appointments(client_id, status);

CREATE TABLE IF NOT EXISTS service_bookings (
	appointment_id TEXT NOT NULL REFERENCES appointments(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	service_id TEXT NOT NULL,
	service_name TEXT,
	price NUMERIC(14, 2) NOT NULL,
	duration_minutes INTEGER NOT NULL,
	PRIMARY KEY (appointment_id, position)
);

CREATE TABLE IF NOT EXISTS payments (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	appointment_id TEXT NOT NULL REFERENCES appointments(id) ON DELETE CASCADE,
	kind TEXT NOT NULL CHECK (kind IN ('deposit', 'final_payment', 'refund')),
	amount NUMERIC(14, 2) NOT NULL,
	paid_at TIMESTAMPTZ NOT NULL,
	method TEXT,
	notes TEXT,
	linked BOOLEAN NOT NULL DEFAULT FALSE,
	external_ref TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payments_appointment ON payments(appointment_id, kind);

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
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS services (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	price NUMERIC(14, 2) NOT NULL,
	duration_minutes INTEGER NOT NULL,
	requires_deposit BOOLEAN NOT NULL DEFAULT FALSE,
	deposit_percent NUMERIC(5, 2) NOT NULL DEFAULT 0,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS offers (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	client_id TEXT NOT NULL,
	service_ids JSONB NOT NULL,
	resource_id TEXT NOT NULL DEFAULT '',
	availability JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	redeemed_at TIMESTAMPTZ,
	appointment_id TEXT
);

CREATE TABLE IF NOT EXISTS cash_categories (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	direction TEXT NOT NULL CHECK (direction IN ('income', 'expense')),
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (owner_id, name, direction)
);

CREATE TABLE IF NOT EXISTS cash_entries (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	category_id TEXT NOT NULL REFERENCES cash_categories(id),
	date DATE NOT NULL,
	direction TEXT NOT NULL,
	amount NUMERIC(14, 2) NOT NULL,
	method TEXT,
	description TEXT,
	source_type TEXT,
	source_id TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cash_entries_owner_date ON cash_entries(owner_id, date);
`

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn in one transaction; an error from fn rolls it back.
func (s *Store) WithTx(ctx context.Context, fn func(booking.Store) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&txStore{queries: queries{q: tx}})
	})
}

type txStore struct {
	queries
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		TRUNCATE cash_entries, cash_categories, offers, payments,
			service_bookings, appointments, clients, services
	`)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

const (
	codeForeignKeyViolation = "23503"
)

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation
}

// optional returns nil for the empty string so it is stored as NULL.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func affected(tag pgconn.CommandTag, notFound error) error {
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

// args accumulates positional parameters and hands out $n placeholders.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}
