/*
Package cashbook is the business's general cash ledger: every income and
expense movement, whatever produced it. Appointment payments reach it through
the ledger.ExternalLedger contract, which Book implements.

PURPOSE:
  Keeps cash movements independent of the appointment engine. The engine only
  knows entry ids; entries carry a source type and source id so a movement
  can be traced back to the appointment that produced it.

CATEGORIES:
  Entries are filed under a named category per owner and direction. Book
  looks the category up and creates it on first use; ids are cached.

RESILIENCE:
  Breaker wraps any ExternalLedger in a circuit breaker so a failing backend
  fails fast instead of stalling every payment.

SEE ALSO:
  - ledger/mirror.go: Caller side of the contract
  - store/sqlite/cashbook.go: SQLite implementation of Store
*/
package cashbook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/ledger"
)

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrEntryNotFound    = errors.New("cash entry not found")
)

// =============================================================================
// TYPES
// =============================================================================

type Category struct {
	ID        string
	OwnerID   string
	Name      string
	Direction ledger.Direction
	CreatedAt time.Time
}

// Entry is a persisted cash movement.
type Entry struct {
	ID          string
	OwnerID     string
	CategoryID  string
	Date        calendar.Date
	Direction   ledger.Direction
	Amount      decimal.Decimal
	Method      string
	Description string
	SourceType  string
	SourceID    string
	CreatedAt   time.Time
}

// Store persists categories and entries.
type Store interface {
	FindCategory(ctx context.Context, owner, name string, dir ledger.Direction) (*Category, error)
	CreateCategory(ctx context.Context, c *Category) error
	CreateEntry(ctx context.Context, e *Entry) error
	DeleteEntry(ctx context.Context, id string) error
	ListEntries(ctx context.Context, owner string, from, to calendar.Date) ([]Entry, error)
}

// =============================================================================
// BOOK
// =============================================================================

// Book implements ledger.ExternalLedger over a Store.
type Book struct {
	Store  Store
	Logger zerolog.Logger
	NewID  func() string
	Now    func() time.Time

	categories *cache.Cache
}

var _ ledger.ExternalLedger = (*Book)(nil)

func New(store Store, logger zerolog.Logger) *Book {
	return &Book{
		Store:      store,
		Logger:     logger,
		NewID:      uuid.NewString,
		Now:        time.Now,
		categories: cache.New(30*time.Minute, time.Hour),
	}
}

// RecordEntry files e under its category and returns the entry id.
func (b *Book) RecordEntry(ctx context.Context, e ledger.Entry) (string, error) {
	if !e.Amount.IsPositive() {
		return "", fmt.Errorf("entry amount must be positive, got %s", e.Amount)
	}
	categoryID, err := b.categoryID(ctx, e.OwnerID, e.Category, e.Direction)
	if err != nil {
		return "", err
	}

	entry := &Entry{
		ID:          b.NewID(),
		OwnerID:     e.OwnerID,
		CategoryID:  categoryID,
		Date:        e.Date,
		Direction:   e.Direction,
		Amount:      e.Amount,
		Method:      e.Method,
		Description: e.Description,
		SourceType:  e.SourceType,
		SourceID:    e.SourceID,
		CreatedAt:   b.Now(),
	}
	if err := b.Store.CreateEntry(ctx, entry); err != nil {
		return "", fmt.Errorf("failed to create cash entry: %w", err)
	}

	b.Logger.Debug().
		Str("entry_id", entry.ID).
		Str("category", e.Category).
		Str("direction", string(e.Direction)).
		Str("amount", e.Amount.String()).
		Msg("cash entry recorded")
	return entry.ID, nil
}

func (b *Book) DeleteEntry(ctx context.Context, id string) error {
	if err := b.Store.DeleteEntry(ctx, id); err != nil {
		return fmt.Errorf("failed to delete cash entry %s: %w", id, err)
	}
	return nil
}

// Entries lists an owner's movements between two dates, inclusive.
func (b *Book) Entries(ctx context.Context, owner string, from, to calendar.Date) ([]Entry, error) {
	return b.Store.ListEntries(ctx, owner, from, to)
}

// categoryID finds or creates the category.
func (b *Book) categoryID(ctx context.Context, owner, name string, dir ledger.Direction) (string, error) {
	key := owner + "|" + string(dir) + "|" + name
	if id, ok := b.categories.Get(key); ok {
		return id.(string), nil
	}

	c, err := b.Store.FindCategory(ctx, owner, name, dir)
	switch {
	case err == nil:
	case errors.Is(err, ErrCategoryNotFound):
		c = &Category{ID: b.NewID(), OwnerID: owner, Name: name, Direction: dir, CreatedAt: b.Now()}
		if err := b.Store.CreateCategory(ctx, c); err != nil {
			return "", fmt.Errorf("failed to create category %q: %w", name, err)
		}
		b.Logger.Info().Str("category", name).Str("direction", string(dir)).Msg("cash category created")
	default:
		return "", fmt.Errorf("failed to look up category %q: %w", name, err)
	}

	b.categories.SetDefault(key, c.ID)
	return c.ID, nil
}

// =============================================================================
// SUMMARY
// =============================================================================

type Totals struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Net     decimal.Decimal
}

func Summarize(entries []Entry) Totals {
	t := Totals{Income: decimal.Zero, Expense: decimal.Zero}
	for _, e := range entries {
		if e.Direction == ledger.Expense {
			t.Expense = t.Expense.Add(e.Amount)
		} else {
			t.Income = t.Income.Add(e.Amount)
		}
	}
	t.Net = t.Income.Sub(t.Expense)
	return t
}
