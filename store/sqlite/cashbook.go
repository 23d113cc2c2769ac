package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/cashbook"
	"github.com/warp/booking-engine/ledger"
)

// =============================================================================
// CASH BOOK (cashbook.Store interface)
// =============================================================================

func (q *queries) FindCategory(ctx context.Context, owner, name string, dir ledger.Direction) (*cashbook.Category, error) {
	var (
		c                 cashbook.Category
		direction, create string
	)
	err := q.q.QueryRowContext(ctx, `
		SELECT id, owner_id, name, direction, created_at
		FROM cash_categories WHERE owner_id = ? AND name = ? AND direction = ?
	`, owner, name, string(dir)).Scan(&c.ID, &c.OwnerID, &c.Name, &direction, &create)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cashbook.ErrCategoryNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Direction = ledger.Direction(direction)
	if c.CreatedAt, err = parseTime(create); err != nil {
		return nil, err
	}
	return &c, nil
}

func (q *queries) CreateCategory(ctx context.Context, c *cashbook.Category) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO cash_categories (id, owner_id, name, direction, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.OwnerID, c.Name, string(c.Direction), formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create category %q: %w", c.Name, err)
	}
	return nil
}

func (q *queries) CreateEntry(ctx context.Context, e *cashbook.Entry) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO cash_entries (id, owner_id, category_id, date, direction, amount, method,
			description, source_type, source_id, created_at)
		VALUES (`+placeholders(11)+`)
	`, e.ID, e.OwnerID, e.CategoryID, e.Date.String(), string(e.Direction), e.Amount.String(),
		nullString(e.Method), nullString(e.Description), nullString(e.SourceType),
		nullString(e.SourceID), formatTime(e.CreatedAt))
	if isForeignKeyError(err) {
		return cashbook.ErrCategoryNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to create cash entry: %w", err)
	}
	return nil
}

func (q *queries) DeleteEntry(ctx context.Context, id string) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM cash_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cash entry: %w", err)
	}
	return affected(res, cashbook.ErrEntryNotFound)
}

// ListEntries returns an owner's entries between from and to, inclusive.
func (q *queries) ListEntries(ctx context.Context, owner string, from, to calendar.Date) ([]cashbook.Entry, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, owner_id, category_id, date, direction, amount, method, description,
			source_type, source_id, created_at
		FROM cash_entries
		WHERE owner_id = ? AND date >= ? AND date <= ?
		ORDER BY date, created_at
	`, owner, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list cash entries: %w", err)
	}
	defer rows.Close()

	var out []cashbook.Entry
	for rows.Next() {
		var (
			e                                    cashbook.Entry
			date, direction, amount, created     string
			method, description, srcType, srcID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.CategoryID, &date, &direction, &amount,
			&method, &description, &srcType, &srcID, &created); err != nil {
			return nil, err
		}
		e.Direction = ledger.Direction(direction)
		e.Method = method.String
		e.Description = description.String
		e.SourceType = srcType.String
		e.SourceID = srcID.String
		if e.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("cash entry %s: invalid amount %q: %w", e.ID, amount, err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
