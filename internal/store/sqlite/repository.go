// Package sqlite is the SQLite store of record, using the pure-Go
// modernc.org/sqlite driver and embedded golang-migrate migrations.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"

	_ "modernc.org/sqlite"
)

const categoryColumns = `id, name, type, level, parent_id, is_active, is_fixed_expense`

const upsertCategory = `
INSERT INTO categories (id, name, type, level, parent_id, is_active, is_fixed_expense)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    type = excluded.type,
    level = excluded.level,
    parent_id = excluded.parent_id,
    is_active = excluded.is_active,
    is_fixed_expense = excluded.is_fixed_expense,
    updated_at = CURRENT_TIMESTAMP`

const upsertTransaction = `
INSERT INTO transactions (id, description, amount, date, year, month, category_id, type)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    description = excluded.description,
    amount = excluded.amount,
    date = excluded.date,
    year = excluded.year,
    month = excluded.month,
    category_id = excluded.category_id,
    type = excluded.type,
    updated_at = CURRENT_TIMESTAMP`

type Repository struct {
	db *sql.DB
}

// NewRepository opens (creating if needed) the database at dbPath and runs
// pending migrations.
func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serialises writers and keeps pragmas in effect.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY level, name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var (
			c        core.Category
			typ      string
			parentID sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &typ, &c.Level, &parentID, &c.IsActive, &c.IsFixedExpense); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Type = core.CategoryType(typ)
		c.ParentID = parentID.String
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return out, nil
}

func (r *Repository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, description, amount, date, category_id, type
FROM transactions
ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			t    core.Transaction
			date string
			typ  string
		)
		if err := rows.Scan(&t.ID, &t.Description, &t.Amount, &date, &t.CategoryID, &typ); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		d, err := core.ParseDate(date)
		if err != nil {
			slog.WarnContext(ctx, "Skipping transaction with unparseable date", "id", t.ID, "date", date, "error", err)
			continue
		}
		t.Date = d
		t.Type = core.CategoryType(typ)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *Repository) SaveCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if _, err := r.db.ExecContext(ctx, upsertCategory, categoryArgs(c)...); err != nil {
		return core.Category{}, fmt.Errorf("save category %s: %w", c.ID, err)
	}
	slog.InfoContext(ctx, "Category saved to SQLite", "id", c.ID, "name", c.Name, "level", c.Level)
	return c, nil
}

// SaveCategories upserts the batch in one SQL transaction.
func (r *Repository) SaveCategories(ctx context.Context, cats []core.Category) error {
	for _, c := range cats {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertCategory)
	if err != nil {
		return fmt.Errorf("prepare category upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range cats {
		if _, err := stmt.ExecContext(ctx, categoryArgs(c)...); err != nil {
			return fmt.Errorf("save category %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit categories: %w", err)
	}
	slog.InfoContext(ctx, "Category batch saved to SQLite", "count", len(cats))
	return nil
}

func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	slog.InfoContext(ctx, "Category deleted from SQLite", "id", id)
	return nil
}

func (r *Repository) SaveTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	_, err := r.db.ExecContext(ctx, upsertTransaction,
		t.ID, t.Description, t.Amount, t.Date.String(), t.Date.Year(), t.Date.Month(), t.CategoryID, string(t.Type))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction %s: %w", t.ID, err)
	}
	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"amount", t.Amount,
		"date", t.Date.String(),
		"category_id", t.CategoryID)
	return t, nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete transaction %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func categoryArgs(c core.Category) []any {
	var parent any
	if c.ParentID != "" {
		parent = c.ParentID
	}
	return []any{c.ID, c.Name, string(c.Type), c.Level, parent, c.IsActive, c.IsFixedExpense}
}
