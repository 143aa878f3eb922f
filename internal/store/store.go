// Package store defines the persistence collaborator consumed by the session
// and a decorator adding timeouts and retries at that boundary.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"
)

// Repository is the store of record for categories and transactions.
// Every method is idempotent on id: saving an existing id replaces it and
// deleting a missing id succeeds.
type Repository interface {
	ListCategories(ctx context.Context) ([]core.Category, error)
	ListTransactions(ctx context.Context) ([]core.Transaction, error)
	SaveCategory(ctx context.Context, c core.Category) (core.Category, error)
	// SaveCategories persists a batch atomically.
	SaveCategories(ctx context.Context, cats []core.Category) error
	DeleteCategory(ctx context.Context, id string) error
	SaveTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	// DeleteTransaction reports whether a row was removed.
	DeleteTransaction(ctx context.Context, id string) (bool, error)
}

// Closer is implemented by repositories holding resources.
type Closer interface {
	Close() error
}

// RetryConfig controls WithRetry.
type RetryConfig struct {
	// Timeout bounds each attempt (default: 5s)
	Timeout time.Duration

	// Attempts is the total number of tries per call (default: 3)
	Attempts int

	// BaseDelay is the first backoff delay, doubled per retry (default: 100ms)
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay (default: 2s)
	MaxDelay time.Duration
}

// DefaultRetryConfig returns sensible defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Timeout:   5 * time.Second,
		Attempts:  3,
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  2 * time.Second,
	}
}

type retrying struct {
	next Repository
	cfg  RetryConfig
}

// WithRetry wraps next so every call runs under cfg.Timeout and is retried
// with exponential backoff. Domain errors and caller cancellation are
// returned immediately.
func WithRetry(next Repository, cfg RetryConfig) Repository {
	def := DefaultRetryConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	return &retrying{next: next, cfg: cfg}
}

// Unwrap returns the decorated repository.
func (r *retrying) Unwrap() Repository {
	return r.next
}

func (r *retrying) do(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		err = fn(attemptCtx)
		cancel()
		if err == nil || !retryable(ctx, err) {
			return err
		}
		if attempt == r.cfg.Attempts {
			break
		}
		delay := exponentialBackoff(r.cfg.BaseDelay, r.cfg.MaxDelay, attempt)
		slog.WarnContext(ctx, "Persistence call failed, retrying",
			"operation", op,
			"attempt", attempt,
			"delay", delay,
			"error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, r.cfg.Attempts, err)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, core.ErrValidation) && !errors.Is(err, core.ErrNotFound)
}

// exponentialBackoff returns base*2^(attempt-1) capped at limit.
func exponentialBackoff(base, limit time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return min(d, limit)
}

func (r *retrying) ListCategories(ctx context.Context) (out []core.Category, err error) {
	err = r.do(ctx, "list categories", func(ctx context.Context) error {
		out, err = r.next.ListCategories(ctx)
		return err
	})
	return out, err
}

func (r *retrying) ListTransactions(ctx context.Context) (out []core.Transaction, err error) {
	err = r.do(ctx, "list transactions", func(ctx context.Context) error {
		out, err = r.next.ListTransactions(ctx)
		return err
	})
	return out, err
}

func (r *retrying) SaveCategory(ctx context.Context, c core.Category) (out core.Category, err error) {
	err = r.do(ctx, "save category", func(ctx context.Context) error {
		out, err = r.next.SaveCategory(ctx, c)
		return err
	})
	return out, err
}

func (r *retrying) SaveCategories(ctx context.Context, cats []core.Category) error {
	return r.do(ctx, "save categories", func(ctx context.Context) error {
		return r.next.SaveCategories(ctx, cats)
	})
}

func (r *retrying) DeleteCategory(ctx context.Context, id string) error {
	return r.do(ctx, "delete category", func(ctx context.Context) error {
		return r.next.DeleteCategory(ctx, id)
	})
}

func (r *retrying) SaveTransaction(ctx context.Context, t core.Transaction) (out core.Transaction, err error) {
	err = r.do(ctx, "save transaction", func(ctx context.Context) error {
		out, err = r.next.SaveTransaction(ctx, t)
		return err
	})
	return out, err
}

func (r *retrying) DeleteTransaction(ctx context.Context, id string) (removed bool, err error) {
	err = r.do(ctx, "delete transaction", func(ctx context.Context) error {
		removed, err = r.next.DeleteTransaction(ctx, id)
		return err
	})
	return removed, err
}
