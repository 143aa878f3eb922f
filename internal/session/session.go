// Package session owns the in-memory ledger snapshot for one editing user.
// Mutations are computed on a copy, written to the store of record and only
// then adopted, so a failed write never leaves memory ahead of storage.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/cache"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/category"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/events"
	applog "github.com/FlashinnightPT/expense-echo-manager-sub001/internal/log"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/metrics"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/store"
	"github.com/google/uuid"
)

var (
	// ErrReadOnly is returned by every mutation when the session cannot edit.
	ErrReadOnly = errors.New("session is read-only")
	// ErrPersistence wraps failures of the store of record.
	ErrPersistence = errors.New("persistence failed")
)

// Options configures a Session. The zero value is an editable session with
// no notifications, no metrics and a small report cache.
type Options struct {
	ReadOnly bool
	// Origin identifies this process in published changes. Defaults to a uuid.
	Origin   string
	Notifier events.Notifier
	Metrics  *metrics.Metrics
	Logger   *applog.Logger
	NewID    category.IDGenerator
	Now      func() time.Time

	CacheSize int
	CacheTTL  time.Duration
}

type Session struct {
	repo     store.Repository
	notifier events.Notifier
	metrics  *metrics.Metrics
	logger   *applog.Logger
	origin   string
	canEdit  bool
	tree     category.Tree
	newID    category.IDGenerator
	now      func() time.Time
	reports  *cache.LRU[string, any]

	// writeMu serialises mutations so each one starts from the latest
	// snapshot; mu guards the snapshot itself.
	writeMu sync.Mutex
	mu      sync.RWMutex
	cats    category.Store
	txns    []core.Transaction
	gen     uint64
	loaded  bool
}

func New(repo store.Repository, opts Options) *Session {
	if opts.Notifier == nil {
		opts.Notifier = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.NewID == nil {
		opts.NewID = category.NewID
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Origin == "" {
		opts.Origin = uuid.NewString()
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	return &Session{
		repo:     repo,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   opts.Logger.WithComponent(applog.ComponentSession),
		origin:   opts.Origin,
		canEdit:  !opts.ReadOnly,
		tree:     category.NewTree(opts.NewID),
		newID:    opts.NewID,
		now:      opts.Now,
		reports:  cache.NewLRU[string, any](opts.CacheSize, opts.CacheTTL),
	}
}

// Load replaces the snapshot with the contents of the store of record.
func (s *Session) Load(ctx context.Context) error {
	cats, err := s.repo.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("%w: list categories: %w", ErrPersistence, err)
	}
	txns, err := s.repo.ListTransactions(ctx)
	if err != nil {
		return fmt.Errorf("%w: list transactions: %w", ErrPersistence, err)
	}

	s.mu.Lock()
	s.cats = category.NewStore(cats)
	s.txns = txns
	s.gen++
	s.loaded = true
	s.mu.Unlock()
	s.reports.Purge()

	s.logger.InfoContext(ctx, "Ledger snapshot loaded",
		"categories", len(cats),
		"transactions", len(txns))
	return nil
}

// Ready reports whether a snapshot has been loaded.
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *Session) CanEdit() bool { return s.canEdit }

func (s *Session) Origin() string { return s.origin }

// Cache exposes the report cache for periodic cleanup.
func (s *Session) Cache() cache.Cleaner { return s.reports }

// Categories returns the current category snapshot.
func (s *Session) Categories() category.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cats
}

// Hierarchy returns navigation helpers over the current snapshot.
func (s *Session) Hierarchy() category.Hierarchy {
	return category.NewHierarchy(s.Categories())
}

// Transactions returns a copy of every transaction.
func (s *Session) Transactions() []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Transaction(nil), s.txns...)
}

// TransactionsIn returns the transactions of year, further restricted to
// month when month is between 1 and 12.
func (s *Session) TransactionsIn(year, month int) []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, t := range s.txns {
		if t.Date.Year() != year {
			continue
		}
		if month >= 1 && month <= 12 && t.Date.Month() != month {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Transaction returns the transaction with id.
func (s *Session) Transaction(id string) (core.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.txns {
		if t.ID == id {
			return t, true
		}
	}
	return core.Transaction{}, false
}

// snapshot returns the state a mutation starts from.
func (s *Session) snapshot() (category.Store, []core.Transaction) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cats, s.txns
}

func (s *Session) adopt(cats category.Store, txns []core.Transaction) {
	s.mu.Lock()
	s.cats = cats
	s.txns = txns
	s.gen++
	s.mu.Unlock()
	s.reports.Purge()
}

// mutate runs one category operation end to end: compute on the snapshot,
// persist the change, adopt the new snapshot and announce it.
func (s *Session) mutate(ctx context.Context, op string, fn func(category.Store, []core.Transaction) (category.Store, category.Change, error)) error {
	if !s.canEdit {
		s.metrics.TreeOperation(op, ErrReadOnly)
		return ErrReadOnly
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cats, txns := s.snapshot()
	next, change, err := fn(cats, txns)
	if err == nil && !change.Empty() {
		err = s.persistCategories(ctx, op, change)
		if err == nil {
			s.adopt(next, txns)
		}
	}
	s.metrics.TreeOperation(op, err)
	if err != nil {
		s.logger.WarnContext(ctx, "Category operation failed", applog.FieldOperation, op, applog.FieldError, err)
		return err
	}
	for _, c := range change.Saved {
		s.publish(ctx, events.Change{Entity: events.EntityCategory, Op: events.OpSaved, ID: c.ID})
	}
	for _, id := range change.Deleted {
		s.publish(ctx, events.Change{Entity: events.EntityCategory, Op: events.OpDeleted, ID: id})
	}
	return nil
}

func (s *Session) persistCategories(ctx context.Context, op string, change category.Change) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObservePersist(op, time.Since(start)) }()

	switch len(change.Saved) {
	case 0:
	case 1:
		if _, err := s.repo.SaveCategory(ctx, change.Saved[0]); err != nil {
			return fmt.Errorf("%w: save category: %w", ErrPersistence, err)
		}
	default:
		if err := s.repo.SaveCategories(ctx, change.Saved); err != nil {
			return fmt.Errorf("%w: save %d categories: %w", ErrPersistence, len(change.Saved), err)
		}
	}
	for _, id := range change.Deleted {
		if err := s.repo.DeleteCategory(ctx, id); err != nil {
			return fmt.Errorf("%w: delete category: %w", ErrPersistence, err)
		}
	}
	return nil
}

func (s *Session) publish(ctx context.Context, c events.Change) {
	c.Origin = s.origin
	if c.At.IsZero() {
		c.At = s.now().UTC()
	}
	err := s.notifier.Publish(ctx, c)
	s.metrics.ChangeNotification("out", err)
	if err != nil {
		// The write already succeeded; other readers catch up on their next reload.
		s.logger.WarnContext(ctx, "Failed to publish change",
			"entity", c.Entity,
			"id", c.ID,
			applog.FieldError, err)
	}
}

// CreateCategory adds a category to the tree.
func (s *Session) CreateCategory(ctx context.Context, req category.NewCategory) (core.Category, error) {
	var created core.Category
	err := s.mutate(ctx, applog.OpCreate, func(cats category.Store, _ []core.Transaction) (category.Store, category.Change, error) {
		next, c, change, err := s.tree.Create(cats, req)
		created = c
		return next, change, err
	})
	return created, err
}

// RenameCategory changes a category's name.
func (s *Session) RenameCategory(ctx context.Context, id, name string) (core.Category, error) {
	var renamed core.Category
	err := s.mutate(ctx, applog.OpRename, func(cats category.Store, _ []core.Transaction) (category.Store, category.Change, error) {
		next, c, change, err := s.tree.Rename(cats, id, name)
		renamed = c
		return next, change, err
	})
	return renamed, err
}

// MoveCategory reparents id, or makes it a root when parentID is empty, and
// returns the moved category.
func (s *Session) MoveCategory(ctx context.Context, id, parentID string) (core.Category, error) {
	err := s.mutate(ctx, applog.OpMove, func(cats category.Store, _ []core.Transaction) (category.Store, category.Change, error) {
		return s.tree.Move(cats, id, parentID)
	})
	if err != nil {
		return core.Category{}, err
	}
	c, _ := s.Categories().Get(id)
	return c, nil
}

// DeleteCategory removes a childless category no transaction references.
func (s *Session) DeleteCategory(ctx context.Context, id string) error {
	return s.mutate(ctx, applog.OpDelete, func(cats category.Store, txns []core.Transaction) (category.Store, category.Change, error) {
		return s.tree.Delete(cats, id, txns)
	})
}

func (s *Session) SetCategoryActive(ctx context.Context, id string, active bool) (core.Category, error) {
	var out core.Category
	err := s.mutate(ctx, applog.OpToggle, func(cats category.Store, _ []core.Transaction) (category.Store, category.Change, error) {
		next, c, change, err := s.tree.SetActive(cats, id, active)
		out = c
		return next, change, err
	})
	return out, err
}

func (s *Session) SetCategoryFixedExpense(ctx context.Context, id string, fixed bool) (core.Category, error) {
	var out core.Category
	err := s.mutate(ctx, applog.OpToggle, func(cats category.Store, _ []core.Transaction) (category.Store, category.Change, error) {
		next, c, change, err := s.tree.SetFixedExpense(cats, id, fixed)
		out = c
		return next, change, err
	})
	return out, err
}

// UpdateCategory applies every present field of u as one change: a single
// write and a single notification, or nothing when any field is rejected.
func (s *Session) UpdateCategory(ctx context.Context, id string, u category.Update) (core.Category, error) {
	var out core.Category
	err := s.mutate(ctx, applog.OpUpdate, func(cats category.Store, _ []core.Transaction) (category.Store, category.Change, error) {
		next, c, change, err := s.tree.Update(cats, id, u)
		out = c
		return next, change, err
	})
	return out, err
}

// SaveTransaction creates t, or replaces the transaction with the same id.
// An empty id is assigned. The category must exist and its type wins over
// t.Type.
func (s *Session) SaveTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if !s.canEdit {
		return core.Transaction{}, ErrReadOnly
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	saved, _, err := s.saveTransaction(ctx, t, false)
	return saved, err
}

// UpdateTransaction replaces the transaction with id. A move to another year
// announces the old year as well.
func (s *Session) UpdateTransaction(ctx context.Context, id string, t core.Transaction) (core.Transaction, error) {
	if !s.canEdit {
		return core.Transaction{}, ErrReadOnly
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	t.ID = id
	saved, old, err := s.saveTransaction(ctx, t, true)
	if err == nil && old.Date.Year() != saved.Date.Year() {
		s.publish(ctx, events.Change{Entity: events.EntityTransaction, Op: events.OpSaved, ID: id, Year: old.Date.Year()})
	}
	return saved, err
}

// saveTransaction persists t and adopts it; callers hold writeMu. With
// mustExist an unknown id is a NotFoundError. It also returns the replaced
// transaction, if any.
func (s *Session) saveTransaction(ctx context.Context, t core.Transaction, mustExist bool) (core.Transaction, core.Transaction, error) {
	cats, txns := s.snapshot()
	var old core.Transaction
	found := false
	for _, existing := range txns {
		if t.ID != "" && existing.ID == t.ID {
			old, found = existing, true
			break
		}
	}
	if mustExist && !found {
		return core.Transaction{}, core.Transaction{}, &core.NotFoundError{Kind: "transaction", ID: t.ID}
	}

	t.Description = strings.TrimSpace(t.Description)
	c, ok := cats.Get(t.CategoryID)
	if !ok {
		if strings.TrimSpace(t.CategoryID) == "" {
			return core.Transaction{}, old, &core.ValidationError{Field: "categoryId", Reason: "must not be blank"}
		}
		return core.Transaction{}, old, &core.NotFoundError{Kind: "category", ID: t.CategoryID}
	}
	t.Type = c.Type
	if t.ID == "" {
		t.ID = s.newID()
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, old, err
	}

	start := time.Now()
	saved, err := s.repo.SaveTransaction(ctx, t)
	s.metrics.ObservePersist(applog.OpSave, time.Since(start))
	if err != nil {
		return core.Transaction{}, old, fmt.Errorf("%w: save transaction: %w", ErrPersistence, err)
	}

	next := make([]core.Transaction, 0, len(txns)+1)
	replaced := false
	for _, existing := range txns {
		if existing.ID == saved.ID {
			next = append(next, saved)
			replaced = true
			continue
		}
		next = append(next, existing)
	}
	if !replaced {
		next = append(next, saved)
	}
	s.adopt(cats, next)

	s.logger.InfoContext(ctx, "Transaction saved", applog.NewFields().WithTransaction(saved).ToSlice()...)
	s.publish(ctx, events.Change{Entity: events.EntityTransaction, Op: events.OpSaved, ID: saved.ID, Year: saved.Date.Year()})
	return saved, old, nil
}

// DeleteTransaction removes the transaction with id.
func (s *Session) DeleteTransaction(ctx context.Context, id string) error {
	if !s.canEdit {
		return ErrReadOnly
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cats, txns := s.snapshot()
	idx := -1
	for i, t := range txns {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &core.NotFoundError{Kind: "transaction", ID: id}
	}

	if _, err := s.repo.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("%w: delete transaction: %w", ErrPersistence, err)
	}
	year := txns[idx].Date.Year()
	next := make([]core.Transaction, 0, len(txns)-1)
	next = append(next, txns[:idx]...)
	next = append(next, txns[idx+1:]...)
	s.adopt(cats, next)

	s.publish(ctx, events.Change{Entity: events.EntityTransaction, Op: events.OpDeleted, ID: id, Year: year})
	return nil
}

// Watch reloads the snapshot whenever another process announces a change.
// It blocks until ctx is done.
func (s *Session) Watch(ctx context.Context) error {
	return s.notifier.Subscribe(ctx, func(ctx context.Context, c events.Change) error {
		if c.Origin == s.origin {
			return nil
		}
		err := s.Load(ctx)
		s.metrics.ChangeNotification("in", err)
		if err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "Snapshot reloaded after external change",
			"entity", c.Entity,
			"id", c.ID,
			applog.FieldOrigin, c.Origin)
		return nil
	})
}
