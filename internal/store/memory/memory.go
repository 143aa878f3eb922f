// Package memory is a repository held in memory and optionally mirrored to a
// single JSON document on disk.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"
)

type document struct {
	Categories   []core.Category    `json:"categories"`
	Transactions []core.Transaction `json:"transactions"`
}

type Store struct {
	mu   sync.Mutex
	path string
	cats []core.Category
	txns []core.Transaction
}

// New returns an empty store that is never written to disk.
func New() *Store {
	return &Store{}
}

// NewFromFile loads path when it exists and rewrites it after every change.
// A missing file starts an empty ledger.
func NewFromFile(path string) (*Store, error) {
	s := &Store{path: path}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(b) == 0 {
		return s, nil
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	s.cats = doc.Categories
	s.txns = doc.Transactions
	return s, nil
}

// Seed replaces the contents without writing to disk. Used by tests and demos.
func (s *Store) Seed(cats []core.Category, txns []core.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cats = append([]core.Category(nil), cats...)
	s.txns = append([]core.Transaction(nil), txns...)
}

func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Category(nil), s.cats...), nil
}

func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.txns...), nil
}

func (s *Store) SaveCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := s.SaveCategories(ctx, []core.Category{c}); err != nil {
		return core.Category{}, err
	}
	return c, nil
}

// SaveCategories applies the whole batch under one lock and one file write.
// Nothing changes if any category is invalid or the write fails.
func (s *Store) SaveCategories(_ context.Context, cats []core.Category) error {
	for _, c := range cats {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := append([]core.Category(nil), s.cats...)
	for _, c := range cats {
		next = upsert(next, c, func(x core.Category) string { return x.ID })
	}
	if err := s.flush(next, s.txns); err != nil {
		return err
	}
	s.cats = next
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, _ := remove(s.cats, id, func(x core.Category) string { return x.ID })
	if err := s.flush(next, s.txns); err != nil {
		return err
	}
	s.cats = next
	return nil
}

func (s *Store) SaveTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := upsert(append([]core.Transaction(nil), s.txns...), t, func(x core.Transaction) string { return x.ID })
	if err := s.flush(s.cats, next); err != nil {
		return core.Transaction{}, err
	}
	s.txns = next
	return t, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, removed := remove(s.txns, id, func(x core.Transaction) string { return x.ID })
	if !removed {
		return false, nil
	}
	if err := s.flush(s.cats, next); err != nil {
		return false, err
	}
	s.txns = next
	return true, nil
}

// flush writes the document through a temp file and rename so a crash never
// leaves a truncated ledger behind.
func (s *Store) flush(cats []core.Category, txns []core.Transaction) error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	b, err := json.MarshalIndent(document{Categories: cats, Transactions: txns}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

func upsert[T any](items []T, v T, id func(T) string) []T {
	for i := range items {
		if id(items[i]) == id(v) {
			items[i] = v
			return items
		}
	}
	return append(items, v)
}

func remove[T any](items []T, target string, id func(T) string) ([]T, bool) {
	out := make([]T, 0, len(items))
	removed := false
	for _, v := range items {
		if id(v) == target {
			removed = true
			continue
		}
		out = append(out, v)
	}
	return out, removed
}
