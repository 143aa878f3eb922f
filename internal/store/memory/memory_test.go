package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func food() core.Category {
	return core.Category{ID: "food", Name: "Food", Type: core.Expense, Level: 2, IsActive: true}
}

func lunch() core.Transaction {
	return core.Transaction{ID: "t1", Description: "lunch", Amount: 12.5, Date: core.NewDate(2024, 3, 5), CategoryID: "food", Type: core.Expense}
}

func TestStore_SaveAndList(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.SaveCategory(ctx, food())
	require.NoError(t, err)
	renamed := food()
	renamed.Name = "Groceries"
	_, err = s.SaveCategory(ctx, renamed)
	require.NoError(t, err)

	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1, "save is idempotent on id")
	assert.Equal(t, "Groceries", cats[0].Name)

	_, err = s.SaveTransaction(ctx, lunch())
	require.NoError(t, err)
	txns, _ := s.ListTransactions(ctx)
	assert.Equal(t, []core.Transaction{lunch()}, txns)
}

func TestStore_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := New()

	bad := lunch()
	bad.Amount = -1
	_, err := s.SaveTransaction(ctx, bad)
	assert.ErrorIs(t, err, core.ErrValidation)

	err = s.SaveCategories(ctx, []core.Category{food(), {ID: "x", Type: core.Expense, Level: 2}})
	assert.ErrorIs(t, err, core.ErrValidation)
	cats, _ := s.ListCategories(ctx)
	assert.Empty(t, cats, "batch is all or nothing")
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.SaveTransaction(ctx, lunch())

	removed, err := s.DeleteTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.DeleteTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, removed)

	assert.NoError(t, s.DeleteCategory(ctx, "missing"))
}

func TestNewFromFile_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "ledger.json")

	s, err := NewFromFile(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveCategories(ctx, []core.Category{food()}))
	_, err = s.SaveTransaction(ctx, lunch())
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"categoryId": "food"`)
	assert.Contains(t, string(raw), `"date": "2024-03-05"`)

	reopened, err := NewFromFile(path)
	require.NoError(t, err)
	cats, _ := reopened.ListCategories(ctx)
	txns, _ := reopened.ListTransactions(ctx)
	assert.Equal(t, []core.Category{food()}, cats)
	require.Len(t, txns, 1)
	assert.Equal(t, lunch().Date.String(), txns[0].Date.String())
	assert.Equal(t, 12.5, txns[0].Amount)
}

func TestNewFromFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFromFile(path)
	assert.Error(t, err)
}
