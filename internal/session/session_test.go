package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/category"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/events"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/report"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDiskFull = errors.New("disk full")

// flakyStore fails category writes while down is set.
type flakyStore struct {
	*memory.Store
	down       bool
	batchCalls int
}

func (f *flakyStore) SaveCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if f.down {
		return core.Category{}, errDiskFull
	}
	return f.Store.SaveCategory(ctx, c)
}

func (f *flakyStore) SaveCategories(ctx context.Context, cats []core.Category) error {
	f.batchCalls++
	if f.down {
		return errDiskFull
	}
	return f.Store.SaveCategories(ctx, cats)
}

// gatedStore blocks transaction deletes until gate is closed.
type gatedStore struct {
	*memory.Store
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedStore) DeleteTransaction(ctx context.Context, id string) (bool, error) {
	close(g.entered)
	<-g.gate
	return g.Store.DeleteTransaction(ctx, id)
}

type recorder struct {
	events.Nop
	mu      sync.Mutex
	changes []events.Change
}

func (r *recorder) Publish(_ context.Context, c events.Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return nil
}

func (r *recorder) All() []events.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Change(nil), r.changes...)
}

func seeded() *memory.Store {
	st := memory.New()
	st.Seed([]core.Category{
		{ID: "food", Name: "Food", Type: core.Expense, Level: 2, IsActive: true},
		{ID: "groceries", Name: "Groceries", Type: core.Expense, Level: 3, ParentID: "food", IsActive: true},
		{ID: "home", Name: "Home", Type: core.Expense, Level: 2, IsActive: true, IsFixedExpense: true},
		{ID: "salary", Name: "Salary", Type: core.Income, Level: 2, IsActive: true},
	}, []core.Transaction{
		{ID: "t1", CategoryID: "groceries", Amount: 100, Date: core.NewDate(2024, 3, 5), Type: core.Expense},
		{ID: "t2", CategoryID: "salary", Amount: 1500, Date: core.NewDate(2024, 3, 1), Type: core.Income},
	})
	return st
}

func sequentialIDs() category.IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newSession(t *testing.T, repo *flakyStore, opts Options) *Session {
	t.Helper()
	if opts.NewID == nil {
		opts.NewID = sequentialIDs()
	}
	if opts.Origin == "" {
		opts.Origin = "test"
	}
	s := New(repo, opts)
	require.NoError(t, s.Load(context.Background()))
	return s
}

func TestLoad(t *testing.T) {
	s := newSession(t, &flakyStore{Store: seeded()}, Options{})

	assert.True(t, s.Ready())
	assert.Equal(t, 4, s.Categories().Len())
	assert.Len(t, s.Transactions(), 2)
	assert.Len(t, s.TransactionsIn(2024, 3), 2)
	assert.Empty(t, s.TransactionsIn(2024, 4))
	assert.Equal(t, []int{2024}, s.Years())
}

func TestCreateCategory_PersistsAndPublishes(t *testing.T) {
	repo := &flakyStore{Store: seeded()}
	rec := &recorder{}
	s := newSession(t, repo, Options{Notifier: rec})
	ctx := context.Background()

	c, err := s.CreateCategory(ctx, category.NewCategory{Name: " Organic ", Type: core.Expense, ParentID: "groceries"})
	require.NoError(t, err)
	assert.Equal(t, "id-1", c.ID)
	assert.Equal(t, "Organic", c.Name)
	assert.Equal(t, 4, c.Level)

	stored, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 5)

	got, ok := s.Categories().Get("id-1")
	require.True(t, ok)
	assert.Equal(t, c, got)

	changes := rec.All()
	require.Len(t, changes, 1)
	assert.Equal(t, events.EntityCategory, changes[0].Entity)
	assert.Equal(t, events.OpSaved, changes[0].Op)
	assert.Equal(t, "id-1", changes[0].ID)
	assert.Equal(t, "test", changes[0].Origin)
}

func TestPersistenceFailureKeepsSnapshot(t *testing.T) {
	repo := &flakyStore{Store: seeded()}
	rec := &recorder{}
	s := newSession(t, repo, Options{Notifier: rec})
	ctx := context.Background()
	repo.down = true

	_, err := s.RenameCategory(ctx, "food", "Meals")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, errDiskFull)

	c, _ := s.Categories().Get("food")
	assert.Equal(t, "Food", c.Name)

	_, err = s.MoveCategory(ctx, "food", "home")
	assert.ErrorIs(t, err, ErrPersistence)
	c, _ = s.Categories().Get("groceries")
	assert.Equal(t, 3, c.Level)

	assert.Empty(t, rec.All())
}

func TestMoveCategory_PersistsSubtreeInOneBatch(t *testing.T) {
	repo := &flakyStore{Store: seeded()}
	s := newSession(t, repo, Options{})
	ctx := context.Background()

	moved, err := s.MoveCategory(ctx, "food", "home")
	require.NoError(t, err)
	assert.Equal(t, "home", moved.ParentID)
	assert.Equal(t, 3, moved.Level)
	assert.Equal(t, 1, repo.batchCalls)

	stored, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	levels := map[string]int{}
	for _, c := range stored {
		levels[c.ID] = c.Level
	}
	assert.Equal(t, 3, levels["food"])
	assert.Equal(t, 4, levels["groceries"])
}

func TestDomainErrorsPassThrough(t *testing.T) {
	s := newSession(t, &flakyStore{Store: seeded()}, Options{})
	ctx := context.Background()

	assert.ErrorIs(t, s.DeleteCategory(ctx, "food"), core.ErrHasChildren)
	assert.ErrorIs(t, s.DeleteCategory(ctx, "groceries"), core.ErrInUse)
	_, err := s.MoveCategory(ctx, "food", "groceries")
	assert.ErrorIs(t, err, core.ErrCircularReference)
	_, err = s.SetCategoryFixedExpense(ctx, "salary", true)
	assert.ErrorIs(t, err, core.ErrValidation)

	require.NoError(t, s.DeleteCategory(ctx, "home"))
	_, ok := s.Categories().Get("home")
	assert.False(t, ok)
}

func TestReadOnly(t *testing.T) {
	repo := &flakyStore{Store: seeded()}
	s := newSession(t, repo, Options{ReadOnly: true})
	ctx := context.Background()

	assert.False(t, s.CanEdit())
	_, err := s.CreateCategory(ctx, category.NewCategory{Name: "X", Type: core.Income})
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = s.RenameCategory(ctx, "food", "X")
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = s.MoveCategory(ctx, "food", "home")
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, s.DeleteCategory(ctx, "home"), ErrReadOnly)
	_, err = s.SetCategoryActive(ctx, "food", false)
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = s.SaveTransaction(ctx, core.Transaction{CategoryID: "food", Amount: 1, Date: core.NewDate(2024, 1, 1)})
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, s.DeleteTransaction(ctx, "t1"), ErrReadOnly)

	// Reads still work.
	assert.Equal(t, 100.0, s.SumForCategorySubtree("food"))
}

func TestSaveTransaction(t *testing.T) {
	repo := &flakyStore{Store: seeded()}
	rec := &recorder{}
	s := newSession(t, repo, Options{Notifier: rec})
	ctx := context.Background()

	saved, err := s.SaveTransaction(ctx, core.Transaction{
		Description: "  lunch ",
		Amount:      12.5,
		Date:        core.NewDate(2024, 4, 2),
		CategoryID:  "groceries",
		Type:        core.Income,
	})
	require.NoError(t, err)
	assert.Equal(t, "id-1", saved.ID)
	assert.Equal(t, "lunch", saved.Description)
	assert.Equal(t, core.Expense, saved.Type, "type follows the category")

	_, err = s.SaveTransaction(ctx, core.Transaction{Amount: 1, Date: core.NewDate(2024, 1, 1), CategoryID: "nope"})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = s.SaveTransaction(ctx, core.Transaction{Amount: -1, Date: core.NewDate(2024, 1, 1), CategoryID: "food"})
	assert.ErrorIs(t, err, core.ErrValidation)

	stored, err := repo.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	changes := rec.All()
	require.Len(t, changes, 1)
	assert.Equal(t, events.EntityTransaction, changes[0].Entity)
	assert.Equal(t, 2024, changes[0].Year)
}

func TestUpdateAndDeleteTransaction(t *testing.T) {
	repo := &flakyStore{Store: seeded()}
	rec := &recorder{}
	s := newSession(t, repo, Options{Notifier: rec})
	ctx := context.Background()

	updated, err := s.UpdateTransaction(ctx, "t1", core.Transaction{Amount: 80, Date: core.NewDate(2023, 12, 1), CategoryID: "food"})
	require.NoError(t, err)
	assert.Equal(t, "t1", updated.ID)
	assert.Len(t, s.Transactions(), 2)
	assert.Equal(t, 80.0, s.SumForCategorySubtree("food"))

	// Both the old and the new year are announced.
	years := []int{}
	for _, c := range rec.All() {
		years = append(years, c.Year)
	}
	assert.ElementsMatch(t, []int{2023, 2024}, years)

	_, err = s.UpdateTransaction(ctx, "missing", core.Transaction{Amount: 1, Date: core.NewDate(2024, 1, 1), CategoryID: "food"})
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, s.DeleteTransaction(ctx, "t1"))
	assert.ErrorIs(t, s.DeleteTransaction(ctx, "t1"), core.ErrNotFound)
	_, ok := s.Transaction("t1")
	assert.False(t, ok)

	// The category is free to delete now.
	require.NoError(t, s.DeleteCategory(ctx, "groceries"))
}

func TestUpdateCategory_AllOrNothing(t *testing.T) {
	repo := &flakyStore{Store: seeded()}
	rec := &recorder{}
	s := newSession(t, repo, Options{Notifier: rec})
	ctx := context.Background()

	name, fixed := "Wages", true
	_, err := s.UpdateCategory(ctx, "salary", category.Update{Name: &name, IsFixedExpense: &fixed})
	require.ErrorIs(t, err, core.ErrValidation)

	c, _ := s.Categories().Get("salary")
	assert.Equal(t, "Salary", c.Name)
	stored, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	for _, sc := range stored {
		assert.NotEqual(t, "Wages", sc.Name)
	}
	assert.Empty(t, rec.All())

	inactive := false
	name = "Meals"
	updated, err := s.UpdateCategory(ctx, "food", category.Update{Name: &name, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Meals", updated.Name)
	assert.False(t, updated.IsActive)

	changes := rec.All()
	require.Len(t, changes, 1, "one notification per update")
	assert.Equal(t, "food", changes[0].ID)
}

func TestUpdateTransaction_LosesToConcurrentDelete(t *testing.T) {
	repo := &gatedStore{Store: seeded(), entered: make(chan struct{}), gate: make(chan struct{})}
	s := New(repo, Options{Origin: "test", NewID: sequentialIDs()})
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	deleted := make(chan error, 1)
	go func() { deleted <- s.DeleteTransaction(ctx, "t1") }()
	<-repo.entered

	updated := make(chan error, 1)
	go func() {
		_, err := s.UpdateTransaction(ctx, "t1", core.Transaction{Amount: 5, Date: core.NewDate(2024, 3, 5), CategoryID: "groceries"})
		updated <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(repo.gate)

	require.NoError(t, <-deleted)
	assert.ErrorIs(t, <-updated, core.ErrNotFound)
	_, ok := s.Transaction("t1")
	assert.False(t, ok)
	stored, err := repo.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestReportsAreCopies(t *testing.T) {
	s := newSession(t, &flakyStore{Store: seeded()}, Options{})

	monthly := s.MonthlyBreakdown(2024)
	monthly[3] = report.Totals{}
	delete(monthly, 4)
	assert.Equal(t, 100.0, s.MonthlyBreakdown(2024)[3].Expense)
	assert.Len(t, s.MonthlyBreakdown(2024), 12)

	nodes := s.CategoryHierarchyReport(2024, core.Expense)
	require.NotEmpty(t, nodes)
	require.NotEmpty(t, nodes[0].Children)
	nodes[0].YearlyTotal = -1
	nodes[0].Children[0].YearlyTotal = -1
	again := s.CategoryHierarchyReport(2024, core.Expense)
	assert.Equal(t, 100.0, again[0].YearlyTotal)
	assert.Equal(t, 100.0, again[0].Children[0].YearlyTotal)
}

func TestReportsInvalidatedOnChange(t *testing.T) {
	s := newSession(t, &flakyStore{Store: seeded()}, Options{})
	ctx := context.Background()

	before := s.MonthlyBreakdown(2024)
	assert.Equal(t, 100.0, before[3].Expense)
	assert.Equal(t, 1500.0, before[3].Income)
	assert.Equal(t, before, s.MonthlyBreakdown(2024))

	_, err := s.SaveTransaction(ctx, core.Transaction{Amount: 50, Date: core.NewDate(2024, 3, 9), CategoryID: "groceries"})
	require.NoError(t, err)

	after := s.MonthlyBreakdown(2024)
	assert.Equal(t, 150.0, after[3].Expense)

	nodes := s.CategoryHierarchyReport(2024, core.Expense)
	require.Len(t, nodes, 2)
	split := s.FixedExpenseSplit(2024)
	assert.Equal(t, 150.0, split.Variable)
	assert.Zero(t, split.Fixed)
}

func TestWatchReloadsOnForeignChange(t *testing.T) {
	shared := &flakyStore{Store: seeded()}
	broker := events.NewBroker()

	reader := newSession(t, shared, Options{Notifier: broker, Origin: "reader", ReadOnly: true})
	writer := newSession(t, shared, Options{Notifier: broker, Origin: "writer"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- reader.Watch(ctx) }()
	require.Eventually(t, func() bool { return broker.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	_, err := writer.RenameCategory(context.Background(), "food", "Meals")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		c, _ := reader.Categories().Get("food")
		return c.Name == "Meals"
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestConcurrentMutations(t *testing.T) {
	s := newSession(t, &flakyStore{Store: seeded()}, Options{NewID: category.NewID})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SaveTransaction(ctx, core.Transaction{Amount: 1, Date: core.NewDate(2024, 5, 1), CategoryID: "food"})
			assert.NoError(t, err)
			_ = s.MonthlyBreakdown(2024)
		}()
	}
	wg.Wait()

	assert.Len(t, s.Transactions(), 22)
	assert.Equal(t, 20.0, s.MonthlyBreakdown(2024)[5].Expense)
}
