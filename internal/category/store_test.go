package category

import (
	"testing"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture builds:
//
//	food(2) ─ groceries(3) ─ organic(4)
//	       └─ dining(3)
//	home(2)
//	salary(2, income)
func fixture() Store {
	return NewStore([]core.Category{
		{ID: "food", Name: "Food", Type: core.Expense, Level: 2, IsActive: true},
		{ID: "groceries", Name: "Groceries", Type: core.Expense, Level: 3, ParentID: "food", IsActive: true},
		{ID: "organic", Name: "Organic", Type: core.Expense, Level: 4, ParentID: "groceries", IsActive: true},
		{ID: "dining", Name: "Dining", Type: core.Expense, Level: 3, ParentID: "food", IsActive: false},
		{ID: "home", Name: "Home", Type: core.Expense, Level: 2, IsActive: true, IsFixedExpense: true},
		{ID: "salary", Name: "Salary", Type: core.Income, Level: 2, IsActive: true},
	})
}

func ids(cats []core.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.ID
	}
	return out
}

func TestStore_Get(t *testing.T) {
	s := fixture()

	c, ok := s.Get("groceries")
	require.True(t, ok)
	assert.Equal(t, "Groceries", c.Name)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestStore_ZeroValue(t *testing.T) {
	var s Store
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.DescendantIDs("x"))
	assert.Nil(t, s.AncestorPath("x"))
	assert.Empty(t, s.Children("", core.Expense))
}

func TestStore_Children(t *testing.T) {
	s := fixture()

	assert.Equal(t, []string{"food", "home"}, ids(s.Children("", core.Expense)))
	assert.Equal(t, []string{"salary"}, ids(s.Children("", core.Income)))
	assert.Equal(t, []string{"dining", "groceries"}, ids(s.Children("food", core.Income)), "type is ignored below the root")
	assert.Empty(t, s.Children("organic", core.Expense))
}

func TestStore_DescendantIDs(t *testing.T) {
	s := fixture()

	assert.Equal(t, map[string]struct{}{"groceries": {}, "organic": {}, "dining": {}}, s.DescendantIDs("food"))
	assert.Empty(t, s.DescendantIDs("organic"))
	assert.Empty(t, s.DescendantIDs("missing"))

	for _, c := range s.All() {
		_, self := s.DescendantIDs(c.ID)[c.ID]
		assert.False(t, self, "descendants of %s must not contain itself", c.ID)
	}
}

func TestStore_DescendantIDsTerminatesOnCycle(t *testing.T) {
	s := NewStore([]core.Category{
		{ID: "a", Name: "A", Type: core.Expense, Level: 2, ParentID: "b"},
		{ID: "b", Name: "B", Type: core.Expense, Level: 3, ParentID: "a"},
		{ID: "c", Name: "C", Type: core.Expense, Level: 4, ParentID: "b"},
	})

	got := s.DescendantIDs("a")
	assert.Equal(t, map[string]struct{}{"b": {}, "c": {}}, got)
}

func TestStore_AncestorPath(t *testing.T) {
	s := fixture()

	assert.Equal(t, []string{"food", "groceries", "organic"}, ids(s.AncestorPath("organic")))
	assert.Equal(t, []string{"home"}, ids(s.AncestorPath("home")))
	assert.Nil(t, s.AncestorPath("missing"))
}

func TestStore_AncestorPathTruncatesBrokenReference(t *testing.T) {
	s := NewStore([]core.Category{
		{ID: "child", Name: "Child", Type: core.Expense, Level: 3, ParentID: "gone"},
		{ID: "leaf", Name: "Leaf", Type: core.Expense, Level: 4, ParentID: "child"},
	})
	assert.Equal(t, []string{"child", "leaf"}, ids(s.AncestorPath("leaf")))

	cyclic := NewStore([]core.Category{
		{ID: "a", Name: "A", Type: core.Expense, Level: 2, ParentID: "b"},
		{ID: "b", Name: "B", Type: core.Expense, Level: 3, ParentID: "a"},
	})
	assert.Equal(t, []string{"b", "a"}, ids(cyclic.AncestorPath("a")))
}

func TestNewStoreCopiesInput(t *testing.T) {
	in := []core.Category{{ID: "a", Name: "A", Type: core.Expense, Level: 2}}
	s := NewStore(in)
	in[0].Name = "changed"

	c, _ := s.Get("a")
	assert.Equal(t, "A", c.Name)
}
