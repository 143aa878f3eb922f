package category

import (
	"strings"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"
	"github.com/google/uuid"
)

// Change describes what a tree operation modified, so the caller can persist
// exactly those rows before adopting the new snapshot.
type Change struct {
	Saved   []core.Category
	Deleted []string
}

// Empty reports whether the operation modified nothing.
func (c Change) Empty() bool {
	return len(c.Saved) == 0 && len(c.Deleted) == 0
}

// NewCategory is the input of Create.
type NewCategory struct {
	Name           string
	Type           core.CategoryType
	Level          int
	ParentID       string
	IsFixedExpense bool
}

// IDGenerator returns fresh category ids.
type IDGenerator func() string

// NewID is the default id generator.
func NewID() string {
	return uuid.NewString()
}

// Tree applies structural edits to a Store.
type Tree struct {
	newID IDGenerator
}

// NewTree returns a Tree that assigns ids with gen, or uuids when gen is nil.
func NewTree(gen IDGenerator) Tree {
	if gen == nil {
		gen = NewID
	}
	return Tree{newID: gen}
}

// Create adds a category. A parent, when given, fixes the level at
// parent.Level+1. Roots always live at core.BaseLevel; req.Level 0 or 1 is
// normalised to it and a deeper level requires a parent.
func (t Tree) Create(s Store, req NewCategory) (Store, core.Category, Change, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return s, core.Category{}, Change{}, &core.ValidationError{Field: "name", Reason: "must not be blank"}
	}
	if !req.Type.Valid() {
		return s, core.Category{}, Change{}, &core.ValidationError{Field: "type", Reason: "must be income or expense"}
	}

	if req.Level < 0 {
		return s, core.Category{}, Change{}, &core.ValidationError{Field: "level", Reason: "out of range"}
	}
	level := core.BaseLevel
	if req.ParentID == "" {
		if req.Level > core.BaseLevel {
			return s, core.Category{}, Change{}, &core.ValidationError{Field: "parentId", Reason: "required for non-root categories"}
		}
	} else {
		parent, ok := s.Get(req.ParentID)
		if !ok {
			return s, core.Category{}, Change{}, &core.NotFoundError{Kind: "category", ID: req.ParentID}
		}
		if parent.Type != req.Type {
			return s, core.Category{}, Change{}, &core.ValidationError{Field: "type", Reason: "must match the parent category type"}
		}
		level = parent.Level + 1
	}
	if level > core.MaxLevel {
		return s, core.Category{}, Change{}, &core.ValidationError{Field: "level", Reason: "category tree is limited to four levels"}
	}

	c := core.Category{
		ID:             t.newID(),
		Name:           name,
		Type:           req.Type,
		Level:          level,
		ParentID:       req.ParentID,
		IsActive:       true,
		IsFixedExpense: req.IsFixedExpense && req.Type == core.Expense,
	}
	if err := c.Validate(); err != nil {
		return s, core.Category{}, Change{}, err
	}
	return s.with(c), c, Change{Saved: []core.Category{c}}, nil
}

// Rename changes the display name of id.
func (t Tree) Rename(s Store, id, newName string) (Store, core.Category, Change, error) {
	c, ok := s.Get(id)
	if !ok {
		return s, core.Category{}, Change{}, &core.NotFoundError{Kind: "category", ID: id}
	}
	name := strings.TrimSpace(newName)
	if name == "" {
		return s, core.Category{}, Change{}, &core.ValidationError{Field: "name", Reason: "must not be blank"}
	}
	if c.Name == name {
		return s, c, Change{}, nil
	}
	c.Name = name
	return s.with(c), c, Change{Saved: []core.Category{c}}, nil
}

// Delete removes id. Children are checked before transaction references.
func (t Tree) Delete(s Store, id string, txns []core.Transaction) (Store, Change, error) {
	if _, ok := s.Get(id); !ok {
		return s, Change{}, &core.NotFoundError{Kind: "category", ID: id}
	}
	if n := len(s.children[id]); n > 0 {
		return s, Change{}, &core.HasChildrenError{ID: id, Children: n}
	}
	refs := 0
	for _, tx := range txns {
		if tx.CategoryID == id {
			refs++
		}
	}
	if refs > 0 {
		return s, Change{}, &core.InUseError{ID: id, Transactions: refs}
	}
	return s.without(id), Change{Deleted: []string{id}}, nil
}

// Move reparents id under newParentID, or makes it a root when newParentID is
// empty. Every descendant keeps its parent and shifts its level by the same
// amount as the moved category.
func (t Tree) Move(s Store, id, newParentID string) (Store, Change, error) {
	c, ok := s.Get(id)
	if !ok {
		return s, Change{}, &core.NotFoundError{Kind: "category", ID: id}
	}

	descendants := s.DescendantIDs(id)
	if newParentID == id {
		return s, Change{}, &core.CircularReferenceError{ID: id, ParentID: newParentID}
	}
	if _, cycle := descendants[newParentID]; cycle {
		return s, Change{}, &core.CircularReferenceError{ID: id, ParentID: newParentID}
	}

	newLevel := core.BaseLevel
	if newParentID != "" {
		parent, ok := s.Get(newParentID)
		if !ok {
			return s, Change{}, &core.NotFoundError{Kind: "category", ID: newParentID}
		}
		if parent.Type != c.Type {
			return s, Change{}, &core.ValidationError{Field: "parentId", Reason: "must be a category of the same type"}
		}
		newLevel = parent.Level + 1
	}
	if c.ParentID == newParentID && c.Level == newLevel {
		return s, Change{}, nil
	}

	diff := newLevel - c.Level
	if deepest := s.deepestLevel(id, descendants) + diff; deepest > core.MaxLevel {
		return s, Change{}, &core.ValidationError{Field: "parentId", Reason: "move would exceed four levels"}
	}

	c.ParentID = newParentID
	c.Level = newLevel
	saved := make([]core.Category, 0, len(descendants)+1)
	saved = append(saved, c)
	// Preserve snapshot order so persisted batches are deterministic.
	for _, d := range s.items {
		if _, ok := descendants[d.ID]; ok {
			d.Level += diff
			saved = append(saved, d)
		}
	}
	return s.with(saved...), Change{Saved: saved}, nil
}

func (s Store) deepestLevel(id string, descendants map[string]struct{}) int {
	c, _ := s.Get(id)
	deepest := c.Level
	for d := range descendants {
		if dc, ok := s.Get(d); ok && dc.Level > deepest {
			deepest = dc.Level
		}
	}
	return deepest
}

// SetActive toggles whether id is offered for new transactions.
func (t Tree) SetActive(s Store, id string, active bool) (Store, core.Category, Change, error) {
	c, ok := s.Get(id)
	if !ok {
		return s, core.Category{}, Change{}, &core.NotFoundError{Kind: "category", ID: id}
	}
	if c.IsActive == active {
		return s, c, Change{}, nil
	}
	c.IsActive = active
	return s.with(c), c, Change{Saved: []core.Category{c}}, nil
}

// SetFixedExpense marks an expense category as a fixed (recurring) cost.
func (t Tree) SetFixedExpense(s Store, id string, fixed bool) (Store, core.Category, Change, error) {
	c, ok := s.Get(id)
	if !ok {
		return s, core.Category{}, Change{}, &core.NotFoundError{Kind: "category", ID: id}
	}
	if c.Type != core.Expense {
		return s, core.Category{}, Change{}, &core.ValidationError{Field: "isFixedExpense", Reason: "only expense categories can be fixed"}
	}
	if c.IsFixedExpense == fixed {
		return s, c, Change{}, nil
	}
	c.IsFixedExpense = fixed
	return s.with(c), c, Change{Saved: []core.Category{c}}, nil
}

// Update carries the optional fields of a combined edit. Nil fields are left
// alone.
type Update struct {
	Name           *string
	IsActive       *bool
	IsFixedExpense *bool
}

// Empty reports whether u names no field.
func (u Update) Empty() bool {
	return u.Name == nil && u.IsActive == nil && u.IsFixedExpense == nil
}

// Update applies the present fields of u to id in order: name, active flag,
// fixed-expense flag. Either every field applies or s is returned unchanged.
func (t Tree) Update(s Store, id string, u Update) (Store, core.Category, Change, error) {
	c, ok := s.Get(id)
	if !ok {
		return s, core.Category{}, Change{}, &core.NotFoundError{Kind: "category", ID: id}
	}
	next := s
	var err error
	if u.Name != nil {
		if next, c, _, err = t.Rename(next, id, *u.Name); err != nil {
			return s, core.Category{}, Change{}, err
		}
	}
	if u.IsActive != nil {
		if next, c, _, err = t.SetActive(next, id, *u.IsActive); err != nil {
			return s, core.Category{}, Change{}, err
		}
	}
	if u.IsFixedExpense != nil {
		if next, c, _, err = t.SetFixedExpense(next, id, *u.IsFixedExpense); err != nil {
			return s, core.Category{}, Change{}, err
		}
	}
	if orig, _ := s.Get(id); orig == c {
		return s, c, Change{}, nil
	}
	return next, c, Change{Saved: []core.Category{c}}, nil
}
