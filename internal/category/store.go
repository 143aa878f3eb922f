// Package category maintains the category tree: an immutable snapshot Store,
// structure-preserving tree operations that return updated snapshots, and
// navigation helpers used by forms and breadcrumbs.
package category

import (
	"sort"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"
)

// maxWalkDepth bounds every walk of the tree. Valid trees never exceed
// core.MaxLevel levels; the extra slack tolerates imported data with
// inconsistent levels while still stopping on corrupt parent links.
const maxWalkDepth = 64

// Store is a read-only snapshot of the category collection.
// The zero value is an empty store. Operations that change the tree return
// a new Store and leave the receiver untouched.
type Store struct {
	items    []core.Category
	byID     map[string]int
	children map[string][]int
}

// NewStore indexes cats. The input slice is copied.
func NewStore(cats []core.Category) Store {
	items := make([]core.Category, len(cats))
	copy(items, cats)
	return index(items)
}

func index(items []core.Category) Store {
	s := Store{
		items:    items,
		byID:     make(map[string]int, len(items)),
		children: make(map[string][]int),
	}
	for i, c := range items {
		s.byID[c.ID] = i
		if c.ParentID != "" {
			s.children[c.ParentID] = append(s.children[c.ParentID], i)
		}
	}
	return s
}

// Len returns the number of categories.
func (s Store) Len() int {
	return len(s.items)
}

// All returns a copy of every category in insertion order.
func (s Store) All() []core.Category {
	out := make([]core.Category, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns the category with the given id.
func (s Store) Get(id string) (core.Category, bool) {
	i, ok := s.byID[id]
	if !ok {
		return core.Category{}, false
	}
	return s.items[i], true
}

// Roots returns the categories of typ without a parent, sorted by name.
func (s Store) Roots(typ core.CategoryType) []core.Category {
	var out []core.Category
	for _, c := range s.items {
		if c.IsRoot() && c.Type == typ {
			out = append(out, c)
		}
	}
	sortByName(out)
	return out
}

// Children returns the direct children of parentID sorted by name. An empty
// parentID selects the roots of typ; otherwise typ is ignored since children
// always share their parent's type.
func (s Store) Children(parentID string, typ core.CategoryType) []core.Category {
	if parentID == "" {
		return s.Roots(typ)
	}
	idx := s.children[parentID]
	out := make([]core.Category, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.items[i])
	}
	sortByName(out)
	return out
}

// HasChildren reports whether any category names id as its parent.
func (s Store) HasChildren(id string) bool {
	return len(s.children[id]) > 0
}

// DescendantIDs returns the ids of every category below id. The result never
// contains id itself and is empty for leaves and unknown ids.
func (s Store) DescendantIDs(id string) map[string]struct{} {
	out := make(map[string]struct{})
	type frame struct {
		id    string
		depth int
	}
	stack := []frame{{id: id}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.depth >= maxWalkDepth {
			continue
		}
		for _, i := range s.children[f.id] {
			child := s.items[i].ID
			if child == id {
				continue
			}
			if _, seen := out[child]; seen {
				continue
			}
			out[child] = struct{}{}
			stack = append(stack, frame{id: child, depth: f.depth + 1})
		}
	}
	return out
}

// AncestorPath returns the chain of categories from the root down to id.
// The walk stops at a parent id that does not resolve or that was already
// visited, so the result may be truncated for corrupt data but never loops.
func (s Store) AncestorPath(id string) []core.Category {
	c, ok := s.Get(id)
	if !ok {
		return nil
	}
	path := []core.Category{c}
	seen := map[string]struct{}{c.ID: {}}
	for c.ParentID != "" && len(path) < maxWalkDepth {
		parent, ok := s.Get(c.ParentID)
		if !ok {
			break
		}
		if _, loop := seen[parent.ID]; loop {
			break
		}
		seen[parent.ID] = struct{}{}
		path = append(path, parent)
		c = parent
	}
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return path
}

// IsDescendant reports whether candidate lies in the subtree below id.
func (s Store) IsDescendant(id, candidate string) bool {
	_, ok := s.DescendantIDs(id)[candidate]
	return ok
}

// with returns a new store where each updated category replaces the one with
// the same id, or is appended when new.
func (s Store) with(updated ...core.Category) Store {
	items := make([]core.Category, len(s.items), len(s.items)+len(updated))
	copy(items, s.items)
	for _, u := range updated {
		if i, ok := s.byID[u.ID]; ok {
			items[i] = u
			continue
		}
		items = append(items, u)
	}
	return index(items)
}

// without returns a new store with id removed.
func (s Store) without(id string) Store {
	items := make([]core.Category, 0, len(s.items))
	for _, c := range s.items {
		if c.ID != id {
			items = append(items, c)
		}
	}
	return index(items)
}

func sortByName(cats []core.Category) {
	sort.SliceStable(cats, func(i, j int) bool {
		return cats[i].Name < cats[j].Name
	})
}
