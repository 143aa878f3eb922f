package category

import "github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"

// Hierarchy exposes read-only navigation over a Store for pickers and
// breadcrumbs.
type Hierarchy struct {
	store Store
}

func NewHierarchy(s Store) Hierarchy {
	return Hierarchy{store: s}
}

// ChildrenAtPath returns the roots of typ for an empty path, otherwise the
// direct children of the last element of path.
func (h Hierarchy) ChildrenAtPath(typ core.CategoryType, path []core.Category) []core.Category {
	if len(path) == 0 {
		return h.store.Roots(typ)
	}
	return h.store.Children(path[len(path)-1].ID, typ)
}

// ActiveChildrenAtPath is ChildrenAtPath without inactive categories, for
// new-transaction pickers.
func (h Hierarchy) ActiveChildrenAtPath(typ core.CategoryType, path []core.Category) []core.Category {
	all := h.ChildrenAtPath(typ, path)
	out := all[:0]
	for _, c := range all {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out
}

// IsLeaf reports whether no category has categoryID as its parent.
func (h Hierarchy) IsLeaf(categoryID string) bool {
	return !h.store.HasChildren(categoryID)
}

// PathToRoot returns the breadcrumb from the root down to categoryID.
func (h Hierarchy) PathToRoot(categoryID string) []core.Category {
	return h.store.AncestorPath(categoryID)
}

// Leaves returns every leaf category of typ, the level at which transactions
// are conventionally recorded.
func (h Hierarchy) Leaves(typ core.CategoryType) []core.Category {
	var out []core.Category
	for _, c := range h.store.items {
		if c.Type == typ && !h.store.HasChildren(c.ID) {
			out = append(out, c)
		}
	}
	sortByName(out)
	return out
}
