package http

import (
	"net/http"
	"strings"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/category"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"
	applog "github.com/FlashinnightPT/expense-echo-manager-sub001/internal/log"
)

type createCategoryRequest struct {
	Name           string `json:"name" validate:"required,max=100"`
	Type           string `json:"type" validate:"required,oneof=income expense"`
	Level          int    `json:"level" validate:"omitempty,min=1,max=4"`
	ParentID       string `json:"parentId" validate:"max=64"`
	IsFixedExpense bool   `json:"isFixedExpense"`
}

// patchCategoryRequest applies the present fields as one change.
type patchCategoryRequest struct {
	Name           *string `json:"name" validate:"omitempty,max=100"`
	IsActive       *bool   `json:"isActive"`
	IsFixedExpense *bool   `json:"isFixedExpense"`
}

type moveCategoryRequest struct {
	// ParentID empty moves the category to the top level.
	ParentID string `json:"parentId" validate:"max=64"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats := s.session.Categories().All()
	if r.URL.Query().Get("type") != "" {
		typ, err := queryType(r, "")
		if err != nil {
			writeError(w, r, err)
			return
		}
		filtered := cats[:0]
		for _, c := range cats {
			if c.Type == typ {
				filtered = append(filtered, c)
			}
		}
		cats = filtered
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, ok := s.session.Categories().Get(id)
	if !ok {
		writeError(w, r, &core.NotFoundError{Kind: "category", ID: id})
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.session.CreateCategory(r.Context(), category.NewCategory{
		Name:           req.Name,
		Type:           core.CategoryType(req.Type),
		Level:          req.Level,
		ParentID:       strings.TrimSpace(req.ParentID),
		IsFixedExpense: req.IsFixedExpense,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Category created", applog.NewFields().WithCategory(c).ToSlice()...)
	w.Header().Set("Location", "/api/categories/"+c.ID)
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handlePatchCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req patchCategoryRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u := category.Update{Name: req.Name, IsActive: req.IsActive, IsFixedExpense: req.IsFixedExpense}
	if u.Empty() {
		writeError(w, r, badRequest("nothing to update"))
		return
	}

	c, err := s.session.UpdateCategory(r.Context(), id, u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Category updated", applog.NewFields().WithCategory(c).ToSlice()...)
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleMoveCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req moveCategoryRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.session.MoveCategory(r.Context(), id, strings.TrimSpace(req.ParentID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Category moved", applog.NewFields().WithCategory(c).ToSlice()...)
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.session.DeleteCategory(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Category deleted", applog.FieldCategoryID, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCategoryPath(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h := s.session.Hierarchy()
	if _, ok := s.session.Categories().Get(id); !ok {
		writeError(w, r, &core.NotFoundError{Kind: "category", ID: id})
		return
	}
	writeJSON(w, http.StatusOK, h.PathToRoot(id))
}

// handleCategoryChildren lists direct children; active=true leaves out
// inactive ones as the transaction picker does.
func (s *Server) handleCategoryChildren(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cats := s.session.Categories()
	c, ok := cats.Get(id)
	if !ok {
		writeError(w, r, &core.NotFoundError{Kind: "category", ID: id})
		return
	}
	h := category.NewHierarchy(cats)
	path := h.PathToRoot(id)
	children := h.ChildrenAtPath(c.Type, path)
	if r.URL.Query().Get("active") == "true" {
		children = h.ActiveChildrenAtPath(c.Type, path)
	}
	if children == nil {
		children = []core.Category{}
	}
	writeJSON(w, http.StatusOK, children)
}
