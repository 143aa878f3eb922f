package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"
)

// amount accepts a JSON number or a decimal string such as "12,50".
type amount float64

func (a *amount) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := core.ParseAmount(s)
		if err != nil {
			return err
		}
		*a = amount(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(bytes.TrimSpace(b), &v); err != nil {
		return err
	}
	*a = amount(v)
	return nil
}

type transactionRequest struct {
	Description string    `json:"description" validate:"max=200"`
	Amount      *amount   `json:"amount" validate:"required,gte=0"`
	Date        core.Date `json:"date"`
	CategoryID  string    `json:"categoryId" validate:"required,max=64"`
	// Type is accepted for compatibility; the category decides.
	Type string `json:"type" validate:"omitempty,oneof=income expense"`
}

func (req transactionRequest) transaction() core.Transaction {
	return core.Transaction{
		Description: req.Description,
		Amount:      float64(*req.Amount),
		Date:        req.Date,
		CategoryID:  req.CategoryID,
		Type:        core.CategoryType(req.Type),
	}
}

// handleListTransactions returns all transactions, or those of year (and
// month) when given, newest first.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var txns []core.Transaction
	if q.Get("year") == "" {
		txns = s.session.Transactions()
	} else {
		year, err := s.queryYear(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		month := 0
		if q.Get("month") != "" {
			if month, err = s.queryMonth(r); err != nil {
				writeError(w, r, err)
				return
			}
		}
		txns = s.session.TransactionsIn(year, month)
	}
	if categoryID := q.Get("categoryId"); categoryID != "" {
		filtered := txns[:0]
		for _, t := range txns {
			if t.CategoryID == categoryID {
				filtered = append(filtered, t)
			}
		}
		txns = filtered
	}
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Date.After(txns[j].Date.Time)
	})
	if txns == nil {
		txns = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, ok := s.session.Transaction(id)
	if !ok {
		writeError(w, r, &core.NotFoundError{Kind: "transaction", ID: id})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.session.SaveTransaction(r.Context(), req.transaction())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/transactions/"+t.ID)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.session.UpdateTransaction(r.Context(), r.PathValue("id"), req.transaction())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.session.DeleteTransaction(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
