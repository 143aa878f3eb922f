package http

import (
	"net/http"
	"sort"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/report"
)

// periodTotals is one row of the monthly and yearly reports.
type periodTotals struct {
	Period  int     `json:"period"`
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
	Balance float64 `json:"balance"`
}

// sortedTotals flattens a breakdown into rows ordered by period.
func sortedTotals(m map[int]report.Totals) []periodTotals {
	rows := make([]periodTotals, 0, len(m))
	for p, t := range m {
		rows = append(rows, periodTotals{Period: p, Income: t.Income, Expense: t.Expense, Balance: t.Balance()})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Period < rows[j].Period })
	return rows
}

func (s *Server) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	year, err := s.queryYear(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":   year,
		"months": sortedTotals(s.session.MonthlyBreakdown(year)),
	})
}

func (s *Server) handleYearlyReport(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"years": sortedTotals(s.session.YearlyBreakdown()),
	})
}

func (s *Server) handleHierarchyReport(w http.ResponseWriter, r *http.Request) {
	year, err := s.queryYear(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	typ, err := queryType(r, core.Expense)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":  year,
		"type":  typ,
		"nodes": s.session.CategoryHierarchyReport(year, typ),
	})
}

func (s *Server) handleComparisonReport(w http.ResponseWriter, r *http.Request) {
	ids := queryIDs(r)
	if len(ids) == 0 {
		writeError(w, r, badRequest("ids is required"))
		return
	}
	dr, err := queryDateRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows := s.session.ComparisonSet(ids, dr)
	if rows == nil {
		rows = []report.Comparison{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":  dr.From,
		"to":    dr.To,
		"items": rows,
	})
}

func (s *Server) handleOverviewReport(w http.ResponseWriter, r *http.Request) {
	year, err := s.queryYear(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	month, err := s.queryMonth(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	typ, err := queryType(r, core.Expense)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows := s.session.MonthOverview(year, month, typ)
	total := 0.0
	for _, row := range rows {
		total += row.Amount
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":       year,
		"month":      month,
		"type":       typ,
		"total":      total,
		"byCategory": rows,
	})
}

func (s *Server) handleFixedReport(w http.ResponseWriter, r *http.Request) {
	year, err := s.queryYear(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	split := s.session.FixedExpenseSplit(year)
	writeJSON(w, http.StatusOK, map[string]any{
		"year":     year,
		"fixed":    split.Fixed,
		"variable": split.Variable,
	})
}

func (s *Server) handleSubtreeReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, ok := s.session.Categories().Get(id)
	if !ok {
		writeError(w, r, &core.NotFoundError{Kind: "category", ID: id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"category": c,
		"total":    s.session.SumForCategorySubtree(id),
	})
}
