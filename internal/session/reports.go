package session

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/report"
)

// memo returns the cached value for key at the current generation, or
// computes it from the snapshot and caches it. The value is shared with the
// cache; exported wrappers hand out copies.
func memo[T any](s *Session, name, key string, compute func(*report.Engine, []core.Transaction) T) T {
	s.mu.RLock()
	cats, txns, gen := s.cats, s.txns, s.gen
	s.mu.RUnlock()

	cacheKey := fmt.Sprintf("%d|%s|%s", gen, name, key)
	if v, ok := s.reports.Get(cacheKey); ok {
		if out, ok := v.(T); ok {
			s.metrics.ReportCache(name, true)
			return out
		}
	}
	s.metrics.ReportCache(name, false)

	out := compute(report.NewEngine(cats, report.WithClock(s.now)), txns)
	s.reports.Set(cacheKey, out)
	return out
}

func (s *Session) SumForCategorySubtree(categoryID string) float64 {
	return memo(s, "subtree", categoryID, func(e *report.Engine, txns []core.Transaction) float64 {
		return e.SumForCategorySubtree(categoryID, txns)
	})
}

// MonthlyBreakdown returns income and expense totals for every month of year.
func (s *Session) MonthlyBreakdown(year int) map[int]report.Totals {
	return maps.Clone(memo(s, "monthly", fmt.Sprint(year), func(e *report.Engine, txns []core.Transaction) map[int]report.Totals {
		return e.MonthlyBreakdown(txns, year)
	}))
}

func (s *Session) YearlyBreakdown() map[int]report.Totals {
	return maps.Clone(memo(s, "yearly", "", func(e *report.Engine, txns []core.Transaction) map[int]report.Totals {
		return e.YearlyBreakdown(txns)
	}))
}

func (s *Session) CategoryHierarchyReport(year int, typ core.CategoryType) []report.ReportNode {
	return cloneNodes(memo(s, "hierarchy", fmt.Sprintf("%d|%s", year, typ), func(e *report.Engine, txns []core.Transaction) []report.ReportNode {
		return e.CategoryHierarchyReport(txns, year, typ)
	}))
}

// ComparisonSet compares the subtree totals of ids within r. The order of
// ids is kept in the result.
func (s *Session) ComparisonSet(ids []string, r report.DateRange) []report.Comparison {
	key := strings.Join(ids, ",") + "|" + r.From.String() + "|" + r.To.String()
	return slices.Clone(memo(s, "comparison", key, func(e *report.Engine, txns []core.Transaction) []report.Comparison {
		return e.ComparisonSet(ids, r, txns)
	}))
}

func (s *Session) MonthOverview(year, month int, typ core.CategoryType) []report.RootTotal {
	return slices.Clone(memo(s, "overview", fmt.Sprintf("%d|%d|%s", year, month, typ), func(e *report.Engine, txns []core.Transaction) []report.RootTotal {
		return e.MonthOverview(txns, year, month, typ)
	}))
}

func (s *Session) FixedExpenseSplit(year int) report.ExpenseSplit {
	return memo(s, "fixed", fmt.Sprint(year), func(e *report.Engine, txns []core.Transaction) report.ExpenseSplit {
		return e.FixedExpenseSplit(txns, year)
	})
}

func cloneNodes(nodes []report.ReportNode) []report.ReportNode {
	if nodes == nil {
		return nil
	}
	out := make([]report.ReportNode, len(nodes))
	for i, n := range nodes {
		n.Children = cloneNodes(n.Children)
		out[i] = n
	}
	return out
}

// Years lists every year with at least one transaction, ascending.
func (s *Session) Years() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int]struct{})
	for _, t := range s.txns {
		seen[t.Date.Year()] = struct{}{}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
