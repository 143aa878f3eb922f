// Package report computes read-only summaries over transaction snapshots:
// subtree roll-ups, monthly and yearly totals, hierarchy reports and ad hoc
// category comparisons.
package report

import (
	"time"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/category"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"
)

// monthsPerYear is the fixed denominator of MonthlyAverage.
const monthsPerYear = 12

// maxReportDepth bounds hierarchy recursion on corrupt parent links.
const maxReportDepth = 16

type (
	// Totals holds income and expense sums for one period.
	Totals struct {
		Income  float64 `json:"income"`
		Expense float64 `json:"expense"`
	}

	// ReportNode is one category of a hierarchy report with its subtree sums.
	ReportNode struct {
		Category       core.Category          `json:"category"`
		MonthlyAmounts [monthsPerYear]float64 `json:"monthlyAmounts"`
		YearlyTotal    float64                `json:"yearlyTotal"`
		MonthlyAverage float64                `json:"monthlyAverage"`
		Children       []ReportNode           `json:"children"`
	}

	// DateRange is an inclusive calendar range. A zero bound is open.
	DateRange struct {
		From core.Date `json:"from"`
		To   core.Date `json:"to"`
	}

	Comparison struct {
		Category          core.Category `json:"category"`
		Amount            float64       `json:"amount"`
		PercentageOfTotal float64       `json:"percentageOfTotal"`
	}

	// RootTotal is the amount booked under one root category.
	RootTotal struct {
		Category core.Category `json:"category"`
		Amount   float64       `json:"amount"`
	}

	// ExpenseSplit separates fixed from variable expenses.
	ExpenseSplit struct {
		Fixed    float64 `json:"fixed"`
		Variable float64 `json:"variable"`
	}
)

// Balance returns income minus expense.
func (t Totals) Balance() float64 {
	return t.Income - t.Expense
}

func (t *Totals) add(typ core.CategoryType, amount float64) {
	switch typ {
	case core.Income:
		t.Income += amount
	case core.Expense:
		t.Expense += amount
	}
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d core.Date) bool {
	if !r.From.IsZero() && d.Before(r.From.Time) {
		return false
	}
	if !r.To.IsZero() && d.After(r.To.Time) {
		return false
	}
	return true
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock used to pick the default year.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine aggregates transactions against one category snapshot.
// It is safe for concurrent use since it never mutates its store.
type Engine struct {
	store category.Store
	now   func() time.Time
}

func NewEngine(s category.Store, opts ...Option) *Engine {
	e := &Engine{store: s, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// typeOf returns the category's type when the category resolves and the
// stored transaction type otherwise.
func (e *Engine) typeOf(tx core.Transaction) core.CategoryType {
	if c, ok := e.store.Get(tx.CategoryID); ok {
		return c.Type
	}
	return tx.Type
}

func (e *Engine) subtree(categoryID string) map[string]struct{} {
	ids := e.store.DescendantIDs(categoryID)
	if _, ok := e.store.Get(categoryID); ok {
		ids[categoryID] = struct{}{}
	}
	return ids
}

// SumForCategorySubtree sums every transaction booked on categoryID or any
// of its descendants. Unknown ids sum to zero.
func (e *Engine) SumForCategorySubtree(categoryID string, txns []core.Transaction) float64 {
	ids := e.subtree(categoryID)
	var sum float64
	for _, tx := range txns {
		if _, ok := ids[tx.CategoryID]; ok {
			sum += tx.Amount
		}
	}
	return sum
}

// MonthlyBreakdown returns income and expense totals for every month of year.
// All twelve months are present.
func (e *Engine) MonthlyBreakdown(txns []core.Transaction, year int) map[int]Totals {
	out := make(map[int]Totals, monthsPerYear)
	for m := 1; m <= monthsPerYear; m++ {
		out[m] = Totals{}
	}
	for _, tx := range txns {
		if tx.Date.Year() != year {
			continue
		}
		t := out[tx.Date.Month()]
		t.add(e.typeOf(tx), tx.Amount)
		out[tx.Date.Month()] = t
	}
	return out
}

// YearlyBreakdown returns totals for every year present in txns, or a single
// zero entry for the current year when txns is empty.
func (e *Engine) YearlyBreakdown(txns []core.Transaction) map[int]Totals {
	out := make(map[int]Totals)
	for _, tx := range txns {
		if tx.Date.IsZero() {
			continue
		}
		t := out[tx.Date.Year()]
		t.add(e.typeOf(tx), tx.Amount)
		out[tx.Date.Year()] = t
	}
	if len(out) == 0 {
		out[e.now().Year()] = Totals{}
	}
	return out
}

// CategoryHierarchyReport builds one node per category of typ, rooted at the
// roots of typ. Every node carries its subtree sum per month of year.
func (e *Engine) CategoryHierarchyReport(txns []core.Transaction, year int, typ core.CategoryType) []ReportNode {
	direct := make(map[string]*[monthsPerYear]float64)
	for _, tx := range txns {
		if tx.Date.Year() != year || e.typeOf(tx) != typ {
			continue
		}
		if _, ok := e.store.Get(tx.CategoryID); !ok {
			continue
		}
		m := direct[tx.CategoryID]
		if m == nil {
			m = new([monthsPerYear]float64)
			direct[tx.CategoryID] = m
		}
		m[tx.Date.Month()-1] += tx.Amount
	}

	visited := make(map[string]struct{})
	roots := e.store.Roots(typ)
	out := make([]ReportNode, 0, len(roots))
	for _, r := range roots {
		out = append(out, e.buildNode(r, direct, visited, 0))
	}
	return out
}

func (e *Engine) buildNode(c core.Category, direct map[string]*[monthsPerYear]float64, visited map[string]struct{}, depth int) ReportNode {
	visited[c.ID] = struct{}{}
	node := ReportNode{Category: c, Children: []ReportNode{}}
	if m := direct[c.ID]; m != nil {
		node.MonthlyAmounts = *m
	}
	if depth < maxReportDepth {
		for _, child := range e.store.Children(c.ID, c.Type) {
			if _, seen := visited[child.ID]; seen {
				continue
			}
			sub := e.buildNode(child, direct, visited, depth+1)
			for i := range node.MonthlyAmounts {
				node.MonthlyAmounts[i] += sub.MonthlyAmounts[i]
			}
			node.Children = append(node.Children, sub)
		}
	}
	for _, v := range node.MonthlyAmounts {
		node.YearlyTotal += v
	}
	node.MonthlyAverage = node.YearlyTotal / monthsPerYear
	return node
}

// ComparisonSet sums each requested category's subtree over r. Unknown ids
// are skipped. Percentages are of the sum over all returned amounts.
func (e *Engine) ComparisonSet(ids []string, r DateRange, txns []core.Transaction) []Comparison {
	inRange := make([]core.Transaction, 0, len(txns))
	for _, tx := range txns {
		if r.Contains(tx.Date) {
			inRange = append(inRange, tx)
		}
	}

	out := make([]Comparison, 0, len(ids))
	var total float64
	for _, id := range ids {
		c, ok := e.store.Get(id)
		if !ok {
			continue
		}
		amount := e.SumForCategorySubtree(id, inRange)
		total += amount
		out = append(out, Comparison{Category: c, Amount: amount})
	}
	for i := range out {
		out[i].PercentageOfTotal = percentage(out[i].Amount, total)
	}
	return out
}

// MonthOverview returns the amount booked under each root category of typ in
// the given month, roots without activity included.
func (e *Engine) MonthOverview(txns []core.Transaction, year, month int, typ core.CategoryType) []RootTotal {
	inMonth := make([]core.Transaction, 0, len(txns))
	for _, tx := range txns {
		if tx.Date.Year() == year && tx.Date.Month() == month {
			inMonth = append(inMonth, tx)
		}
	}
	roots := e.store.Roots(typ)
	out := make([]RootTotal, 0, len(roots))
	for _, r := range roots {
		out = append(out, RootTotal{Category: r, Amount: e.SumForCategorySubtree(r.ID, inMonth)})
	}
	return out
}

// FixedExpenseSplit totals the expenses of year, counting a transaction as
// fixed when its category or any ancestor is marked as a fixed expense.
func (e *Engine) FixedExpenseSplit(txns []core.Transaction, year int) ExpenseSplit {
	fixed := make(map[string]bool)
	isFixed := func(id string) bool {
		if v, ok := fixed[id]; ok {
			return v
		}
		v := false
		for _, c := range e.store.AncestorPath(id) {
			if c.IsFixedExpense {
				v = true
				break
			}
		}
		fixed[id] = v
		return v
	}

	var split ExpenseSplit
	for _, tx := range txns {
		if tx.Date.Year() != year || e.typeOf(tx) != core.Expense {
			continue
		}
		if isFixed(tx.CategoryID) {
			split.Fixed += tx.Amount
		} else {
			split.Variable += tx.Amount
		}
	}
	return split
}

func percentage(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return part / total * 100
}
