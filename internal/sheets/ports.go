package sheets

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/report"
)

// Ports for outbound adapters.
type (
	// ReportWriter publishes a yearly hierarchy report.
	ReportWriter interface {
		WriteYearReport(ctx context.Context, r YearReport) error
	}
)

// YearReport holds both hierarchy reports of one calendar year.
type YearReport struct {
	Year    int
	Income  []report.ReportNode
	Expense []report.ReportNode
}

// MonthHeaders are the column titles of the twelve month columns.
var MonthHeaders = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

const indent = "  "

// SheetName returns "<year> <base>" unless base already starts with a year.
func SheetName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "Report"
	}
	if len(base) >= 5 && base[4] == ' ' {
		var y int
		if _, err := fmt.Sscanf(base[:4], "%d", &y); err == nil && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// Rows lays the report out as a values matrix: one header row, then for each
// type a section title followed by one row per node, children indented under
// their parent. Every amount is rounded to cents.
func Rows(r YearReport) [][]any {
	header := make([]any, 0, len(MonthHeaders)+3)
	header = append(header, "Category")
	for _, m := range MonthHeaders {
		header = append(header, m)
	}
	header = append(header, "Total", "Average")

	rows := [][]any{header}
	sections := []struct {
		title string
		nodes []report.ReportNode
	}{
		{"Income", r.Income},
		{"Expense", r.Expense},
	}
	for _, sec := range sections {
		rows = append(rows, []any{sec.title})
		for _, n := range sec.nodes {
			rows = appendNode(rows, n, 0)
		}
	}
	return rows
}

func appendNode(rows [][]any, n report.ReportNode, depth int) [][]any {
	row := make([]any, 0, len(MonthHeaders)+3)
	row = append(row, strings.Repeat(indent, depth)+n.Category.Name)
	for _, v := range n.MonthlyAmounts {
		row = append(row, cents(v))
	}
	row = append(row, cents(n.YearlyTotal), cents(n.MonthlyAverage))
	rows = append(rows, row)
	for _, c := range n.Children {
		rows = appendNode(rows, c, depth+1)
	}
	return rows
}

func cents(v float64) float64 {
	return math.Round(v*100) / 100
}
