package sheets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/report"
)

func TestSheetName(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"", "2024 Report"},
		{"Report", "2024 Report"},
		{"  Summary ", "2024 Summary"},
		{"2023 Report", "2023 Report"},
		{"1234 Report", "2024 1234 Report"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			assert.Equal(t, tt.want, SheetName(tt.base, 2024))
		})
	}
}

func TestRows(t *testing.T) {
	groceries := report.ReportNode{
		Category:    core.Category{ID: "groceries", Name: "Groceries", Type: core.Expense, Level: 3},
		YearlyTotal: 100.004,
		Children:    []report.ReportNode{},
	}
	groceries.MonthlyAmounts[2] = 100.004
	groceries.MonthlyAverage = 100.004 / 12

	food := groceries
	food.Category = core.Category{ID: "food", Name: "Food", Type: core.Expense, Level: 2}
	food.Children = []report.ReportNode{groceries}

	salary := report.ReportNode{
		Category:    core.Category{ID: "salary", Name: "Salary", Type: core.Income, Level: 2},
		YearlyTotal: 1500,
	}
	salary.MonthlyAmounts[0] = 1500
	salary.MonthlyAverage = 125

	rows := Rows(YearReport{Year: 2024, Income: []report.ReportNode{salary}, Expense: []report.ReportNode{food}})

	require.Len(t, rows, 6)
	header := rows[0]
	require.Len(t, header, 15)
	assert.Equal(t, "Category", header[0])
	assert.Equal(t, "Jan", header[1])
	assert.Equal(t, "Dec", header[12])
	assert.Equal(t, "Total", header[13])
	assert.Equal(t, "Average", header[14])

	assert.Equal(t, []any{"Income"}, rows[1])
	assert.Equal(t, "Salary", rows[2][0])
	assert.Equal(t, 1500.0, rows[2][1])
	assert.Equal(t, 125.0, rows[2][14])

	assert.Equal(t, []any{"Expense"}, rows[3])
	assert.Equal(t, "Food", rows[4][0])
	assert.Equal(t, "  Groceries", rows[5][0])
	assert.Equal(t, 100.0, rows[5][3])
	assert.Equal(t, 100.0, rows[5][13])
	assert.Equal(t, 8.33, rows[5][14])
}

func TestRows_EmptyReport(t *testing.T) {
	rows := Rows(YearReport{Year: 2024})
	require.Len(t, rows, 3)
	assert.Equal(t, []any{"Income"}, rows[1])
	assert.Equal(t, []any{"Expense"}, rows[2])
}
