package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

const (
	Income  CategoryType = "income"
	Expense CategoryType = "expense"
)

const (
	// BaseLevel is the level of root categories.
	BaseLevel = 2
	// MaxLevel is the deepest level a category may live at.
	MaxLevel = 4
)

// DateLayout is the calendar date format used on the wire and in storage.
const DateLayout = "2006-01-02"

type (
	CategoryType string

	Date struct {
		time.Time
	}

	Category struct {
		ID             string       `json:"id"`
		Name           string       `json:"name"`
		Type           CategoryType `json:"type"`
		Level          int          `json:"level"`
		ParentID       string       `json:"parentId,omitempty"`
		IsActive       bool         `json:"isActive"`
		IsFixedExpense bool         `json:"isFixedExpense"`
	}

	Transaction struct {
		ID          string       `json:"id"`
		Description string       `json:"description"`
		Amount      float64      `json:"amount"`
		Date        Date         `json:"date"`
		CategoryID  string       `json:"categoryId"`
		Type        CategoryType `json:"type"`
	}
)

var (
	ErrInvalidDay    = errors.New("invalid day")
	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidAmount = errors.New("invalid amount")
)

// Valid reports whether t is one of the known category types.
func (t CategoryType) Valid() bool {
	return t == Income || t == Expense
}

func (t CategoryType) String() string {
	return string(t)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Month returns the month as 1..12
func (d Date) Month() int {
	return int(d.Time.Month())
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	// Accept full timestamps as written by browser clients.
	if len(s) > len(DateLayout) {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
		*d = NewDate(t.Year(), int(t.Month()), t.Day())
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// IsRoot reports whether the category has no parent.
func (c Category) IsRoot() bool {
	return c.ParentID == ""
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be blank"}
	}
	if !c.Type.Valid() {
		return &ValidationError{Field: "type", Reason: "must be income or expense"}
	}
	if c.Level < 1 || c.Level > MaxLevel {
		return &ValidationError{Field: "level", Reason: "out of range"}
	}
	if c.ParentID == c.ID && c.ID != "" {
		return &ValidationError{Field: "parentId", Reason: "category cannot be its own parent"}
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return &ValidationError{Field: "date", Reason: err.Error()}
	}
	if t.Amount < 0 || math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return &ValidationError{Field: "amount", Reason: ErrInvalidAmount.Error()}
	}
	if strings.TrimSpace(t.CategoryID) == "" {
		return &ValidationError{Field: "categoryId", Reason: "must not be blank"}
	}
	if !t.Type.Valid() {
		return &ValidationError{Field: "type", Reason: "must be income or expense"}
	}
	if len(t.Description) > 200 {
		return &ValidationError{Field: "description", Reason: "too long (max 200 characters)"}
	}
	return nil
}
