package domain

import (
	"encoding/json"
	"fmt"
)

// ExpenseCategory is the closed set of spending categories.
type ExpenseCategory string

const (
	CategoryFood          ExpenseCategory = "food"
	CategoryTransport     ExpenseCategory = "transportation"
	CategoryHousing       ExpenseCategory = "housing"
	CategoryUtilities     ExpenseCategory = "utilities"
	CategoryEntertainment ExpenseCategory = "entertainment"
	CategoryHealthcare    ExpenseCategory = "healthcare"
	CategoryShopping      ExpenseCategory = "shopping"
	CategoryEducation     ExpenseCategory = "education"
	CategoryTravel        ExpenseCategory = "travel"
	CategoryInsurance     ExpenseCategory = "insurance"
	CategoryDebt          ExpenseCategory = "debt"
	CategoryPersonal      ExpenseCategory = "personal"
	CategoryOther         ExpenseCategory = "other"
)

var expenseCategories = map[ExpenseCategory]bool{
	CategoryFood:          true,
	CategoryTransport:     true,
	CategoryHousing:       true,
	CategoryUtilities:     true,
	CategoryEntertainment: true,
	CategoryHealthcare:    true,
	CategoryShopping:      true,
	CategoryEducation:     true,
	CategoryTravel:        true,
	CategoryInsurance:     true,
	CategoryDebt:          true,
	CategoryPersonal:      true,
	CategoryOther:         true,
}

// IsValid reports whether c belongs to the closed category set
func (c ExpenseCategory) IsValid() bool {
	return expenseCategories[c]
}

// scopeAllCode is how AllCategories is written to storage and the wire.
const scopeAllCode = "total"

// BudgetScope selects which expenses a budget aggregates: either a single
// category or every category. The zero value is invalid.
type BudgetScope struct {
	all      bool
	category ExpenseCategory
}

// PerCategory scopes a budget to one category
func PerCategory(c ExpenseCategory) BudgetScope {
	return BudgetScope{category: c}
}

// AllCategories scopes a budget to every expense
func AllCategories() BudgetScope {
	return BudgetScope{all: true}
}

// IsAll reports whether the scope matches every category
func (s BudgetScope) IsAll() bool {
	return s.all
}

// Category returns the scoped category; ok is false for AllCategories.
func (s BudgetScope) Category() (c ExpenseCategory, ok bool) {
	if s.all {
		return "", false
	}
	return s.category, true
}

// Matches reports whether an expense in category c counts toward the scope
func (s BudgetScope) Matches(c ExpenseCategory) bool {
	return s.all || s.category == c
}

// IsValid reports whether the scope was built by one of the constructors
func (s BudgetScope) IsValid() bool {
	return s.all || s.category.IsValid()
}

func (s BudgetScope) String() string {
	if s.all {
		return scopeAllCode
	}
	return string(s.category)
}

// ParseBudgetScope decodes the storage/wire representation of a scope
func ParseBudgetScope(code string) (BudgetScope, error) {
	if code == scopeAllCode {
		return AllCategories(), nil
	}
	c := ExpenseCategory(code)
	if !c.IsValid() {
		return BudgetScope{}, ErrInvalidCategory
	}
	return PerCategory(c), nil
}

func (s BudgetScope) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *BudgetScope) UnmarshalJSON(data []byte) error {
	var code string
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("budget scope: %w", err)
	}
	parsed, err := ParseBudgetScope(code)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
