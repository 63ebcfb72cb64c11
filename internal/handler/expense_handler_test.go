package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestCreateExpense_Success(t *testing.T) {
	f := newAPIFixture()
	h := NewExpenseHandler(f.expenseService)

	body := `{"amount":"42.50","category":"food","description":" groceries ","expenseDate":"2026-03-14"}`
	c, rec := f.request(http.MethodPost, "/api/v1/expenses", body)

	if err := h.CreateExpense(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	expectStatus(t, rec, http.StatusCreated)

	var expense domain.Expense
	decodeJSON(t, rec, &expense)
	if !expense.Amount.Equal(decimal.RequireFromString("42.50")) {
		t.Errorf("Expected amount 42.50, got %s", expense.Amount)
	}
	if expense.Status != domain.ExpenseStatusCompleted {
		t.Errorf("Expected default status completed, got %s", expense.Status)
	}
	if expense.Currency != "USD" {
		t.Errorf("Expected user's currency USD, got %s", expense.Currency)
	}
	if expense.Description == nil || *expense.Description != "groceries" {
		t.Errorf("Expected trimmed description, got %v", expense.Description)
	}
}

func TestCreateExpense_UpdatesCoveringBudget(t *testing.T) {
	f := newAPIFixture()
	now := time.Now().UTC()
	budget := f.budgets.AddBudget(&domain.Budget{
		UserID:    f.userID,
		Name:      "Food",
		Scope:     domain.PerCategory(domain.CategoryFood),
		Amount:    decimal.NewFromInt(100),
		Currency:  "USD",
		StartDate: domain.TruncateDay(now.AddDate(0, 0, -5)),
		EndDate:   domain.TruncateDay(now.AddDate(0, 0, 5)),
		IsActive:  true,
	})
	h := NewExpenseHandler(f.expenseService)

	body := `{"amount":"30","category":"food","expenseDate":"` + now.Format(dateLayout) + `"}`
	c, rec := f.request(http.MethodPost, "/api/v1/expenses", body)
	if err := h.CreateExpense(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	expectStatus(t, rec, http.StatusCreated)

	if spent := f.budgets.Get(budget.ID).Spent; !spent.Equal(decimal.NewFromInt(30)) {
		t.Errorf("Expected budget spent 30, got %s", spent)
	}
}

func TestCreateExpense_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"unparseable amount", `{"amount":"abc","category":"food","expenseDate":"2026-03-14"}`, "amount"},
		{"zero amount", `{"amount":"0","category":"food","expenseDate":"2026-03-14"}`, "amount"},
		{"unknown category", `{"amount":"5","category":"yachts","expenseDate":"2026-03-14"}`, "category"},
		{"bad date", `{"amount":"5","category":"food","expenseDate":"14/03/2026"}`, "expenseDate"},
		{"bad status", `{"amount":"5","category":"food","expenseDate":"2026-03-14","status":"maybe"}`, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture()
			h := NewExpenseHandler(f.expenseService)
			c, rec := f.request(http.MethodPost, "/api/v1/expenses", tt.body)

			if err := h.CreateExpense(c); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			expectFieldError(t, rec, tt.field)
		})
	}
}

func TestGetExpense_OtherUsersExpenseIsNotFound(t *testing.T) {
	f := newAPIFixture()
	other := f.expenses.AddExpense(&domain.Expense{
		UserID:      uuid.New(),
		Amount:      decimal.NewFromInt(10),
		Category:    domain.CategoryFood,
		ExpenseDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:      domain.ExpenseStatusCompleted,
	})
	h := NewExpenseHandler(f.expenseService)

	c, rec := f.request(http.MethodGet, "/api/v1/expenses/1", "")
	withID(c, "1")
	if other.ID != 1 {
		t.Fatalf("Expected seeded expense id 1, got %d", other.ID)
	}

	if err := h.GetExpense(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	expectStatus(t, rec, http.StatusNotFound)
}

func TestGetExpense_InvalidID(t *testing.T) {
	f := newAPIFixture()
	h := NewExpenseHandler(f.expenseService)

	c, rec := f.request(http.MethodGet, "/api/v1/expenses/abc", "")
	withID(c, "abc")

	if err := h.GetExpense(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	expectFieldError(t, rec, "id")
}

func TestListExpenses_FiltersAndPaginates(t *testing.T) {
	f := newAPIFixture()
	for day := 1; day <= 5; day++ {
		category := domain.CategoryFood
		if day%2 == 0 {
			category = domain.CategoryTravel
		}
		f.expenses.AddExpense(&domain.Expense{
			UserID:      f.userID,
			Amount:      decimal.NewFromInt(int64(day)),
			Category:    category,
			ExpenseDate: time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC),
			Status:      domain.ExpenseStatusCompleted,
		})
	}
	h := NewExpenseHandler(f.expenseService)

	c, rec := f.request(http.MethodGet, "/api/v1/expenses?category=food&page=1&pageSize=2", "")
	if err := h.ListExpenses(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	expectStatus(t, rec, http.StatusOK)

	var page domain.PaginatedExpenses
	decodeJSON(t, rec, &page)
	if page.TotalItems != 3 {
		t.Errorf("Expected 3 food expenses, got %d", page.TotalItems)
	}
	if len(page.Data) != 2 || page.TotalPages != 2 {
		t.Errorf("Expected 2 items over 2 pages, got %d items over %d pages", len(page.Data), page.TotalPages)
	}
	for _, e := range page.Data {
		if e.Category != domain.CategoryFood {
			t.Errorf("Expected only food, got %s", e.Category)
		}
	}
}

func TestListExpenses_RejectsInvertedRange(t *testing.T) {
	f := newAPIFixture()
	h := NewExpenseHandler(f.expenseService)

	c, rec := f.request(http.MethodGet, "/api/v1/expenses?startDate=2026-03-10&endDate=2026-03-01", "")
	if err := h.ListExpenses(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	expectFieldError(t, rec, "endDate")
}

func TestUpdateExpense_CancelReleasesBudget(t *testing.T) {
	f := newAPIFixture()
	now := time.Now().UTC()
	budget := f.budgets.AddBudget(&domain.Budget{
		UserID:    f.userID,
		Name:      "Everything",
		Scope:     domain.AllCategories(),
		Amount:    decimal.NewFromInt(500),
		Currency:  "USD",
		StartDate: domain.TruncateDay(now.AddDate(0, 0, -1)),
		EndDate:   domain.TruncateDay(now.AddDate(0, 0, 1)),
		IsActive:  true,
	})
	h := NewExpenseHandler(f.expenseService)

	create, rec := f.request(http.MethodPost, "/api/v1/expenses", `{"amount":"80","category":"shopping","expenseDate":"`+now.Format(dateLayout)+`"}`)
	if err := h.CreateExpense(create); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	expectStatus(t, rec, http.StatusCreated)
	var created domain.Expense
	decodeJSON(t, rec, &created)

	update, rec := f.request(http.MethodPut, "/api/v1/expenses/1", `{"status":"cancelled"}`)
	withID(update, "1")
	if err := h.UpdateExpense(update); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	expectStatus(t, rec, http.StatusOK)

	if spent := f.budgets.Get(budget.ID).Spent; !spent.IsZero() {
		t.Errorf("Expected budget spent 0 after cancel, got %s", spent)
	}
}

func TestDeleteExpense(t *testing.T) {
	f := newAPIFixture()
	f.expenses.AddExpense(&domain.Expense{
		UserID:      f.userID,
		Amount:      decimal.NewFromInt(10),
		Category:    domain.CategoryFood,
		ExpenseDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:      domain.ExpenseStatusCompleted,
	})
	h := NewExpenseHandler(f.expenseService)

	c, rec := f.request(http.MethodDelete, "/api/v1/expenses/1", "")
	withID(c, "1")
	if err := h.DeleteExpense(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	expectStatus(t, rec, http.StatusNoContent)

	again, rec := f.request(http.MethodDelete, "/api/v1/expenses/1", "")
	withID(again, "1")
	if err := h.DeleteExpense(again); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	expectStatus(t, rec, http.StatusNotFound)
}
