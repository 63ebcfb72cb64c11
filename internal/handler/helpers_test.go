package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/dafibh/tally/tally-backend/internal/middleware"
	"github.com/dafibh/tally/tally-backend/internal/service"
	"github.com/dafibh/tally/tally-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// apiFixture wires the real services over in-memory repositories
type apiFixture struct {
	userID   uuid.UUID
	users    *testutil.MockUserRepository
	expenses *testutil.MockExpenseRepository
	budgets  *testutil.MockBudgetRepository
	goals    *testutil.MockGoalRepository
	income   *testutil.MockIncomeRepository
	store    *testutil.MockReceiptStore

	expenseService *service.ExpenseService
	budgetService  *service.BudgetService
	goalService    *service.GoalService
	incomeService  *service.IncomeService
	insightService *service.InsightService
	receiptService *service.ReceiptService
	sweepRunner    *service.SweepRunner
}

func newAPIFixture() *apiFixture {
	f := &apiFixture{
		userID:   uuid.New(),
		users:    testutil.NewMockUserRepository(),
		expenses: testutil.NewMockExpenseRepository(),
		budgets:  testutil.NewMockBudgetRepository(),
		goals:    testutil.NewMockGoalRepository(),
		income:   testutil.NewMockIncomeRepository(),
		store:    testutil.NewMockReceiptStore(),
	}
	f.users.AddUser(&domain.User{
		ID:       f.userID,
		Auth0ID:  "auth0|fixture",
		Email:    "fixture@example.com",
		Currency: "USD",
	})

	logger := zerolog.Nop()
	aggregator := service.NewBudgetAggregator(f.budgets, f.expenses, nil, logger, service.AggregatorConfig{})
	f.incomeService = service.NewIncomeService(f.income, f.expenses, f.users, nil, nil, logger)
	f.expenseService = service.NewExpenseService(f.expenses, f.users, aggregator, f.incomeService, logger)
	f.budgetService = service.NewBudgetService(f.budgets, f.users, aggregator, nil, nil, logger)
	f.goalService = service.NewGoalService(f.goals, f.users, nil, logger, 0)
	f.insightService = service.NewInsightService(f.incomeService, f.goalService, f.budgetService)
	f.receiptService = service.NewReceiptService(f.store, f.expenses, logger)
	f.sweepRunner = service.NewSweepRunner(f.budgetService, f.goalService, f.incomeService, logger, service.DefaultSweepRunnerConfig())
	return f
}

// request builds a context for the fixture user. A non-empty body is sent as JSON.
func (f *apiFixture) request(method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	middleware.SetUserID(c, f.userID)
	return c, rec
}

func withID(c echo.Context, id string) echo.Context {
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, rec.Body.String())
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("Expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func expectFieldError(t *testing.T, rec *httptest.ResponseRecorder, field string) {
	t.Helper()
	expectStatus(t, rec, http.StatusBadRequest)
	var problem ProblemDetails
	decodeJSON(t, rec, &problem)
	for _, e := range problem.Errors {
		if e.Field == field {
			return
		}
	}
	t.Errorf("Expected %s field error, got %+v", field, problem.Errors)
}
