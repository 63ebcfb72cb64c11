package handler

import (
	"github.com/dafibh/tally/tally-backend/internal/middleware"
	"github.com/labstack/echo/v4"
)

// Handlers bundles every HTTP handler the API mounts
type Handlers struct {
	Auth    *AuthHandler
	Profile *ProfileHandler
	Expense *ExpenseHandler
	Receipt *ReceiptHandler
	Budget  *BudgetHandler
	Goal    *GoalHandler
	Income  *IncomeHandler
	Insight *InsightHandler
	Admin   *AdminHandler
}

// RouteConfig carries the middleware the routes depend on
type RouteConfig struct {
	Auth        *middleware.AuthMiddleware
	RateLimiter *middleware.RateLimiter
	AdminAPIKey string
}

// RegisterRoutes sets up all API routes
func RegisterRoutes(e *echo.Echo, cfg RouteConfig, h Handlers) {
	api := e.Group("/api/v1")

	// Auth routes only need a valid token; the callback creates the user
	auth := api.Group("/auth")
	auth.Use(cfg.Auth.Authenticate())
	auth.POST("/callback", h.Auth.Callback)
	auth.GET("/me", h.Auth.Me)
	auth.POST("/logout", h.Auth.Logout)

	// Everything else is scoped to a registered user
	user := api.Group("")
	user.Use(cfg.Auth.Authenticate(), cfg.Auth.RequireUser())
	if cfg.RateLimiter != nil {
		user.Use(middleware.RateLimitMiddleware(cfg.RateLimiter))
	}

	user.GET("/profile", h.Profile.GetProfile)
	user.PUT("/profile", h.Profile.UpdateProfile)

	// Expense routes
	expenses := user.Group("/expenses")
	expenses.POST("", h.Expense.CreateExpense)
	expenses.GET("", h.Expense.ListExpenses)
	expenses.GET("/:id", h.Expense.GetExpense)
	expenses.PUT("/:id", h.Expense.UpdateExpense)
	expenses.DELETE("/:id", h.Expense.DeleteExpense)
	expenses.POST("/:id/receipt", h.Receipt.UploadReceipt)
	expenses.GET("/:id/receipt", h.Receipt.GetReceipt)
	expenses.DELETE("/:id/receipt", h.Receipt.DeleteReceipt)

	// Budget routes
	budgets := user.Group("/budgets")
	budgets.POST("", h.Budget.CreateBudget)
	budgets.GET("", h.Budget.ListBudgets)
	budgets.GET("/alerts", h.Budget.GetBudgetAlerts)
	budgets.GET("/:id", h.Budget.GetBudget)
	budgets.PUT("/:id", h.Budget.UpdateBudget)
	budgets.DELETE("/:id", h.Budget.DeleteBudget)
	budgets.POST("/:id/recalculate", h.Budget.RecalculateBudget)
	budgets.POST("/:id/duplicate", h.Budget.DuplicateBudget)

	// Goal routes
	goals := user.Group("/goals")
	goals.POST("", h.Goal.CreateGoal)
	goals.GET("", h.Goal.ListGoals)
	goals.GET("/:id", h.Goal.GetGoal)
	goals.PUT("/:id", h.Goal.UpdateGoal)
	goals.DELETE("/:id", h.Goal.DeleteGoal)
	goals.POST("/:id/contributions", h.Goal.Contribute)

	// Income routes
	income := user.Group("/income")
	income.POST("", h.Income.CreateIncome)
	income.GET("", h.Income.ListIncome)
	income.GET("/summary", h.Income.GetSummary)
	income.GET("/by-type", h.Income.GetByType)
	income.GET("/analysis", h.Income.GetAnalysis)
	income.GET("/:id", h.Income.GetIncome)
	income.PUT("/:id", h.Income.UpdateIncome)
	income.DELETE("/:id", h.Income.DeleteIncome)
	income.POST("/:id/received", h.Income.MarkReceived)

	user.GET("/insights", h.Insight.GetInsights)

	// Operator routes use a static key instead of a user token
	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdminKey(cfg.AdminAPIKey))
	admin.POST("/sweeps/:kind", h.Admin.RunSweep)
}
