package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dafibh/tally/tally-backend/internal/cache"
	"github.com/dafibh/tally/tally-backend/internal/config"
	"github.com/dafibh/tally/tally-backend/internal/handler"
	"github.com/dafibh/tally/tally-backend/internal/messaging"
	"github.com/dafibh/tally/tally-backend/internal/middleware"
	"github.com/dafibh/tally/tally-backend/internal/repository/postgres"
	"github.com/dafibh/tally/tally-backend/internal/repository/storage"
	"github.com/dafibh/tally/tally-backend/internal/service"
	"github.com/dafibh/tally/tally-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// @title Tally API
// @version 1.0
// @description Personal finance tracking: expenses, budgets, savings goals and income.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @securityDefinitions.apikey AdminKey
// @in header
// @name X-Admin-Key
func main() {
	// Initialize zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.AutoMigrate {
		if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
		log.Info().Msg("Migrations applied")
	}

	// Connect to database
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	// Verify database connection
	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Connected to database")

	// Initialize repositories
	userRepo := postgres.NewUserRepository(pool)
	expenseRepo := postgres.NewExpenseRepository(pool)
	budgetRepo := postgres.NewBudgetRepository(pool)
	goalRepo := postgres.NewGoalRepository(pool)
	incomeRepo := postgres.NewIncomeRepository(pool)

	// Realtime events go to connected websocket clients and, when configured, to RabbitMQ
	hub := websocket.NewHub()
	publishers := websocket.MultiPublisher{hub}
	if cfg.AMQP.Enabled() {
		amqpPublisher, err := messaging.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to AMQP broker")
		}
		defer amqpPublisher.Close()
		publishers = append(publishers, amqpPublisher)
		log.Info().Str("exchange", cfg.AMQP.Exchange).Msg("Publishing events to AMQP")
	}

	// Receipt storage is optional; without it the receipt routes answer 503
	var receiptStore storage.ReceiptStore
	if cfg.S3.Enabled() {
		s3Store, err := storage.NewS3ReceiptStore(context.Background(), cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize receipt storage")
		}
		receiptStore = s3Store
		log.Info().Str("bucket", cfg.S3.Bucket).Msg("Receipt storage enabled")
	} else {
		log.Warn().Msg("S3_BUCKET not set, receipt uploads disabled")
	}

	incomeCache := cache.NewLRU[uuid.UUID, *service.IncomeSummary](cfg.IncomeCacheSize, cfg.IncomeCacheTTL)
	janitor := cache.NewJanitor(log.Logger)
	janitor.Register(incomeCache)
	janitor.Start(cfg.IncomeCacheTTL)
	defer janitor.Stop()

	// Initialize services
	aggregator := service.NewBudgetAggregator(budgetRepo, expenseRepo, publishers, log.Logger, service.AggregatorConfig{
		RecomputeTimeout: cfg.Budget.RecomputeTimeout,
		MaxCASRetries:    cfg.Budget.MaxCASRetries,
	})
	authService := service.NewAuthService(userRepo)
	profileService := service.NewProfileService(userRepo)
	incomeService := service.NewIncomeService(incomeRepo, expenseRepo, userRepo, incomeCache, publishers, log.Logger)
	expenseService := service.NewExpenseService(expenseRepo, userRepo, aggregator, incomeService, log.Logger)
	budgetService := service.NewBudgetService(budgetRepo, userRepo, aggregator, publishers, cfg.Budget.DefaultThresholds, log.Logger)
	goalService := service.NewGoalService(goalRepo, userRepo, publishers, log.Logger, cfg.Budget.MaxCASRetries)
	insightService := service.NewInsightService(incomeService, goalService, budgetService)
	receiptService := service.NewReceiptService(receiptStore, expenseRepo, log.Logger)
	sweepRunner := service.NewSweepRunner(budgetService, goalService, incomeService, log.Logger, service.SweepRunnerConfig{
		Interval: cfg.SweepInterval,
	})

	// Initialize auth middleware
	authMiddleware, err := middleware.NewAuthMiddleware(cfg.Auth0Domain, cfg.Auth0Audience, authService)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create auth middleware")
	}
	rateLimiter := middleware.NewRateLimiterWithConfig(cfg.RateLimitPerMinute, cfg.RateLimitPerMinute/6)
	defer rateLimiter.Stop()

	wsValidator, err := websocket.NewAuth0JWTValidator(cfg.Auth0Domain, cfg.Auth0Audience, authService)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create websocket validator")
	}

	// Initialize handlers
	handlers := handler.Handlers{
		Auth:    handler.NewAuthHandler(authService),
		Profile: handler.NewProfileHandler(profileService),
		Expense: handler.NewExpenseHandler(expenseService),
		Receipt: handler.NewReceiptHandler(receiptService),
		Budget:  handler.NewBudgetHandler(budgetService),
		Goal:    handler.NewGoalHandler(goalService),
		Income:  handler.NewIncomeHandler(incomeService),
		Insight: handler.NewInsightHandler(insightService),
		Admin:   handler.NewAdminHandler(sweepRunner),
	}
	wsHandler := handler.NewWebSocketHandler(hub, wsValidator, cfg.CORSOrigins)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Request ID middleware
	e.Use(echomiddleware.RequestID())

	// CORS middleware
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, middleware.AdminKeyHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Security headers middleware (helmet-like)
	e.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	// Request logging middleware with zerolog
	e.Use(zerologMiddleware())

	// Recovery middleware
	e.Use(echomiddleware.Recover())

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":            "ok",
			"websocket_clients": hub.TotalClientCount(),
			"receipts_enabled":  receiptService.IsEnabled(),
		})
	})

	// API documentation
	if cfg.Env != "production" {
		e.GET("/swagger/*", echoSwagger.WrapHandler)
	}
	e.GET("/openapi.json", handler.ServeOpenAPI3Spec(nil))

	// Realtime events; the token travels as a query parameter
	e.GET("/ws", wsHandler.HandleWS)

	// Register API routes
	handler.RegisterRoutes(e, handler.RouteConfig{
		Auth:        authMiddleware,
		RateLimiter: rateLimiter,
		AdminAPIKey: cfg.AdminAPIKey,
	}, handlers)

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// zerologMiddleware returns a middleware that logs requests using zerolog
func zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			event := log.Info()
			if res.Status >= http.StatusInternalServerError {
				event = log.Error()
			}
			event.
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Msg("request")

			return nil
		}
	}
}
