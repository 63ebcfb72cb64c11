package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/dafibh/tally/tally-backend/internal/config"
	"github.com/dafibh/tally/tally-backend/internal/messaging"
	"github.com/dafibh/tally/tally-backend/internal/repository/postgres"
	"github.com/dafibh/tally/tally-backend/internal/service"
	"github.com/dafibh/tally/tally-backend/internal/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	once := flag.Bool("once", false, "run every sweep a single time and exit")
	only := flag.String("sweep", "", "run only this sweep (renewal, reconcile, autosave, income-expectations) and exit")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.LoadSweeper()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}

	userRepo := postgres.NewUserRepository(pool)
	expenseRepo := postgres.NewExpenseRepository(pool)
	budgetRepo := postgres.NewBudgetRepository(pool)
	goalRepo := postgres.NewGoalRepository(pool)
	incomeRepo := postgres.NewIncomeRepository(pool)

	// No websocket clients live in this process, so events only reach the broker
	var publisher websocket.EventPublisher = &websocket.NoOpPublisher{}
	if cfg.AMQP.Enabled() {
		amqpPublisher, err := messaging.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to AMQP broker")
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	}

	aggregator := service.NewBudgetAggregator(budgetRepo, expenseRepo, publisher, log.Logger, service.AggregatorConfig{
		RecomputeTimeout: cfg.Budget.RecomputeTimeout,
		MaxCASRetries:    cfg.Budget.MaxCASRetries,
	})
	incomeService := service.NewIncomeService(incomeRepo, expenseRepo, userRepo, nil, publisher, log.Logger)
	budgetService := service.NewBudgetService(budgetRepo, userRepo, aggregator, publisher, cfg.Budget.DefaultThresholds, log.Logger)
	goalService := service.NewGoalService(goalRepo, userRepo, publisher, log.Logger, cfg.Budget.MaxCASRetries)

	runner := service.NewSweepRunner(budgetService, goalService, incomeService, log.Logger, service.SweepRunnerConfig{
		Interval: cfg.SweepInterval,
	})

	switch {
	case *only != "":
		kind, err := service.ParseSweepKind(*only)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid sweep")
		}
		if _, err := runner.RunSweep(ctx, kind); err != nil {
			log.Fatal().Err(err).Str("sweep", *only).Msg("Sweep failed")
		}
	case *once:
		failed := 0
		for _, report := range runner.RunOnce(ctx) {
			if report.Error != "" {
				failed++
			}
		}
		if failed > 0 {
			log.Fatal().Int("failed_sweeps", failed).Msg("Sweeps finished with errors")
		}
	default:
		runner.Start(ctx)
		<-ctx.Done()
		runner.Stop()
		<-runner.Done()
	}

	log.Info().Msg("Sweeper exited")
}
