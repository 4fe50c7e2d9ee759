// Package main contains the entrypoint for the Healing Space API server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/healingspace/healingspace/internal/app"
	"github.com/healingspace/healingspace/internal/auth"
	"github.com/healingspace/healingspace/internal/config"
	"github.com/healingspace/healingspace/internal/database"
	"github.com/healingspace/healingspace/internal/feedback"
	"github.com/healingspace/healingspace/internal/gemini"
	"github.com/healingspace/healingspace/internal/httpapi"
	"github.com/healingspace/healingspace/internal/logger"
	"github.com/healingspace/healingspace/internal/messaging"
	"github.com/healingspace/healingspace/internal/metrics"
	"github.com/healingspace/healingspace/internal/scheduler"
	"github.com/healingspace/healingspace/internal/telegram"
	"github.com/healingspace/healingspace/internal/therapy"
	"github.com/healingspace/healingspace/internal/wellness"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires every component, serves until ctx is cancelled and returns the
// process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		log.Error("Failed to connect to database", "driver", cfg.Database.Driver, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	m := metrics.New()

	tokens := auth.NewTokens(cfg.Auth, time.Now)
	accounts := auth.NewAccounts(store, tokens, cfg.Auth, log)
	guard := auth.NewGuard(tokens, store, httpapi.ErrorWriter(log))

	msgSvc := messaging.NewService(store, cfg.Messaging, log, messaging.WithMetrics(m))
	feedbackSvc := feedback.NewService(store, log)

	therapyOpts := []therapy.Option{
		therapy.WithMetrics(m),
		therapy.WithHistorySize(cfg.Gemini.HistorySize),
	}
	if cfg.Gemini.APIKey != "" {
		gemClient, err := gemini.NewClient(ctx, cfg.Gemini, log)
		if err != nil {
			log.Error("Failed to initialize Gemini client", "error", err)
			return 1
		}
		therapyOpts = append(therapyOpts, therapy.WithReplyGenerator(gemClient))
	} else {
		log.Warn("Gemini API key not set, therapy chat will answer with the fallback reply")
	}
	if cfg.Telegram.Token != "" {
		tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log)
		if err != nil {
			log.Error("Failed to create Telegram bot", "error", err)
			return 1
		}
		therapyOpts = append(therapyOpts, therapy.WithNotifier(telegram.NewAlerter(tg, cfg.Telegram.AlertChatID, log)))
	} else {
		log.Info("Telegram token not set, crisis alerts are recorded but not forwarded")
	}
	therapySvc := therapy.NewService(store, therapy.NewMonitor(), log, therapyOpts...)

	handler := httpapi.NewHandler(httpapi.Deps{
		Accounts:  accounts,
		Guard:     guard,
		Messaging: msgSvc,
		Feedback:  feedbackSvc,
		Therapy:   therapySvc,
		Wellness:  wellness.NewService(store, log),
		Health:    store,
		Metrics:   m,
		Logger:    log,
	})

	sched, err := scheduler.New(log, cfg.Scheduler, scheduler.RegisterAllTasks(scheduler.TaskDeps{
		Logger:    log,
		Store:     store,
		Messaging: msgSvc,
	}))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	log.Info("Starting Healing Space API...")
	runErr := app.New(log, cfg.Server, handler, sched).Run(ctx)
	log.Info("Run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Server stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Server stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
