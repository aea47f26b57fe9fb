package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"legalintake_backend/internal/actions"
	conversationrepo "legalintake_backend/internal/conversations/repository"
	"legalintake_backend/internal/dispatch"
	"legalintake_backend/internal/email"
	"legalintake_backend/internal/events"
	"legalintake_backend/internal/followup"
	"legalintake_backend/internal/notification"
	"legalintake_backend/internal/scheduler"
	"legalintake_backend/internal/telemetry"
	"legalintake_backend/internal/whatsapp"
	"legalintake_backend/platform/config"
	"legalintake_backend/platform/db"
	"legalintake_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	executor := telemetry.NewExecutor(telemetry.NewRepository(pool), log)

	conversationRepo := conversationrepo.New(pool)
	gateway := dispatch.NewGateway(whatsapp.NewClient(cfg, log), conversationRepo, executor, log)

	// The worker binary never enqueues timers for itself; the claim loop
	// already covers everything it fires, including retries.
	actionScheduler := actions.NewScheduler(actions.NewRepository(pool), conversationRepo, gateway, nil, eventBus, log)

	notificationModule := notification.NewModule(initEmailSender(cfg, log), cfg.GetAlertRecipient(), conversationRepo, log)
	notificationModule.RegisterHandlers(eventBus)

	dispatcher := scheduler.NewActionDispatcher(cfg, actionScheduler, log)
	go dispatcher.Run(ctx)

	engine := followup.NewEngine(followup.NewSettingsRepository(pool), conversationRepo, actionScheduler, log)
	scanner := scheduler.NewFollowUpScanner(cfg, engine, log)
	go scanner.Run(ctx)

	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; running on claim loop only")
		<-ctx.Done()
		return
	}

	worker, err := scheduler.NewWorker(cfg, actionScheduler, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func initEmailSender(cfg config.EmailConfig, log *logger.Logger) email.Sender {
	if !cfg.IsEmailEnabled() {
		log.Warn("SMTP not configured; operator alert emails disabled")
		return nil
	}
	return email.NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
