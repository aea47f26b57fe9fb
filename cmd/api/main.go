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
	"legalintake_backend/internal/agents"
	"legalintake_backend/internal/agents/responder"
	"legalintake_backend/internal/conversations"
	conversationrepo "legalintake_backend/internal/conversations/repository"
	"legalintake_backend/internal/dispatch"
	"legalintake_backend/internal/email"
	"legalintake_backend/internal/events"
	"legalintake_backend/internal/followup"
	apphttp "legalintake_backend/internal/http"
	"legalintake_backend/internal/http/router"
	"legalintake_backend/internal/notification"
	"legalintake_backend/internal/scheduler"
	"legalintake_backend/internal/telemetry"
	"legalintake_backend/internal/webhook"
	"legalintake_backend/internal/whatsapp"
	"legalintake_backend/migrations"
	"legalintake_backend/platform/config"
	"legalintake_backend/platform/db"
	"legalintake_backend/platform/logger"
	"legalintake_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Call telemetry sits under every external integration
	executor := telemetry.NewExecutor(telemetry.NewRepository(pool), log)

	timer, closeTimer := initActionTimer(cfg, log)
	if closeTimer != nil {
		defer closeTimer()
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	conversationRepo := conversationrepo.New(pool)
	gateway := dispatch.NewGateway(whatsapp.NewClient(cfg, log), conversationRepo, executor, log)
	actionScheduler := actions.NewScheduler(actions.NewRepository(pool), conversationRepo, gateway, timer, eventBus, log)

	agentsModule := agents.NewModule(pool, val)
	agentResponder := responder.New(cfg, executor, log)
	conversationsModule := conversations.NewModule(pool, val, agentsModule.Service, actionScheduler, gateway, agentResponder, eventBus, log)
	followupModule := followup.NewModule(pool, val)
	webhookModule := webhook.NewModule(pool, val)

	// Notification module subscribes to domain events (not HTTP-facing)
	notificationModule := notification.NewModule(initEmailSender(cfg, log), cfg.GetAlertRecipient(), conversationsModule.Repository, log)
	notificationModule.RegisterHandlers(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:      cfg,
		Logger:      log,
		Health:      pool,
		EventBus:    eventBus,
		WebhookAuth: webhookModule.AuthMiddleware(),
		Modules: []apphttp.Module{
			agentsModule,
			conversationsModule,
			followupModule,
			webhookModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initActionTimer wires the asynq fire-timer client when Redis is configured.
// Without it, action delivery falls back to the scheduler binary's claim loop.
func initActionTimer(cfg config.SchedulerConfig, log *logger.Logger) (actions.Timer, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; action fire timers disabled, relying on claim loop")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize action timer client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
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
