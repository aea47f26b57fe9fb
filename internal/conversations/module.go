// Package conversations provides the conversation domain module: state,
// transcript, and the orchestration entry points for inbound events.
package conversations

import (
	"legalintake_backend/internal/conversations/handler"
	"legalintake_backend/internal/conversations/repository"
	"legalintake_backend/internal/conversations/service"
	"legalintake_backend/internal/events"
	apphttp "legalintake_backend/internal/http"
	"legalintake_backend/platform/logger"
	"legalintake_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the conversations domain module
type Module struct {
	handler *handler.Handler

	Service    *service.Service
	Repository *repository.Repository
}

// NewModule creates a new conversations module with all dependencies wired.
// The scheduler, sender, and responder cross module boundaries and are
// injected by the composition root.
func NewModule(
	pool *pgxpool.Pool,
	val *validator.Validator,
	agents service.AgentResolver,
	planner service.ActionPlanner,
	sender service.MessageSender,
	resp service.AgentResponder,
	bus events.Bus,
	log *logger.Logger,
) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, agents, planner, sender, resp, bus, log)
	h := handler.New(svc, val)

	return &Module{
		handler:    h,
		Service:    svc,
		Repository: repo,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "conversations"
}

// RegisterRoutes registers the operator and webhook surfaces
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	conversations := ctx.Protected.Group("/conversations")
	m.handler.RegisterRoutes(conversations)

	m.handler.RegisterWebhookRoutes(ctx.Webhook)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
