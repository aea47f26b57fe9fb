// Package agents provides the AI agent domain module: agent definitions
// and the stage-to-agent binding table.
package agents

import (
	"legalintake_backend/internal/agents/handler"
	"legalintake_backend/internal/agents/repository"
	"legalintake_backend/internal/agents/service"
	apphttp "legalintake_backend/internal/http"
	"legalintake_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the agents domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new agents module with all dependencies wired
func NewModule(pool *pgxpool.Pool, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.New(repo)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		Service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "agents"
}

// RegisterRoutes registers the module's routes under /api/v1/agents
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	agents := ctx.Protected.Group("/agents")
	m.handler.RegisterRoutes(agents)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
