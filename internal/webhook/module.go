package webhook

import (
	apphttp "legalintake_backend/internal/http"
	"legalintake_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the webhook auth module: key management on the
// operator surface plus the API-key middleware for the inbound surface.
type Module struct {
	Repo    *Repository
	handler *Handler
}

// NewModule creates a new webhook module with all dependencies wired
func NewModule(pool *pgxpool.Pool, val *validator.Validator) *Module {
	repo := NewRepository(pool)
	return &Module{
		Repo:    repo,
		handler: NewHandler(repo, val),
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "webhook"
}

// AuthMiddleware returns the API-key middleware for webhook routes.
func (m *Module) AuthMiddleware() gin.HandlerFunc {
	return APIKeyAuthMiddleware(m.Repo)
}

// RegisterRoutes registers key management under /api/v1/webhook-keys
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	keys := ctx.Protected.Group("/webhook-keys")
	m.handler.RegisterKeyRoutes(keys)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
