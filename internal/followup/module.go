package followup

import (
	"github.com/jackc/pgx/v5/pgxpool"

	apphttp "legalintake_backend/internal/http"
	"legalintake_backend/platform/validator"
)

// Module owns the follow-up settings surface. The scan loop itself runs in
// the scheduler binary and is wired there against the same repository.
type Module struct {
	Repo    *SettingsRepository
	handler *Handler
}

func NewModule(pool *pgxpool.Pool, val *validator.Validator) *Module {
	repo := NewSettingsRepository(pool)
	return &Module{
		Repo:    repo,
		handler: NewHandler(repo, val),
	}
}

func (m *Module) Name() string { return "followup" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/followup-settings"))
}

var _ apphttp.Module = (*Module)(nil)
