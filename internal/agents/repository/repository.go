package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"legalintake_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const agentNotFoundMsg = "agent not found"

// Agent represents the AI agent database model
type Agent struct {
	ID                   uuid.UUID `db:"id"`
	OwnerID              uuid.UUID `db:"owner_id"`
	Name                 string    `db:"name"`
	ModelName            string    `db:"model_name"`
	Instruction          string    `db:"instruction"`
	GreetingMessage      *string   `db:"greeting_message"`
	GreetingDelayMinutes int       `db:"greeting_delay_minutes"`
	IsActive             bool      `db:"is_active"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

// Binding maps one funnel stage to an agent for an owner
type Binding struct {
	OwnerID   uuid.UUID `db:"owner_id"`
	Stage     string    `db:"stage"`
	AgentID   uuid.UUID `db:"agent_id"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Repository provides database operations for agents and stage bindings
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new agents repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const agentColumns = `id, owner_id, name, model_name, instruction,
	greeting_message, greeting_delay_minutes, is_active, created_at, updated_at`

// Create inserts a new agent
func (r *Repository) Create(ctx context.Context, agent *Agent) (*Agent, error) {
	query := fmt.Sprintf(`
		INSERT INTO agents (owner_id, name, model_name, instruction, greeting_message, greeting_delay_minutes, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING %s`, agentColumns)

	created, err := scanAgent(r.pool.QueryRow(ctx, query,
		agent.OwnerID, agent.Name, agent.ModelName, agent.Instruction,
		agent.GreetingMessage, agent.GreetingDelayMinutes, agent.IsActive,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	return created, nil
}

// GetByID retrieves an agent scoped to its owner
func (r *Repository) GetByID(ctx context.Context, id, ownerID uuid.UUID) (*Agent, error) {
	query := fmt.Sprintf(`SELECT %s FROM agents WHERE id = $1 AND owner_id = $2`, agentColumns)

	agent, err := scanAgent(r.pool.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(agentNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return agent, nil
}

// ListByOwner returns all agents for an owner
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Agent, error) {
	query := fmt.Sprintf(`SELECT %s FROM agents WHERE owner_id = $1 ORDER BY created_at ASC`, agentColumns)

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var result []Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		result = append(result, *agent)
	}
	return result, rows.Err()
}

// Update persists the editable agent fields
func (r *Repository) Update(ctx context.Context, agent *Agent) (*Agent, error) {
	query := fmt.Sprintf(`
		UPDATE agents
		SET name = $3, model_name = $4, instruction = $5,
		    greeting_message = $6, greeting_delay_minutes = $7, is_active = $8,
		    updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING %s`, agentColumns)

	updated, err := scanAgent(r.pool.QueryRow(ctx, query,
		agent.ID, agent.OwnerID, agent.Name, agent.ModelName, agent.Instruction,
		agent.GreetingMessage, agent.GreetingDelayMinutes, agent.IsActive,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(agentNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to update agent: %w", err)
	}
	return updated, nil
}

// Delete removes an agent; stage bindings cascade away with it
func (r *Repository) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(agentNotFoundMsg)
	}
	return nil
}

// ResolveByStage returns the active agent bound to the stage, or nil when
// no binding exists or the bound agent is inactive.
func (r *Repository) ResolveByStage(ctx context.Context, ownerID uuid.UUID, stage string) (*Agent, error) {
	query := `
		SELECT a.id, a.owner_id, a.name, a.model_name, a.instruction,
		       a.greeting_message, a.greeting_delay_minutes, a.is_active, a.created_at, a.updated_at
		FROM agents a
		JOIN stage_bindings b ON b.agent_id = a.id
		WHERE b.owner_id = $1 AND b.stage = $2 AND a.is_active = TRUE`

	agent, err := scanAgent(r.pool.QueryRow(ctx, query, ownerID, stage))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve agent for stage: %w", err)
	}
	return agent, nil
}

// ListBindings returns all stage bindings for an owner
func (r *Repository) ListBindings(ctx context.Context, ownerID uuid.UUID) ([]Binding, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT owner_id, stage, agent_id, updated_at
		FROM stage_bindings WHERE owner_id = $1 ORDER BY stage ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage bindings: %w", err)
	}
	defer rows.Close()

	var result []Binding
	for rows.Next() {
		var b Binding
		if err := rows.Scan(&b.OwnerID, &b.Stage, &b.AgentID, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stage binding: %w", err)
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

// UpsertBinding binds a stage to an agent, replacing any previous binding
func (r *Repository) UpsertBinding(ctx context.Context, ownerID uuid.UUID, stage string, agentID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO stage_bindings (owner_id, stage, agent_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, stage) DO UPDATE SET agent_id = EXCLUDED.agent_id, updated_at = now()`,
		ownerID, stage, agentID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert stage binding: %w", err)
	}
	return nil
}

// DeleteBinding unbinds a stage. Missing bindings are fine.
func (r *Repository) DeleteBinding(ctx context.Context, ownerID uuid.UUID, stage string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM stage_bindings WHERE owner_id = $1 AND stage = $2`, ownerID, stage)
	if err != nil {
		return fmt.Errorf("failed to delete stage binding: %w", err)
	}
	return nil
}

func scanAgent(row pgx.Row) (*Agent, error) {
	var a Agent
	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.Name,
		&a.ModelName,
		&a.Instruction,
		&a.GreetingMessage,
		&a.GreetingDelayMinutes,
		&a.IsActive,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
