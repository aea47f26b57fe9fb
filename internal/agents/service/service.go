package service

import (
	"context"

	"legalintake_backend/internal/agents/repository"
	"legalintake_backend/internal/agents/transport"
	"legalintake_backend/platform/apperr"

	"github.com/google/uuid"
)

const defaultModelName = "kimi-k2-0711-preview"

// Store is the agent persistence the service needs.
// *repository.Repository satisfies it.
type Store interface {
	Create(ctx context.Context, agent *repository.Agent) (*repository.Agent, error)
	GetByID(ctx context.Context, id, ownerID uuid.UUID) (*repository.Agent, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]repository.Agent, error)
	Update(ctx context.Context, agent *repository.Agent) (*repository.Agent, error)
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
	ResolveByStage(ctx context.Context, ownerID uuid.UUID, stage string) (*repository.Agent, error)
	ListBindings(ctx context.Context, ownerID uuid.UUID) ([]repository.Binding, error)
	UpsertBinding(ctx context.Context, ownerID uuid.UUID, stage string, agentID uuid.UUID) error
	DeleteBinding(ctx context.Context, ownerID uuid.UUID, stage string) error
}

// Service owns agent definitions and the stage-to-agent binding table.
type Service struct {
	repo Store
}

// New creates a new agents service
func New(repo Store) *Service {
	return &Service{repo: repo}
}

// ResolveAgent returns the active agent bound to the stage, or nil when the
// stage is unbound. An unbound stage is a valid configuration, not an error.
func (s *Service) ResolveAgent(ctx context.Context, ownerID uuid.UUID, stage string) (*repository.Agent, error) {
	return s.repo.ResolveByStage(ctx, ownerID, stage)
}

// Create registers a new agent
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, req transport.CreateAgentRequest) (*repository.Agent, error) {
	modelName := req.ModelName
	if modelName == "" {
		modelName = defaultModelName
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	return s.repo.Create(ctx, &repository.Agent{
		OwnerID:              ownerID,
		Name:                 req.Name,
		ModelName:            modelName,
		Instruction:          req.Instruction,
		GreetingMessage:      req.GreetingMessage,
		GreetingDelayMinutes: req.GreetingDelayMinutes,
		IsActive:             isActive,
	})
}

// GetByID returns one agent
func (s *Service) GetByID(ctx context.Context, id, ownerID uuid.UUID) (*repository.Agent, error) {
	return s.repo.GetByID(ctx, id, ownerID)
}

// List returns all agents for the owner
func (s *Service) List(ctx context.Context, ownerID uuid.UUID) ([]repository.Agent, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// Update applies the provided fields to an agent
func (s *Service) Update(ctx context.Context, id, ownerID uuid.UUID, req transport.UpdateAgentRequest) (*repository.Agent, error) {
	agent, err := s.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		agent.Name = *req.Name
	}
	if req.ModelName != nil {
		agent.ModelName = *req.ModelName
	}
	if req.Instruction != nil {
		agent.Instruction = *req.Instruction
	}
	if req.GreetingMessage != nil {
		agent.GreetingMessage = req.GreetingMessage
	}
	if req.GreetingDelayMinutes != nil {
		agent.GreetingDelayMinutes = *req.GreetingDelayMinutes
	}
	if req.IsActive != nil {
		agent.IsActive = *req.IsActive
	}

	return s.repo.Update(ctx, agent)
}

// Delete removes an agent and, via the schema, its stage bindings
func (s *Service) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	return s.repo.Delete(ctx, id, ownerID)
}

// ListBindings returns the owner's stage bindings
func (s *Service) ListBindings(ctx context.Context, ownerID uuid.UUID) ([]repository.Binding, error) {
	return s.repo.ListBindings(ctx, ownerID)
}

// SetBinding binds a stage to an agent; a nil agentID removes the binding.
func (s *Service) SetBinding(ctx context.Context, ownerID uuid.UUID, stage string, agentID *uuid.UUID) error {
	if stage == "" {
		return apperr.Validation("stage is required")
	}
	if agentID == nil {
		return s.repo.DeleteBinding(ctx, ownerID, stage)
	}

	// Binding must point at an agent the owner actually has.
	if _, err := s.repo.GetByID(ctx, *agentID, ownerID); err != nil {
		return err
	}
	return s.repo.UpsertBinding(ctx, ownerID, stage, *agentID)
}
