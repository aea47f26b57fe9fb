package service

import (
	"context"
	"errors"
	"testing"

	"legalintake_backend/internal/agents/repository"
	"legalintake_backend/internal/agents/transport"
	"legalintake_backend/platform/apperr"

	"github.com/google/uuid"
)

type fakeStore struct {
	agents   map[uuid.UUID]*repository.Agent
	bindings map[string]uuid.UUID

	upserts int
	deletes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		agents:   make(map[uuid.UUID]*repository.Agent),
		bindings: make(map[string]uuid.UUID),
	}
}

func (f *fakeStore) add(agent repository.Agent) *repository.Agent {
	if agent.ID == uuid.Nil {
		agent.ID = uuid.New()
	}
	f.agents[agent.ID] = &agent
	return &agent
}

func (f *fakeStore) Create(ctx context.Context, agent *repository.Agent) (*repository.Agent, error) {
	created := *agent
	created.ID = uuid.New()
	f.agents[created.ID] = &created
	copied := created
	return &copied, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id, ownerID uuid.UUID) (*repository.Agent, error) {
	agent, ok := f.agents[id]
	if !ok || agent.OwnerID != ownerID {
		return nil, apperr.NotFound("agent not found")
	}
	copied := *agent
	return &copied, nil
}

func (f *fakeStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]repository.Agent, error) {
	var result []repository.Agent
	for _, agent := range f.agents {
		if agent.OwnerID == ownerID {
			result = append(result, *agent)
		}
	}
	return result, nil
}

func (f *fakeStore) Update(ctx context.Context, agent *repository.Agent) (*repository.Agent, error) {
	existing, ok := f.agents[agent.ID]
	if !ok || existing.OwnerID != agent.OwnerID {
		return nil, apperr.NotFound("agent not found")
	}
	copied := *agent
	f.agents[agent.ID] = &copied
	returned := copied
	return &returned, nil
}

func (f *fakeStore) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	agent, ok := f.agents[id]
	if !ok || agent.OwnerID != ownerID {
		return apperr.NotFound("agent not found")
	}
	delete(f.agents, id)
	return nil
}

func (f *fakeStore) ResolveByStage(ctx context.Context, ownerID uuid.UUID, stage string) (*repository.Agent, error) {
	agentID, ok := f.bindings[stage]
	if !ok {
		return nil, nil
	}
	agent, ok := f.agents[agentID]
	if !ok || agent.OwnerID != ownerID || !agent.IsActive {
		return nil, nil
	}
	copied := *agent
	return &copied, nil
}

func (f *fakeStore) ListBindings(ctx context.Context, ownerID uuid.UUID) ([]repository.Binding, error) {
	var result []repository.Binding
	for stage, agentID := range f.bindings {
		result = append(result, repository.Binding{OwnerID: ownerID, Stage: stage, AgentID: agentID})
	}
	return result, nil
}

func (f *fakeStore) UpsertBinding(ctx context.Context, ownerID uuid.UUID, stage string, agentID uuid.UUID) error {
	f.upserts++
	f.bindings[stage] = agentID
	return nil
}

func (f *fakeStore) DeleteBinding(ctx context.Context, ownerID uuid.UUID, stage string) error {
	f.deletes++
	delete(f.bindings, stage)
	return nil
}

func TestCreateAppliesDefaults(t *testing.T) {
	store := newFakeStore()
	svc := New(store)
	ownerID := uuid.New()

	agent, err := svc.Create(context.Background(), ownerID, transport.CreateAgentRequest{Name: "Intake"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if agent.ModelName != defaultModelName {
		t.Errorf("ModelName = %q, want default %q", agent.ModelName, defaultModelName)
	}
	if !agent.IsActive {
		t.Error("expected new agent to be active by default")
	}
}

func TestCreateKeepsExplicitFields(t *testing.T) {
	store := newFakeStore()
	svc := New(store)
	inactive := false

	agent, err := svc.Create(context.Background(), uuid.New(), transport.CreateAgentRequest{
		Name:      "Intake",
		ModelName: "kimi-k2-turbo",
		IsActive:  &inactive,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if agent.ModelName != "kimi-k2-turbo" {
		t.Errorf("ModelName = %q, want explicit value", agent.ModelName)
	}
	if agent.IsActive {
		t.Error("expected explicit isActive=false to stick")
	}
}

func TestResolveAgentUnboundStage(t *testing.T) {
	store := newFakeStore()
	svc := New(store)

	agent, err := svc.ResolveAgent(context.Background(), uuid.New(), "Qualified")
	if err != nil {
		t.Fatalf("ResolveAgent: %v", err)
	}
	if agent != nil {
		t.Errorf("expected nil agent for unbound stage, got %v", agent.ID)
	}
}

func TestResolveAgentBoundStage(t *testing.T) {
	store := newFakeStore()
	ownerID := uuid.New()
	agent := store.add(repository.Agent{OwnerID: ownerID, Name: "Intake", IsActive: true})
	store.bindings["New"] = agent.ID
	svc := New(store)

	resolved, err := svc.ResolveAgent(context.Background(), ownerID, "New")
	if err != nil {
		t.Fatalf("ResolveAgent: %v", err)
	}
	if resolved == nil || resolved.ID != agent.ID {
		t.Fatalf("expected agent %v, got %v", agent.ID, resolved)
	}
}

func TestSetBindingRequiresStage(t *testing.T) {
	svc := New(newFakeStore())
	agentID := uuid.New()

	err := svc.SetBinding(context.Background(), uuid.New(), "", &agentID)
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindValidation {
		t.Fatalf("expected validation error for empty stage, got %v", err)
	}
}

func TestSetBindingChecksOwnership(t *testing.T) {
	store := newFakeStore()
	agent := store.add(repository.Agent{OwnerID: uuid.New(), Name: "Intake", IsActive: true})
	svc := New(store)

	err := svc.SetBinding(context.Background(), uuid.New(), "New", &agent.ID)
	if err == nil {
		t.Fatal("expected error binding another owner's agent")
	}
	if store.upserts != 0 {
		t.Errorf("upserts = %d, want 0", store.upserts)
	}
}

func TestSetBindingUpserts(t *testing.T) {
	store := newFakeStore()
	ownerID := uuid.New()
	agent := store.add(repository.Agent{OwnerID: ownerID, Name: "Intake", IsActive: true})
	svc := New(store)

	if err := svc.SetBinding(context.Background(), ownerID, "New", &agent.ID); err != nil {
		t.Fatalf("SetBinding: %v", err)
	}
	if store.bindings["New"] != agent.ID {
		t.Errorf("binding for New = %v, want %v", store.bindings["New"], agent.ID)
	}
}

func TestSetBindingNilAgentUnbinds(t *testing.T) {
	store := newFakeStore()
	ownerID := uuid.New()
	agent := store.add(repository.Agent{OwnerID: ownerID, Name: "Intake", IsActive: true})
	store.bindings["New"] = agent.ID
	svc := New(store)

	if err := svc.SetBinding(context.Background(), ownerID, "New", nil); err != nil {
		t.Fatalf("SetBinding: %v", err)
	}
	if _, ok := store.bindings["New"]; ok {
		t.Error("expected binding to be removed")
	}
	if store.deletes != 1 {
		t.Errorf("deletes = %d, want 1", store.deletes)
	}
}

func TestUpdateMergesPartialFields(t *testing.T) {
	store := newFakeStore()
	ownerID := uuid.New()
	agent := store.add(repository.Agent{
		OwnerID: ownerID, Name: "Intake", ModelName: defaultModelName,
		Instruction: "Wees vriendelijk.", IsActive: true,
	})
	svc := New(store)

	name := "Intake NL"
	updated, err := svc.Update(context.Background(), agent.ID, ownerID, transport.UpdateAgentRequest{Name: &name})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "Intake NL" {
		t.Errorf("Name = %q, want updated value", updated.Name)
	}
	if updated.Instruction != "Wees vriendelijk." {
		t.Errorf("Instruction = %q, want untouched value", updated.Instruction)
	}
}
