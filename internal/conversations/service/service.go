// Package service implements the orchestration entry points invoked on
// inbound conversation events: new message, stage change, pause toggle.
package service

import (
	"context"
	"time"

	"legalintake_backend/internal/actions"
	agentrepo "legalintake_backend/internal/agents/repository"
	"legalintake_backend/internal/agents/responder"
	"legalintake_backend/internal/conversations/repository"
	"legalintake_backend/internal/events"
	"legalintake_backend/platform/apperr"
	"legalintake_backend/platform/logger"
	"legalintake_backend/platform/phone"

	"github.com/google/uuid"
)

// Store is the conversation persistence the orchestrator needs.
// *repository.Repository satisfies it.
type Store interface {
	CreateOrGet(ctx context.Context, ownerID uuid.UUID, contactPhone, contactName string) (*repository.Conversation, bool, error)
	GetByID(ctx context.Context, id, ownerID uuid.UUID) (*repository.Conversation, error)
	AppendInbound(ctx context.Context, conversationID uuid.UUID, text string) error
	UpdateStage(ctx context.Context, id, ownerID uuid.UUID, stage string, agentID *uuid.UUID) error
	SetAgent(ctx context.Context, id uuid.UUID, agentID *uuid.UUID) error
	SetPaused(ctx context.Context, id, ownerID uuid.UUID, paused bool) error
	TranscriptTail(ctx context.Context, conversationID uuid.UUID, n int) ([]repository.Message, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]repository.Conversation, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]repository.Message, error)
}

// AgentResolver resolves the agent bound to a funnel stage.
type AgentResolver interface {
	ResolveAgent(ctx context.Context, ownerID uuid.UUID, stage string) (*agentrepo.Agent, error)
}

// ActionPlanner is the slice of the scheduler the orchestrator drives.
type ActionPlanner interface {
	Enqueue(ctx context.Context, conv actions.ConversationState, kind actions.Kind, fireAt time.Time, payload string) (actions.Action, error)
	CancelPendingForConversation(ctx context.Context, conversationID uuid.UUID, kinds ...actions.Kind) (int, error)
}

// MessageSender delivers an immediate outbound message.
type MessageSender interface {
	Send(ctx context.Context, conv actions.ConversationState, text string) (string, error)
}

// AgentResponder produces the agent's reply for a turn.
type AgentResponder interface {
	Enabled() bool
	Reply(ctx context.Context, ag *agentrepo.Agent, conversationID uuid.UUID, transcript []responder.TranscriptEntry) (string, error)
}

// Service coordinates conversation state with agent bindings and the
// action scheduler.
type Service struct {
	store     Store
	agents    AgentResolver
	planner   ActionPlanner
	sender    MessageSender
	responder AgentResponder
	bus       events.Bus
	log       *logger.Logger
	now       func() time.Time
}

// New creates the orchestration service. responder may be nil when no AI
// provider is configured.
func New(store Store, agents AgentResolver, planner ActionPlanner, sender MessageSender, resp AgentResponder, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		agents:    agents,
		planner:   planner,
		sender:    sender,
		responder: resp,
		bus:       bus,
		log:       log,
		now:       time.Now,
	}
}

// OnInboundMessage handles a visitor message: transcript append with the
// follow-up counter reset, cancellation of pending follow-ups, and, when
// the conversation is not paused, agent resolution plus the response turn.
func (s *Service) OnInboundMessage(ctx context.Context, ownerID uuid.UUID, conversationID *uuid.UUID, contactPhone, contactName, text string) (*repository.Conversation, error) {
	conv, created, err := s.locateConversation(ctx, ownerID, conversationID, contactPhone, contactName)
	if err != nil {
		return nil, err
	}

	if err := s.store.AppendInbound(ctx, conv.ID, text); err != nil {
		return nil, err
	}
	conv.FollowUpCount = 0

	if _, err := s.planner.CancelPendingForConversation(ctx, conv.ID, actions.FollowUpKinds()...); err != nil {
		s.log.Error("failed to cancel pending followups", "conversation_id", conv.ID, "error", err)
	}

	s.bus.Publish(ctx, events.ConversationMessageReceived{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conv.ID,
		OwnerID:        ownerID,
		Text:           text,
	})

	if conv.AgentPaused {
		return conv, nil
	}

	agent, err := s.agents.ResolveAgent(ctx, ownerID, conv.CurrentStage)
	if err != nil {
		s.log.Error("failed to resolve agent", "conversation_id", conv.ID, "error", err)
		return conv, nil
	}
	if agent == nil {
		return conv, nil
	}

	newToAgent := created || conv.AgentID == nil || *conv.AgentID != agent.ID
	if conv.AgentID == nil || *conv.AgentID != agent.ID {
		if err := s.store.SetAgent(ctx, conv.ID, &agent.ID); err != nil {
			s.log.Error("failed to assign agent", "conversation_id", conv.ID, "error", err)
			return conv, nil
		}
		conv.AgentID = &agent.ID
	}

	if newToAgent {
		s.scheduleGreeting(ctx, conv, agent)
	}

	s.runResponderTurn(ctx, conv, agent)
	return conv, nil
}

// OnStageChange moves the conversation to a new stage and re-resolves the
// agent binding. The re-resolution is unconditional: an unbound stage
// clears the agent.
func (s *Service) OnStageChange(ctx context.Context, ownerID, conversationID uuid.UUID, newStage string) error {
	conv, err := s.store.GetByID(ctx, conversationID, ownerID)
	if err != nil {
		return err
	}
	oldStage := conv.CurrentStage

	agent, err := s.agents.ResolveAgent(ctx, ownerID, newStage)
	if err != nil {
		return err
	}
	var agentID *uuid.UUID
	if agent != nil {
		agentID = &agent.ID
	}

	if err := s.store.UpdateStage(ctx, conversationID, ownerID, newStage, agentID); err != nil {
		return err
	}

	s.bus.Publish(ctx, events.ConversationStageChanged{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conversationID,
		OwnerID:        ownerID,
		OldStage:       oldStage,
		NewStage:       newStage,
		AgentID:        agentID,
	})
	return nil
}

// OnPauseToggle flips the automation pause flag. Scheduled actions are not
// touched; the staleness check at fire time decides their fate.
func (s *Service) OnPauseToggle(ctx context.Context, ownerID, conversationID uuid.UUID, paused bool) error {
	if err := s.store.SetPaused(ctx, conversationID, ownerID, paused); err != nil {
		return err
	}

	s.bus.Publish(ctx, events.ConversationPauseToggled{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conversationID,
		OwnerID:        ownerID,
		Paused:         paused,
	})
	return nil
}

// Get returns one conversation for the operator surface.
func (s *Service) Get(ctx context.Context, id, ownerID uuid.UUID) (*repository.Conversation, error) {
	return s.store.GetByID(ctx, id, ownerID)
}

// List returns the owner's conversations, newest activity first.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]repository.Conversation, error) {
	return s.store.ListByOwner(ctx, ownerID, limit, offset)
}

// Transcript returns the conversation's message history.
func (s *Service) Transcript(ctx context.Context, id, ownerID uuid.UUID, limit int) ([]repository.Message, error) {
	if _, err := s.store.GetByID(ctx, id, ownerID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, id, limit)
}

func (s *Service) locateConversation(ctx context.Context, ownerID uuid.UUID, conversationID *uuid.UUID, contactPhone, contactName string) (*repository.Conversation, bool, error) {
	if conversationID != nil {
		conv, err := s.store.GetByID(ctx, *conversationID, ownerID)
		return conv, false, err
	}
	if contactPhone == "" {
		return nil, false, apperr.Validation("conversationId or phone is required")
	}
	return s.store.CreateOrGet(ctx, ownerID, phone.NormalizeE164(contactPhone), contactName)
}

func (s *Service) scheduleGreeting(ctx context.Context, conv *repository.Conversation, agent *agentrepo.Agent) {
	if agent.GreetingMessage == nil || *agent.GreetingMessage == "" {
		return
	}

	fireAt := s.now().Add(time.Duration(agent.GreetingDelayMinutes) * time.Minute)
	if _, err := s.planner.Enqueue(ctx, conv.State(), actions.KindGreeting, fireAt, *agent.GreetingMessage); err != nil {
		s.log.Error("failed to schedule greeting",
			"conversation_id", conv.ID, "agent_id", agent.ID, "error", err)
	}
}

func (s *Service) runResponderTurn(ctx context.Context, conv *repository.Conversation, agent *agentrepo.Agent) {
	if s.responder == nil || !s.responder.Enabled() {
		return
	}

	tail, err := s.store.TranscriptTail(ctx, conv.ID, 20)
	if err != nil {
		s.log.Error("failed to load transcript tail", "conversation_id", conv.ID, "error", err)
		return
	}

	transcript := make([]responder.TranscriptEntry, 0, len(tail))
	for _, m := range tail {
		transcript = append(transcript, responder.TranscriptEntry{Role: m.Role, Content: m.Content})
	}

	reply, err := s.responder.Reply(ctx, agent, conv.ID, transcript)
	if err != nil {
		s.log.Error("responder turn failed", "conversation_id", conv.ID, "error", err)
		return
	}
	if reply == "" {
		return
	}

	if _, err := s.sender.Send(ctx, conv.State(), reply); err != nil {
		s.log.Error("failed to send agent reply", "conversation_id", conv.ID, "error", err)
	}
}
