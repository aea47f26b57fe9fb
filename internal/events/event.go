// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"legalintake_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Conversation Domain Events
// =============================================================================

// ConversationMessageReceived is published when an inbound (human) message
// lands on a conversation.
type ConversationMessageReceived struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	OwnerID        uuid.UUID `json:"ownerId"`
	Text           string    `json:"text"`
}

func (e ConversationMessageReceived) EventName() string { return "conversation.message.received" }

// ConversationStageChanged is published after a conversation moves to a new
// funnel stage and its agent binding has been re-resolved.
type ConversationStageChanged struct {
	BaseEvent
	ConversationID uuid.UUID  `json:"conversationId"`
	OwnerID        uuid.UUID  `json:"ownerId"`
	OldStage       string     `json:"oldStage"`
	NewStage       string     `json:"newStage"`
	AgentID        *uuid.UUID `json:"agentId,omitempty"`
}

func (e ConversationStageChanged) EventName() string { return "conversation.stage.changed" }

// ConversationPauseToggled is published when an operator pauses or unpauses
// automated handling of a conversation.
type ConversationPauseToggled struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	OwnerID        uuid.UUID `json:"ownerId"`
	Paused         bool      `json:"paused"`
}

func (e ConversationPauseToggled) EventName() string { return "conversation.pause.toggled" }

// =============================================================================
// Scheduled Action Events
// =============================================================================

// ActionFailed is published when a scheduled action exhausts its retries and
// is marked failed. Subscribers alert the operator; retrying is over.
type ActionFailed struct {
	BaseEvent
	ActionID       uuid.UUID `json:"actionId"`
	ConversationID uuid.UUID `json:"conversationId"`
	OwnerID        uuid.UUID `json:"ownerId"`
	Kind           string    `json:"kind"`
	LastError      string    `json:"lastError"`
}

func (e ActionFailed) EventName() string { return "action.failed" }

// ActionSkippedStale is published when an action is skipped because the
// conversation's live state diverged from the scheduling-time snapshot.
type ActionSkippedStale struct {
	BaseEvent
	ActionID       uuid.UUID `json:"actionId"`
	ConversationID uuid.UUID `json:"conversationId"`
	OwnerID        uuid.UUID `json:"ownerId"`
	Kind           string    `json:"kind"`
	Reason         string    `json:"reason"`
}

func (e ActionSkippedStale) EventName() string { return "action.skipped_stale" }
