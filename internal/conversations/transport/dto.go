package transport

import (
	"time"

	"github.com/google/uuid"
)

// InboundMessageRequest is the webhook body for an inbound visitor message.
// Either conversationId or phone identifies the conversation; phone creates
// it on first contact.
type InboundMessageRequest struct {
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
	Phone          string     `json:"phone,omitempty" validate:"omitempty,min=8,max=20"`
	Name           string     `json:"name,omitempty" validate:"max=200"`
	Text           string     `json:"text" validate:"required,min=1,max=10000"`
}

// StageChangeRequest is the webhook body for a funnel stage change.
type StageChangeRequest struct {
	Stage string `json:"stage" validate:"required,min=1,max=120"`
}

// PauseToggleRequest is the webhook body for pausing or unpausing automation.
type PauseToggleRequest struct {
	Paused *bool `json:"paused" validate:"required"`
}

// ListConversationsRequest is the query parameters for listing conversations.
type ListConversationsRequest struct {
	Page     int `form:"page" validate:"min=0"`
	PageSize int `form:"pageSize" validate:"min=0,max=200"`
}

// ConversationResponse is the response body for a conversation.
type ConversationResponse struct {
	ID              uuid.UUID  `json:"id"`
	ContactPhone    string     `json:"contactPhone"`
	ContactName     string     `json:"contactName"`
	CurrentStage    string     `json:"currentStage"`
	AgentID         *uuid.UUID `json:"agentId,omitempty"`
	AgentPaused     bool       `json:"agentPaused"`
	FollowUpCount   int        `json:"followupCount"`
	LastMessageText string     `json:"lastMessageText"`
	LastMessageRole string     `json:"lastMessageRole"`
	LastMessageAt   *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// MessageResponse is one transcript entry in API responses.
type MessageResponse struct {
	ID         uuid.UUID `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	ExternalID *string   `json:"externalId,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}
