package transport

import (
	"time"

	"github.com/google/uuid"
)

// CreateAgentRequest is the request body for creating an agent
type CreateAgentRequest struct {
	Name                 string  `json:"name" validate:"required,min=1,max=120"`
	ModelName            string  `json:"modelName,omitempty" validate:"max=120"`
	Instruction          string  `json:"instruction,omitempty" validate:"max=8000"`
	GreetingMessage      *string `json:"greetingMessage,omitempty" validate:"omitempty,max=2000"`
	GreetingDelayMinutes int     `json:"greetingDelayMinutes" validate:"min=0,max=1440"`
	IsActive             *bool   `json:"isActive,omitempty"`
}

// UpdateAgentRequest is the request body for updating an agent
type UpdateAgentRequest struct {
	Name                 *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	ModelName            *string `json:"modelName,omitempty" validate:"omitempty,max=120"`
	Instruction          *string `json:"instruction,omitempty" validate:"omitempty,max=8000"`
	GreetingMessage      *string `json:"greetingMessage,omitempty" validate:"omitempty,max=2000"`
	GreetingDelayMinutes *int    `json:"greetingDelayMinutes,omitempty" validate:"omitempty,min=0,max=1440"`
	IsActive             *bool   `json:"isActive,omitempty"`
}

// SetBindingRequest binds a stage to an agent; a null agentId unbinds it
type SetBindingRequest struct {
	AgentID *uuid.UUID `json:"agentId"`
}

// AgentResponse is the response body for an agent
type AgentResponse struct {
	ID                   uuid.UUID `json:"id"`
	Name                 string    `json:"name"`
	ModelName            string    `json:"modelName"`
	Instruction          string    `json:"instruction"`
	GreetingMessage      *string   `json:"greetingMessage,omitempty"`
	GreetingDelayMinutes int       `json:"greetingDelayMinutes"`
	IsActive             bool      `json:"isActive"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// BindingResponse is the response body for a stage binding
type BindingResponse struct {
	Stage     string    `json:"stage"`
	AgentID   uuid.UUID `json:"agentId"`
	UpdatedAt time.Time `json:"updatedAt"`
}
