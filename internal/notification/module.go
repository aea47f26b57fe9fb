// Package notification turns domain events into operator alerts.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"legalintake_backend/internal/actions"
	"legalintake_backend/internal/email"
	"legalintake_backend/internal/events"
	"legalintake_backend/platform/logger"
)

// ConversationLookup resolves the conversation behind a failed action so the
// alert can name the contact.
type ConversationLookup interface {
	GetState(ctx context.Context, conversationID uuid.UUID) (actions.ConversationState, error)
}

// Module subscribes to action failure events and emails the operator.
// Alerts are best effort: a broken mail server never blocks the scheduler.
type Module struct {
	sender        email.Sender
	recipient     string
	conversations ConversationLookup
	log           *logger.Logger
}

func NewModule(sender email.Sender, recipient string, conversations ConversationLookup, log *logger.Logger) *Module {
	return &Module{
		sender:        sender,
		recipient:     recipient,
		conversations: conversations,
		log:           log,
	}
}

// RegisterHandlers subscribes to the relevant domain events on the event bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	if m.sender == nil || m.recipient == "" {
		m.log.Info("email alerts disabled, skipping event subscriptions")
		return
	}
	bus.Subscribe(events.ActionFailed{}.EventName(), m)
	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ActionFailed:
		return m.handleActionFailed(ctx, e)
	default:
		return nil
	}
}

func (m *Module) handleActionFailed(ctx context.Context, e events.ActionFailed) error {
	alert := email.ActionFailureAlert{
		ConversationID: e.ConversationID.String(),
		ActionKind:     e.Kind,
		LastError:      e.LastError,
		FailedAt:       time.Now().UTC().Format(time.RFC3339),
	}

	conv, err := m.conversations.GetState(ctx, e.ConversationID)
	if err != nil {
		m.log.Warn("could not resolve conversation for failure alert",
			"conversation_id", e.ConversationID, "error", err)
	} else {
		alert.ContactPhone = conv.ContactPhone
	}

	if err := m.sender.SendActionFailureAlert(ctx, m.recipient, alert); err != nil {
		m.log.Error("failed to send action failure alert",
			"action_id", e.ActionID, "error", err)
	}
	return nil
}
