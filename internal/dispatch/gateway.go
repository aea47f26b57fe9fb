// Package dispatch is the single exit point for outbound WhatsApp
// messages. Everything the system sends funnels through the Gateway so
// transcript recording, telemetry, and idempotency live in one place.
package dispatch

import (
	"context"
	"fmt"

	"legalintake_backend/internal/actions"
	"legalintake_backend/internal/telemetry"
	"legalintake_backend/platform/logger"

	"github.com/google/uuid"
)

// Sender is the provider transport. *whatsapp.Client satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, phoneNumber string, message string) (string, error)
}

// OutboundRecord is what the gateway persists after a delivered send.
type OutboundRecord struct {
	ConversationID    uuid.UUID
	OwnerID           uuid.UUID
	ActionID          *uuid.UUID
	Text              string
	ProviderMessageID string
	CountFollowUp     bool
}

// Recorder appends the delivered message to the conversation transcript
// and bumps last-message and follow-up counters in one transaction.
type Recorder interface {
	RecordOutbound(ctx context.Context, rec OutboundRecord) error
	HasMessageForAction(ctx context.Context, actionID uuid.UUID) (bool, error)
}

// DeliveryError marks a provider-side send failure. Callers retry on it;
// nothing was recorded.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Gateway sends outbound messages and records delivered ones.
type Gateway struct {
	sender   Sender
	recorder Recorder
	executor *telemetry.Executor
	log      *logger.Logger
}

func NewGateway(sender Sender, recorder Recorder, executor *telemetry.Executor, log *logger.Logger) *Gateway {
	return &Gateway{
		sender:   sender,
		recorder: recorder,
		executor: executor,
		log:      log,
	}
}

// Send delivers text to the conversation's contact. The transcript row and
// last-message fields are written only after the provider accepted the
// message; on failure nothing is recorded and a DeliveryError propagates.
func (g *Gateway) Send(ctx context.Context, conv actions.ConversationState, text string) (string, error) {
	return g.send(ctx, conv, text, nil, false)
}

// Dispatch delivers a fired scheduled action. It satisfies the scheduler's
// Dispatcher contract: a returned error means the provider did not accept
// the message and the action can be retried.
func (g *Gateway) Dispatch(ctx context.Context, action actions.Action, conv actions.ConversationState) error {
	already, err := g.recorder.HasMessageForAction(ctx, action.ID)
	if err != nil {
		return err
	}
	if already {
		g.log.Warn("dispatch suppressed, transcript already holds this action",
			"action_id", action.ID, "conversation_id", conv.ID)
		return nil
	}

	_, err = g.send(ctx, conv, action.Payload, &action.ID, action.Kind.IsFollowUp())
	return err
}

func (g *Gateway) send(ctx context.Context, conv actions.ConversationState, text string, actionID *uuid.UUID, countFollowUp bool) (string, error) {
	call := telemetry.Call{
		OwnerID: conv.OwnerID,
		Source:  "whatsapp",
		AgentID: conv.AgentID,
	}
	if actionID != nil {
		call.Metadata = map[string]any{"action_id": actionID.String()}
	}

	result, err := g.executor.Execute(ctx, call, func(ctx context.Context) (telemetry.Result, error) {
		messageID, sendErr := g.sender.SendMessage(ctx, conv.ContactPhone, text)
		return telemetry.Result{Value: messageID}, sendErr
	})
	if err != nil {
		return "", &DeliveryError{Err: err}
	}

	messageID, _ := result.Value.(string)

	rec := OutboundRecord{
		ConversationID:    conv.ID,
		OwnerID:           conv.OwnerID,
		ActionID:          actionID,
		Text:              text,
		ProviderMessageID: messageID,
		CountFollowUp:     countFollowUp,
	}
	if err := g.recorder.RecordOutbound(ctx, rec); err != nil {
		// The provider accepted the message; losing the transcript row is
		// recoverable, re-sending is not.
		g.log.Error("outbound message delivered but not recorded",
			"conversation_id", conv.ID, "error", err)
	}

	return messageID, nil
}
