package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"legalintake_backend/internal/actions"
	"legalintake_backend/internal/email"
	"legalintake_backend/internal/events"
	"legalintake_backend/platform/logger"
)

type testSender struct {
	calls      int
	lastTo     string
	lastAlert  email.ActionFailureAlert
	returnsErr error
}

func (s *testSender) SendActionFailureAlert(_ context.Context, toEmail string, data email.ActionFailureAlert) error {
	s.calls++
	s.lastTo = toEmail
	s.lastAlert = data
	return s.returnsErr
}

type testLookup struct {
	state actions.ConversationState
	err   error
}

func (l testLookup) GetState(context.Context, uuid.UUID) (actions.ConversationState, error) {
	return l.state, l.err
}

func failedEvent(conversationID uuid.UUID) events.ActionFailed {
	return events.ActionFailed{
		BaseEvent:      events.NewBaseEvent(),
		ActionID:       uuid.New(),
		ConversationID: conversationID,
		OwnerID:        uuid.New(),
		Kind:           "followup_1",
		LastError:      "whatsapp send: status 500",
	}
}

func TestHandleActionFailedSendsAlert(t *testing.T) {
	sender := &testSender{}
	convID := uuid.New()
	lookup := testLookup{state: actions.ConversationState{ID: convID, ContactPhone: "+31612345678"}}

	m := NewModule(sender, "ops@example.com", lookup, logger.New("development"))
	if err := m.Handle(context.Background(), failedEvent(convID)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if sender.calls != 1 {
		t.Fatalf("sender calls = %d, want 1", sender.calls)
	}
	if sender.lastTo != "ops@example.com" {
		t.Errorf("recipient = %q, want ops@example.com", sender.lastTo)
	}
	if sender.lastAlert.ContactPhone != "+31612345678" {
		t.Errorf("contact phone = %q", sender.lastAlert.ContactPhone)
	}
	if sender.lastAlert.ActionKind != "followup_1" {
		t.Errorf("action kind = %q", sender.lastAlert.ActionKind)
	}
	if sender.lastAlert.LastError != "whatsapp send: status 500" {
		t.Errorf("last error = %q", sender.lastAlert.LastError)
	}
}

func TestHandleActionFailedWithoutConversation(t *testing.T) {
	sender := &testSender{}
	lookup := testLookup{err: errors.New("not found")}

	m := NewModule(sender, "ops@example.com", lookup, logger.New("development"))
	if err := m.Handle(context.Background(), failedEvent(uuid.New())); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if sender.calls != 1 {
		t.Fatalf("alert should still go out without conversation details, calls = %d", sender.calls)
	}
	if sender.lastAlert.ContactPhone != "" {
		t.Errorf("contact phone = %q, want empty", sender.lastAlert.ContactPhone)
	}
}

func TestHandleActionFailedSendErrorIsSwallowed(t *testing.T) {
	sender := &testSender{returnsErr: errors.New("smtp down")}
	lookup := testLookup{}

	m := NewModule(sender, "ops@example.com", lookup, logger.New("development"))
	if err := m.Handle(context.Background(), failedEvent(uuid.New())); err != nil {
		t.Fatalf("mail failures must not propagate, got %v", err)
	}
}

func TestRegisterHandlersSkippedWithoutSender(t *testing.T) {
	log := logger.New("development")
	bus := events.NewInMemoryBus(log)

	m := NewModule(nil, "", testLookup{}, log)
	m.RegisterHandlers(bus)

	// No subscription means publishing cannot reach the nil sender.
	if err := bus.PublishSync(context.Background(), failedEvent(uuid.New())); err != nil {
		t.Fatalf("PublishSync: %v", err)
	}
}
