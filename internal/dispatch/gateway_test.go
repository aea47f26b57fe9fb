package dispatch

import (
	"context"
	"errors"
	"testing"

	"legalintake_backend/internal/actions"
	"legalintake_backend/internal/telemetry"
	"legalintake_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeSender struct {
	calls     int
	messageID string
	err       error
	lastPhone string
	lastText  string
}

func (f *fakeSender) SendMessage(ctx context.Context, phoneNumber string, message string) (string, error) {
	f.calls++
	f.lastPhone = phoneNumber
	f.lastText = message
	return f.messageID, f.err
}

type fakeRecorder struct {
	records   []OutboundRecord
	recordErr error
	hasAction bool
	hasErr    error
}

func (f *fakeRecorder) RecordOutbound(ctx context.Context, rec OutboundRecord) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeRecorder) HasMessageForAction(ctx context.Context, actionID uuid.UUID) (bool, error) {
	return f.hasAction, f.hasErr
}

func testGateway(sender *fakeSender, recorder *fakeRecorder) *Gateway {
	log := logger.New("development")
	return NewGateway(sender, recorder, telemetry.NewExecutor(nil, log), log)
}

func testConversation() actions.ConversationState {
	return actions.ConversationState{
		ID:           uuid.New(),
		OwnerID:      uuid.New(),
		ContactPhone: "+5511999990000",
		Stage:        "new_lead",
	}
}

func TestGatewaySendRecordsAfterDelivery(t *testing.T) {
	sender := &fakeSender{messageID: "3EB0C767D82"}
	recorder := &fakeRecorder{}
	g := testGateway(sender, recorder)
	conv := testConversation()

	messageID, err := g.Send(context.Background(), conv, "ola")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if messageID != "3EB0C767D82" {
		t.Fatalf("messageID = %q, want %q", messageID, "3EB0C767D82")
	}
	if len(recorder.records) != 1 {
		t.Fatalf("records = %d, want 1", len(recorder.records))
	}
	rec := recorder.records[0]
	if rec.ConversationID != conv.ID || rec.Text != "ola" || rec.ProviderMessageID != "3EB0C767D82" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.ActionID != nil || rec.CountFollowUp {
		t.Fatalf("direct send must not carry action fields: %+v", rec)
	}
}

func TestGatewaySendFailureRecordsNothing(t *testing.T) {
	sender := &fakeSender{err: errors.New("whatsapp service returned 502")}
	recorder := &fakeRecorder{}
	g := testGateway(sender, recorder)

	_, err := g.Send(context.Background(), testConversation(), "ola")
	if err == nil {
		t.Fatal("expected error")
	}
	var deliveryErr *DeliveryError
	if !errors.As(err, &deliveryErr) {
		t.Fatalf("error = %T, want *DeliveryError", err)
	}
	if len(recorder.records) != 0 {
		t.Fatalf("records = %d, want 0", len(recorder.records))
	}
}

func TestGatewayDispatchMarksFollowUps(t *testing.T) {
	sender := &fakeSender{messageID: "id-1"}
	recorder := &fakeRecorder{}
	g := testGateway(sender, recorder)
	conv := testConversation()

	action := actions.Action{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		OwnerID:        conv.OwnerID,
		Kind:           actions.KindFollowUp2,
		Payload:        "ainda por ai?",
	}

	if err := g.Dispatch(context.Background(), action, conv); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(recorder.records) != 1 {
		t.Fatalf("records = %d, want 1", len(recorder.records))
	}
	rec := recorder.records[0]
	if rec.ActionID == nil || *rec.ActionID != action.ID {
		t.Fatalf("record action id = %v, want %v", rec.ActionID, action.ID)
	}
	if !rec.CountFollowUp {
		t.Fatal("follow-up dispatch must count toward the follow-up total")
	}
}

func TestGatewayDispatchSuppressesResend(t *testing.T) {
	sender := &fakeSender{messageID: "id-1"}
	recorder := &fakeRecorder{hasAction: true}
	g := testGateway(sender, recorder)
	conv := testConversation()

	action := actions.Action{ID: uuid.New(), ConversationID: conv.ID, Kind: actions.KindGreeting, Payload: "ola"}
	if err := g.Dispatch(context.Background(), action, conv); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if sender.calls != 0 {
		t.Fatalf("sender calls = %d, want 0", sender.calls)
	}
}

func TestGatewayRecordFailureDoesNotFailSend(t *testing.T) {
	sender := &fakeSender{messageID: "id-1"}
	recorder := &fakeRecorder{recordErr: errors.New("db down")}
	g := testGateway(sender, recorder)

	messageID, err := g.Send(context.Background(), testConversation(), "ola")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if messageID != "id-1" {
		t.Fatalf("messageID = %q, want %q", messageID, "id-1")
	}
}
