package actions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"legalintake_backend/internal/events"
	"legalintake_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	mu      sync.Mutex
	actions map[uuid.UUID]*Action

	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{actions: make(map[uuid.UUID]*Action)}
}

func (f *fakeStore) Insert(ctx context.Context, params InsertParams) (Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return Action{}, f.insertErr
	}
	action := Action{
		ID:             uuid.New(),
		ConversationID: params.ConversationID,
		OwnerID:        params.OwnerID,
		Kind:           params.Kind,
		Status:         StatusPending,
		Payload:        params.Payload,
		FireAt:         params.FireAt,
		Token:          params.Token,
		CreatedAt:      time.Now(),
	}
	f.actions[action.ID] = &action
	return action, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	action, ok := f.actions[id]
	if !ok {
		return Action{}, ErrNotFound
	}
	return *action, nil
}

func (f *fakeStore) TryTransition(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	action, ok := f.actions[id]
	if !ok || action.Status != from {
		return false, nil
	}
	action.Status = to
	return true, nil
}

func (f *fakeStore) MarkRetry(ctx context.Context, id uuid.UUID, fireAt time.Time, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	action, ok := f.actions[id]
	if !ok {
		return ErrNotFound
	}
	action.Status = StatusPending
	action.Attempts++
	action.FireAt = fireAt
	action.LastError = &lastError
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	action, ok := f.actions[id]
	if !ok {
		return ErrNotFound
	}
	action.Status = StatusFailed
	action.LastError = &lastError
	return nil
}

func (f *fakeStore) CancelPendingByConversation(ctx context.Context, conversationID uuid.UUID, kinds []Kind) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cancelled := 0
	for _, action := range f.actions {
		if action.ConversationID != conversationID || action.Status != StatusPending {
			continue
		}
		for _, kind := range kinds {
			if action.Kind == kind {
				action.Status = StatusCancelled
				cancelled++
				break
			}
		}
	}
	return cancelled, nil
}

func (f *fakeStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []Action
	for _, action := range f.actions {
		if action.Status == StatusPending && !action.FireAt.After(now) {
			due = append(due, *action)
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (f *fakeStore) HasPendingForConversation(ctx context.Context, conversationID uuid.UUID, kinds []Kind) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, action := range f.actions {
		if action.ConversationID != conversationID || action.Status != StatusPending {
			continue
		}
		for _, kind := range kinds {
			if action.Kind == kind {
				return true, nil
			}
		}
	}
	return false, nil
}

func (f *fakeStore) status(id uuid.UUID) Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.actions[id].Status
}

func (f *fakeStore) attempts(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.actions[id].Attempts
}

type fakeConversations struct {
	mu     sync.Mutex
	states map[uuid.UUID]ConversationState
	err    error
}

func (f *fakeConversations) GetState(ctx context.Context, id uuid.UUID) (ConversationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return ConversationState{}, f.err
	}
	return f.states[id], nil
}

func (f *fakeConversations) set(state ConversationState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[state.ID] = state
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, action Action, conv ConversationState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(eventName string, handler events.Handler) {}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for _, event := range b.published {
		names = append(names, event.EventName())
	}
	return names
}

func testScheduler(t *testing.T, store Store, convs ConversationReader, dispatcher Dispatcher) (*Scheduler, *recordingBus) {
	t.Helper()
	bus := &recordingBus{}
	s := NewScheduler(store, convs, dispatcher, nil, bus, logger.New("development"))
	s.now = func() time.Time { return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC) }
	return s, bus
}

func testConversation() ConversationState {
	agentID := uuid.New()
	return ConversationState{
		ID:           uuid.New(),
		OwnerID:      uuid.New(),
		ContactPhone: "+5511999990000",
		Stage:        "new_lead",
		AgentID:      &agentID,
		AgentPaused:  false,
	}
}

func TestSchedulerFireDispatchesOnce(t *testing.T) {
	store := newFakeStore()
	conv := testConversation()
	convs := &fakeConversations{states: map[uuid.UUID]ConversationState{conv.ID: conv}}
	dispatcher := &fakeDispatcher{}
	s, _ := testScheduler(t, store, convs, dispatcher)

	action, err := s.Enqueue(context.Background(), conv, KindGreeting, s.now().Add(-time.Minute), "hello")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Fire(context.Background(), action.ID)
		}()
	}
	wg.Wait()

	if got := dispatcher.count(); got != 1 {
		t.Fatalf("dispatch count = %d, want 1", got)
	}
	if got := store.status(action.ID); got != StatusFired {
		t.Fatalf("status = %q, want %q", got, StatusFired)
	}
}

func TestSchedulerFireSkipsWhenPaused(t *testing.T) {
	store := newFakeStore()
	conv := testConversation()
	convs := &fakeConversations{states: map[uuid.UUID]ConversationState{conv.ID: conv}}
	dispatcher := &fakeDispatcher{}
	s, bus := testScheduler(t, store, convs, dispatcher)

	action, err := s.Enqueue(context.Background(), conv, KindGreeting, s.now().Add(-time.Minute), "hello")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	paused := conv
	paused.AgentPaused = true
	convs.set(paused)

	if err := s.Fire(context.Background(), action.ID); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}

	if got := dispatcher.count(); got != 0 {
		t.Fatalf("dispatch count = %d, want 0", got)
	}
	if got := store.status(action.ID); got != StatusSkippedStale {
		t.Fatalf("status = %q, want %q", got, StatusSkippedStale)
	}
	found := false
	for _, name := range bus.names() {
		if name == "action.skipped_stale" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected action.skipped_stale event")
	}
}

func TestSchedulerFireSkipsFollowUpOnStageChange(t *testing.T) {
	store := newFakeStore()
	conv := testConversation()
	convs := &fakeConversations{states: map[uuid.UUID]ConversationState{conv.ID: conv}}
	dispatcher := &fakeDispatcher{}
	s, _ := testScheduler(t, store, convs, dispatcher)

	action, err := s.Enqueue(context.Background(), conv, KindFollowUp1, s.now().Add(-time.Minute), "still there?")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	moved := conv
	moved.Stage = "qualified"
	convs.set(moved)

	if err := s.Fire(context.Background(), action.ID); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}

	if got := dispatcher.count(); got != 0 {
		t.Fatalf("dispatch count = %d, want 0", got)
	}
	if got := store.status(action.ID); got != StatusSkippedStale {
		t.Fatalf("status = %q, want %q", got, StatusSkippedStale)
	}
}

func TestSchedulerGreetingSurvivesStageChange(t *testing.T) {
	store := newFakeStore()
	conv := testConversation()
	convs := &fakeConversations{states: map[uuid.UUID]ConversationState{conv.ID: conv}}
	dispatcher := &fakeDispatcher{}
	s, _ := testScheduler(t, store, convs, dispatcher)

	action, err := s.Enqueue(context.Background(), conv, KindGreeting, s.now().Add(-time.Minute), "hello")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	moved := conv
	moved.Stage = "qualified"
	convs.set(moved)

	if err := s.Fire(context.Background(), action.ID); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}

	if got := dispatcher.count(); got != 1 {
		t.Fatalf("dispatch count = %d, want 1", got)
	}
	if got := store.status(action.ID); got != StatusFired {
		t.Fatalf("status = %q, want %q", got, StatusFired)
	}
}

func TestSchedulerRetriesThenFails(t *testing.T) {
	store := newFakeStore()
	conv := testConversation()
	convs := &fakeConversations{states: map[uuid.UUID]ConversationState{conv.ID: conv}}
	dispatcher := &fakeDispatcher{err: errors.New("provider unavailable")}
	s, bus := testScheduler(t, store, convs, dispatcher)
	s.maxAttempts = 3

	action, err := s.Enqueue(context.Background(), conv, KindGreeting, s.now().Add(-time.Minute), "hello")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		// fakeStore resets FireAt into the future on retry, pull it back.
		store.mu.Lock()
		store.actions[action.ID].FireAt = s.now().Add(-time.Second)
		store.mu.Unlock()

		if err := s.Fire(context.Background(), action.ID); err == nil {
			t.Fatalf("Fire() attempt %d: expected error", i+1)
		}
		if got := store.status(action.ID); got != StatusPending {
			t.Fatalf("attempt %d: status = %q, want %q", i+1, got, StatusPending)
		}
	}
	if got := store.attempts(action.ID); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}

	// fakeStore resets FireAt into the future on retry, pull it back.
	store.mu.Lock()
	store.actions[action.ID].FireAt = s.now().Add(-time.Second)
	store.mu.Unlock()

	if err := s.Fire(context.Background(), action.ID); err == nil {
		t.Fatal("final Fire(): expected error")
	}
	if got := store.status(action.ID); got != StatusFailed {
		t.Fatalf("status = %q, want %q", got, StatusFailed)
	}

	found := false
	for _, name := range bus.names() {
		if name == "action.failed" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected action.failed event")
	}
}

func TestSchedulerBackoffCapped(t *testing.T) {
	s := &Scheduler{backoffBase: 30 * time.Second, backoffCap: 30 * time.Minute}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{7, 30 * time.Minute},
		{20, 30 * time.Minute},
	}
	for _, tc := range cases {
		if got := s.backoff(tc.attempt); got != tc.want {
			t.Errorf("backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestSchedulerCancelIdempotent(t *testing.T) {
	store := newFakeStore()
	conv := testConversation()
	convs := &fakeConversations{states: map[uuid.UUID]ConversationState{conv.ID: conv}}
	dispatcher := &fakeDispatcher{}
	s, _ := testScheduler(t, store, convs, dispatcher)

	action, err := s.Enqueue(context.Background(), conv, KindFollowUp1, s.now().Add(time.Hour), "ping")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if err := s.Cancel(context.Background(), action.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if err := s.Cancel(context.Background(), action.ID); err != nil {
		t.Fatalf("second Cancel() error = %v", err)
	}
	if got := store.status(action.ID); got != StatusCancelled {
		t.Fatalf("status = %q, want %q", got, StatusCancelled)
	}

	if err := s.Fire(context.Background(), action.ID); err != nil {
		t.Fatalf("Fire() after cancel error = %v", err)
	}
	if got := dispatcher.count(); got != 0 {
		t.Fatalf("dispatch count = %d, want 0", got)
	}
}

func TestSchedulerFireDueClaimsPendingActions(t *testing.T) {
	store := newFakeStore()
	conv := testConversation()
	convs := &fakeConversations{states: map[uuid.UUID]ConversationState{conv.ID: conv}}
	dispatcher := &fakeDispatcher{}
	s, _ := testScheduler(t, store, convs, dispatcher)

	due, err := s.Enqueue(context.Background(), conv, KindGreeting, s.now().Add(-time.Minute), "hello")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	notYet, err := s.Enqueue(context.Background(), conv, KindFollowUp1, s.now().Add(time.Hour), "later")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if err := s.FireDue(context.Background(), 100); err != nil {
		t.Fatalf("FireDue() error = %v", err)
	}

	if got := store.status(due.ID); got != StatusFired {
		t.Fatalf("due action status = %q, want %q", got, StatusFired)
	}
	if got := store.status(notYet.ID); got != StatusPending {
		t.Fatalf("future action status = %q, want %q", got, StatusPending)
	}
	if got := dispatcher.count(); got != 1 {
		t.Fatalf("dispatch count = %d, want 1", got)
	}
}

func TestSchedulerCancelPendingForConversation(t *testing.T) {
	store := newFakeStore()
	conv := testConversation()
	convs := &fakeConversations{states: map[uuid.UUID]ConversationState{conv.ID: conv}}
	s, _ := testScheduler(t, store, convs, &fakeDispatcher{})

	if _, err := s.Enqueue(context.Background(), conv, KindGreeting, s.now().Add(time.Minute), "a"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := s.Enqueue(context.Background(), conv, KindFollowUp1, s.now().Add(time.Hour), "b"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	cancelled, err := s.CancelPendingForConversation(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("CancelPendingForConversation() error = %v", err)
	}
	if cancelled != 2 {
		t.Fatalf("cancelled = %d, want 2", cancelled)
	}

	pending, err := s.HasPendingFollowUp(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("HasPendingFollowUp() error = %v", err)
	}
	if pending {
		t.Fatal("expected no pending follow-ups after cancel")
	}
}
