package actions

import (
	"context"
	"time"

	"legalintake_backend/internal/events"
	"legalintake_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultMaxAttempts = 5
	defaultBackoffBase = 30 * time.Second
	defaultBackoffCap  = 30 * time.Minute
)

// ConversationReader loads the live conversation state inside the firing
// critical section. Reading live state after entering Fire is what closes
// the pause-versus-fire race.
type ConversationReader interface {
	GetState(ctx context.Context, conversationID uuid.UUID) (ConversationState, error)
}

// Dispatcher delivers a fired action's payload to the outside world and
// records it on the conversation.
type Dispatcher interface {
	Dispatch(ctx context.Context, action Action, conv ConversationState) error
}

// Timer asks the timer backend to deliver a due-signal at fire time. It is
// best-effort: the poll loop claiming due rows is the liveness backstop, so
// a timer failure downgrades to poll-latency, never to a lost action.
type Timer interface {
	ScheduleActionDue(ctx context.Context, actionID uuid.UUID, fireAt time.Time) error
}

// Scheduler owns the scheduled-action lifecycle: enqueue with a validity
// token, cooperative cancel, and the firing protocol with its staleness
// re-check and at-most-once dispatch.
type Scheduler struct {
	store         Store
	conversations ConversationReader
	dispatcher    Dispatcher
	timer         Timer
	bus           events.Bus
	log           *logger.Logger

	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
	now         func() time.Time
}

// NewScheduler wires the scheduler. timer may be nil when no asynq backend
// is configured; the poll loop then carries all firing.
func NewScheduler(store Store, conversations ConversationReader, dispatcher Dispatcher, timer Timer, bus events.Bus, log *logger.Logger) *Scheduler {
	return &Scheduler{
		store:         store,
		conversations: conversations,
		dispatcher:    dispatcher,
		timer:         timer,
		bus:           bus,
		log:           log,
		maxAttempts:   defaultMaxAttempts,
		backoffBase:   defaultBackoffBase,
		backoffCap:    defaultBackoffCap,
		now:           time.Now,
	}
}

// Enqueue captures the validity token from the conversation's current state
// and persists the action as pending.
func (s *Scheduler) Enqueue(ctx context.Context, conv ConversationState, kind Kind, fireAt time.Time, payload string) (Action, error) {
	action, err := s.store.Insert(ctx, InsertParams{
		ConversationID: conv.ID,
		OwnerID:        conv.OwnerID,
		Kind:           kind,
		Payload:        payload,
		FireAt:         fireAt,
		Token:          conv.Token(),
	})
	if err != nil {
		return Action{}, err
	}

	if s.timer != nil {
		if timerErr := s.timer.ScheduleActionDue(ctx, action.ID, action.FireAt); timerErr != nil {
			s.log.Warn("action timer enqueue failed, poll loop will pick it up",
				"action_id", action.ID, "error", timerErr)
		}
	}

	s.log.Info("action enqueued",
		"action_id", action.ID,
		"conversation_id", conv.ID,
		"kind", string(kind),
		"fire_at", fireAt,
	)
	return action, nil
}

// Cancel transitions a pending action to cancelled. Calling it on an action
// that already reached a terminal state is a no-op.
func (s *Scheduler) Cancel(ctx context.Context, actionID uuid.UUID) error {
	won, err := s.store.TryTransition(ctx, actionID, StatusPending, StatusCancelled)
	if err != nil {
		return err
	}
	if won {
		s.log.ActionOutcome(actionID.String(), "", string(StatusCancelled))
	}
	return nil
}

// CancelPendingForConversation cancels all pending actions of the given
// kinds for one conversation. Used when a human message arrives.
func (s *Scheduler) CancelPendingForConversation(ctx context.Context, conversationID uuid.UUID, kinds ...Kind) (int, error) {
	if len(kinds) == 0 {
		kinds = append(FollowUpKinds(), KindGreeting)
	}
	return s.store.CancelPendingByConversation(ctx, conversationID, kinds)
}

// HasPendingFollowUp reports whether a pending follow-up already exists for
// the conversation.
func (s *Scheduler) HasPendingFollowUp(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	return s.store.HasPendingForConversation(ctx, conversationID, FollowUpKinds())
}

// Fire runs the firing protocol for a single action:
//
//  1. a non-pending action was already handled elsewhere, stop;
//  2. re-load the live conversation state;
//  3. staleness check against the validity token, per kind;
//  4. win the pending->fired compare-and-set, then dispatch; the loser of
//     the CAS stops without any external call.
//
// A dispatch failure returns the row to pending with a backed-off fire
// time; once attempts are exhausted the action is marked failed and an
// ActionFailed event is published.
func (s *Scheduler) Fire(ctx context.Context, actionID uuid.UUID) error {
	action, err := s.store.GetByID(ctx, actionID)
	if err != nil {
		if err == ErrNotFound {
			return nil
		}
		return err
	}
	if action.Status != StatusPending {
		return nil
	}
	if action.FireAt.After(s.now()) {
		// Early timer delivery; the poll loop will fire it when due.
		return nil
	}

	conv, err := s.conversations.GetState(ctx, action.ConversationID)
	if err != nil {
		s.retryOrFail(ctx, action, err)
		return err
	}

	if reason, stale := action.Token.StaleAgainst(action.Kind, conv); stale {
		won, err := s.store.TryTransition(ctx, action.ID, StatusPending, StatusSkippedStale)
		if err != nil {
			return err
		}
		if won {
			s.log.ActionOutcome(action.ID.String(), string(action.Kind), string(StatusSkippedStale))
			s.publish(ctx, events.ActionSkippedStale{
				BaseEvent:      events.NewBaseEvent(),
				ActionID:       action.ID,
				ConversationID: action.ConversationID,
				OwnerID:        action.OwnerID,
				Kind:           string(action.Kind),
				Reason:         reason,
			})
		}
		return nil
	}

	won, err := s.store.TryTransition(ctx, action.ID, StatusPending, StatusFired)
	if err != nil {
		return err
	}
	if !won {
		// A concurrent firing attempt got there first.
		return nil
	}

	if err := s.dispatcher.Dispatch(ctx, action, conv); err != nil {
		s.retryOrFail(ctx, action, err)
		return err
	}

	s.log.ActionOutcome(action.ID.String(), string(action.Kind), string(StatusFired))
	return nil
}

// FireDue claims all currently due pending actions and fires each. It is
// the poll-loop entry point and the restart-safety backstop for timers
// that were lost.
func (s *Scheduler) FireDue(ctx context.Context, limit int) error {
	due, err := s.store.ClaimDue(ctx, s.now(), limit)
	if err != nil {
		return err
	}

	for _, action := range due {
		if err := s.Fire(ctx, action.ID); err != nil {
			s.log.Warn("action fire failed", "action_id", action.ID, "error", err)
		}
	}
	return nil
}

// retryOrFail returns a claimed action to pending with a backed-off fire
// time, or marks it failed once attempts are exhausted.
func (s *Scheduler) retryOrFail(ctx context.Context, action Action, cause error) {
	attempt := action.Attempts + 1
	if attempt >= s.maxAttempts {
		if err := s.store.MarkFailed(ctx, action.ID, cause.Error()); err != nil {
			s.log.Error("failed to mark action failed", "action_id", action.ID, "error", err)
			return
		}
		s.log.ActionOutcome(action.ID.String(), string(action.Kind), string(StatusFailed))
		s.publish(ctx, events.ActionFailed{
			BaseEvent:      events.NewBaseEvent(),
			ActionID:       action.ID,
			ConversationID: action.ConversationID,
			OwnerID:        action.OwnerID,
			Kind:           string(action.Kind),
			LastError:      cause.Error(),
		})
		return
	}

	retryAt := s.now().Add(s.backoff(attempt))
	if err := s.store.MarkRetry(ctx, action.ID, retryAt, cause.Error()); err != nil {
		s.log.Error("failed to mark action for retry", "action_id", action.ID, "error", err)
		return
	}
	s.log.Warn("action dispatch failed, will retry",
		"action_id", action.ID,
		"attempt", attempt,
		"retry_at", retryAt,
		"error", cause,
	)
}

// backoff computes the exponential delay for the given attempt (1-based).
func (s *Scheduler) backoff(attempt int) time.Duration {
	delay := s.backoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.backoffCap {
			return s.backoffCap
		}
	}
	if delay > s.backoffCap {
		return s.backoffCap
	}
	return delay
}

func (s *Scheduler) publish(ctx context.Context, event events.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, event)
}
