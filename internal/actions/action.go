// Package actions owns delayed, cancellable conversation actions: greetings
// and inactivity follow-ups. Actions are durable rows with a fire-at time,
// not in-process timers, so pending work survives a restart. A validity
// token snapshots the conversation state at scheduling time; at fire time
// the live state is compared against it before anything is sent.
package actions

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what a scheduled action will send.
type Kind string

const (
	KindGreeting  Kind = "greeting"
	KindFollowUp1 Kind = "followup_1"
	KindFollowUp2 Kind = "followup_2"
	KindFollowUp3 Kind = "followup_3"
)

// FollowUpKind returns the kind for the nth follow-up (1-based).
func FollowUpKind(n int) Kind {
	return Kind(fmt.Sprintf("followup_%d", n))
}

// FollowUpKinds lists all follow-up kinds, for bulk cancellation.
func FollowUpKinds() []Kind {
	return []Kind{KindFollowUp1, KindFollowUp2, KindFollowUp3}
}

// IsFollowUp reports whether the kind is one of the follow-up sequence.
func (k Kind) IsFollowUp() bool {
	switch k {
	case KindFollowUp1, KindFollowUp2, KindFollowUp3:
		return true
	}
	return false
}

// Status is the lifecycle state of a scheduled action. Rows move from
// pending to exactly one terminal state and are never mutated otherwise.
type Status string

const (
	StatusPending      Status = "pending"
	StatusFired        Status = "fired"
	StatusSkippedStale Status = "skipped_stale"
	StatusCancelled    Status = "cancelled"
	StatusFailed       Status = "failed"
)

// ValidityToken is the snapshot of conversation state captured at enqueue
// time. Staleness at fire time is a pure comparison against the live row.
type ValidityToken struct {
	AgentID     *uuid.UUID
	AgentPaused bool
	Stage       string
}

// ConversationState is the slice of a conversation the scheduler needs:
// the token fields for staleness plus the phone number for dispatch.
type ConversationState struct {
	ID           uuid.UUID
	OwnerID      uuid.UUID
	ContactPhone string
	Stage        string
	AgentID      *uuid.UUID
	AgentPaused  bool
}

// Token captures the validity token from the live state.
func (c ConversationState) Token() ValidityToken {
	return ValidityToken{
		AgentID:     c.AgentID,
		AgentPaused: c.AgentPaused,
		Stage:       c.Stage,
	}
}

// StaleAgainst decides whether the live conversation state has diverged
// from the token in a way material to the action kind. A greeting only
// cares about the pause flag; a follow-up is also invalidated by a stage
// or agent change, since the agent that owned the sequence may no longer
// be bound.
func (t ValidityToken) StaleAgainst(kind Kind, live ConversationState) (string, bool) {
	if live.AgentPaused {
		return "agent paused", true
	}
	if kind.IsFollowUp() {
		if live.Stage != t.Stage {
			return "stage changed", true
		}
		if !uuidPtrEqual(live.AgentID, t.AgentID) {
			return "agent changed", true
		}
	}
	return "", false
}

// Action is one scheduled action row.
type Action struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	OwnerID        uuid.UUID
	Kind           Kind
	Payload        string
	FireAt         time.Time
	Status         Status
	Token          ValidityToken
	Attempts       int
	LastError      *string
	CreatedAt      time.Time
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
