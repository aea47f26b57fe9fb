package followup

import (
	"context"
	"time"

	"legalintake_backend/internal/actions"
	"legalintake_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const ownerScanConcurrency = 4

// Candidate is a conversation that went quiet and may receive the next
// follow-up in its sequence.
type Candidate struct {
	Conversation  actions.ConversationState
	FollowUpCount int
}

// ConversationSource lists follow-up candidates for one owner. The query
// already excludes paused conversations, conversations whose last message
// came from the visitor, and conversations at or past maxFollowUps.
type ConversationSource interface {
	ListFollowUpCandidates(ctx context.Context, ownerID uuid.UUID, inactiveBefore time.Time, maxFollowUps int) ([]Candidate, error)
}

// SettingsSource yields the owners with follow-ups switched on.
type SettingsSource interface {
	ListEnabled(ctx context.Context) ([]Settings, error)
}

// ActionScheduler is the slice of the scheduler the engine needs.
type ActionScheduler interface {
	Enqueue(ctx context.Context, conv actions.ConversationState, kind actions.Kind, fireAt time.Time, payload string) (actions.Action, error)
	HasPendingFollowUp(ctx context.Context, conversationID uuid.UUID) (bool, error)
}

// Engine scans for inactive conversations and enqueues the next follow-up
// of each sequence. It runs on a ticker; every decision beyond candidate
// selection is delegated to the scheduler's firing protocol.
type Engine struct {
	settings      SettingsSource
	conversations ConversationSource
	scheduler     ActionScheduler
	log           *logger.Logger
	now           func() time.Time
}

func NewEngine(settings SettingsSource, conversations ConversationSource, scheduler ActionScheduler, log *logger.Logger) *Engine {
	return &Engine{
		settings:      settings,
		conversations: conversations,
		scheduler:     scheduler,
		log:           log,
		now:           time.Now,
	}
}

// Scan walks every enabled owner and enqueues due follow-ups. Owners are
// scanned concurrently with a small cap; errors on a single owner or
// conversation are logged and do not stop the sweep.
func (e *Engine) Scan(ctx context.Context) error {
	enabled, err := e.settings.ListEnabled(ctx)
	if err != nil {
		return err
	}

	now := e.now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ownerScanConcurrency)

	for _, settings := range enabled {
		g.Go(func() error {
			if err := e.scanOwner(gctx, settings, now); err != nil {
				e.log.Error("followup scan failed for owner",
					"owner_id", settings.OwnerID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) scanOwner(ctx context.Context, settings Settings, now time.Time) error {
	max := settings.EffectiveMax()
	if max == 0 {
		return nil
	}

	cutoff := now.Add(-time.Duration(settings.InactivityHours) * time.Hour)
	candidates, err := e.conversations.ListFollowUpCandidates(ctx, settings.OwnerID, cutoff, max)
	if err != nil {
		return err
	}

	for _, candidate := range candidates {
		next := candidate.FollowUpCount + 1
		if next > max {
			continue
		}

		pending, err := e.scheduler.HasPendingFollowUp(ctx, candidate.Conversation.ID)
		if err != nil {
			e.log.Error("followup pending check failed",
				"conversation_id", candidate.Conversation.ID, "error", err)
			continue
		}
		if pending {
			continue
		}

		message := settings.Message(next)
		if message == "" {
			e.log.Warn("followup message not configured, skipping",
				"owner_id", settings.OwnerID, "sequence", next)
			continue
		}

		fireAt := ProjectBusinessHours(now, settings)
		action, err := e.scheduler.Enqueue(ctx, candidate.Conversation, actions.FollowUpKind(next), fireAt, message)
		if err != nil {
			e.log.Error("followup enqueue failed",
				"conversation_id", candidate.Conversation.ID, "error", err)
			continue
		}

		e.log.Info("followup scheduled",
			"action_id", action.ID,
			"conversation_id", candidate.Conversation.ID,
			"sequence", next,
			"fire_at", fireAt,
		)
	}
	return nil
}
