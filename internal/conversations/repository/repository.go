package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"legalintake_backend/internal/actions"
	"legalintake_backend/internal/dispatch"
	"legalintake_backend/internal/followup"
	"legalintake_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const conversationNotFoundMsg = "conversation not found"

// Conversation represents the conversation database model
type Conversation struct {
	ID              uuid.UUID  `db:"id"`
	OwnerID         uuid.UUID  `db:"owner_id"`
	ContactPhone    string     `db:"contact_phone"`
	ContactName     string     `db:"contact_name"`
	CurrentStage    string     `db:"current_stage"`
	AgentID         *uuid.UUID `db:"agent_id"`
	AgentPaused     bool       `db:"agent_paused"`
	FollowUpCount   int        `db:"followup_count"`
	LastMessageText string     `db:"last_message_text"`
	LastMessageRole string     `db:"last_message_role"`
	LastMessageAt   *time.Time `db:"last_message_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// State converts the row into the scheduler's view of the conversation.
func (c *Conversation) State() actions.ConversationState {
	return actions.ConversationState{
		ID:           c.ID,
		OwnerID:      c.OwnerID,
		ContactPhone: c.ContactPhone,
		Stage:        c.CurrentStage,
		AgentID:      c.AgentID,
		AgentPaused:  c.AgentPaused,
	}
}

// Message represents one transcript entry
type Message struct {
	ID             uuid.UUID  `db:"id"`
	ConversationID uuid.UUID  `db:"conversation_id"`
	Role           string     `db:"role"`
	Content        string     `db:"content"`
	ExternalID     *string    `db:"external_id"`
	ActionID       *uuid.UUID `db:"action_id"`
	Status         string     `db:"status"`
	CreatedAt      time.Time  `db:"created_at"`
}

// Repository provides database operations for conversations
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new conversations repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const conversationColumns = `id, owner_id, contact_phone, contact_name, current_stage,
	agent_id, agent_paused, followup_count,
	last_message_text, last_message_role, last_message_at, created_at, updated_at`

// CreateOrGet returns the conversation for (owner, phone), creating it on
// first contact. The second return reports whether a new row was created.
func (r *Repository) CreateOrGet(ctx context.Context, ownerID uuid.UUID, contactPhone, contactName string) (*Conversation, bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO conversations (owner_id, contact_phone, contact_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, contact_phone) DO NOTHING
		RETURNING %s`, conversationColumns)

	conv, err := scanConversation(r.pool.QueryRow(ctx, query, ownerID, contactPhone, contactName))
	if err == nil {
		return conv, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create conversation: %w", err)
	}

	existing, err := r.getBy(ctx, `owner_id = $1 AND contact_phone = $2`, ownerID, contactPhone)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByID retrieves a conversation scoped to its owner.
func (r *Repository) GetByID(ctx context.Context, id, ownerID uuid.UUID) (*Conversation, error) {
	return r.getBy(ctx, `id = $1 AND owner_id = $2`, id, ownerID)
}

// GetState loads the live scheduler view of a conversation. It backs the
// staleness re-check at fire time.
func (r *Repository) GetState(ctx context.Context, id uuid.UUID) (actions.ConversationState, error) {
	conv, err := r.getBy(ctx, `id = $1`, id)
	if err != nil {
		return actions.ConversationState{}, err
	}
	return conv.State(), nil
}

// ListByOwner returns the owner's conversations, most recently active first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]Conversation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM conversations
		WHERE owner_id = $1
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
		LIMIT $2 OFFSET $3`, conversationColumns)

	rows, err := r.pool.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var result []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		result = append(result, *conv)
	}
	return result, rows.Err()
}

// AppendInbound records a visitor message: one transcript row plus
// last-message fields and a follow-up counter reset, in one transaction.
func (r *Repository) AppendInbound(ctx context.Context, conversationID uuid.UUID, text string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO conversation_messages (conversation_id, role, content, status)
		VALUES ($1, 'user', $2, 'received')`,
		conversationID, text,
	)
	if err != nil {
		return fmt.Errorf("failed to append inbound message: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE conversations
		SET last_message_text = $2,
		    last_message_role = 'user',
		    last_message_at = now(),
		    followup_count = 0,
		    updated_at = now()
		WHERE id = $1`,
		conversationID, text,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation on inbound: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(conversationNotFoundMsg)
	}

	return tx.Commit(ctx)
}

// RecordOutbound persists a delivered outbound message. The action-scoped
// unique index makes the write idempotent per scheduled action; a replay
// inserts nothing and touches nothing.
func (r *Repository) RecordOutbound(ctx context.Context, rec dispatch.OutboundRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
		INSERT INTO conversation_messages (conversation_id, role, content, external_id, action_id, status)
		VALUES ($1, 'assistant', $2, $3, $4, 'sent')
		ON CONFLICT (action_id) WHERE action_id IS NOT NULL DO NOTHING`,
		rec.ConversationID, rec.Text, nullIfEmpty(rec.ProviderMessageID), rec.ActionID,
	)
	if err != nil {
		return fmt.Errorf("failed to append outbound message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	followupIncrement := 0
	if rec.CountFollowUp {
		followupIncrement = 1
	}
	_, err = tx.Exec(ctx, `
		UPDATE conversations
		SET last_message_text = $2,
		    last_message_role = 'assistant',
		    last_message_at = now(),
		    followup_count = followup_count + $3,
		    updated_at = now()
		WHERE id = $1`,
		rec.ConversationID, rec.Text, followupIncrement,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation on outbound: %w", err)
	}

	return tx.Commit(ctx)
}

// HasMessageForAction reports whether the transcript already holds a
// message for the given scheduled action.
func (r *Repository) HasMessageForAction(ctx context.Context, actionID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM conversation_messages WHERE action_id = $1)`,
		actionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check action message: %w", err)
	}
	return exists, nil
}

// UpdateStage moves the conversation to a new stage and persists the
// re-resolved agent binding, nil included.
func (r *Repository) UpdateStage(ctx context.Context, id, ownerID uuid.UUID, stage string, agentID *uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET current_stage = $3, agent_id = $4, updated_at = now()
		WHERE id = $1 AND owner_id = $2`,
		id, ownerID, stage, agentID,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(conversationNotFoundMsg)
	}
	return nil
}

// SetAgent assigns the active agent without touching the stage.
func (r *Repository) SetAgent(ctx context.Context, id uuid.UUID, agentID *uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations SET agent_id = $2, updated_at = now() WHERE id = $1`,
		id, agentID,
	)
	if err != nil {
		return fmt.Errorf("failed to set conversation agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(conversationNotFoundMsg)
	}
	return nil
}

// SetPaused toggles the automation pause flag.
func (r *Repository) SetPaused(ctx context.Context, id, ownerID uuid.UUID, paused bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET agent_paused = $3, updated_at = now()
		WHERE id = $1 AND owner_id = $2`,
		id, ownerID, paused,
	)
	if err != nil {
		return fmt.Errorf("failed to toggle conversation pause: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(conversationNotFoundMsg)
	}
	return nil
}

// ListMessages returns the transcript oldest-first.
func (r *Repository) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, external_id, action_id, status, created_at
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var result []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.ExternalID, &m.ActionID, &m.Status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// TranscriptTail returns the most recent n entries oldest-first, the shape
// the responder prompt wants.
func (r *Repository) TranscriptTail(ctx context.Context, conversationID uuid.UUID, n int) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, external_id, action_id, status, created_at
		FROM (
			SELECT id, conversation_id, role, content, external_id, action_id, status, created_at
			FROM conversation_messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) tail
		ORDER BY created_at ASC`,
		conversationID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript tail: %w", err)
	}
	defer rows.Close()

	var result []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.ExternalID, &m.ActionID, &m.Status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// ListFollowUpCandidates selects the owner's conversations eligible for
// the next follow-up: quiet since the cutoff, last word from the
// assistant, not paused, sequence not exhausted.
func (r *Repository) ListFollowUpCandidates(ctx context.Context, ownerID uuid.UUID, inactiveBefore time.Time, maxFollowUps int) ([]followup.Candidate, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM conversations
		WHERE owner_id = $1
		  AND agent_paused = FALSE
		  AND last_message_role = 'assistant'
		  AND last_message_at IS NOT NULL
		  AND last_message_at <= $2
		  AND followup_count < $3`, conversationColumns)

	rows, err := r.pool.Query(ctx, query, ownerID, inactiveBefore, maxFollowUps)
	if err != nil {
		return nil, fmt.Errorf("failed to list followup candidates: %w", err)
	}
	defer rows.Close()

	var result []followup.Candidate
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan followup candidate: %w", err)
		}
		result = append(result, followup.Candidate{
			Conversation:  conv.State(),
			FollowUpCount: conv.FollowUpCount,
		})
	}
	return result, rows.Err()
}

func (r *Repository) getBy(ctx context.Context, where string, args ...any) (*Conversation, error) {
	query := fmt.Sprintf(`SELECT %s FROM conversations WHERE %s`, conversationColumns, where)

	conv, err := scanConversation(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(conversationNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	err := row.Scan(
		&c.ID,
		&c.OwnerID,
		&c.ContactPhone,
		&c.ContactName,
		&c.CurrentStage,
		&c.AgentID,
		&c.AgentPaused,
		&c.FollowUpCount,
		&c.LastMessageText,
		&c.LastMessageRole,
		&c.LastMessageAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
