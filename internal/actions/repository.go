package actions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const errRepoNotConfigured = "actions repository not configured"

// ErrNotFound is returned when an action id does not exist.
var ErrNotFound = errors.New("scheduled action not found")

// InsertParams holds everything needed to persist a new pending action.
type InsertParams struct {
	ConversationID uuid.UUID
	OwnerID        uuid.UUID
	Kind           Kind
	Payload        string
	FireAt         time.Time
	Token          ValidityToken
}

// Store is the persistence contract for scheduled actions. The pgx-backed
// Repository is the production implementation; tests use an in-memory fake.
type Store interface {
	Insert(ctx context.Context, p InsertParams) (Action, error)
	GetByID(ctx context.Context, id uuid.UUID) (Action, error)
	// TryTransition performs the atomic status compare-and-set. It reports
	// whether this caller won the transition.
	TryTransition(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)
	// MarkRetry returns a fired-claim back to pending with an incremented
	// attempt counter and a backed-off fire time.
	MarkRetry(ctx context.Context, id uuid.UUID, fireAt time.Time, lastError string) error
	// MarkFailed transitions to the terminal failed state from any
	// non-terminal state, recording the last error.
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	CancelPendingByConversation(ctx context.Context, conversationID uuid.UUID, kinds []Kind) (int, error)
	// ClaimDue returns due pending actions, locking rows only for the
	// duration of the read so concurrent claimers skip each other.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Action, error)
	HasPendingForConversation(ctx context.Context, conversationID uuid.UUID, kinds []Kind) (bool, error)
}

// Repository is the pgx implementation of Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an actions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const actionColumns = `id, conversation_id, owner_id, kind, payload, fire_at, status, token_agent_id, token_agent_paused, token_stage, attempts, last_error, created_at`

func scanAction(row pgx.Row) (Action, error) {
	var a Action
	var kind, status string
	if err := row.Scan(
		&a.ID, &a.ConversationID, &a.OwnerID, &kind, &a.Payload, &a.FireAt,
		&status, &a.Token.AgentID, &a.Token.AgentPaused, &a.Token.Stage,
		&a.Attempts, &a.LastError, &a.CreatedAt,
	); err != nil {
		return Action{}, err
	}
	a.Kind = Kind(kind)
	a.Status = Status(status)
	return a, nil
}

func (r *Repository) Insert(ctx context.Context, p InsertParams) (Action, error) {
	if r == nil || r.pool == nil {
		return Action{}, errors.New(errRepoNotConfigured)
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO scheduled_actions (conversation_id, owner_id, kind, payload, fire_at, status, token_agent_id, token_agent_paused, token_stage)
		 VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $8)
		 RETURNING `+actionColumns,
		p.ConversationID, p.OwnerID, string(p.Kind), p.Payload, p.FireAt,
		p.Token.AgentID, p.Token.AgentPaused, p.Token.Stage,
	)
	return scanAction(row)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Action, error) {
	if r == nil || r.pool == nil {
		return Action{}, errors.New(errRepoNotConfigured)
	}

	row := r.pool.QueryRow(ctx,
		`SELECT `+actionColumns+` FROM scheduled_actions WHERE id = $1`, id)
	action, err := scanAction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Action{}, ErrNotFound
	}
	return action, err
}

func (r *Repository) TryTransition(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New(errRepoNotConfigured)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE scheduled_actions
		 SET status = $3, updated_at = now()
		 WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) MarkRetry(ctx context.Context, id uuid.UUID, fireAt time.Time, lastError string) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE scheduled_actions
		 SET status = 'pending', attempts = attempts + 1, fire_at = $2, last_error = $3, updated_at = now()
		 WHERE id = $1`,
		id, fireAt, lastError,
	)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE scheduled_actions
		 SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = now()
		 WHERE id = $1 AND status NOT IN ('fired', 'skipped_stale', 'cancelled')`,
		id, lastError,
	)
	return err
}

func (r *Repository) CancelPendingByConversation(ctx context.Context, conversationID uuid.UUID, kinds []Kind) (int, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New(errRepoNotConfigured)
	}

	kindValues := make([]string, 0, len(kinds))
	for _, k := range kinds {
		kindValues = append(kindValues, string(k))
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE scheduled_actions
		 SET status = 'cancelled', updated_at = now()
		 WHERE conversation_id = $1 AND status = 'pending' AND kind = ANY($2)`,
		conversationID, kindValues,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *Repository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Action, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`SELECT `+actionColumns+`
		 FROM scheduled_actions
		 WHERE status = 'pending' AND fire_at <= $1
		 ORDER BY fire_at ASC
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Action
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, action)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Repository) HasPendingForConversation(ctx context.Context, conversationID uuid.UUID, kinds []Kind) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New(errRepoNotConfigured)
	}

	kindValues := make([]string, 0, len(kinds))
	for _, k := range kinds {
		kindValues = append(kindValues, string(k))
	}

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM scheduled_actions
		   WHERE conversation_id = $1 AND status = 'pending' AND kind = ANY($2)
		 )`,
		conversationID, kindValues,
	).Scan(&exists)
	return exists, err
}

var _ Store = (*Repository)(nil)
