package telemetry

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists call records. Append-only; there are no readers in
// the orchestration path.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a call record repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append inserts one call record.
func (r *Repository) Append(ctx context.Context, rec Record) error {
	if r == nil || r.pool == nil {
		return errors.New("telemetry repository not configured")
	}

	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	var errorMessage *string
	if rec.ErrorMessage != "" {
		errorMessage = &rec.ErrorMessage
	}
	var modelName *string
	if rec.ModelName != "" {
		modelName = &rec.ModelName
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO call_records (owner_id, source, agent_id, model_name, tokens_in, tokens_out, elapsed_ms, status, error_message, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.OwnerID, rec.Source, rec.AgentID, modelName, rec.TokensIn, rec.TokensOut, rec.ElapsedMs, string(rec.Status), errorMessage, metadataJSON,
	)
	return err
}

var _ Sink = (*Repository)(nil)
