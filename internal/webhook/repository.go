// Package webhook authenticates the inbound event surface. External
// channel bridges present an API key per request; keys are stored hashed
// and managed from the operator UI.
package webhook

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrAPIKeyNotFound = errors.New("webhook API key not found")

// APIKey represents a webhook API key stored in the database.
type APIKey struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Name      string
	KeyHash   string
	KeyPrefix string
	IsActive  bool
	CreatedAt time.Time
}

// Repository provides data access for webhook API keys.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new webhook repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GenerateAPIKey creates a new random API key and returns the plaintext key and its hash.
// The plaintext key is returned only once; only the hash is stored.
func GenerateAPIKey() (plaintext string, hash string, prefix string, err error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", "", err
	}
	plaintext = "whk_" + hex.EncodeToString(bytes)
	h := sha256.Sum256([]byte(plaintext))
	hash = hex.EncodeToString(h[:])
	prefix = plaintext[:12] // "whk_" + 8 hex chars
	return plaintext, hash, prefix, nil
}

// HashKey hashes a plaintext API key for lookup.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

// Create creates a new API key record.
func (r *Repository) Create(ctx context.Context, ownerID uuid.UUID, name string, keyHash string, keyPrefix string) (APIKey, error) {
	var key APIKey
	err := r.pool.QueryRow(ctx, `
		INSERT INTO webhook_api_keys (owner_id, name, key_hash, key_prefix)
		VALUES ($1, $2, $3, $4)
		RETURNING id, owner_id, name, key_hash, key_prefix, is_active, created_at
	`, ownerID, name, keyHash, keyPrefix).Scan(
		&key.ID, &key.OwnerID, &key.Name, &key.KeyHash, &key.KeyPrefix,
		&key.IsActive, &key.CreatedAt,
	)
	return key, err
}

// GetByHash retrieves an active API key by its hash.
func (r *Repository) GetByHash(ctx context.Context, keyHash string) (APIKey, error) {
	var key APIKey
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, key_hash, key_prefix, is_active, created_at
		FROM webhook_api_keys
		WHERE key_hash = $1 AND is_active = true
	`, keyHash).Scan(
		&key.ID, &key.OwnerID, &key.Name, &key.KeyHash, &key.KeyPrefix,
		&key.IsActive, &key.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, ErrAPIKeyNotFound
	}
	return key, err
}

// ListByOwner returns all API keys for an owner.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]APIKey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, name, key_hash, key_prefix, is_active, created_at
		FROM webhook_api_keys
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var key APIKey
		if err := rows.Scan(
			&key.ID, &key.OwnerID, &key.Name, &key.KeyHash, &key.KeyPrefix,
			&key.IsActive, &key.CreatedAt,
		); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Revoke deactivates an API key.
func (r *Repository) Revoke(ctx context.Context, id, ownerID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE webhook_api_keys SET is_active = false
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}
