package webhook

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// ContextOwnerIDKey carries the owner resolved from the API key.
	ContextOwnerIDKey = "webhookOwnerID"
	// ContextKeyIDKey carries the id of the key that authenticated the call.
	ContextKeyIDKey = "webhookKeyID"
)

// KeyStore is the key lookup the middleware needs.
// *Repository satisfies it.
type KeyStore interface {
	GetByHash(ctx context.Context, keyHash string) (APIKey, error)
}

// APIKeyAuthMiddleware validates the X-Webhook-API-Key header and sets the
// owner context on the gin context.
func APIKeyAuthMiddleware(repo KeyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-Webhook-API-Key")
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		key, err := repo.GetByHash(c.Request.Context(), HashKey(apiKey))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		c.Set(ContextOwnerIDKey, key.OwnerID)
		c.Set(ContextKeyIDKey, key.ID)
		c.Next()
	}
}

// OwnerIDFromContext returns the owner the webhook request authenticated as.
func OwnerIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	value, ok := c.Get(ContextOwnerIDKey)
	if !ok {
		return uuid.Nil, false
	}
	ownerID, ok := value.(uuid.UUID)
	return ownerID, ok
}
