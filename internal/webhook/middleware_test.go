package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type fakeKeyStore struct {
	keys map[string]APIKey
}

func (f *fakeKeyStore) GetByHash(ctx context.Context, keyHash string) (APIKey, error) {
	key, ok := f.keys[keyHash]
	if !ok {
		return APIKey{}, ErrAPIKeyNotFound
	}
	return key, nil
}

func newAuthRouter(store KeyStore) (*gin.Engine, *uuid.UUID) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	var seenOwner uuid.UUID
	router.POST("/webhook/message", APIKeyAuthMiddleware(store), func(c *gin.Context) {
		ownerID, ok := OwnerIDFromContext(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "owner missing from context"})
			return
		}
		seenOwner = ownerID
		c.Status(http.StatusNoContent)
	})
	return router, &seenOwner
}

func TestAPIKeyAuthMissingHeader(t *testing.T) {
	router, _ := newAuthRouter(&fakeKeyStore{keys: map[string]APIKey{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/message", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAPIKeyAuthUnknownKey(t *testing.T) {
	router, _ := newAuthRouter(&fakeKeyStore{keys: map[string]APIKey{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/message", nil)
	req.Header.Set("X-Webhook-API-Key", "whk_deadbeef")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAPIKeyAuthValidKeySetsOwner(t *testing.T) {
	plaintext, hash, _, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	ownerID := uuid.New()
	store := &fakeKeyStore{keys: map[string]APIKey{
		hash: {ID: uuid.New(), OwnerID: ownerID, IsActive: true},
	}}
	router, seenOwner := newAuthRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/message", nil)
	req.Header.Set("X-Webhook-API-Key", plaintext)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusNoContent, w.Body.String())
	}
	if *seenOwner != ownerID {
		t.Errorf("owner in context = %v, want %v", *seenOwner, ownerID)
	}
}

func TestOwnerIDFromContextAbsent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if _, ok := OwnerIDFromContext(c); ok {
		t.Error("expected ok=false without an authenticated key")
	}
}
