package webhook

import (
	"net/http"
	"time"

	"legalintake_backend/platform/httpkit"
	"legalintake_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler manages webhook API keys on the operator surface.
type Handler struct {
	repo *Repository
	val  *validator.Validator
}

// NewHandler creates a new webhook key management handler.
func NewHandler(repo *Repository, val *validator.Validator) *Handler {
	return &Handler{repo: repo, val: val}
}

// RegisterKeyRoutes registers the API key management routes.
func (h *Handler) RegisterKeyRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.HandleListAPIKeys)
	rg.POST("", h.HandleCreateAPIKey)
	rg.DELETE("/:id", h.HandleRevokeAPIKey)
}

// CreateAPIKeyRequest is the request body for creating a new API key.
type CreateAPIKeyRequest struct {
	Name string `json:"name" validate:"required,min=1,max=120"`
}

// APIKeyResponse is returned when listing or creating API keys.
type APIKeyResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	KeyPrefix string    `json:"keyPrefix"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateAPIKeyResponse includes the plaintext key (shown only once).
type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

// HandleCreateAPIKey creates a new webhook API key.
func (h *Handler) HandleCreateAPIKey(c *gin.Context) {
	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	ownerID, ok := httpkit.MustGetOwnerID(c)
	if !ok {
		return
	}

	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to generate API key", nil)
		return
	}

	key, err := h.repo.Create(c.Request.Context(), ownerID, req.Name, hash, prefix)
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, CreateAPIKeyResponse{
		APIKeyResponse: toAPIKeyResponse(key),
		Key:            plaintext,
	})
}

// HandleListAPIKeys lists all webhook API keys for the owner.
func (h *Handler) HandleListAPIKeys(c *gin.Context) {
	ownerID, ok := httpkit.MustGetOwnerID(c)
	if !ok {
		return
	}

	keys, err := h.repo.ListByOwner(c.Request.Context(), ownerID)
	if httpkit.HandleError(c, err) {
		return
	}

	result := make([]APIKeyResponse, len(keys))
	for i, k := range keys {
		result[i] = toAPIKeyResponse(k)
	}
	httpkit.OK(c, result)
}

// HandleRevokeAPIKey deactivates a webhook API key.
func (h *Handler) HandleRevokeAPIKey(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid key id", nil)
		return
	}

	ownerID, ok := httpkit.MustGetOwnerID(c)
	if !ok {
		return
	}

	if err := h.repo.Revoke(c.Request.Context(), id, ownerID); err != nil {
		if err == ErrAPIKeyNotFound {
			httpkit.Error(c, http.StatusNotFound, "API key not found", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func toAPIKeyResponse(key APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        key.ID,
		Name:      key.Name,
		KeyPrefix: key.KeyPrefix,
		IsActive:  key.IsActive,
		CreatedAt: key.CreatedAt,
	}
}
