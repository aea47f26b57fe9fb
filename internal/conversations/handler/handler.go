package handler

import (
	"net/http"

	"legalintake_backend/internal/conversations/repository"
	"legalintake_backend/internal/conversations/service"
	"legalintake_backend/internal/conversations/transport"
	"legalintake_backend/internal/webhook"
	"legalintake_backend/platform/httpkit"
	"legalintake_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"

	defaultPageSize    = 50
	transcriptPageSize = 500
)

// Handler handles HTTP requests for conversations
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new conversations handler
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterWebhookRoutes registers the inbound event surface, authenticated
// by webhook API key.
func (h *Handler) RegisterWebhookRoutes(rg *gin.RouterGroup) {
	rg.POST("/conversations/message", h.InboundMessage)
	rg.POST("/conversations/:id/stage", h.StageChange)
	rg.POST("/conversations/:id/pause", h.PauseToggle)
}

// RegisterRoutes registers the operator read surface (JWT).
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.GetByID)
	rg.GET("/:id/messages", h.Transcript)
}

// InboundMessage handles POST /api/v1/webhook/conversations/message
func (h *Handler) InboundMessage(c *gin.Context) {
	var req transport.InboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	ownerID, ok := webhook.OwnerIDFromContext(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "owner context missing", nil)
		return
	}

	conv, err := h.svc.OnInboundMessage(c.Request.Context(), ownerID, req.ConversationID, req.Phone, req.Name, req.Text)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toConversationResponse(conv))
}

// StageChange handles POST /api/v1/webhook/conversations/:id/stage
func (h *Handler) StageChange(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid conversation id", nil)
		return
	}

	var req transport.StageChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	ownerID, ok := webhook.OwnerIDFromContext(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "owner context missing", nil)
		return
	}

	if err := h.svc.OnStageChange(c.Request.Context(), ownerID, id, req.Stage); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// PauseToggle handles POST /api/v1/webhook/conversations/:id/pause
func (h *Handler) PauseToggle(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid conversation id", nil)
		return
	}

	var req transport.PauseToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	ownerID, ok := webhook.OwnerIDFromContext(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "owner context missing", nil)
		return
	}

	if err := h.svc.OnPauseToggle(c.Request.Context(), ownerID, id, *req.Paused); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// List handles GET /api/v1/conversations
func (h *Handler) List(c *gin.Context) {
	var req transport.ListConversationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.Page <= 0 {
		req.Page = 1
	}

	ownerID, ok := httpkit.MustGetOwnerID(c)
	if !ok {
		return
	}

	conversations, err := h.svc.List(c.Request.Context(), ownerID, req.PageSize, (req.Page-1)*req.PageSize)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.ConversationResponse, 0, len(conversations))
	for i := range conversations {
		out = append(out, toConversationResponse(&conversations[i]))
	}
	httpkit.OK(c, out)
}

// GetByID handles GET /api/v1/conversations/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid conversation id", nil)
		return
	}

	ownerID, ok := httpkit.MustGetOwnerID(c)
	if !ok {
		return
	}

	conv, err := h.svc.Get(c.Request.Context(), id, ownerID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toConversationResponse(conv))
}

// Transcript handles GET /api/v1/conversations/:id/messages
func (h *Handler) Transcript(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid conversation id", nil)
		return
	}

	ownerID, ok := httpkit.MustGetOwnerID(c)
	if !ok {
		return
	}

	messages, err := h.svc.Transcript(c.Request.Context(), id, ownerID, transcriptPageSize)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, transport.MessageResponse{
			ID:         m.ID,
			Role:       m.Role,
			Content:    m.Content,
			ExternalID: m.ExternalID,
			Status:     m.Status,
			CreatedAt:  m.CreatedAt,
		})
	}
	httpkit.OK(c, out)
}

func toConversationResponse(c *repository.Conversation) transport.ConversationResponse {
	return transport.ConversationResponse{
		ID:              c.ID,
		ContactPhone:    c.ContactPhone,
		ContactName:     c.ContactName,
		CurrentStage:    c.CurrentStage,
		AgentID:         c.AgentID,
		AgentPaused:     c.AgentPaused,
		FollowUpCount:   c.FollowUpCount,
		LastMessageText: c.LastMessageText,
		LastMessageRole: c.LastMessageRole,
		LastMessageAt:   c.LastMessageAt,
		CreatedAt:       c.CreatedAt,
	}
}
