package handler

import (
	"net/http"

	"legalintake_backend/internal/agents/repository"
	"legalintake_backend/internal/agents/service"
	"legalintake_backend/internal/agents/transport"
	"legalintake_backend/platform/httpkit"
	"legalintake_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for agents and stage bindings
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new agents handler
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the agent routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.GetByID)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)

	rg.GET("/bindings", h.ListBindings)
	rg.PUT("/bindings/:stage", h.SetBinding)
}

// List handles GET /api/v1/agents
func (h *Handler) List(c *gin.Context) {
	ownerID, ok := httpkit.MustGetOwnerID(c)
	if !ok {
		return
	}

	agents, err := h.svc.List(c.Request.Context(), ownerID)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.AgentResponse, 0, len(agents))
	for i := range agents {
		out = append(out, toAgentResponse(&agents[i]))
	}
	httpkit.OK(c, out)
}

// Create handles POST /api/v1/agents
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	ownerID, ok := httpkit.MustGetOwnerID(c)
	if !ok {
		return
	}

	agent, err := h.svc.Create(c.Request.Context(), ownerID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, toAgentResponse(agent))
}

// GetByID handles GET /api/v1/agents/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid agent id", nil)
		return
	}

	ownerID, ok := httpkit.MustGetOwnerID(c)
	if !ok {
		return
	}

	agent, err := h.svc.GetByID(c.Request.Context(), id, ownerID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toAgentResponse(agent))
}

// Update handles PUT /api/v1/agents/:id
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid agent id", nil)
		return
	}

	var req transport.UpdateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	ownerID, ok := httpkit.MustGetOwnerID(c)
	if !ok {
		return
	}

	agent, err := h.svc.Update(c.Request.Context(), id, ownerID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toAgentResponse(agent))
}

// Delete handles DELETE /api/v1/agents/:id
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid agent id", nil)
		return
	}

	ownerID, ok := httpkit.MustGetOwnerID(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id, ownerID); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// ListBindings handles GET /api/v1/agents/bindings
func (h *Handler) ListBindings(c *gin.Context) {
	ownerID, ok := httpkit.MustGetOwnerID(c)
	if !ok {
		return
	}

	bindings, err := h.svc.ListBindings(c.Request.Context(), ownerID)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.BindingResponse, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, transport.BindingResponse{
			Stage:     b.Stage,
			AgentID:   b.AgentID,
			UpdatedAt: b.UpdatedAt,
		})
	}
	httpkit.OK(c, out)
}

// SetBinding handles PUT /api/v1/agents/bindings/:stage
func (h *Handler) SetBinding(c *gin.Context) {
	stage := c.Param("stage")

	var req transport.SetBindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	ownerID, ok := httpkit.MustGetOwnerID(c)
	if !ok {
		return
	}

	if err := h.svc.SetBinding(c.Request.Context(), ownerID, stage, req.AgentID); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func toAgentResponse(a *repository.Agent) transport.AgentResponse {
	return transport.AgentResponse{
		ID:                   a.ID,
		Name:                 a.Name,
		ModelName:            a.ModelName,
		Instruction:          a.Instruction,
		GreetingMessage:      a.GreetingMessage,
		GreetingDelayMinutes: a.GreetingDelayMinutes,
		IsActive:             a.IsActive,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
}
