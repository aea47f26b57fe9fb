package followup

import (
	"errors"
	"net/http"
	"time"

	"legalintake_backend/platform/httpkit"
	"legalintake_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// SettingsRequest is the request body for saving follow-up settings.
type SettingsRequest struct {
	IsEnabled            bool   `json:"isEnabled"`
	InactivityHours      int    `json:"inactivityHours" validate:"min=1,max=720"`
	MaxFollowUps         int    `json:"maxFollowups" validate:"min=0,max=3"`
	Message1             string `json:"message1" validate:"max=2000"`
	Message2             string `json:"message2" validate:"max=2000"`
	Message3             string `json:"message3" validate:"max=2000"`
	RespectBusinessHours bool   `json:"respectBusinessHours"`
	WorkStartHour        int    `json:"workStartHour" validate:"min=0,max=23"`
	WorkEndHour          int    `json:"workEndHour" validate:"min=0,max=24"`
	LunchStartHour       *int   `json:"lunchStartHour,omitempty" validate:"omitempty,min=0,max=23"`
	LunchEndHour         *int   `json:"lunchEndHour,omitempty" validate:"omitempty,min=0,max=24"`
	WorkDays             []int  `json:"workDays" validate:"max=7,dive,min=0,max=6"`
}

// SettingsResponse is the response body for follow-up settings.
type SettingsResponse struct {
	IsEnabled            bool      `json:"isEnabled"`
	InactivityHours      int       `json:"inactivityHours"`
	MaxFollowUps         int       `json:"maxFollowups"`
	Message1             string    `json:"message1"`
	Message2             string    `json:"message2"`
	Message3             string    `json:"message3"`
	RespectBusinessHours bool      `json:"respectBusinessHours"`
	WorkStartHour        int       `json:"workStartHour"`
	WorkEndHour          int       `json:"workEndHour"`
	LunchStartHour       *int      `json:"lunchStartHour,omitempty"`
	LunchEndHour         *int      `json:"lunchEndHour,omitempty"`
	WorkDays             []int     `json:"workDays"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Handler handles HTTP requests for follow-up settings
type Handler struct {
	repo *SettingsRepository
	val  *validator.Validator
}

// NewHandler creates a new follow-up settings handler
func NewHandler(repo *SettingsRepository, val *validator.Validator) *Handler {
	return &Handler{repo: repo, val: val}
}

// RegisterRoutes registers the settings routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.Get)
	rg.PUT("", h.Put)
}

// Get handles GET /api/v1/followup-settings
func (h *Handler) Get(c *gin.Context) {
	ownerID, ok := httpkit.MustGetOwnerID(c)
	if !ok {
		return
	}

	settings, err := h.repo.GetByOwner(c.Request.Context(), ownerID)
	if err != nil {
		if errors.Is(err, ErrConfigurationMissing) {
			httpkit.Error(c, http.StatusNotFound, "followup settings not configured", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, toSettingsResponse(settings))
}

// Put handles PUT /api/v1/followup-settings
func (h *Handler) Put(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	if req.WorkEndHour <= req.WorkStartHour && req.RespectBusinessHours {
		httpkit.Error(c, http.StatusBadRequest, "work_end_hour must be after work_start_hour", nil)
		return
	}

	ownerID, ok := httpkit.MustGetOwnerID(c)
	if !ok {
		return
	}

	workDays := req.WorkDays
	if len(workDays) == 0 {
		workDays = []int{1, 2, 3, 4, 5}
	}

	saved, err := h.repo.Upsert(c.Request.Context(), Settings{
		OwnerID:              ownerID,
		IsEnabled:            req.IsEnabled,
		InactivityHours:      req.InactivityHours,
		MaxFollowUps:         req.MaxFollowUps,
		Messages:             [maxSequenceLength]string{req.Message1, req.Message2, req.Message3},
		RespectBusinessHours: req.RespectBusinessHours,
		WorkStartHour:        req.WorkStartHour,
		WorkEndHour:          req.WorkEndHour,
		LunchStartHour:       req.LunchStartHour,
		LunchEndHour:         req.LunchEndHour,
		WorkDays:             workDays,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toSettingsResponse(saved))
}

func toSettingsResponse(s Settings) SettingsResponse {
	return SettingsResponse{
		IsEnabled:            s.IsEnabled,
		InactivityHours:      s.InactivityHours,
		MaxFollowUps:         s.MaxFollowUps,
		Message1:             s.Messages[0],
		Message2:             s.Messages[1],
		Message3:             s.Messages[2],
		RespectBusinessHours: s.RespectBusinessHours,
		WorkStartHour:        s.WorkStartHour,
		WorkEndHour:          s.WorkEndHour,
		LunchStartHour:       s.LunchStartHour,
		LunchEndHour:         s.LunchEndHour,
		WorkDays:             s.WorkDays,
		UpdatedAt:            s.UpdatedAt,
	}
}
