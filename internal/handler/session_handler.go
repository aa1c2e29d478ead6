package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "focusflow/internal/errors"
	"focusflow/internal/middleware"
	"focusflow/internal/model"
	"focusflow/internal/service"
)

type SessionHandler struct {
	sessionService *service.SessionService
}

type createSessionRequest struct {
	TaskID    *string    `json:"task_id"`
	Duration  *int       `json:"duration"`
	Status    string     `json:"status"`
	StartTime *time.Time `json:"start_time"`
}

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	session, apiErr := h.sessionService.Create(c.Request.Context(), middleware.UserID(c), model.NewSession{
		TaskID:    req.TaskID,
		Duration:  req.Duration,
		Status:    req.Status,
		StartTime: req.StartTime,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": session})
}

func (h *SessionHandler) List(c *gin.Context) {
	filter := model.SessionFilter{
		UserID: middleware.UserID(c),
		Status: strings.TrimSpace(c.Query("status")),
		TaskID: strings.TrimSpace(c.Query("taskId")),
	}

	var apiErr *apperrors.APIError
	if filter.StartDate, apiErr = parseQueryTime(c, "startDate"); apiErr != nil {
		writeError(c, apiErr)
		return
	}
	if filter.EndDate, apiErr = parseQueryTime(c, "endDate"); apiErr != nil {
		writeError(c, apiErr)
		return
	}
	if rawLimit := c.Query("limit"); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil {
			filter.Limit = parsed
		}
	}

	sessions, apiErr := h.sessionService.List(c.Request.Context(), filter)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *SessionHandler) Get(c *gin.Context) {
	session, apiErr := h.sessionService.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *SessionHandler) Update(c *gin.Context) {
	var patch model.SessionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeInvalidJSON(c)
		return
	}

	session, apiErr := h.sessionService.Update(c.Request.Context(), middleware.UserID(c), c.Param("id"), patch)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *SessionHandler) Delete(c *gin.Context) {
	if apiErr := h.sessionService.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.Status(http.StatusNoContent)
}

// Finalize answers 202 without a body; beacon senders never read it.
func (h *SessionHandler) Finalize(c *gin.Context) {
	var fin model.Finalization
	if err := c.ShouldBindJSON(&fin); err != nil {
		writeInvalidJSON(c)
		return
	}

	if _, apiErr := h.sessionService.Finalize(c.Request.Context(), middleware.UserID(c), c.Param("id"), fin); apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.Status(http.StatusAccepted)
}

func parseQueryTime(c *gin.Context, key string) (*time.Time, *apperrors.APIError) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperrors.BadRequest("invalid_"+key, key+" must be an RFC 3339 timestamp")
	}
	return &parsed, nil
}
