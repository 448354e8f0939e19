package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"flowforge/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HookHandler ingests webhook firings. The URL carries the owning user and
// zap so external services can post without credentials; ownership is checked
// against the zap record instead.
type HookHandler struct {
	dispatch *services.DispatchService
	logger   *logrus.Logger
}

func NewHookHandler(dispatch *services.DispatchService, logger *logrus.Logger) *HookHandler {
	return &HookHandler{dispatch: dispatch, logger: logger}
}

// HandleHook handles POST /hooks/:userId/:zapId. The body becomes the run's
// trigger metadata; a malformed or empty body still dispatches with empty
// metadata, since the sender is an external service we do not control.
func (h *HookHandler) HandleHook(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid user ID",
			Message: "user ID must be a valid number",
		})
		return
	}
	zapID := c.Param("zapId")

	payload := map[string]interface{}{}
	if err := json.NewDecoder(c.Request.Body).Decode(&payload); err != nil {
		h.logger.Debugf("hook for zap %s: unparseable body, dispatching with empty metadata", zapID)
		payload = map[string]interface{}{}
	}

	owner := uint(userID)
	run, err := h.dispatch.Dispatch(c.Request.Context(), &owner, zapID, payload)
	if err != nil {
		h.respondDispatchError(c, zapID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Webhook received",
		"zapRunId": run.ID,
	})
}

func (h *HookHandler) respondDispatchError(c *gin.Context, zapID string, err error) {
	var quota *services.QuotaExceededError
	switch {
	case errors.Is(err, services.ErrZapNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Zap not found"})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "Unauthorized"})
	case errors.Is(err, services.ErrZapInactive):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "Zap is not active"})
	case errors.As(err, &quota):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":    "Run limit reached",
			"runCount": quota.RunCount,
			"maxRuns":  quota.MaxRuns,
		})
	default:
		h.logger.Errorf("hook dispatch failed for zap %s: %v", zapID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to process webhook",
			Message: err.Error(),
		})
	}
}

// RegisterHookRoutes mounts the webhook ingestion surface.
func RegisterHookRoutes(rg *gin.RouterGroup, h *HookHandler) {
	rg.POST("/hooks/:userId/:zapId", h.HandleHook)
}
