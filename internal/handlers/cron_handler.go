package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"flowforge/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CronHandler receives scheduler callbacks. Responses are shaped for the
// queue's retry policy: terminal rejections answer 200 with success=false so
// a dead zap does not get hammered with redeliveries.
type CronHandler struct {
	dispatch  *services.DispatchService
	lifecycle *services.LifecycleService
	logger    *logrus.Logger
}

func NewCronHandler(dispatch *services.DispatchService, lifecycle *services.LifecycleService, logger *logrus.Logger) *CronHandler {
	return &CronHandler{dispatch: dispatch, lifecycle: lifecycle, logger: logger}
}

// HandleFire handles POST /cron/:zapId. No owner hint: the scheduler fires on
// behalf of the system, and the schedule id was bound to the zap at creation.
func (h *CronHandler) HandleFire(c *gin.Context) {
	zapID := c.Param("zapId")

	payload := map[string]interface{}{}
	if err := json.NewDecoder(c.Request.Body).Decode(&payload); err != nil {
		payload = map[string]interface{}{}
	}
	if _, ok := payload["triggeredBy"]; !ok {
		payload["triggeredBy"] = "schedule"
	}
	if _, ok := payload["scheduledAt"]; !ok {
		payload["scheduledAt"] = time.Now().UTC().Format(time.RFC3339)
	}

	run, err := h.dispatch.Dispatch(c.Request.Context(), nil, zapID, payload)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrQuotaExceeded):
			// Dispatch already tore the schedule down; acknowledge so the
			// scheduler stops retrying this delivery.
			c.JSON(http.StatusOK, gin.H{
				"success": false,
				"message": "Run limit reached, schedule cancelled",
			})
		case errors.Is(err, services.ErrZapInactive):
			c.JSON(http.StatusOK, gin.H{
				"success": false,
				"message": "Zap is not active",
			})
		case errors.Is(err, services.ErrZapNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Zap not found"})
		default:
			h.logger.Errorf("cron dispatch failed for zap %s: %v", zapID, err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "Failed to process schedule callback",
				Message: err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"zapRunId": run.ID,
	})
}

// HandleCancel handles DELETE /cron/:zapId, the internal teardown hook used
// when a schedule must die without a user in the loop.
func (h *CronHandler) HandleCancel(c *gin.Context) {
	zapID := c.Param("zapId")
	h.lifecycle.CancelScheduleBestEffort(c.Request.Context(), zapID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RegisterCronRoutes mounts the scheduler callback surface.
func RegisterCronRoutes(rg *gin.RouterGroup, h *CronHandler) {
	rg.POST("/cron/:zapId", h.HandleFire)
	rg.DELETE("/cron/:zapId", h.HandleCancel)
}
