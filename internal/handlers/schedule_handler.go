package handlers

import (
	"errors"
	"net/http"

	"flowforge/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ScheduleHandler is the user-facing schedule surface. Unlike the best-effort
// lifecycle reactions, these operations surface scheduler failures to the
// caller.
type ScheduleHandler struct {
	lifecycle *services.LifecycleService
	logger    *logrus.Logger
}

func NewScheduleHandler(lifecycle *services.LifecycleService, logger *logrus.Logger) *ScheduleHandler {
	return &ScheduleHandler{lifecycle: lifecycle, logger: logger}
}

type scheduleCreateRequest struct {
	ZapID string `json:"zapId" binding:"required"`
	Cron  string `json:"cron" binding:"required"`
}

// CreateSchedule handles POST /schedule.
func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}
	var req scheduleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	schedule, err := h.lifecycle.CreateSchedule(c.Request.Context(), userID, req.ZapID, req.Cron)
	if err != nil {
		if errors.Is(err, services.ErrZapNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Zap not found"})
			return
		}
		h.logger.Errorf("create schedule for zap %s: %v", req.ZapID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to create schedule",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"scheduleId": schedule.ScheduleID,
		"cron":       req.Cron,
	})
}

type scheduleDeleteRequest struct {
	ZapID string `json:"zapId"`
}

// DeleteSchedule handles DELETE /schedule with a {zapId} body and
// DELETE /schedule/:zapId.
func (h *ScheduleHandler) DeleteSchedule(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}
	zapID := c.Param("zapId")
	if zapID == "" {
		var req scheduleDeleteRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.ZapID == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid request body",
				Message: "zapId is required",
			})
			return
		}
		zapID = req.ZapID
	}

	existed, err := h.lifecycle.DeleteSchedule(c.Request.Context(), userID, zapID)
	if err != nil {
		if errors.Is(err, services.ErrZapNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Zap not found"})
			return
		}
		h.logger.Errorf("delete schedule for zap %s: %v", zapID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to delete schedule",
			Message: err.Error(),
		})
		return
	}
	if !existed {
		c.JSON(http.StatusOK, SuccessResponse{Message: "No schedule to delete"})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Schedule deleted"})
}

// GetSchedule handles GET /schedule?zapId= and GET /schedule/:zapId. A
// schedule the external service no longer knows about reads as absent rather
// than erroring.
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}
	zapID := c.Param("zapId")
	if zapID == "" {
		zapID = c.Query("zapId")
	}
	if zapID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request",
			Message: "zapId is required",
		})
		return
	}

	info, err := h.lifecycle.GetScheduleInfo(c.Request.Context(), userID, zapID)
	if err != nil {
		if errors.Is(err, services.ErrZapNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Zap not found"})
			return
		}
		h.logger.Errorf("get schedule for zap %s: %v", zapID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get schedule",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, info)
}

// RegisterScheduleRoutes mounts the schedule management surface.
func RegisterScheduleRoutes(rg *gin.RouterGroup, h *ScheduleHandler) {
	rg.POST("/schedule", h.CreateSchedule)
	rg.DELETE("/schedule", h.DeleteSchedule)
	rg.DELETE("/schedule/:zapId", h.DeleteSchedule)
	rg.GET("/schedule", h.GetSchedule)
	rg.GET("/schedule/:zapId", h.GetSchedule)
}
