package handlers

import (
	"errors"
	"net/http"

	"flowforge/internal/models"
	"flowforge/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// WorkerHandler is the queue's delivery target: one POST per queued run.
// Action failures finalize the run as failed but still answer 200, because
// re-delivering an executed run buys nothing; only infrastructure errors
// return 5xx and trigger a queue retry.
type WorkerHandler struct {
	executor *services.RunExecutor
	logger   *logrus.Logger
}

func NewWorkerHandler(executor *services.RunExecutor, logger *logrus.Logger) *WorkerHandler {
	return &WorkerHandler{executor: executor, logger: logger}
}

type workerRequest struct {
	ZapRunID string `json:"zapRunId" binding:"required"`
}

// HandleWork handles POST /worker.
func (h *WorkerHandler) HandleWork(c *gin.Context) {
	var req workerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	status, err := h.executor.Execute(c.Request.Context(), req.ZapRunID)
	if err != nil {
		if errors.Is(err, services.ErrRunNotFound) {
			// There is no retry target; acknowledge so the queue drops it.
			h.logger.Warnf("worker: run %s not found, dropping delivery", req.ZapRunID)
			c.JSON(http.StatusOK, gin.H{
				"success": false,
				"message": "Run not found",
			})
			return
		}
		h.logger.Errorf("worker: run %s execution error: %v", req.ZapRunID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to execute run",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": status == models.RunStatusSuccess,
		"status":  status,
	})
}

// RegisterWorkerRoutes mounts the queue delivery target.
func RegisterWorkerRoutes(rg *gin.RouterGroup, h *WorkerHandler) {
	rg.POST("/worker", h.HandleWork)
}
