package handlers

import (
	"errors"
	"net/http"

	"flowforge/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RunHandler serves run history queries.
type RunHandler struct {
	zaps   *services.ZapService
	logger *logrus.Logger
}

func NewRunHandler(zaps *services.ZapService, logger *logrus.Logger) *RunHandler {
	return &RunHandler{zaps: zaps, logger: logger}
}

// ListRuns handles GET /runs?zapId=. Ownership of the zap is enforced; runs
// of somebody else's zap read as not found.
func (h *RunHandler) ListRuns(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}
	zapID := c.Query("zapId")
	if zapID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Missing zapId",
			Message: "zapId query parameter is required",
		})
		return
	}
	runs, err := h.zaps.ListRuns(c.Request.Context(), userID, zapID)
	if err != nil {
		if errors.Is(err, services.ErrZapNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Zap not found"})
			return
		}
		h.logger.Errorf("list runs for zap %s: %v", zapID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list runs",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// RegisterRunRoutes mounts the run history surface.
func RegisterRunRoutes(rg *gin.RouterGroup, h *RunHandler) {
	rg.GET("/runs", h.ListRuns)
}
