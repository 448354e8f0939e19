package handlers

import (
	"net/http"

	"flowforge/internal/metrics"
	"flowforge/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// StatsHandler serves liveness and the engine's counter snapshot.
type StatsHandler struct {
	db     *gorm.DB
	events *services.RunEventsHub
}

func NewStatsHandler(db *gorm.DB, events *services.RunEventsHub) *StatsHandler {
	return &StatsHandler{db: db, events: events}
}

// Health handles GET /health.
func (h *StatsHandler) Health(c *gin.Context) {
	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.Ping() != nil {
		dbStatus = "unavailable"
	}
	status := http.StatusOK
	if dbStatus != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":   "ok",
		"service":  "flowforge",
		"database": dbStatus,
	})
}

// GetStats handles GET /stats.
func (h *StatsHandler) GetStats(c *gin.Context) {
	accepted, rejected, byReason := metrics.DispatchSnapshot()
	succeeded, failed, actionOK, actionFail, actionSkipped := metrics.RunSnapshot()

	c.JSON(http.StatusOK, gin.H{
		"dispatch": gin.H{
			"accepted":           accepted,
			"rejected":           rejected,
			"rejected_by_reason": byReason,
		},
		"runs": gin.H{
			"succeeded": succeeded,
			"failed":    failed,
		},
		"actions": gin.H{
			"succeeded": actionOK,
			"failed":    actionFail,
			"skipped":   actionSkipped,
		},
		"websocket": gin.H{
			"clients": h.events.ClientCount(),
		},
	})
}

// RegisterStatsRoutes mounts the metrics snapshot under the API group.
func RegisterStatsRoutes(rg *gin.RouterGroup, h *StatsHandler) {
	rg.GET("/stats", h.GetStats)
}
