package handlers

import (
	"net/http"

	"flowforge/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CatalogHandler serves the available trigger/action type tables.
type CatalogHandler struct {
	catalog *services.CatalogService
	logger  *logrus.Logger
}

func NewCatalogHandler(catalog *services.CatalogService, logger *logrus.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// ListAvailableTriggers handles GET /triggers/available.
func (h *CatalogHandler) ListAvailableTriggers(c *gin.Context) {
	triggers, err := h.catalog.AvailableTriggers(c.Request.Context())
	if err != nil {
		h.logger.Errorf("list available triggers: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list triggers",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"availableTriggers": triggers})
}

// ListAvailableActions handles GET /actions/available.
func (h *CatalogHandler) ListAvailableActions(c *gin.Context) {
	actions, err := h.catalog.AvailableActions(c.Request.Context())
	if err != nil {
		h.logger.Errorf("list available actions: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list actions",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"availableActions": actions})
}

// RegisterCatalogRoutes mounts the catalog read surface.
func RegisterCatalogRoutes(rg *gin.RouterGroup, h *CatalogHandler) {
	rg.GET("/triggers/available", h.ListAvailableTriggers)
	rg.GET("/actions/available", h.ListAvailableActions)
}
