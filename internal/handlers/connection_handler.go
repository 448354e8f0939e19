package handlers

import (
	"net/http"

	"flowforge/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ConnectionHandler exposes the credential store. Token values never leave
// the server; the model hides them from serialization.
type ConnectionHandler struct {
	connections *services.ConnectionService
	logger      *logrus.Logger
}

func NewConnectionHandler(connections *services.ConnectionService, logger *logrus.Logger) *ConnectionHandler {
	return &ConnectionHandler{connections: connections, logger: logger}
}

// ListConnections handles GET /connections.
func (h *ConnectionHandler) ListConnections(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}
	list, err := h.connections.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Errorf("list connections for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list connections",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": list})
}

// UpsertConnection handles POST /connections.
func (h *ConnectionHandler) UpsertConnection(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}
	var req services.ConnectionUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}
	conn, err := h.connections.Upsert(c.Request.Context(), userID, &req)
	if err != nil {
		h.logger.Errorf("upsert connection for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to save connection",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, conn)
}

// RegisterConnectionRoutes mounts the credential store surface.
func RegisterConnectionRoutes(rg *gin.RouterGroup, h *ConnectionHandler) {
	rg.GET("/connections", h.ListConnections)
	rg.POST("/connections", h.UpsertConnection)
}
