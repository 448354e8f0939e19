package handlers

import (
	"errors"
	"net/http"

	"flowforge/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ZapHandler owns the authenticated zap CRUD surface.
type ZapHandler struct {
	zaps      *services.ZapService
	lifecycle *services.LifecycleService
	logger    *logrus.Logger
}

func NewZapHandler(zaps *services.ZapService, lifecycle *services.LifecycleService, logger *logrus.Logger) *ZapHandler {
	return &ZapHandler{zaps: zaps, lifecycle: lifecycle, logger: logger}
}

// ListZaps handles GET /zaps.
func (h *ZapHandler) ListZaps(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}
	zaps, err := h.zaps.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Errorf("list zaps for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list zaps",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"zaps": zaps})
}

// CreateZap handles POST /zaps.
func (h *ZapHandler) CreateZap(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}
	var req services.ZapCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}
	zap, err := h.zaps.Create(c.Request.Context(), userID, &req)
	if err != nil {
		h.logger.Errorf("create zap for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to create zap",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, zap)
}

// GetZap handles GET /zaps/:id.
func (h *ZapHandler) GetZap(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}
	zap, err := h.zaps.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrZapNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Zap not found"})
			return
		}
		h.logger.Errorf("get zap %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get zap",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, zap)
}

// UpdateZap handles PUT /zaps/:id.
func (h *ZapHandler) UpdateZap(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}
	var req services.ZapUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}
	zap, err := h.zaps.Update(c.Request.Context(), userID, c.Param("id"), &req)
	if err != nil {
		if errors.Is(err, services.ErrZapNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Zap not found"})
			return
		}
		h.logger.Errorf("update zap %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to update zap",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, zap)
}

// DeleteZap handles DELETE /zaps/:id.
func (h *ZapHandler) DeleteZap(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}
	if err := h.zaps.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		if errors.Is(err, services.ErrZapNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Zap not found"})
			return
		}
		h.logger.Errorf("delete zap %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to delete zap",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Zap deleted"})
}

type toggleRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// ToggleZap handles POST /zaps/:id/toggle. Toggling to the current state is a
// no-op that still answers 200.
func (h *ZapHandler) ToggleZap(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}
	zapID := c.Param("id")

	// Ownership gate; the lifecycle manager itself is owner-agnostic.
	if _, err := h.zaps.Get(c.Request.Context(), userID, zapID); err != nil {
		if errors.Is(err, services.ErrZapNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Zap not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to load zap",
			Message: err.Error(),
		})
		return
	}
	if err := h.lifecycle.Toggle(c.Request.Context(), zapID, *req.IsActive); err != nil {
		h.logger.Errorf("toggle zap %s: %v", zapID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to toggle zap",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": zapID, "is_active": *req.IsActive})
}

// ListZapRuns handles GET /zaps/:id/runs.
func (h *ZapHandler) ListZapRuns(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}
	runs, err := h.zaps.ListRuns(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrZapNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Zap not found"})
			return
		}
		h.logger.Errorf("list runs for zap %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list runs",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// RegisterZapRoutes mounts the zap CRUD surface.
func RegisterZapRoutes(rg *gin.RouterGroup, h *ZapHandler) {
	rg.GET("/zaps", h.ListZaps)
	rg.POST("/zaps", h.CreateZap)
	rg.GET("/zaps/:id", h.GetZap)
	rg.PUT("/zaps/:id", h.UpdateZap)
	rg.DELETE("/zaps/:id", h.DeleteZap)
	rg.POST("/zaps/:id/toggle", h.ToggleZap)
	rg.GET("/zaps/:id/runs", h.ListZapRuns)
}
