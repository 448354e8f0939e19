package handlers

import "github.com/gin-gonic/gin"

// ErrorResponse is the error body shape shared by all handlers.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// SuccessResponse is the generic success body for mutations without a richer
// payload.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// currentUserID pulls the authenticated user id the auth middleware stored on
// the context. The bool is false on unauthenticated routes.
func currentUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}
