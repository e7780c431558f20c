package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"telemed-chat/internal/middleware"
	"telemed-chat/internal/observability"
	"telemed-chat/internal/telemetry"
	"telemed-chat/internal/ws"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, hub *ws.Hub, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		var userID *string
		if identity, ok := middleware.IdentityFromContext(c); ok {
			userID = &identity.UserID
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test",
			observability.RequestIDFromRequest(c.Request), userID)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/presence", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"presence": hub.Presence()})
	})
}
