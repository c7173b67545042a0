package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/feldbach-gym/keyboard-loan-api/internal/service"
)

// actorFrom identifies the caller for audit purposes. There is no user
// management; the frontend sends a display name in X-Actor.
func actorFrom(c *gin.Context) service.Actor {
	return service.Actor{
		UserID:    c.GetHeader("X-Actor"),
		IPAddress: c.ClientIP(),
	}
}
