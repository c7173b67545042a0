package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header carries the request ID to and from clients.
const Header = "X-Request-ID"

const ctxKey = "request_id"

// Middleware tags every request with an ID, reusing the one the client
// sent when present so frontend and server logs can be correlated.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(ctxKey, id)
		c.Writer.Header().Set(Header, id)

		c.Next()
	}
}

// Value returns the ID assigned to the current request, or "".
func Value(c *gin.Context) string {
	v, _ := c.Get(ctxKey)
	id, _ := v.(string)
	return id
}
