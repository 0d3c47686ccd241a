package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"cvcreator-backend/internal/shared/server/respond"
	"cvcreator-backend/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 with the standard error body.
// Nothing is written when the handler already started the response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			telemetry.Error("http.panic", map[string]any{
				"request_id":  RequestIDFromContext(c),
				"owner_id":    OwnerIDFromContext(c),
				"document_id": c.GetString(DocumentIDKey),
				"route":       c.FullPath(),
				"method":      c.Request.Method,
				"error":       fmt.Sprint(rec),
				"stack":       string(debug.Stack()),
			})
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
			c.Abort()
		}()
		c.Next()
	}
}
