package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cvcreator-backend/internal/shared/server/respond"
)

// OwnerHeader carries the caller identity asserted by the upstream gateway.
const OwnerHeader = "X-Owner-Id"

const ownerIDKey = "ownerId"

const maxOwnerIDLen = 128

// OwnerIdentity copies the owner header into the request context. Requests without
// the header continue anonymously; malformed identities are rejected.
func OwnerIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(OwnerHeader))
		if raw == "" {
			c.Next()
			return
		}
		if len(raw) > maxOwnerIDLen || strings.ContainsAny(raw, "/:\\ \t") {
			respond.Error(c, http.StatusBadRequest, "invalid_owner", "owner identity is malformed", nil)
			return
		}
		c.Set(ownerIDKey, raw)
		c.Next()
	}
}

// RequireOwner rejects anonymous requests.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		if OwnerIDFromContext(c) == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing owner identity", nil)
			return
		}
		c.Next()
	}
}

// OwnerIDFromContext fetches the owner ID set by OwnerIdentity.
func OwnerIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(ownerIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
