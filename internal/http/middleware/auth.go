// README: Bearer-token auth middleware resolving the caller uid through the token verifier.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wayfarer/internal/infra"
)

const ctxKeyUID = "caller_uid"

// Auth requires a valid bearer token and stores the caller uid on the context.
// A nil verifier disables authentication; requests then run anonymously.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		id, err := verifier.Verify(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil || id == nil || id.UID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxKeyUID, id.UID)
		c.Next()
	}
}

// CallerUID returns the authenticated uid, or "" for anonymous requests.
func CallerUID(c *gin.Context) string {
	return c.GetString(ctxKeyUID)
}
