package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key the middleware stores the resolved
// user id under.
const UserIDKey = "userID"

// RequireAuth rejects requests without a resolvable bearer token
// before any session state is touched.
func RequireAuth(tokens TokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		userID, err := tokens.Resolve(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, ErrInvalidToken) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth backend unavailable"})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}
