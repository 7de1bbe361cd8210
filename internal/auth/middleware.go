package auth

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// RequireAuth is a middleware that ensures the user is authenticated
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID, ok := session.Get(SessionUserID).(uint)

		if !ok || userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required", "kind": "unauthorized"})
			return
		}

		// User is authenticated - set context values for downstream handlers
		c.Set(SessionUserID, userID)
		c.Set(SessionUserEmail, session.Get(SessionUserEmail))

		c.Next()
	}
}

// UserID returns the authenticated user's id set by RequireAuth.
func UserID(c *gin.Context) uint {
	id, _ := c.Get(SessionUserID)
	uid, _ := id.(uint)
	return uid
}
