package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SessionCookie is the cookie carrying the instance session JWT
const SessionCookie = "snipdrop_session"

// Middleware validates the instance session. It accepts either the session
// cookie set by the verify endpoint or an "Authorization: Bearer" header, so
// browser clients and scripted clients both work. A gate with no configured
// password lets everything through.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.Enabled() {
			c.Next()
			return
		}

		tokenString := ""
		if cookie, err := c.Cookie(SessionCookie); err == nil {
			tokenString = cookie
		}
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				tokenString = parts[1]
			}
		}
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		if _, err := ValidateSessionToken(tokenString); err != nil {
			if err == ErrExpiredToken {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has expired"})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			c.Abort()
			return
		}

		c.Next()
	}
}
