package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/CoachCoe/polkadot-sso-sub002/service"
)

// AuthMiddleware creates middleware that validates access tokens
func AuthMiddleware(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		v, err := tokens.VerifyToken(c.Request.Context(), token, service.TokenTypeAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
			return
		}
		if !v.Valid {
			if v.Err.Reason == "token_expired" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			return
		}

		c.Set("userAddress", v.Claims.Address)
		c.Set("clientID", v.Claims.ClientID)

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}
