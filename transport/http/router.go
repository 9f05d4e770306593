package http

import (
	"github.com/gin-gonic/gin"

	"github.com/CoachCoe/polkadot-sso-sub002/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(challenges *service.ChallengeService, tokens *service.TokenService, audits *service.AuditService) *gin.Engine {
	router := gin.Default()

	handlers := NewHandlers(challenges, tokens, audits)

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.GET("/challenge", handlers.Challenge)
		auth.POST("/verify", handlers.Verify)
		auth.POST("/token", handlers.Token)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(tokens))
	{
		api.GET("/me", handlers.Me)
		api.GET("/authorize", handlers.Authorize)
		api.GET("/stats", handlers.Stats)
		api.GET("/audit", handlers.Audit)
	}

	return router
}
