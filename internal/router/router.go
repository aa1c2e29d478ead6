package router

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "focusflow/internal/errors"
	"focusflow/internal/handler"
	"focusflow/internal/middleware"
	"focusflow/internal/service"
)

func New(
	logger *slog.Logger,
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	sessionHandler *handler.SessionHandler,
	corsOrigins []string,
) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.RequestLogger(logger), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, apperrors.NotFound("route_not_found", "no such endpoint").Envelope())
	})

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.GET("/me", middleware.Auth(authService), authHandler.Me)

	// Finalize is registered outside the header-only group so an unload
	// beacon can authenticate through the query string.
	api.POST("/sessions/:id/finalize", middleware.BeaconAuth(authService), sessionHandler.Finalize)

	sessions := api.Group("/sessions")
	sessions.Use(middleware.Auth(authService))
	sessions.POST("", sessionHandler.Create)
	sessions.GET("", sessionHandler.List)
	sessions.GET("/:id", sessionHandler.Get)
	sessions.PATCH("/:id", sessionHandler.Update)
	sessions.DELETE("/:id", sessionHandler.Delete)

	return engine
}
