package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/driftchat/driftchat-server/internal/auth"
	"github.com/driftchat/driftchat-server/internal/config"
	"github.com/driftchat/driftchat-server/internal/store"
)

// NewServer builds the HTTP server: REST under /api, websocket at /ws.
func NewServer(cfg config.Config, authService *auth.Service, st store.Store, deps SessionDeps, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	api := NewAPIHandlers(authService, st, logger)
	friends := NewFriendHandlers(st, logger)
	requireAuth := AuthMiddleware(authService, logger)

	router.POST("/api/register", api.Register)
	router.POST("/api/login", api.Login)
	router.POST("/api/guest", api.Guest)

	authed := router.Group("/api", requireAuth)
	{
		authed.GET("/me", api.Me)
		authed.PUT("/profile", api.UpdateProfile)
		authed.GET("/messages/:user_id", api.Messages)

		authed.POST("/friends", friends.Add)
		authed.GET("/friends", friends.List)
		authed.POST("/friends/:user_id/accept", friends.Accept)
		authed.DELETE("/friends/:user_id", friends.Remove)
	}

	router.GET("/ws", requireAuth, NewWSHandler(deps))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
