package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/storyhub/internal/config"
	"github.com/vovakirdan/storyhub/internal/core"
	"github.com/vovakirdan/storyhub/internal/metrics"
	"github.com/vovakirdan/storyhub/internal/store"
)

// NewServer builds the HTTP server: health, metrics, the WebSocket endpoint and the REST API.
// The WebSocket endpoint sits on the outer mux because gin's writer refuses to hijack
// a connection whose status line has already been written.
func NewServer(hub *core.Hub, comments store.CommentStore, cfg config.Config, m *metrics.Metrics, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	api := NewAPIHandlers(hub, comments, m, logger)

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	router.GET("/metrics", api.Metrics)

	authed := router.Group("/api", AuthMiddleware(hub, logger))
	authed.GET("/me", api.Me)
	authed.GET("/stories/:id/participants", api.Participants)
	authed.GET("/stories/:id/comments", api.Comments)
	authed.GET("/users/:id/presence", api.Presence)
	authed.POST("/notifications", RequireAdmin(), api.Notify)

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, cfg.MaxMessageBytes, cfg.RateLimit, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
