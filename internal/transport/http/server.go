package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/bancho-server/internal/auth"
	"github.com/vovakirdan/bancho-server/internal/config"
	"github.com/vovakirdan/bancho-server/internal/core"
)

// NewServer builds the HTTP server: REST endpoints for account
// management plus the websocket endpoint carrying the game protocol.
func NewServer(srv *core.Server, authService *auth.Service, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	api := NewAPIHandlers(srv, authService, logger)
	throttle := ThrottleMiddleware(core.NewLimiter(10, cfg.ChatWindow))

	router.GET("/health", api.Health)
	router.POST("/api/v1/register", throttle, api.Register)
	router.POST("/api/v1/login", throttle, api.Login)
	router.GET("/api/v1/online", api.Online)

	ws := NewWSHandler(srv, authService, logger)
	router.GET("/ws", gin.WrapH(ws))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
