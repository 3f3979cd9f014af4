package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chalayga/meetsync-server/internal/auth"
	"github.com/chalayga/meetsync-server/internal/config"
	"github.com/chalayga/meetsync-server/internal/core"
	"github.com/chalayga/meetsync-server/internal/service/rooms"
	"github.com/chalayga/meetsync-server/internal/store"
)

// Deps bundles what the transport layer needs from the engine.
type Deps struct {
	Rooms      *rooms.Service
	Resolver   *core.Resolver
	Reconciler *core.Reconciler
	Store      store.RoomStore
	Channel    core.EventChannel
}

// NewServer builds the HTTP server: REST endpoints for the mobile
// client plus the websocket room feed.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	var jwtConfig *auth.JWTConfig
	if cfg.JWTSecret != "" {
		jwtConfig = &auth.JWTConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		}
	}

	handlers := NewRoomHandlers(deps.Rooms, deps.Resolver, deps.Reconciler, logger)

	api := router.Group("/api", IdentityMiddleware(jwtConfig, logger))
	api.POST("/meetups", handlers.CreateRoom)
	api.GET("/meetups", handlers.ListRooms)
	api.GET("/meetups/:id", handlers.GetRoom)
	api.GET("/meetups/code/:code", handlers.ResolveCode)
	api.POST("/meetups/:id/join", handlers.Vote)
	api.POST("/meetups/:id/lock", handlers.Lock)

	limiter := newConnLimiter(cfg.WSConnLimit)
	limiter.startReset(make(chan struct{}))

	sessionCfg := core.SessionConfig{
		FetchTimeout:      cfg.FetchTimeout,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectBackoff:  cfg.ReconnectBackoff,
	}
	ws := NewWSHandler(deps.Store, deps.Channel, deps.Reconciler, sessionCfg, jwtConfig, limiter, logger)
	router.GET("/ws/meetups/:id", ws.Serve)

	router.GET("/health", healthHandler)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
