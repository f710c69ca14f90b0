package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/repaircall/internal/auth"
	"github.com/vovakirdan/repaircall/internal/config"
)

// Deps are the parts of the client the control API drives and reports on.
// Only Calls is required.
type Deps struct {
	Calls         CallController
	Cues          CueController
	Elapsed       ElapsedClock
	History       CallHistory
	Notifications NotificationFeed
	Signaling     SignalingStats
}

// NewServer builds the control API server.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	limiter := newRateLimiter(cfg.ControlRateLimit, time.Minute)
	stop := make(chan struct{})
	limiter.startReset(stop)

	server := &stdhttp.Server{
		Addr:              cfg.ListenAddr,
		Handler:           NewRouter(deps, cfg, limiter, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	server.RegisterOnShutdown(func() { close(stop) })
	return server
}

// NewRouter wires the control routes. A nil limiter disables rate limiting.
func NewRouter(deps Deps, cfg *config.Config, limiter *rateLimiter, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	api := router.Group("/api")
	api.Use(RateLimitMiddleware(limiter, logger))
	if cfg.ControlSecret != "" {
		api.Use(AuthMiddleware(ControlJWTConfig(cfg), logger))
	}

	h := NewControlHandlers(deps, logger)
	api.GET("/call", h.GetCall)
	api.GET("/call/events", h.Events)
	api.POST("/call/start", h.Start)
	api.POST("/call/accept", h.Accept)
	api.POST("/call/end", h.End)
	api.POST("/call/mute", h.ToggleMute)
	api.POST("/call/hold", h.Hold)
	api.POST("/call/resume", h.Resume)
	api.POST("/audio/unlock", h.UnlockAudio)
	api.GET("/calls", h.ListCalls)
	api.GET("/notifications", h.ListNotifications)
	api.GET("/diagnostics", h.Diagnostics)

	return router
}

// ControlJWTConfig derives the control token settings from cfg.
func ControlJWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.ControlSecret),
		Issuer:   "repaircall",
		Audience: "control",
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
