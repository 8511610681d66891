package api

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/timecapsule-backend/internal/api/handlers"
	"github.com/welldanyogia/timecapsule-backend/internal/api/middleware"
	"github.com/welldanyogia/timecapsule-backend/internal/logger"
	"github.com/welldanyogia/timecapsule-backend/internal/repository"
	"github.com/welldanyogia/timecapsule-backend/internal/services"
	"github.com/welldanyogia/timecapsule-backend/internal/websocket"
	"gorm.io/gorm"
)

const (
	defaultRateLimit  = 10.0
	defaultRateBurst  = 20
	defaultDailyLimit = 5
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	DB             *gorm.DB
	Logger         *slog.Logger
	SecurityLogger *logger.SecurityLogger
	Hub            *websocket.Hub
	Scheduler      *services.DeliveryScheduler
	Clock          services.Clock

	// Security configuration
	APIKey            string // empty disables API key authentication
	AllowedOrigins    string // comma separated, shared by CORS and the WebSocket upgrader
	Production        bool
	RateLimit         float64 // requests per second per IP
	RateBurst         int
	MessageDailyLimit int // message creations per IP per day
}

// NewRouter creates and configures the Echo router with all routes.
// Background sweeps owned by the router stop when ctx is cancelled.
func NewRouter(ctx context.Context, cfg *RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	secLogger := cfg.SecurityLogger
	if secLogger == nil {
		secLogger = logger.NewSecurityLoggerWithHandler(log.Handler())
	}

	rps, burst := cfg.RateLimit, cfg.RateBurst
	if rps <= 0 {
		rps, burst = defaultRateLimit, defaultRateBurst
	}

	// Middleware order matters: recover first, log last
	e.Use(middleware.Recover(log))
	e.Use(middleware.SecureHeaders())
	e.Use(middleware.SecureCORS(cfg.AllowedOrigins, cfg.Production))
	e.Use(middleware.RateLimiter(ctx, rps, burst, secLogger))
	e.Use(middleware.RequestLogger(log))

	// Repositories
	accountRepo := repository.NewAccountRepository(cfg.DB)
	messageRepo := repository.NewMessageRepository(cfg.DB)
	activityRepo := repository.NewActivityRepository(cfg.DB)

	// Handlers
	var scheduler handlers.RunningChecker
	if cfg.Scheduler != nil {
		scheduler = cfg.Scheduler
	}
	healthHandler := handlers.NewHealthHandler(cfg.DB, scheduler)
	accountHandler := handlers.NewAccountHandler(accountRepo)
	messageHandler := handlers.NewMessageHandler(messageRepo, activityRepo, cfg.Clock, log)
	activityHandler := handlers.NewActivityHandler(activityRepo)

	apiKey := middleware.APIKeyAuth(cfg.APIKey, secLogger)
	identity := middleware.UserIdentity(accountRepo, secLogger)

	// Health routes (no auth required)
	e.GET("/health", healthHandler.Health)
	e.GET("/ready", healthHandler.Ready)

	api := e.Group("/api", apiKey)

	// Account routes
	api.POST("/accounts", accountHandler.Create)
	api.GET("/accounts/me", accountHandler.Me, identity)

	// Message routes
	daily := cfg.MessageDailyLimit
	if daily <= 0 {
		daily = defaultDailyLimit
	}
	dailyLimit := middleware.DailyLimit(ctx, daily, secLogger)
	api.POST("/messages", messageHandler.Create, identity, dailyLimit)
	api.GET("/messages/sent", messageHandler.ListSent, identity)
	api.GET("/messages/received", messageHandler.ListReceived, identity)
	api.GET("/messages/:id", messageHandler.Get, identity)

	// Activity routes
	api.GET("/activity", activityHandler.List, identity)

	// Scheduler routes (operator surface, API key only)
	if cfg.Scheduler != nil {
		schedulerHandler := handlers.NewSchedulerHandler(cfg.Scheduler)
		api.GET("/scheduler", schedulerHandler.Status)
		api.POST("/scheduler/run", schedulerHandler.Run,
			middleware.OperatorAudit("manual_delivery_trigger", secLogger))
	}

	// Live delivery feed
	if cfg.Hub != nil {
		upgrader := websocket.NewSecureUpgrader(cfg.AllowedOrigins, secLogger)
		wsHandler := handlers.NewWSHandler(cfg.Hub, upgrader, log)
		e.GET("/ws", wsHandler.Serve, apiKey, identity)
	}

	return e
}
