// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "kindred/docs" // swagger docs
	"kindred/internal/config"
	"kindred/internal/featureflags"
	"kindred/internal/hostscript"
	"kindred/internal/media"
	"kindred/internal/middleware"
	"kindred/internal/models"
	"kindred/internal/notifications"
	"kindred/internal/push"
	"kindred/internal/repository"
	"kindred/internal/rtc"
	"kindred/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// wireableHub is implemented by every WebSocket hub that can be wired to
// Redis pub/sub and gracefully shut down.
type wireableHub interface {
	Name() string
	Shutdown(ctx context.Context) error
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	notifier *notifications.Notifier
	presence *notifications.ConnectionManager
	userHub  *notifications.Hub
	roomHub  *notifications.RoomHub
	broker   *notifications.Broker
	hubs     []wireableHub

	featureFlags *featureflags.Manager
	stageTimer   *service.AfterFuncTimer

	swipeService      *service.SwipeService
	matchService      *service.MatchService
	hostService       *service.HostService
	moderationService *service.ModerationService
	chatService       *service.ChatService
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	middleware.InitMiddleware(cfg)
	middleware.SetTicketStore(redisClient)

	content, err := loadHostContent(cfg)
	if err != nil {
		return nil, err
	}

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("kindred-api"),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		stageTimer:     service.NewAfterFuncTimer(),
	}

	server.notifier = notifications.NewNotifier(redisClient)
	server.presence = notifications.NewConnectionManager(redisClient)
	server.userHub = notifications.NewHub(server.presence)
	server.roomHub = notifications.NewRoomHub()
	server.broker = notifications.NewBroker(server.notifier, server.userHub, server.roomHub)
	server.hubs = []wireableHub{server.userHub, server.roomHub}

	var minter rtc.Minter
	if m, err := rtc.NewJWTMinter(cfg.RTCAppID, cfg.RTCSecret, cfg.RTCTokenTTL()); err == nil {
		minter = m
	} else {
		middleware.Logger.Warn("call tokens disabled", slog.String("error", err.Error()))
	}
	store := media.NewLocalStore(cfg.MediaDir, cfg.MediaBaseURL, cfg.MediaMaxUploadMB)
	pusher := push.NewSender(redisClient)

	userRepo := repository.NewUserRepository(db)
	swipeRepo := repository.NewSwipeRepository(db)
	matchRepo := repository.NewMatchRepository(db)
	hostRepo := repository.NewHostRepository(db)
	reportRepo := repository.NewReportRepository(db)

	server.matchService = service.NewMatchService(matchRepo, swipeRepo, userRepo, hostRepo, server.broker, server.broker, pusher, minter)
	server.swipeService = service.NewSwipeService(swipeRepo, userRepo, reportRepo, server.matchService)
	server.hostService = service.NewHostService(hostRepo, matchRepo, content, server.broker, server.broker, pusher,
		server.stageTimer, cfg.HostDwell())
	server.moderationService = service.NewModerationService(db, matchRepo, swipeRepo, reportRepo,
		userRepo, store, server.broker, server.broker)
	server.chatService = service.NewChatService(repository.NewChatRepository(db), matchRepo, store, server.broker)

	return server, nil
}

func loadHostContent(cfg *config.Config) (hostscript.Provider, error) {
	script, err := hostscript.Default()
	if cfg.HostScriptPath != "" {
		script, err = hostscript.LoadFile(cfg.HostScriptPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load host script: %w", err)
	}
	return hostscript.NewLibrary(script, hostscript.RandomPicker{}, cfg.HostReactionPercent), nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return models.RespondWithError(c, fiber.StatusTooManyRequests,
				models.NewRateLimitError("Too many requests, please try again later."))
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/swagger/*", swagger.HandlerDefault)

	if s.config.MediaDir != "" {
		app.Static("/media", s.config.MediaDir)
	}

	auth := middleware.AuthRequired
	api.Get("/feature-flags", auth, s.GetFeatureFlags)

	// Swipe ledger
	api.Post("/swipes", auth, middleware.RateLimit(s.redis, 120, time.Minute, "swipe"), s.Swipe)
	api.Delete("/swipes", auth, s.ResetSwipes)
	api.Get("/candidates", auth, s.GetCandidates)

	// Reports raised outside a match
	api.Post("/reports", auth, middleware.RateLimit(s.redis, 10, time.Hour, "report"), s.ReportUser)

	// Matches; specific /:id/:resource routes before the generic /:id route
	matches := api.Group("/matches", auth)
	matches.Get("/", s.ListMatches)
	matches.Get("/:id/messages", s.GetMessages)
	matches.Post("/:id/messages", middleware.RateLimit(s.redis, 30, time.Minute, "send_chat"), s.SendMessage)
	matches.Post("/:id/report", middleware.RateLimit(s.redis, 10, time.Hour, "report"), s.ReportMatch)
	matches.Post("/:id/call-token", s.CallToken)
	matches.Delete("/:id", s.Unmatch)

	// Host session
	host := matches.Group("/:id/host", s.requireFeature(featureflags.HostEngine))
	host.Get("/", s.GetHostSession)
	host.Get("/messages", s.GetHostMessages)
	host.Post("/opt-in", middleware.RateLimit(s.redis, 10, time.Minute, "host_opt_in"), s.HostOptIn)
	host.Post("/opt-out", s.HostOptOut)
	host.Post("/answer", middleware.RateLimit(s.redis, 30, time.Minute, "host_answer"), s.HostAnswer)
	host.Post("/exit", s.HostExit)
	host.Post("/nudge", s.HostNudge)

	// WebSocket ticket issuance and streams. Streams authenticate with a
	// ticket or token query parameter since browsers cannot set headers.
	ws := api.Group("/ws")
	ws.Post("/ticket", auth, s.IssueWSTicket)
	ws.Get("/", middleware.WebSocketAuthRequired, s.requireUpgrade, s.UserStreamHandler())
	ws.Get("/rooms/:id", middleware.WebSocketAuthRequired, s.requireUpgrade, s.roomAccess, s.RoomStreamHandler())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports DB and Redis health. Redis is optional, so its
// absence does not fail readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start builds the app, wires the realtime broker and listens.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName:   "Kindred API",
		BodyLimit: 12 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return s.respondError(c, err)
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	if err := s.broker.Start(s.shutdownCtx); err != nil {
		middleware.Logger.Error("realtime wiring failed", slog.String("error", err.Error()))
	}

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	s.stageTimer.Stop()
	for _, h := range s.hubs {
		if err := h.Shutdown(ctx); err != nil {
			middleware.Logger.Error("error shutting down hub", slog.String("hub", h.Name()), slog.String("error", err.Error()))
		}
	}
	s.presence.Stop()

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}
	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
