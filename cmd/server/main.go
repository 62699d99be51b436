// Package main runs the marketplace platform HTTP server with WebSocket
// relay and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meshmarket/backend/config"
	"github.com/meshmarket/backend/internal/analytics"
	"github.com/meshmarket/backend/internal/auth"
	"github.com/meshmarket/backend/internal/campaigns"
	"github.com/meshmarket/backend/internal/collab"
	"github.com/meshmarket/backend/internal/commission"
	"github.com/meshmarket/backend/internal/middleware"
	"github.com/meshmarket/backend/internal/realtime"
	"github.com/meshmarket/backend/internal/session"
	"github.com/meshmarket/backend/internal/tracking"
	"github.com/meshmarket/backend/internal/worker"
	"github.com/meshmarket/backend/pkg/database"
	"github.com/meshmarket/backend/pkg/queue"
	"github.com/meshmarket/backend/pkg/redis"
	"github.com/meshmarket/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	sessionStore := session.NewStore(cfg.Session.Secret, cfg.Session.CookieName, cfg.Session.TTL, cfg.Session.Secure, cfg.Session.SameSite)

	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Campaigns
	campaignRepo := campaigns.NewRepository(pool)
	campaignHandler := campaigns.NewHandler(campaignRepo)

	// Affiliate links (tracking code issuance + click redirect)
	linkRepo := tracking.NewRepository(pool)
	issuer := tracking.NewIssuer(linkRepo, cfg.Tracking.CodeLength, cfg.Tracking.MaxRetries, logger)
	linkHandler := tracking.NewHandler(linkRepo, issuer, sessionStore, logger)

	// Conversions (commission settlement via worker queue)
	conversionRepo := commission.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	conversionHandler := commission.NewHandler(conversionRepo, linkRepo, jobQueue, logger)

	// Collaboration sessions
	collabRepo := collab.NewRepository(pool)
	collabManager := collab.NewManager(collabRepo, hub, cfg.Collab.EmptyGracePeriod, logger)
	collabHandler := collab.NewHandler(collabManager, collabRepo)

	// Analytics
	analyticsHandler := analytics.NewHandler(pool)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(session.Middleware(sessionStore))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Public: click-through redirect and conversion recording
	router.GET("/r/:code", linkHandler.Redirect)
	router.POST("/conversions", conversionHandler.Record)

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Users (admin only)
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		// Campaigns
		api.GET("/campaigns", campaignHandler.ListMine)
		api.POST("/campaigns", middleware.RequireRole("admin", "affiliate"), campaignHandler.Create)
		api.GET("/campaigns/:id", campaignHandler.Get)
		api.GET("/campaigns/:id/analytics", analyticsHandler.ByCampaign)

		// Affiliate links
		api.POST("/links", middleware.RequireRole("admin", "affiliate"), linkHandler.CreateLink)
		api.GET("/links", linkHandler.ListLinks)
		api.DELETE("/links/:id", linkHandler.DeleteLink)
		api.GET("/links/:id/conversions", conversionHandler.ListByLink)
		api.GET("/analytics/links", analyticsHandler.ByAffiliate(middleware.UserID))

		// Collaboration sessions
		api.POST("/collab/sessions", collabHandler.Create)
		api.GET("/collab/sessions/:id", collabHandler.Get)
		api.POST("/collab/sessions/:id/join", collabHandler.Join)
		api.POST("/collab/sessions/:id/leave", collabHandler.Leave)
		api.POST("/collab/sessions/:id/end", collabHandler.End)
		api.PATCH("/collab/sessions/:id/workspace", collabHandler.UpdateWorkspace)
		api.GET("/collab/sessions/:id/attendance", collabHandler.Attendance)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", func(c *gin.Context) {
		realtime.ServeWs(hub, logger, jwtValidate)(c)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background reaper for empty collaboration sessions
	reaperCtx, reaperCancel := context.WithCancel(context.Background())
	defer reaperCancel()
	reaper := worker.NewCollabReaper(collabManager, cfg.Collab.ReapInterval, logger)
	go reaper.Run(reaperCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	reaperCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
