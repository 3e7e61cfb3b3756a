// Package main runs the poplygo HTTP API with WebSocket fan-out and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/poplygo/backend/config"
	"github.com/poplygo/backend/internal/auth"
	"github.com/poplygo/backend/internal/feedback"
	"github.com/poplygo/backend/internal/metrics"
	"github.com/poplygo/backend/internal/middleware"
	"github.com/poplygo/backend/internal/polls"
	"github.com/poplygo/backend/internal/questions"
	"github.com/poplygo/backend/internal/realtime"
	"github.com/poplygo/backend/internal/sessions"
	"github.com/poplygo/backend/pkg/database"
	"github.com/poplygo/backend/pkg/queue"
	"github.com/poplygo/backend/pkg/redis"
	"github.com/poplygo/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
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

	metrics.Register()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Sessions
	sessionRepo := sessions.NewRepository(pool)
	sessionHandler := sessions.NewHandler(sessionRepo, jwtService, hub, logger)

	// Questions
	questionRepo := questions.NewRepository(pool)
	questionHandler := questions.NewHandler(questionRepo, sessionRepo, hub)

	// Polls
	pollRepo := polls.NewRepository(pool)
	pollHandler := polls.NewHandler(pollRepo, sessionRepo, hub)

	// Feedback
	feedbackRepo := feedback.NewRepository(pool)
	feedbackHandler := feedback.NewHandler(feedbackRepo, jobQueue, logger)

	jwtValidate := func(token string) (sessionID uuid.UUID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, "", err
		}
		return claims.SessionID, claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics())

	// Health and metrics
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	router.POST("/api/sessions", sessionHandler.Create)
	router.POST("/api/sessions/join", sessionHandler.Join)
	router.POST("/api/sessions/:code/host-token", sessionHandler.HostToken)
	router.GET("/api/sessions/:code", sessionHandler.Get)
	router.GET("/api/sessions/:code/questions", questionHandler.List)
	router.POST("/api/feedback", feedbackHandler.Submit)

	// Session-token protected
	api := router.Group("/api")
	api.Use(middleware.JWT(jwtService))
	{
		// Sessions (host)
		api.POST("/sessions/:code/end", middleware.RequireRole(auth.RoleHost), sessionHandler.End)
		api.PATCH("/sessions/:code/qa", middleware.RequireRole(auth.RoleHost), sessionHandler.SetQA)
		api.PUT("/sessions/:code/announcement", middleware.RequireRole(auth.RoleHost), sessionHandler.SetAnnouncement)

		// Questions
		api.POST("/sessions/:code/questions", middleware.RequireRole(auth.RoleParticipant), questionHandler.Submit)
		api.POST("/questions/:id/upvote", middleware.RequireRole(auth.RoleParticipant), questionHandler.Upvote)
		api.DELETE("/questions/:id/upvote", middleware.RequireRole(auth.RoleParticipant), questionHandler.RemoveUpvote)
		api.PATCH("/questions/:id/answered", middleware.RequireRole(auth.RoleHost), questionHandler.ToggleAnswered)
		api.PATCH("/questions/:id/starred", middleware.RequireRole(auth.RoleHost), questionHandler.ToggleStarred)
		api.DELETE("/questions/:id", middleware.RequireRole(auth.RoleHost), questionHandler.Delete)
		api.POST("/sessions/:code/questions/clear", middleware.RequireRole(auth.RoleHost), questionHandler.Clear)

		// Polls
		api.POST("/sessions/:code/polls", middleware.RequireRole(auth.RoleHost), pollHandler.Create)
		api.GET("/sessions/:code/polls", pollHandler.List)
		api.POST("/polls/:id/votes", middleware.RequireRole(auth.RoleParticipant), pollHandler.Vote)
		api.DELETE("/polls/:id/votes/:optionID", middleware.RequireRole(auth.RoleParticipant), pollHandler.RemoveVote)
		api.POST("/polls/:id/close", middleware.RequireRole(auth.RoleHost), pollHandler.Close)
		api.PATCH("/polls/:id/results-visibility", middleware.RequireRole(auth.RoleHost), pollHandler.ToggleResults)
		api.PATCH("/polls/:id/correct-option", middleware.RequireRole(auth.RoleHost), pollHandler.SetCorrectOption)
		api.DELETE("/polls/:id", middleware.RequireRole(auth.RoleHost), pollHandler.Delete)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

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
