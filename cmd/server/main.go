package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/driftline/backend/internal/alerts"
	"github.com/driftline/backend/internal/auth"
	"github.com/driftline/backend/internal/cache"
	"github.com/driftline/backend/internal/chat"
	"github.com/driftline/backend/internal/container"
	"github.com/driftline/backend/internal/database"
	"github.com/driftline/backend/internal/handlers"
	"github.com/driftline/backend/internal/logger"
	"github.com/driftline/backend/internal/metrics"
	"github.com/driftline/backend/internal/middleware"
	"github.com/driftline/backend/internal/storage"
	"github.com/driftline/backend/internal/telemetry"
	"github.com/driftline/backend/internal/timeline"
	"github.com/driftline/backend/internal/validation"
	"github.com/driftline/backend/internal/websocket"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	// Initialize structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	if err := logger.Initialize(logLevel, os.Getenv("LOG_FILE")); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Log.Info("=== Driftline server starting ===")

	// Initialize tracing (no-op when TELEMETRY_ENABLED is unset)
	samplingRate := 1.0
	if v := os.Getenv("TELEMETRY_SAMPLING_RATE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			samplingRate = parsed
		}
	}
	tracerProvider, err := telemetry.InitTracer(telemetry.Config{
		ServiceName:  "driftline-backend",
		Environment:  os.Getenv("ENVIRONMENT"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		Enabled:      os.Getenv("TELEMETRY_ENABLED") == "true",
		SamplingRate: samplingRate,
	})
	if err != nil {
		logger.Log.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
	}

	// Initialize Prometheus registry
	metrics.Initialize()

	// Initialize database
	if err := database.Initialize(); err != nil {
		logger.FatalWithFields("Failed to initialize database", err)
	}

	// Run migrations
	if err := database.Migrate(); err != nil {
		logger.FatalWithFields("Failed to run migrations", err)
	}

	// Initialize Redis (optional; dedup and caching degrade without it)
	redisClient, err := cache.NewRedisClient(
		os.Getenv("REDIS_HOST"),
		os.Getenv("REDIS_PORT"),
		os.Getenv("REDIS_PASSWORD"),
	)
	if err != nil {
		logger.Log.Warn("Redis unavailable, send deduplication and response caching disabled", zap.Error(err))
		redisClient = nil
	}

	// Initialize auth service
	jwtSecret := []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		logger.Log.Fatal("JWT_SECRET environment variable is required")
	}
	authService := auth.NewService(jwtSecret)

	// Initialize S3 uploader (optional; avatar and attachment uploads 503 without it)
	var s3Uploader *storage.S3Uploader
	if os.Getenv("AWS_BUCKET") != "" {
		s3Uploader, err = storage.NewS3Uploader(
			os.Getenv("AWS_REGION"),
			os.Getenv("AWS_BUCKET"),
			os.Getenv("CDN_BASE_URL"),
		)
		if err != nil {
			logger.Log.Warn("Failed to initialize S3 uploader, uploads disabled", zap.Error(err))
			s3Uploader = nil
		} else if err := s3Uploader.CheckBucketAccess(context.Background()); err != nil {
			logger.Log.Warn("S3 bucket access failed, uploads may not work", zap.Error(err))
		}
	}

	// Fail fast when required services are down
	if err := validation.NewServiceValidator().ValidateServices(context.Background()); err != nil {
		logger.FatalWithFields("Service validation failed", err)
	}

	// Initialize domain services
	chatService := chat.NewService()
	timelineService := timeline.NewService()

	// Initialize WebSocket hub and managers
	wsHub := websocket.NewHub()
	wsHandler := websocket.NewHandler(wsHub, authService)

	presenceManager := websocket.NewPresenceManager(wsHub, websocket.DefaultPresenceConfig())
	wsHandler.SetPresenceManager(presenceManager)
	presenceManager.Start()

	typingManager := websocket.NewTypingManager(wsHub)
	typingManager.Start()
	wsHandler.SetTypingManager(typingManager)

	chatManager := websocket.NewChatManager(wsHub, chatService, typingManager)
	chatManager.Start()
	wsHandler.SetChatManager(chatManager)

	go wsHub.Run()

	// Alerting on realtime health, fed from hub counters
	alertManager := alerts.NewAlertManager()
	alertEvaluator := alerts.NewEvaluator(alertManager, func() map[string]interface{} {
		snapshot := wsHub.GetMetrics()
		return map[string]interface{}{
			"errors":              snapshot.Errors,
			"messages_received":   snapshot.MessagesReceived,
			"connections_dropped": snapshot.ConnectionsDropped,
			"active_connections":  snapshot.ActiveConnections,
		}
	})
	alertEvaluator.InitializeDefaultRules()
	alertStop := alertEvaluator.StartEvaluationLoop(30 * time.Second)

	// Wire everything into the container for lifecycle management
	deps := container.New().
		WithDB(database.DB).
		WithLogger(logger.Log).
		WithCache(redisClient).
		WithS3Uploader(s3Uploader).
		WithAuthService(authService).
		WithChatService(chatService).
		WithTimelineService(timelineService).
		WithWebSocketHandler(wsHandler).
		WithAlertManager(alertManager).
		WithAlertEvaluator(alertEvaluator)
	if err := deps.Validate(); err != nil {
		logger.FatalWithFields("Container validation failed", err)
	}

	deps.OnCleanup(func(ctx context.Context) error {
		close(alertStop)
		presenceManager.Stop()
		return nil
	})
	if redisClient != nil {
		deps.OnCleanup(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	if tracerProvider != nil {
		deps.OnCleanup(func(ctx context.Context) error {
			return tracerProvider.Shutdown(ctx)
		})
	}

	// Initialize handlers
	h := handlers.NewHandlers(authService, chatService)
	h.SetWebSocketHandler(wsHandler)
	h.SetTimelineService(timelineService)
	if s3Uploader != nil {
		h.SetUploader(s3Uploader)
	}

	// Setup Gin router
	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.CorrelationMiddleware())
	r.Use(middleware.TracingMiddleware("driftline-backend"))
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"} // Configure properly for production
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		status := "ok"
		httpStatus := http.StatusOK
		checks := gin.H{}

		if err := database.Health(); err != nil {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			checks["database"] = err.Error()
		} else {
			checks["database"] = "ok"
		}

		if redisClient != nil {
			if err := redisClient.Ping(c.Request.Context()); err != nil {
				status = "degraded"
				checks["redis"] = err.Error()
			} else {
				checks["redis"] = "ok"
			}
		} else {
			checks["redis"] = "disabled"
		}

		c.JSON(httpStatus, gin.H{
			"status":    status,
			"checks":    checks,
			"timestamp": time.Now().UTC(),
			"service":   "driftline-backend",
		})
	})

	// Prometheus scrape endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := r.Group("/api/v1")
	{
		// Authentication routes
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", middleware.RateLimitSmartAuth(), h.Register)
			authGroup.POST("/login", middleware.RateLimitSmartAuth(), h.Login)

			authGroup.Use(h.AuthMiddleware())
			authGroup.POST("/logout", h.Logout)
			authGroup.GET("/me", h.Me)
			authGroup.GET("/sessions", h.ListSessions)
			authGroup.DELETE("/sessions/:id", h.RevokeSession)
			authGroup.DELETE("/sessions", h.RevokeAllSessions)
		}

		// User routes
		users := api.Group("/users")
		{
			users.Use(h.AuthMiddleware())
			users.PATCH("/me", h.UpdateProfile)
			users.DELETE("/me", h.DeleteAccount)
			users.POST("/me/avatar", middleware.RateLimitSmartUpload(), h.UploadAvatar)
			users.POST("/me/deactivate", h.DeactivateAccount)
			users.GET("/me/blocked", h.ListBlocked)
			users.GET("/me/muted", h.ListMuted)

			users.GET("/:username", h.GetProfile)
			users.GET("/:username/posts", h.ListUserPosts)
			users.GET("/:username/followers", h.ListFollowers)
			users.GET("/:username/following", h.ListFollowing)
			users.POST("/:username/follow", h.FollowUser)
			users.DELETE("/:username/follow", h.UnfollowUser)
			users.POST("/:username/block", h.BlockUser)
			users.DELETE("/:username/block", h.UnblockUser)
			users.POST("/:username/mute", h.MuteUser)
			users.DELETE("/:username/mute", h.UnmuteUser)
		}

		// Post routes
		posts := api.Group("/posts")
		{
			posts.Use(h.AuthMiddleware())
			posts.POST("", h.CreatePost)
			posts.GET("/:id", h.GetPost)
			posts.DELETE("/:id", h.DeletePost)
			posts.POST("/:id/like", h.LikePost)
			posts.DELETE("/:id/like", h.UnlikePost)
			posts.POST("/:id/comments", h.CreateComment)
			posts.GET("/:id/comments", h.ListComments)
		}

		// Comment routes
		comments := api.Group("/comments")
		{
			comments.Use(h.AuthMiddleware())
			comments.GET("/:id/replies", h.ListReplies)
			comments.PATCH("/:id", h.UpdateComment)
			comments.DELETE("/:id", h.DeleteComment)
			comments.POST("/:id/report", h.ReportComment)
		}

		// Home feed
		api.GET("/feed", h.AuthMiddleware(), h.GetFeed)

		// Direct message routes
		messages := api.Group("/messages")
		{
			messages.Use(h.AuthMiddleware())
			messages.POST("", middleware.RateLimitSmartMessaging(), h.SendMessage)
			messages.DELETE("/:id", h.DeleteMessageForMe)
			messages.PUT("/:id/reaction", h.ReactToMessage)
			messages.DELETE("/:id/reaction", h.RemoveReaction)
		}

		// Conversation routes
		conversations := api.Group("/conversations")
		{
			conversations.Use(h.AuthMiddleware())
			conversations.GET("", h.ListConversations)
			conversations.GET("/unread", h.GetUnreadCounts)
			conversations.GET("/:id/messages", h.GetMessages)
			conversations.POST("/:id/read", h.MarkConversationRead)
			conversations.POST("/:id/archive", h.ArchiveConversation)
			conversations.DELETE("/:id/archive", h.UnarchiveConversation)
			conversations.POST("/:id/mute", h.MuteConversation)
			conversations.DELETE("/:id/mute", h.UnmuteConversation)
		}

		// Notification routes
		notifications := api.Group("/notifications")
		{
			notifications.Use(h.AuthMiddleware())
			notifications.GET("", h.ListNotifications)
			notifications.GET("/unread", h.GetUnreadNotificationCount)
			notifications.POST("/:id/read", h.MarkNotificationRead)
			notifications.POST("/read", h.MarkAllNotificationsRead)
			notifications.DELETE("/:id", h.DeleteNotification)
		}

		// Moderation routes
		admin := api.Group("/admin")
		{
			admin.Use(h.AuthMiddleware())

			reports := admin.Group("/reports")
			reports.Use(middleware.RequireModerator())
			{
				reports.GET("", h.ListReports)
				reports.POST("/:id/resolve", h.ResolveReport)
				reports.POST("/:id/dismiss", h.DismissReport)
			}

			adminUsers := admin.Group("/users")
			adminUsers.Use(middleware.RequireAdmin())
			{
				adminUsers.POST("/:username/ban", h.BanUser)
				adminUsers.DELETE("/:username/ban", h.UnbanUser)
				adminUsers.POST("/:username/suspend", h.SuspendUser)
				adminUsers.DELETE("/:username/suspend", h.UnsuspendUser)
			}
		}

		// WebSocket routes
		ws := api.Group("/ws")
		{
			// WebSocket connection endpoint - auth via query param ?token=... or Authorization header
			ws.GET("", wsHandler.HandleWebSocket)
			ws.GET("/connect", wsHandler.HandleWebSocket)

			// Realtime introspection (protected)
			ws.GET("/metrics", h.AuthMiddleware(), wsHandler.HandleMetrics)
			ws.POST("/online", h.AuthMiddleware(), wsHandler.HandleOnlineStatus)
			ws.POST("/presence", h.AuthMiddleware(), wsHandler.HandlePresenceStatus)
		}
	}

	// Server configuration
	port := os.Getenv("PORT")
	if port == "" {
		port = "8787"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info("Driftline backend listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithFields("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown WebSocket connections gracefully
	if err := wsHandler.Shutdown(ctx); err != nil {
		logger.Log.Warn("WebSocket shutdown warning", zap.Error(err))
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.FatalWithFields("Server forced to shutdown", err)
	}

	if err := deps.Cleanup(ctx); err != nil {
		logger.Log.Warn("Cleanup finished with errors", zap.Error(err))
	}

	logger.Log.Info("Server exited")
}
