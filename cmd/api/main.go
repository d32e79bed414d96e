package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nextmind-ai/app-verification/internal/config"
	"github.com/nextmind-ai/app-verification/internal/handlers"
	"github.com/nextmind-ai/app-verification/internal/logging"
	"github.com/nextmind-ai/app-verification/internal/middleware"
	"github.com/nextmind-ai/app-verification/internal/observability"
	"github.com/nextmind-ai/app-verification/internal/services"
	"github.com/nextmind-ai/app-verification/internal/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	_ "github.com/nextmind-ai/app-verification/docs"
)

// @title           Email Verification API
// @version         1.0
// @description     Issues, delivers and validates single-use email verification challenges. A challenge carries a link token and a six digit code, expires after a fixed lifetime and tolerates a bounded number of wrong guesses.

// @contact.name   API Support
// @contact.email  support@nextmind-ai.com

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// @tag.name email-verification
// @tag.description Email verification challenges

// @tag.name health
// @tag.description Health check operations

func main() {
	// Initialize logger first
	if err := logging.InitLogger(); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = logging.Logger.Sync() }()

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logging.Logger.Fatal("failed to load config", zap.Error(err))
	}
	cfg := config.AppConfig

	// Initialize observability
	if err := observability.InitTracer(context.Background()); err != nil {
		logging.Logger.Error("failed to initialize tracer", zap.Error(err))
	}
	defer observability.ShutdownTracer()

	// Storage
	var (
		store    services.ChallengeStore
		accounts services.AccountDirectory
		auditor  *utils.AuditWorker
	)
	health := handlers.NewHealthHandler()

	switch cfg.StorageBackend {
	case "memory":
		logging.Logger.Warn("using in-memory storage, challenges do not survive restarts")
		store = services.NewMemoryChallengeStore()
		accounts = services.NewMemoryAccountDirectory()
	default:
		if err := config.InitMongoDB(); err != nil {
			logging.Logger.Fatal("failed to initialize MongoDB", zap.Error(err))
		}
		store = services.NewMongoChallengeStore(config.MongoDB.Collection(cfg.VerificationCollection))
		accounts = services.NewMongoAccountDirectory(config.MongoDB.Collection(cfg.UsersCollection), logging.Logger)
		if cfg.AuditLogsEnabled {
			auditor = utils.NewAuditWorker(
				utils.NewMongoAuditWriter(config.MongoDB.Collection(cfg.AuditLogsCollection)),
				cfg.AuditWorkerCount,
				cfg.AuditBufferSize,
			)
		}
		health.AddCheck("mongodb", true, func(ctx context.Context) error {
			return config.MongoDB.Client().Ping(ctx, readpref.Primary())
		})
	}

	// Rate limiting
	var limiter services.RateLimiter
	memoryLimiter := services.NewMemoryRateLimiter()
	config.InitRedis()
	if config.Redis != nil {
		limiter = services.NewRedisRateLimiter(config.Redis, logging.Logger)
		health.AddCheck("redis", false, func(ctx context.Context) error {
			return config.Redis.Ping(ctx).Err()
		})
	} else {
		limiter = memoryLimiter
	}

	// Mail delivery
	mailer, err := services.NewMailerFromConfig(cfg, logging.Logger)
	if err != nil {
		logging.Logger.Fatal("failed to initialize mailer", zap.Error(err))
	}
	dispatch := services.NewDispatchQueue(mailer, cfg.DispatchWorkerCount, cfg.DispatchQueueSize, logging.Logger)
	health.AddCheck("mail_dispatch", false, func(context.Context) error {
		if !dispatch.IsHealthy() {
			return errors.New("dispatch queue is saturated")
		}
		return nil
	})

	registry := services.NewVerificationRegistry(store,
		services.WithChallengeTTL(cfg.VerificationTTL),
		services.WithMaxAttempts(cfg.VerificationMaxAttempts),
		services.WithLogger(logging.Logger),
	)

	// Background reaping
	reaper, err := services.NewReaper(registry, cfg.ReaperSchedule, logging.Logger)
	if err != nil {
		logging.Logger.Fatal("failed to initialize reaper", zap.Error(err))
	}
	reaper.AddTask("rate_limit_windows", func(context.Context) error {
		memoryLimiter.CleanupExpired()
		return nil
	})
	reaper.Start()

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AddAllowHeaders("Authorization", "X-Request-ID")
	corsConfig.AddExposeHeaders("X-Request-ID", "RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "Retry-After")

	// Create router with middleware
	router := gin.New()
	// X-Forwarded-For is honored only from these proxies
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logging.Logger.Fatal("invalid TRUSTED_PROXIES", zap.Error(err))
	}
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestTiming(),
		middleware.RequestLogger(),
		middleware.RequestTracker(),
		cors.New(corsConfig),
		middleware.AuditMiddleware(auditor),
	)

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	verification := handlers.NewEmailVerificationHandlers(registry, accounts, dispatch, logging.Logger, cfg.IsDevelopment())

	sendLimit := middleware.RateLimit(limiter, middleware.RateLimitRule{
		Name:    "send",
		Limit:   cfg.RateLimitSendMax,
		Window:  cfg.RateLimitSendWindow,
		Message: "Too many verification emails sent. Please try again later.",
	})
	verifyLimit := middleware.RateLimit(limiter, middleware.RateLimitRule{
		Name:    "verify",
		Limit:   cfg.RateLimitVerifyMax,
		Window:  cfg.RateLimitVerifyWindow,
		Message: "Too many verification attempts. Please try again later.",
	})

	api := router.Group("/api")
	api.Use(middleware.RateLimit(limiter, middleware.RateLimitRule{
		Name:    "global",
		Limit:   cfg.RateLimitGlobalMax,
		Window:  cfg.RateLimitGlobalWindow,
		Message: "Too many requests from this IP, please try again later.",
	}))
	{
		api.GET("/health", health.HealthCheck)

		ev := api.Group("/email-verification")
		ev.POST("/send", sendLimit, verification.SendVerification)
		ev.POST("/resend", sendLimit, verification.ResendVerification)
		ev.POST("/verify", verifyLimit, verification.VerifyEmail)
		ev.GET("/status/:token", verification.GetVerificationStatus)
		ev.DELETE("/cleanup",
			middleware.AuthMiddleware(cfg.JWTSecret),
			middleware.RequireAdmin(accounts, cfg.AdminPlan),
			verification.CleanupExpired,
		)
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Create server with timeouts
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logging.Logger.Info("starting server",
			zap.Int("port", cfg.Port),
			zap.String("environment", cfg.Environment),
			zap.String("storage", cfg.StorageBackend),
			zap.String("email_service", cfg.EmailService),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logging.Logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Logger.Error("server forced to shutdown", zap.Error(err))
	}

	reaper.Stop(ctx)
	dispatch.Stop()
	auditor.Stop()

	stats := dispatch.GetStats()
	logging.Logger.Info("background workers stopped",
		zap.Int64("mail_processed", stats.JobsProcessed),
		zap.Int64("mail_failed", stats.JobsFailed),
		zap.Any("audit", auditor.Stats()))

	if config.Redis != nil {
		if err := config.Redis.Close(); err != nil {
			logging.Logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if config.MongoDB != nil {
		if err := config.MongoDB.Client().Disconnect(ctx); err != nil {
			logging.Logger.Warn("failed to disconnect from MongoDB", zap.Error(err))
		}
	}

	logging.Logger.Info("server exited gracefully")
}
