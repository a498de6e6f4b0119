package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"eventhub-backend/config"
	"eventhub-backend/database"
	"eventhub-backend/internal/api"
	"eventhub-backend/internal/middleware"
	"eventhub-backend/internal/platform/logger"
	"eventhub-backend/internal/platform/metrics"
	"eventhub-backend/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logr, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, OutputFile: cfg.LogFile})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck
	logr.Info("starting EventHub API", zap.Stringer("config", cfg))

	db, err := database.Initialize(cfg.DatabaseURL, logr)
	if err != nil {
		logr.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(db, logr); err != nil {
		logr.Fatal("failed to run migrations", zap.Error(err))
	}

	var m *metrics.Manager
	if cfg.EnableMetrics {
		m = metrics.NewManager("eventhub")
	}

	// Event publishing is optional
	var events services.EventPublisher = services.NoopPublisher{}
	if cfg.NATSURL != "" {
		nc, err := services.NewNATSConnection(cfg.NATSURL, logr)
		if err != nil {
			logr.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer nc.Drain() //nolint:errcheck
		publisher, err := services.NewNATSPublisher(nc, cfg.NATSSubjectPrefix)
		if err != nil {
			logr.Fatal("failed to create NATS publisher", zap.Error(err))
		}
		events = publisher
	} else {
		logr.Info("NATS_URL not set, domain events are not published")
	}

	// Media uploads are optional
	var media services.MediaStore
	if cfg.MinioEndpoint != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		store, err := services.NewMinioMediaStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey,
			cfg.MinioBucket, cfg.MinioUseSSL, logr)
		cancel()
		if err != nil {
			logr.Fatal("failed to initialize media store", zap.Error(err))
		}
		media = store
	} else {
		logr.Info("MINIO_ENDPOINT not set, media uploads are disabled")
	}

	authService, err := services.NewAuthService(cfg.IdentityJWTPublicKey, cfg.IdentityJWTSecret, cfg.IdentityJWTIssuer)
	if err != nil {
		logr.Fatal("failed to initialize auth service", zap.Error(err))
	}

	var verifier *services.WebhookVerifier
	if cfg.IdentityWebhookSecret != "" {
		verifier, err = services.NewWebhookVerifier(cfg.IdentityWebhookSecret, cfg.WebhookTolerance)
		if err != nil {
			logr.Fatal("failed to initialize webhook verifier", zap.Error(err))
		}
	} else {
		logr.Warn("IDENTITY_WEBHOOK_SECRET not set, identity webhooks are rejected")
	}

	pricing := services.NewPricing(cfg.PlatformFeeRate)
	identityService := services.NewIdentityService(db, logr, m, events)

	wsService := services.NewWebSocketService(authService, logr, cfg.AllowedOrigins, cfg.AllowAllOrigins)
	defer wsService.Close()
	chatService := services.NewChatService(db, logr, m, wsService)
	wsService.AttachChat(chatService)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	securityConfig := middleware.DefaultSecurityConfig()
	securityConfig.MaxRequestSize = cfg.MaxFileSize + 1024*1024
	securityConfig.RateLimitRequests = cfg.RateLimitRequests
	securityConfig.RateLimitWindow = time.Duration(cfg.RateLimitWindow) * time.Second
	securityConfig.RequireHTTPS = cfg.IsProduction()

	router := api.SetupRouter(api.Dependencies{
		DB:              db,
		Log:             logr,
		Metrics:         m,
		Auth:            middleware.NewAuthMiddleware(authService, identityService, logr),
		Security:        securityConfig,
		AllowedOrigins:  cfg.AllowedOrigins,
		AllowAllOrigins: cfg.AllowAllOrigins,
		MaxFileSize:     cfg.MaxFileSize,
		Identity:        identityService,
		Webhooks:        verifier,
		Catalog:         services.NewCatalogService(db, logr, media, cfg.MaxFileSize),
		Favorites:       services.NewFavoriteService(db, logr, m),
		Cart:            services.NewCartService(db, logr, pricing),
		Bookings:        services.NewBookingService(db, logr, m, events, pricing),
		Chat:            chatService,
		WebSocket:       wsService,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
		// Add timeouts for better stability
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		logr.Info("EventHub API server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logr.Error("server forced to shutdown", zap.Error(err))
	}

	logr.Info("server shutdown complete")
}
