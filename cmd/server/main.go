package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sustainflow-service/internal/domain/repository"
	"sustainflow-service/internal/infrastructure/config"
	"sustainflow-service/internal/infrastructure/oauth"
	"sustainflow-service/internal/infrastructure/persistence"
	"sustainflow-service/internal/infrastructure/router"
	"sustainflow-service/internal/interface/gmail"
	repo "sustainflow-service/internal/interface/repository"
	"sustainflow-service/internal/interface/rest"
	"sustainflow-service/internal/usecase"
	"sustainflow-service/pkg/logger"
	"sustainflow-service/pkg/metrics"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.NewLogger("info").Fatal("Failed to load config", "error", err)
	}

	log := logger.NewLogger(cfg.LogLevel)
	defer log.Sync()
	log.Info("Starting SustainFlow Service", "version", cfg.AppVersion)

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics("sustainflow", registry)

	// Set up MongoDB connection
	log.Info("Connecting to MongoDB")
	mongoClient, db, err := persistence.NewMongoClient(ctx, cfg.MongoURI, cfg.MongoDB, cfg.MongoUser, cfg.MongoPassword)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", "error", err)
	}

	// Points ledger
	log.Info("Connecting to PostgreSQL")
	gormDB, err := persistence.NewPostgresDB(cfg.PostgresURI)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", "error", err)
	}
	if err := repo.Migrate(gormDB); err != nil {
		log.Fatal("Failed to migrate points ledger", "error", err)
	}

	// Rate limiting
	var (
		redisClient *redis.Client
		limiter     repository.LimiterStore
	)
	if cfg.RedisAddr != "" {
		redisClient, err = persistence.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal("Failed to connect to Redis", "error", err)
		}
		limiter = repo.NewRedisLimiterStore(redisClient, "sustainflow:qr", cfg.QRRatePerMinute, cfg.QRRateBurst)
	} else {
		log.Warn("REDIS_ADDR not set, using in-process rate limiter")
		limiter = repo.NewMemoryLimiterStore(clock.WallClock, cfg.QRRatePerMinute, cfg.QRRateBurst)
	}

	// Set up repositories
	pickupRepository := repo.NewMongoPickupRepository(db)
	tokenRepository, err := repo.NewMongoQRTokenRepository(ctx, db, clock.WallClock, cfg.QRTokenTTL)
	if err != nil {
		log.Fatal("Failed to set up QR token store", "error", err)
	}
	notificationRepository := repo.NewMongoNotificationRepository(db)
	userRepository := repo.NewMongoUserRepository(db)
	pointsRepository := repo.NewGormPointsRepository(gormDB)

	// Notification channels
	var channels []repository.Channel
	if cfg.GmailEnabled() {
		gmailOAuth, err := oauth.NewGmailOAuth(oauth.Credentials{
			ClientID:     cfg.GmailClientID,
			ClientSecret: cfg.GmailClientSecret,
			RefreshToken: cfg.GmailRefreshToken,
		}, log)
		if err != nil {
			log.Fatal("Failed to configure Gmail OAuth", "error", err)
		}
		tokenSource, err := gmailOAuth.TokenSource(ctx)
		if err != nil {
			log.Fatal("Failed to configure Gmail OAuth", "error", err)
		}
		if err := gmailOAuth.Verify(ctx, tokenSource); err != nil {
			log.Fatal("Gmail credentials rejected", "error", err)
		}
		gmailService, err := gmail.NewGmailService(ctx, tokenSource, cfg.MailFrom, log)
		if err != nil {
			log.Fatal("Failed to create Gmail service", "error", err)
		}
		channels = append(channels, gmailService)
	}
	if cfg.WhatsAppEnabled() {
		whatsappRepository := repo.NewWhatsappRepository(cfg.WhatsAppServiceURL, cfg.WhatsAppToken, cfg.WhatsAppCompanyID, cfg.WhatsAppAgentID, log)
		channels = append(channels, repo.NewWhatsappChannel(whatsappRepository))
	}
	if len(channels) == 0 {
		log.Warn("No notification channel configured, events are only logged")
	}

	dispatcher := usecase.NewDispatcher(userRepository, notificationRepository, channels, usecase.TemplateRenderer{}, m, log)

	lifecycle := usecase.NewPickupLifecycle(
		pickupRepository,
		tokenRepository,
		pointsRepository,
		dispatcher,
		limiter,
		clock.WallClock,
		cfg.NotifyTimeout,
		m,
		log,
	)
	pointsService := usecase.NewPointsService(pointsRepository, log)

	// Start QR sweeper in a goroutine
	sweeper := usecase.NewQRSweeper(tokenRepository, clock.WallClock, cfg.QRSweepInterval, m, log)
	go sweeper.Run(ctx)

	handler := router.NewRouter(router.Options{
		Handler:        rest.NewHandler(lifecycle, pointsService, log),
		Validator:      rest.NewJWTValidator(cfg.JWTSecret),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSOrigins:    cfg.CORSOrigins,
		Logger:         log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start HTTP server in a goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("Received signal", "signal", sig)

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	cancel() // Cancel the context to stop the sweeper

	// Let in-flight notifications and point credits finish
	lifecycle.Wait()

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("Redis close error", "error", err)
		}
	}

	if err := persistence.ClosePostgresDB(gormDB); err != nil {
		log.Error("PostgreSQL close error", "error", err)
	}

	// Disconnect from MongoDB
	if err := mongoClient.Disconnect(shutdownCtx); err != nil {
		log.Error("MongoDB disconnect error", "error", err)
	}

	log.Info("SustainFlow Service stopped")
}
