package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"ooh-import-service/internal/clients"
	"ooh-import-service/internal/config"
	"ooh-import-service/internal/events"
	"ooh-import-service/internal/handlers"
	"ooh-import-service/internal/middleware"
	"ooh-import-service/internal/models"
	"ooh-import-service/internal/repository"
	"ooh-import-service/internal/services"

	gosharedmw "github.com/Tesseract-Nexus/go-shared/middleware"
	"github.com/Tesseract-Nexus/go-shared/rbac"
	"github.com/Tesseract-Nexus/go-shared/tracing"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.ImportSessionRecord{},
		&models.Point{},
		&models.PointProduct{},
		&models.PointImage{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}
	entry := logrus.NewEntry(logger).WithField("service", "ooh-import-service")

	// Redis backs the session cache and the submission lock (optional)
	redisClient, err := config.InitRedis(context.Background(), cfg)
	if err != nil {
		log.Printf("Warning: %v (continuing without Redis)", err)
		redisClient = nil
	} else if redisClient != nil {
		log.Println("✓ Connected to Redis")
		defer redisClient.Close()
	}

	// NATS event publisher (optional - graceful degradation if NATS unavailable)
	var (
		publisher      events.Publisher
		eventPublisher *events.ImportEventPublisher
	)
	if cfg.NATSURL != "" {
		eventPublisher, err = events.NewImportEventPublisher(cfg.NATSURL, logger)
		if err != nil {
			log.Printf("Warning: Failed to initialize NATS event publisher: %v", err)
			log.Println("Continuing without event publishing...")
		} else {
			log.Println("✓ Connected to NATS JetStream for event publishing")
			publisher = eventPublisher
			defer eventPublisher.Close()
		}
	} else {
		log.Println("NATS_URL not configured, event publishing disabled")
	}

	sessionRepo := repository.NewSessionRepository(db, redisClient)
	store := sessionStore(cfg, sessionRepo, redisClient)

	var locker repository.Locker = repository.NewLocalLocker()
	if redisClient != nil {
		locker = repository.NewRedisLocker(redisClient)
	}

	var (
		saver   services.BulkSaver
		checker services.CodeChecker
	)
	if cfg.BulkSaveURL != "" {
		retry := clients.DefaultRetryConfig()
		retry.MaxRetries = cfg.BulkSaveMaxRetries
		client := clients.NewBulkSaveClient(cfg.BulkSaveURL, cfg.BulkSaveTimeout, retry, entry)
		saver, checker = client, client
		log.Printf("✓ Bulk save via %s", cfg.BulkSaveURL)
	} else {
		pointRepo := repository.NewPointRepository(db)
		saver, checker = pointRepo, pointRepo
		log.Println("BULK_SAVE_URL not configured, saving points locally")
	}

	importService := services.NewImportService(store, saver, checker, publisher, locker, entry, services.Config{
		SessionTTL:    cfg.SessionTTL,
		SubmitTimeout: cfg.SubmitTimeout,
	})

	importHandler := handlers.NewImportHandler(importService, entry, cfg.MaxUploadBytes, cfg.MaxImageBytes)
	periodHandler := handlers.NewPeriodHandler()
	healthHandler := handlers.NewHealthHandler(sessionRepo)
	if eventPublisher != nil {
		healthHandler.WithEvents(eventPublisher)
	}

	// Initialize OpenTelemetry tracing
	var tracerProvider *tracing.TracerProvider
	if cfg.Environment == "production" {
		tracerProvider, err = tracing.InitTracer(tracing.ProductionConfig("ooh-import-service"))
	} else {
		tracerProvider, err = tracing.InitTracer(tracing.DefaultConfig("ooh-import-service"))
	}
	if err != nil {
		log.Printf("WARNING: Failed to initialize tracing: %v (continuing without tracing)", err)
	} else {
		log.Println("✓ OpenTelemetry tracing initialized")
	}

	metrics := gosharedmw.InitGlobalMetrics("tesseract", "ooh_import_service")
	log.Println("✓ Prometheus metrics initialized")

	rbacMiddleware := rbac.NewMiddlewareWithURL(cfg.StaffServiceURL, nil)
	log.Println("✓ RBAC middleware initialized")

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.Middleware())
	router.Use(tracing.GinMiddleware("ooh-import-service"))
	router.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", healthHandler.ExtendedHealthCheck)
	router.GET("/metrics", gosharedmw.Handler())

	api := router.Group("/api/v1")
	if cfg.Environment == "development" && os.Getenv("USE_DEV_AUTH") == "true" {
		api.Use(middleware.DevelopmentAuthMiddleware())
	} else {
		// Istio validates JWT and injects x-jwt-claim-* headers
		api.Use(gosharedmw.IstioAuth(gosharedmw.IstioAuthConfig{
			RequireAuth:        true,
			AllowLegacyHeaders: false,
			SkipPaths:          []string{"/health", "/ready", "/metrics"},
		}))
	}
	api.Use(middleware.TenantMiddleware())

	read := rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead)
	write := rbacMiddleware.RequirePermission(rbac.PermissionInventoryUpdate)

	imports := api.Group("/imports", middleware.RequireUser())
	{
		imports.GET("/template", read, importHandler.GetImportTemplate)
		imports.POST("", write, importHandler.StartImport)

		current := imports.Group("/current")
		current.GET("", read, importHandler.GetCurrentImport)
		current.DELETE("", write, importHandler.CancelImport)
		current.POST("/finish", write, importHandler.FinishImport)
		current.POST("/upload", write, importHandler.UploadFile)
		current.GET("/mapping/suggestions", read, importHandler.GetMappingSuggestions)
		current.PUT("/mapping", write, importHandler.SetMapping)
		current.PUT("/step", write, importHandler.GoToStep)
		current.PATCH("/cells", write, importHandler.UpdateCell)
		current.PUT("/cursor", write, importHandler.Navigate)
		current.PATCH("/rows/:index", write, importHandler.UpdateRow)
		current.POST("/rows/:index/skip", write, importHandler.ToggleSkip)
		current.POST("/rows/:index/images", write, importHandler.AddImage)
		current.PUT("/rows/:index/images/cover", write, importHandler.SetCover)
		current.DELETE("/rows/:index/images/:image", write, importHandler.RemoveImage)
		current.POST("/submit", write, importHandler.Submit)
		current.POST("/retry", write, importHandler.Retry)
		current.GET("/summary", read, importHandler.GetSummary)
	}

	periods := api.Group("/periods", read)
	{
		periods.GET("/biweekly", periodHandler.ListBiWeeklyStarts)
		periods.GET("/biweekly/check", periodHandler.CheckBiWeeklyDate)
		periods.GET("/biweekly/info", periodHandler.GetBiWeekInfo)
		periods.GET("/biweekly/year/:year", periodHandler.ListBiWeeksInYear)
		periods.GET("/monthly", periodHandler.ListMonthlyEnds)
		periods.GET("/monthly/check", periodHandler.CheckMonthlyRange)
	}

	// Expired sessions are dropped lazily on access; the sweep clears the ones
	// nobody comes back to.
	purgeCtx, stopPurge := context.WithCancel(context.Background())
	if cfg.SessionStore != config.SessionStoreRedis {
		go purgeExpiredSessions(purgeCtx, sessionRepo, cfg, entry)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("OOH import service starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-quit
	log.Println("Shutting down ooh-import-service...")
	stopPurge()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	// Let background submissions reconcile before the stores go away
	done := make(chan struct{})
	go func() {
		importService.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("✓ Background submissions finished")
	case <-ctx.Done():
		log.Println("Timed out waiting for background submissions")
	}

	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		} else {
			log.Println("✓ Tracer provider shut down")
		}
	}

	log.Println("OOH import service stopped")
}

// sessionStore picks where wizard sessions live
func sessionStore(cfg *config.Config, sessionRepo *repository.SessionRepository, redisClient *redis.Client) repository.SessionStore {
	if cfg.SessionStore == config.SessionStoreRedis {
		if redisClient != nil {
			log.Println("✓ Import sessions stored in Redis")
			return repository.NewRedisSessionStore(redisClient, cfg.SessionTTL)
		}
		log.Println("Warning: SESSION_STORE=redis but Redis is unavailable, using PostgreSQL")
	}
	log.Println("✓ Import sessions stored in PostgreSQL")
	return sessionRepo
}

func purgeExpiredSessions(ctx context.Context, repo *repository.SessionRepository, cfg *config.Config, logger *logrus.Entry) {
	ticker := time.NewTicker(cfg.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.PurgeExpired(ctx, time.Now().Add(-cfg.SessionTTL))
			if err != nil {
				logger.WithError(err).Warn("Failed to purge expired import sessions")
				continue
			}
			if n > 0 {
				logger.WithField("purged", n).Info("Purged expired import sessions")
			}
		}
	}
}
