package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"buddy-vitality-service/cache"
	"buddy-vitality-service/config"
	"buddy-vitality-service/handlers"
	"buddy-vitality-service/middleware"
	"buddy-vitality-service/services"
	"buddy-vitality-service/utils"
	"buddy-vitality-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const uploadDir = "./uploads"

var inMemory bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the per-session reconcile timers",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&inMemory, "in-memory", false, "keep all state in an in-process SQLite database")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	logger, err := utils.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	utils.InitMetrics()

	dsn := sqlitePath
	if inMemory {
		dsn = memoryDSN
	}
	db, err := openDB(cfg, dsn)
	if err != nil {
		return err
	}
	defer closeDB(db)
	if err := migrate(db); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Snapshot cache: redis when configured, otherwise in-process
	var snapshots services.SnapshotCache = cache.NewMemorySnapshotCache(cfg.SnapshotTTL)
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedisSnapshotCache(ctx, cfg.RedisAddr, cfg.SnapshotTTL, logger)
		if err != nil {
			log.Printf("⚠️  Redis unavailable at %s, using in-process snapshot cache", cfg.RedisAddr)
		} else {
			snapshots = redisCache
			defer redisCache.Close()
		}
	}
	gateway := services.NewCachedGateway(services.NewBuddyStore(db), snapshots, logger)

	hub := services.NewAlertHub()
	sessions := services.NewSessions(gateway, services.EngineConfig{
		Rates:    cfg.Rates,
		Location: loc,
		Notifier: services.MultiNotifier{services.LogNotifier{Logger: logger}, hub},
		Logger:   logger,
	}, logger)

	scheduler, err := workers.NewReconcileScheduler(cfg.TickInterval, nil, logger)
	if err != nil {
		return err
	}
	sessions.SetHooks(scheduler)
	scheduler.Start()

	handler := &handlers.BuddyHandler{
		Sessions:  sessions,
		Store:     gateway,
		Friends:   gateway,
		Analyzer:  newFoodAnalyzer(cfg),
		FoodLog:   services.NewFoodLogStore(db),
		Nutrition: newNutritionAnalyzer(cfg, logger),
		Alerts:    hub,
		Rates:     cfg.Rates,
		Logger:    logger,
	}
	if cfg.AuthServiceURL != "" {
		handler.Validator = services.NewAuthClient(cfg.AuthServiceURL, cfg.AuthServiceToken)
	}

	localPhotos := false
	if cfg.R2Enabled() {
		photos, err := utils.NewR2PhotoStore(ctx, cfg.CloudflareAccountID, cfg.R2AccessKeyID, cfg.R2AccessKeySecret, cfg.R2BucketName, cfg.CDNBaseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize R2 client: %w", err)
		}
		handler.Photos = photos
	} else {
		photos, err := utils.NewLocalPhotoStore(uploadDir, "http://localhost:"+cfg.Port+"/uploads")
		if err != nil {
			return fmt.Errorf("failed to ensure upload dir: %w", err)
		}
		handler.Photos = photos
		localPhotos = true
	}

	limiter := middleware.NewUserRateLimiter(cfg.RateLimitActions, cfg.RateLimitBurst)
	go limiter.Run(ctx)

	app := fiber.New(fiber.Config{
		BodyLimit:             10 * 1024 * 1024,
		DisableStartupMessage: true,
		// request values end up in session maps and timer names
		Immutable:             true,
	})
	app.Use(recover.New())
	app.Use(middleware.RequestLogger(logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID, X-Timezone, X-Device-ID",
		MaxAge:       86400,
	}))

	// probes stay reachable without the gateway token
	handlers.SetupSystemRoutes(app, sessions)

	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, logger))
	app.Use(middleware.UserContextMiddleware("/buddy", logger, handlers.AlertStreamPath))
	handlers.SetupBuddyRoutes(app, handler, middleware.RateLimitMiddleware(limiter))
	if localPhotos {
		app.Static("/uploads", uploadDir)
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("server_error", zap.Error(err))
			stop()
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ Reconcile ticks every %s, daily reset in %s", cfg.TickInterval, loc)
	log.Printf("✅ CORS configured for origins: %s", strings.Join(cfg.AllowedOrigins, ","))
	if inMemory {
		log.Println("✅ In-memory mode: state is lost on exit")
	}

	<-ctx.Done()
	log.Println("Shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("server_shutdown_failed", zap.Error(err))
	}
	sessions.CloseAll()
	if err := scheduler.Shutdown(); err != nil {
		logger.Warn("scheduler_shutdown_failed", zap.Error(err))
	}
	return nil
}

func newFoodAnalyzer(cfg *config.Config) services.FoodAnalyzer {
	if cfg.FoodAnalyzerURL != "" {
		return services.NewHTTPFoodAnalyzer(cfg.FoodAnalyzerURL, cfg.FoodAnalyzerToken)
	}
	return services.NewRandomFoodAnalyzer(time.Now().UnixNano())
}

func newNutritionAnalyzer(cfg *config.Config, logger *zap.Logger) services.NutritionAnalyzer {
	if cfg.PerplexityAPIKey == "" {
		return services.MockNutritionAnalyzer{}
	}
	return services.NewPerplexityNutritionAnalyzer(cfg.PerplexityAPIKey, cfg.PerplexityBaseURL, cfg.NutritionModel, logger)
}
