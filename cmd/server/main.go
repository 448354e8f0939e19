package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"flowforge/internal/config"
	"flowforge/internal/executors"
	"flowforge/internal/handlers"
	"flowforge/internal/middleware"
	"flowforge/internal/models"
	"flowforge/internal/observability"
	"flowforge/internal/services"
	"flowforge/pkg/qstash"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()

	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	shutdownOTel, err := observability.SetupTracing(context.Background(), cfg)
	if err != nil {
		appLogger.Warnf("init tracing: %v", err)
	} else {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name,
		cfg.Database.Port, getenvDefault("DB_SSLMODE", "disable"))
	if env := os.Getenv("DB_DSN"); env != "" {
		dsn = env
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		_ = db.Use(gormtracing.NewPlugin())
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}
	if err := models.SeedCatalogs(db); err != nil {
		appLogger.Fatalf("Failed to seed catalogs: %v", err)
	}

	scheduler := qstash.NewClient(&qstash.Config{
		BaseURL:    cfg.QStash.BaseURL,
		Token:      cfg.QStash.Token,
		Timeout:    cfg.QStash.Timeout,
		MaxRetries: cfg.QStash.MaxRetries,
		RetryDelay: cfg.QStash.RetryDelay,
	}, appLogger)

	registry := executors.NewDefaultRegistry(nil, executors.EmailSettings{
		APIKey: cfg.Email.APIKey,
		From:   cfg.Email.From,
	}, appLogger)

	eventsHub := services.NewRunEventsHub(appLogger)
	go eventsHub.Run()

	connectionService := services.NewConnectionService(db, appLogger)
	lifecycleService := services.NewLifecycleService(db, scheduler, cfg.Server.AppURL, appLogger)
	runExecutor := services.NewRunExecutor(db, registry, connectionService, eventsHub, appLogger)

	// Deployment branch: with the queue enabled, accepted runs round-trip
	// through qstash to /worker; without it, they execute in-process (the
	// hosted queue cannot call back into a localhost deployment).
	var transport services.WorkTransport
	if cfg.QStash.Enabled {
		transport = services.NewQueueTransport(scheduler, cfg.Server.AppURL, appLogger)
		appLogger.Info("work transport: qstash queue")
	} else {
		transport = services.NewLocalTransport(runExecutor, appLogger)
		appLogger.Info("work transport: local in-process")
	}

	dispatchService := services.NewDispatchService(db, lifecycleService, transport, eventsHub, appLogger)
	zapService := services.NewZapService(db, lifecycleService, appLogger)
	catalogService := services.NewCatalogService(db)

	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddlewareWithConfig(cfg))
	r.Use(middleware.RateLimitMiddleware(cfg))
	if cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}

	statsHandler := handlers.NewStatsHandler(db, eventsHub)
	r.GET("/health", statsHandler.Health)

	// Machine-facing surfaces: webhook ingestion, scheduler callbacks and the
	// queue's delivery target stay unauthenticated; their checks live in the
	// dispatch gate.
	public := r.Group("/")
	handlers.RegisterHookRoutes(public, handlers.NewHookHandler(dispatchService, appLogger))
	handlers.RegisterCronRoutes(public, handlers.NewCronHandler(dispatchService, lifecycleService, appLogger))
	handlers.RegisterWorkerRoutes(public, handlers.NewWorkerHandler(runExecutor, appLogger))

	r.GET("/ws/runs", eventsHub.HandleWebSocket)

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg))
	handlers.RegisterZapRoutes(api, handlers.NewZapHandler(zapService, lifecycleService, appLogger))
	handlers.RegisterRunRoutes(api, handlers.NewRunHandler(zapService, appLogger))
	handlers.RegisterScheduleRoutes(api, handlers.NewScheduleHandler(lifecycleService, appLogger))
	handlers.RegisterConnectionRoutes(api, handlers.NewConnectionHandler(connectionService, appLogger))
	handlers.RegisterCatalogRoutes(api, handlers.NewCatalogHandler(catalogService, appLogger))
	handlers.RegisterStatsRoutes(api, statsHandler)

	listenAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: listenAddr, Handler: r}
	go func() {
		appLogger.Infof("Starting server on %s", listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatalf("Server forced to shutdown: %v", err)
	}
	appLogger.Info("Server exited")
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func corsMiddlewareWithConfig(cfg *config.Config) gin.HandlerFunc {
	allowedOrigins := "*"
	allowedMethods := "GET, POST, PUT, DELETE, OPTIONS"
	allowedHeaders := "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization"
	if cfg != nil && cfg.Security.CORS.Enabled {
		if len(cfg.Security.CORS.AllowedOrigins) > 0 {
			allowedOrigins = strings.Join(cfg.Security.CORS.AllowedOrigins, ", ")
		}
		if len(cfg.Security.CORS.AllowedMethods) > 0 {
			allowedMethods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
		}
		if len(cfg.Security.CORS.AllowedHeaders) > 0 {
			allowedHeaders = strings.Join(cfg.Security.CORS.AllowedHeaders, ", ")
		}
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowedOrigins)
		c.Header("Access-Control-Allow-Methods", allowedMethods)
		c.Header("Access-Control-Allow-Headers", allowedHeaders)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
