package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flowforge/internal/config"
	"flowforge/internal/executors"
	"flowforge/internal/handlers"
	"flowforge/internal/middleware"
	"flowforge/internal/models"
	"flowforge/internal/services"
	"flowforge/pkg/qstash"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine in development mode",
	Long: `Run the engine with the in-process work transport. Without DB_DSN a
local sqlite file is used, so no infrastructure is needed to try zaps out.`,
	Run: runDev,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDev(cmd *cobra.Command, args []string) {
	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	var (
		db  *gorm.DB
		err error
	)
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	} else {
		db, err = gorm.Open(sqlite.Open("flowforge.db"), &gorm.Config{})
	}
	if err != nil {
		appLogger.Fatalf("Failed to open database: %v", err)
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
	transport := services.NewLocalTransport(runExecutor, appLogger)
	dispatchService := services.NewDispatchService(db, lifecycleService, transport, eventsHub, appLogger)
	zapService := services.NewZapService(db, lifecycleService, appLogger)
	catalogService := services.NewCatalogService(db)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	statsHandler := handlers.NewStatsHandler(db, eventsHub)
	r.GET("/health", statsHandler.Health)

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

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: r,
	}
	go func() {
		appLogger.Infof("Starting server on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Errorf("Server forced to shutdown: %v", err)
	}
	appLogger.Info("Server exited")
}
