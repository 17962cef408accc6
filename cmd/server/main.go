package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	configLoader "github.com/andiksetyawan/config"
	"go.uber.org/zap"

	"datalake-export-scheduler/internal/app"
	"datalake-export-scheduler/internal/config"
	"datalake-export-scheduler/internal/handlers"
	"datalake-export-scheduler/internal/middleware"
)

func main() {
	zapConfig := zap.NewProductionConfig()
	if os.Getenv("DEBUG") != "" {
		zapConfig = zap.NewDevelopmentConfig()
	}
	logger, err := zapConfig.Build()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	log.Info("Loading configuration...")

	cfg := &config.AppConfig{}
	loader := configLoader.New(
		configLoader.WithEnvPath(".env"),
	)
	if err := loader.Load(cfg); err != nil {
		log.Fatalw("Failed to load configuration", "error", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalw("Invalid configuration", "error", err)
	}

	blueprints, err := cfg.LoadBlueprintsConfig()
	if err != nil {
		log.Fatalw("Failed to load blueprints config", "error", err)
	}

	log.Infow("Configuration loaded",
		"serverPort", cfg.Server.Port,
		"migrationPolicy", cfg.Export.MigrationPolicy,
		"blueprints", len(blueprints.Blueprints),
	)

	ctx := context.Background()
	warehouseClient, err := config.InitWarehouse(ctx, cfg)
	if err != nil {
		log.Fatalw("Failed to initialize warehouse client", "error", err)
	}
	defer warehouseClient.Close()

	log.Infow("Connected to warehouse",
		"project", cfg.Warehouse.ProjectID, "dataset", cfg.Warehouse.DatasetID)

	// Create application instance with dependency injection
	application := app.NewApplication(cfg, warehouseClient, blueprints, log)
	defer application.Close()

	handler := handlers.NewHandler(application.ExportService)

	// Setup routes with CORS middleware
	http.HandleFunc("/", middleware.CORS(handler.RootHandler))
	http.HandleFunc("/health", middleware.CORS(handler.HealthHandler))
	http.HandleFunc("/api/export/start", middleware.CORS(handler.StartExportHandler))
	http.HandleFunc("/api/export/stop", middleware.CORS(handler.StopExportHandler))
	http.HandleFunc("/api/export/status", middleware.CORS(handler.StatusHandler))
	http.HandleFunc("/api/export/config", middleware.CORS(handler.ConfigHandler))
	http.HandleFunc("/api/export/trigger", middleware.CORS(handler.TriggerExportHandler))

	if err := application.ExportService.Start(); err != nil {
		log.Fatalw("Failed to start export service", "error", err)
	}

	port := cfg.Server.Port

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("Shutting down server...")
		if application.ExportService.IsRunning() {
			_ = application.ExportService.Stop()
		}
		os.Exit(0)
	}()

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatalw("Failed to start server", "error", err)
	}
}
