package app

import (
	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"

	"datalake-export-scheduler/internal/clients"
	"datalake-export-scheduler/internal/config"
	"datalake-export-scheduler/internal/models"
	"datalake-export-scheduler/internal/services"
)

type Application struct {
	Config           *config.AppConfig
	WarehouseClient  *bigquery.Client
	Catalog          *clients.CatalogClient
	Warehouse        *clients.BigQueryWarehouse
	SchemaService    *services.SchemaService
	MigrationService *services.MigrationService
	ExportService    *services.ExportService
}

func NewApplication(cfg *config.AppConfig, warehouseClient *bigquery.Client, blueprints *models.BlueprintsConfig, log *zap.SugaredLogger) *Application {
	app := &Application{
		Config:          cfg,
		WarehouseClient: warehouseClient,
	}

	app.Catalog = clients.NewCatalogClient(
		cfg.Catalog.ClientID,
		cfg.Catalog.ClientSecret,
		cfg.Catalog.APIURL,
		log,
	)
	app.Warehouse = clients.NewBigQueryWarehouse(warehouseClient, cfg.Warehouse.DatasetID, log)

	app.SchemaService = services.NewSchemaService(cfg.Export.RequireDeclaredFields)
	app.MigrationService = services.NewMigrationService(app.Warehouse, cfg.MigrationPolicy(), log)
	app.ExportService = services.NewExportService(
		app.Catalog,
		app.Warehouse,
		app.SchemaService,
		app.MigrationService,
		blueprints.Blueprints,
		cfg.Export.Schedule,
		cfg.Export.UpdateConcurrency,
		log,
	)

	return app
}

func (app *Application) Close() {
	if app.WarehouseClient != nil {
		app.WarehouseClient.Close()
	}
}
