package config

import (
	"encoding/json"
	"fmt"
	"os"

	"datalake-export-scheduler/internal/models"
)

type AppConfig struct {
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Export    ExportConfig    `envPrefix:"EXPORT_"`
	Catalog   CatalogConfig   `envPrefix:"CATALOG_"`
	Warehouse WarehouseConfig `envPrefix:"BIGQUERY_"`
}

type ServerConfig struct {
	Port string `env:"PORT" envDefault:"3000"`
}

type ExportConfig struct {
	Schedule string `env:"SCHEDULE" envDefault:"0 * * * *"`

	MigrationPolicy string `env:"MIGRATION_POLICY" envDefault:"weak"`

	// Blueprint list, either inline JSON or a file path.
	BlueprintsConfigJSON string `env:"BLUEPRINTS_CONFIG_JSON"`
	BlueprintsConfig     string `env:"BLUEPRINTS_CONFIG"`

	UpdateConcurrency int `env:"UPDATE_CONCURRENCY" envDefault:"8"`

	// When true, properties listed as required in the blueprint schema
	// become non-nullable destination columns.
	RequireDeclaredFields bool `env:"REQUIRE_DECLARED_FIELDS" envDefault:"false"`
}

type CatalogConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	APIURL       string `env:"API_URL" envDefault:"https://api.getport.io/v1"`
}

type WarehouseConfig struct {
	ProjectID string `env:"PROJECT_ID"`
	DatasetID string `env:"DATASET_ID"`

	// Service account credentials, either a file path or inline JSON.
	CredentialsFile string `env:"CREDENTIALS"`
	CredentialsJSON string `env:"CREDENTIALS_JSON"`
}

// Validate checks the parts of the configuration the services trust to be
// well-formed: the migration policy string and the presence of credentials.
func (c *AppConfig) Validate() error {
	if _, err := models.ParseMigrationPolicy(c.Export.MigrationPolicy); err != nil {
		return err
	}
	if c.Catalog.ClientID == "" || c.Catalog.ClientSecret == "" {
		return fmt.Errorf("CATALOG_CLIENT_ID and CATALOG_CLIENT_SECRET must be set")
	}
	if c.Warehouse.ProjectID == "" || c.Warehouse.DatasetID == "" {
		return fmt.Errorf("BIGQUERY_PROJECT_ID and BIGQUERY_DATASET_ID must be set")
	}
	if c.Export.BlueprintsConfigJSON == "" && c.Export.BlueprintsConfig == "" {
		return fmt.Errorf("either EXPORT_BLUEPRINTS_CONFIG or EXPORT_BLUEPRINTS_CONFIG_JSON must be set")
	}
	if c.Export.UpdateConcurrency <= 0 {
		return fmt.Errorf("EXPORT_UPDATE_CONCURRENCY must be positive")
	}
	return nil
}

// MigrationPolicy returns the validated policy. Call Validate first.
func (c *AppConfig) MigrationPolicy() models.MigrationPolicy {
	policy, _ := models.ParseMigrationPolicy(c.Export.MigrationPolicy)
	return policy
}

// LoadBlueprintsConfig resolves the blueprint list from inline JSON or the
// configured file path.
func (c *AppConfig) LoadBlueprintsConfig() (*models.BlueprintsConfig, error) {
	data := []byte(c.Export.BlueprintsConfigJSON)
	if len(data) == 0 {
		var err error
		data, err = os.ReadFile(c.Export.BlueprintsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to read blueprints config: %w", err)
		}
	}

	var cfg models.BlueprintsConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse blueprints config: %w", err)
	}
	if len(cfg.Blueprints) == 0 {
		return nil, fmt.Errorf("blueprints config contains no blueprints")
	}
	return &cfg, nil
}
