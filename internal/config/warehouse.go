package config

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"
)

// InitWarehouse opens a BigQuery client for the configured project using
// service account credentials from a file or inline JSON.
func InitWarehouse(ctx context.Context, cfg *AppConfig) (*bigquery.Client, error) {
	var opts []option.ClientOption
	switch {
	case cfg.Warehouse.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.Warehouse.CredentialsJSON)))
	case cfg.Warehouse.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.Warehouse.CredentialsFile))
	default:
		return nil, fmt.Errorf("either BIGQUERY_CREDENTIALS or BIGQUERY_CREDENTIALS_JSON must be set")
	}

	client, err := bigquery.NewClient(ctx, cfg.Warehouse.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open BigQuery client: %w", err)
	}

	return client, nil
}
