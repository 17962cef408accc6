package services

import (
	"context"
	"errors"

	"datalake-export-scheduler/internal/models"
)

// ErrTableNotFound is returned by Warehouse.GetTableColumns when the table
// does not exist, so callers can tell absence apart from an outage.
var ErrTableNotFound = errors.New("table not found")

// QueryParameter is one typed placeholder for a parameterized statement.
type QueryParameter struct {
	Name  string
	Type  models.FieldType
	Value any
}

// InsertError is one failed row from a bulk insert.
type InsertError struct {
	RowIndex int
	Message  string
}

// Warehouse is the destination-side collaborator. Implemented by
// clients.BigQueryWarehouse; faked in tests.
type Warehouse interface {
	// GetTableColumns returns the live, ordered schema of a table, or
	// ErrTableNotFound.
	GetTableColumns(ctx context.Context, tableID string) ([]models.ColumnDefinition, error)

	CreateTable(ctx context.Context, tableID string, columns []models.ColumnDefinition) error

	// AlterTableColumns replaces the table schema with the given column
	// list. Callers only ever append to or strip from the live schema.
	AlterTableColumns(ctx context.Context, tableID string, columns []models.ColumnDefinition) error

	// BulkInsert appends rows and returns per-row errors; the error return
	// is reserved for submission-level failures.
	BulkInsert(ctx context.Context, tableID string, rows []models.Row) ([]InsertError, error)

	// ExecuteUpdate runs one parameterized DML statement to completion.
	ExecuteUpdate(ctx context.Context, sql string, params []QueryParameter) error

	// ScanColumn reads every value of one string column.
	ScanColumn(ctx context.Context, tableID, column string) ([]string, error)

	// TableRef returns the fully-qualified table name for use in SQL text.
	TableRef(tableID string) string
}

// Catalog is the source-side collaborator. Implemented by
// clients.CatalogClient; faked in tests.
type Catalog interface {
	GetBlueprint(ctx context.Context, identifier string) (*models.Blueprint, error)

	// SearchEntities streams pages of entities. The page channel is closed
	// after the last page; the error channel (buffered, size 1) carries at
	// most one terminal error.
	SearchEntities(ctx context.Context, blueprint string, query models.SearchQuery, include, exclude []string) (<-chan []models.Entity, <-chan error)
}
