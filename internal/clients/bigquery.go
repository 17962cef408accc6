package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"datalake-export-scheduler/internal/models"
	"datalake-export-scheduler/internal/services"
)

// BigQueryWarehouse implements services.Warehouse on top of a BigQuery
// dataset: table metadata operations, streaming inserts and DML query jobs.
type BigQueryWarehouse struct {
	client    *bigquery.Client
	datasetID string
	log       *zap.SugaredLogger
}

func NewBigQueryWarehouse(client *bigquery.Client, datasetID string, log *zap.SugaredLogger) *BigQueryWarehouse {
	return &BigQueryWarehouse{
		client:    client,
		datasetID: datasetID,
		log:       log,
	}
}

func (w *BigQueryWarehouse) table(tableID string) *bigquery.Table {
	return w.client.Dataset(w.datasetID).Table(tableID)
}

// TableRef returns the project-qualified table name for SQL statements.
func (w *BigQueryWarehouse) TableRef(tableID string) string {
	return fmt.Sprintf("%s.%s.%s", w.client.Project(), w.datasetID, tableID)
}

func (w *BigQueryWarehouse) GetTableColumns(ctx context.Context, tableID string) ([]models.ColumnDefinition, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	md, err := w.table(tableID).Metadata(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", services.ErrTableNotFound, tableID)
		}
		return nil, fmt.Errorf("failed to fetch metadata for %s: %w", tableID, err)
	}

	columns := make([]models.ColumnDefinition, 0, len(md.Schema))
	for _, field := range md.Schema {
		columns = append(columns, models.ColumnDefinition{
			Name:        field.Name,
			Type:        fromBigQueryType(field.Type),
			Required:    field.Required,
			Description: field.Description,
		})
	}
	return columns, nil
}

func (w *BigQueryWarehouse) CreateTable(ctx context.Context, tableID string, columns []models.ColumnDefinition) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := w.table(tableID).Create(ctx, &bigquery.TableMetadata{Schema: toBigQuerySchema(columns)})
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", tableID, err)
	}
	w.log.Infow("Table created", "table", tableID, "columns", len(columns))
	return nil
}

func (w *BigQueryWarehouse) AlterTableColumns(ctx context.Context, tableID string, columns []models.ColumnDefinition) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := w.table(tableID).Update(ctx, bigquery.TableMetadataToUpdate{Schema: toBigQuerySchema(columns)}, "")
	if err != nil {
		return fmt.Errorf("failed to alter table %s: %w", tableID, err)
	}
	return nil
}

func (w *BigQueryWarehouse) BulkInsert(ctx context.Context, tableID string, rows []models.Row) ([]services.InsertError, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	savers := make([]*rowSaver, len(rows))
	for i, row := range rows {
		savers[i] = &rowSaver{row: row}
	}

	err := w.table(tableID).Inserter().Put(ctx, savers)
	if err == nil {
		return nil, nil
	}

	var multi bigquery.PutMultiError
	if errors.As(err, &multi) {
		rowErrs := make([]services.InsertError, 0, len(multi))
		for _, rowErr := range multi {
			rowErrs = append(rowErrs, services.InsertError{
				RowIndex: rowErr.RowIndex,
				Message:  rowErr.Error(),
			})
		}
		return rowErrs, nil
	}
	return nil, fmt.Errorf("failed to insert rows into %s: %w", tableID, err)
}

func (w *BigQueryWarehouse) ExecuteUpdate(ctx context.Context, sql string, params []services.QueryParameter) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	query := w.client.Query(sql)
	query.Parameters = make([]bigquery.QueryParameter, len(params))
	for i, p := range params {
		query.Parameters[i] = toQueryParameter(p)
	}

	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to run update: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed to await update: %w", err)
	}
	return status.Err()
}

func (w *BigQueryWarehouse) ScanColumn(ctx context.Context, tableID, column string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	query := w.client.Query(fmt.Sprintf("SELECT %s FROM `%s`", column, w.TableRef(tableID)))
	it, err := query.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan column %s.%s: %w", tableID, column, err)
	}

	var values []string
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan column %s.%s: %w", tableID, column, err)
		}
		if len(row) > 0 && row[0] != nil {
			values = append(values, fmt.Sprint(row[0]))
		}
	}
	return values, nil
}

// rowSaver streams one Row. Nil values are left out so BigQuery records
// them as NULL.
type rowSaver struct {
	row models.Row
}

func (r *rowSaver) Save() (map[string]bigquery.Value, string, error) {
	values := make(map[string]bigquery.Value, len(r.row))
	for name, value := range r.row {
		if value == nil {
			continue
		}
		values[name] = value
	}
	return values, "", nil
}

// toQueryParameter converts one placeholder. Nil values become typed NULLs
// resolved from the declared column type; the client library rejects a bare
// nil before submission.
func toQueryParameter(p services.QueryParameter) bigquery.QueryParameter {
	if p.Value != nil {
		return bigquery.QueryParameter{Name: p.Name, Value: p.Value}
	}

	var null any
	switch p.Type {
	case models.FieldFloat64:
		null = bigquery.NullFloat64{}
	case models.FieldBool:
		null = bigquery.NullBool{}
	case models.FieldTimestamp:
		null = bigquery.NullTimestamp{}
	default:
		null = bigquery.NullString{}
	}
	return bigquery.QueryParameter{Name: p.Name, Value: null}
}

func toBigQuerySchema(columns []models.ColumnDefinition) bigquery.Schema {
	schema := make(bigquery.Schema, 0, len(columns))
	for _, c := range columns {
		schema = append(schema, &bigquery.FieldSchema{
			Name:        c.Name,
			Type:        toBigQueryType(c.Type),
			Required:    c.Required,
			Description: c.Description,
		})
	}
	return schema
}

func toBigQueryType(t models.FieldType) bigquery.FieldType {
	switch t {
	case models.FieldFloat64:
		return bigquery.FloatFieldType
	case models.FieldBool:
		return bigquery.BooleanFieldType
	case models.FieldTimestamp:
		return bigquery.TimestampFieldType
	default:
		return bigquery.StringFieldType
	}
}

func fromBigQueryType(t bigquery.FieldType) models.FieldType {
	switch t {
	case bigquery.FloatFieldType:
		return models.FieldFloat64
	case bigquery.BooleanFieldType:
		return models.FieldBool
	case bigquery.TimestampFieldType:
		return models.FieldTimestamp
	default:
		return models.FieldString
	}
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
