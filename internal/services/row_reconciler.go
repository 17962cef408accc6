package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"datalake-export-scheduler/internal/models"
)

// reconcileRows writes one batch of entities into the table: rows whose
// identifier already exists become parameterized updates, the rest go
// through one bulk insert. Both halves run concurrently and fail
// independently; only a schema lookup failure aborts the batch.
func (s *ExportService) reconcileRows(ctx context.Context, tableID string, entities []models.Entity) (inserted, updated int, err error) {
	columns, err := s.warehouse.GetTableColumns(ctx, tableID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch table schema: %w", err)
	}

	columnSet := make(map[string]bool, len(columns))
	columnTypes := make(map[string]models.FieldType, len(columns))
	for _, c := range columns {
		columnSet[c.Name] = true
		columnTypes[c.Name] = c.Type
	}

	existing := s.existingIdentifiers(ctx, tableID)

	// The catalog may return the same identifier on more than one page of a
	// single search; keep the last occurrence so two updates never race on
	// one identifier within a batch.
	entities = dedupeByIdentifier(entities)

	var toInsert, toUpdate []models.Row
	for _, entity := range entities {
		row := shapeRow(entity, columnSet)
		if existing[entity.Identifier] {
			toUpdate = append(toUpdate, row)
		} else {
			toInsert = append(toInsert, row)
		}
	}

	s.log.Infow("Reconciling rows", "table", tableID, "inserts", len(toInsert), "updates", len(toUpdate))

	var insertedCount, updatedCount int

	g := new(errgroup.Group)
	g.Go(func() error {
		insertedCount = s.insertRows(ctx, tableID, toInsert)
		return nil
	})
	g.Go(func() error {
		updatedCount = s.updateRows(ctx, tableID, toUpdate, columnTypes)
		return nil
	})
	_ = g.Wait()

	return insertedCount, updatedCount, nil
}

// existingIdentifiers scans the identifier column. Scan failures mean "no
// existing rows": the batch then routes everything through the insert path.
func (s *ExportService) existingIdentifiers(ctx context.Context, tableID string) map[string]bool {
	values, err := s.warehouse.ScanColumn(ctx, tableID, "identifier")
	if err != nil {
		s.log.Debugw("No existing identifiers found", "table", tableID, "error", err)
		return map[string]bool{}
	}

	existing := make(map[string]bool, len(values))
	for _, v := range values {
		existing[v] = true
	}
	return existing
}

// insertRows submits one bulk append. Per-row errors are logged in
// aggregate and deducted from the count; nothing here aborts the batch.
func (s *ExportService) insertRows(ctx context.Context, tableID string, rows []models.Row) int {
	if len(rows) == 0 {
		return 0
	}

	rowErrs, err := s.warehouse.BulkInsert(ctx, tableID, rows)
	if err != nil {
		s.log.Errorw("Bulk insert failed", "table", tableID, "rows", len(rows), "error", err)
		return 0
	}
	if len(rowErrs) > 0 {
		s.log.Errorw("Errors while inserting rows", "table", tableID, "failed", len(rowErrs), "first", rowErrs[0].Message)
	}
	return len(rows) - len(rowErrs)
}

// updateRows groups rows by their exact column-name set, builds one UPDATE
// template per group and fans the statements out through a bounded worker
// pool. A failed statement is logged and skipped; siblings keep running.
func (s *ExportService) updateRows(ctx context.Context, tableID string, rows []models.Row, columnTypes map[string]models.FieldType) int {
	if len(rows) == 0 {
		return 0
	}

	tableRef := s.warehouse.TableRef(tableID)

	var updated atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency())

	for _, group := range groupByColumnSet(rows) {
		sql := buildUpdateStatement(tableRef, group.fields)
		for _, row := range group.rows {
			row := row
			fields := group.fields
			g.Go(func() error {
				params := bindParameters(row, fields, columnTypes)
				if err := s.warehouse.ExecuteUpdate(ctx, sql, params); err != nil {
					s.log.Errorw("Error updating row", "table", tableID, "identifier", row["identifier"], "error", err)
					return nil
				}
				updated.Add(1)
				return nil
			})
		}
	}
	_ = g.Wait()

	return int(updated.Load())
}

func (s *ExportService) concurrency() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.updateConcurrency
}

// dedupeByIdentifier keeps one row per identifier, last occurrence winning.
func dedupeByIdentifier(entities []models.Entity) []models.Entity {
	index := make(map[string]int, len(entities))
	deduped := make([]models.Entity, 0, len(entities))
	for _, e := range entities {
		if i, seen := index[e.Identifier]; seen {
			deduped[i] = e
			continue
		}
		index[e.Identifier] = len(deduped)
		deduped = append(deduped, e)
	}
	return deduped
}

// shapeRow flattens an entity into a Row, keeping only fields the table
// knows about. Unknown keys are dropped; the schema is a superset of the
// blueprint by construction, so this only matters during migration races.
func shapeRow(entity models.Entity, columns map[string]bool) models.Row {
	row := models.Row{
		"identifier": entity.Identifier,
		"title":      nullableString(entity.Title),
		"created_at": nullableString(entity.CreatedAt),
		"updated_at": nullableString(entity.UpdatedAt),
	}

	for name, value := range entity.Properties {
		if columns[name] {
			row[name] = flattenValue(value)
		}
	}
	for name, value := range entity.Relations {
		if !columns[name] {
			continue
		}
		switch v := value.(type) {
		case string:
			row[name] = v
		default:
			// A many-relation carries a list of identifiers; store it as
			// JSON text.
			row[name] = flattenValue(v)
		}
	}
	for name, value := range entity.CalculationProperties {
		if columns[name] {
			row[name] = flattenValue(value)
		}
	}
	for name, value := range entity.AggregationProperties {
		if columns[name] {
			row[name] = flattenValue(value)
		}
	}
	for name, value := range entity.MirrorProperties {
		if columns[name] {
			row[name] = flattenValue(value)
		}
	}

	return row
}

// flattenValue passes scalars through and JSON-encodes everything else.
func flattenValue(v any) any {
	switch v.(type) {
	case nil, string, bool, float64, int, int64:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type updateGroup struct {
	fields []string
	rows   []models.Row
}

// groupByColumnSet buckets rows by their exact set of present column names,
// identifier excluded. Rows in one group share a statement template.
func groupByColumnSet(rows []models.Row) []updateGroup {
	byKey := make(map[string]*updateGroup)
	var order []string

	for _, row := range rows {
		fields := make([]string, 0, len(row))
		for name := range row {
			if name != "identifier" {
				fields = append(fields, name)
			}
		}
		sort.Strings(fields)

		key := strings.Join(fields, "\x00")
		group, ok := byKey[key]
		if !ok {
			group = &updateGroup{fields: fields}
			byKey[key] = group
			order = append(order, key)
		}
		group.rows = append(group.rows, row)
	}

	groups := make([]updateGroup, 0, len(order))
	for _, key := range order {
		groups = append(groups, *byKey[key])
	}
	return groups
}

// buildUpdateStatement renders the shared UPDATE template for one column
// set: one named placeholder per column plus the identifier predicate.
func buildUpdateStatement(tableRef string, fields []string) string {
	assignments := make([]string, len(fields))
	for i, f := range fields {
		assignments[i] = fmt.Sprintf("%s = @%s", f, f)
	}
	return fmt.Sprintf("UPDATE `%s` SET %s WHERE identifier = @identifier",
		tableRef, strings.Join(assignments, ", "))
}

// bindParameters resolves typed placeholders from the destination column
// types. String values bound to TIMESTAMP columns are parsed first; all
// other values pass through as-is.
func bindParameters(row models.Row, fields []string, columnTypes map[string]models.FieldType) []QueryParameter {
	params := make([]QueryParameter, 0, len(fields)+1)
	for _, field := range fields {
		fieldType, ok := columnTypes[field]
		if !ok {
			fieldType = models.FieldString
		}
		value := row[field]
		if fieldType == models.FieldTimestamp {
			if str, ok := value.(string); ok {
				if ts, err := time.Parse(time.RFC3339, str); err == nil {
					value = ts
				}
			}
		}
		params = append(params, QueryParameter{Name: field, Type: fieldType, Value: value})
	}

	identifier, _ := row["identifier"].(string)
	params = append(params, QueryParameter{Name: "identifier", Type: models.FieldString, Value: identifier})
	return params
}
