package services

import (
	"fmt"
	"sort"
	"strings"

	"datalake-export-scheduler/internal/models"
)

// SchemaService derives destination table schemas from blueprint documents.
// It is a pure mapping: no I/O, same blueprint in, same columns out.
type SchemaService struct {
	requireDeclaredFields bool
}

// NewSchemaService creates a schema service. When requireDeclaredFields is
// set, properties the blueprint declares as required become non-nullable
// columns; otherwise every derived column is nullable so historical rows
// survive schema evolution.
func NewSchemaService(requireDeclaredFields bool) *SchemaService {
	return &SchemaService{
		requireDeclaredFields: requireDeclaredFields,
	}
}

// MapFieldType maps a blueprint type/format pair to a destination column
// type. Unrecognized types fall back to STRING so derivation never fails.
func MapFieldType(sourceType, format string) models.FieldType {
	if strings.EqualFold(sourceType, "string") && format != "" {
		switch strings.ToLower(format) {
		case "date-time":
			return models.FieldTimestamp
		default:
			// url, email, markdown, user and any other string format
			return models.FieldString
		}
	}

	switch strings.ToLower(sourceType) {
	case "string":
		return models.FieldString
	case "number":
		return models.FieldFloat64
	case "boolean":
		return models.FieldBool
	case "array", "object":
		// Stored as JSON text to keep the destination schema shallow.
		return models.FieldString
	case "datetime":
		return models.FieldTimestamp
	default:
		return models.FieldString
	}
}

// DeriveSchema builds the ordered destination column list for a blueprint:
// the four fixed base columns, then properties, relations, calculation,
// aggregation and mirror columns. Keys within each section are sorted so the
// result is deterministic.
func (s *SchemaService) DeriveSchema(bp *models.Blueprint) []models.ColumnDefinition {
	columns := []models.ColumnDefinition{
		{Name: "identifier", Type: models.FieldString, Required: true},
		{Name: "title", Type: models.FieldString},
		{Name: "created_at", Type: models.FieldTimestamp},
		{Name: "updated_at", Type: models.FieldTimestamp},
	}

	columns = append(columns, s.propertyColumns(bp.Schema)...)
	columns = append(columns, relationColumns(bp.Relations)...)
	columns = append(columns, derivedColumns(bp.CalculationProperties, "Calculated property")...)
	columns = append(columns, derivedColumns(bp.AggregationProperties, "Aggregation property")...)
	columns = append(columns, mirrorColumns(bp.MirrorProperties)...)

	return columns
}

func (s *SchemaService) propertyColumns(schema models.BlueprintSchema) []models.ColumnDefinition {
	required := make(map[string]bool, len(schema.Required))
	if s.requireDeclaredFields {
		for _, name := range schema.Required {
			required[name] = true
		}
	}

	columns := make([]models.ColumnDefinition, 0, len(schema.Properties))
	for _, name := range sortedKeys(schema.Properties) {
		spec := schema.Properties[name]
		columns = append(columns, models.ColumnDefinition{
			Name:     name,
			Type:     MapFieldType(spec.Type, spec.Format),
			Required: required[name],
		})
	}
	return columns
}

func relationColumns(relations map[string]models.RelationSpec) []models.ColumnDefinition {
	columns := make([]models.ColumnDefinition, 0, len(relations))
	for _, name := range sortedKeys(relations) {
		col := models.ColumnDefinition{Name: name, Type: models.FieldString}
		if relations[name].Many {
			col.Description = fmt.Sprintf("JSON array of %s identifiers", name)
		}
		columns = append(columns, col)
	}
	return columns
}

func derivedColumns(specs map[string]models.PropertySpec, provenance string) []models.ColumnDefinition {
	columns := make([]models.ColumnDefinition, 0, len(specs))
	for _, name := range sortedKeys(specs) {
		spec := specs[name]
		columns = append(columns, models.ColumnDefinition{
			Name:        name,
			Type:        MapFieldType(spec.Type, spec.Format),
			Description: fmt.Sprintf("%s: %s", provenance, spec.Description),
		})
	}
	return columns
}

func mirrorColumns(mirrors map[string]models.MirrorSpec) []models.ColumnDefinition {
	columns := make([]models.ColumnDefinition, 0, len(mirrors))
	for _, name := range sortedKeys(mirrors) {
		columns = append(columns, models.ColumnDefinition{
			Name:        name,
			Type:        models.FieldString,
			Description: fmt.Sprintf("Mirror property from path: %s", mirrors[name].Path),
		})
	}
	return columns
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
