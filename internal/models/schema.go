package models

import "fmt"

// FieldType is the scalar column type in the destination warehouse.
type FieldType string

const (
	FieldString    FieldType = "STRING"
	FieldFloat64   FieldType = "FLOAT64"
	FieldBool      FieldType = "BOOL"
	FieldTimestamp FieldType = "TIMESTAMP"
)

// ColumnDefinition is one column of a destination table schema. Schemas are
// ordered slices, not sets, so generated DDL stays stable.
type ColumnDefinition struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
}

// ColumnNames returns the names of the given columns in order.
func ColumnNames(cols []ColumnDefinition) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// MigrationPolicy controls how aggressively an existing destination table
// may be altered to match a newly derived schema.
type MigrationPolicy string

const (
	// PolicyWeak never alters an existing table.
	PolicyWeak MigrationPolicy = "weak"
	// PolicyBalanced adds missing columns but never removes any.
	PolicyBalanced MigrationPolicy = "balanced"
	// PolicyHard adds missing columns and removes stale ones.
	PolicyHard MigrationPolicy = "hard"
)

// ParseMigrationPolicy validates a configured policy string.
func ParseMigrationPolicy(s string) (MigrationPolicy, error) {
	switch MigrationPolicy(s) {
	case PolicyWeak, PolicyBalanced, PolicyHard:
		return MigrationPolicy(s), nil
	default:
		return "", fmt.Errorf("migration policy must be one of 'weak', 'balanced', 'hard', got %q", s)
	}
}

// MigrationAction is the terminal state of one table reconciliation.
type MigrationAction string

const (
	MigrationCreated       MigrationAction = "created"
	MigrationUnchanged     MigrationAction = "unchanged"
	MigrationAddedFields   MigrationAction = "added_fields"
	MigrationRemovedFields MigrationAction = "removed_fields"
	MigrationRecreated     MigrationAction = "recreated"
)

// MigrationOutcome reports what a table reconciliation did. AddedFields and
// RemovedFields list the column names involved; under the balanced policy
// RemovedFields is report-only and no removal was executed.
type MigrationOutcome struct {
	Action        MigrationAction `json:"action"`
	AddedFields   []string        `json:"added_fields,omitempty"`
	RemovedFields []string        `json:"removed_fields,omitempty"`
}
