package models

import "time"

// SearchQuery is the catalog entity search filter for one blueprint.
type SearchQuery struct {
	Combinator string           `json:"combinator"`
	Rules      []map[string]any `json:"rules"`
}

// BlueprintConfig selects one blueprint for export and scopes its entities.
type BlueprintConfig struct {
	Identifier      string      `json:"identifier"`
	SearchQuery     SearchQuery `json:"searchQuery"`
	IncludeEntities []string    `json:"includeEntities,omitempty"`
	ExcludeEntities []string    `json:"excludeEntities,omitempty"`
}

// BlueprintsConfig is the full list of blueprints to export each cycle.
type BlueprintsConfig struct {
	Blueprints []BlueprintConfig `json:"blueprints"`
}

// ExportStatus tracks the state of the latest export run for one blueprint.
type ExportStatus struct {
	Blueprint     string    `json:"blueprint"`
	RunID         string    `json:"run_id"`
	Status        string    `json:"status"` // "exporting" | "success" | "error"
	Migration     string    `json:"migration,omitempty"`
	TotalEntities int       `json:"total_entities"`
	Inserted      int       `json:"inserted"`
	Updated       int       `json:"updated"`
	LastRunTime   time.Time `json:"last_run_time"`
	ErrorMessage  string    `json:"error_message,omitempty"`
}
