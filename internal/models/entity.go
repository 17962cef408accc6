package models

// Entity is one catalog record conforming to a blueprint. The five value
// maps mirror the blueprint's five field sections; values are raw JSON
// scalars, arrays or objects as returned by the catalog API.
type Entity struct {
	Identifier            string         `json:"identifier"`
	Title                 string         `json:"title"`
	CreatedAt             string         `json:"createdAt,omitempty"`
	UpdatedAt             string         `json:"updatedAt,omitempty"`
	Properties            map[string]any `json:"properties"`
	Relations             map[string]any `json:"relations"`
	CalculationProperties map[string]any `json:"calculationProperties"`
	AggregationProperties map[string]any `json:"aggregationProperties"`
	MirrorProperties      map[string]any `json:"mirrorProperties"`
}

// Row is a flat column-name → value mapping ready for warehouse insertion.
// Collections and multi-valued relations are JSON-encoded to text so the
// destination schema stays shallow.
type Row map[string]any
