package models

// PropertySpec describes a single property, calculation property or
// aggregation property in a blueprint: its declared type, an optional
// format refinement, and a human description.
type PropertySpec struct {
	Type        string `json:"type"`
	Format      string `json:"format,omitempty"`
	Description string `json:"description,omitempty"`
}

// RelationSpec describes a relation to another blueprint. Relations
// pointing at many targets carry a JSON array of identifiers instead of a
// single identifier string.
type RelationSpec struct {
	Target   string `json:"target,omitempty"`
	Many     bool   `json:"many"`
	Required bool   `json:"required,omitempty"`
}

// MirrorSpec describes a mirror property: a value copied from a path on a
// related entity.
type MirrorSpec struct {
	Path string `json:"path"`
}

// BlueprintSchema is the property section of a blueprint document.
type BlueprintSchema struct {
	Properties map[string]PropertySpec `json:"properties"`
	Required   []string                `json:"required"`
}

// Blueprint is the catalog-side schema document for one entity type.
// It is fetched once per export cycle and treated as immutable.
type Blueprint struct {
	Identifier            string                  `json:"identifier"`
	Title                 string                  `json:"title,omitempty"`
	Schema                BlueprintSchema         `json:"schema"`
	Relations             map[string]RelationSpec `json:"relations"`
	CalculationProperties map[string]PropertySpec `json:"calculationProperties"`
	AggregationProperties map[string]PropertySpec `json:"aggregationProperties"`
	MirrorProperties      map[string]MirrorSpec   `json:"mirrorProperties"`
}
