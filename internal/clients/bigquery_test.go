package clients

import (
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"

	"datalake-export-scheduler/internal/models"
	"datalake-export-scheduler/internal/services"
)

func TestToQueryParameterBindsTypedNulls(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		param services.QueryParameter
		want  any
	}{
		{"timestamp", services.QueryParameter{Name: "created_at", Type: models.FieldTimestamp}, bigquery.NullTimestamp{}},
		{"string", services.QueryParameter{Name: "title", Type: models.FieldString}, bigquery.NullString{}},
		{"float", services.QueryParameter{Name: "score", Type: models.FieldFloat64}, bigquery.NullFloat64{}},
		{"bool", services.QueryParameter{Name: "active", Type: models.FieldBool}, bigquery.NullBool{}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := toQueryParameter(tc.param)
			assert.Equal(t, tc.param.Name, got.Name)
			assert.Equal(t, tc.want, got.Value, "nil value must bind as a typed NULL")
		})
	}
}

func TestToQueryParameterPassesValuesThrough(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	got := toQueryParameter(services.QueryParameter{Name: "url", Type: models.FieldString, Value: "http://x"})
	assert.Equal(t, "http://x", got.Value)

	got = toQueryParameter(services.QueryParameter{Name: "updated_at", Type: models.FieldTimestamp, Value: ts})
	assert.Equal(t, ts, got.Value)
}
