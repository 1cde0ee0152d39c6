package normalize

import (
	"testing"
	"time"

	"route-pipeline/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(fields map[string]interface{}) model.RawRecord {
	return model.RawRecord{Origin: "test", Fields: fields}
}

func TestNormalizeMapsAndCoerces(t *testing.T) {
	mapping := map[string]string{"Route #": "route_id", "Run Date": "route_date"}
	rec, findings, err := Normalize(raw(map[string]interface{}{
		"Route #":  "R-100",
		"Run Date": "03/15/2024",
		"Miles":    "1,234.5",
		"Revenue":  "$2,000.10",
		"Driver":   " Ann Lee ",
		"Comments": "dropped",
	}), mapping, nil)
	require.NoError(t, err)
	assert.Empty(t, findings)

	assert.Equal(t, "R-100", rec.String(model.FieldRouteID))
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), rec.Date(model.FieldRouteDate))
	assert.Equal(t, 1234.5, rec.Float(model.FieldTotalMiles))
	assert.True(t, decimal.RequireFromString("2000.10").Equal(rec.Money(model.FieldRevenue)))
	assert.Equal(t, "Ann Lee", rec.String(model.FieldDriverName))
	assert.NotContains(t, rec, "comments")
}

func TestNormalizeAlwaysCarriesRouteIDAndDate(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]interface{}
	}{
		{"missing route_id", map[string]interface{}{"route_date": "2024-01-01"}},
		{"empty route_id", map[string]interface{}{"route_id": "", "route_date": "2024-01-01"}},
		{"missing date", map[string]interface{}{"route_id": "R1"}},
		{"bad date", map[string]interface{}{"route_id": "R1", "route_date": "soon"}},
		{"na date", map[string]interface{}{"route_id": "R1", "route_date": "N/A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Normalize(raw(tt.fields), nil, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrNormalization)
		})
	}
}

func TestNormalizeOptionalCoercionFailureIsWarning(t *testing.T) {
	rec, findings, err := Normalize(raw(map[string]interface{}{
		"route_id":    "R1",
		"route_date":  "2024-01-01",
		"total_miles": "far",
	}), nil, nil)
	require.NoError(t, err)
	require.Contains(t, rec, model.FieldTotalMiles)
	assert.Nil(t, rec[model.FieldTotalMiles])
	require.Len(t, findings, 1)
	assert.Equal(t, model.SeverityWarning, findings[0].Severity)
	assert.Equal(t, model.FieldTotalMiles, findings[0].Field)
}

func TestNormalizeRequiredColumnsResolvedThroughMapping(t *testing.T) {
	n := New(map[string]string{"Truck": "vehicle_id"}, []string{"Truck"})
	assert.Contains(t, n.Required(), model.FieldVehicleID)

	_, _, err := n.Normalize(raw(map[string]interface{}{"route_id": "R1", "route_date": "2024-01-01"}))
	assert.ErrorIs(t, err, model.ErrNormalization)

	rec, _, err := n.Normalize(raw(map[string]interface{}{"route_id": "R1", "route_date": "2024-01-01", "Truck": "T9"}))
	require.NoError(t, err)
	assert.Equal(t, "T9", rec.String(model.FieldVehicleID))
}

func TestNormalizePrefersExplicitMappingAndNonEmptyValues(t *testing.T) {
	rec, _, err := Normalize(raw(map[string]interface{}{
		"id":         "alias",
		"load_code":  "explicit",
		"route_date": "2024-01-01",
		"miles":      "",
		"distance":   12.0,
	}), map[string]string{"load_code": "route_id"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "explicit", rec.String(model.FieldRouteID))
	assert.Equal(t, 12.0, rec.Float(model.FieldTotalMiles))
}

func TestNormalizeNumericRouteIDFromJSON(t *testing.T) {
	rec, _, err := Normalize(raw(map[string]interface{}{"route_id": 12345.0, "route_date": "2024-01-01"}), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "12345", rec.String(model.FieldRouteID))
}
