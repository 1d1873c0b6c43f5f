package screening

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
)

func intPtr(v int) *int { return &v }

func fixedNow() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

func newTestPlausibility(t *testing.T) *PlausibilityValidator {
	t.Helper()
	table, err := DefaultSpecTable()
	require.NoError(t, err)
	v := NewPlausibilityValidator(table)
	v.now = fixedNow
	return v
}

func TestDefaultSpecTableLoads(t *testing.T) {
	table, err := DefaultSpecTable()
	require.NoError(t, err)
	assert.Greater(t, table.Len(), 10)

	spec, ok := table.Lookup("maruti", "ALTO")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"Petrol", "CNG"}, spec.FuelTypes)

	_, ok = table.Lookup("Maruti", "WagonR")
	assert.True(t, ok, "spacing in model names is ignored")
}

func TestLoadSpecTableRejectsDuplicates(t *testing.T) {
	raw := []byte(`
models:
  - {brand: Maruti, model: Alto, fuel_types: [Petrol], transmissions: [Manual], first_year: 2000}
  - {brand: maruti, model: alto, fuel_types: [CNG], transmissions: [Manual], first_year: 2000}
`)
	_, err := LoadSpecTable(raw)
	require.Error(t, err)
}

func TestPlausibilityAltoDiesel(t *testing.T) {
	v := newTestPlausibility(t)
	res := v.Validate(types.ListingCandidate{
		Brand: "Maruti", Model: "Alto", FuelType: "Diesel", Transmission: "Manual",
		Year: 2021, Price: 400000, Mileage: intPtr(30000), Source: "OLX",
	})
	assert.False(t, res.Valid)
	require.Len(t, res.Issues, 1)
	assert.Contains(t, res.Issues[0], "never came with Diesel fuel")
	assert.Equal(t, 0.5, res.Modifier())
}

func TestPlausibilityUnknownModelIsValidLowConfidence(t *testing.T) {
	v := newTestPlausibility(t)
	res := v.Validate(types.ListingCandidate{Brand: "Hindustan", Model: "Ambassador", Year: 1990, Price: 5})
	assert.True(t, res.Valid)
	assert.Empty(t, res.Issues)
	assert.Equal(t, types.ConfidenceLow, res.Confidence)
	assert.Equal(t, 0.8, res.Modifier())
}

func TestPlausibilityBounds(t *testing.T) {
	v := newTestPlausibility(t)
	tests := []struct {
		name  string
		c     types.ListingCandidate
		issue string
	}{
		{
			name:  "future year",
			c:     types.ListingCandidate{Brand: "Tata", Model: "Nexon", FuelType: "Petrol", Transmission: "Manual", Year: 2028, Price: 900000, Mileage: intPtr(10)},
			issue: "in the future",
		},
		{
			name:  "out of production",
			c:     types.ListingCandidate{Brand: "Tata", Model: "Nano", FuelType: "Petrol", Transmission: "Manual", Year: 2020, Price: 100000, Mileage: intPtr(2000)},
			issue: "was not produced in 2020",
		},
		{
			name:  "price too low",
			c:     types.ListingCandidate{Brand: "Maruti", Model: "Swift", FuelType: "Petrol", Transmission: "Manual", Year: 2015, Price: 9000, Mileage: intPtr(80000)},
			issue: "outside plausible range",
		},
		{
			name:  "mileage too high",
			c:     types.ListingCandidate{Brand: "Maruti", Model: "Swift", FuelType: "Petrol", Transmission: "Manual", Year: 2010, Price: 150000, Mileage: intPtr(600000)},
			issue: "exceeds 500000",
		},
		{
			name:  "young vehicle with high mileage",
			c:     types.ListingCandidate{Brand: "Kia", Model: "Seltos", FuelType: "Diesel", Transmission: "Automatic", Year: 2024, Price: 1500000, Mileage: intPtr(120000)},
			issue: "disproportionate",
		},
		{
			name:  "wrong transmission",
			c:     types.ListingCandidate{Brand: "Maruti", Model: "Gypsy", FuelType: "Petrol", Transmission: "Automatic", Year: 2010, Price: 300000, Mileage: intPtr(90000)},
			issue: "never came with Automatic transmission",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.c)
			assert.False(t, res.Valid)
			assert.Contains(t, strings.Join(res.Issues, "; "), tt.issue)
		})
	}
}

func TestPlausibilityConfidenceTiers(t *testing.T) {
	v := newTestPlausibility(t)
	full := types.ListingCandidate{Brand: "Honda", Model: "City", FuelType: "Petrol", Transmission: "CVT", Year: 2019, Price: 900000, Mileage: intPtr(45000)}
	res := v.Validate(full)
	require.True(t, res.Valid)
	assert.Equal(t, types.ConfidenceHigh, res.Confidence)
	assert.Equal(t, 1.0, res.Modifier())

	partial := full
	partial.Mileage = nil
	res = v.Validate(partial)
	require.True(t, res.Valid)
	assert.Equal(t, types.ConfidenceMedium, res.Confidence)
	assert.Equal(t, 0.9, res.Modifier())
}
