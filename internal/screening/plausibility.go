package screening

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
)

//go:embed specs.yaml
var defaultSpecsYAML []byte

const (
	minPlausiblePrice   int64 = 10_000
	maxPlausiblePrice   int64 = 50_000_000
	maxPlausibleMileage       = 500_000
	youngVehicleYears         = 4
	youngVehicleMileage       = 100_000
)

// ModelSpec is one row of the reference model table.
type ModelSpec struct {
	Brand         string   `yaml:"brand"`
	Model         string   `yaml:"model"`
	FuelTypes     []string `yaml:"fuel_types"`
	Transmissions []string `yaml:"transmissions"`
	FirstYear     int      `yaml:"first_year"`
	LastYear      int      `yaml:"last_year"`
}

func (s ModelSpec) name() string {
	return strings.TrimSpace(s.Brand + " " + s.Model)
}

type SpecTable struct {
	specs map[string]ModelSpec
}

// LoadSpecTable parses a YAML document of the form {models: [...]}.
func LoadSpecTable(raw []byte) (*SpecTable, error) {
	var doc struct {
		Models []ModelSpec `yaml:"models"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse spec table: %w", err)
	}
	t := &SpecTable{specs: make(map[string]ModelSpec, len(doc.Models))}
	for _, m := range doc.Models {
		key := specKey(m.Brand, m.Model)
		if key == "|" {
			return nil, fmt.Errorf("spec table: row without brand/model")
		}
		if _, dup := t.specs[key]; dup {
			return nil, fmt.Errorf("spec table: duplicate row %q", m.name())
		}
		t.specs[key] = m
	}
	return t, nil
}

var (
	defaultTableOnce sync.Once
	defaultTable     *SpecTable
	defaultTableErr  error
)

// DefaultSpecTable returns the embedded table.
func DefaultSpecTable() (*SpecTable, error) {
	defaultTableOnce.Do(func() {
		defaultTable, defaultTableErr = LoadSpecTable(defaultSpecsYAML)
	})
	return defaultTable, defaultTableErr
}

func (t *SpecTable) Lookup(brand, model string) (ModelSpec, bool) {
	if t == nil {
		return ModelSpec{}, false
	}
	s, ok := t.specs[specKey(brand, model)]
	return s, ok
}

func (t *SpecTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.specs)
}

// specKey lowercases and drops everything but letters and digits, so "Wagon R" and "WagonR" collide.
func specKey(brand, model string) string {
	norm := func(s string) string {
		var b strings.Builder
		for _, r := range strings.ToLower(s) {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
		return b.String()
	}
	return norm(brand) + "|" + norm(model)
}

type PlausibilityResult struct {
	Valid      bool
	Issues     []string
	Confidence types.ConfidenceTier
}

// Modifier scales the quality component of the trust score.
func (r PlausibilityResult) Modifier() float64 {
	if !r.Valid {
		return 0.5
	}
	switch r.Confidence {
	case types.ConfidenceHigh:
		return 1.0
	case types.ConfidenceMedium:
		return 0.9
	default:
		return 0.8
	}
}

type PlausibilityValidator struct {
	table *SpecTable
	now   func() time.Time
}

func NewPlausibilityValidator(table *SpecTable) *PlausibilityValidator {
	return &PlausibilityValidator{table: table, now: time.Now}
}

// Validate never fails. Unknown models come back valid with low confidence.
func (v *PlausibilityValidator) Validate(c types.ListingCandidate) PlausibilityResult {
	spec, ok := v.table.Lookup(c.Brand, c.Model)
	if !ok {
		return PlausibilityResult{Valid: true, Confidence: types.ConfidenceLow}
	}

	var issues []string
	name := spec.name()
	fuel := strings.TrimSpace(c.FuelType)
	trans := strings.TrimSpace(c.Transmission)

	if fuel != "" && !containsFold(spec.FuelTypes, fuel) {
		issues = append(issues, fmt.Sprintf("%s never came with %s fuel", name, fuel))
	}
	if trans != "" && !containsFold(spec.Transmissions, trans) {
		issues = append(issues, fmt.Sprintf("%s never came with %s transmission", name, trans))
	}

	currentYear := v.now().Year()
	if c.Year > 0 {
		if c.Year < spec.FirstYear || (spec.LastYear > 0 && c.Year > spec.LastYear) {
			issues = append(issues, fmt.Sprintf("%s was not produced in %d (%s)", name, c.Year, productionRange(spec)))
		}
		if c.Year > currentYear {
			issues = append(issues, fmt.Sprintf("year %d is in the future", c.Year))
		}
	}
	if c.Price < minPlausiblePrice || c.Price > maxPlausiblePrice {
		issues = append(issues, fmt.Sprintf("price %d outside plausible range [%d, %d]", c.Price, minPlausiblePrice, maxPlausiblePrice))
	}
	if c.Mileage != nil {
		km := *c.Mileage
		if km > maxPlausibleMileage {
			issues = append(issues, fmt.Sprintf("mileage %d km exceeds %d km", km, maxPlausibleMileage))
		}
		age := currentYear - c.Year
		if c.Year > 0 && age < youngVehicleYears && km > youngVehicleMileage {
			issues = append(issues, fmt.Sprintf("mileage %d km is disproportionate for a %d-year-old vehicle", km, age))
		}
	}

	confidence := types.ConfidenceHigh
	if fuel == "" || trans == "" || c.Mileage == nil || c.Year <= 0 {
		confidence = types.ConfidenceMedium
	}
	return PlausibilityResult{
		Valid:      len(issues) == 0,
		Issues:     issues,
		Confidence: confidence,
	}
}

func productionRange(s ModelSpec) string {
	if s.LastYear <= 0 {
		return fmt.Sprintf("%d-present", s.FirstYear)
	}
	return fmt.Sprintf("%d-%d", s.FirstYear, s.LastYear)
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}
