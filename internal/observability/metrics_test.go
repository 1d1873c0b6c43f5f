package observability

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordsPipelineEvents(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m.ObserveScreening("approve", "verified", 82)
	m.ObserveScreening("approve", "verified", 90)
	m.IncValidation("price_outlier", "performed")
	m.SetBudget(1.25, 38.75)
	m.ObserveExternalCall("moderation", "ok", 120*time.Millisecond)

	if got := testutil.ToFloat64(m.screenings.WithLabelValues("approve", "verified")); got != 2 {
		t.Fatalf("screenings: expected 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.budgetLeft); got != 38.75 {
		t.Fatalf("budget remaining: expected 38.75, got %v", got)
	}

	expected := `
# HELP listingtrust_validations_total Selective validations by trigger and outcome.
# TYPE listingtrust_validations_total counter
listingtrust_validations_total{outcome="performed",trigger="price_outlier"} 1
`
	if err := testutil.CollectAndCompare(m.validations, strings.NewReader(expected)); err != nil {
		t.Fatalf("validations: %v", err)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveScreening("reject", "unverified", 10)
	m.IncAlert("olx")
	m.SetRetryQueueDepth(3)
	m.AddPhaseCost("storage", 1)
}
