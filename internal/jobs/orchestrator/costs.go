package orchestrator

import (
	"sort"
	"sync"

	"github.com/yungbote/listingtrust-backend/internal/observability"
)

const (
	PhaseExtraction          = "extraction"
	PhaseImageExtraction     = "image_extraction"
	PhaseNormalization       = "normalization"
	PhaseTrustScreening      = "trust_screening"
	PhaseDeduplication       = "deduplication"
	PhaseSelectiveValidation = "selective_validation"
	PhaseStorage             = "storage"
)

// Phases in execution order.
var Phases = []string{
	PhaseExtraction,
	PhaseImageExtraction,
	PhaseNormalization,
	PhaseTrustScreening,
	PhaseDeduplication,
	PhaseSelectiveValidation,
	PhaseStorage,
}

// DefaultUnitPrices are per-unit currency costs. Selective validation is billed at its actual cost.
func DefaultUnitPrices() map[string]float64 {
	return map[string]float64{
		PhaseExtraction:      0.0005,
		PhaseImageExtraction: 0.0002,
		PhaseNormalization:   0,
		PhaseTrustScreening:  0.002,
		PhaseDeduplication:   0.0001,
		PhaseStorage:         0.00005,
	}
}

type PhaseCost struct {
	Units  int     `json:"units"`
	Amount float64 `json:"amount"`
}

// CostLedger accumulates per-phase spend for one batch.
type CostLedger struct {
	mu     sync.Mutex
	prices map[string]float64
	phases map[string]PhaseCost
}

func NewCostLedger(prices map[string]float64) *CostLedger {
	if prices == nil {
		prices = DefaultUnitPrices()
	}
	return &CostLedger{prices: prices, phases: map[string]PhaseCost{}}
}

// Add books units at the phase's unit price.
func (l *CostLedger) Add(phase string, units int) {
	if units <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	pc := l.phases[phase]
	pc.Units += units
	pc.Amount += float64(units) * l.prices[phase]
	l.phases[phase] = pc
}

// AddAmount books a known currency amount as one unit.
func (l *CostLedger) AddAmount(phase string, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pc := l.phases[phase]
	pc.Units++
	pc.Amount += amount
	l.phases[phase] = pc
}

func (l *CostLedger) Snapshot() map[string]PhaseCost {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]PhaseCost, len(l.phases))
	for k, v := range l.phases {
		out[k] = v
	}
	return out
}

func (l *CostLedger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := make([]string, 0, len(l.phases))
	for k := range l.phases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	total := 0.0
	for _, k := range keys {
		total += l.phases[k].Amount
	}
	return total
}

func (l *CostLedger) publish() {
	for phase, pc := range l.Snapshot() {
		observability.Current().AddPhaseCost(phase, pc.Amount)
	}
}
