package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/yungbote/listingtrust-backend/internal/data/repos"
	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/observability"
	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
	"github.com/yungbote/listingtrust-backend/internal/platform/errs"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
	"github.com/yungbote/listingtrust-backend/internal/platform/marketdata"
)

const (
	rarityFullCount       = 20
	defaultReliability    = 0.7
	reliabilityRunWindow  = 20
	priceOutlierDeviation = 0.4
	rareModelRarity       = 0.8
	lowReliability        = 0.5
	suspiciousFraudFree   = 70.0
	marketRejectDeviation = 0.5
)

// Manager gates the paid market-price validation behind a daily budget.
type Manager interface {
	// Validate never fails; errors come back as an "investigate" recommendation with zero cost.
	Validate(ctx context.Context, c types.ListingCandidate, a types.TrustAssessment) types.ValidationResult
	Status(ctx context.Context) (types.BudgetStatus, error)
}

type ManagerDeps struct {
	Listings repos.ListingRecordRepo
	Runs     repos.ScraperRunRepo
	Ledger   repos.BudgetLedgerRepo
	Logs     repos.ValidationLogRepo
	Market   marketdata.Client
}

type manager struct {
	log   *logger.Logger
	deps  ManagerDeps
	cfg   Config
	cache *cache.Cache
	now   func() time.Time

	// mu serializes every read-modify-write of the ledger row.
	mu sync.Mutex
}

func NewManager(log *logger.Logger, deps ManagerDeps, cfg Config) (Manager, error) {
	return newManager(log, deps, cfg)
}

func newManager(log *logger.Logger, deps ManagerDeps, cfg Config) (*manager, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Listings == nil || deps.Runs == nil || deps.Ledger == nil || deps.Logs == nil {
		return nil, fmt.Errorf("validation repos required")
	}
	cfg = cfg.withDefaults()
	return &manager{
		log:   log.With("service", "ValidationBudgetManager"),
		deps:  deps,
		cfg:   cfg,
		cache: cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		now:   time.Now,
	}, nil
}

type signals struct {
	deviation   float64
	rarity      float64
	reliability float64
	suspicious  bool
	average     float64
}

func (s signals) anomalyScore() float64 {
	score := 0.5*s.deviation + 0.25*s.rarity + 0.25*(1-s.reliability)
	return math.Max(0, math.Min(1, score))
}

// trigger picks by priority: suspicious, price outlier, rare model, low reliability, market change.
func (s signals) trigger() string {
	switch {
	case s.suspicious:
		return types.TriggerSuspicious
	case s.deviation > priceOutlierDeviation:
		return types.TriggerPriceOutlier
	case s.rarity >= rareModelRarity:
		return types.TriggerRareModel
	case s.reliability < lowReliability:
		return types.TriggerLowReliability
	default:
		return types.TriggerMarketChange
	}
}

func (s signals) reasons() []string {
	var out []string
	if s.suspicious {
		out = append(out, "suspicious screening signals")
	}
	if s.deviation > priceOutlierDeviation {
		out = append(out, fmt.Sprintf("price deviates %.0f%% from model average %.0f", s.deviation*100, s.average))
	}
	if s.rarity >= rareModelRarity {
		out = append(out, "rare model")
	}
	if s.reliability < lowReliability {
		out = append(out, fmt.Sprintf("low source reliability %.2f", s.reliability))
	}
	return out
}

func (m *manager) Validate(ctx context.Context, c types.ListingCandidate, a types.TrustAssessment) types.ValidationResult {
	sig := m.signals(ctx, c, a)
	trigger := sig.trigger()
	res := types.ValidationResult{
		Trigger:      trigger,
		AnomalyScore: sig.anomalyScore(),
		Reasons:      sig.reasons(),
	}
	tc, ok := m.cfg.Triggers[trigger]
	if !ok || !tc.Enabled || res.AnomalyScore < tc.Threshold {
		return res
	}
	res.Triggered = true
	res.EstimatedCost = tc.Cost

	reserved, err := m.reserve(ctx, tc.Cost)
	if err != nil {
		m.log.Warn("budget reserve failed", "listing", c.Key(), "error", err)
		res.Recommendation = types.RecommendationInvestigate
		res.Confidence = 0.3
		res.Reasons = append(res.Reasons, "budget ledger unavailable")
		return res
	}
	if !reserved {
		res.Withheld = true
		res.Cost = 0
		res.Reasons = append(res.Reasons, fmt.Sprintf("validation withheld: %v", errs.ErrBudgetExhausted))
		m.record(ctx, c, res)
		observability.Current().IncValidation(trigger, "withheld")
		return res
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	quote, err := m.market(callCtx, c)
	cancel()
	if err != nil {
		m.log.Warn("market validation failed", "listing", c.Key(), "error", err)
		_, _ = m.settle(ctx, tc.Cost, 0)
		res.Recommendation = types.RecommendationInvestigate
		res.Confidence = 0.3
		res.Cost = 0
		res.Reasons = append(res.Reasons, "market validation failed")
		m.record(ctx, c, res)
		observability.Current().IncValidation(trigger, "error")
		return res
	}

	actual := quote.Cost
	if actual <= 0 {
		actual = tc.Cost
	}
	charged, err := m.settle(ctx, tc.Cost, actual)
	if err != nil {
		m.log.Warn("budget settle failed", "listing", c.Key(), "error", err)
		charged = tc.Cost
	}
	res.Cost = charged
	res.MarketMedian = quote.Median
	res.Recommendation, res.Confidence = recommend(float64(c.Price), quote, sig)
	m.record(ctx, c, res)
	observability.Current().IncValidation(trigger, res.Recommendation)
	return res
}

func (m *manager) market(ctx context.Context, c types.ListingCandidate) (marketdata.Quote, error) {
	if m.deps.Market == nil {
		return marketdata.Quote{}, fmt.Errorf("market data client not configured")
	}
	return m.deps.Market.MarketPrice(ctx, marketdata.Query{
		Brand:   c.Brand,
		Model:   c.Model,
		Year:    c.Year,
		City:    c.City,
		Mileage: c.Mileage,
	})
}

// recommend compares the market band with the anomaly list.
func recommend(price float64, q marketdata.Quote, sig signals) (string, float64) {
	if q.InBand(price) {
		if len(sig.reasons()) == 0 {
			return types.RecommendationApprove, 0.9
		}
		return types.RecommendationInvestigate, 0.7
	}
	dev := 0.0
	if q.Median > 0 {
		dev = math.Abs(price-q.Median) / q.Median
	}
	if dev > marketRejectDeviation && sig.suspicious {
		return types.RecommendationReject, 0.85
	}
	return types.RecommendationFlag, 0.75
}

// loadLocked returns today's ledger, zeroed when the stored day is stale. Caller holds mu.
func (m *manager) loadLocked(ctx context.Context) (*types.BudgetLedger, error) {
	today := m.now().In(m.cfg.Location).Format(types.BudgetResetDateLayout)
	l, err := m.deps.Ledger.Get(dbctx.Context{Ctx: ctx}, m.cfg.LedgerName)
	if err != nil {
		return nil, err
	}
	if l == nil {
		l = &types.BudgetLedger{Name: m.cfg.LedgerName, ResetDate: today}
	}
	if l.ResetDate != today {
		m.log.Info("validation budget reset", "previous_day", l.ResetDate, "spent", l.DailySpend, "count", l.ValidationCount)
		l.DailySpend = 0
		l.ValidationCount = 0
		l.ResetDate = today
	}
	return l, nil
}

// reserve books cost against today's budget if it fits.
func (m *manager) reserve(ctx context.Context, cost float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, err := m.loadLocked(ctx)
	if err != nil {
		return false, err
	}
	if l.DailySpend+cost > m.cfg.DailyBudget {
		return false, nil
	}
	l.DailySpend += cost
	l.ValidationCount++
	if err := m.deps.Ledger.Save(dbctx.Context{Ctx: ctx}, l); err != nil {
		return false, err
	}
	observability.Current().SetBudget(l.DailySpend, m.cfg.DailyBudget-l.DailySpend)
	return true, nil
}

// settle replaces a reservation with the actual cost, never letting spend pass the budget.
// A zero actual cost releases the reservation and the count.
func (m *manager) settle(ctx context.Context, reserved, actual float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, err := m.loadLocked(ctx)
	if err != nil {
		return 0, err
	}
	base := math.Max(0, l.DailySpend-reserved)
	charged := actual
	if base+charged > m.cfg.DailyBudget {
		charged = math.Max(0, m.cfg.DailyBudget-base)
	}
	l.DailySpend = base + charged
	if actual <= 0 && l.ValidationCount > 0 {
		l.ValidationCount--
	}
	if err := m.deps.Ledger.Save(dbctx.Context{Ctx: ctx}, l); err != nil {
		return 0, err
	}
	observability.Current().SetBudget(l.DailySpend, m.cfg.DailyBudget-l.DailySpend)
	return charged, nil
}

func (m *manager) Status(ctx context.Context) (types.BudgetStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, err := m.loadLocked(ctx)
	if err != nil {
		return types.BudgetStatus{}, err
	}
	return types.BudgetStatus{
		DailyBudget:     m.cfg.DailyBudget,
		CurrentSpend:    l.DailySpend,
		Remaining:       math.Max(0, m.cfg.DailyBudget-l.DailySpend),
		ValidationCount: l.ValidationCount,
		ResetDate:       l.ResetDate,
	}, nil
}

func (m *manager) record(ctx context.Context, c types.ListingCandidate, res types.ValidationResult) {
	details, _ := json.Marshal(map[string]any{
		"reasons":       res.Reasons,
		"market_median": res.MarketMedian,
		"price":         c.Price,
	})
	entry := &types.ValidationLog{
		ListingKey:     c.Key(),
		Trigger:        res.Trigger,
		AnomalyScore:   res.AnomalyScore,
		Cost:           res.Cost,
		EstimatedCost:  res.EstimatedCost,
		Withheld:       res.Withheld,
		Recommendation: res.Recommendation,
		Confidence:     res.Confidence,
		Details:        details,
	}
	if err := m.deps.Logs.Create(dbctx.Context{Ctx: ctx}, entry); err != nil {
		m.log.Warn("validation log write failed", "listing", c.Key(), "error", err)
	}
}

func (m *manager) signals(ctx context.Context, c types.ListingCandidate, a types.TrustAssessment) signals {
	stats := m.modelStats(ctx, c.Brand, c.Model)
	sig := signals{
		reliability: m.reliability(ctx, c.Source),
		suspicious:  !a.ModerationClean || a.SubScores.FraudFree < suspiciousFraudFree,
		average:     stats.AveragePrice,
	}
	if stats.AveragePrice > 0 && c.Price > 0 {
		sig.deviation = math.Min(1, math.Abs(float64(c.Price)-stats.AveragePrice)/stats.AveragePrice)
	}
	sig.rarity = 1 - math.Min(float64(stats.Count)/rarityFullCount, 1)
	return sig
}

func (m *manager) modelStats(ctx context.Context, brand, model string) repos.ModelStats {
	key := "stats:" + strings.ToLower(strings.TrimSpace(brand)) + "|" + strings.ToLower(strings.TrimSpace(model))
	if v, ok := m.cache.Get(key); ok {
		return v.(repos.ModelStats)
	}
	stats, err := m.deps.Listings.ModelStats(dbctx.Context{Ctx: ctx}, brand, model)
	if err != nil {
		m.log.Warn("model stats unavailable", "brand", brand, "model", model, "error", err)
		return repos.ModelStats{}
	}
	m.cache.SetDefault(key, stats)
	return stats
}

// reliability is the configured override, else the success rate of recent runs, else 0.7.
func (m *manager) reliability(ctx context.Context, source string) float64 {
	if v, ok := m.cfg.SourceReliability[source]; ok {
		return math.Max(0, math.Min(1, v))
	}
	key := "reliability:" + source
	if v, ok := m.cache.Get(key); ok {
		return v.(float64)
	}
	runs, err := m.deps.Runs.ListRecent(dbctx.Context{Ctx: ctx}, source, reliabilityRunWindow)
	if err != nil {
		m.log.Warn("run history unavailable", "source", source, "error", err)
		return defaultReliability
	}
	finished, ok := 0, 0
	for _, r := range runs {
		if !r.Finished() {
			continue
		}
		finished++
		if r.Status == types.RunStatusSuccess {
			ok++
		}
	}
	rel := defaultReliability
	if finished > 0 {
		rel = float64(ok) / float64(finished)
	}
	m.cache.SetDefault(key, rel)
	return rel
}
