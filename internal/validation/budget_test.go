package validation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/listingtrust-backend/internal/data/repos"
	"github.com/yungbote/listingtrust-backend/internal/data/repos/testutil"
	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
	"github.com/yungbote/listingtrust-backend/internal/platform/marketdata"
)

type fakeMarket struct {
	mu    sync.Mutex
	quote marketdata.Quote
	err   error
	calls int
}

func (f *fakeMarket) MarketPrice(context.Context, marketdata.Query) (marketdata.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.quote, f.err
}

var band = marketdata.Quote{Median: 450000, Low: 400000, High: 500000, SampleSize: 40}

func suspicious() types.TrustAssessment {
	return types.TrustAssessment{ModerationClean: false, SubScores: types.SubScores{FraudFree: 100}}
}

func candidate(id string, price int64) types.ListingCandidate {
	return types.ListingCandidate{ID: id, Source: "OLX", Brand: "Maruti", Model: "Swift", Year: 2018, Price: price}
}

func newTestManager(t *testing.T, budget float64, market marketdata.Client) (*manager, repos.Repos) {
	t.Helper()
	log := testutil.Logger(t)
	r := repos.New(testutil.DB(t), log)
	cfg := DefaultConfig()
	cfg.DailyBudget = budget
	cfg.Location = time.UTC
	cfg.SourceReliability = map[string]float64{"OLX": 0.2}
	m, err := newManager(log, ManagerDeps{
		Listings: r.Listings,
		Runs:     r.Runs,
		Ledger:   r.Ledger,
		Logs:     r.ValidationLogs,
		Market:   market,
	}, cfg)
	require.NoError(t, err)
	return m, r
}

func TestBudgetConservation(t *testing.T) {
	market := &fakeMarket{quote: band}
	m, r := newTestManager(t, 0.1, market)
	ctx := context.Background()

	first := m.Validate(ctx, candidate("1", 450000), suspicious())
	require.True(t, first.Triggered)
	assert.Equal(t, types.TriggerSuspicious, first.Trigger)
	assert.False(t, first.Withheld)
	assert.InDelta(t, 0.08, first.Cost, 1e-9)

	second := m.Validate(ctx, candidate("2", 450000), suspicious())
	require.True(t, second.Triggered)
	assert.True(t, second.Withheld)
	assert.Equal(t, 0.0, second.Cost)
	assert.InDelta(t, 0.08, second.EstimatedCost, 1e-9)
	assert.InDelta(t, 0.08, first.EstimatedCost, 1e-9)
	assert.Equal(t, 1, market.calls, "withheld validations never reach the paid API")

	st, err := m.Status(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.08, st.CurrentSpend, 1e-9)
	assert.Equal(t, 1, st.ValidationCount)
	assert.InDelta(t, 0.02, st.Remaining, 1e-9)

	logs, err := r.ValidationLogs.ListSince(dbctx.Context{Ctx: ctx}, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	total := 0.0
	withheld := 0
	for _, l := range logs {
		total += l.Cost
		if l.Withheld {
			withheld++
			assert.Equal(t, 0.0, l.Cost)
			assert.InDelta(t, 0.08, l.EstimatedCost, 1e-9)
		}
	}
	assert.Equal(t, 1, withheld)
	assert.LessOrEqual(t, total, 0.1)
}

func TestBudgetConservationUnderConcurrency(t *testing.T) {
	market := &fakeMarket{quote: band}
	m, r := newTestManager(t, 0.5, market)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Validate(ctx, candidate(string(rune('a'+i)), 450000), suspicious())
		}(i)
	}
	wg.Wait()

	st, err := m.Status(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, st.CurrentSpend, 0.5+1e-9)
	assert.Equal(t, 6, st.ValidationCount)

	logs, err := r.ValidationLogs.ListSince(dbctx.Context{Ctx: ctx}, time.Time{}, 100)
	require.NoError(t, err)
	total := 0.0
	for _, l := range logs {
		total += l.Cost
	}
	assert.LessOrEqual(t, total, 0.5+1e-9)
}

func TestActualCostIsClampedToBudget(t *testing.T) {
	q := band
	q.Cost = 0.5
	m, _ := newTestManager(t, 0.1, &fakeMarket{quote: q})
	ctx := context.Background()

	res := m.Validate(ctx, candidate("1", 450000), suspicious())
	assert.InDelta(t, 0.1, res.Cost, 1e-9)

	st, err := m.Status(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, st.CurrentSpend, 1e-9)
	assert.Equal(t, 0.0, st.Remaining)
}

func TestMarketFailureRefundsReservation(t *testing.T) {
	m, _ := newTestManager(t, 1, &fakeMarket{err: errors.New("market_price http 503")})
	ctx := context.Background()

	res := m.Validate(ctx, candidate("1", 450000), suspicious())
	assert.Equal(t, types.RecommendationInvestigate, res.Recommendation)
	assert.Equal(t, 0.3, res.Confidence)
	assert.Equal(t, 0.0, res.Cost)

	st, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, st.CurrentSpend)
	assert.Equal(t, 0, st.ValidationCount)
}

func TestRecommendations(t *testing.T) {
	ctx := context.Background()

	m, _ := newTestManager(t, 10, &fakeMarket{quote: band})
	res := m.Validate(ctx, candidate("in-band", 450000), suspicious())
	assert.Equal(t, types.RecommendationInvestigate, res.Recommendation)
	assert.Equal(t, 0.7, res.Confidence)
	assert.Equal(t, band.Median, res.MarketMedian)

	res = m.Validate(ctx, candidate("way-out", 900000), suspicious())
	assert.Equal(t, types.RecommendationReject, res.Recommendation)
	assert.Equal(t, 0.85, res.Confidence)
	assert.True(t, res.Blocks())

	res = m.Validate(ctx, candidate("bit-out", 560000), suspicious())
	assert.Equal(t, types.RecommendationFlag, res.Recommendation)

	rec, conf := recommend(450000, band, signals{reliability: 1})
	assert.Equal(t, types.RecommendationApprove, rec)
	assert.Equal(t, 0.9, conf)
}

func TestNotTriggeredBelowThreshold(t *testing.T) {
	market := &fakeMarket{quote: band}
	m, _ := newTestManager(t, 10, market)
	m.cfg.SourceReliability = map[string]float64{"OLX": 1}

	clean := types.TrustAssessment{ModerationClean: true, SubScores: types.SubScores{FraudFree: 100}}
	res := m.Validate(context.Background(), candidate("1", 450000), clean)
	assert.Equal(t, types.TriggerRareModel, res.Trigger)
	assert.InDelta(t, 0.25, res.AnomalyScore, 1e-9)
	assert.False(t, res.Triggered)
	assert.Equal(t, 0, market.calls)
}

func TestDisabledTriggerSkips(t *testing.T) {
	market := &fakeMarket{quote: band}
	m, _ := newTestManager(t, 10, market)
	tc := m.cfg.Triggers[types.TriggerSuspicious]
	tc.Enabled = false
	m.cfg.Triggers[types.TriggerSuspicious] = tc

	res := m.Validate(context.Background(), candidate("1", 450000), suspicious())
	assert.False(t, res.Triggered)
	assert.Equal(t, 0, market.calls)
}

func TestBudgetResetsOnNewDay(t *testing.T) {
	m, _ := newTestManager(t, 10, &fakeMarket{quote: band})
	ctx := context.Background()
	day1 := time.Date(2026, 5, 1, 23, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return day1 }

	m.Validate(ctx, candidate("1", 450000), suspicious())
	st, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-05-01", st.ResetDate)
	assert.Equal(t, 1, st.ValidationCount)

	m.now = func() time.Time { return day1.Add(2 * time.Hour) }
	st, err = m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-05-02", st.ResetDate)
	assert.Equal(t, 0.0, st.CurrentSpend)
	assert.Equal(t, 0, st.ValidationCount)
}

func TestSignalsUseStoredHistory(t *testing.T) {
	m, r := newTestManager(t, 10, &fakeMarket{quote: band})
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	for i, p := range []int64{400000, 500000} {
		require.NoError(t, r.Listings.Create(dbc, &types.ListingRecord{
			ExternalID: string(rune('x' + i)), Source: "CarWale", Brand: "Maruti", Model: "Swift",
			Year: 2018, Price: p, VerificationStatus: string(types.StatusVerified),
		}))
	}
	now := time.Now().UTC()
	done := now
	require.NoError(t, r.Runs.Create(dbc, &types.ScraperRunRecord{ScraperName: "Cars24", Status: types.RunStatusSuccess, StartedAt: now, CompletedAt: &done}))
	require.NoError(t, r.Runs.Create(dbc, &types.ScraperRunRecord{ScraperName: "Cars24", Status: types.RunStatusFailed, StartedAt: now, CompletedAt: &done}))

	c := candidate("1", 810000)
	c.Source = "Cars24"
	sig := m.signals(ctx, c, types.TrustAssessment{ModerationClean: true, SubScores: types.SubScores{FraudFree: 100}})
	assert.InDelta(t, 0.8, sig.deviation, 1e-9)
	assert.InDelta(t, 0.9, sig.rarity, 1e-9)
	assert.InDelta(t, 0.5, sig.reliability, 1e-9)
	assert.False(t, sig.suspicious)
	assert.Equal(t, types.TriggerPriceOutlier, sig.trigger())
}
