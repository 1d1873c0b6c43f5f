package screening

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
	"github.com/yungbote/listingtrust-backend/internal/platform/openai"
)

func TestSourceAssessorScore(t *testing.T) {
	a := NewSourceAssessor(DefaultConfig())
	tests := []struct {
		name string
		c    types.ListingCandidate
		want float64
	}{
		{"bare", types.ListingCandidate{Source: "OLX"}, 50},
		{"trusted portal any case", types.ListingCandidate{Source: "cardekho"}, 80},
		{"dealer with image", types.ListingCandidate{Source: "OLX", SellerType: "Dealer", ImageURLs: []string{"u"}}, 75},
		{"everything", types.ListingCandidate{Source: "Spinny", SellerType: "dealer", ExternallyVerified: true, ImageURLs: []string{"u"}}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Score(tt.c))
		})
	}
}

func TestInstitutionalIsExactMatch(t *testing.T) {
	a := NewSourceAssessor(DefaultConfig())
	assert.True(t, a.Institutional("Maruti True Value"))
	assert.False(t, a.Institutional("maruti true value"))
	assert.False(t, a.Institutional("Maruti True Value Pune"))
}

func TestFraudDetector(t *testing.T) {
	d := NewFraudDetector(DefaultConfig())
	d.now = fixedNow

	clean := types.ListingCandidate{Title: "Swift VXI", Description: "single owner", Year: 2018, Price: 450000, Mileage: intPtr(52000)}
	assert.Equal(t, 100.0, d.Scan(clean).Score)

	kw := clean
	kw.Description = "Army officer transfer, pay ADVANCE PAYMENT to book"
	res := d.Scan(kw)
	assert.Equal(t, 60.0, res.Score)
	assert.Len(t, res.Issues, 2)

	overCeiling := clean
	overCeiling.Price = 400_000_000
	res = d.Scan(overCeiling)
	assert.Less(t, res.Score, 30.0)

	noMileage := clean
	noMileage.Mileage = nil
	assert.Equal(t, 85.0, d.Scan(noMileage).Score)

	everything := kw
	everything.Price = 0
	everything.Year = 1900
	everything.Mileage = intPtr(-5)
	assert.Equal(t, 0.0, d.Scan(everything).Score)
}

type fakeAI struct {
	mod    openai.Moderation
	modErr error
	json   map[string]any
	jsErr  error
}

func (f *fakeAI) Moderate(context.Context, string) (openai.Moderation, error) { return f.mod, f.modErr }
func (f *fakeAI) Embed(context.Context, []string) ([][]float32, error) { return nil, nil }
func (f *fakeAI) GenerateJSON(context.Context, string, string, string, map[string]any) (map[string]any, error) {
	return f.json, f.jsErr
}

func TestModerationSeverityMapping(t *testing.T) {
	tests := []struct {
		score float64
		want  types.Severity
	}{
		{0.95, types.SeverityCritical},
		{0.75, types.SeverityHigh},
		{0.5, types.SeverityMedium},
		{0.1, types.SeverityLow},
	}
	for _, tt := range tests {
		v := verdictFromModeration(openai.Moderation{Flagged: true, Categories: []string{"violence", "hate"}, MaxScore: tt.score})
		assert.False(t, v.Clean)
		assert.Equal(t, tt.want, v.Severity)
		assert.Equal(t, []string{"hate", "violence"}, v.Violations)
	}
	assert.True(t, verdictFromModeration(openai.Moderation{MaxScore: 0.99}).Clean)
}

func TestModerationFailsClosed(t *testing.T) {
	m, err := NewOpenAIModerator(logger.Nop(), &fakeAI{modErr: errors.New("openai http 503: upstream")}, 0)
	require.NoError(t, err)

	v := m.Moderate(context.Background(), "Swift for sale")
	assert.False(t, v.Clean)
	assert.Equal(t, types.SeverityHigh, v.Severity)
	require.Len(t, v.Violations, 1)
	assert.Contains(t, v.Violations[0], systemErrorPrefix)

	unconfigured, err := NewOpenAIModerator(logger.Nop(), nil, 0)
	require.NoError(t, err)
	assert.False(t, unconfigured.Moderate(context.Background(), "text").Clean)
}

func TestLLMQualityScorer(t *testing.T) {
	ok, err := NewLLMQualityScorer(logger.Nop(), &fakeAI{json: map[string]any{"score": 140.0, "issues": []any{"no service history"}}}, 0)
	require.NoError(t, err)
	score, issues := ok.Score(context.Background(), types.ListingCandidate{})
	assert.Equal(t, 100.0, score)
	assert.Equal(t, []string{"quality: no service history"}, issues)

	failing, err := NewLLMQualityScorer(logger.Nop(), &fakeAI{jsErr: errors.New("timeout")}, 0)
	require.NoError(t, err)
	score, issues = failing.Score(context.Background(), types.ListingCandidate{})
	assert.Equal(t, 0.0, score)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], systemErrorPrefix)
}

func TestHeuristicQualityScorer(t *testing.T) {
	s := NewHeuristicQualityScorer()
	full := types.ListingCandidate{
		Brand: "Honda", Model: "City", Year: 2019, Price: 900000, Mileage: intPtr(1),
		FuelType: "Petrol", Transmission: "CVT", City: "Pune", Title: "Honda City ZX CVT",
		Description: "Single owner, company serviced, all records available, new tyres fitted last month, no accidents.",
	}
	score, issues := s.Score(context.Background(), full)
	assert.Equal(t, 100.0, score)
	assert.Empty(t, issues)

	score, issues = s.Score(context.Background(), types.ListingCandidate{Brand: "Honda"})
	assert.Equal(t, 10.0, score)
	assert.Len(t, issues, 9)
}
