package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/listingtrust-backend/internal/data/repos"
	"github.com/yungbote/listingtrust-backend/internal/data/repos/testutil"
	"github.com/yungbote/listingtrust-backend/internal/dedup"
	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
	"github.com/yungbote/listingtrust-backend/internal/platform/errs"
)

type engineFunc func(ctx context.Context, c types.ListingCandidate) types.TrustAssessment

func (f engineFunc) Screen(ctx context.Context, c types.ListingCandidate) types.TrustAssessment {
	return f(ctx, c)
}

func fixedEngine(a types.TrustAssessment) engineFunc {
	return func(_ context.Context, c types.ListingCandidate) types.TrustAssessment {
		a.ListingID = c.Key()
		return a
	}
}

var verifiedApproval = types.TrustAssessment{
	TrustScore:      86,
	Action:          types.ActionApprove,
	Status:          types.StatusVerified,
	ImagesTotal:     3,
	ImagesVerified:  2,
	ModerationClean: true,
	Issues:          []string{"quality: no service history"},
	SubScores:       types.SubScores{FraudFree: 100},
}

type stubValidation struct {
	result types.ValidationResult
	calls  int
}

func (s *stubValidation) Validate(context.Context, types.ListingCandidate, types.TrustAssessment) types.ValidationResult {
	s.calls++
	return s.result
}

func (s *stubValidation) Status(context.Context) (types.BudgetStatus, error) {
	return types.BudgetStatus{}, nil
}

func km(v int) *int { return &v }

func listing(id, source string) types.ListingCandidate {
	return types.ListingCandidate{
		ID: id, Source: source, Brand: "Hyundai", Model: "Creta", Year: 2020, Price: 1150000,
		Mileage: km(38000), FuelType: "Diesel", Transmission: "Automatic", City: "Bengaluru",
		Title:       "Hyundai Creta SX AT 2020",
		Description: "First owner, full service records, sunroof, six airbags.",
		ImageURLs:   []string{"https://img.example/creta/1.jpg"},
	}
}

type testEnv struct {
	gw    Gateway
	repos repos.Repos
}

func newTestGateway(t *testing.T, a types.TrustAssessment, withDedup bool, v *stubValidation) testEnv {
	t.Helper()
	log := testutil.Logger(t)
	r := repos.New(testutil.DB(t), log)
	deps := GatewayDeps{Engine: fixedEngine(a), Records: r.Listings}
	if withDedup {
		svc, err := dedup.NewService(log, r.CanonicalLinks, r.Fingerprints, nil, nil, dedup.Config{})
		require.NoError(t, err)
		deps.Dedup = svc
	}
	if v != nil {
		deps.Validation = v
	}
	gw, err := NewGateway(log, deps)
	require.NoError(t, err)
	return testEnv{gw: gw, repos: r}
}

func TestIngestRejectsInvalidCandidate(t *testing.T) {
	env := newTestGateway(t, verifiedApproval, false, nil)
	c := listing("", "OLX")
	res, err := env.gw.Ingest(context.Background(), c, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
	assert.Equal(t, ReasonInvalid, res.Reason)
	assert.False(t, res.Saved)
}

func TestIngestStoresApprovedVerified(t *testing.T) {
	env := newTestGateway(t, verifiedApproval, true, nil)
	ctx := context.Background()

	c := listing("77", "")
	res, err := env.gw.Ingest(ctx, c, "CarDekho", WithNormalizationConfidence(0.9))
	require.NoError(t, err)
	assert.True(t, res.Saved)
	assert.Equal(t, ReasonSaved, res.Reason)
	require.NotNil(t, res.RecordID)

	rec, err := env.repos.Listings.GetByKey(dbctx.Context{Ctx: ctx}, "CarDekho", "77")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, string(types.StatusVerified), rec.VerificationStatus)
	assert.Equal(t, 86.0, rec.TrustScore)
	assert.Equal(t, 2, rec.ImageVerifiedCount)
	assert.NotEmpty(t, rec.Fingerprint)

	var meta types.RecordMetadata
	require.NoError(t, json.Unmarshal(rec.Metadata, &meta))
	assert.Equal(t, []string{"quality: no service history"}, meta.Issues)
	assert.Equal(t, types.ActionApprove, meta.Action)
	assert.Equal(t, 0.9, meta.NormalizationConfidence)
	require.NotNil(t, meta.Dedup)
	assert.False(t, meta.Dedup.Linked)
}

func TestIngestNeverStoresUnapproved(t *testing.T) {
	for _, action := range []types.Action{types.ActionReject, types.ActionFlag, types.ActionRequestVerification} {
		t.Run(string(action), func(t *testing.T) {
			env := newTestGateway(t, types.TrustAssessment{Action: action, Status: types.StatusUnverified}, true, nil)
			ctx := context.Background()
			res, err := env.gw.Ingest(ctx, listing("1", "OLX"), "")
			require.NoError(t, err)
			assert.False(t, res.Saved)
			assert.Equal(t, string(action), res.Reason)

			rec, err := env.repos.Listings.GetByKey(dbctx.Context{Ctx: ctx}, "OLX", "1")
			require.NoError(t, err)
			assert.Nil(t, rec)
		})
	}
}

func TestIngestHoldsApprovedButUnverified(t *testing.T) {
	a := verifiedApproval
	a.Status = types.StatusUnverified
	a.ImagesVerified = 0
	env := newTestGateway(t, a, false, nil)
	res, err := env.gw.Ingest(context.Background(), listing("1", "Maruti True Value"), "")
	require.NoError(t, err)
	assert.False(t, res.Saved)
	assert.Equal(t, ReasonUnverifiedHold, res.Reason)
}

func TestIngestLinkedDuplicateIsNotStored(t *testing.T) {
	env := newTestGateway(t, verifiedApproval, true, nil)
	ctx := context.Background()

	_, err := env.gw.Ingest(ctx, listing("1", "CarDekho"), "")
	require.NoError(t, err)

	res, err := env.gw.Ingest(ctx, listing("a-9", "CarWale"), "")
	require.NoError(t, err)
	assert.False(t, res.Saved)
	assert.Equal(t, ReasonDuplicate, res.Reason)
	require.NotNil(t, res.Dedup)
	assert.Equal(t, "CarDekho:1", *res.Dedup.CanonicalID)

	rec, err := env.repos.Listings.GetByKey(dbctx.Context{Ctx: ctx}, "CarWale", "a-9")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestIngestSurfacesDuplicateKey(t *testing.T) {
	env := newTestGateway(t, verifiedApproval, false, nil)
	ctx := context.Background()

	_, err := env.gw.Ingest(ctx, listing("1", "OLX"), "")
	require.NoError(t, err)

	res, err := env.gw.Ingest(ctx, listing("1", "OLX"), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrDuplicateKey))
	assert.False(t, res.Saved)
	assert.Equal(t, ReasonDuplicateKey, res.Reason)
}

func TestIngestValidationRejectBlocksStorage(t *testing.T) {
	v := &stubValidation{result: types.ValidationResult{
		Triggered:      true,
		Trigger:        types.TriggerPriceOutlier,
		Recommendation: types.RecommendationReject,
		Cost:           0.05,
	}}
	env := newTestGateway(t, verifiedApproval, false, v)
	res, err := env.gw.Ingest(context.Background(), listing("1", "OLX"), "")
	require.NoError(t, err)
	assert.False(t, res.Saved)
	assert.Equal(t, ReasonValidationReject, res.Reason)
	assert.Equal(t, 1, v.calls)

	v.result.Recommendation = types.RecommendationFlag
	res, err = env.gw.Ingest(context.Background(), listing("2", "OLX"), "")
	require.NoError(t, err)
	assert.True(t, res.Saved)
	require.NotNil(t, res.Validation)
	assert.Equal(t, types.RecommendationFlag, res.Validation.Recommendation)
}

func TestIngestBatchCounts(t *testing.T) {
	log := testutil.Logger(t)
	r := repos.New(testutil.DB(t), log)
	engine := engineFunc(func(_ context.Context, c types.ListingCandidate) types.TrustAssessment {
		switch c.ID {
		case "r":
			return types.TrustAssessment{Action: types.ActionReject, Status: types.StatusUnverified}
		case "f":
			return types.TrustAssessment{Action: types.ActionFlag, Status: types.StatusUnverified}
		case "v":
			return types.TrustAssessment{Action: types.ActionRequestVerification, Status: types.StatusUnverified}
		}
		return verifiedApproval
	})
	gw, err := NewGateway(log, GatewayDeps{Engine: engine, Records: r.Listings})
	require.NoError(t, err)

	var batch []types.ListingCandidate
	for i := 0; i < 5; i++ {
		batch = append(batch, listing(fmt.Sprint(i), ""))
	}
	batch = append(batch, listing("r", ""), listing("f", ""), listing("v", ""), listing("", ""))

	counts := gw.IngestBatch(context.Background(), batch, "Spinny", 3)
	assert.Equal(t, BatchCounts{
		Total:                 9,
		Saved:                 5,
		Rejected:              1,
		Flagged:               1,
		VerificationRequested: 1,
		Errors:                1,
	}, counts)
}
