package screening

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/listingtrust-backend/internal/data/repos"
	"github.com/yungbote/listingtrust-backend/internal/data/repos/testutil"
	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
	"github.com/yungbote/listingtrust-backend/internal/platform/gcp"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

func TestImageValidationIsIdempotent(t *testing.T) {
	log := logger.Nop()
	assets := repos.New(testutil.DB(t), log).Images
	gate := &countingGate{verified: true}
	v, err := NewImageValidator(log, assets, gate)
	require.NoError(t, err)

	c := types.ListingCandidate{ID: "42", Source: "CarWale", ImageURLs: []string{"https://img.example/a.jpg", "https://img.example/b.jpg"}}

	first := v.Validate(context.Background(), c)
	assert.Equal(t, 2, first.Verified)
	assert.Equal(t, 2, first.GateCalls)
	assert.Equal(t, 100.0, first.Score)

	second := v.Validate(context.Background(), c)
	assert.Equal(t, 2, second.Verified)
	assert.Equal(t, 0, second.GateCalls)
	assert.Equal(t, 2, second.Reused)
	assert.Equal(t, 2, gate.total(), "gate must not run twice for the same pair")

	stored, err := assets.ListByListing(dbctx.Context{Ctx: context.Background()}, c.Key())
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestImageGateErrorCountsAsFailedAndIsNotPersisted(t *testing.T) {
	log := logger.Nop()
	assets := repos.New(testutil.DB(t), log).Images
	v, err := NewImageValidator(log, assets, &countingGate{err: errors.New("download: context deadline exceeded")})
	require.NoError(t, err)

	c := types.ListingCandidate{ID: "7", Source: "OLX", ImageURLs: []string{"https://img.example/slow.jpg"}}
	res := v.Validate(context.Background(), c)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 0, res.Verified)
	assert.Equal(t, 0.0, res.Score)
	require.Len(t, res.Issues, 1)
	assert.Contains(t, res.Issues[0], "deadline exceeded")

	stored, err := assets.ListByListing(dbctx.Context{Ctx: context.Background()}, c.Key())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestImageScore(t *testing.T) {
	assert.Equal(t, 50.0, imageScore(0, 0))
	assert.Equal(t, 0.0, imageScore(0, 3))
	assert.InDelta(t, 33.333, imageScore(1, 3), 0.001)
	assert.InDelta(t, 76.667, imageScore(2, 3), 0.001)
	assert.Equal(t, 100.0, imageScore(4, 4))
}

func gradient(w, h int, descending bool) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / (w - 1))
			if descending {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestDifferenceHash(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 64, 64))
	assert.Equal(t, "0000000000000000", differenceHash(flat))
	assert.Equal(t, "ffffffffffffffff", differenceHash(gradient(180, 90, true)))
	assert.Equal(t, "0000000000000000", differenceHash(gradient(180, 90, false)))
}

type stubVision struct {
	prov  gcp.Provenance
	calls int
}

func (s *stubVision) Provenance(context.Context, []byte) (gcp.Provenance, error) {
	s.calls++
	return s.prov, nil
}
func (s *stubVision) Close() error { return nil }

type memStore struct{ objects map[string][]byte }

func (m *memStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return "https://cdn.example/" + key, nil
}
func (m *memStore) Close() error { return nil }

// stalledStore never finishes an upload on its own.
type stalledStore struct{}

func (stalledStore) Put(ctx context.Context, _, _ string, _ []byte) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
func (stalledStore) Close() error { return nil }

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestVisionGate(t *testing.T) {
	log := logger.Nop()
	assets := repos.New(testutil.DB(t), log).Images
	vision := &stubVision{}
	store := &memStore{}
	g, err := newVisionGate(log, assets, vision, store, GateConfig{})
	require.NoError(t, err)

	httpmock.ActivateNonDefault(g.http.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	body := pngBytes(t, gradient(320, 240, true))
	httpmock.RegisterResponder(http.MethodGet, "https://img.example/car.png",
		func(*http.Request) (*http.Response, error) {
			resp := httpmock.NewBytesResponse(http.StatusOK, body)
			resp.Header.Set("Content-Type", "image/png")
			return resp, nil
		})
	httpmock.RegisterResponder(http.MethodGet, "https://img.example/tiny.png",
		httpmock.NewBytesResponder(http.StatusOK, pngBytes(t, gradient(40, 40, true))))
	httpmock.RegisterResponder(http.MethodGet, "https://img.example/gone.png",
		httpmock.NewStringResponder(http.StatusNotFound, "not found"))

	ctx := context.Background()

	t.Run("verified and stored", func(t *testing.T) {
		res, err := g.Check(ctx, "CarWale:1", "https://img.example/car.png")
		require.NoError(t, err)
		assert.True(t, res.Verified)
		assert.Equal(t, 320, res.Width)
		assert.Contains(t, res.StoredRef, "https://cdn.example/listings/CarWale/1/")
		assert.Len(t, store.objects, 1)
	})

	t.Run("web match fails", func(t *testing.T) {
		vision.prov = gcp.Provenance{FullMatches: 3}
		defer func() { vision.prov = gcp.Provenance{} }()
		res, err := g.Check(ctx, "CarWale:2", "https://img.example/car.png")
		require.NoError(t, err)
		assert.False(t, res.Verified)
		assert.Contains(t, res.Reason, "3 full matches")
	})

	t.Run("hash reused by another listing fails before vision", func(t *testing.T) {
		first, err := g.Check(ctx, "CarWale:3", "https://img.example/car.png")
		require.NoError(t, err)
		require.NoError(t, assets.Create(dbctx.Context{Ctx: ctx}, &types.ImageAsset{
			ListingKey: "CarWale:3", OriginalURL: "https://img.example/car.png",
			PerceptualHash: first.PerceptualHash, Status: types.ImageStatusVerified,
		}))
		before := vision.calls
		res, err := g.Check(ctx, "OLX:9", "https://img.example/car.png")
		require.NoError(t, err)
		assert.False(t, res.Verified)
		assert.Equal(t, before, vision.calls)
	})

	t.Run("too small", func(t *testing.T) {
		res, err := g.Check(ctx, "CarWale:4", "https://img.example/tiny.png")
		require.NoError(t, err)
		assert.False(t, res.Verified)
		assert.Contains(t, res.Reason, "too small")
	})

	t.Run("http error is an error", func(t *testing.T) {
		_, err := g.Check(ctx, "CarWale:5", "https://img.example/gone.png")
		require.Error(t, err)
	})
}

func TestVisionGateStalledUploadFailsWithinTimeout(t *testing.T) {
	log := logger.Nop()
	assets := repos.New(testutil.DB(t), log).Images
	g, err := newVisionGate(log, assets, &stubVision{}, stalledStore{}, GateConfig{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	httpmock.ActivateNonDefault(g.http.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder(http.MethodGet, "https://img.example/car.png",
		httpmock.NewBytesResponder(http.StatusOK, pngBytes(t, gradient(320, 240, true))))

	v, err := NewImageValidator(log, assets, g)
	require.NoError(t, err)

	c := types.ListingCandidate{ID: "11", Source: "Spinny", ImageURLs: []string{"https://img.example/car.png"}}
	start := time.Now()
	res := v.Validate(context.Background(), c)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 0, res.Verified)
	require.Len(t, res.Issues, 1)
	assert.Contains(t, res.Issues[0], "deadline exceeded")
}
