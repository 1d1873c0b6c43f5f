package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/ingestion"
	jobrt "github.com/yungbote/listingtrust-backend/internal/jobs/runtime"
	"github.com/yungbote/listingtrust-backend/internal/platform/errs"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
	"github.com/yungbote/listingtrust-backend/internal/scraperhealth"
)

type stubGateway struct {
	last     types.ListingCandidate
	lastTag  string
	optCount int
	err      error
	batch    []types.ListingCandidate
}

func (g *stubGateway) Ingest(_ context.Context, c types.ListingCandidate, tag string, opts ...ingestion.IngestOption) (ingestion.Result, error) {
	g.last, g.lastTag, g.optCount = c, tag, len(opts)
	if g.err != nil {
		return ingestion.Result{Reason: ingestion.ReasonDuplicateKey}, g.err
	}
	return ingestion.Result{Saved: true, Reason: ingestion.ReasonSaved}, nil
}

func (g *stubGateway) IngestBatch(_ context.Context, cs []types.ListingCandidate, _ string, _ int) ingestion.BatchCounts {
	g.batch = cs
	return ingestion.BatchCounts{Total: len(cs), Saved: len(cs)}
}

type stubValidation struct{}

func (stubValidation) Validate(context.Context, types.ListingCandidate, types.TrustAssessment) types.ValidationResult {
	return types.ValidationResult{}
}

func (stubValidation) Status(context.Context) (types.BudgetStatus, error) {
	return types.BudgetStatus{DailyBudget: 40, CurrentSpend: 12.5, Remaining: 27.5, ValidationCount: 3}, nil
}

type pendingMonitor struct {
	scraperhealth.Monitor
}

func (pendingMonitor) Pending() []types.RetryEntry {
	return []types.RetryEntry{{ScraperName: "OLX", AttemptNumber: 2, NextRetryAt: time.Date(2026, 5, 1, 6, 10, 0, 0, time.UTC)}}
}

type stubRunner struct{ ran []string }

func (r *stubRunner) Run(_ context.Context, name string) error {
	r.ran = append(r.ran, name)
	if name == "Cars24" {
		return fmt.Errorf("cars24 unreachable")
	}
	return nil
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func newIngestRouter(gw *stubGateway) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewIngestHandlerWithDeps(IngestHandlerDeps{Log: logger.Nop(), Gateway: gw})
	r := gin.New()
	r.POST("/api/ingest", h.Ingest)
	r.POST("/api/ingest/batch", h.IngestBatch)
	return r
}

func TestIngestListing(t *testing.T) {
	gw := &stubGateway{}
	r := newIngestRouter(gw)

	rec := do(t, r, http.MethodPost, "/api/ingest", gin.H{
		"source_tag": "CarDekho",
		"listing":    gin.H{"id": "9", "brand": "Tata", "model": "Punch", "price": 610000},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "9", gw.last.ID)
	assert.Equal(t, "CarDekho", gw.lastTag)
	assert.Equal(t, 0, gw.optCount)
	assert.Contains(t, rec.Body.String(), `"reason":"saved"`)
}

func TestIngestRawRecordIsNormalized(t *testing.T) {
	gw := &stubGateway{}
	r := newIngestRouter(gw)

	rec := do(t, r, http.MethodPost, "/api/ingest", gin.H{
		"source_tag": "Facebook",
		"record":     gin.H{"kind": "text_derived", "id": "fb-1", "brand": "Honda", "model": "City", "text": "2016 diesel, 5.5 lakh"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Facebook", gw.last.Source)
	assert.Equal(t, int64(550000), gw.last.Price)
	assert.Equal(t, 1, gw.optCount)
}

func TestIngestErrorMapping(t *testing.T) {
	r := newIngestRouter(&stubGateway{err: fmt.Errorf("store OLX:1: %w", errs.ErrDuplicateKey)})
	rec := do(t, r, http.MethodPost, "/api/ingest", gin.H{"listing": gin.H{"id": "1", "source": "OLX"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate_key")

	rec = do(t, r, http.MethodPost, "/api/ingest", gin.H{"source_tag": "OLX"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/ingest", gin.H{"record": gin.H{"kind": "hologram"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_argument")
}

func TestIngestBatchHandler(t *testing.T) {
	gw := &stubGateway{}
	r := newIngestRouter(gw)

	rec := do(t, r, http.MethodPost, "/api/ingest/batch", gin.H{
		"source_tag": "Spinny",
		"listings":   []gin.H{{"id": "1"}, {"id": "2"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, gw.batch, 2)
	assert.Contains(t, rec.Body.String(), `"saved":2`)

	rec = do(t, r, http.MethodPost, "/api/ingest/batch", gin.H{"listings": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpsHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := jobrt.NewRegistry()
	require.NoError(t, reg.Register(&jobrt.StaticExtractor{ScraperName: "CarWale"}))
	require.NoError(t, reg.Register(&jobrt.StaticExtractor{ScraperName: "Cars24"}))
	runner := &stubRunner{}
	h := NewOpsHandlerWithDeps(OpsHandlerDeps{
		Validation: stubValidation{},
		Monitor:    pendingMonitor{},
		Registry:   reg,
		Runner:     runner,
	})
	r := gin.New()
	r.GET("/api/budget", h.Budget)
	r.GET("/api/scrapers", h.Scrapers)
	r.GET("/api/scrapers/retries", h.Retries)
	r.POST("/api/scrapers/:name/run", h.RunScraper)

	rec := do(t, r, http.MethodGet, "/api/budget", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "27.5")

	rec = do(t, r, http.MethodGet, "/api/scrapers/retries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"scraper_name":"OLX"`)

	rec = do(t, r, http.MethodGet, "/api/scrapers", nil)
	assert.Contains(t, rec.Body.String(), `["CarWale","Cars24"]`)

	rec = do(t, r, http.MethodPost, "/api/scrapers/CarWale/run", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, r, http.MethodPost, "/api/scrapers/Cars24/run", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	rec = do(t, r, http.MethodPost, "/api/scrapers/Droom/run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, []string{"CarWale", "Cars24"}, runner.ran)
}
