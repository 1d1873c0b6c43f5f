package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/http/response"
	"github.com/yungbote/listingtrust-backend/internal/ingestion"
	"github.com/yungbote/listingtrust-backend/internal/platform/errs"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

const maxBatchListings = 500

type IngestHandlerDeps struct {
	Log     *logger.Logger
	Gateway ingestion.Gateway
}

type IngestHandler struct {
	log     *logger.Logger
	gateway ingestion.Gateway
}

func NewIngestHandlerWithDeps(deps IngestHandlerDeps) *IngestHandler {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &IngestHandler{log: log.With("handler", "IngestHandler"), gateway: deps.Gateway}
}

// ingestRequest carries either a normalized listing or one raw extraction record.
type ingestRequest struct {
	SourceTag string                  `json:"source_tag"`
	Listing   *types.ListingCandidate `json:"listing,omitempty"`
	Record    json.RawMessage         `json:"record,omitempty"`
}

// POST /api/ingest
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	c.Set("source_tag", req.SourceTag)

	var (
		candidate types.ListingCandidate
		opts      []ingestion.IngestOption
	)
	switch {
	case req.Listing != nil:
		candidate = *req.Listing
	case len(bytes.TrimSpace(req.Record)) > 0:
		n, err := normalizeOne(req.Record, req.SourceTag)
		if err != nil {
			response.RespondErr(c, "invalid_record", err)
			return
		}
		candidate = n.Candidate
		opts = append(opts, ingestion.WithNormalizationConfidence(n.Confidence))
	default:
		response.RespondError(c, http.StatusBadRequest, "missing_listing", fmt.Errorf("listing or record required"))
		return
	}

	res, err := h.gateway.Ingest(c.Request.Context(), candidate, strings.TrimSpace(req.SourceTag), opts...)
	if err != nil {
		h.log.Warn("ingest failed", "listing", candidate.Key(), "reason", res.Reason, "error", err)
		response.RespondErr(c, "ingest_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}

func normalizeOne(raw json.RawMessage, sourceTag string) (ingestion.Normalized, error) {
	buf := make([]byte, 0, len(raw)+2)
	buf = append(buf, '[')
	buf = append(buf, raw...)
	buf = append(buf, ']')
	recs, err := ingestion.DecodeRecords(buf)
	if err != nil {
		return ingestion.Normalized{}, err
	}
	if len(recs) != 1 {
		return ingestion.Normalized{}, fmt.Errorf("%w: exactly one record required", errs.ErrInvalidArgument)
	}
	return ingestion.Normalize(recs[0], strings.TrimSpace(sourceTag))
}

type batchRequest struct {
	SourceTag   string                   `json:"source_tag"`
	Concurrency int                      `json:"concurrency"`
	Listings    []types.ListingCandidate `json:"listings"`
}

// POST /api/ingest/batch
func (h *IngestHandler) IngestBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	c.Set("source_tag", req.SourceTag)
	if len(req.Listings) == 0 {
		response.RespondError(c, http.StatusBadRequest, "empty_batch", fmt.Errorf("listings required"))
		return
	}
	if len(req.Listings) > maxBatchListings {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "batch_too_large",
			fmt.Errorf("at most %d listings per batch", maxBatchListings))
		return
	}
	counts := h.gateway.IngestBatch(c.Request.Context(), req.Listings, strings.TrimSpace(req.SourceTag), req.Concurrency)
	response.RespondOK(c, gin.H{"counts": counts})
}
