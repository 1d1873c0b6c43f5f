package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/listingtrust-backend/internal/data/repos"
	"github.com/yungbote/listingtrust-backend/internal/dedup"
	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/observability"
	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
	"github.com/yungbote/listingtrust-backend/internal/platform/errs"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
	"github.com/yungbote/listingtrust-backend/internal/screening"
	"github.com/yungbote/listingtrust-backend/internal/validation"
)

// Reasons reported on Result.
const (
	ReasonSaved            = "saved"
	ReasonInvalid          = "invalid"
	ReasonUnverifiedHold   = "unverified_hold"
	ReasonDuplicate        = "duplicate"
	ReasonDuplicateKey     = "duplicate_key"
	ReasonValidationReject = "validation_reject"
	ReasonDedupFailed      = "dedup_failed"
	ReasonStoreFailed      = "store_failed"
)

const defaultBatchConcurrency = 4

type Result struct {
	Saved      bool                    `json:"saved"`
	Assessment types.TrustAssessment   `json:"assessment"`
	Reason     string                  `json:"reason"`
	RecordID   *uuid.UUID              `json:"record_id,omitempty"`
	Dedup      *types.DedupOutcome     `json:"dedup,omitempty"`
	Validation *types.ValidationResult `json:"validation,omitempty"`
}

type BatchCounts struct {
	Total                 int `json:"total"`
	Saved                 int `json:"saved"`
	Rejected              int `json:"rejected"`
	Flagged               int `json:"flagged"`
	VerificationRequested int `json:"verification_requested"`
	Held                  int `json:"held"`
	Duplicates            int `json:"duplicates"`
	ValidationRejected    int `json:"validation_rejected"`
	Errors                int `json:"errors"`
}

// Add folds one result into the counts.
func (b *BatchCounts) Add(res Result, err error) {
	b.Total++
	switch {
	case res.Saved:
		b.Saved++
	case res.Reason == ReasonDuplicate || res.Reason == ReasonDuplicateKey:
		b.Duplicates++
	case err != nil:
		b.Errors++
	case res.Reason == ReasonUnverifiedHold:
		b.Held++
	case res.Reason == ReasonValidationReject:
		b.ValidationRejected++
	case res.Assessment.Action == types.ActionReject:
		b.Rejected++
	case res.Assessment.Action == types.ActionFlag:
		b.Flagged++
	case res.Assessment.Action == types.ActionRequestVerification:
		b.VerificationRequested++
	}
}

type IngestOption func(*ingestOptions)

type ingestOptions struct {
	normalizationConfidence float64
}

// WithNormalizationConfidence stamps the normalizer's confidence into the record metadata.
func WithNormalizationConfidence(v float64) IngestOption {
	return func(o *ingestOptions) { o.normalizationConfidence = v }
}

// Gateway is the only write path into the listing store.
type Gateway interface {
	Ingest(ctx context.Context, c types.ListingCandidate, sourceTag string, opts ...IngestOption) (Result, error)
	IngestBatch(ctx context.Context, cs []types.ListingCandidate, sourceTag string, concurrency int) BatchCounts
}

type GatewayDeps struct {
	Engine     screening.Engine
	Dedup      dedup.Service
	Validation validation.Manager
	Records    repos.ListingRecordRepo
}

type gateway struct {
	log  *logger.Logger
	deps GatewayDeps
}

func NewGateway(log *logger.Logger, deps GatewayDeps) (Gateway, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Engine == nil || deps.Records == nil {
		return nil, fmt.Errorf("engine and record repo required")
	}
	return &gateway{log: log.With("service", "IngestionGateway"), deps: deps}, nil
}

func (g *gateway) Ingest(ctx context.Context, c types.ListingCandidate, sourceTag string, opts ...IngestOption) (res Result, err error) {
	var o ingestOptions
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(c.Source) == "" {
		c.Source = strings.TrimSpace(sourceTag)
	}

	ctx, span := otel.Tracer("listingtrust/ingestion").Start(ctx, "ingestion.ingest")
	span.SetAttributes(attribute.String("listing.key", c.Key()), attribute.String("ingest.source_tag", sourceTag))
	defer func() {
		span.SetAttributes(attribute.String("ingest.reason", res.Reason), attribute.Bool("ingest.saved", res.Saved))
		span.End()
		observability.Current().IncIngestOutcome(res.Reason)
	}()

	if err := ValidateCandidate(c); err != nil {
		return Result{Reason: ReasonInvalid}, err
	}

	a := g.deps.Engine.Screen(ctx, c)
	res = Result{Assessment: a, Reason: string(a.Action)}
	if !a.Approved() {
		g.log.Debug("listing not published", "listing", c.Key(), "action", a.Action, "trust", a.TrustScore)
		return res, nil
	}
	if a.Status == types.StatusUnverified {
		res.Reason = ReasonUnverifiedHold
		g.log.Info("approved listing held without verification", "listing", c.Key(), "trust", a.TrustScore)
		return res, nil
	}

	var dd dedup.Result
	if g.deps.Dedup != nil {
		dd, err = g.deps.Dedup.Check(ctx, c)
		if err != nil {
			res.Reason = ReasonDedupFailed
			return res, fmt.Errorf("dedup %s: %w", c.Key(), err)
		}
		outcome := dd.Outcome
		res.Dedup = &outcome
		if outcome.Linked {
			res.Reason = ReasonDuplicate
			g.log.Info("listing linked to canonical", "listing", c.Key(), "canonical", *outcome.CanonicalID, "method", outcome.Method)
			return res, nil
		}
	}

	if g.deps.Validation != nil {
		v := g.deps.Validation.Validate(ctx, c, a)
		res.Validation = &v
		if v.Blocks() {
			res.Reason = ReasonValidationReject
			g.log.Warn("market validation blocked listing", "listing", c.Key(), "trigger", v.Trigger, "reasons", v.Reasons)
			return res, nil
		}
	}

	rec, err := buildRecord(c, a, res, dd.Fingerprint, o)
	if err != nil {
		res.Reason = ReasonStoreFailed
		return res, err
	}
	if err := g.deps.Records.Create(dbctx.Context{Ctx: ctx}, rec); err != nil {
		if errors.Is(err, errs.ErrDuplicateKey) {
			res.Reason = ReasonDuplicateKey
			return res, fmt.Errorf("store %s: %w", c.Key(), err)
		}
		res.Reason = ReasonStoreFailed
		return res, fmt.Errorf("store %s: %w", c.Key(), err)
	}
	id := rec.ID
	res.RecordID = &id
	res.Saved = true
	res.Reason = ReasonSaved

	if g.deps.Dedup != nil {
		if err := g.deps.Dedup.Register(ctx, c, dd); err != nil {
			g.log.Warn("dedup index update failed", "listing", c.Key(), "error", err)
		}
	}
	g.log.Info("listing stored", "listing", c.Key(), "status", a.Status, "trust", a.TrustScore, "record_id", id)
	return res, nil
}

func buildRecord(c types.ListingCandidate, a types.TrustAssessment, res Result, fingerprint string, o ingestOptions) (*types.ListingRecord, error) {
	meta, err := json.Marshal(types.RecordMetadata{
		Issues:                  a.Issues,
		Action:                  a.Action,
		SubScores:               a.SubScores,
		AssessedAt:              a.AssessedAt,
		Dedup:                   res.Dedup,
		Validation:              res.Validation,
		NormalizationConfidence: o.normalizationConfidence,
	})
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	features, _ := json.Marshal(c.Features)
	images, _ := json.Marshal(c.ImageURLs)
	rec := &types.ListingRecord{
		ExternalID:         c.ID,
		Source:             c.Source,
		Brand:              c.Brand,
		Model:              c.Model,
		Year:               c.Year,
		Price:              c.Price,
		Mileage:            c.Mileage,
		FuelType:           c.FuelType,
		Transmission:       c.Transmission,
		City:               c.City,
		Title:              c.Title,
		Description:        c.Description,
		Features:           features,
		ImageURLs:          images,
		SellerType:         c.SellerType,
		VerificationStatus: string(a.Status),
		TrustScore:         a.TrustScore,
		ImageVerifiedCount: a.ImagesVerified,
		Fingerprint:        fingerprint,
		Metadata:           meta,
	}
	if !c.ListedAt.IsZero() {
		t := c.ListedAt
		rec.ListedAt = &t
	}
	return rec, nil
}

func (g *gateway) IngestBatch(ctx context.Context, cs []types.ListingCandidate, sourceTag string, concurrency int) BatchCounts {
	if concurrency < 1 {
		concurrency = defaultBatchConcurrency
	}
	var (
		mu     sync.Mutex
		counts BatchCounts
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)
	for _, c := range cs {
		c := c
		eg.Go(func() error {
			res, err := g.Ingest(gctx, c, sourceTag)
			if err != nil {
				g.log.Warn("ingest failed", "listing", c.Key(), "reason", res.Reason, "error", err)
			}
			mu.Lock()
			counts.Add(res, err)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	g.log.Info("batch ingested",
		"source_tag", sourceTag,
		"total", counts.Total,
		"saved", counts.Saved,
		"rejected", counts.Rejected,
		"duplicates", counts.Duplicates,
		"errors", counts.Errors,
	)
	return counts
}
