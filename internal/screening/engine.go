package screening

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/observability"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

// Weights of the five trust components. They sum to 1.0.
const (
	WeightSource     = 0.15
	WeightModeration = 0.15
	WeightImage      = 0.30
	WeightQuality    = 0.25
	WeightFraudFree  = 0.15
)

const (
	moderationCleanScore   = 100.0
	moderationFlaggedScore = 20.0

	fraudRejectBelow      = 30.0
	institutionalMinTrust = 20.0
	autoApproveMinTrust   = 80.0
	manualReviewMinTrust  = 60.0
)

// Engine turns one candidate into a TrustAssessment. Screen never returns an error and never panics.
type Engine interface {
	Screen(ctx context.Context, c types.ListingCandidate) types.TrustAssessment
}

type EngineDeps struct {
	Plausibility *PlausibilityValidator
	Source       *SourceAssessor
	Fraud        *FraudDetector
	Moderator    Moderator
	Quality      QualityScorer
	Images       *ImageValidator
}

type engine struct {
	log  *logger.Logger
	deps EngineDeps
	now  func() time.Time
}

func NewEngine(log *logger.Logger, deps EngineDeps) (Engine, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	switch {
	case deps.Plausibility == nil:
		return nil, fmt.Errorf("plausibility validator required")
	case deps.Source == nil:
		return nil, fmt.Errorf("source assessor required")
	case deps.Fraud == nil:
		return nil, fmt.Errorf("fraud detector required")
	case deps.Moderator == nil:
		return nil, fmt.Errorf("moderator required")
	case deps.Quality == nil:
		return nil, fmt.Errorf("quality scorer required")
	case deps.Images == nil:
		return nil, fmt.Errorf("image validator required")
	}
	return &engine{
		log:  log.With("service", "TrustScreeningEngine"),
		deps: deps,
		now:  time.Now,
	}, nil
}

func (e *engine) Screen(ctx context.Context, c types.ListingCandidate) (out types.TrustAssessment) {
	ctx, span := otel.Tracer("listingtrust/screening").Start(ctx, "screening.screen")
	span.SetAttributes(
		attribute.String("listing.key", c.Key()),
		attribute.String("listing.source", c.Source),
	)
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("screening panicked; failing closed", "listing", c.Key(), "panic", r)
			observability.ReportPanic(r, map[string]string{"component": "screening", "listing": c.Key()})
			span.SetStatus(codes.Error, fmt.Sprint(r))
			out = failClosedAssessment(c, fmt.Sprintf("%s: screening panicked: %v", systemErrorPrefix, r), e.now())
		}
		span.SetAttributes(
			attribute.String("screening.action", string(out.Action)),
			attribute.Float64("screening.trust", out.TrustScore),
		)
		span.End()
		observability.Current().ObserveScreening(string(out.Action), string(out.Status), out.TrustScore)
	}()
	return e.screen(ctx, c)
}

func (e *engine) screen(ctx context.Context, c types.ListingCandidate) types.TrustAssessment {
	plaus := e.deps.Plausibility.Validate(c)
	source := e.deps.Source.Score(c)
	fraud := e.deps.Fraud.Scan(c)
	mod := e.deps.Moderator.Moderate(ctx, c.Text())
	quality, qualityIssues := e.deps.Quality.Score(ctx, c)
	images := e.deps.Images.Validate(ctx, c)
	institutional := e.deps.Source.Institutional(c.Source)

	moderationScore := moderationFlaggedScore
	if mod.Clean {
		moderationScore = moderationCleanScore
	}
	sub := types.SubScores{
		Source:               source,
		Moderation:           moderationScore,
		ImageAuthenticity:    images.Score,
		Quality:              quality * plaus.Modifier(),
		FraudFree:            fraud.Score,
		PlausibilityModifier: plaus.Modifier(),
	}
	trust := combine(sub)

	action, status := decide(decisionInput{
		Trust:          trust,
		Severity:       mod.Severity,
		Clean:          mod.Clean,
		FraudFree:      fraud.Score,
		Institutional:  institutional,
		ImagesTotal:    images.Total,
		ImagesVerified: images.Verified,
	})

	issues := make([]string, 0, len(plaus.Issues)+len(fraud.Issues)+len(mod.Violations)+len(qualityIssues)+len(images.Issues))
	issues = append(issues, plaus.Issues...)
	issues = append(issues, fraud.Issues...)
	for _, v := range mod.Violations {
		issues = append(issues, "moderation: "+v)
	}
	issues = append(issues, qualityIssues...)
	issues = append(issues, images.Issues...)

	e.log.Debug("screened",
		"listing", c.Key(),
		"trust", trust,
		"action", action,
		"status", status,
		"images_verified", images.Verified,
		"images_total", images.Total,
	)

	return types.TrustAssessment{
		ListingID:              c.Key(),
		TrustScore:             trust,
		SubScores:              sub,
		Issues:                 issues,
		Action:                 action,
		Status:                 status,
		ImagesTotal:            images.Total,
		ImagesVerified:         images.Verified,
		ModerationSeverity:     mod.Severity,
		ModerationClean:        mod.Clean,
		PlausibilityValid:      plaus.Valid,
		PlausibilityConfidence: plaus.Confidence,
		Institutional:          institutional,
		AssessedAt:             e.now().UTC(),
		Usage: types.Usage{
			ModerationCalls: 1,
			QualityCalls:    1,
			ImageGateCalls:  images.GateCalls,
			ImagesReused:    images.Reused,
		},
	}
}

// combine weights the sub-scores and clamps the result to [0,100].
func combine(s types.SubScores) float64 {
	trust := WeightSource*s.Source +
		WeightModeration*s.Moderation +
		WeightImage*s.ImageAuthenticity +
		WeightQuality*s.Quality +
		WeightFraudFree*s.FraudFree
	return clamp(trust, 0, 100)
}

type decisionInput struct {
	Trust          float64
	Severity       types.Severity
	Clean          bool
	FraudFree      float64
	Institutional  bool
	ImagesTotal    int
	ImagesVerified int
}

// decide applies the publication rules in order; the first match wins.
func decide(in decisionInput) (types.Action, types.VerificationStatus) {
	hasVerified := in.ImagesVerified > 0

	if in.Severity.Blocking() || in.FraudFree < fraudRejectBelow {
		return types.ActionReject, types.StatusUnverified
	}
	if !hasVerified && !in.Institutional {
		return types.ActionRequestVerification, types.StatusUnverified
	}
	// Shadowed by the zero-tolerance gate above; kept so the rule order stays explicit.
	if in.ImagesTotal > 0 && in.ImagesVerified == 0 && !in.Institutional {
		return types.ActionReject, types.StatusUnverified
	}
	if in.Institutional && in.Clean && in.Trust >= institutionalMinTrust {
		if hasVerified || in.ImagesTotal > 0 {
			return types.ActionApprove, types.StatusCertified
		}
		return types.ActionApprove, types.StatusUnverified
	}
	if in.Trust >= autoApproveMinTrust && in.Clean {
		if hasVerified {
			return types.ActionApprove, types.StatusVerified
		}
		return types.ActionApprove, types.StatusUnverified
	}
	if in.Trust >= manualReviewMinTrust {
		return types.ActionFlag, types.StatusUnverified
	}
	return types.ActionRequestVerification, types.StatusUnverified
}

func failClosedAssessment(c types.ListingCandidate, issue string, now time.Time) types.TrustAssessment {
	return types.TrustAssessment{
		ListingID:          c.Key(),
		TrustScore:         0,
		Issues:             []string{issue},
		Action:             types.ActionFlag,
		Status:             types.StatusUnverified,
		ModerationSeverity: types.SeverityHigh,
		ImagesTotal:        len(c.ImageURLs),
		AssessedAt:         now.UTC(),
	}
}
