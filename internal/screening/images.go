package screening

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/listingtrust-backend/internal/data/repos"
	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
	"github.com/yungbote/listingtrust-backend/internal/platform/errs"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

// GateResult is the authenticity gate's verdict on one image.
type GateResult struct {
	Verified       bool
	Reason         string
	PerceptualHash string
	StoredRef      string
	Width          int
	Height         int
}

// AuthenticityGate decides whether an image's provenance is acceptable.
// An error means the image could not be judged; callers count it as failed.
type AuthenticityGate interface {
	Check(ctx context.Context, listingKey, imageURL string) (GateResult, error)
}

type ImageValidation struct {
	Score     float64
	Total     int
	Verified  int
	Issues    []string
	GateCalls int
	Reused    int
}

func (v ImageValidation) HasVerified() bool { return v.Verified > 0 }

type ImageValidator struct {
	log    *logger.Logger
	assets repos.ImageAssetRepo
	gate   AuthenticityGate
}

func NewImageValidator(log *logger.Logger, assets repos.ImageAssetRepo, gate AuthenticityGate) (*ImageValidator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if assets == nil {
		return nil, fmt.Errorf("image asset repo required")
	}
	if gate == nil {
		return nil, fmt.Errorf("authenticity gate required")
	}
	return &ImageValidator{
		log:    log.With("service", "ImageAuthenticityValidator"),
		assets: assets,
		gate:   gate,
	}, nil
}

// Validate gates every image URL of c and never fails. Prior outcomes for the same
// (listing, url) pair are reused without calling the gate.
func (v *ImageValidator) Validate(ctx context.Context, c types.ListingCandidate) ImageValidation {
	out := ImageValidation{}
	key := c.Key()
	for _, raw := range c.ImageURLs {
		u := strings.TrimSpace(raw)
		if u == "" {
			continue
		}
		out.Total++
		ok, reused, err := v.one(ctx, key, u)
		if reused {
			out.Reused++
		} else if err == nil || !errors.Is(err, errLookupFailed) {
			out.GateCalls++
		}
		if err != nil {
			out.Issues = append(out.Issues, fmt.Sprintf("image %s: %v", u, err))
			continue
		}
		if ok {
			out.Verified++
		}
	}
	out.Score = imageScore(out.Verified, out.Total)
	return out
}

var errLookupFailed = errors.New("image asset lookup failed")

func (v *ImageValidator) one(ctx context.Context, listingKey, imageURL string) (verified bool, reused bool, err error) {
	dbc := dbctx.Context{Ctx: ctx}
	prior, err := v.assets.Get(dbc, listingKey, imageURL)
	if err != nil {
		return false, false, fmt.Errorf("%w: %v", errLookupFailed, err)
	}
	if prior != nil {
		return prior.Verified(), true, nil
	}

	res, err := v.gate.Check(ctx, listingKey, imageURL)
	if err != nil {
		v.log.Warn("image gate failed", "listing", listingKey, "url", imageURL, "error", err)
		return false, false, err
	}
	if !res.Verified && res.Reason != "" {
		v.log.Debug("image rejected", "listing", listingKey, "url", imageURL, "reason", res.Reason)
	}

	status := types.ImageStatusFailed
	if res.Verified {
		status = types.ImageStatusVerified
	}
	asset := &types.ImageAsset{
		ListingKey:     listingKey,
		OriginalURL:    imageURL,
		StoredRef:      res.StoredRef,
		PerceptualHash: res.PerceptualHash,
		Status:         status,
		Reason:         res.Reason,
		Width:          res.Width,
		Height:         res.Height,
	}
	if err := v.assets.Create(dbc, asset); err != nil && !errors.Is(err, errs.ErrDuplicateKey) {
		v.log.Warn("persist image asset failed", "listing", listingKey, "url", imageURL, "error", err)
	}
	return res.Verified, false, nil
}

func imageScore(verified, total int) float64 {
	if total == 0 {
		return 50
	}
	score := float64(verified) / float64(total) * 100
	if verified >= 2 {
		score += 10
	}
	return clamp(score, 0, 100)
}
