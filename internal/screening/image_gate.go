package screening

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/yungbote/listingtrust-backend/internal/data/repos"
	"github.com/yungbote/listingtrust-backend/internal/observability"
	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
	"github.com/yungbote/listingtrust-backend/internal/platform/gcp"
	"github.com/yungbote/listingtrust-backend/internal/platform/httpx"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

type GateConfig struct {
	Timeout  time.Duration
	MaxBytes int
	// MinSide rejects thumbnails and tracking pixels.
	MinSide int
}

func (c GateConfig) withDefaults() GateConfig {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 15 << 20
	}
	if c.MinSide <= 0 {
		c.MinSide = 200
	}
	return c
}

type visionGate struct {
	log    *logger.Logger
	http   *resty.Client
	assets repos.ImageAssetRepo
	vision gcp.Vision
	store  gcp.ImageStore
	cfg    GateConfig
}

// NewVisionGate downloads each image, rejects hashes already verified for another listing,
// then asks Vision for web matches and spoof likelihood. Verified images are copied to store.
func NewVisionGate(log *logger.Logger, assets repos.ImageAssetRepo, vision gcp.Vision, store gcp.ImageStore, cfg GateConfig) (AuthenticityGate, error) {
	return newVisionGate(log, assets, vision, store, cfg)
}

func newVisionGate(log *logger.Logger, assets repos.ImageAssetRepo, vision gcp.Vision, store gcp.ImageStore, cfg GateConfig) (*visionGate, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if assets == nil {
		return nil, fmt.Errorf("image asset repo required")
	}
	cfg = cfg.withDefaults()
	rc := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "listingtrust-image-gate/1.0").
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return &visionGate{
		log:    log.With("service", "AuthenticityGate"),
		http:   rc,
		assets: assets,
		vision: vision,
		store:  store,
		cfg:    cfg,
	}, nil
}

func (g *visionGate) Check(ctx context.Context, listingKey, imageURL string) (GateResult, error) {
	if g.vision == nil {
		return GateResult{}, fmt.Errorf("vision not configured")
	}
	data, contentType, err := g.download(ctx, imageURL)
	if err != nil {
		return GateResult{}, err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return GateResult{}, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	res := GateResult{
		PerceptualHash: differenceHash(img),
		Width:          b.Dx(),
		Height:         b.Dy(),
	}
	if res.Width < g.cfg.MinSide || res.Height < g.cfg.MinSide {
		res.Reason = fmt.Sprintf("image too small (%dx%d)", res.Width, res.Height)
		return res, nil
	}

	used, err := g.assets.HashUsedElsewhere(dbctx.Context{Ctx: ctx}, res.PerceptualHash, listingKey)
	if err != nil {
		return GateResult{}, fmt.Errorf("hash lookup: %w", err)
	}
	if used {
		res.Reason = "image already verified for another listing"
		return res, nil
	}

	prov, err := g.vision.Provenance(ctx, data)
	if err != nil {
		return GateResult{}, fmt.Errorf("provenance: %w", err)
	}
	if prov.FullMatches > 0 {
		res.Reason = fmt.Sprintf("image found on the web (%d full matches)", prov.FullMatches)
		return res, nil
	}
	if prov.LikelySpoofed() {
		res.Reason = "image likely edited"
		return res, nil
	}

	if g.store != nil {
		putCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		ref, err := g.store.Put(putCtx, objectKey(listingKey, imageURL, format), contentType, data)
		cancel()
		if err != nil {
			return GateResult{}, fmt.Errorf("store image: %w", err)
		}
		res.StoredRef = ref
	}
	res.Verified = true
	return res, nil
}

func (g *visionGate) download(ctx context.Context, imageURL string) (_ []byte, _ string, err error) {
	start := time.Now()
	defer func() {
		observability.Current().ObserveExternalCall("image_download", httpx.Classify(err), time.Since(start))
	}()

	resp, err := g.http.R().SetContext(ctx).Get(imageURL)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	if resp.IsError() {
		return nil, "", &httpx.StatusError{Service: "image_download", StatusCode: resp.StatusCode()}
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, "", fmt.Errorf("download: empty body")
	}
	if len(body) > g.cfg.MaxBytes {
		return nil, "", fmt.Errorf("download: %d bytes exceeds limit %d", len(body), g.cfg.MaxBytes)
	}
	ct := strings.TrimSpace(resp.Header().Get("Content-Type"))
	if ct == "" {
		ct = http.DetectContentType(body)
	}
	return body, ct, nil
}

// differenceHash is a 64-bit dHash: the image is scaled to 9x8 grey and each bit records
// whether a pixel is brighter than its right neighbour.
func differenceHash(img image.Image) string {
	small := image.NewGray(image.Rect(0, 0, 9, 8))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)
	var bits uint64
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			bits <<= 1
			if small.GrayAt(x, y).Y > small.GrayAt(x+1, y).Y {
				bits |= 1
			}
		}
	}
	return fmt.Sprintf("%016x", bits)
}

func objectKey(listingKey, imageURL, format string) string {
	sum := sha1.Sum([]byte(imageURL))
	safe := strings.NewReplacer(":", "/", " ", "_").Replace(listingKey)
	if format == "" {
		format = "img"
	}
	return fmt.Sprintf("listings/%s/%s.%s", safe, hex.EncodeToString(sum[:8]), format)
}
