package gcp

import (
	"context"
	"fmt"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/yungbote/listingtrust-backend/internal/observability"
	"github.com/yungbote/listingtrust-backend/internal/platform/ctxutil"
	"github.com/yungbote/listingtrust-backend/internal/platform/httpx"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

// Provenance is what Vision knows about where an image came from.
type Provenance struct {
	// FullMatches counts identical copies found on the web.
	FullMatches    int
	PartialMatches int
	MatchingPages  []string
	// Spoof is the safe-search likelihood that the image was altered or is a meme.
	Spoof visionpb.Likelihood
}

// LikelySpoofed reports LIKELY or VERY_LIKELY spoof likelihood.
func (p Provenance) LikelySpoofed() bool {
	return p.Spoof >= visionpb.Likelihood_LIKELY
}

type Vision interface {
	Provenance(ctx context.Context, img []byte) (Provenance, error)
	Close() error
}

type visionService struct {
	log          *logger.Logger
	visionClient *vision.ImageAnnotatorClient
	timeout      time.Duration
}

func NewVision(log *logger.Logger, creds string, timeout time.Duration) (Vision, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	vClient, err := vision.NewImageAnnotatorClient(context.Background(), ClientOptions(creds)...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &visionService{
		log:          log.With("service", "gcp.Vision"),
		visionClient: vClient,
		timeout:      timeout,
	}, nil
}

func (s *visionService) Close() error {
	if s == nil || s.visionClient == nil {
		return nil
	}
	return s.visionClient.Close()
}

func (s *visionService) Provenance(ctx context.Context, img []byte) (out Provenance, err error) {
	if len(img) == 0 {
		return Provenance{}, fmt.Errorf("vision: empty image")
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), s.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		observability.Current().ObserveExternalCall("vision", httpx.Classify(err), time.Since(start))
	}()

	req := &visionpb.AnnotateImageRequest{
		Image: &visionpb.Image{Content: img},
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_WEB_DETECTION, MaxResults: 10},
			{Type: visionpb.Feature_SAFE_SEARCH_DETECTION},
		},
	}
	resp, err := s.visionClient.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{req},
	})
	if err != nil {
		return Provenance{}, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return Provenance{}, nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return Provenance{}, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	return provenanceFromResponse(r0), nil
}

func provenanceFromResponse(r *visionpb.AnnotateImageResponse) Provenance {
	out := Provenance{Spoof: visionpb.Likelihood_UNKNOWN}
	if web := r.GetWebDetection(); web != nil {
		out.FullMatches = len(web.GetFullMatchingImages())
		out.PartialMatches = len(web.GetPartialMatchingImages())
		for _, p := range web.GetPagesWithMatchingImages() {
			if p.GetUrl() != "" {
				out.MatchingPages = append(out.MatchingPages, p.GetUrl())
			}
		}
	}
	if ss := r.GetSafeSearchAnnotation(); ss != nil {
		out.Spoof = ss.GetSpoof()
	}
	return out
}
