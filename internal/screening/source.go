package screening

import (
	"strings"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
)

type SourceAssessor struct {
	trusted       map[string]struct{}
	institutional map[string]struct{}
}

func NewSourceAssessor(cfg Config) *SourceAssessor {
	return &SourceAssessor{
		trusted:       foldSet(cfg.TrustedPortals),
		institutional: exactSet(cfg.InstitutionalSources),
	}
}

// Score is base 50 plus portal, dealer, external-verification and image bonuses, clamped to [0,100].
func (a *SourceAssessor) Score(c types.ListingCandidate) float64 {
	score := 50.0
	if _, ok := a.trusted[strings.ToLower(strings.TrimSpace(c.Source))]; ok {
		score += 30
	}
	if strings.EqualFold(strings.TrimSpace(c.SellerType), types.SellerTypeDealer) {
		score += 15
	}
	if c.ExternallyVerified {
		score += 20
	}
	if len(c.ImageURLs) > 0 {
		score += 10
	}
	return clamp(score, 0, 100)
}

// Institutional matches the source name exactly; "maruti true value" is not "Maruti True Value".
func (a *SourceAssessor) Institutional(source string) bool {
	_, ok := a.institutional[source]
	return ok
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
