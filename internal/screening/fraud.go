package screening

import (
	"fmt"
	"strings"
	"time"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
)

const (
	keywordPenalty = 20.0
	pricePenalty   = 75.0
	yearPenalty    = 30.0
	mileagePenalty = 15.0

	earliestPlausibleYear = 1950
)

type FraudResult struct {
	Score  float64
	Issues []string
}

type FraudDetector struct {
	keywords []string
	ceiling  int64
	now      func() time.Time
}

func NewFraudDetector(cfg Config) *FraudDetector {
	cfg = cfg.withDefaults()
	kw := make([]string, 0, len(cfg.BlacklistedKeywords))
	for _, k := range cfg.BlacklistedKeywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			kw = append(kw, k)
		}
	}
	return &FraudDetector{keywords: kw, ceiling: cfg.PriceCeiling, now: time.Now}
}

// Scan returns a fraud-free score in [0,100]; 100 means nothing suspicious was found.
func (d *FraudDetector) Scan(c types.ListingCandidate) FraudResult {
	score := 100.0
	var issues []string

	text := strings.ToLower(c.Text())
	for _, k := range d.keywords {
		if strings.Contains(text, k) {
			score -= keywordPenalty
			issues = append(issues, fmt.Sprintf("blacklisted phrase %q", k))
		}
	}
	if c.Price <= 0 || c.Price > d.ceiling {
		score -= pricePenalty
		issues = append(issues, fmt.Sprintf("price %d outside (0, %d]", c.Price, d.ceiling))
	}
	if c.Year < earliestPlausibleYear || c.Year > d.now().Year()+1 {
		score -= yearPenalty
		issues = append(issues, fmt.Sprintf("implausible year %d", c.Year))
	}
	switch {
	case c.Mileage == nil:
		score -= mileagePenalty
		issues = append(issues, "mileage missing")
	case *c.Mileage < 0:
		score -= mileagePenalty
		issues = append(issues, fmt.Sprintf("negative mileage %d", *c.Mileage))
	}
	return FraudResult{Score: clamp(score, 0, 100), Issues: issues}
}
