package screening

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
	"github.com/yungbote/listingtrust-backend/internal/platform/openai"
)

// QualityScorer rates listing presentation in [0,100]. Failures score 0.
type QualityScorer interface {
	Score(ctx context.Context, c types.ListingCandidate) (float64, []string)
}

const qualitySystemPrompt = `You review used-vehicle listings for an Indian marketplace.
Rate how complete, specific and trustworthy the listing reads, from 0 (useless or misleading) to 100 (complete and specific).
List concrete problems only. Do not invent facts that are not in the listing.`

var qualitySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"score": map[string]any{"type": "number"},
		"issues": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required":             []string{"score", "issues"},
	"additionalProperties": false,
}

type llmQualityScorer struct {
	log     *logger.Logger
	ai      openai.Client
	timeout time.Duration
}

func NewLLMQualityScorer(log *logger.Logger, ai openai.Client, timeout time.Duration) (QualityScorer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	if timeout <= 0 {
		timeout = DefaultConfig().CallTimeout
	}
	return &llmQualityScorer{log: log.With("service", "QualityScorer"), ai: ai, timeout: timeout}, nil
}

func (s *llmQualityScorer) Score(ctx context.Context, c types.ListingCandidate) (float64, []string) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload, _ := json.Marshal(map[string]any{
		"title":        c.Title,
		"description":  c.Description,
		"brand":        c.Brand,
		"model":        c.Model,
		"year":         c.Year,
		"price":        c.Price,
		"mileage":      c.Mileage,
		"fuel_type":    c.FuelType,
		"transmission": c.Transmission,
		"city":         c.City,
		"features":     c.Features,
		"image_count":  len(c.ImageURLs),
	})
	obj, err := s.ai.GenerateJSON(callCtx, qualitySystemPrompt, string(payload), "listing_quality", qualitySchema)
	if err != nil {
		s.log.Warn("quality scoring failed", "listing", c.Key(), "error", err)
		return 0, []string{fmt.Sprintf("%s: quality scoring failed: %v", systemErrorPrefix, err)}
	}
	score, ok := obj["score"].(float64)
	if !ok {
		return 0, []string{systemErrorPrefix + ": quality response missing score"}
	}
	var issues []string
	if raw, ok := obj["issues"].([]any); ok {
		for _, it := range raw {
			if str, ok := it.(string); ok && strings.TrimSpace(str) != "" {
				issues = append(issues, "quality: "+strings.TrimSpace(str))
			}
		}
	}
	return clamp(score, 0, 100), issues
}

type heuristicQualityScorer struct{}

// NewHeuristicQualityScorer scores field completeness; it is used when no LLM is configured.
func NewHeuristicQualityScorer() QualityScorer { return heuristicQualityScorer{} }

func (heuristicQualityScorer) Score(_ context.Context, c types.ListingCandidate) (float64, []string) {
	checks := []struct {
		ok    bool
		issue string
	}{
		{strings.TrimSpace(c.Brand) != "", "brand missing"},
		{strings.TrimSpace(c.Model) != "", "model missing"},
		{c.Year > 0, "year missing"},
		{c.Price > 0, "price missing"},
		{c.Mileage != nil, "mileage missing"},
		{strings.TrimSpace(c.FuelType) != "", "fuel type missing"},
		{strings.TrimSpace(c.Transmission) != "", "transmission missing"},
		{strings.TrimSpace(c.City) != "", "city missing"},
		{len(strings.TrimSpace(c.Title)) >= 10, "title too short"},
		{len(strings.TrimSpace(c.Description)) >= 80, "description too short"},
	}
	per := 100.0 / float64(len(checks))
	score := 0.0
	var issues []string
	for _, ch := range checks {
		if ch.ok {
			score += per
			continue
		}
		issues = append(issues, "quality: "+ch.issue)
	}
	return clamp(score, 0, 100), issues
}
