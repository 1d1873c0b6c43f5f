package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/listingtrust-backend/internal/data/repos"
	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/observability"
	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

const (
	outlierDeviation = 0.4
	minGroupForPrice = 3
	minBatchForSkew  = 10
	cityShareLimit   = 0.6
	yearShareLimit   = 0.5
)

// AnomalyDetector looks for cross-listing statistical oddities in one batch. It makes no paid calls.
type AnomalyDetector struct {
	log  *logger.Logger
	repo repos.AnomalyRepo
	now  func() time.Time
}

func NewAnomalyDetector(log *logger.Logger, repo repos.AnomalyRepo) (*AnomalyDetector, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &AnomalyDetector{log: log.With("service", "AnomalyDetector"), repo: repo, now: time.Now}, nil
}

// DetectAndStore runs Detect and persists the findings.
func (d *AnomalyDetector) DetectAndStore(ctx context.Context, batchID string, batch []types.ListingCandidate) ([]*types.AnomalyRecord, error) {
	found := d.Detect(batchID, batch)
	if len(found) == 0 || d.repo == nil {
		return found, nil
	}
	if _, err := d.repo.Create(dbctx.Context{Ctx: ctx}, found); err != nil {
		return found, fmt.Errorf("persist anomalies: %w", err)
	}
	d.log.Info("batch anomalies recorded", "batch_id", batchID, "count", len(found))
	return found, nil
}

func (d *AnomalyDetector) Detect(batchID string, batch []types.ListingCandidate) []*types.AnomalyRecord {
	now := d.now().UTC()
	var out []*types.AnomalyRecord
	out = append(out, d.priceOutliers(batchID, batch, now)...)
	out = append(out, d.distributionSkew(batchID, batch, now)...)
	for _, a := range out {
		observability.Current().IncAnomaly(a.Kind, a.Severity)
	}
	return out
}

func (d *AnomalyDetector) priceOutliers(batchID string, batch []types.ListingCandidate, now time.Time) []*types.AnomalyRecord {
	groups := map[string][]types.ListingCandidate{}
	var order []string
	for _, c := range batch {
		if c.Price <= 0 {
			continue
		}
		k := strings.ToLower(strings.TrimSpace(c.Brand)) + "|" + strings.ToLower(strings.TrimSpace(c.Model))
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], c)
	}

	var out []*types.AnomalyRecord
	for _, k := range order {
		g := groups[k]
		if len(g) < minGroupForPrice {
			continue
		}
		var sum float64
		for _, c := range g {
			sum += float64(c.Price)
		}
		avg := sum / float64(len(g))
		for _, c := range g {
			dev := math.Abs(float64(c.Price)-avg) / avg
			if dev <= outlierDeviation {
				continue
			}
			out = append(out, &types.AnomalyRecord{
				BatchID:     batchID,
				Kind:        types.AnomalyPriceOutlier,
				Severity:    string(outlierSeverity(dev)),
				ListingKey:  c.Key(),
				Description: fmt.Sprintf("%s priced %d, %.0f%% from batch average %.0f", c.DisplayName(), c.Price, dev*100, avg),
				Details:     mustJSON(map[string]any{"price": c.Price, "average": avg, "deviation": dev, "group_size": len(g)}),
				DetectedAt:  now,
			})
		}
	}
	return out
}

func outlierSeverity(dev float64) types.Severity {
	switch {
	case dev > 0.8:
		return types.SeverityHigh
	case dev > 0.6:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

func (d *AnomalyDetector) distributionSkew(batchID string, batch []types.ListingCandidate, now time.Time) []*types.AnomalyRecord {
	if len(batch) < minBatchForSkew {
		return nil
	}
	cities := map[string]int{}
	years := map[int]int{}
	for _, c := range batch {
		if city := strings.TrimSpace(c.City); city != "" {
			cities[strings.ToLower(city)]++
		}
		if c.Year > 0 {
			years[c.Year]++
		}
	}
	total := float64(len(batch))
	var out []*types.AnomalyRecord

	cityNames := make([]string, 0, len(cities))
	for k := range cities {
		cityNames = append(cityNames, k)
	}
	sort.Strings(cityNames)
	for _, city := range cityNames {
		share := float64(cities[city]) / total
		if share > cityShareLimit {
			out = append(out, &types.AnomalyRecord{
				BatchID:     batchID,
				Kind:        types.AnomalyMarketAnomaly,
				Severity:    string(types.SeverityMedium),
				Description: fmt.Sprintf("%.0f%% of batch listed in %s", share*100, city),
				Details:     mustJSON(map[string]any{"dimension": "city", "value": city, "share": share}),
				DetectedAt:  now,
			})
		}
	}

	yearKeys := make([]int, 0, len(years))
	for y := range years {
		yearKeys = append(yearKeys, y)
	}
	sort.Ints(yearKeys)
	for _, y := range yearKeys {
		share := float64(years[y]) / total
		if share > yearShareLimit {
			out = append(out, &types.AnomalyRecord{
				BatchID:     batchID,
				Kind:        types.AnomalyMarketAnomaly,
				Severity:    string(types.SeverityLow),
				Description: fmt.Sprintf("%.0f%% of batch is model year %d", share*100, y),
				Details:     mustJSON(map[string]any{"dimension": "year", "value": y, "share": share}),
				DetectedAt:  now,
			})
		}
	}
	return out
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}
