package ingestbatch

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	jobrt "github.com/yungbote/listingtrust-backend/internal/jobs/runtime"
	"github.com/yungbote/listingtrust-backend/internal/jobs/orchestrator"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

type Activities struct {
	Log          *logger.Logger
	Orchestrator *orchestrator.Orchestrator
	Registry     *jobrt.Registry
}

func (a *Activities) RunScraper(ctx context.Context, scraper string) (ScraperOutcome, error) {
	out := ScraperOutcome{Scraper: scraper}
	if a == nil || a.Orchestrator == nil || a.Registry == nil {
		return out, fmt.Errorf("ingestbatch: activity not configured")
	}
	ex, ok := a.Registry.Get(scraper)
	if !ok {
		return out, fmt.Errorf("ingestbatch: no extractor registered for scraper=%s", scraper)
	}

	stopHB := startHeartbeat(ctx, 15*time.Second)
	defer stopHB()

	report, err := a.Orchestrator.RunBatch(ctx, scraper, ex)
	out.BatchID = report.BatchID
	out.RunID = report.RunID.String()
	out.Extracted = report.Extracted
	out.Saved = report.Counts.Saved
	out.Rejected = report.Counts.Rejected
	out.Duplicates = report.Counts.Duplicates
	out.Errors = report.Counts.Errors
	out.Anomalies = report.Anomalies
	out.TotalCost = report.TotalCost
	if err != nil {
		if a.Log != nil {
			a.Log.Warn("scraper batch failed", "scraper", scraper, "batch_id", report.BatchID, "error", err)
		}
		return out, err
	}
	return out, nil
}

func startHeartbeat(ctx context.Context, every time.Duration) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
