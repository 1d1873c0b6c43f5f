package ingestbatch

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Workflow runs one activity per scraper in parallel. Activity retries are disabled;
// a failed scraper is rescheduled by the scraper health monitor, not by Temporal.
func Workflow(ctx workflow.Context, in Input) (Output, error) {
	var out Output
	names := make([]string, 0, len(in.Scrapers))
	for _, n := range in.Scrapers {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return out, fmt.Errorf("ingestbatch: no scrapers")
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	futures := make([]workflow.Future, len(names))
	for i, name := range names {
		futures[i] = workflow.ExecuteActivity(ctx, ActivityRunScraper, name)
	}

	failed := 0
	for i, f := range futures {
		var o ScraperOutcome
		if err := f.Get(ctx, &o); err != nil {
			failed++
			o = ScraperOutcome{Scraper: names[i], Error: err.Error()}
		}
		out.Outcomes = append(out.Outcomes, o)
	}
	workflow.GetLogger(ctx).Info("ingest batch finished", "scrapers", len(names), "failed", failed)
	return out, nil
}
