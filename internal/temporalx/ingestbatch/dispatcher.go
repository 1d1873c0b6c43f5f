package ingestbatch

import (
	"context"
	"fmt"
	"time"

	temporalsdkclient "go.temporal.io/sdk/client"
)

// Dispatcher starts ingest_batch workflows. It satisfies jobs.Runner, so the cron
// scheduler and retry worker hand batches to Temporal when it is configured.
type Dispatcher struct {
	Client    temporalsdkclient.Client
	TaskQueue string
	now       func() time.Time
}

// Run starts a single-scraper workflow and returns once the server accepts it.
func (d *Dispatcher) Run(ctx context.Context, scraper string) error {
	if d == nil || d.Client == nil {
		return fmt.Errorf("ingestbatch: temporal client not configured")
	}
	now := time.Now
	if d.now != nil {
		now = d.now
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:        WorkflowID(scraper, now()),
		TaskQueue: d.TaskQueue,
	}
	in := Input{Scrapers: []string{scraper}, TriggeredBy: "dispatcher"}
	if _, err := d.Client.ExecuteWorkflow(ctx, opts, WorkflowName, in); err != nil {
		return fmt.Errorf("start %s for %s: %w", WorkflowName, scraper, err)
	}
	return nil
}

// WorkflowID is unique per scraper and minute, so a double-fired schedule starts one run.
func WorkflowID(scraper string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s", WorkflowName, scraper, at.UTC().Format("200601021504"))
}
