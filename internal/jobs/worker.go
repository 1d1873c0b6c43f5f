package jobs

import (
	"context"
	"fmt"
	"time"

	jobrt "github.com/yungbote/listingtrust-backend/internal/jobs/runtime"
	"github.com/yungbote/listingtrust-backend/internal/jobs/orchestrator"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
	"github.com/yungbote/listingtrust-backend/internal/scraperhealth"
)

// Runner starts one batch for a registered scraper.
type Runner interface {
	Run(ctx context.Context, scraper string) error
}

// LocalRunner runs batches in-process through the orchestrator.
type LocalRunner struct {
	Orchestrator *orchestrator.Orchestrator
	Registry     *jobrt.Registry
}

func (r *LocalRunner) Run(ctx context.Context, scraper string) error {
	ex, ok := r.Registry.Get(scraper)
	if !ok {
		return &missingScraperError{Scraper: scraper}
	}
	_, err := r.Orchestrator.RunBatch(ctx, scraper, ex)
	return err
}

type missingScraperError struct{ Scraper string }

func (e *missingScraperError) Error() string { return "no extractor registered for scraper=" + e.Scraper }

// RetryWorker re-runs scrapers whose retry time has elapsed.
type RetryWorker struct {
	log      *logger.Logger
	monitor  scraperhealth.Monitor
	runner   Runner
	interval time.Duration
}

func NewRetryWorker(baseLog *logger.Logger, monitor scraperhealth.Monitor, runner Runner, interval time.Duration) (*RetryWorker, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("logger required")
	}
	if monitor == nil || runner == nil {
		return nil, fmt.Errorf("monitor and runner required")
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &RetryWorker{
		log:      baseLog.With("component", "RetryWorker"),
		monitor:  monitor,
		runner:   runner,
		interval: interval,
	}, nil
}

// Start sweeps on every tick until ctx is done. The returned channel closes when the loop exits.
func (w *RetryWorker) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.SweepOnce(ctx)
			}
		}
	}()
	return done
}

// SweepOnce re-runs every due scraper and returns their names. A failed re-run is
// rescheduled by the monitor when the batch closes its run record.
func (w *RetryWorker) SweepOnce(ctx context.Context) []string {
	due := w.monitor.DueRetries(ctx)
	names := make([]string, 0, len(due))
	for _, e := range due {
		names = append(names, e.ScraperName)
		w.log.Info("retrying scraper", "scraper", e.ScraperName, "attempt", e.AttemptNumber, "last_error", e.LastError)
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.log.Error("retry run panic", "scraper", e.ScraperName, "panic", r)
				}
			}()
			if err := w.runner.Run(ctx, e.ScraperName); err != nil {
				w.log.Warn("retry run failed", "scraper", e.ScraperName, "error", err)
			}
		}()
	}
	return names
}
