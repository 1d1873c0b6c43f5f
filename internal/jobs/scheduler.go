package jobs

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron"

	jobrt "github.com/yungbote/listingtrust-backend/internal/jobs/runtime"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

const DefaultSchedule = "0 0 6,18 * * *"

// Scheduler fires a batch for every registered scraper on a cron schedule.
type Scheduler struct {
	log      *logger.Logger
	cron     *cron.Cron
	runner   Runner
	registry *jobrt.Registry
	spec     string
}

func NewScheduler(baseLog *logger.Logger, runner Runner, registry *jobrt.Registry, spec string, loc *time.Location) (*Scheduler, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("logger required")
	}
	if runner == nil || registry == nil {
		return nil, fmt.Errorf("runner and registry required")
	}
	if spec == "" {
		spec = DefaultSchedule
	}
	if loc == nil {
		loc = time.Local
	}
	if _, err := cron.Parse(spec); err != nil {
		return nil, fmt.Errorf("batch schedule %q: %w", spec, err)
	}
	return &Scheduler{
		log:      baseLog.With("component", "BatchScheduler"),
		cron:     cron.NewWithLocation(loc),
		runner:   runner,
		registry: registry,
		spec:     spec,
	}, nil
}

// Start registers the schedule and stops the cron when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.cron.AddFunc(s.spec, func() { s.RunAll(ctx) }); err != nil {
		return fmt.Errorf("schedule batches: %w", err)
	}
	s.cron.Start()
	s.log.Info("batch schedule started", "spec", s.spec, "scrapers", s.registry.Names())
	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
	return nil
}

// RunAll runs each registered scraper once, in name order.
func (s *Scheduler) RunAll(ctx context.Context) {
	for _, name := range s.registry.Names() {
		if ctx.Err() != nil {
			return
		}
		if err := s.runner.Run(ctx, name); err != nil {
			s.log.Warn("scheduled batch failed", "scraper", name, "error", err)
		}
	}
}
