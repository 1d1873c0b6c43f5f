package app

import (
	"context"
	"fmt"
	"strings"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/listingtrust-backend/internal/data/repos"
	"github.com/yungbote/listingtrust-backend/internal/dedup"
	"github.com/yungbote/listingtrust-backend/internal/ingestion"
	"github.com/yungbote/listingtrust-backend/internal/jobs"
	"github.com/yungbote/listingtrust-backend/internal/jobs/orchestrator"
	jobrt "github.com/yungbote/listingtrust-backend/internal/jobs/runtime"
	"github.com/yungbote/listingtrust-backend/internal/platform/gcp"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
	"github.com/yungbote/listingtrust-backend/internal/platform/marketdata"
	"github.com/yungbote/listingtrust-backend/internal/platform/notify"
	"github.com/yungbote/listingtrust-backend/internal/platform/openai"
	"github.com/yungbote/listingtrust-backend/internal/platform/qdrant"
	"github.com/yungbote/listingtrust-backend/internal/platform/redisbus"
	"github.com/yungbote/listingtrust-backend/internal/scraperhealth"
	"github.com/yungbote/listingtrust-backend/internal/screening"
	"github.com/yungbote/listingtrust-backend/internal/temporalx"
	"github.com/yungbote/listingtrust-backend/internal/temporalx/ingestbatch"
	"github.com/yungbote/listingtrust-backend/internal/temporalx/temporalworker"
	"github.com/yungbote/listingtrust-backend/internal/validation"
)

// Clients are the external systems. Any field is nil when its configuration is absent.
type Clients struct {
	AI       openai.Client
	Vectors  qdrant.VectorStore
	Images   gcp.ImageStore
	Vision   gcp.Vision
	Market   marketdata.Client
	AlertBus redisbus.AlertBus
	Temporal temporalsdkclient.Client

	// Direct delivers alerts to the configured shoutrrr URLs.
	Direct notify.Alerter
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	var (
		c   Clients
		err error
	)
	if strings.TrimSpace(cfg.OpenAI.APIKey) != "" {
		if c.AI, err = openai.NewClient(log, cfg.OpenAI); err != nil {
			return c, fmt.Errorf("init openai: %w", err)
		}
	} else {
		log.Warn("OPENAI_API_KEY not set; moderation fails closed and quality falls back to heuristics")
	}

	if strings.TrimSpace(cfg.Qdrant.URL) != "" {
		if c.Vectors, err = qdrant.NewVectorStore(log, cfg.Qdrant); err != nil {
			return c, fmt.Errorf("init qdrant: %w", err)
		}
	} else {
		log.Info("QDRANT_URL not set; dedup uses text similarity only")
	}

	if strings.TrimSpace(cfg.GCS.Name) != "" {
		if c.Images, err = gcp.NewBucketService(log, cfg.GCS); err != nil {
			return c, fmt.Errorf("init gcs: %w", err)
		}
	}
	if cfg.VisionEnabled {
		if c.Vision, err = gcp.NewVision(log, cfg.GCPCreds, cfg.CallTimeout); err != nil {
			return c, fmt.Errorf("init vision: %w", err)
		}
	} else {
		log.Warn("vision disabled; image checks fail closed")
	}

	if strings.TrimSpace(cfg.Market.BaseURL) != "" {
		if c.Market, err = marketdata.NewClient(log, cfg.Market); err != nil {
			return c, fmt.Errorf("init market data: %w", err)
		}
	} else {
		log.Warn("MARKET_API_URL not set; selective validation reports investigate")
	}

	if len(cfg.AlertURLs) > 0 {
		if c.Direct, err = notify.NewShoutrrrAlerter(log, cfg.AlertURLs, cfg.CallTimeout); err != nil {
			return c, fmt.Errorf("init alerts: %w", err)
		}
	}
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		if c.AlertBus, err = redisbus.NewAlertBus(log, cfg.RedisAddr, cfg.AlertChannel); err != nil {
			return c, fmt.Errorf("init redis: %w", err)
		}
	}

	if c.Temporal, err = temporalx.NewClient(log, cfg.Temporal); err != nil {
		return c, fmt.Errorf("init temporal: %w", err)
	}
	return c, nil
}

// Alerter routes scraper alerts through redis when it is configured, so every
// replica's alerts reach the one forwarder. Otherwise they go out directly.
func (c Clients) Alerter() notify.Alerter {
	switch {
	case c.AlertBus != nil:
		return c.AlertBus
	case c.Direct != nil:
		return c.Direct
	}
	return nil
}

func (c Clients) Close() {
	if c.Images != nil {
		_ = c.Images.Close()
	}
	if c.Vision != nil {
		_ = c.Vision.Close()
	}
	if c.AlertBus != nil {
		_ = c.AlertBus.Close()
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
}

type Services struct {
	Engine       screening.Engine
	Dedup        dedup.Service
	Validation   validation.Manager
	Anomalies    *validation.AnomalyDetector
	Monitor      scraperhealth.Monitor
	Gateway      ingestion.Gateway
	Orchestrator *orchestrator.Orchestrator
	Registry     *jobrt.Registry

	// Local runs batches in process. Runner is Local, or the Temporal dispatcher when configured.
	Local          *jobs.LocalRunner
	Runner         jobs.Runner
	Scheduler      *jobs.Scheduler
	RetryWorker    *jobs.RetryWorker
	TemporalWorker *temporalworker.Runner
}

func wireEngine(log *logger.Logger, cfg Config, reposet repos.Repos, clients Clients) (screening.Engine, error) {
	table, err := screening.DefaultSpecTable()
	if err != nil {
		return nil, fmt.Errorf("load spec table: %w", err)
	}
	moderator, err := screening.NewOpenAIModerator(log, clients.AI, cfg.Screening.CallTimeout)
	if err != nil {
		return nil, err
	}
	quality := screening.NewHeuristicQualityScorer()
	if clients.AI != nil {
		if quality, err = screening.NewLLMQualityScorer(log, clients.AI, cfg.Screening.CallTimeout); err != nil {
			return nil, err
		}
	}
	gate, err := screening.NewVisionGate(log, reposet.Images, clients.Vision, clients.Images, cfg.Images)
	if err != nil {
		return nil, err
	}
	images, err := screening.NewImageValidator(log, reposet.Images, gate)
	if err != nil {
		return nil, err
	}
	return screening.NewEngine(log, screening.EngineDeps{
		Plausibility: screening.NewPlausibilityValidator(table),
		Source:       screening.NewSourceAssessor(cfg.Screening),
		Fraud:        screening.NewFraudDetector(cfg.Screening),
		Moderator:    moderator,
		Quality:      quality,
		Images:       images,
	})
}

func wireRegistry(log *logger.Logger, cfg Config) (*jobrt.Registry, error) {
	registry := jobrt.NewRegistry()
	for _, f := range cfg.Feeds {
		ex, err := jobrt.NewFeedExtractor(f.Name, f.Location, cfg.CallTimeout)
		if err != nil {
			return nil, fmt.Errorf("scraper %s: %w", f.Name, err)
		}
		if err := registry.Register(ex); err != nil {
			return nil, err
		}
	}
	if len(cfg.Feeds) == 0 {
		log.Warn("no scraper feeds configured; scheduled batches have nothing to run")
	}
	return registry, nil
}

func wireServices(ctx context.Context, log *logger.Logger, cfg Config, reposet repos.Repos, clients Clients) (Services, error) {
	var (
		s   Services
		err error
	)
	if s.Engine, err = wireEngine(log, cfg, reposet, clients); err != nil {
		return s, fmt.Errorf("init screening: %w", err)
	}
	if s.Dedup, err = dedup.NewService(log, reposet.CanonicalLinks, reposet.Fingerprints, clients.AI, clients.Vectors, cfg.Dedup); err != nil {
		return s, fmt.Errorf("init dedup: %w", err)
	}
	if s.Validation, err = validation.NewManager(log, validation.ManagerDeps{
		Listings: reposet.Listings,
		Runs:     reposet.Runs,
		Ledger:   reposet.Ledger,
		Logs:     reposet.ValidationLogs,
		Market:   clients.Market,
	}, cfg.Validation); err != nil {
		return s, fmt.Errorf("init validation: %w", err)
	}
	if s.Anomalies, err = validation.NewAnomalyDetector(log, reposet.Anomalies); err != nil {
		return s, fmt.Errorf("init anomalies: %w", err)
	}

	if s.Monitor, err = scraperhealth.NewMonitor(log, reposet.Runs, reposet.Retries, clients.Alerter(), cfg.Scrapers); err != nil {
		return s, fmt.Errorf("init scraper monitor: %w", err)
	}
	if err := s.Monitor.Load(ctx); err != nil {
		return s, fmt.Errorf("load retry queue: %w", err)
	}

	if s.Gateway, err = ingestion.NewGateway(log, ingestion.GatewayDeps{
		Engine:     s.Engine,
		Dedup:      s.Dedup,
		Validation: s.Validation,
		Records:    reposet.Listings,
	}); err != nil {
		return s, fmt.Errorf("init gateway: %w", err)
	}
	if s.Orchestrator, err = orchestrator.New(log, orchestrator.Deps{
		Gateway:   s.Gateway,
		Monitor:   s.Monitor,
		Anomalies: s.Anomalies,
	}, cfg.Batch); err != nil {
		return s, fmt.Errorf("init orchestrator: %w", err)
	}

	if s.Registry, err = wireRegistry(log, cfg); err != nil {
		return s, err
	}
	s.Local = &jobs.LocalRunner{Orchestrator: s.Orchestrator, Registry: s.Registry}
	s.Runner = s.Local
	if clients.Temporal != nil {
		tcfg := cfg.Temporal.WithDefaults()
		s.Runner = &ingestbatch.Dispatcher{Client: clients.Temporal, TaskQueue: tcfg.TaskQueue}
		if s.TemporalWorker, err = temporalworker.NewRunner(log, tcfg, clients.Temporal, s.Orchestrator, s.Registry); err != nil {
			return s, fmt.Errorf("init temporal worker: %w", err)
		}
	}

	if s.Scheduler, err = jobs.NewScheduler(log, s.Runner, s.Registry, cfg.Schedule, cfg.ScheduleLocation); err != nil {
		return s, fmt.Errorf("init scheduler: %w", err)
	}
	if s.RetryWorker, err = jobs.NewRetryWorker(log, s.Monitor, s.Runner, cfg.SweepInterval); err != nil {
		return s, fmt.Errorf("init retry worker: %w", err)
	}
	return s, nil
}
