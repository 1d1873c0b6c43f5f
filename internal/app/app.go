package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/listingtrust-backend/internal/data/db"
	"github.com/yungbote/listingtrust-backend/internal/data/repos"
	apphttp "github.com/yungbote/listingtrust-backend/internal/http"
	httpH "github.com/yungbote/listingtrust-backend/internal/http/handlers"
	"github.com/yungbote/listingtrust-backend/internal/observability"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
	"github.com/yungbote/listingtrust-backend/internal/platform/notify"
)

const (
	serviceName     = "listingtrust"
	shutdownTimeout = 15 * time.Second
)

// Version is stamped at build time.
var Version = "dev"

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics
	Server   *apphttp.Server

	dbService    *db.Service
	shutdownOTel func(context.Context) error
	flushSentry  func()
	cancel       context.CancelFunc
	workerDone   <-chan struct{}
}

type Repos = repos.Repos

// New wires every component from cfg. Background loops are not started until Start.
func New(cfg Config) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &App{Log: log, Cfg: cfg}

	a.flushSentry = observability.InitSentry(log, cfg.SentryDSN, cfg.Env, Version)
	tracing := cfg.Tracing
	tracing.ServiceName = serviceName
	tracing.Environment = cfg.Env
	tracing.Version = Version
	a.shutdownOTel = observability.InitOTel(context.Background(), log, tracing)
	a.Metrics = observability.Init(log)

	a.dbService, err = db.NewService(log, cfg.DB)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init db: %w", err)
	}
	a.DB = a.dbService.DB()
	if err := db.AutoMigrateAll(a.DB); err != nil {
		a.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	a.Repos = repos.New(a.DB, log)

	if a.Clients, err = wireClients(log, cfg); err != nil {
		a.Close()
		return nil, err
	}
	if a.Services, err = wireServices(context.Background(), log, cfg, a.Repos, a.Clients); err != nil {
		a.Close()
		return nil, err
	}

	a.Server = apphttp.NewServer(apphttp.RouterConfig{
		Log:         log,
		Metrics:     a.Metrics,
		CORSOrigins: cfg.CORSOrigins,
		ServiceName: serviceName,
		IngestHandler: httpH.NewIngestHandlerWithDeps(httpH.IngestHandlerDeps{
			Log:     log,
			Gateway: a.Services.Gateway,
		}),
		OpsHandler: httpH.NewOpsHandlerWithDeps(httpH.OpsHandlerDeps{
			Log:        log,
			Validation: a.Services.Validation,
			Monitor:    a.Services.Monitor,
			Registry:   a.Services.Registry,
			Runner:     a.Services.Runner,
		}),
		HealthHandler: httpH.NewHealthHandler(),
	})
	return a, nil
}

// Start launches the metrics endpoint, the alert forwarder, the batch schedule, the
// retry sweeper and, when Temporal is configured, the ingest_batch worker.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)

	if bus := a.Clients.AlertBus; bus != nil {
		a.Metrics.StartRedisCollector(ctx, a.Log, bus.Client())
		if direct := a.Clients.Direct; direct != nil {
			err := bus.StartForwarder(ctx, func(al notify.Alert) {
				if err := direct.Alert(ctx, al); err != nil {
					a.Log.Warn("alert delivery failed", "scraper", al.Scraper, "error", err)
				}
			})
			if err != nil {
				return fmt.Errorf("start alert forwarder: %w", err)
			}
		}
	}

	if w := a.Services.TemporalWorker; w != nil {
		go func() {
			if err := w.Start(ctx); err != nil && ctx.Err() == nil {
				a.Log.Error("temporal worker stopped", "error", err)
			}
		}()
	}
	if err := a.Services.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.workerDone = a.Services.RetryWorker.Start(ctx)
	return nil
}

// Run serves HTTP until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("http listening", "addr", a.Cfg.HTTPAddr)
		errCh <- a.Server.Run(a.Cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
		if a.workerDone != nil {
			<-a.workerDone
		}
	}
	a.Clients.Close()
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			a.Log.Warn("db close failed", "error", err)
		}
	}
	if a.shutdownOTel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.shutdownOTel(ctx)
		cancel()
	}
	if a.flushSentry != nil {
		a.flushSentry()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
