package observability

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/listingtrust-backend/internal/platform/envutil"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

// Metrics holds every Prometheus collector of the pipeline. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests   *prometheus.CounterVec
	apiLatency    *prometheus.HistogramVec
	apiInflight   prometheus.Gauge
	externalCalls *prometheus.CounterVec
	externalTime  *prometheus.HistogramVec
	screenings    *prometheus.CounterVec
	trustScore    prometheus.Histogram
	ingestOutcome *prometheus.CounterVec
	dedupChecks   *prometheus.CounterVec
	budgetSpend   prometheus.Gauge
	budgetLeft    prometheus.Gauge
	validations   *prometheus.CounterVec
	scraperRuns   *prometheus.CounterVec
	retryDepth    prometheus.Gauge
	alerts        *prometheus.CounterVec
	phaseCost     *prometheus.CounterVec
	batchDuration prometheus.Histogram
	anomalies     *prometheus.CounterVec
	pgStats       *prometheus.GaugeVec
	redisUp       prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics once.
func Init(log *logger.Logger) *Metrics {
	initOnce.Do(func() {
		m, err := NewMetrics(prometheus.NewRegistry())
		if err != nil {
			if log != nil {
				log.Error("metrics init failed", "error", err)
			}
			return
		}
		instance = m
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

// NewMetrics registers a fresh set of collectors on registry.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}

	m.apiRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listingtrust_api_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})
	m.apiLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "listingtrust_api_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	m.apiInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "listingtrust_api_inflight_requests",
		Help: "HTTP requests currently being served.",
	})
	m.externalCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listingtrust_external_calls_total",
		Help: "Calls to external services by component and outcome class.",
	}, []string{"component", "outcome"})
	m.externalTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "listingtrust_external_call_duration_seconds",
		Help:    "External call latency by component.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"component"})
	m.screenings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listingtrust_screenings_total",
		Help: "Trust screening outcomes by action and verification status.",
	}, []string{"action", "status"})
	m.trustScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "listingtrust_trust_score",
		Help:    "Distribution of composite trust scores.",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})
	m.ingestOutcome = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listingtrust_ingest_outcomes_total",
		Help: "Ingestion gateway outcomes by reason.",
	}, []string{"outcome"})
	m.dedupChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listingtrust_dedup_checks_total",
		Help: "Deduplication checks by method and whether a link was made.",
	}, []string{"method", "linked"})
	m.budgetSpend = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "listingtrust_validation_budget_spend",
		Help: "Validation spend for the current day.",
	})
	m.budgetLeft = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "listingtrust_validation_budget_remaining",
		Help: "Validation budget remaining for the current day.",
	})
	m.validations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listingtrust_validations_total",
		Help: "Selective validations by trigger and outcome.",
	}, []string{"trigger", "outcome"})
	m.scraperRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listingtrust_scraper_runs_total",
		Help: "Scraper runs by scraper and final status.",
	}, []string{"scraper", "status"})
	m.retryDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "listingtrust_scraper_retry_queue_depth",
		Help: "Scrapers waiting for a retry.",
	})
	m.alerts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listingtrust_scraper_alerts_total",
		Help: "Retry exhaustion alerts raised by scraper.",
	}, []string{"scraper"})
	m.phaseCost = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listingtrust_batch_phase_cost_total",
		Help: "Accumulated batch cost by phase.",
	}, []string{"phase"})
	m.batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "listingtrust_batch_duration_seconds",
		Help:    "Batch orchestration wall time.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	m.anomalies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listingtrust_batch_anomalies_total",
		Help: "Batch anomalies detected by kind and severity.",
	}, []string{"kind", "severity"})
	m.pgStats = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "listingtrust_db_pool",
		Help: "Database pool statistics.",
	}, []string{"stat"})
	m.redisUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "listingtrust_redis_up",
		Help: "1 when the alert bus answered the last ping.",
	})

	collectorsToRegister := []prometheus.Collector{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.externalCalls, m.externalTime,
		m.screenings, m.trustScore, m.ingestOutcome, m.dedupChecks,
		m.budgetSpend, m.budgetLeft, m.validations,
		m.scraperRuns, m.retryDepth, m.alerts,
		m.phaseCost, m.batchDuration, m.anomalies,
		m.pgStats, m.redisUp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range collectorsToRegister {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// ObserveExternalCall records one outbound call; outcome is an httpx.Classify class.
func (m *Metrics) ObserveExternalCall(component, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.externalCalls.WithLabelValues(component, outcome).Inc()
	m.externalTime.WithLabelValues(component).Observe(dur.Seconds())
}

func (m *Metrics) ObserveScreening(action, status string, trustScore float64) {
	if m == nil {
		return
	}
	m.screenings.WithLabelValues(action, status).Inc()
	m.trustScore.Observe(trustScore)
}

func (m *Metrics) IncIngestOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ingestOutcome.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncDedup(method string, linked bool) {
	if m == nil {
		return
	}
	l := "false"
	if linked {
		l = "true"
	}
	m.dedupChecks.WithLabelValues(method, l).Inc()
}

func (m *Metrics) SetBudget(spend, remaining float64) {
	if m == nil {
		return
	}
	m.budgetSpend.Set(spend)
	m.budgetLeft.Set(remaining)
}

func (m *Metrics) IncValidation(trigger, outcome string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(trigger, outcome).Inc()
}

func (m *Metrics) IncScraperRun(scraper, status string) {
	if m == nil {
		return
	}
	m.scraperRuns.WithLabelValues(scraper, status).Inc()
}

func (m *Metrics) SetRetryQueueDepth(n int) {
	if m == nil {
		return
	}
	m.retryDepth.Set(float64(n))
}

func (m *Metrics) IncAlert(scraper string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(scraper).Inc()
}

func (m *Metrics) AddPhaseCost(phase string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.phaseCost.WithLabelValues(phase).Add(amount)
}

func (m *Metrics) ObserveBatch(dur time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(dur.Seconds())
}

func (m *Metrics) IncAnomaly(kind, severity string) {
	if m == nil {
		return
	}
	m.anomalies.WithLabelValues(kind, severity).Inc()
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("metrics: db handle unavailable", "error", err)
		}
		return
	}
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := sqlDB.Stats()
				m.pgStats.WithLabelValues("open").Set(float64(stats.OpenConnections))
				m.pgStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.pgStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.pgStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
			}
		}
	}()
}
