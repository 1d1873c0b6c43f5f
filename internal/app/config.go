package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/yungbote/listingtrust-backend/internal/data/db"
	"github.com/yungbote/listingtrust-backend/internal/dedup"
	"github.com/yungbote/listingtrust-backend/internal/jobs"
	"github.com/yungbote/listingtrust-backend/internal/jobs/orchestrator"
	"github.com/yungbote/listingtrust-backend/internal/observability"
	"github.com/yungbote/listingtrust-backend/internal/platform/gcp"
	"github.com/yungbote/listingtrust-backend/internal/platform/marketdata"
	"github.com/yungbote/listingtrust-backend/internal/platform/openai"
	"github.com/yungbote/listingtrust-backend/internal/platform/qdrant"
	"github.com/yungbote/listingtrust-backend/internal/scraperhealth"
	"github.com/yungbote/listingtrust-backend/internal/screening"
	"github.com/yungbote/listingtrust-backend/internal/temporalx"
	"github.com/yungbote/listingtrust-backend/internal/validation"
)

type Config struct {
	Env         string
	LogMode     string
	HTTPAddr    string
	MetricsAddr string
	CORSOrigins []string
	SentryDSN   string
	CallTimeout time.Duration
	Tracing     observability.OtelConfig

	DB       db.Config
	OpenAI   openai.Config
	Qdrant   qdrant.Config
	GCS      gcp.BucketConfig
	GCPCreds string
	Market   marketdata.Config
	Temporal temporalx.Config

	// VisionEnabled turns on the image authenticity gate. Without it every image check fails closed.
	VisionEnabled bool

	RedisAddr    string
	AlertChannel string
	AlertURLs    []string

	Screening  screening.Config
	Images     screening.GateConfig
	Dedup      dedup.Config
	Validation validation.Config
	Scrapers   scraperhealth.Config
	Batch      orchestrator.Config

	Feeds            []FeedConfig
	SweepInterval    time.Duration
	Schedule         string
	ScheduleLocation *time.Location
}

// FeedConfig registers one scraper export. Location is a URL or a file path.
// Lists are used instead of maps because viper lowercases map keys.
type FeedConfig struct {
	Name     string `mapstructure:"name"`
	Location string `mapstructure:"location"`
}

type reliabilityOverride struct {
	Source string  `mapstructure:"source"`
	Score  float64 `mapstructure:"score"`
}

func setDefaults(v *viper.Viper) {
	def := screening.DefaultConfig()
	v.SetDefault("env", "development")
	v.SetDefault("log.mode", "development")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("sqlite.path", "file:listingtrust.db?_busy_timeout=5000")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.name", "listingtrust")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 20)

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.embed_model", "text-embedding-3-small")
	v.SetDefault("openai.moderation_model", "omni-moderation-latest")
	v.SetDefault("qdrant.collection", "listings")
	v.SetDefault("qdrant.vector_dim", 1536)
	v.SetDefault("alert.channel", "listingtrust.alerts")

	v.SetDefault("temporal.namespace", "listingtrust")
	v.SetDefault("temporal.task_queue", "listingtrust")
	v.SetDefault("temporal.dial_max_wait", "60s")
	v.SetDefault("temporal.retention_days", 7)
	v.SetDefault("temporal.worker_concurrency", 4)

	v.SetDefault("budget.daily_limit", 40.0)
	v.SetDefault("scrapers.max_retries", 3)
	v.SetDefault("scrapers.base_retry_delay", "5m")
	v.SetDefault("scrapers.sweep_interval", "1m")
	v.SetDefault("trust.institutional_sources", def.InstitutionalSources)
	v.SetDefault("trust.trusted_portals", def.TrustedPortals)
	v.SetDefault("trust.blacklisted_keywords", def.BlacklistedKeywords)
	v.SetDefault("trust.price_ceiling", def.PriceCeiling)
	v.SetDefault("dedup.threshold", 0.92)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.schedule", jobs.DefaultSchedule)
	v.SetDefault("batch.timezone", "Asia/Kolkata")
	v.SetDefault("external.call_timeout", "30s")
	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.sampler.ratio", 0.1)
}

// LoadConfig reads an optional YAML file (path, or TRUST_CONFIG_FILE) and lets the
// environment override any key, with dots mapped to underscores.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = strings.TrimSpace(os.Getenv("TRUST_CONFIG_FILE"))
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	timeout := v.GetDuration("external.call_timeout")
	cfg := Config{
		Env:         v.GetString("env"),
		LogMode:     v.GetString("log.mode"),
		HTTPAddr:    v.GetString("http.addr"),
		MetricsAddr: v.GetString("metrics.addr"),
		CORSOrigins: stringList(v, "cors.origins"),
		SentryDSN:   v.GetString("sentry.dsn"),
		CallTimeout: timeout,

		Tracing: observability.OtelConfig{
			Enabled:     v.GetBool("otel.enabled"),
			Endpoint:    v.GetString("otel.exporter.otlp.endpoint"),
			Insecure:    v.GetBool("otel.exporter.otlp.insecure"),
			SampleRatio: v.GetFloat64("otel.sampler.ratio"),
		},

		DB: db.Config{
			Driver:       v.GetString("store.driver"),
			DSN:          dsn(v),
			MaxOpenConns: v.GetInt("postgres.max_open_conns"),
		},
		OpenAI: openai.Config{
			APIKey:          v.GetString("openai.api_key"),
			BaseURL:         v.GetString("openai.base_url"),
			Model:           v.GetString("openai.model"),
			EmbedModel:      v.GetString("openai.embed_model"),
			ModerationModel: v.GetString("openai.moderation_model"),
			Timeout:         timeout,
		},
		Qdrant: qdrant.Config{
			URL:        v.GetString("qdrant.url"),
			APIKey:     v.GetString("qdrant.api_key"),
			Collection: v.GetString("qdrant.collection"),
			Namespace:  v.GetString("qdrant.namespace"),
			VectorDim:  v.GetInt("qdrant.vector_dim"),
			Timeout:    timeout,
		},
		GCS: gcp.BucketConfig{
			Name:         v.GetString("gcs.bucket"),
			CDNDomain:    v.GetString("gcs.cdn_domain"),
			EmulatorHost: v.GetString("storage.emulator.host"),
			Credentials:  v.GetString("google.application.credentials"),
			Timeout:      timeout,
		},
		GCPCreds:      v.GetString("google.application.credentials"),
		VisionEnabled: v.GetBool("vision.enabled"),
		Market: marketdata.Config{
			BaseURL: v.GetString("market.api.url"),
			APIKey:  v.GetString("market.api.key"),
			Timeout: timeout,
		},
		Temporal: temporalx.Config{
			Address:               v.GetString("temporal.address"),
			Namespace:             v.GetString("temporal.namespace"),
			TaskQueue:             v.GetString("temporal.task_queue"),
			ClientCertPath:        v.GetString("temporal.client_cert_path"),
			ClientKeyPath:         v.GetString("temporal.client_key_path"),
			ClientCAPath:          v.GetString("temporal.client_ca_path"),
			DialMaxWait:           v.GetDuration("temporal.dial_max_wait"),
			AutoRegisterNamespace: v.GetBool("temporal.auto_register_namespace"),
			RetentionDays:         v.GetInt("temporal.retention_days"),
			WorkerConcurrency:     v.GetInt("temporal.worker_concurrency"),
		},

		RedisAddr:    v.GetString("redis.addr"),
		AlertChannel: v.GetString("alert.channel"),
		AlertURLs:    stringList(v, "alert.urls"),

		Screening: screening.Config{
			InstitutionalSources: stringList(v, "trust.institutional_sources"),
			TrustedPortals:       stringList(v, "trust.trusted_portals"),
			BlacklistedKeywords:  stringList(v, "trust.blacklisted_keywords"),
			PriceCeiling:         v.GetInt64("trust.price_ceiling"),
			CallTimeout:          timeout,
		},
		Images: screening.GateConfig{Timeout: timeout},
		Dedup: dedup.Config{
			Threshold:   v.GetFloat64("dedup.threshold"),
			CallTimeout: timeout,
		},
		Scrapers: scraperhealth.Config{
			MaxRetries: v.GetInt("scrapers.max_retries"),
			BaseDelay:  v.GetDuration("scrapers.base_retry_delay"),
		},
		SweepInterval: v.GetDuration("scrapers.sweep_interval"),
		Schedule:      v.GetString("batch.schedule"),
	}

	loc, err := time.LoadLocation(v.GetString("batch.timezone"))
	if err != nil {
		return Config{}, fmt.Errorf("batch.timezone: %w", err)
	}
	cfg.ScheduleLocation = loc

	triggers := validation.DefaultTriggers()
	var overrides map[string]validation.TriggerConfig
	if err := v.UnmarshalKey("budget.triggers", &overrides); err != nil {
		return Config{}, fmt.Errorf("budget.triggers: %w", err)
	}
	for k, t := range overrides {
		triggers[k] = t
	}
	var overridesBySource []reliabilityOverride
	if err := v.UnmarshalKey("budget.source_reliability", &overridesBySource); err != nil {
		return Config{}, fmt.Errorf("budget.source_reliability: %w", err)
	}
	var reliability map[string]float64
	for _, o := range overridesBySource {
		if reliability == nil {
			reliability = map[string]float64{}
		}
		reliability[o.Source] = o.Score
	}
	if err := v.UnmarshalKey("scrapers.feeds", &cfg.Feeds); err != nil {
		return Config{}, fmt.Errorf("scrapers.feeds: %w", err)
	}
	cfg.Validation = validation.Config{
		DailyBudget:       v.GetFloat64("budget.daily_limit"),
		Triggers:          triggers,
		SourceReliability: reliability,
		Location:          loc,
		CallTimeout:       timeout,
	}

	prices := orchestrator.DefaultUnitPrices()
	var priceOverrides map[string]float64
	if err := v.UnmarshalKey("costs", &priceOverrides); err != nil {
		return Config{}, fmt.Errorf("costs: %w", err)
	}
	for k, p := range priceOverrides {
		prices[k] = p
	}
	cfg.Batch = orchestrator.Config{
		Concurrency: v.GetInt("batch.concurrency"),
		UnitPrices:  prices,
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var problems []error
	if c.Validation.DailyBudget < 0 {
		problems = append(problems, fmt.Errorf("budget.daily_limit must not be negative"))
	}
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		problems = append(problems, fmt.Errorf("dedup.threshold must be in (0,1]"))
	}
	if c.Scrapers.MaxRetries < 1 {
		problems = append(problems, fmt.Errorf("scrapers.max_retries must be at least 1"))
	}
	seen := map[string]bool{}
	for _, f := range c.Feeds {
		switch {
		case strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.Location) == "":
			problems = append(problems, fmt.Errorf("scrapers.feeds entries need name and location"))
		case seen[f.Name]:
			problems = append(problems, fmt.Errorf("scrapers.feeds: duplicate %s", f.Name))
		}
		seen[f.Name] = true
	}
	return errors.Join(problems...)
}

func dsn(v *viper.Viper) string {
	if strings.EqualFold(v.GetString("store.driver"), "sqlite") {
		return v.GetString("sqlite.path")
	}
	if d := v.GetString("postgres.dsn"); d != "" {
		return d
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		v.GetString("postgres.user"),
		v.GetString("postgres.password"),
		v.GetString("postgres.host"),
		v.GetString("postgres.port"),
		v.GetString("postgres.name"),
		v.GetString("postgres.sslmode"),
	)
}

// stringList accepts YAML lists and comma separated env values.
func stringList(v *viper.Viper, key string) []string {
	var raw []string
	for _, s := range v.GetStringSlice(key) {
		raw = append(raw, strings.Split(s, ",")...)
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
