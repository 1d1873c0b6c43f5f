package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/listingtrust-backend/internal/http/handlers"
	httpMW "github.com/yungbote/listingtrust-backend/internal/http/middleware"
	"github.com/yungbote/listingtrust-backend/internal/observability"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string
	ServiceName string

	IngestHandler *httpH.IngestHandler
	OpsHandler    *httpH.OpsHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName == "" {
		cfg.ServiceName = "listingtrust"
	}
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Ingestion gateway
		if cfg.IngestHandler != nil {
			api.POST("/ingest", cfg.IngestHandler.Ingest)
			api.POST("/ingest/batch", cfg.IngestHandler.IngestBatch)
		}

		// Operations
		if cfg.OpsHandler != nil {
			api.GET("/budget", cfg.OpsHandler.Budget)
			api.GET("/scrapers", cfg.OpsHandler.Scrapers)
			api.GET("/scrapers/retries", cfg.OpsHandler.Retries)
			api.POST("/scrapers/:name/run", cfg.OpsHandler.RunScraper)
		}
	}

	return r
}
