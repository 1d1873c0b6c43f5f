package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/listingtrust-backend/internal/http/response"
	"github.com/yungbote/listingtrust-backend/internal/jobs"
	jobrt "github.com/yungbote/listingtrust-backend/internal/jobs/runtime"
	"github.com/yungbote/listingtrust-backend/internal/platform/apierr"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
	"github.com/yungbote/listingtrust-backend/internal/scraperhealth"
	"github.com/yungbote/listingtrust-backend/internal/validation"
)

type OpsHandlerDeps struct {
	Log        *logger.Logger
	Validation validation.Manager
	Monitor    scraperhealth.Monitor
	Registry   *jobrt.Registry
	Runner     jobs.Runner
}

// OpsHandler serves operator views of the budget, the retry queue and scraper runs.
type OpsHandler struct {
	log        *logger.Logger
	validation validation.Manager
	monitor    scraperhealth.Monitor
	registry   *jobrt.Registry
	runner     jobs.Runner
}

func NewOpsHandlerWithDeps(deps OpsHandlerDeps) *OpsHandler {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &OpsHandler{
		log:        log.With("handler", "OpsHandler"),
		validation: deps.Validation,
		monitor:    deps.Monitor,
		registry:   deps.Registry,
		runner:     deps.Runner,
	}
}

// GET /api/budget
func (h *OpsHandler) Budget(c *gin.Context) {
	if h.validation == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "validation_disabled", errors.New("selective validation is not configured"))
		return
	}
	st, err := h.validation.Status(c.Request.Context())
	if err != nil {
		response.RespondErr(c, "budget_status_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"budget": st})
}

// GET /api/scrapers/retries
func (h *OpsHandler) Retries(c *gin.Context) {
	if h.monitor == nil {
		response.RespondOK(c, gin.H{"retries": []any{}})
		return
	}
	response.RespondOK(c, gin.H{"retries": h.monitor.Pending()})
}

// GET /api/scrapers
func (h *OpsHandler) Scrapers(c *gin.Context) {
	names := []string{}
	if h.registry != nil {
		names = h.registry.Names()
	}
	response.RespondOK(c, gin.H{"scrapers": names})
}

// POST /api/scrapers/:name/run
func (h *OpsHandler) RunScraper(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if h.registry == nil || h.runner == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "runner_disabled", errors.New("batch runner is not configured"))
		return
	}
	if _, ok := h.registry.Get(name); !ok {
		response.RespondErr(c, "unknown_scraper", apierr.New(http.StatusNotFound, "unknown_scraper", errors.New("no extractor registered for "+name)))
		return
	}
	if err := h.runner.Run(c.Request.Context(), name); err != nil {
		h.log.Warn("manual batch failed", "scraper", name, "error", err)
		response.RespondError(c, http.StatusBadGateway, "batch_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"scraper": name, "status": "completed"})
}
