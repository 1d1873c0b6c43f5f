package scraperhealth

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/listingtrust-backend/internal/data/repos"
	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/observability"
	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
	"github.com/yungbote/listingtrust-backend/internal/platform/httpx"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
	"github.com/yungbote/listingtrust-backend/internal/platform/notify"
)

type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
}

func DefaultConfig() Config {
	return Config{MaxRetries: 3, BaseDelay: 5 * time.Minute}
}

// RunOutcome closes a ScraperRunRecord. A non-nil Err marks the run failed.
type RunOutcome struct {
	Found      int
	Saved      int
	Duplicates int
	Errors     int
	Err        error
}

// Monitor tracks scraper runs and owns the retry queue. The persisted rows are the
// durable log; the in-memory index is rebuilt from them by Load.
type Monitor interface {
	Load(ctx context.Context) error
	StartRun(ctx context.Context, scraper string) (*types.ScraperRunRecord, error)
	FinishRun(ctx context.Context, run *types.ScraperRunRecord, out RunOutcome) error
	// RecordFailure returns the scheduled entry, or nil when retries are exhausted.
	RecordFailure(ctx context.Context, scraper string, cause error) (*types.RetryEntry, error)
	RecordSuccess(ctx context.Context, scraper string) error
	// DueRetries pops every entry whose next retry time has passed.
	DueRetries(ctx context.Context) []types.RetryEntry
	Pending() []types.RetryEntry
}

type monitor struct {
	log     *logger.Logger
	runs    repos.ScraperRunRepo
	retries repos.ScraperRetryRepo
	alerter notify.Alerter
	cfg     Config
	now     func() time.Time

	mu    sync.Mutex
	queue map[string]types.RetryEntry
}

func NewMonitor(log *logger.Logger, runs repos.ScraperRunRepo, retries repos.ScraperRetryRepo, alerter notify.Alerter, cfg Config) (Monitor, error) {
	return newMonitor(log, runs, retries, alerter, cfg)
}

func newMonitor(log *logger.Logger, runs repos.ScraperRunRepo, retries repos.ScraperRetryRepo, alerter notify.Alerter, cfg Config) (*monitor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if runs == nil || retries == nil {
		return nil, fmt.Errorf("scraper repos required")
	}
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	return &monitor{
		log:     log.With("service", "ScraperHealthMonitor"),
		runs:    runs,
		retries: retries,
		alerter: alerter,
		cfg:     cfg,
		now:     time.Now,
		queue:   map[string]types.RetryEntry{},
	}, nil
}

func (m *monitor) Load(ctx context.Context) error {
	rows, err := m.retries.ListAll(dbctx.Context{Ctx: ctx})
	if err != nil {
		return fmt.Errorf("load retry queue: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = make(map[string]types.RetryEntry, len(rows))
	for _, r := range rows {
		m.queue[r.ScraperName] = *r
	}
	observability.Current().SetRetryQueueDepth(len(m.queue))
	if len(rows) > 0 {
		m.log.Info("retry queue restored", "pending", len(rows))
	}
	return nil
}

func (m *monitor) StartRun(ctx context.Context, scraper string) (*types.ScraperRunRecord, error) {
	run := &types.ScraperRunRecord{
		ScraperName: scraper,
		Status:      types.RunStatusRunning,
		StartedAt:   m.now().UTC(),
	}
	if err := m.runs.Create(dbctx.Context{Ctx: ctx}, run); err != nil {
		return nil, fmt.Errorf("open run for %s: %w", scraper, err)
	}
	return run, nil
}

func (m *monitor) FinishRun(ctx context.Context, run *types.ScraperRunRecord, out RunOutcome) error {
	if run == nil {
		return fmt.Errorf("run required")
	}
	done := m.now().UTC()
	dur := done.Sub(run.StartedAt).Seconds()
	status := types.RunStatusSuccess
	errText := ""
	if out.Err != nil {
		status = types.RunStatusFailed
		errText = out.Err.Error()
	}
	meta, _ := json.Marshal(map[string]any{"duplicates": out.Duplicates, "errors": out.Errors})
	changed, err := m.runs.Finish(dbctx.Context{Ctx: ctx}, run.ID, map[string]interface{}{
		"status":           status,
		"completed_at":     done,
		"duration_seconds": dur,
		"listings_found":   out.Found,
		"listings_saved":   out.Saved,
		"error_message":    errText,
		"metadata":         datatypes.JSON(meta),
	})
	if err != nil {
		return fmt.Errorf("close run %s: %w", run.ID, err)
	}
	if !changed {
		m.log.Warn("run already closed", "scraper", run.ScraperName, "run_id", run.ID)
		return nil
	}
	run.Status = status
	run.CompletedAt = &done
	run.DurationSeconds = &dur
	run.ListingsFound = out.Found
	run.ListingsSaved = out.Saved
	run.ErrorMessage = errText
	observability.Current().IncScraperRun(run.ScraperName, status)

	if out.Err != nil {
		_, err = m.RecordFailure(ctx, run.ScraperName, out.Err)
		return err
	}
	return m.RecordSuccess(ctx, run.ScraperName)
}

func (m *monitor) RecordFailure(ctx context.Context, scraper string, cause error) (*types.RetryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dbc := dbctx.Context{Ctx: ctx}
	prev, err := m.retries.Get(dbc, scraper)
	if err != nil {
		return nil, fmt.Errorf("read retry entry: %w", err)
	}
	attempt := 1
	if prev != nil {
		attempt = prev.AttemptNumber + 1
	}
	lastErr := ""
	if cause != nil {
		lastErr = cause.Error()
	}

	if attempt > m.cfg.MaxRetries {
		if err := m.retries.Delete(dbc, scraper); err != nil {
			return nil, fmt.Errorf("clear retry entry: %w", err)
		}
		delete(m.queue, scraper)
		observability.Current().SetRetryQueueDepth(len(m.queue))
		m.log.Error("scraper retries exhausted", "scraper", scraper, "attempts", attempt-1, "error", lastErr, "class", httpx.Classify(cause))
		m.raise(ctx, notify.Alert{Scraper: scraper, Attempts: attempt - 1, LastError: lastErr, RaisedAt: m.now().UTC()})
		return nil, nil
	}

	entry := types.RetryEntry{
		ScraperName:   scraper,
		AttemptNumber: attempt,
		NextRetryAt:   m.now().UTC().Add(m.delay(attempt)),
		LastError:     lastErr,
	}
	if prev != nil {
		entry.CreatedAt = prev.CreatedAt
	}
	if err := m.retries.Upsert(dbc, &entry); err != nil {
		return nil, fmt.Errorf("persist retry entry: %w", err)
	}
	m.queue[scraper] = entry
	observability.Current().SetRetryQueueDepth(len(m.queue))
	m.log.Warn("scraper retry scheduled", "scraper", scraper, "attempt", attempt, "next_retry_at", entry.NextRetryAt, "error", lastErr)
	return &entry, nil
}

// delay is base * 2^(attempt-1).
func (m *monitor) delay(attempt int) time.Duration {
	return time.Duration(float64(m.cfg.BaseDelay) * math.Pow(2, float64(attempt-1)))
}

func (m *monitor) raise(ctx context.Context, a notify.Alert) {
	observability.Current().IncAlert(a.Scraper)
	if m.alerter == nil {
		return
	}
	if err := m.alerter.Alert(ctx, a); err != nil {
		m.log.Warn("alert delivery failed", "scraper", a.Scraper, "error", err)
	}
}

func (m *monitor) RecordSuccess(ctx context.Context, scraper string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.retries.Delete(dbctx.Context{Ctx: ctx}, scraper); err != nil {
		return fmt.Errorf("clear retry entry: %w", err)
	}
	delete(m.queue, scraper)
	observability.Current().SetRetryQueueDepth(len(m.queue))
	return nil
}

func (m *monitor) DueRetries(_ context.Context) []types.RetryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	var due []types.RetryEntry
	for name, e := range m.queue {
		if e.NextRetryAt.After(now) {
			continue
		}
		due = append(due, e)
		delete(m.queue, name)
	}
	sortEntries(due)
	observability.Current().SetRetryQueueDepth(len(m.queue))
	return due
}

func (m *monitor) Pending() []types.RetryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.RetryEntry, 0, len(m.queue))
	for _, e := range m.queue {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

func sortEntries(in []types.RetryEntry) {
	sort.Slice(in, func(i, j int) bool {
		if in[i].NextRetryAt.Equal(in[j].NextRetryAt) {
			return in[i].ScraperName < in[j].ScraperName
		}
		return in[i].NextRetryAt.Before(in[j].NextRetryAt)
	})
}
