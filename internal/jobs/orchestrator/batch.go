package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/ingestion"
	jobrt "github.com/yungbote/listingtrust-backend/internal/jobs/runtime"
	"github.com/yungbote/listingtrust-backend/internal/observability"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
	"github.com/yungbote/listingtrust-backend/internal/scraperhealth"
)

const defaultConcurrency = 4

type AnomalyDetector interface {
	DetectAndStore(ctx context.Context, batchID string, batch []types.ListingCandidate) ([]*types.AnomalyRecord, error)
}

type Config struct {
	Concurrency int
	UnitPrices  map[string]float64
}

type Deps struct {
	Gateway   ingestion.Gateway
	Monitor   scraperhealth.Monitor
	Anomalies AnomalyDetector
}

// BatchReport summarizes one scraper run.
type BatchReport struct {
	BatchID    string                `json:"batch_id"`
	RunID      uuid.UUID             `json:"run_id"`
	Scraper    string                `json:"scraper"`
	Extracted  int                   `json:"extracted"`
	Normalized int                   `json:"normalized"`
	Counts     ingestion.BatchCounts `json:"counts"`
	Anomalies  int                   `json:"anomalies"`
	Costs      map[string]PhaseCost  `json:"costs"`
	TotalCost  float64               `json:"total_cost"`
	Duration   time.Duration         `json:"duration"`
	Results    []ingestion.Result    `json:"-"`
}

// Orchestrator drives a scraper batch through every phase up to storage.
type Orchestrator struct {
	log  *logger.Logger
	deps Deps
	cfg  Config
}

func New(log *logger.Logger, deps Deps, cfg Config) (*Orchestrator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Gateway == nil || deps.Monitor == nil {
		return nil, fmt.Errorf("gateway and monitor required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.UnitPrices == nil {
		cfg.UnitPrices = DefaultUnitPrices()
	}
	return &Orchestrator{log: log.With("service", "BatchOrchestrator"), deps: deps, cfg: cfg}, nil
}

type item struct {
	candidate  types.ListingCandidate
	confidence float64
}

// RunBatch opens a run record, extracts, and ingests every normalized candidate. An
// extraction failure closes the run as failed, which schedules a retry.
func (o *Orchestrator) RunBatch(ctx context.Context, scraperName string, ex jobrt.Extractor) (BatchReport, error) {
	start := time.Now()
	report := BatchReport{BatchID: uuid.NewString(), Scraper: scraperName}
	ledger := NewCostLedger(o.cfg.UnitPrices)

	ctx, span := otel.Tracer("listingtrust/jobs").Start(ctx, "batch.run")
	span.SetAttributes(attribute.String("batch.id", report.BatchID), attribute.String("batch.scraper", scraperName))
	defer span.End()

	log := o.log.With("scraper", scraperName, "batch_id", report.BatchID)
	run, err := o.deps.Monitor.StartRun(ctx, scraperName)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	report.RunID = run.ID

	records, err := ex.Extract(ctx)
	if err != nil {
		log.Warn("extraction failed", "error", err)
		span.SetStatus(codes.Error, err.Error())
		if ferr := o.deps.Monitor.FinishRun(ctx, run, scraperhealth.RunOutcome{Err: err}); ferr != nil {
			log.Error("close failed run", "error", ferr)
		}
		return o.finish(report, ledger, start), fmt.Errorf("extract %s: %w", scraperName, err)
	}
	report.Extracted = len(records)
	ledger.Add(PhaseExtraction, len(records))

	items := make([]item, 0, len(records))
	normErrors := 0
	for _, rec := range records {
		n, err := ingestion.Normalize(rec, scraperName)
		if err != nil {
			normErrors++
			log.Debug("record dropped at normalization", "kind", rec.Kind(), "error", err)
			continue
		}
		items = append(items, item{candidate: n.Candidate, confidence: n.Confidence})
	}
	ledger.Add(PhaseNormalization, len(records))
	report.Normalized = len(items)

	if resolver, ok := ex.(jobrt.ImageResolver); ok {
		o.resolveImages(ctx, resolver, items, ledger)
	}

	results := make([]ingestion.Result, len(items))
	errsAt := make([]error, len(items))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(o.cfg.Concurrency)
	for i := range items {
		i := i
		eg.Go(func() error {
			res, err := o.deps.Gateway.Ingest(gctx, items[i].candidate, scraperName,
				ingestion.WithNormalizationConfidence(items[i].confidence))
			results[i] = res
			errsAt[i] = err
			book(ledger, res)
			return nil
		})
	}
	_ = eg.Wait()

	for i := range results {
		report.Counts.Add(results[i], errsAt[i])
	}
	report.Counts.Total += normErrors
	report.Counts.Errors += normErrors
	report.Results = results

	if o.deps.Anomalies != nil {
		batch := make([]types.ListingCandidate, len(items))
		for i := range items {
			batch[i] = items[i].candidate
		}
		found, err := o.deps.Anomalies.DetectAndStore(ctx, report.BatchID, batch)
		if err != nil {
			log.Warn("anomaly detection failed", "error", err)
		}
		report.Anomalies = len(found)
	}

	out := scraperhealth.RunOutcome{
		Found:      report.Extracted,
		Saved:      report.Counts.Saved,
		Duplicates: report.Counts.Duplicates,
		Errors:     report.Counts.Errors,
	}
	if err := o.deps.Monitor.FinishRun(ctx, run, out); err != nil {
		log.Error("close run", "error", err)
	}
	report = o.finish(report, ledger, start)
	span.SetAttributes(attribute.Int("batch.saved", report.Counts.Saved), attribute.Float64("batch.cost", report.TotalCost))
	log.Info("batch complete",
		"extracted", report.Extracted,
		"saved", report.Counts.Saved,
		"rejected", report.Counts.Rejected,
		"duplicates", report.Counts.Duplicates,
		"anomalies", report.Anomalies,
		"cost", report.TotalCost,
		"duration", report.Duration,
	)
	return report, nil
}

func (o *Orchestrator) finish(report BatchReport, ledger *CostLedger, start time.Time) BatchReport {
	report.Costs = ledger.Snapshot()
	report.TotalCost = ledger.Total()
	report.Duration = time.Since(start)
	ledger.publish()
	observability.Current().ObserveBatch(report.Duration)
	return report
}

func (o *Orchestrator) resolveImages(ctx context.Context, resolver jobrt.ImageResolver, items []item, ledger *CostLedger) {
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(o.cfg.Concurrency)
	for i := range items {
		if len(items[i].candidate.ImageURLs) > 0 {
			continue
		}
		i := i
		eg.Go(func() error {
			urls, err := resolver.ResolveImages(gctx, items[i].candidate)
			ledger.Add(PhaseImageExtraction, 1)
			if err != nil {
				o.log.Debug("image resolution failed", "listing", items[i].candidate.Key(), "error", err)
				return nil
			}
			items[i].candidate.ImageURLs = urls
			return nil
		})
	}
	_ = eg.Wait()
}

func book(ledger *CostLedger, res ingestion.Result) {
	u := res.Assessment.Usage
	ledger.Add(PhaseTrustScreening, u.ModerationCalls+u.QualityCalls+u.ImageGateCalls)
	if res.Dedup != nil {
		ledger.Add(PhaseDeduplication, 1)
	}
	if res.Validation != nil && res.Validation.Triggered && res.Validation.Cost > 0 {
		ledger.AddAmount(PhaseSelectiveValidation, res.Validation.Cost)
	}
	if res.Saved {
		ledger.Add(PhaseStorage, 1)
	}
}
