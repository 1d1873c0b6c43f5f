package ingestbatch

const (
	WorkflowName       = "ingest_batch"
	ActivityRunScraper = "ingest_batch_run_scraper"
)

type Input struct {
	Scrapers    []string `json:"scrapers"`
	TriggeredBy string   `json:"triggered_by,omitempty"`
}

// ScraperOutcome is the activity result for one scraper. Error is set when the batch failed.
type ScraperOutcome struct {
	Scraper    string  `json:"scraper"`
	BatchID    string  `json:"batch_id,omitempty"`
	RunID      string  `json:"run_id,omitempty"`
	Extracted  int     `json:"extracted"`
	Saved      int     `json:"saved"`
	Rejected   int     `json:"rejected"`
	Duplicates int     `json:"duplicates"`
	Errors     int     `json:"errors"`
	Anomalies  int     `json:"anomalies"`
	TotalCost  float64 `json:"total_cost"`
	Error      string  `json:"error,omitempty"`
}

type Output struct {
	Outcomes []ScraperOutcome `json:"outcomes"`
}
