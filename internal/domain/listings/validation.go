package listings

const (
	TriggerSuspicious         = "suspicious"
	TriggerPriceOutlier       = "price_outlier"
	TriggerRareModel          = "rare_model"
	TriggerLowReliability     = "low_reliability_source"
	TriggerMarketChange       = "market_change"
	RecommendationApprove     = "approve"
	RecommendationInvestigate = "investigate"
	RecommendationFlag        = "flag"
	RecommendationReject      = "reject"
)

// ValidationResult is the outcome of the selective paid validation pre-persist step.
type ValidationResult struct {
	Triggered      bool     `json:"triggered"`
	Trigger        string   `json:"trigger,omitempty"`
	AnomalyScore   float64  `json:"anomaly_score"`
	Withheld       bool     `json:"withheld,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	Confidence     float64  `json:"confidence,omitempty"`
	Cost           float64  `json:"cost"`
	EstimatedCost  float64  `json:"estimated_cost,omitempty"`
	MarketMedian   float64  `json:"market_median,omitempty"`
	Reasons        []string `json:"reasons,omitempty"`
}

// Blocks reports whether the record must not be stored.
func (v ValidationResult) Blocks() bool {
	return v.Recommendation == RecommendationReject
}
