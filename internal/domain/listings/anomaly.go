package listings

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	AnomalyPriceOutlier  = "price_outlier"
	AnomalyMarketAnomaly = "market_anomaly"
)

// AnomalyRecord is a batch-level statistical finding. It never costs a paid call.
type AnomalyRecord struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID     string         `gorm:"column:batch_id;not null;index" json:"batch_id"`
	Kind        string         `gorm:"column:kind;not null;index" json:"kind"`
	Severity    string         `gorm:"column:severity;not null" json:"severity"`
	ListingKey  string         `gorm:"column:listing_key;index" json:"listing_key,omitempty"`
	Description string         `gorm:"column:description;not null" json:"description"`
	Details     datatypes.JSON `gorm:"column:details" json:"details"`
	DetectedAt  time.Time      `gorm:"column:detected_at;not null;index" json:"detected_at"`
}

func (AnomalyRecord) TableName() string { return "anomaly_record" }

func (a *AnomalyRecord) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
