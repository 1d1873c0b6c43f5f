package scrapers

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// ScraperRunRecord is one scraper execution. Status moves running -> success|failed exactly once.
type ScraperRunRecord struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ScraperName     string         `gorm:"column:scraper_name;not null;index" json:"scraper_name"`
	Status          string         `gorm:"column:status;not null;index" json:"status"`
	StartedAt       time.Time      `gorm:"column:started_at;not null;index" json:"started_at"`
	CompletedAt     *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	DurationSeconds *float64       `gorm:"column:duration_seconds" json:"duration_seconds,omitempty"`
	ListingsFound   int            `gorm:"column:listings_found;not null;default:0" json:"listings_found"`
	ListingsSaved   int            `gorm:"column:listings_saved;not null;default:0" json:"listings_saved"`
	ErrorMessage    string         `gorm:"column:error_message" json:"error_message,omitempty"`
	Metadata        datatypes.JSON `gorm:"column:metadata" json:"metadata"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
}

func (ScraperRunRecord) TableName() string { return "scraper_run" }

func (r *ScraperRunRecord) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r ScraperRunRecord) Finished() bool {
	return r.Status == RunStatusSuccess || r.Status == RunStatusFailed
}
