package scrapers

import "time"

// RetryEntry is the persisted retry state of one scraper; at most one row per scraper.
type RetryEntry struct {
	ScraperName   string    `gorm:"column:scraper_name;primaryKey" json:"scraper_name"`
	AttemptNumber int       `gorm:"column:attempt_number;not null" json:"attempt_number"`
	NextRetryAt   time.Time `gorm:"column:next_retry_at;not null;index" json:"next_retry_at"`
	LastError     string    `gorm:"column:last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (RetryEntry) TableName() string { return "scraper_retry" }
