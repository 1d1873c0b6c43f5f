package listings

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DedupMethodFingerprint = "fingerprint"
	DedupMethodVector      = "vector"
	DedupMethodText        = "text"
	DedupMethodNone        = "none"
)

// CanonicalListingLink records every dedup check. CanonicalListingKey and Confidence
// stay nil when no candidate was close enough.
type CanonicalListingLink struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ListingKey          string    `gorm:"column:listing_key;not null;index" json:"listing_key"`
	CanonicalListingKey *string   `gorm:"column:canonical_listing_key;index" json:"canonical_listing_key,omitempty"`
	Confidence          *float64  `gorm:"column:confidence" json:"confidence,omitempty"`
	Method              string    `gorm:"column:method;not null" json:"method"`
	Linked              bool      `gorm:"column:linked;not null;default:false" json:"linked"`
	CreatedAt           time.Time `gorm:"not null;index" json:"created_at"`
}

func (CanonicalListingLink) TableName() string { return "canonical_listing_link" }

func (l *CanonicalListingLink) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// ListingFingerprint is the canonical registry used for exact-match dedup and text fallback.
type ListingFingerprint struct {
	ListingKey  string    `gorm:"column:listing_key;primaryKey" json:"listing_key"`
	Fingerprint string    `gorm:"column:fingerprint;not null;index" json:"fingerprint"`
	Brand       string    `gorm:"column:brand;not null;index:idx_fp_brand_model" json:"brand"`
	Model       string    `gorm:"column:model;not null;index:idx_fp_brand_model" json:"model"`
	Year        int       `gorm:"column:year" json:"year"`
	Price       int64     `gorm:"column:price" json:"price"`
	City        string    `gorm:"column:city" json:"city"`
	Text        string    `gorm:"column:text" json:"text"`
	CreatedAt   time.Time `gorm:"not null;index" json:"created_at"`
}

func (ListingFingerprint) TableName() string { return "listing_fingerprint" }
