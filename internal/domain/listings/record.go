package listings

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ListingRecord is a published listing as held by the record store.
type ListingRecord struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID         string         `gorm:"column:external_id;not null;uniqueIndex:idx_listing_source_external" json:"external_id"`
	Source             string         `gorm:"column:source;not null;uniqueIndex:idx_listing_source_external;index" json:"source"`
	Brand              string         `gorm:"column:brand;not null;index:idx_listing_brand_model" json:"brand"`
	Model              string         `gorm:"column:model;not null;index:idx_listing_brand_model" json:"model"`
	Year               int            `gorm:"column:year;index" json:"year"`
	Price              int64          `gorm:"column:price;not null" json:"price"`
	Mileage            *int           `gorm:"column:mileage" json:"mileage,omitempty"`
	FuelType           string         `gorm:"column:fuel_type" json:"fuel_type"`
	Transmission       string         `gorm:"column:transmission" json:"transmission"`
	City               string         `gorm:"column:city;index" json:"city"`
	Title              string         `gorm:"column:title" json:"title"`
	Description        string         `gorm:"column:description" json:"description"`
	Features           datatypes.JSON `gorm:"column:features" json:"features"`
	ImageURLs          datatypes.JSON `gorm:"column:image_urls" json:"image_urls"`
	SellerType         string         `gorm:"column:seller_type" json:"seller_type"`
	VerificationStatus string         `gorm:"column:verification_status;not null;index" json:"verification_status"`
	TrustScore         float64        `gorm:"column:trust_score;not null" json:"trust_score"`
	ImageVerifiedCount int            `gorm:"column:image_verified_count;not null;default:0" json:"image_verified_count"`
	Fingerprint        string         `gorm:"column:fingerprint;index" json:"fingerprint,omitempty"`
	CanonicalKey       *string        `gorm:"column:canonical_key;index" json:"canonical_key,omitempty"`
	Metadata           datatypes.JSON `gorm:"column:metadata" json:"metadata"`
	ListedAt           *time.Time     `gorm:"column:listed_at" json:"listed_at,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null" json:"updated_at"`
}

func (ListingRecord) TableName() string { return "listing_record" }

// Key matches ListingCandidate.Key.
func (r ListingRecord) Key() string { return r.Source + ":" + r.ExternalID }

func (r *ListingRecord) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// RecordMetadata is the structured blob stored alongside each record.
type RecordMetadata struct {
	Issues                  []string          `json:"issues"`
	Action                  Action            `json:"action"`
	SubScores               SubScores         `json:"sub_scores"`
	AssessedAt              time.Time         `json:"assessed_at"`
	Dedup                   *DedupOutcome     `json:"dedup,omitempty"`
	Validation              *ValidationResult `json:"validation,omitempty"`
	NormalizationConfidence float64           `json:"normalization_confidence,omitempty"`
}

// DedupOutcome is the audit trail of a deduplication check, kept even without a link.
type DedupOutcome struct {
	CanonicalID *string  `json:"canonical_id,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Method      string   `json:"method,omitempty"`
	Linked      bool     `json:"linked"`
}
