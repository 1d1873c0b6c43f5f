package listings

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ImageStatusVerified = "verified"
	ImageStatusFailed   = "failed"
)

// ImageAsset is the persisted outcome of gating one image of one listing.
// (ListingKey, OriginalURL) is unique; an existing row is always reused instead of re-gating.
type ImageAsset struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ListingKey     string    `gorm:"column:listing_key;not null;uniqueIndex:idx_image_listing_url" json:"listing_key"`
	OriginalURL    string    `gorm:"column:original_url;not null;uniqueIndex:idx_image_listing_url" json:"original_url"`
	StoredRef      string    `gorm:"column:stored_ref" json:"stored_ref,omitempty"`
	PerceptualHash string    `gorm:"column:perceptual_hash;index" json:"perceptual_hash,omitempty"`
	Status         string    `gorm:"column:status;not null" json:"status"`
	Reason         string    `gorm:"column:reason" json:"reason,omitempty"`
	Width          int       `gorm:"column:width" json:"width"`
	Height         int       `gorm:"column:height" json:"height"`
	CreatedAt      time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}

func (ImageAsset) TableName() string { return "image_asset" }

func (a *ImageAsset) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (a ImageAsset) Verified() bool { return a.Status == ImageStatusVerified }
