package listings

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
	"github.com/yungbote/listingtrust-backend/internal/platform/errs"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

type CanonicalLinkRepo interface {
	Create(dbc dbctx.Context, link *types.CanonicalListingLink) error
	ListByListing(dbc dbctx.Context, listingKey string) ([]*types.CanonicalListingLink, error)
}

type canonicalLinkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCanonicalLinkRepo(db *gorm.DB, baseLog *logger.Logger) CanonicalLinkRepo {
	return &canonicalLinkRepo{db: db, log: baseLog.With("repo", "CanonicalLinkRepo")}
}

func (r *canonicalLinkRepo) Create(dbc dbctx.Context, link *types.CanonicalListingLink) error {
	if link == nil || link.ListingKey == "" {
		return errs.ErrInvalidArgument
	}
	return dbc.Pick(r.db).Create(link).Error
}

func (r *canonicalLinkRepo) ListByListing(dbc dbctx.Context, listingKey string) ([]*types.CanonicalListingLink, error) {
	var out []*types.CanonicalListingLink
	err := dbc.Pick(r.db).
		Where("listing_key = ?", listingKey).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

type FingerprintRepo interface {
	Upsert(dbc dbctx.Context, fp *types.ListingFingerprint) error
	// FindByFingerprint returns the oldest canonical entry with this fingerprint, excluding listingKey.
	FindByFingerprint(dbc dbctx.Context, fingerprint, listingKey string) (*types.ListingFingerprint, error)
	ListByBrandModel(dbc dbctx.Context, brand, model, excludeKey string, limit int) ([]*types.ListingFingerprint, error)
}

type fingerprintRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFingerprintRepo(db *gorm.DB, baseLog *logger.Logger) FingerprintRepo {
	return &fingerprintRepo{db: db, log: baseLog.With("repo", "FingerprintRepo")}
}

func (r *fingerprintRepo) Upsert(dbc dbctx.Context, fp *types.ListingFingerprint) error {
	if fp == nil || fp.ListingKey == "" {
		return errs.ErrInvalidArgument
	}
	if fp.CreatedAt.IsZero() {
		fp.CreatedAt = time.Now().UTC()
	}
	return dbc.Pick(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "listing_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"fingerprint", "brand", "model", "year", "price", "city", "text"}),
		}).
		Create(fp).Error
}

func (r *fingerprintRepo) FindByFingerprint(dbc dbctx.Context, fingerprint, listingKey string) (*types.ListingFingerprint, error) {
	var fp types.ListingFingerprint
	err := dbc.Pick(r.db).
		Where("fingerprint = ? AND listing_key <> ?", fingerprint, listingKey).
		Order("created_at ASC").
		Limit(1).
		Take(&fp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fp, nil
}

func (r *fingerprintRepo) ListByBrandModel(dbc dbctx.Context, brand, model, excludeKey string, limit int) ([]*types.ListingFingerprint, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*types.ListingFingerprint
	err := dbc.Pick(r.db).
		Where("brand = ? AND model = ? AND listing_key <> ?", brand, model, excludeKey).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
