package listings

import (
	"errors"

	"gorm.io/gorm"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
	"github.com/yungbote/listingtrust-backend/internal/platform/errs"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

type ImageAssetRepo interface {
	Get(dbc dbctx.Context, listingKey, originalURL string) (*types.ImageAsset, error)
	Create(dbc dbctx.Context, asset *types.ImageAsset) error
	// HashUsedElsewhere reports whether a verified asset of a different listing has the same perceptual hash.
	HashUsedElsewhere(dbc dbctx.Context, hash, listingKey string) (bool, error)
	ListByListing(dbc dbctx.Context, listingKey string) ([]*types.ImageAsset, error)
}

type imageAssetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImageAssetRepo(db *gorm.DB, baseLog *logger.Logger) ImageAssetRepo {
	return &imageAssetRepo{
		db:  db,
		log: baseLog.With("repo", "ImageAssetRepo"),
	}
}

func (r *imageAssetRepo) Get(dbc dbctx.Context, listingKey, originalURL string) (*types.ImageAsset, error) {
	var a types.ImageAsset
	err := dbc.Pick(r.db).
		Where("listing_key = ? AND original_url = ?", listingKey, originalURL).
		Limit(1).
		Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *imageAssetRepo) Create(dbc dbctx.Context, asset *types.ImageAsset) error {
	if asset == nil {
		return errs.ErrInvalidArgument
	}
	if err := dbc.Pick(r.db).Create(asset).Error; err != nil {
		if errs.IsDuplicateKey(err) {
			return errs.ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *imageAssetRepo) HashUsedElsewhere(dbc dbctx.Context, hash, listingKey string) (bool, error) {
	if hash == "" {
		return false, nil
	}
	var n int64
	err := dbc.Pick(r.db).
		Model(&types.ImageAsset{}).
		Where("perceptual_hash = ? AND listing_key <> ? AND status = ?", hash, listingKey, types.ImageStatusVerified).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *imageAssetRepo) ListByListing(dbc dbctx.Context, listingKey string) ([]*types.ImageAsset, error) {
	var out []*types.ImageAsset
	err := dbc.Pick(r.db).
		Where("listing_key = ?", listingKey).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
