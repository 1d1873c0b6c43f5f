package listings

import (
	"errors"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
	"github.com/yungbote/listingtrust-backend/internal/platform/errs"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

// ModelStats summarizes stored listings of one brand+model.
type ModelStats struct {
	Count        int64
	AveragePrice float64
}

type ListingRecordRepo interface {
	// Create inserts a record; a (source, external id) collision returns errs.ErrDuplicateKey.
	Create(dbc dbctx.Context, rec *types.ListingRecord) error
	GetByKey(dbc dbctx.Context, source, externalID string) (*types.ListingRecord, error)
	ListRecentByBrandModel(dbc dbctx.Context, brand, model string, limit int) ([]*types.ListingRecord, error)
	ModelStats(dbc dbctx.Context, brand, model string) (ModelStats, error)
	CountSince(dbc dbctx.Context, since time.Time) (int64, error)
}

type listingRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewListingRecordRepo(db *gorm.DB, baseLog *logger.Logger) ListingRecordRepo {
	return &listingRecordRepo{
		db:  db,
		log: baseLog.With("repo", "ListingRecordRepo"),
	}
}

func (r *listingRecordRepo) Create(dbc dbctx.Context, rec *types.ListingRecord) error {
	if rec == nil {
		return errs.ErrInvalidArgument
	}
	if err := dbc.Pick(r.db).Create(rec).Error; err != nil {
		if errs.IsDuplicateKey(err) {
			return errs.ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *listingRecordRepo) GetByKey(dbc dbctx.Context, source, externalID string) (*types.ListingRecord, error) {
	var rec types.ListingRecord
	err := dbc.Pick(r.db).
		Where("source = ? AND external_id = ?", source, externalID).
		Limit(1).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *listingRecordRepo) ListRecentByBrandModel(dbc dbctx.Context, brand, model string, limit int) ([]*types.ListingRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []*types.ListingRecord
	err := dbc.Pick(r.db).
		Where("LOWER(brand) = LOWER(?) AND LOWER(model) = LOWER(?)", brand, model).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *listingRecordRepo) ModelStats(dbc dbctx.Context, brand, model string) (ModelStats, error) {
	var row struct {
		Count        int64
		AveragePrice *float64
	}
	err := dbc.Pick(r.db).
		Model(&types.ListingRecord{}).
		Select("COUNT(*) AS count, AVG(price) AS average_price").
		Where("LOWER(brand) = LOWER(?) AND LOWER(model) = LOWER(?)", brand, model).
		Scan(&row).Error
	if err != nil {
		return ModelStats{}, err
	}
	out := ModelStats{Count: row.Count}
	if row.AveragePrice != nil {
		out.AveragePrice = *row.AveragePrice
	}
	return out, nil
}

func (r *listingRecordRepo) CountSince(dbc dbctx.Context, since time.Time) (int64, error) {
	var n int64
	err := dbc.Pick(r.db).
		Model(&types.ListingRecord{}).
		Where("created_at >= ?", since).
		Count(&n).Error
	return n, err
}
