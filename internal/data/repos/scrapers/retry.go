package scrapers

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

type RetryRepo interface {
	Get(dbc dbctx.Context, scraperName string) (*types.RetryEntry, error)
	Upsert(dbc dbctx.Context, entry *types.RetryEntry) error
	Delete(dbc dbctx.Context, scraperName string) error
	ListAll(dbc dbctx.Context) ([]*types.RetryEntry, error)
}

type retryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRetryRepo(db *gorm.DB, baseLog *logger.Logger) RetryRepo {
	return &retryRepo{db: db, log: baseLog.With("repo", "ScraperRetryRepo")}
}

func (r *retryRepo) Get(dbc dbctx.Context, scraperName string) (*types.RetryEntry, error) {
	var e types.RetryEntry
	err := dbc.Pick(r.db).Where("scraper_name = ?", scraperName).Limit(1).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *retryRepo) Upsert(dbc dbctx.Context, entry *types.RetryEntry) error {
	if entry == nil || entry.ScraperName == "" {
		return errs.ErrInvalidArgument
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	return dbc.Pick(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "scraper_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"attempt_number", "next_retry_at", "last_error", "updated_at"}),
		}).
		Create(entry).Error
}

func (r *retryRepo) Delete(dbc dbctx.Context, scraperName string) error {
	return dbc.Pick(r.db).Where("scraper_name = ?", scraperName).Delete(&types.RetryEntry{}).Error
}

func (r *retryRepo) ListAll(dbc dbctx.Context) ([]*types.RetryEntry, error) {
	var out []*types.RetryEntry
	if err := dbc.Pick(r.db).Order("next_retry_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
