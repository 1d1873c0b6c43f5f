package scrapers

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
	"github.com/yungbote/listingtrust-backend/internal/platform/errs"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

type RunRepo interface {
	Create(dbc dbctx.Context, run *types.ScraperRunRecord) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ScraperRunRecord, error)
	// Finish applies updates only while the run is still running. It reports whether a row changed.
	Finish(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error)
	ListRecent(dbc dbctx.Context, scraperName string, limit int) ([]*types.ScraperRunRecord, error)
}

type runRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRunRepo(db *gorm.DB, baseLog *logger.Logger) RunRepo {
	return &runRepo{db: db, log: baseLog.With("repo", "ScraperRunRepo")}
}

func (r *runRepo) Create(dbc dbctx.Context, run *types.ScraperRunRecord) error {
	if run == nil || run.ScraperName == "" {
		return errs.ErrInvalidArgument
	}
	return dbc.Pick(r.db).Create(run).Error
}

func (r *runRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ScraperRunRecord, error) {
	var run types.ScraperRunRecord
	err := dbc.Pick(r.db).Where("id = ?", id).Limit(1).Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *runRepo) Finish(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, errs.ErrInvalidArgument
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := dbc.Pick(r.db).
		Model(&types.ScraperRunRecord{}).
		Where("id = ? AND status = ?", id, types.RunStatusRunning).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *runRepo) ListRecent(dbc dbctx.Context, scraperName string, limit int) ([]*types.ScraperRunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	q := dbc.Pick(r.db).Order("started_at DESC").Limit(limit)
	if scraperName != "" {
		q = q.Where("scraper_name = ?", scraperName)
	}
	var out []*types.ScraperRunRecord
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
