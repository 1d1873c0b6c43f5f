package listings

import (
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

type AnomalyRepo interface {
	Create(dbc dbctx.Context, rows []*types.AnomalyRecord) ([]*types.AnomalyRecord, error)
	ListSince(dbc dbctx.Context, since time.Time, limit int) ([]*types.AnomalyRecord, error)
}

type anomalyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnomalyRepo(db *gorm.DB, baseLog *logger.Logger) AnomalyRepo {
	return &anomalyRepo{db: db, log: baseLog.With("repo", "AnomalyRepo")}
}

func (r *anomalyRepo) Create(dbc dbctx.Context, rows []*types.AnomalyRecord) ([]*types.AnomalyRecord, error) {
	if len(rows) == 0 {
		return []*types.AnomalyRecord{}, nil
	}
	if err := dbc.Pick(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *anomalyRepo) ListSince(dbc dbctx.Context, since time.Time, limit int) ([]*types.AnomalyRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	var out []*types.AnomalyRecord
	err := dbc.Pick(r.db).
		Where("detected_at >= ?", since).
		Order("detected_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
