package budget

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

type LedgerRepo interface {
	Get(dbc dbctx.Context, name string) (*types.BudgetLedger, error)
	Save(dbc dbctx.Context, ledger *types.BudgetLedger) error
}

type ledgerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLedgerRepo(db *gorm.DB, baseLog *logger.Logger) LedgerRepo {
	return &ledgerRepo{db: db, log: baseLog.With("repo", "BudgetLedgerRepo")}
}

func (r *ledgerRepo) Get(dbc dbctx.Context, name string) (*types.BudgetLedger, error) {
	var l types.BudgetLedger
	err := dbc.Pick(r.db).Where("name = ?", name).Limit(1).Take(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *ledgerRepo) Save(dbc dbctx.Context, ledger *types.BudgetLedger) error {
	if ledger == nil || ledger.Name == "" {
		return errs.ErrInvalidArgument
	}
	ledger.UpdatedAt = time.Now().UTC()
	return dbc.Pick(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"daily_spend", "validation_count", "reset_date", "updated_at"}),
		}).
		Create(ledger).Error
}

type ValidationLogRepo interface {
	Create(dbc dbctx.Context, entry *types.ValidationLog) error
	ListSince(dbc dbctx.Context, since time.Time, limit int) ([]*types.ValidationLog, error)
}

type validationLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewValidationLogRepo(db *gorm.DB, baseLog *logger.Logger) ValidationLogRepo {
	return &validationLogRepo{db: db, log: baseLog.With("repo", "ValidationLogRepo")}
}

func (r *validationLogRepo) Create(dbc dbctx.Context, entry *types.ValidationLog) error {
	if entry == nil {
		return errs.ErrInvalidArgument
	}
	return dbc.Pick(r.db).Create(entry).Error
}

func (r *validationLogRepo) ListSince(dbc dbctx.Context, since time.Time, limit int) ([]*types.ValidationLog, error) {
	if limit <= 0 {
		limit = 500
	}
	var out []*types.ValidationLog
	err := dbc.Pick(r.db).
		Where("created_at >= ?", since).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
