package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/listingtrust-backend/internal/data/repos/budget"
	"github.com/yungbote/listingtrust-backend/internal/data/repos/listings"
	"github.com/yungbote/listingtrust-backend/internal/data/repos/scrapers"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

type ListingRecordRepo = listings.ListingRecordRepo
type ImageAssetRepo = listings.ImageAssetRepo
type CanonicalLinkRepo = listings.CanonicalLinkRepo
type FingerprintRepo = listings.FingerprintRepo
type AnomalyRepo = listings.AnomalyRepo
type ModelStats = listings.ModelStats

type ScraperRunRepo = scrapers.RunRepo
type ScraperRetryRepo = scrapers.RetryRepo

type BudgetLedgerRepo = budget.LedgerRepo
type ValidationLogRepo = budget.ValidationLogRepo

type Repos struct {
	Listings       ListingRecordRepo
	Images         ImageAssetRepo
	CanonicalLinks CanonicalLinkRepo
	Fingerprints   FingerprintRepo
	Anomalies      AnomalyRepo
	Runs           ScraperRunRepo
	Retries        ScraperRetryRepo
	Ledger         BudgetLedgerRepo
	ValidationLogs ValidationLogRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Listings:       listings.NewListingRecordRepo(db, log),
		Images:         listings.NewImageAssetRepo(db, log),
		CanonicalLinks: listings.NewCanonicalLinkRepo(db, log),
		Fingerprints:   listings.NewFingerprintRepo(db, log),
		Anomalies:      listings.NewAnomalyRepo(db, log),
		Runs:           scrapers.NewRunRepo(db, log),
		Retries:        scrapers.NewRetryRepo(db, log),
		Ledger:         budget.NewLedgerRepo(db, log),
		ValidationLogs: budget.NewValidationLogRepo(db, log),
	}
}
