package domain

import (
	"github.com/yungbote/listingtrust-backend/internal/domain/budget"
	"github.com/yungbote/listingtrust-backend/internal/domain/listings"
	"github.com/yungbote/listingtrust-backend/internal/domain/scrapers"
)

const (
	StatusUnverified = listings.StatusUnverified
	StatusVerified   = listings.StatusVerified
	StatusCertified  = listings.StatusCertified

	ActionApprove             = listings.ActionApprove
	ActionFlag                = listings.ActionFlag
	ActionReject              = listings.ActionReject
	ActionRequestVerification = listings.ActionRequestVerification

	SeverityLow      = listings.SeverityLow
	SeverityMedium   = listings.SeverityMedium
	SeverityHigh     = listings.SeverityHigh
	SeverityCritical = listings.SeverityCritical

	ConfidenceHigh   = listings.ConfidenceHigh
	ConfidenceMedium = listings.ConfidenceMedium
	ConfidenceLow    = listings.ConfidenceLow

	RunStatusRunning = scrapers.RunStatusRunning
	RunStatusSuccess = scrapers.RunStatusSuccess
	RunStatusFailed  = scrapers.RunStatusFailed
)

type ListingCandidate = listings.ListingCandidate
type TrustAssessment = listings.TrustAssessment
type SubScores = listings.SubScores
type Usage = listings.Usage
type VerificationStatus = listings.VerificationStatus
type Action = listings.Action
type Severity = listings.Severity
type ConfidenceTier = listings.ConfidenceTier

type ListingRecord = listings.ListingRecord
type RecordMetadata = listings.RecordMetadata
type DedupOutcome = listings.DedupOutcome
type ValidationResult = listings.ValidationResult
type ImageAsset = listings.ImageAsset
type CanonicalListingLink = listings.CanonicalListingLink
type ListingFingerprint = listings.ListingFingerprint
type AnomalyRecord = listings.AnomalyRecord

type ScraperRunRecord = scrapers.ScraperRunRecord
type RetryEntry = scrapers.RetryEntry

type BudgetLedger = budget.Ledger
type ValidationLog = budget.ValidationLog
type BudgetStatus = budget.Status

// Models lists every persisted type, in migration order.
func Models() []any {
	return []any{
		&ListingRecord{},
		&ImageAsset{},
		&CanonicalListingLink{},
		&ListingFingerprint{},
		&AnomalyRecord{},
		&ScraperRunRecord{},
		&RetryEntry{},
		&BudgetLedger{},
		&ValidationLog{},
	}
}

const (
	ImageStatusVerified = listings.ImageStatusVerified
	ImageStatusFailed   = listings.ImageStatusFailed

	DedupMethodFingerprint = listings.DedupMethodFingerprint
	DedupMethodVector      = listings.DedupMethodVector
	DedupMethodText        = listings.DedupMethodText
	DedupMethodNone        = listings.DedupMethodNone

	AnomalyPriceOutlier  = listings.AnomalyPriceOutlier
	AnomalyMarketAnomaly = listings.AnomalyMarketAnomaly

	TriggerSuspicious     = listings.TriggerSuspicious
	TriggerPriceOutlier   = listings.TriggerPriceOutlier
	TriggerRareModel      = listings.TriggerRareModel
	TriggerLowReliability = listings.TriggerLowReliability
	TriggerMarketChange   = listings.TriggerMarketChange

	RecommendationApprove     = listings.RecommendationApprove
	RecommendationInvestigate = listings.RecommendationInvestigate
	RecommendationFlag        = listings.RecommendationFlag
	RecommendationReject      = listings.RecommendationReject

	SellerTypeDealer      = listings.SellerTypeDealer
	SellerTypeIndividual  = listings.SellerTypeIndividual
	SellerTypeInstitution = listings.SellerTypeInstitution

	BudgetResetDateLayout = budget.ResetDateLayout
)
