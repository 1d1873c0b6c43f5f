package listings

import "time"

type VerificationStatus string

const (
	StatusUnverified VerificationStatus = "unverified"
	StatusVerified   VerificationStatus = "verified"
	StatusCertified  VerificationStatus = "certified"
)

type Action string

const (
	ActionApprove             Action = "approve"
	ActionFlag                Action = "flag"
	ActionReject              Action = "reject"
	ActionRequestVerification Action = "request_verification"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Blocking reports whether the severity forces a rejection.
func (s Severity) Blocking() bool {
	return s == SeverityHigh || s == SeverityCritical
}

type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceLow    ConfidenceTier = "low"
)

type SubScores struct {
	Source               float64 `json:"source"`
	Moderation           float64 `json:"moderation"`
	ImageAuthenticity    float64 `json:"image_authenticity"`
	Quality              float64 `json:"quality"`
	FraudFree            float64 `json:"fraud_free"`
	PlausibilityModifier float64 `json:"plausibility_modifier"`
}

// Usage counts the external calls one screening made.
type Usage struct {
	ModerationCalls int `json:"moderation_calls"`
	QualityCalls    int `json:"quality_calls"`
	ImageGateCalls  int `json:"image_gate_calls"`
	ImagesReused    int `json:"images_reused"`
}

// TrustAssessment is the complete, immutable outcome of one screening call.
type TrustAssessment struct {
	ListingID              string             `json:"listing_id"`
	TrustScore             float64            `json:"trust_score"`
	SubScores              SubScores          `json:"sub_scores"`
	Issues                 []string           `json:"issues"`
	Action                 Action             `json:"action"`
	Status                 VerificationStatus `json:"verification_status"`
	ImagesTotal            int                `json:"images_total"`
	ImagesVerified         int                `json:"images_verified"`
	ModerationSeverity     Severity           `json:"moderation_severity"`
	ModerationClean        bool               `json:"moderation_clean"`
	PlausibilityValid      bool               `json:"plausibility_valid"`
	PlausibilityConfidence ConfidenceTier     `json:"plausibility_confidence"`
	Institutional          bool               `json:"institutional"`
	AssessedAt             time.Time          `json:"assessed_at"`
	Usage                  Usage              `json:"usage"`
}

func (a TrustAssessment) Approved() bool { return a.Action == ActionApprove }

func (a TrustAssessment) HasVerifiedImages() bool { return a.ImagesVerified > 0 }
