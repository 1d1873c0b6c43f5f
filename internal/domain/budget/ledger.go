package budget

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ResetDateLayout formats the calendar day a ledger belongs to.
const ResetDateLayout = "2006-01-02"

// Ledger is the persisted daily validation budget. DailySpend never exceeds the configured budget.
type Ledger struct {
	Name            string    `gorm:"column:name;primaryKey" json:"name"`
	DailySpend      float64   `gorm:"column:daily_spend;not null;default:0" json:"daily_spend"`
	ValidationCount int       `gorm:"column:validation_count;not null;default:0" json:"validation_count"`
	ResetDate       string    `gorm:"column:reset_date;not null" json:"reset_date"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

func (Ledger) TableName() string { return "validation_budget" }

// ValidationLog is one validation decision. Withheld entries carry zero cost.
type ValidationLog struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ListingKey     string         `gorm:"column:listing_key;not null;index" json:"listing_key"`
	Trigger        string         `gorm:"column:trigger;not null;index" json:"trigger"`
	AnomalyScore   float64        `gorm:"column:anomaly_score;not null" json:"anomaly_score"`
	Cost           float64        `gorm:"column:cost;not null;default:0" json:"cost"`
	EstimatedCost  float64        `gorm:"column:estimated_cost;not null;default:0" json:"estimated_cost"`
	Withheld       bool           `gorm:"column:withheld;not null;default:false" json:"withheld"`
	Recommendation string         `gorm:"column:recommendation" json:"recommendation,omitempty"`
	Confidence     float64        `gorm:"column:confidence" json:"confidence"`
	Details        datatypes.JSON `gorm:"column:details" json:"details"`
	CreatedAt      time.Time      `gorm:"not null;index" json:"created_at"`
}

func (ValidationLog) TableName() string { return "validation_log" }

func (l *ValidationLog) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Status is a read-only snapshot of the budget.
type Status struct {
	DailyBudget     float64 `json:"daily_budget"`
	CurrentSpend    float64 `json:"current_spend"`
	Remaining       float64 `json:"remaining"`
	ValidationCount int     `json:"validation_count"`
	ResetDate       string  `json:"reset_date"`
}
