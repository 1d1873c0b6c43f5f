package validation

import (
	"time"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
)

// TriggerConfig prices and gates one trigger type.
type TriggerConfig struct {
	Cost      float64 `mapstructure:"cost"`
	Threshold float64 `mapstructure:"threshold"`
	Enabled   bool    `mapstructure:"enabled"`
}

type Config struct {
	DailyBudget float64
	Triggers    map[string]TriggerConfig
	// SourceReliability overrides the reliability derived from scraper run history.
	SourceReliability map[string]float64
	LedgerName        string
	Location          *time.Location
	CacheTTL          time.Duration
	CallTimeout       time.Duration
}

func DefaultTriggers() map[string]TriggerConfig {
	return map[string]TriggerConfig{
		types.TriggerSuspicious:     {Cost: 0.08, Threshold: 0.3, Enabled: true},
		types.TriggerPriceOutlier:   {Cost: 0.05, Threshold: 0.4, Enabled: true},
		types.TriggerRareModel:      {Cost: 0.05, Threshold: 0.5, Enabled: true},
		types.TriggerLowReliability: {Cost: 0.03, Threshold: 0.5, Enabled: true},
		types.TriggerMarketChange:   {Cost: 0.02, Threshold: 0.7, Enabled: true},
	}
}

func DefaultConfig() Config {
	return Config{
		DailyBudget: 40,
		Triggers:    DefaultTriggers(),
		LedgerName:  "default",
		Location:    time.Local,
		CacheTTL:    10 * time.Minute,
		CallTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DailyBudget < 0 {
		c.DailyBudget = 0
	}
	if c.Triggers == nil {
		c.Triggers = def.Triggers
	}
	if c.LedgerName == "" {
		c.LedgerName = def.LedgerName
	}
	if c.Location == nil {
		c.Location = def.Location
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = def.CallTimeout
	}
	return c
}
