package screening

import (
	"strings"
	"time"
)

// Config carries the lists and bounds screening is parameterized by.
type Config struct {
	// InstitutionalSources is matched by exact string equality.
	InstitutionalSources []string
	TrustedPortals       []string
	BlacklistedKeywords  []string
	PriceCeiling         int64
	CallTimeout          time.Duration
}

func DefaultConfig() Config {
	return Config{
		InstitutionalSources: []string{
			"Maruti True Value",
			"Mahindra First Choice",
			"Toyota U Trust",
			"Hyundai H Promise",
			"SBI e-Auction",
			"HDFC Bank Auctions",
		},
		TrustedPortals: []string{
			"CarDekho",
			"CarWale",
			"Cars24",
			"Spinny",
			"CarTrade",
		},
		BlacklistedKeywords: []string{
			"advance payment",
			"token amount",
			"army officer",
			"western union",
			"gift card",
			"send money first",
			"no test drive",
			"courier delivery",
		},
		PriceCeiling: 50_000_000,
		CallTimeout:  30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PriceCeiling <= 0 {
		c.PriceCeiling = def.PriceCeiling
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = def.CallTimeout
	}
	return c
}

func exactSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		out[v] = struct{}{}
	}
	return out
}

func foldSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		out[v] = struct{}{}
	}
	return out
}
