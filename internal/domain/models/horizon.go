package models

import (
	"fmt"
	"strings"
)

// Horizon is a forward-looking window key such as "30d".
type Horizon string

const (
	Horizon7d   Horizon = "7d"
	Horizon14d  Horizon = "14d"
	Horizon30d  Horizon = "30d"
	Horizon90d  Horizon = "90d"
	Horizon180d Horizon = "180d"
	Horizon365d Horizon = "365d"
)

// AllHorizons lists the six horizons from shortest to longest.
var AllHorizons = []Horizon{Horizon7d, Horizon14d, Horizon30d, Horizon90d, Horizon180d, Horizon365d}

// Tier groups horizons by time scale.
type Tier string

const (
	TierTiming    Tier = "TIMING"
	TierTactical  Tier = "TACTICAL"
	TierStructure Tier = "STRUCTURE"
)

// AllTiers lists tiers from shortest to longest.
var AllTiers = []Tier{TierTiming, TierTactical, TierStructure}

// Rank orders tiers by time scale; longer tiers rank higher.
func (t Tier) Rank() int {
	switch t {
	case TierTiming:
		return 1
	case TierTactical:
		return 2
	case TierStructure:
		return 3
	default:
		return 0
	}
}

// TierOf returns the fixed tier of a horizon.
func TierOf(h Horizon) Tier {
	switch h {
	case Horizon7d, Horizon14d:
		return TierTiming
	case Horizon30d, Horizon90d:
		return TierTactical
	case Horizon180d, Horizon365d:
		return TierStructure
	default:
		return ""
	}
}

// ParseHorizon validates a horizon key.
func ParseHorizon(s string) (Horizon, error) {
	h := Horizon(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllHorizons {
		if h == known {
			return h, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidHorizon, s)
}
