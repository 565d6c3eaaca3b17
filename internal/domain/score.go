package domain

import (
	"fmt"
	"strings"
)

// Level is the qualitative bucket of a risk score.
type Level string

const (
	LevelVeryLow  Level = "very_low"
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelVeryHigh Level = "very_high"
)

// LevelFor maps a score to its bucket:
//   - >=80 very_high
//   - >=60 high
//   - >=40 medium
//   - >=20 low
//   - otherwise very_low
func LevelFor(score int) Level {
	switch {
	case score >= 80:
		return LevelVeryHigh
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	case score >= 20:
		return LevelLow
	default:
		return LevelVeryLow
	}
}

// Elevated reports whether the level is high or very_high.
func (l Level) Elevated() bool {
	return l == LevelHigh || l == LevelVeryHigh
}

// Peril is an independently scored hazard category.
type Peril string

const (
	PerilFlood      Peril = "flood"
	PerilWildfire   Peril = "wildfire"
	PerilHurricane  Peril = "hurricane"
	PerilEarthquake Peril = "earthquake"
)

// Perils lists every scored peril in aggregation order.
var Perils = []Peril{PerilFlood, PerilWildfire, PerilHurricane, PerilEarthquake}

// RiskType selects one score out of a RiskScores set. It is either a peril
// or "overall".
type RiskType string

const RiskOverall RiskType = "overall"

// ParseRiskType accepts "overall" or any peril name; empty means overall.
func ParseRiskType(s string) (RiskType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == string(RiskOverall) {
		return RiskOverall, nil
	}
	for _, p := range Perils {
		if s == string(p) {
			return RiskType(p), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRiskType, s)
}

// RiskScore is an immutable scored result for one peril or the overall risk.
// Construct it with NewRiskScore so the clamp and level invariants hold.
type RiskScore struct {
	Score        int      `json:"score"`
	Level        Level    `json:"level"`
	Confidence   int      `json:"confidence"`
	Factors      []string `json:"factors"`
	FallbackUsed bool     `json:"fallbackUsed"`
}

// NewRiskScore clamps raw and confidence to [0,100] and derives the level.
func NewRiskScore(raw, confidence int, factors []string, fallbackUsed bool) RiskScore {
	score := clampScore(raw)
	if factors == nil {
		factors = []string{}
	}
	return RiskScore{
		Score:        score,
		Level:        LevelFor(score),
		Confidence:   clampScore(confidence),
		Factors:      factors,
		FallbackUsed: fallbackUsed,
	}
}

// RiskScores holds the per-peril scores plus the weighted overall score.
type RiskScores struct {
	Overall    RiskScore `json:"overall"`
	Flood      RiskScore `json:"flood"`
	Wildfire   RiskScore `json:"wildfire"`
	Hurricane  RiskScore `json:"hurricane"`
	Earthquake RiskScore `json:"earthquake"`
}

// ByType returns the score selected by t.
func (r RiskScores) ByType(t RiskType) (RiskScore, error) {
	switch t {
	case RiskOverall:
		return r.Overall, nil
	case RiskType(PerilFlood):
		return r.Flood, nil
	case RiskType(PerilWildfire):
		return r.Wildfire, nil
	case RiskType(PerilHurricane):
		return r.Hurricane, nil
	case RiskType(PerilEarthquake):
		return r.Earthquake, nil
	}
	return RiskScore{}, fmt.Errorf("%w: %q", ErrUnknownRiskType, t)
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
