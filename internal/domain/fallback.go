package domain

import "slices"

// Confidence constants shared by the scorers, the aggregator and the claim
// automation pipeline.
const (
	// ConfidenceBaseline is the confidence of a rule-based score computed
	// with every upstream signal present.
	ConfidenceBaseline = 85

	// DamageConfidenceBaseline is the lowest confidence a genuine damage
	// analysis is expected to report; the fallback always stays below it.
	DamageConfidenceBaseline = 60

	// FallbackDamageConfidence is the confidence of a rule-based damage
	// estimate.
	FallbackDamageConfidence = 30

	// FallbackFraudProbability is the neutral probability reported when the
	// fraud check could not run.
	FallbackFraudProbability = 0.5
)

// FallbackPolicy is the degradation logic applied whenever an upstream
// signal is unavailable. Every output it produces carries a lower
// confidence than the genuine counterpart, and fraud fallbacks always flag
// the claim for review.
type FallbackPolicy struct {
	Baseline         int
	SatellitePenalty int
	WeatherPenalty   int
	AIPenalty        int
	AttributePenalty int
}

// DefaultFallbackPolicy returns the production penalty table.
func DefaultFallbackPolicy() FallbackPolicy {
	return FallbackPolicy{
		Baseline:         ConfidenceBaseline,
		SatellitePenalty: 15,
		WeatherPenalty:   15,
		AIPenalty:        10,
		AttributePenalty: 5,
	}
}

// Confidence returns the baseline discounted for each missing signal and
// each unknown static attribute the caller depended on.
func (p FallbackPolicy) Confidence(missing []Signal, unknownAttributes int) int {
	return p.Discount(p.Baseline, missing, unknownAttributes)
}

// Discount lowers start by the penalties for the missing signals and
// unknown attributes. When anything is missing the result is strictly
// below start, even if the penalty table is zeroed.
func (p FallbackPolicy) Discount(start int, missing []Signal, unknownAttributes int) int {
	penalty := 0
	for _, sig := range dedupeSignals(missing) {
		switch sig {
		case SignalSatellite:
			penalty += p.SatellitePenalty
		case SignalWeather:
			penalty += p.WeatherPenalty
		case SignalAI:
			penalty += p.AIPenalty
		}
	}
	if unknownAttributes > 0 {
		penalty += unknownAttributes * p.AttributePenalty
	}
	if (len(missing) > 0 || unknownAttributes > 0) && penalty < 1 {
		penalty = 1
	}
	return clampScore(start - penalty)
}

// MissingSignals lists the signals in deps that fell back according to s.
func MissingSignals(s SourceStatus, deps ...Signal) []Signal {
	var out []Signal
	for _, d := range deps {
		if s.Missing(d) {
			out = append(out, d)
		}
	}
	return out
}

// FraudFallback is the result used when the fraud check failed or returned
// nothing usable. The level is always medium and the claim is always
// flagged; rule hits are carried as factors only.
func (p FallbackPolicy) FraudFallback(ruleFactors []string) FraudAnalysisResult {
	factors := append([]string{"analysis_error"}, ruleFactors...)
	return FraudAnalysisResult{
		RiskLevel:        FraudMedium,
		FraudProbability: FallbackFraudProbability,
		RiskFactors:      factors,
		FlaggedForReview: true,
		FallbackUsed:     true,
	}
}

// DamageFallback is the result used when the damage analysis failed.
// The percentage is a rule-based estimate and the confidence is pinned
// below DamageConfidenceBaseline.
func (p FallbackPolicy) DamageFallback(damagePercentage, estimatedLoss float64, damageTypes []string) DamageAnalysisResult {
	if len(damageTypes) == 0 {
		damageTypes = []string{"analysis_failed"}
	}
	return DamageAnalysisResult{
		DamagePercentage:   clampPercent(damagePercentage),
		DamageTypes:        damageTypes,
		AnalysisConfidence: FallbackDamageConfidence,
		EstimatedLoss:      estimatedLoss,
		FallbackUsed:       true,
	}
}

func dedupeSignals(in []Signal) []Signal {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
