package domain

import (
	"errors"
	"fmt"
	"math"
)

// Weights are the per-peril contributions to the overall score.
type Weights struct {
	Flood      float64 `json:"flood"`
	Wildfire   float64 `json:"wildfire"`
	Hurricane  float64 `json:"hurricane"`
	Earthquake float64 `json:"earthquake"`
}

// DefaultWeights returns 0.30/0.25/0.25/0.20.
func DefaultWeights() Weights {
	return Weights{Flood: 0.30, Wildfire: 0.25, Hurricane: 0.25, Earthquake: 0.20}
}

// Validate requires non-negative weights that sum to 1.0.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Flood, w.Wildfire, w.Hurricane, w.Earthquake} {
		if v < 0 {
			return errors.New("peril weights must not be negative")
		}
	}
	if sum := w.Flood + w.Wildfire + w.Hurricane + w.Earthquake; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("peril weights must sum to 1.0, got %g", sum)
	}
	return nil
}

func (w Weights) of(p Peril) float64 {
	switch p {
	case PerilFlood:
		return w.Flood
	case PerilWildfire:
		return w.Wildfire
	case PerilHurricane:
		return w.Hurricane
	case PerilEarthquake:
		return w.Earthquake
	}
	return 0
}

// RiskAggregator combines per-peril scores into the overall score.
type RiskAggregator struct {
	weights Weights
	policy  FallbackPolicy
}

// NewRiskAggregator validates the weights once so Aggregate never has to.
func NewRiskAggregator(w Weights, policy FallbackPolicy) (RiskAggregator, error) {
	if err := w.Validate(); err != nil {
		return RiskAggregator{}, err
	}
	return RiskAggregator{weights: w, policy: policy}, nil
}

// Weights returns the configured weights.
func (a RiskAggregator) Weights() Weights { return a.weights }

// Aggregate builds the full score set. The overall score is the weighted sum
// rounded half away from zero. Overall confidence is the AI confidence when
// an AI result is present, otherwise the policy baseline; either way it is
// discounted for missing satellite or weather data.
func (a RiskAggregator) Aggregate(perils map[Peril]RiskScore, snap Snapshot) RiskScores {
	var (
		sum      float64
		factors  []string
		fallback bool
	)
	for _, p := range Perils {
		s := perils[p]
		sum += a.weights.of(p) * float64(s.Score)
		if s.Level.Elevated() {
			factors = append(factors, fmt.Sprintf("%s risk %s (%d)", p, s.Level, s.Score))
		}
		fallback = fallback || s.FallbackUsed
	}

	var confidence int
	dataGaps := MissingSignals(snap.Sources, SignalSatellite, SignalWeather)
	if snap.AIRisk != nil && !snap.Sources.AIFallback {
		confidence = a.policy.Discount(snap.AIRisk.Confidence, dataGaps, 0)
		for _, f := range snap.AIRisk.TopRiskFactors {
			factors = append(factors, fmt.Sprintf("Model factor %s (importance %.2f)", f.Factor, f.Importance))
		}
	} else {
		confidence = a.policy.Confidence(append(dataGaps, SignalAI), 0)
		fallback = true
	}
	fallback = fallback || snap.Sources.AnyFallback()

	return RiskScores{
		Overall:    NewRiskScore(int(math.Round(sum)), confidence, factors, fallback),
		Flood:      perils[PerilFlood],
		Wildfire:   perils[PerilWildfire],
		Hurricane:  perils[PerilHurricane],
		Earthquake: perils[PerilEarthquake],
	}
}
