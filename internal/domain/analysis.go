package domain

import "fmt"

// RiskFactorWeight is one entry of the AI engine's feature attribution.
type RiskFactorWeight struct {
	Factor     string  `json:"factor"`
	Importance float64 `json:"importance"`
	Value      float64 `json:"value"`
}

// AIRiskResult is the AI engine's view of a property's overall risk.
type AIRiskResult struct {
	OverallRiskScore float64            `json:"overallRiskScore"`
	Confidence       int                `json:"confidence"`
	TopRiskFactors   []RiskFactorWeight `json:"topRiskFactors,omitempty"`
}

// Validate rejects results whose confidence or score leave [0,100].
func (r AIRiskResult) Validate() error {
	if r.Confidence < 0 || r.Confidence > 100 {
		return fmt.Errorf("%w: ai confidence %d outside [0,100]", ErrMalformedSnapshot, r.Confidence)
	}
	if r.OverallRiskScore < 0 || r.OverallRiskScore > 100 {
		return fmt.Errorf("%w: ai risk score %g outside [0,100]", ErrMalformedSnapshot, r.OverallRiskScore)
	}
	return nil
}

// DamageAnalysisResult is the outcome of comparing pre- and post-incident
// imagery.
type DamageAnalysisResult struct {
	DamagePercentage   float64  `json:"damagePercentage"`
	DamageTypes        []string `json:"damageType"`
	AnalysisConfidence int      `json:"analysisConfidence"`
	EstimatedLoss      float64  `json:"estimatedLoss"`
	FallbackUsed       bool     `json:"fallbackUsed"`
}

// Validate checks percentage, confidence and loss ranges.
func (d DamageAnalysisResult) Validate() error {
	if d.DamagePercentage < 0 || d.DamagePercentage > 100 {
		return fmt.Errorf("%w: damage percentage %g outside [0,100]", ErrMalformedSnapshot, d.DamagePercentage)
	}
	if d.AnalysisConfidence < 0 || d.AnalysisConfidence > 100 {
		return fmt.Errorf("%w: damage confidence %d outside [0,100]", ErrMalformedSnapshot, d.AnalysisConfidence)
	}
	if d.EstimatedLoss < 0 {
		return fmt.Errorf("%w: negative estimated loss", ErrMalformedSnapshot)
	}
	return nil
}

// FraudLevel is the qualitative fraud risk of a claim.
type FraudLevel string

const (
	FraudLow    FraudLevel = "low"
	FraudMedium FraudLevel = "medium"
	FraudHigh   FraudLevel = "high"
)

// FraudLevelFor buckets a fraud probability: above 0.7 is high, above 0.4
// is medium, anything else is low.
func FraudLevelFor(probability float64) FraudLevel {
	switch {
	case probability > 0.7:
		return FraudHigh
	case probability > 0.4:
		return FraudMedium
	default:
		return FraudLow
	}
}

// FraudAnalysisResult is the outcome of a fraud check.
type FraudAnalysisResult struct {
	RiskLevel        FraudLevel `json:"riskLevel"`
	FraudProbability float64    `json:"fraudProbability"`
	RiskFactors      []string   `json:"riskFactors"`
	FlaggedForReview bool       `json:"flaggedForReview"`
	FallbackUsed     bool       `json:"fallbackUsed"`
}

// Validate checks the probability range and the level enum.
func (f FraudAnalysisResult) Validate() error {
	if f.FraudProbability < 0 || f.FraudProbability > 1 {
		return fmt.Errorf("%w: fraud probability %g outside [0,1]", ErrMalformedSnapshot, f.FraudProbability)
	}
	switch f.RiskLevel {
	case FraudLow, FraudMedium, FraudHigh:
		return nil
	}
	return fmt.Errorf("%w: fraud level %q", ErrMalformedSnapshot, f.RiskLevel)
}
