package domain

import "time"

// Rule thresholds used when the AI engine cannot analyze a claim.
const (
	ReportingDelayThreshold = 15 * 24 * time.Hour
	HighClaimAmount         = 80000.0
	MinSupportingDocuments  = 2

	// ReferencePropertyValue converts a damage percentage into a loss estimate.
	ReferencePropertyValue = 300000.0
)

// FraudRuleFactors returns the rule-based fraud indicators of a claim, in a
// fixed order. An unknown reported date never counts as delayed.
func FraudRuleFactors(c Claim) []string {
	var factors []string
	if !c.ReportedDate.IsZero() && !c.IncidentDate.IsZero() &&
		c.ReportedDate.Sub(c.IncidentDate) > ReportingDelayThreshold {
		factors = append(factors, "delayed_reporting")
	}
	if c.Amount > HighClaimAmount {
		factors = append(factors, "high_claim_amount")
	}
	if len(c.Documents) < MinSupportingDocuments {
		factors = append(factors, "insufficient_documentation")
	}
	if c.PreImagery == nil || c.PreImagery.ImageURL == "" {
		factors = append(factors, "no_satellite_evidence")
	}
	return factors
}

// EstimatedLoss converts a damage percentage into a currency amount against
// the reference property value.
func EstimatedLoss(damagePercentage float64) float64 {
	return ReferencePropertyValue * clampPercent(damagePercentage) / 100
}

// EstimateDamage derives a rule-based damage percentage from the claimed
// amount relative to the reference property value.
func EstimateDamage(c Claim) (percentage, loss float64) {
	percentage = clampPercent(c.Amount / ReferencePropertyValue * 100)
	return percentage, EstimatedLoss(percentage)
}
