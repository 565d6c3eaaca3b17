package domain

import (
	"fmt"
	"math"
	"time"
)

// Decision is the disposition produced by claim automation.
type Decision string

const (
	DecisionApproved       Decision = "approved"
	DecisionRequiresReview Decision = "requires_review"
)

// Automation thresholds. Eligibility (85) and trigger (80) are two distinct
// gates on purpose; both must pass before a claim is automated.
const (
	EligibilityConfidence   = 85
	TriggerConfidence       = 80
	ApprovalConfidence      = 90
	MaxAutomatedAmount      = 50000.0
	weatherCorrelationBonus = 5
)

// AutomationResult is the derived automation decision attached to a claim.
type AutomationResult struct {
	IsAutomated         bool      `json:"isAutomated"`
	Eligible            bool      `json:"eligible"`
	ConfidenceScore     int       `json:"confidenceScore"`
	Decision            Decision  `json:"decision"`
	Reasoning           []string  `json:"reasoning"`
	HumanReviewRequired bool      `json:"humanReviewRequired"`
	ApprovedAmount      float64   `json:"approvedAmount,omitempty"`
	ProcessedAt         time.Time `json:"processedAt"`
}

// ClaimConfidence applies the additive claim confidence formula and clamps
// the result to [0,100].
func ClaimConfidence(c Claim, damage *DamageAnalysisResult, fraud *FraudAnalysisResult) int {
	score := 50.0
	if damage != nil {
		score += float64(damage.AnalysisConfidence) * 0.3
	}
	if fraud != nil {
		switch fraud.RiskLevel {
		case FraudLow:
			score += 20
		case FraudHigh:
			score -= 30
		}
	}
	if len(c.Documents) > 0 {
		score += 10
	}
	if c.HasBothImages() {
		score += 15
	}
	score += weatherCorrelationBonus
	return clampScore(int(math.Round(score)))
}

// UnmetEligibility lists every eligibility condition the claim fails.
func UnmetEligibility(c Claim, confidence int) []string {
	var unmet []string
	if !c.HasBothImages() {
		unmet = append(unmet, "pre- and post-incident imagery are both required")
	}
	if confidence < EligibilityConfidence {
		unmet = append(unmet, fmt.Sprintf("confidence %d is below the eligibility threshold of %d", confidence, EligibilityConfidence))
	}
	if c.Amount > MaxAutomatedAmount {
		unmet = append(unmet, fmt.Sprintf("claim amount %.2f exceeds the automation limit of %.0f", c.Amount, MaxAutomatedAmount))
	}
	return unmet
}

// AutomationInput carries everything the decision depends on. Failure is
// the text of any error raised while gathering the signals.
type AutomationInput struct {
	Claim   Claim
	Damage  *DamageAnalysisResult
	Fraud   *FraudAnalysisResult
	Failure string
}

// AutomationDecision is the full outcome of Decide.
type AutomationDecision struct {
	Result     AutomationResult
	Unmet      []string
	NextStatus ClaimStatus
	// Approval is only usable when Result.Decision is approved.
	Approval AutoApproval
}

// Decide evaluates the eligibility, trigger and approval gates. It never
// approves a claim whose damage or fraud signal fell back, or whose signal
// gathering failed.
func Decide(in AutomationInput, now time.Time) AutomationDecision {
	c := in.Claim
	confidence := ClaimConfidence(c, in.Damage, in.Fraud)
	unmet := UnmetEligibility(c, confidence)

	reasoning := []string{fmt.Sprintf("Confidence score %d", confidence)}
	if in.Damage != nil {
		reasoning = append(reasoning, fmt.Sprintf("Damage analysis: %.1f%% damage, confidence %d", in.Damage.DamagePercentage, in.Damage.AnalysisConfidence))
	}
	if in.Fraud != nil {
		reasoning = append(reasoning, fmt.Sprintf("Fraud risk %s (probability %.2f)", in.Fraud.RiskLevel, in.Fraud.FraudProbability))
	}
	for _, u := range unmet {
		reasoning = append(reasoning, "Not eligible: "+u)
	}

	trigger := true
	if confidence < TriggerConfidence {
		trigger = false
		reasoning = append(reasoning, fmt.Sprintf("Confidence below automation threshold of %d", TriggerConfidence))
	}
	fraudHigh := in.Fraud != nil && in.Fraud.RiskLevel == FraudHigh
	if fraudHigh {
		trigger = false
		reasoning = append(reasoning, "High fraud risk blocks automation")
	}
	if c.Amount > MaxAutomatedAmount {
		trigger = false
	}

	degraded := false
	if in.Failure != "" {
		degraded = true
		reasoning = append(reasoning, "Automation failure: "+in.Failure)
	}
	if in.Damage == nil || in.Damage.FallbackUsed {
		degraded = true
		reasoning = append(reasoning, "Damage analysis unavailable; rule-based estimate used")
	}
	if in.Fraud == nil || in.Fraud.FallbackUsed {
		degraded = true
		reasoning = append(reasoning, "Fraud check unavailable; claim flagged for review")
	}

	automated := len(unmet) == 0 && trigger && !degraded
	approve := automated &&
		confidence > ApprovalConfidence &&
		in.Fraud.RiskLevel == FraudLow &&
		!in.Fraud.FlaggedForReview

	res := AutomationResult{
		IsAutomated:         automated,
		Eligible:            len(unmet) == 0,
		ConfidenceScore:     confidence,
		Decision:            DecisionRequiresReview,
		HumanReviewRequired: true,
		ProcessedAt:         now,
	}
	out := AutomationDecision{Unmet: unmet}

	switch {
	case approve:
		amount := approvedAmount(c.Amount, in.Damage)
		res.Decision = DecisionApproved
		res.HumanReviewRequired = false
		res.ApprovedAmount = amount
		reasoning = append(reasoning, fmt.Sprintf("Auto-approved for %.2f", amount))
		out.NextStatus = ClaimApproved
		out.Approval = AutoApproval{amount: amount, ok: true}
	case fraudHigh || (in.Fraud != nil && in.Fraud.FlaggedForReview):
		reasoning = append(reasoning, "Routed to investigation")
		out.NextStatus = ClaimInvestigating
	default:
		if automated {
			reasoning = append(reasoning, fmt.Sprintf("Approval requires confidence above %d, low fraud risk and no review flag", ApprovalConfidence))
		}
		reasoning = append(reasoning, "Routed to human review")
		out.NextStatus = ClaimUnderReview
	}
	res.Reasoning = reasoning
	out.Result = res
	return out
}

func approvedAmount(claimed float64, damage *DamageAnalysisResult) float64 {
	if damage != nil && damage.EstimatedLoss > 0 {
		return math.Min(claimed, damage.EstimatedLoss)
	}
	return claimed
}
