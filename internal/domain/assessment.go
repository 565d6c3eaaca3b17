package domain

import (
	"fmt"
	"strings"
	"time"
)

// AssessmentType records why an assessment was produced.
type AssessmentType string

const (
	AssessmentScheduled      AssessmentType = "scheduled"
	AssessmentEventTriggered AssessmentType = "event_triggered"
	AssessmentOnDemand       AssessmentType = "on_demand"
	AssessmentClaimRelated   AssessmentType = "claim_related"
)

// ParseAssessmentType normalizes t; empty means on_demand.
func ParseAssessmentType(t string) (AssessmentType, error) {
	switch v := AssessmentType(strings.ToLower(strings.TrimSpace(t))); v {
	case "":
		return AssessmentOnDemand, nil
	case AssessmentScheduled, AssessmentEventTriggered, AssessmentOnDemand, AssessmentClaimRelated:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAssessment, t)
	}
}

// Reassessment intervals by overall level.
const (
	ElevatedReassessmentAge = 30 * 24 * time.Hour
	DefaultReassessmentAge  = 90 * 24 * time.Hour
)

// RiskAssessment is one immutable scoring run for a property. Later runs
// supersede it; nothing updates it in place.
type RiskAssessment struct {
	ID         string         `json:"assessmentId"`
	PropertyID string         `json:"propertyId"`
	Type       AssessmentType `json:"assessmentType"`
	Scores     RiskScores     `json:"riskScores"`
	Sources    SourceStatus   `json:"sources"`
	// ReviewRequired is set when scoring itself failed and the scores are
	// placeholders that must not be relied on.
	ReviewRequired bool      `json:"reviewRequired,omitempty"`
	ReviewReason   string    `json:"reviewReason,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	ValidUntil     time.Time `json:"validUntil"`
}

// IsStale reports whether now is past ValidUntil.
func (a RiskAssessment) IsStale(now time.Time) bool {
	return now.After(a.ValidUntil)
}

// NeedsReassessment applies the reassessment rule: stale, or older than 30
// days at high/very_high overall risk, or older than 90 days otherwise.
func (a RiskAssessment) NeedsReassessment(now time.Time) bool {
	if a.IsStale(now) || a.ReviewRequired {
		return true
	}
	limit := DefaultReassessmentAge
	if a.Scores.Overall.Level.Elevated() {
		limit = ElevatedReassessmentAge
	}
	return now.Sub(a.CreatedAt) > limit
}

// AgeWithin reports whether the assessment was created less than window ago.
func (a RiskAssessment) AgeWithin(now time.Time, window time.Duration) bool {
	return now.Sub(a.CreatedAt) < window
}
