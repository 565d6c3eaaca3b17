package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the claims topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ClaimSubmission is the payload of a claims topic message. Property is
// optional; its id is used when the claim omits propertyId.
type ClaimSubmission struct {
	Claim        Claim     `json:"claim"`
	Property     *Property `json:"property,omitempty"`
	ForceProcess bool      `json:"forceProcess,omitempty"`
}

// ClaimDecision is the serialized outcome written to the decisions topic.
type ClaimDecision struct {
	ClaimID        string                `json:"claimId"`
	PropertyID     string                `json:"propertyId,omitempty"`
	Status         ClaimStatus           `json:"status"`
	Automation     AutomationResult      `json:"automation"`
	Damage         *DamageAnalysisResult `json:"damageAnalysis,omitempty"`
	Fraud          *FraudAnalysisResult  `json:"fraudRisk,omitempty"`
	ApprovedAmount float64               `json:"approvedAmount,omitempty"`
	Unmet          []string              `json:"unmetConditions,omitempty"`
	DecidedAt      time.Time             `json:"decidedAt"`
}

// OutputEvent is the serialized form destined for the decisions topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
