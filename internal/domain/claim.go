package domain

import (
	"fmt"
	"strings"
	"time"
)

// ClaimStatus is the lifecycle state of a claim.
type ClaimStatus string

const (
	ClaimSubmitted     ClaimStatus = "submitted"
	ClaimUnderReview   ClaimStatus = "under_review"
	ClaimInvestigating ClaimStatus = "investigating"
	ClaimApproved      ClaimStatus = "approved"
	ClaimDenied        ClaimStatus = "denied"
	ClaimPaid          ClaimStatus = "paid"
	ClaimClosed        ClaimStatus = "closed"
)

// transitions lists the manual moves. submitted -> approved is deliberately
// absent: only ApproveAutomatically can take it.
var transitions = map[ClaimStatus][]ClaimStatus{
	ClaimSubmitted:     {ClaimUnderReview, ClaimInvestigating},
	ClaimUnderReview:   {ClaimApproved, ClaimDenied},
	ClaimInvestigating: {ClaimApproved, ClaimDenied},
	ClaimApproved:      {ClaimPaid, ClaimClosed},
}

// CanTransition reports whether a manual move from s to next is allowed.
func (s ClaimStatus) CanTransition(next ClaimStatus) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s ClaimStatus) Terminal() bool {
	return s == ClaimDenied || s == ClaimPaid || s == ClaimClosed
}

// ParseClaimStatus validates s; empty means submitted.
func ParseClaimStatus(s string) (ClaimStatus, error) {
	st := ClaimStatus(strings.ToLower(strings.TrimSpace(s)))
	if st == "" {
		return ClaimSubmitted, nil
	}
	if _, ok := transitions[st]; ok || st.Terminal() {
		return st, nil
	}
	return "", fmt.Errorf("unknown claim status %q", s)
}

// Document is a supporting file attached to a claim.
type Document struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type,omitempty"`
	URL  string `json:"url"`
}

// Claim is the unit of automation.
type Claim struct {
	ID           string      `json:"claimId"`
	PropertyID   string      `json:"propertyId"`
	Type         string      `json:"claimType"`
	IncidentDate time.Time   `json:"incidentDate"`
	ReportedDate time.Time   `json:"reportedDate,omitempty"`
	Amount       float64     `json:"claimAmount"`
	Description  string      `json:"description,omitempty"`
	Documents    []Document  `json:"documents,omitempty"`
	PreImagery   *Imagery    `json:"preIncidentImagery,omitempty"`
	PostImagery  *Imagery    `json:"postIncidentImagery,omitempty"`
	Status       ClaimStatus `json:"status"`

	Automation       *AutomationResult     `json:"automation,omitempty"`
	Damage           *DamageAnalysisResult `json:"damageAnalysis,omitempty"`
	Fraud            *FraudAnalysisResult  `json:"fraudRisk,omitempty"`
	AutomationReason string                `json:"automationReason,omitempty"`
	ApprovedAmount   float64               `json:"approvedAmount,omitempty"`
}

// Validate checks the fields required before automation.
func (c Claim) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrMissingClaimID
	}
	if strings.TrimSpace(c.PropertyID) == "" {
		return fmt.Errorf("%w: claim %s", ErrMissingPropertyID, c.ID)
	}
	if c.Amount < 0 {
		return fmt.Errorf("%w: got %g", ErrNegativeAmount, c.Amount)
	}
	return nil
}

// HasBothImages reports whether pre- and post-incident imagery are present.
func (c Claim) HasBothImages() bool {
	return c.PreImagery != nil && c.PreImagery.ImageURL != "" &&
		c.PostImagery != nil && c.PostImagery.ImageURL != ""
}

// Transition moves the claim along a manual edge of the state machine.
func (c *Claim) Transition(to ClaimStatus) error {
	if !c.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	c.Status = to
	return nil
}

// AutoApproval authorizes an automated approval. Only Decide can produce a
// usable one; the zero value is rejected.
type AutoApproval struct {
	amount float64
	ok     bool
}

// Amount is the approved payout.
func (a AutoApproval) Amount() float64 { return a.amount }

// ApproveAutomatically applies an automation approval. It is the only way to
// reach approved directly from submitted.
func (c *Claim) ApproveAutomatically(a AutoApproval) error {
	if !a.ok {
		return fmt.Errorf("%w: approval not granted by automation", ErrInvalidTransition)
	}
	if c.Status != ClaimSubmitted && !c.Status.CanTransition(ClaimApproved) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, ClaimApproved)
	}
	c.Status = ClaimApproved
	c.ApprovedAmount = a.amount
	return nil
}
