package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/peril-risk-service/internal/claims"
	"github.com/couchcryptid/peril-risk-service/internal/domain"
)

// Automator decides a single claim.
type Automator interface {
	Automate(ctx context.Context, c domain.Claim, forceProcess bool) (claims.Outcome, error)
}

// ClaimTransformer implements Transformer by running claim automation on
// each submission.
type ClaimTransformer struct {
	automator Automator
	logger    *slog.Logger
}

// NewTransformer creates a ClaimTransformer.
func NewTransformer(automator Automator, logger *slog.Logger) *ClaimTransformer {
	return &ClaimTransformer{
		automator: automator,
		logger:    logger,
	}
}

// Transform decodes a ClaimSubmission, decides it and serializes the
// ClaimDecision. A forced claim that fails eligibility still produces a
// decision carrying its unmet conditions.
func (t *ClaimTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	var sub domain.ClaimSubmission
	if err := json.Unmarshal(raw.Value, &sub); err != nil {
		return domain.OutputEvent{}, fmt.Errorf("decode claim submission: %w", err)
	}
	if sub.Claim.PropertyID == "" && sub.Property != nil {
		sub.Claim.PropertyID = sub.Property.ID
	}

	out, err := t.automator.Automate(ctx, sub.Claim, sub.ForceProcess)
	var violation *domain.PolicyViolationError
	if err != nil && !errors.As(err, &violation) {
		return domain.OutputEvent{}, fmt.Errorf("automate claim %q: %w", sub.Claim.ID, err)
	}

	decision := domain.ClaimDecision{
		ClaimID:        out.Claim.ID,
		PropertyID:     out.Claim.PropertyID,
		Status:         out.Claim.Status,
		Automation:     out.Automation,
		Damage:         out.Claim.Damage,
		Fraud:          out.Claim.Fraud,
		ApprovedAmount: out.Claim.ApprovedAmount,
		Unmet:          out.Unmet,
		DecidedAt:      out.Automation.ProcessedAt,
	}
	value, err := json.Marshal(decision)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("serialize claim decision: %w", err)
	}

	return domain.OutputEvent{
		Key:   []byte(decision.ClaimID),
		Value: value,
		Headers: map[string]string{
			"status":           string(decision.Status),
			"decision":         string(decision.Automation.Decision),
			"decided_at":       decision.DecidedAt.UTC().Format(time.RFC3339),
			"policy_violation": strconv.FormatBool(violation != nil),
		},
	}, nil
}
