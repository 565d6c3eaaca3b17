// Package claims runs the claim automation pipeline: damage and fraud
// signals are gathered concurrently, degraded through the fallback policy
// when the AI engine fails, and fed to the domain automation gates.
package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/peril-risk-service/internal/domain"
	"github.com/couchcryptid/peril-risk-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Options holds per-call timeouts for the AI engine.
type Options struct {
	DamageTimeout time.Duration
	FraudTimeout  time.Duration
}

// DefaultOptions returns 60s for image analysis and 30s for fraud checks.
func DefaultOptions() Options {
	return Options{DamageTimeout: 60 * time.Second, FraudTimeout: 30 * time.Second}
}

// Outcome is the result of automating one claim.
type Outcome struct {
	Claim      domain.Claim            `json:"claim"`
	Automation domain.AutomationResult `json:"automation"`
	Unmet      []string                `json:"unmetConditions,omitempty"`
}

// Service decides claims.
type Service struct {
	damage  domain.DamageAnalyzer
	fraud   domain.FraudDetector
	policy  domain.FallbackPolicy
	opts    Options
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger

	// decide is swapped in tests to exercise the recovery path.
	decide func(domain.AutomationInput, time.Time) domain.AutomationDecision
}

// NewService creates a claim automation service.
func NewService(damage domain.DamageAnalyzer, fraud domain.FraudDetector, policy domain.FallbackPolicy, opts Options, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{
		damage:  damage,
		fraud:   fraud,
		policy:  policy,
		opts:    opts,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
		decide:  domain.Decide,
	}
}

// Automate derives a fresh automation decision for c and applies it to the
// claim's status. A claim that already carries an automation result is
// refused unless forceProcess is set. When forceProcess is set on a claim
// that fails eligibility, the outcome is still returned together with a
// *domain.PolicyViolationError listing the unmet conditions.
func (s *Service) Automate(ctx context.Context, c domain.Claim, forceProcess bool) (Outcome, error) {
	if err := c.Validate(); err != nil {
		return Outcome{}, err
	}
	if c.Status == "" {
		c.Status = domain.ClaimSubmitted
	}
	if c.Status.Terminal() || c.Status == domain.ClaimApproved {
		return Outcome{}, fmt.Errorf("%w: claim %s is %s", domain.ErrInvalidTransition, c.ID, c.Status)
	}
	if c.Automation != nil && !forceProcess {
		return Outcome{}, domain.ErrAlreadyAutomated
	}

	damage, fraud, failures := s.gather(ctx, c)
	in := domain.AutomationInput{
		Claim:   c,
		Damage:  &damage,
		Fraud:   &fraud,
		Failure: strings.Join(failures, "; "),
	}

	decision, err := s.safeDecide(in)
	if err != nil {
		s.logger.Error("automation decision failed", "claim_id", c.ID, "error", err)
		failures = append(failures, err.Error())
		decision = reviewOnly(in, s.clock.Now(), err)
	}

	c.Damage = &damage
	c.Fraud = &fraud
	c.Automation = &decision.Result
	c.AutomationReason = strings.Join(failures, "; ")
	if len(failures) > 0 {
		s.metrics.AutomationFailures.Inc()
	}
	s.applyStatus(&c, decision)
	s.metrics.ClaimDecisions.WithLabelValues(string(decision.Result.Decision)).Inc()

	s.logger.Info("claim decided",
		"claim_id", c.ID,
		"decision", decision.Result.Decision,
		"automated", decision.Result.IsAutomated,
		"confidence", decision.Result.ConfidenceScore,
		"status", c.Status,
	)

	out := Outcome{Claim: c, Automation: decision.Result, Unmet: decision.Unmet}
	if forceProcess && len(decision.Unmet) > 0 {
		return out, &domain.PolicyViolationError{ClaimID: c.ID, Unmet: decision.Unmet}
	}
	return out, nil
}

func (s *Service) applyStatus(c *domain.Claim, d domain.AutomationDecision) {
	if d.NextStatus == domain.ClaimApproved {
		if err := c.ApproveAutomatically(d.Approval); err != nil {
			s.logger.Error("automated approval rejected", "claim_id", c.ID, "error", err)
		}
		return
	}
	if c.Status == d.NextStatus || !c.Status.CanTransition(d.NextStatus) {
		return
	}
	if err := c.Transition(d.NextStatus); err != nil {
		s.logger.Warn("claim transition rejected", "claim_id", c.ID, "error", err)
	}
}

// gather runs damage and fraud analysis concurrently. Failed calls are
// replaced by fallback results and their error text is returned.
func (s *Service) gather(ctx context.Context, c domain.Claim) (domain.DamageAnalysisResult, domain.FraudAnalysisResult, []string) {
	var (
		damage    domain.DamageAnalysisResult
		fraud     domain.FraudAnalysisResult
		damageErr error
		fraudErr  error
	)
	g, gctx := errgroup.WithContext(ctx)

	if c.HasBothImages() {
		g.Go(func() error {
			damageErr = s.call(gctx, "ai_damage", s.opts.DamageTimeout, func(ctx context.Context) error {
				var err error
				if damage, err = s.damage.AnalyzeDamage(ctx, *c.PreImagery, *c.PostImagery); err != nil {
					return err
				}
				return damage.Validate()
			})
			return nil
		})
	}
	g.Go(func() error {
		fraudErr = s.call(gctx, "ai_fraud", s.opts.FraudTimeout, func(ctx context.Context) error {
			var err error
			if fraud, err = s.fraud.DetectFraud(ctx, c); err != nil {
				return err
			}
			return fraud.Validate()
		})
		return nil
	})
	_ = g.Wait()

	var failures []string
	if !c.HasBothImages() {
		pct, loss := domain.EstimateDamage(c)
		damage = s.policy.DamageFallback(pct, loss, []string{"imagery_missing"})
		s.metrics.Fallbacks.WithLabelValues("damage").Inc()
	} else if damageErr != nil {
		pct, loss := domain.EstimateDamage(c)
		damage = s.policy.DamageFallback(pct, loss, nil)
		failures = append(failures, "damage analysis: "+damageErr.Error())
		s.metrics.Fallbacks.WithLabelValues("damage").Inc()
		s.logger.Warn("damage analysis unavailable, using fallback", "claim_id", c.ID, "error", damageErr)
	}
	if fraudErr != nil {
		fraud = s.policy.FraudFallback(domain.FraudRuleFactors(c))
		failures = append(failures, "fraud detection: "+fraudErr.Error())
		s.metrics.Fallbacks.WithLabelValues("fraud").Inc()
		s.logger.Warn("fraud detection unavailable, using fallback", "claim_id", c.ID, "error", fraudErr)
	}
	return damage, fraud, failures
}

func (s *Service) call(ctx context.Context, source string, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := s.clock.Now()
	err := fn(ctx)
	s.metrics.UpstreamDuration.WithLabelValues(source).Observe(s.clock.Since(start).Seconds())
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.metrics.UpstreamRequests.WithLabelValues(source, outcome).Inc()
	return err
}

func (s *Service) safeDecide(in domain.AutomationInput) (d domain.AutomationDecision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("automation panic: %v", r)
		}
	}()
	return s.decide(in, s.clock.Now()), nil
}

// reviewOnly is the decision used when the gates themselves could not be
// evaluated. It never approves.
func reviewOnly(in domain.AutomationInput, now time.Time, cause error) domain.AutomationDecision {
	next := domain.ClaimUnderReview
	if in.Fraud != nil && (in.Fraud.FlaggedForReview || in.Fraud.RiskLevel == domain.FraudHigh) {
		next = domain.ClaimInvestigating
	}
	return domain.AutomationDecision{
		Result: domain.AutomationResult{
			Decision:            domain.DecisionRequiresReview,
			HumanReviewRequired: true,
			Reasoning:           []string{"Automation failure: " + cause.Error(), "Routed to human review"},
			ProcessedAt:         now,
		},
		NextStatus: next,
	}
}

// BatchItem is one claim of a batch request.
type BatchItem struct {
	Claim        domain.Claim `json:"claim"`
	ForceProcess bool         `json:"forceProcess,omitempty"`
}

// BatchResult reports the per-claim result of a batch.
type BatchResult struct {
	ClaimID         string   `json:"claimId"`
	Success         bool     `json:"success"`
	Outcome         *Outcome `json:"outcome,omitempty"`
	Error           string   `json:"error,omitempty"`
	UnmetConditions []string `json:"unmetConditions,omitempty"`
}

// AutomateBatch automates items with at most limit claims in flight.
// Results keep the input order; one failing claim never fails the batch.
func (s *Service) AutomateBatch(ctx context.Context, items []BatchItem, limit int) []BatchResult {
	results := make([]BatchResult, len(items))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		g.Go(func() error {
			out, err := s.Automate(gctx, item.Claim, item.ForceProcess)
			res := BatchResult{ClaimID: item.Claim.ID, Success: err == nil}
			if out.Claim.ID != "" {
				res.Outcome = &out
			}
			if err != nil {
				res.Error = err.Error()
				var pv *domain.PolicyViolationError
				if errors.As(err, &pv) {
					res.UnmetConditions = pv.Unmet
				}
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}
