package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/peril-risk-service/internal/domain"
	"github.com/couchcryptid/peril-risk-service/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Sources are the upstream collaborators an assessment fans out to.
type Sources struct {
	Satellite domain.SatelliteSource
	Weather   domain.WeatherSource
	AI        domain.RiskAnalyzer
}

// Options tunes timeouts and the reuse window.
type Options struct {
	SatelliteTimeout time.Duration
	WeatherTimeout   time.Duration
	AITimeout        time.Duration
	ReuseWindow      time.Duration
	Validity         time.Duration
}

// DefaultOptions returns the production timeouts and windows.
func DefaultOptions() Options {
	return Options{
		SatelliteTimeout: 10 * time.Second,
		WeatherTimeout:   10 * time.Second,
		AITimeout:        30 * time.Second,
		ReuseWindow:      24 * time.Hour,
		Validity:         30 * 24 * time.Hour,
	}
}

// AssessRequest is a consumer request for a property assessment.
type AssessRequest struct {
	Property     domain.Property
	Type         domain.AssessmentType
	ForceRefresh bool
}

// Orchestrator gathers upstream snapshots concurrently, scores them and
// owns the reuse-window decision.
type Orchestrator struct {
	sources    Sources
	store      Store
	scorer     domain.PerilScorer
	aggregator domain.RiskAggregator
	opts       Options
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger

	// score is swapped in tests to exercise the recovery path.
	score func(domain.Property, domain.Snapshot) domain.RiskScores
}

// New creates an orchestrator. The aggregator's fallback policy is shared
// with the peril scorer.
func New(sources Sources, store Store, aggregator domain.RiskAggregator, policy domain.FallbackPolicy, opts Options, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		sources:    sources,
		store:      store,
		scorer:     domain.PerilScorer{Policy: policy},
		aggregator: aggregator,
		opts:       opts,
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
	}
	o.score = o.scoreSnapshot
	return o
}

// Assess returns an assessment for the property. Unless ForceRefresh is set,
// an assessment younger than the reuse window is returned verbatim and the
// second return value is true.
func (o *Orchestrator) Assess(ctx context.Context, req AssessRequest) (domain.RiskAssessment, bool, error) {
	if err := req.Property.Validate(); err != nil {
		return domain.RiskAssessment{}, false, err
	}
	if req.Type == "" {
		req.Type = domain.AssessmentOnDemand
	}
	if _, err := domain.ParseAssessmentType(string(req.Type)); err != nil {
		return domain.RiskAssessment{}, false, err
	}

	cacheLabel := "bypass"
	if !req.ForceRefresh {
		cacheLabel = "miss"
		if cached, ok := o.lookup(ctx, req.Property.ID); ok {
			o.metrics.Assessments.WithLabelValues(string(req.Type), "hit").Inc()
			return cached, true, nil
		}
	}

	snap := o.Gather(ctx, req.Property)
	a := o.newAssessment(req, snap)

	// Review placeholders are not reused so the next request retries.
	if !a.ReviewRequired {
		if err := o.store.Put(ctx, a); err != nil {
			o.logger.Warn("assessment cache write failed", "property_id", a.PropertyID, "error", err)
		}
	}
	o.metrics.Assessments.WithLabelValues(string(req.Type), cacheLabel).Inc()
	return a, false, nil
}

func (o *Orchestrator) lookup(ctx context.Context, propertyID string) (domain.RiskAssessment, bool) {
	cached, ok, err := o.store.Get(ctx, propertyID)
	if err != nil {
		o.logger.Warn("assessment cache read failed", "property_id", propertyID, "error", err)
		return domain.RiskAssessment{}, false
	}
	if !ok || cached.ReviewRequired || !cached.AgeWithin(o.clock.Now(), o.opts.ReuseWindow) {
		return domain.RiskAssessment{}, false
	}
	return cached, true
}

func (o *Orchestrator) newAssessment(req AssessRequest, snap domain.Snapshot) domain.RiskAssessment {
	now := o.clock.Now()
	a := domain.RiskAssessment{
		ID:         uuid.NewString(),
		PropertyID: req.Property.ID,
		Type:       req.Type,
		Sources:    snap.Sources,
		CreatedAt:  now,
		ValidUntil: now.Add(o.opts.Validity),
	}

	scores, err := o.safeScore(req.Property, snap)
	if err != nil {
		o.logger.Error("scoring failed, assessment requires review", "property_id", req.Property.ID, "error", err)
		a.Scores = placeholderScores()
		a.ReviewRequired = true
		a.ReviewReason = err.Error()
		return a
	}
	a.Scores = scores
	return a
}

func (o *Orchestrator) safeScore(p domain.Property, snap domain.Snapshot) (scores domain.RiskScores, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scoring panic: %v", r)
		}
	}()
	return o.score(p, snap), nil
}

func (o *Orchestrator) scoreSnapshot(p domain.Property, snap domain.Snapshot) domain.RiskScores {
	perils := o.scorer.ScoreAll(p.Factors, snap.Satellite, snap.Weather)
	return o.aggregator.Aggregate(perils, snap)
}

func placeholderScores() domain.RiskScores {
	zero := domain.NewRiskScore(0, 0, []string{"scoring failed; manual review required"}, true)
	return domain.RiskScores{Overall: zero, Flood: zero, Wildfire: zero, Hurricane: zero, Earthquake: zero}
}

// ScoreLocation is the cheap path used by the heatmap: satellite and
// weather only, no AI opinion, no static attributes and no caching.
func (o *Orchestrator) ScoreLocation(ctx context.Context, coords domain.Coordinates) (domain.RiskScores, error) {
	if err := coords.Validate(); err != nil {
		return domain.RiskScores{}, err
	}
	p := domain.Property{ID: coords.String(), Location: coords}
	snap := o.gather(ctx, p, false)
	return o.safeScore(p, snap)
}

// Gather issues the satellite, weather and AI-risk calls concurrently. A
// failure in one never affects the others; each failure is recorded in the
// snapshot's source status and the corresponding member is left nil.
func (o *Orchestrator) Gather(ctx context.Context, p domain.Property) domain.Snapshot {
	return o.gather(ctx, p, true)
}

func (o *Orchestrator) gather(ctx context.Context, p domain.Property, withAI bool) domain.Snapshot {
	var (
		sat    domain.SatelliteSnapshot
		wx     domain.WeatherSnapshot
		ai     domain.AIRiskResult
		satErr error
		wxErr  error
		aiErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	date := o.clock.Now()

	g.Go(func() error {
		satErr = o.call(gctx, "satellite", o.opts.SatelliteTimeout, func(ctx context.Context) error {
			var err error
			if sat, err = o.sources.Satellite.PropertySnapshot(ctx, p.Location, date); err != nil {
				return err
			}
			return sat.Validate()
		})
		return nil
	})
	g.Go(func() error {
		wxErr = o.call(gctx, "weather", o.opts.WeatherTimeout, func(ctx context.Context) error {
			var err error
			if wx, err = o.sources.Weather.WeatherRisk(ctx, p.Location); err != nil {
				return err
			}
			return wx.Validate()
		})
		return nil
	})
	if withAI {
		g.Go(func() error {
			aiErr = o.call(gctx, "ai_risk", o.opts.AITimeout, func(ctx context.Context) error {
				var err error
				if ai, err = o.sources.AI.AnalyzeRisk(ctx, p); err != nil {
					return err
				}
				return ai.Validate()
			})
			return nil
		})
	}
	_ = g.Wait()

	snap := domain.Snapshot{Sources: domain.SourceStatus{Failures: map[domain.Signal]string{}}}
	if satErr == nil {
		snap.Satellite = &sat
	} else {
		o.fallback(&snap.Sources, domain.SignalSatellite, satErr, p.ID)
	}
	if wxErr == nil {
		snap.Weather = &wx
	} else {
		o.fallback(&snap.Sources, domain.SignalWeather, wxErr, p.ID)
	}
	switch {
	case !withAI:
		snap.Sources.AIFallback = true
	case aiErr == nil:
		snap.AIRisk = &ai
	default:
		o.fallback(&snap.Sources, domain.SignalAI, aiErr, p.ID)
	}
	if len(snap.Sources.Failures) == 0 {
		snap.Sources.Failures = nil
	}
	return snap
}

func (o *Orchestrator) call(ctx context.Context, source string, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := o.clock.Now()
	err := fn(ctx)
	o.metrics.UpstreamDuration.WithLabelValues(source).Observe(o.clock.Since(start).Seconds())
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	o.metrics.UpstreamRequests.WithLabelValues(source, outcome).Inc()
	return err
}

func (o *Orchestrator) fallback(s *domain.SourceStatus, sig domain.Signal, err error, propertyID string) {
	switch sig {
	case domain.SignalSatellite:
		s.SatelliteFallback = true
	case domain.SignalWeather:
		s.WeatherFallback = true
	case domain.SignalAI:
		s.AIFallback = true
	}
	s.Failures[sig] = err.Error()
	o.metrics.Fallbacks.WithLabelValues(string(sig)).Inc()
	o.logger.Warn("upstream unavailable, using fallback", "signal", sig, "property_id", propertyID, "error", err)
}

// CheckReadiness implements the readiness contract by pinging the store.
func (o *Orchestrator) CheckReadiness(ctx context.Context) error {
	if err := o.store.Ping(ctx); err != nil {
		return fmt.Errorf("assessment store: %w", err)
	}
	return nil
}

// Aggregator exposes the configured aggregator, for reporting weights.
func (o *Orchestrator) Aggregator() domain.RiskAggregator { return o.aggregator }
