// Package heatmap samples the location scoring pipeline over a bounding box
// to produce a spatial risk surface.
package heatmap

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/couchcryptid/peril-risk-service/internal/domain"
	"github.com/couchcryptid/peril-risk-service/internal/observability"
	"github.com/twpayne/go-geom"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// precision is the number of decimals grid coordinates are rounded to before
// deduplication (about 0.1 m).
const precision = 1e6

// LocationScorer scores a bare coordinate.
type LocationScorer interface {
	ScoreLocation(ctx context.Context, coords domain.Coordinates) (domain.RiskScores, error)
}

// Bounds is a latitude/longitude bounding box.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Validate checks ordering and coordinate ranges.
func (b Bounds) Validate() error {
	if b.North <= b.South || b.East <= b.West {
		return domain.ErrInvalidBounds
	}
	for _, c := range []domain.Coordinates{{Lat: b.North, Lng: b.East}, {Lat: b.South, Lng: b.West}} {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (b Bounds) geom() *geom.Bounds {
	return geom.NewBounds(geom.XY).Set(b.West, b.South, b.East, b.North)
}

// Request asks for a heatmap of one risk type.
type Request struct {
	Bounds   Bounds
	RiskType domain.RiskType
	GridSize float64
}

// Point is one sampled grid coordinate.
type Point struct {
	Lat       float64      `json:"lat"`
	Lng       float64      `json:"lng"`
	Intensity float64      `json:"intensity"`
	Level     domain.Level `json:"level"`
}

// Options bounds the work a single request may generate.
type Options struct {
	MaxPoints   int
	Concurrency int
	// RatePerSecond caps scoring calls across all requests of the sampler.
	RatePerSecond float64
}

// DefaultOptions returns 2500 points, 8 in flight and 50 scores per second.
func DefaultOptions() Options {
	return Options{MaxPoints: 2500, Concurrency: 8, RatePerSecond: 50}
}

// Sampler drives a LocationScorer over a grid.
type Sampler struct {
	scorer  LocationScorer
	opts    Options
	limiter *rate.Limiter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewSampler creates a sampler.
func NewSampler(scorer LocationScorer, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Sampler {
	burst := max(opts.Concurrency, 1)
	return &Sampler{
		scorer:  scorer,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst),
		metrics: metrics,
		logger:  logger,
	}
}

// Sample scores every deduplicated grid coordinate inside the bounds. Points
// are returned in grid order (south to north, west to east). A coordinate
// whose scoring fails is logged and left out; the heatmap fails only when the
// request itself is invalid or ctx ends.
func (s *Sampler) Sample(ctx context.Context, req Request) ([]Point, error) {
	if req.RiskType == "" {
		req.RiskType = domain.RiskOverall
	}
	if _, err := domain.ParseRiskType(string(req.RiskType)); err != nil {
		return nil, err
	}
	coords, err := Grid(req.Bounds, req.GridSize, s.opts.MaxPoints)
	if err != nil {
		return nil, err
	}

	sampled := make([]Point, len(coords))
	scored := make([]bool, len(coords))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.opts.Concurrency, 1))
	for i, c := range coords {
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			scores, err := s.scorer.ScoreLocation(gctx, c)
			if err != nil {
				if gctx.Err() != nil {
					return fmt.Errorf("score %s: %w", c, err)
				}
				s.logger.Warn("heatmap point skipped", "coordinates", c.String(), "error", err)
				return nil
			}
			score, err := scores.ByType(req.RiskType)
			if err != nil {
				return err
			}
			sampled[i] = Point{
				Lat:       c.Lat,
				Lng:       c.Lng,
				Intensity: float64(score.Score) / 100,
				Level:     score.Level,
			}
			scored[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	points := make([]Point, 0, len(coords))
	for i, ok := range scored {
		if ok {
			points = append(points, sampled[i])
		}
	}
	if skipped := len(coords) - len(points); skipped > 0 {
		s.logger.Warn("heatmap sampled with gaps", "skipped", skipped, "points", len(points))
	}

	s.metrics.HeatmapPoints.Add(float64(len(points)))
	s.logger.Debug("heatmap sampled", "points", len(points), "risk_type", req.RiskType)
	return points, nil
}

// Grid lays an integer-indexed grid over the bounds and returns each
// coordinate once, rounded to the dedup resolution. Grids with more than
// maxPoints coordinates are rejected before any are generated.
func Grid(b Bounds, step float64, maxPoints int) ([]domain.Coordinates, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil, domain.ErrInvalidGridSize
	}

	rows := steps(b.North-b.South, step)
	cols := steps(b.East-b.West, step)
	if math.IsNaN(rows*cols) || math.IsInf(rows*cols, 0) {
		return nil, domain.ErrInvalidBounds
	}
	if rows*cols > float64(maxPoints) {
		return nil, fmt.Errorf("%w: %.0f points exceeds limit of %d", domain.ErrGridTooLarge, rows*cols, maxPoints)
	}

	box := b.geom()
	seen := make(map[[2]int64]struct{}, int(rows*cols))
	out := make([]domain.Coordinates, 0, int(rows*cols))
	for i := 0; i < int(rows); i++ {
		lat := round(b.South + float64(i)*step)
		for j := 0; j < int(cols); j++ {
			lng := round(b.West + float64(j)*step)
			if !box.OverlapsPoint(geom.XY, geom.Coord{lng, lat}) {
				continue
			}
			key := [2]int64{int64(math.Round(lat * precision)), int64(math.Round(lng * precision))}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, domain.Coordinates{Lat: lat, Lng: lng})
		}
	}
	return out, nil
}

// steps is the number of grid lines from 0 to span inclusive.
func steps(span, step float64) float64 {
	return math.Floor(span/step+1e-9) + 1
}

func round(v float64) float64 {
	return math.Round(v*precision) / precision
}
