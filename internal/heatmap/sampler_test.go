package heatmap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/couchcryptid/peril-risk-service/internal/domain"
	"github.com/couchcryptid/peril-risk-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScorer struct {
	mu       sync.Mutex
	seen     map[domain.Coordinates]int
	inFlight atomic.Int32
	peak     atomic.Int32
	err      error
	failAt   map[domain.Coordinates]bool
}

func (s *stubScorer) ScoreLocation(_ context.Context, c domain.Coordinates) (domain.RiskScores, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	s.mu.Lock()
	if s.seen == nil {
		s.seen = map[domain.Coordinates]int{}
	}
	s.seen[c]++
	s.mu.Unlock()
	if s.err != nil {
		return domain.RiskScores{}, s.err
	}
	if s.failAt[c] {
		return domain.RiskScores{}, errors.New("scoring panic: index out of range")
	}
	flood := domain.NewRiskScore(int(c.Lat*10), 80, nil, false)
	return domain.RiskScores{
		Overall: domain.NewRiskScore(25, 70, nil, false),
		Flood:   flood,
	}, nil
}

func newSampler(scorer LocationScorer, opts Options) (*Sampler, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return NewSampler(scorer, opts, m, slog.New(slog.NewTextHandler(io.Discard, nil))), m
}

func TestGrid_Counts(t *testing.T) {
	coords, err := Grid(Bounds{North: 1, South: 0, East: 1, West: 0}, 0.5, 100)
	require.NoError(t, err)
	assert.Len(t, coords, 9)
	assert.Equal(t, domain.Coordinates{Lat: 0, Lng: 0}, coords[0])
	assert.Equal(t, domain.Coordinates{Lat: 1, Lng: 1}, coords[8])
}

func TestGrid_FloatStepsLandOnBounds(t *testing.T) {
	coords, err := Grid(Bounds{North: 0.3, South: 0, East: 0.3, West: 0}, 0.1, 100)
	require.NoError(t, err)
	assert.Len(t, coords, 16)
	assert.Equal(t, domain.Coordinates{Lat: 0.3, Lng: 0.3}, coords[len(coords)-1])
}

func TestGrid_Deduplicates(t *testing.T) {
	// A step below the rounding resolution collapses onto the same keys.
	coords, err := Grid(Bounds{North: 1e-6, South: 0, East: 1e-6, West: 0}, 3e-7, 1000)
	require.NoError(t, err)

	seen := map[domain.Coordinates]bool{}
	for _, c := range coords {
		assert.False(t, seen[c], "duplicate %v", c)
		seen[c] = true
	}
	assert.Len(t, coords, 4)
}

func TestGrid_Errors(t *testing.T) {
	tests := []struct {
		name   string
		bounds Bounds
		step   float64
		want   error
	}{
		{"inverted lat", Bounds{North: 0, South: 1, East: 1, West: 0}, 0.1, domain.ErrInvalidBounds},
		{"inverted lng", Bounds{North: 1, South: 0, East: 0, West: 1}, 0.1, domain.ErrInvalidBounds},
		{"out of range", Bounds{North: 91, South: 0, East: 1, West: 0}, 0.1, domain.ErrInvalidCoordinates},
		{"NaN north", Bounds{North: math.NaN(), South: 0, East: 1, West: 0}, 0.1, domain.ErrInvalidCoordinates},
		{"NaN west", Bounds{North: 1, South: 0, East: 1, West: math.NaN()}, 0.1, domain.ErrInvalidCoordinates},
		{"infinite east", Bounds{North: 1, South: 0, East: math.Inf(1), West: 0}, 0.1, domain.ErrInvalidCoordinates},
		{"NaN step", Bounds{North: 1, South: 0, East: 1, West: 0}, math.NaN(), domain.ErrInvalidGridSize},
		{"zero step", Bounds{North: 1, South: 0, East: 1, West: 0}, 0, domain.ErrInvalidGridSize},
		{"too many points", Bounds{North: 10, South: 0, East: 10, West: 0}, 0.01, domain.ErrGridTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Grid(tt.bounds, tt.step, 2500)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, domain.IsValidationError(err))
		})
	}
}

func TestSample_OnePointPerCoordinate(t *testing.T) {
	scorer := &stubScorer{}
	s, m := newSampler(scorer, Options{MaxPoints: 100, Concurrency: 3, RatePerSecond: 1000})

	points, err := s.Sample(context.Background(), Request{
		Bounds:   Bounds{North: 2, South: 0, East: 2, West: 0},
		RiskType: domain.RiskType(domain.PerilFlood),
		GridSize: 1,
	})
	require.NoError(t, err)
	require.Len(t, points, 9)

	for _, c := range scorer.seen {
		assert.Equal(t, 1, c)
	}
	assert.LessOrEqual(t, scorer.peak.Load(), int32(3))
	assert.InDelta(t, 9, testutil.ToFloat64(m.HeatmapPoints), 0)

	last := points[8]
	assert.InDelta(t, 2.0, last.Lat, 0)
	assert.InDelta(t, 0.2, last.Intensity, 1e-9)
	assert.Equal(t, domain.LevelLow, last.Level)
	assert.Equal(t, domain.LevelVeryLow, points[0].Level)
}

func TestSample_DefaultsToOverall(t *testing.T) {
	s, _ := newSampler(&stubScorer{}, DefaultOptions())

	points, err := s.Sample(context.Background(), Request{
		Bounds:   Bounds{North: 1, South: 0, East: 1, West: 0},
		GridSize: 1,
	})
	require.NoError(t, err)
	for _, p := range points {
		assert.InDelta(t, 0.25, p.Intensity, 1e-9)
		assert.Equal(t, domain.LevelLow, p.Level)
	}
}

func TestSample_UnknownRiskType(t *testing.T) {
	scorer := &stubScorer{}
	s, _ := newSampler(scorer, DefaultOptions())

	_, err := s.Sample(context.Background(), Request{
		Bounds:   Bounds{North: 1, South: 0, East: 1, West: 0},
		RiskType: "tornado",
		GridSize: 1,
	})
	require.ErrorIs(t, err, domain.ErrUnknownRiskType)
	assert.Empty(t, scorer.seen)
}

func TestSample_ScorerError(t *testing.T) {
	s, m := newSampler(&stubScorer{err: errors.New("boom")}, DefaultOptions())

	points, err := s.Sample(context.Background(), Request{
		Bounds:   Bounds{North: 1, South: 0, East: 1, West: 0},
		GridSize: 1,
	})
	require.NoError(t, err)
	assert.Empty(t, points)
	assert.InDelta(t, 0, testutil.ToFloat64(m.HeatmapPoints), 0)
}

func TestSample_SkipsFailedPoint(t *testing.T) {
	bad := domain.Coordinates{Lat: 1, Lng: 0}
	scorer := &stubScorer{failAt: map[domain.Coordinates]bool{bad: true}}
	s, m := newSampler(scorer, Options{MaxPoints: 100, Concurrency: 2, RatePerSecond: 1000})

	points, err := s.Sample(context.Background(), Request{
		Bounds:   Bounds{North: 1, South: 0, East: 1, West: 0},
		GridSize: 1,
	})
	require.NoError(t, err)
	require.Len(t, points, 3)
	for _, p := range points {
		assert.NotEqual(t, bad, domain.Coordinates{Lat: p.Lat, Lng: p.Lng})
	}
	// Grid order is kept for the points that scored.
	assert.Equal(t, []float64{0, 0, 1}, []float64{points[0].Lat, points[1].Lat, points[2].Lat})
	assert.Equal(t, []float64{0, 1, 1}, []float64{points[0].Lng, points[1].Lng, points[2].Lng})
	assert.InDelta(t, 3, testutil.ToFloat64(m.HeatmapPoints), 0)
}

func TestSample_CanceledContext(t *testing.T) {
	s, _ := newSampler(&stubScorer{}, Options{MaxPoints: 100, Concurrency: 1, RatePerSecond: 0.001})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Sample(ctx, Request{
		Bounds:   Bounds{North: 1, South: 0, East: 1, West: 0},
		GridSize: 0.5,
	})
	require.Error(t, err)
}
