// Command batchscore scores properties or samples a heatmap without any live
// upstream. Satellite and weather values come from the deterministic fixture
// sources and the AI engine is offline, so the rule-based fallbacks apply.
// Output is stable for a given input and -at timestamp, which makes it
// suitable for regenerating test fixtures.
//
// Usage:
//
//	go run ./cmd/batchscore -csv data/properties.csv -out data/assessments.json
//	go run ./cmd/batchscore -bounds 30.1,29.8,-89.9,-90.2 -grid 0.05 -risk-type flood -out data/heatmap.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/peril-risk-service/internal/adapter/fixture"
	"github.com/couchcryptid/peril-risk-service/internal/adapter/offline"
	"github.com/couchcryptid/peril-risk-service/internal/domain"
	"github.com/couchcryptid/peril-risk-service/internal/fusion"
	"github.com/couchcryptid/peril-risk-service/internal/heatmap"
	"github.com/couchcryptid/peril-risk-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	csvPath := flag.String("csv", "", "CSV of properties to assess")
	bounds := flag.String("bounds", "", "heatmap bounds as north,south,east,west")
	grid := flag.Float64("grid", 0.1, "heatmap grid step in degrees")
	riskType := flag.String("risk-type", "overall", "heatmap risk type")
	out := flag.String("out", "", "output path for the JSON result")
	at := flag.String("at", "2026-01-01T00:00:00Z", "fixed assessment time (RFC3339)")
	flag.Parse()

	if *out == "" || (*csvPath == "") == (*bounds == "") {
		flag.Usage()
		return fmt.Errorf("required: -out and exactly one of -csv or -bounds")
	}

	now, err := time.Parse(time.RFC3339, *at)
	if err != nil {
		return fmt.Errorf("parse -at: %w", err)
	}
	// Set a fixed clock for reproducible createdAt/validUntil timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(now))
	defer domain.SetClock(nil)

	orchestrator, err := newOrchestrator()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if *csvPath != "" {
		props, err := readProperties(*csvPath)
		if err != nil {
			return fmt.Errorf("reading %s: %w", *csvPath, err)
		}
		assessments := make([]domain.RiskAssessment, 0, len(props))
		for _, p := range props {
			a, _, err := orchestrator.Assess(ctx, fusion.AssessRequest{Property: p, Type: domain.AssessmentScheduled})
			if err != nil {
				return fmt.Errorf("assess %s: %w", p.ID, err)
			}
			assessments = append(assessments, a)
		}
		if err := writeJSON(*out, assessments); err != nil {
			return fmt.Errorf("writing assessments: %w", err)
		}
		log.Printf("wrote %d assessments: %s", len(assessments), *out)
		printLevels(assessments)
		return nil
	}

	b, err := parseBounds(*bounds)
	if err != nil {
		return err
	}
	sampler := heatmap.NewSampler(orchestrator, heatmap.Options{MaxPoints: 10000, Concurrency: 8, RatePerSecond: 10000},
		observability.NewMetricsForTesting(), discardLogger())
	points, err := sampler.Sample(ctx, heatmap.Request{Bounds: b, RiskType: domain.RiskType(*riskType), GridSize: *grid})
	if err != nil {
		return fmt.Errorf("sample heatmap: %w", err)
	}
	if err := writeJSON(*out, points); err != nil {
		return fmt.Errorf("writing heatmap: %w", err)
	}
	log.Printf("wrote %d heatmap points: %s", len(points), *out)
	return nil
}

func newOrchestrator() (*fusion.Orchestrator, error) {
	clock := domain.Clock()
	policy := domain.DefaultFallbackPolicy()
	aggregator, err := domain.NewRiskAggregator(domain.DefaultWeights(), policy)
	if err != nil {
		return nil, err
	}
	opts := fusion.DefaultOptions()
	return fusion.New(
		fusion.Sources{Satellite: fixture.Satellite{}, Weather: fixture.Weather{}, AI: offline.AI{}},
		fusion.NewMemoryStore(1, opts.ReuseWindow, clock),
		aggregator, policy, opts, clock,
		observability.NewMetricsForTesting(), discardLogger(),
	), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseBounds(s string) (heatmap.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return heatmap.Bounds{}, fmt.Errorf("-bounds: want north,south,east,west, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return heatmap.Bounds{}, fmt.Errorf("-bounds: %w", err)
		}
		v[i] = f
	}
	return heatmap.Bounds{North: v[0], South: v[1], East: v[2], West: v[3]}, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

type levelCount struct {
	level domain.Level
	count int
}

func printLevels(assessments []domain.RiskAssessment) {
	counts := map[domain.Level]int{}
	fallbacks := 0
	for i := range assessments {
		counts[assessments[i].Scores.Overall.Level]++
		if assessments[i].Scores.Overall.FallbackUsed {
			fallbacks++
		}
	}
	lc := make([]levelCount, 0, len(counts))
	for l, c := range counts {
		lc = append(lc, levelCount{l, c})
	}
	sort.Slice(lc, func(i, j int) bool { return lc[i].count > lc[j].count })

	fmt.Println("\n=== Overall risk levels ===")
	for _, c := range lc {
		fmt.Printf("%-10s %d\n", c.level, c.count)
	}
	fmt.Printf("Fallback used: %d\n", fallbacks)
}
