// Package offline provides collaborators for deployments without a live
// backend. Every call fails with domain.ErrSourceUnavailable, so callers fall
// back exactly as they would for an outage.
package offline

import (
	"context"
	"time"

	"github.com/couchcryptid/peril-risk-service/internal/domain"
)

// Satellite is an unavailable satellite source.
type Satellite struct{}

func (Satellite) PropertySnapshot(context.Context, domain.Coordinates, time.Time) (domain.SatelliteSnapshot, error) {
	return domain.SatelliteSnapshot{}, domain.ErrSourceUnavailable
}

// Weather is an unavailable weather source.
type Weather struct{}

func (Weather) WeatherRisk(context.Context, domain.Coordinates) (domain.WeatherSnapshot, error) {
	return domain.WeatherSnapshot{}, domain.ErrSourceUnavailable
}

// AI is an unavailable AI engine covering all three analyses.
type AI struct{}

func (AI) AnalyzeRisk(context.Context, domain.Property) (domain.AIRiskResult, error) {
	return domain.AIRiskResult{}, domain.ErrSourceUnavailable
}

func (AI) AnalyzeDamage(context.Context, domain.Imagery, domain.Imagery) (domain.DamageAnalysisResult, error) {
	return domain.DamageAnalysisResult{}, domain.ErrSourceUnavailable
}

func (AI) DetectFraud(context.Context, domain.Claim) (domain.FraudAnalysisResult, error) {
	return domain.FraudAnalysisResult{}, domain.ErrSourceUnavailable
}
