package domain

import (
	"context"
	"time"
)

// SatelliteSource returns satellite-derived indices for a location.
type SatelliteSource interface {
	// PropertySnapshot returns the indices observed at coords closest to date.
	PropertySnapshot(ctx context.Context, coords Coordinates, date time.Time) (SatelliteSnapshot, error)
}

// WeatherSource returns current, forecast and historical weather.
type WeatherSource interface {
	WeatherRisk(ctx context.Context, coords Coordinates) (WeatherSnapshot, error)
}

// RiskAnalyzer gives the AI engine's overall risk opinion for a property.
type RiskAnalyzer interface {
	AnalyzeRisk(ctx context.Context, p Property) (AIRiskResult, error)
}

// DamageAnalyzer compares pre- and post-incident imagery.
type DamageAnalyzer interface {
	AnalyzeDamage(ctx context.Context, pre, post Imagery) (DamageAnalysisResult, error)
}

// FraudDetector estimates the fraud probability of a claim.
type FraudDetector interface {
	DetectFraud(ctx context.Context, c Claim) (FraudAnalysisResult, error)
}
