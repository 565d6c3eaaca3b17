package domain

import (
	"fmt"
	"time"
)

// Imagery references a captured image used as claim evidence.
type Imagery struct {
	ImageURL   string    `json:"imageUrl"`
	CapturedAt time.Time `json:"capturedAt,omitempty"`
	Source     string    `json:"source,omitempty"`
}

// SatelliteSnapshot is a point-in-time bundle of satellite-derived indices.
// It is produced fresh per assessment and never mutated.
type SatelliteSnapshot struct {
	NDVI        float64   `json:"ndvi"`
	NDWI        float64   `json:"ndwi"`
	NBR         float64   `json:"nbr"`
	Moisture    float64   `json:"moisture"`
	Temperature float64   `json:"temperature"`
	Source      string    `json:"source,omitempty"`
	CapturedAt  time.Time `json:"capturedAt"`
	CloudCover  float64   `json:"cloudCover"`
	Imagery     *Imagery  `json:"imagery,omitempty"`
}

// Validate checks that every index lies in its physical range.
func (s SatelliteSnapshot) Validate() error {
	for name, v := range map[string]float64{"ndvi": s.NDVI, "ndwi": s.NDWI, "nbr": s.NBR} {
		if v < -1 || v > 1 {
			return fmt.Errorf("%w: %s %g outside [-1,1]", ErrMalformedSnapshot, name, v)
		}
	}
	if s.Moisture < 0 || s.Moisture > 1 {
		return fmt.Errorf("%w: moisture %g outside [0,1]", ErrMalformedSnapshot, s.Moisture)
	}
	if s.CloudCover < 0 || s.CloudCover > 100 {
		return fmt.Errorf("%w: cloud cover %g outside [0,100]", ErrMalformedSnapshot, s.CloudCover)
	}
	if s.Temperature < -90 || s.Temperature > 70 {
		return fmt.Errorf("%w: temperature %g outside [-90,70]", ErrMalformedSnapshot, s.Temperature)
	}
	return nil
}

// WeatherCondition is the coarse current-conditions category.
type WeatherCondition string

const (
	ConditionClear   WeatherCondition = "clear"
	ConditionCloudy  WeatherCondition = "cloudy"
	ConditionRain    WeatherCondition = "rain"
	ConditionStorm   WeatherCondition = "storm"
	ConditionSnow    WeatherCondition = "snow"
	ConditionUnknown WeatherCondition = "unknown"
)

// Trend describes the long-run direction of the historical record.
type Trend string

const (
	TrendStable     Trend = "stable"
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
)

// CurrentConditions are the observed conditions at request time.
type CurrentConditions struct {
	TemperatureC float64          `json:"temperature"`
	Humidity     float64          `json:"humidity"`
	WindSpeed    float64          `json:"windSpeed"`
	Pressure     float64          `json:"pressure"`
	Condition    WeatherCondition `json:"condition"`
}

// ForecastSummary condenses the short-range forecast into probabilities.
type ForecastSummary struct {
	PrecipitationRisk float64 `json:"precipitationRisk"`
	StormProbability  float64 `json:"stormProbability"`
}

// HistoricalSummary condenses the climatological record.
type HistoricalSummary struct {
	AvgPrecipitationMM float64  `json:"avgPrecipitation"`
	ExtremeEvents      []string `json:"extremeEvents,omitempty"`
	Trend              Trend    `json:"trend,omitempty"`
}

// WeatherSnapshot bundles current, forecast and historical weather.
type WeatherSnapshot struct {
	Current    CurrentConditions `json:"current"`
	Forecast   ForecastSummary   `json:"forecast"`
	Historical HistoricalSummary `json:"historical"`
}

// Validate checks humidity and probability ranges.
func (w WeatherSnapshot) Validate() error {
	if w.Current.Humidity < 0 || w.Current.Humidity > 100 {
		return fmt.Errorf("%w: humidity %g outside [0,100]", ErrMalformedSnapshot, w.Current.Humidity)
	}
	if w.Forecast.PrecipitationRisk < 0 || w.Forecast.PrecipitationRisk > 1 {
		return fmt.Errorf("%w: precipitation risk %g outside [0,1]", ErrMalformedSnapshot, w.Forecast.PrecipitationRisk)
	}
	if w.Forecast.StormProbability < 0 || w.Forecast.StormProbability > 1 {
		return fmt.Errorf("%w: storm probability %g outside [0,1]", ErrMalformedSnapshot, w.Forecast.StormProbability)
	}
	if w.Historical.AvgPrecipitationMM < 0 {
		return fmt.Errorf("%w: negative average precipitation", ErrMalformedSnapshot)
	}
	return nil
}

// Signal names an upstream input whose absence triggers the fallback policy.
type Signal string

const (
	SignalSatellite Signal = "satellite"
	SignalWeather   Signal = "weather"
	SignalAI        Signal = "ai"
)

// SourceStatus records which upstream inputs were replaced by fallbacks
// while building a snapshot, and why.
type SourceStatus struct {
	SatelliteFallback bool              `json:"satelliteFallback"`
	WeatherFallback   bool              `json:"weatherFallback"`
	AIFallback        bool              `json:"aiFallback"`
	Failures          map[Signal]string `json:"failures,omitempty"`
}

// Missing reports whether the given signal fell back.
func (s SourceStatus) Missing(sig Signal) bool {
	switch sig {
	case SignalSatellite:
		return s.SatelliteFallback
	case SignalWeather:
		return s.WeatherFallback
	case SignalAI:
		return s.AIFallback
	}
	return false
}

// AnyFallback reports whether any upstream input fell back.
func (s SourceStatus) AnyFallback() bool {
	return s.SatelliteFallback || s.WeatherFallback || s.AIFallback
}

// Snapshot is the consistent bundle handed to the scorers. Nil members mean
// the corresponding upstream was unavailable.
type Snapshot struct {
	Satellite *SatelliteSnapshot
	Weather   *WeatherSnapshot
	AIRisk    *AIRiskResult
	Sources   SourceStatus
}
