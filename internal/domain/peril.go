package domain

import (
	"fmt"
	"strings"
)

// PerilScorer computes additive, condition-triggered peril scores. Each
// triggered condition adds its points and one factor string. Snapshot inputs
// that are nil skip their increments and lower the confidence instead.
type PerilScorer struct {
	Policy FallbackPolicy
}

// NewPerilScorer returns a scorer using the default fallback policy.
func NewPerilScorer() PerilScorer {
	return PerilScorer{Policy: DefaultFallbackPolicy()}
}

// ScoreAll scores every peril from the same inputs.
func (s PerilScorer) ScoreAll(f PropertyRiskFactors, sat *SatelliteSnapshot, wx *WeatherSnapshot) map[Peril]RiskScore {
	return map[Peril]RiskScore{
		PerilFlood:      s.Flood(f, sat, wx),
		PerilWildfire:   s.Wildfire(f, sat, wx),
		PerilHurricane:  s.Hurricane(f, sat, wx),
		PerilEarthquake: s.Earthquake(f, sat, wx),
	}
}

// Flood scores flood zone, elevation, water proximity and historical rainfall.
func (s PerilScorer) Flood(f PropertyRiskFactors, _ *SatelliteSnapshot, wx *WeatherSnapshot) RiskScore {
	var t tally
	unknown := 0

	switch zone := strings.ToUpper(strings.TrimSpace(f.FloodZone)); zone {
	case "":
		unknown++
	case "AE", "V", "VE":
		t.add(40, fmt.Sprintf("Located in high-risk flood zone %s", zone))
	case "A":
		t.add(35, "Located in flood zone A")
	case "X":
		t.add(10, "Located in moderate-to-low flood zone X")
	}

	if f.ElevationM == nil {
		unknown++
	} else if *f.ElevationM < 10 {
		t.add(20, fmt.Sprintf("Low elevation (%.0fm)", *f.ElevationM))
	}

	if f.DistanceToWaterM == nil {
		unknown++
	} else if *f.DistanceToWaterM < 1000 {
		t.add(15, fmt.Sprintf("Close to water body (%.0fm)", *f.DistanceToWaterM))
	}

	var missing []Signal
	if wx == nil {
		missing = append(missing, SignalWeather)
	} else if wx.Historical.AvgPrecipitationMM > 100 {
		t.add(10, fmt.Sprintf("High historical precipitation (%.0fmm average)", wx.Historical.AvgPrecipitationMM))
	}

	return t.result(s.Policy, missing, unknown)
}

// Wildfire scores vegetation density, soil moisture, heat with low humidity
// and the static wildfire rating.
func (s PerilScorer) Wildfire(f PropertyRiskFactors, sat *SatelliteSnapshot, wx *WeatherSnapshot) RiskScore {
	var t tally
	var missing []Signal
	unknown := 0

	if sat == nil {
		missing = append(missing, SignalSatellite)
	} else {
		if sat.NDVI > 0.6 {
			t.add(20, fmt.Sprintf("Dense vegetation (NDVI %.2f)", sat.NDVI))
		}
		if sat.Moisture < 0.3 {
			t.add(25, fmt.Sprintf("Low soil moisture (%.2f)", sat.Moisture))
		}
	}

	if wx == nil {
		missing = append(missing, SignalWeather)
	} else if wx.Current.TemperatureC > 30 && wx.Current.Humidity < 30 {
		t.add(15, fmt.Sprintf("Hot and dry conditions (%.0f°C, %.0f%% humidity)", wx.Current.TemperatureC, wx.Current.Humidity))
	}

	switch f.WildfireRisk {
	case "":
		unknown++
	case WildfireExtreme:
		t.add(40, "Extreme static wildfire risk")
	case WildfireHigh:
		t.add(30, "High static wildfire risk")
	case WildfireModerate:
		t.add(10, "Moderate static wildfire risk")
	}

	return t.result(s.Policy, missing, unknown)
}

// Hurricane scores the hurricane zone flag, coastal proximity and the storm
// forecast.
func (s PerilScorer) Hurricane(f PropertyRiskFactors, _ *SatelliteSnapshot, wx *WeatherSnapshot) RiskScore {
	var t tally
	var missing []Signal
	unknown := 0

	if f.HurricaneZone {
		t.add(40, "Located in hurricane zone")
	}
	if f.DistanceToWaterM == nil {
		unknown++
	} else if *f.DistanceToWaterM < 5000 {
		t.add(20, fmt.Sprintf("Near coastline or large water body (%.0fm)", *f.DistanceToWaterM))
	}
	if wx == nil {
		missing = append(missing, SignalWeather)
	} else if wx.Forecast.StormProbability > 0.5 {
		t.add(15, fmt.Sprintf("Elevated storm probability (%.0f%%)", wx.Forecast.StormProbability*100))
	}

	return t.result(s.Policy, missing, unknown)
}

// Earthquake depends only on the static zone flag.
func (s PerilScorer) Earthquake(f PropertyRiskFactors, _ *SatelliteSnapshot, _ *WeatherSnapshot) RiskScore {
	var t tally
	if f.EarthquakeZone {
		t.add(30, "Located in seismic zone")
	}
	return t.result(s.Policy, nil, 0)
}

type tally struct {
	points  int
	factors []string
}

func (t *tally) add(points int, factor string) {
	t.points += points
	t.factors = append(t.factors, factor)
}

func (t *tally) result(p FallbackPolicy, missing []Signal, unknown int) RiskScore {
	return NewRiskScore(t.points, p.Confidence(missing, unknown), t.factors, len(missing) > 0)
}
