package domain

import (
	"fmt"
	"strings"
)

// Coordinates is a WGS-84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Validate rejects coordinates outside the WGS-84 range. NaN fails both
// comparisons and is rejected with them.
func (c Coordinates) Validate() error {
	if !(c.Lat >= -90 && c.Lat <= 90) || !(c.Lng >= -180 && c.Lng <= 180) {
		return fmt.Errorf("%w: got (%g, %g)", ErrInvalidCoordinates, c.Lat, c.Lng)
	}
	return nil
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// WildfireRisk is the qualitative static wildfire rating of a property.
type WildfireRisk string

const (
	WildfireLow      WildfireRisk = "low"
	WildfireModerate WildfireRisk = "moderate"
	WildfireHigh     WildfireRisk = "high"
	WildfireExtreme  WildfireRisk = "extreme"
)

// ParseWildfireRisk normalizes a rating; unknown values map to "".
func ParseWildfireRisk(s string) WildfireRisk {
	switch r := WildfireRisk(strings.ToLower(strings.TrimSpace(s))); r {
	case WildfireLow, WildfireModerate, WildfireHigh, WildfireExtreme:
		return r
	default:
		return ""
	}
}

// PropertyRiskFactors holds the optional static attributes of a property.
// Nil pointers mean the attribute is unknown, which is distinct from zero.
type PropertyRiskFactors struct {
	FloodZone        string       `json:"floodZone,omitempty"`
	HurricaneZone    bool         `json:"hurricaneZone,omitempty"`
	EarthquakeZone   bool         `json:"earthquakeZone,omitempty"`
	WildfireRisk     WildfireRisk `json:"wildfireRisk,omitempty"`
	DistanceToWaterM *float64     `json:"distanceToWater,omitempty"`
	ElevationM       *float64     `json:"elevation,omitempty"`
}

// Property is the unit of risk assessment.
type Property struct {
	ID       string              `json:"id"`
	Location Coordinates         `json:"coordinates"`
	Factors  PropertyRiskFactors `json:"riskFactors"`
}

// Validate checks the fields required before any pipeline work.
func (p Property) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrMissingPropertyID
	}
	return p.Location.Validate()
}

// Float returns a pointer to v, for populating optional attributes.
func Float(v float64) *float64 {
	return &v
}
