// Package domain models property peril risk and insurance claim automation.
//
// # Inputs
//
// A property is described by its coordinates and a set of optional static
// risk attributes (flood zone, hurricane and earthquake zone flags, a
// qualitative wildfire rating, distance to water and elevation). Dynamic
// signals arrive as snapshots from three upstream collaborators:
//
//	Satellite: NDVI, NDWI, NBR, soil moisture, land surface temperature.
//	Weather:   current conditions, a forecast summary and a historical summary.
//	AI engine: an overall risk opinion, damage estimation from imagery, and
//	           fraud probability for a claim.
//
// Any of the three may be missing. Missing inputs never change a score; they
// lower its confidence instead (see [FallbackPolicy]).
//
// # Peril scoring
//
// Each peril accumulates integer points from independent triggers and is then
// clamped to [0,100]. Overshoot is truncated, never rescaled:
//
//	Flood:      zone AE/V/VE +40 | zone A +35 | zone X +10 | elevation <10m +20
//	            water <1000m +15 | historical avg precipitation >100mm +10
//	Wildfire:   NDVI >0.6 +20 | moisture <0.3 +25 | temp >30C and humidity <30% +15
//	            static rating moderate +10 | high +30 | extreme +40
//	Hurricane:  hurricane zone +40 | water <5000m +20 | storm probability >0.5 +15
//	Earthquake: earthquake zone +30
//
// Levels are derived from the score only:
//
//	>=80 very_high | >=60 high | >=40 medium | >=20 low | else very_low
//
// The overall score is the weighted sum flood 0.30, wildfire 0.25,
// hurricane 0.25, earthquake 0.20.
//
// # Claim automation
//
// A claim is decided by three nested gates evaluated against a confidence
// score built from the damage and fraud signals:
//
//	Eligibility: pre and post imagery, confidence >=85, amount <=50,000
//	Trigger:     confidence >=80, fraud level not high, amount <=50,000
//	Approval:    automated, confidence >90, fraud level low
//
// Only a decision that passes all three carries an [AutoApproval], and only an
// AutoApproval can move a claim from submitted straight to approved.
package domain
