package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/peril-risk-service/internal/domain"
)

// Required columns; the risk factor columns are optional and blank cells
// leave the attribute unknown.
var requiredColumns = []string{"id", "latitude", "longitude"}

func readProperties(path string) ([]domain.Property, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	return parseProperties(f)
}

func parseProperties(r io.Reader) ([]domain.Property, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("no data rows")
	}

	colIdx := map[string]int{}
	for i, h := range rows[0] {
		colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := colIdx[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	props := make([]domain.Property, 0, len(rows)-1)
	for n, row := range rows[1:] {
		line := n + 2
		lat, err := strconv.ParseFloat(get(row, colIdx, "latitude"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: latitude: %w", line, err)
		}
		lng, err := strconv.ParseFloat(get(row, colIdx, "longitude"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: longitude: %w", line, err)
		}

		p := domain.Property{
			ID:       get(row, colIdx, "id"),
			Location: domain.Coordinates{Lat: lat, Lng: lng},
			Factors: domain.PropertyRiskFactors{
				FloodZone:      strings.ToUpper(get(row, colIdx, "flood_zone")),
				HurricaneZone:  parseBool(get(row, colIdx, "hurricane_zone")),
				EarthquakeZone: parseBool(get(row, colIdx, "earthquake_zone")),
				WildfireRisk:   domain.ParseWildfireRisk(get(row, colIdx, "wildfire_risk")),
			},
		}
		if p.Factors.DistanceToWaterM, err = optionalFloat(get(row, colIdx, "distance_to_water_m")); err != nil {
			return nil, fmt.Errorf("line %d: distance_to_water_m: %w", line, err)
		}
		if p.Factors.ElevationM, err = optionalFloat(get(row, colIdx, "elevation_m")); err != nil {
			return nil, fmt.Errorf("line %d: elevation_m: %w", line, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		props = append(props, p)
	}
	return props, nil
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func optionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
