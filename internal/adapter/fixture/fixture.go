// Package fixture provides deterministic snapshot sources for demos, the
// batch scorer and tests. Values are derived from a hash of the coordinates
// rounded to four decimals, so the same location always yields the same
// snapshot.
package fixture

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"time"

	"github.com/couchcryptid/peril-risk-service/internal/domain"
)

const sourceName = "fixture"

// Satellite is a deterministic satellite source.
type Satellite struct{}

// PropertySnapshot derives indices from coords. The capture time is date.
func (Satellite) PropertySnapshot(ctx context.Context, coords domain.Coordinates, date time.Time) (domain.SatelliteSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.SatelliteSnapshot{}, err
	}
	r := newStream(coords, 's')
	return domain.SatelliteSnapshot{
		NDVI:        r.between(-0.2, 0.9),
		NDWI:        r.between(-0.5, 0.5),
		NBR:         r.between(-0.3, 0.8),
		Moisture:    r.between(0.05, 0.95),
		Temperature: r.between(5, 45),
		CloudCover:  r.between(0, 60),
		Source:      sourceName,
		CapturedAt:  date,
	}, nil
}

// Weather is a deterministic weather source.
type Weather struct{}

var (
	conditions = []domain.WeatherCondition{domain.ConditionClear, domain.ConditionCloudy, domain.ConditionRain, domain.ConditionStorm}
	trends     = []domain.Trend{domain.TrendStable, domain.TrendIncreasing, domain.TrendDecreasing}
)

// WeatherRisk derives current, forecast and historical weather from coords.
func (Weather) WeatherRisk(ctx context.Context, coords domain.Coordinates) (domain.WeatherSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.WeatherSnapshot{}, err
	}
	r := newStream(coords, 'w')
	wx := domain.WeatherSnapshot{
		Current: domain.CurrentConditions{
			TemperatureC: r.between(0, 42),
			Humidity:     r.between(10, 95),
			WindSpeed:    r.between(0, 40),
			Pressure:     r.between(990, 1030),
			Condition:    conditions[r.index(len(conditions))],
		},
		Forecast: domain.ForecastSummary{
			PrecipitationRisk: r.between(0, 1),
			StormProbability:  r.between(0, 1),
		},
		Historical: domain.HistoricalSummary{
			AvgPrecipitationMM: r.between(20, 180),
			Trend:              trends[r.index(len(trends))],
		},
	}
	if wx.Forecast.StormProbability > 0.7 {
		wx.Historical.ExtremeEvents = []string{"tropical_storm"}
	}
	return wx, nil
}

// stream is a splitmix64 sequence seeded from the coordinates.
type stream struct{ state uint64 }

func newStream(c domain.Coordinates, salt byte) *stream {
	h := fnv.New64a()
	var buf [17]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(int64(math.Round(c.Lat*1e4))))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(int64(math.Round(c.Lng*1e4))))
	buf[16] = salt
	_, _ = h.Write(buf[:])
	return &stream{state: h.Sum64()}
}

func (s *stream) next() uint64 {
	s.state += 0x9e3779b97f4a7c15
	z := s.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// between returns a value in [lo,hi) rounded to three decimals.
func (s *stream) between(lo, hi float64) float64 {
	u := float64(s.next()>>11) / (1 << 53)
	return math.Round((lo+u*(hi-lo))*1000) / 1000
}

func (s *stream) index(n int) int {
	return int(s.next() % uint64(n))
}
