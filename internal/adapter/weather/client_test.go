package weather

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/peril-risk-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return NewClient(baseURL, "", 5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_WeatherRisk_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/weather/risk", r.URL.Path)
		assert.Equal(t, "34.052200", r.URL.Query().Get("lat"))
		assert.Empty(t, r.Header.Get("X-API-Key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"current": {"temperature": 35.2, "humidity": 18, "windSpeed": 22, "pressure": 1008, "condition": "clear"},
			"forecast": {"precipitationRisk": 0.05, "stormProbability": 0.1},
			"historical": {"avgPrecipitation": 38.5, "extremeEvents": ["heatwave"], "trend": "increasing"}
		}`))
	}))
	defer srv.Close()

	wx, err := testClient(srv.URL).WeatherRisk(context.Background(), domain.Coordinates{Lat: 34.0522, Lng: -118.2437})
	require.NoError(t, err)

	assert.InDelta(t, 35.2, wx.Current.TemperatureC, 1e-9)
	assert.InDelta(t, 18, wx.Current.Humidity, 1e-9)
	assert.Equal(t, domain.ConditionClear, wx.Current.Condition)
	assert.InDelta(t, 0.1, wx.Forecast.StormProbability, 1e-9)
	assert.Equal(t, []string{"heatwave"}, wx.Historical.ExtremeEvents)
	assert.Equal(t, domain.TrendIncreasing, wx.Historical.Trend)
}

func TestClient_WeatherRisk_MissingConditionIsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"current": {"humidity": 50}}`))
	}))
	defer srv.Close()

	wx, err := testClient(srv.URL).WeatherRisk(context.Background(), domain.Coordinates{})
	require.NoError(t, err)
	assert.Equal(t, domain.ConditionUnknown, wx.Current.Condition)
}

func TestClient_WeatherRisk_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).WeatherRisk(context.Background(), domain.Coordinates{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestClient_WeatherRisk_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := testClient(url).WeatherRisk(context.Background(), domain.Coordinates{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weather request")
}
