// Package weather is the HTTP client for the weather risk service.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/peril-risk-service/internal/domain"
)

// Client implements domain.WeatherSource over HTTP.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a weather risk client.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// WeatherRisk fetches current, forecast and historical weather for coords.
func (c *Client) WeatherRisk(ctx context.Context, coords domain.Coordinates) (domain.WeatherSnapshot, error) {
	params := url.Values{
		"lat": {strconv.FormatFloat(coords.Lat, 'f', 6, 64)},
		"lon": {strconv.FormatFloat(coords.Lng, 'f', 6, 64)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/weather/risk?"+params.Encode(), nil)
	if err != nil {
		return domain.WeatherSnapshot{}, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WeatherSnapshot{}, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.WeatherSnapshot{}, fmt.Errorf("weather API error: status %d: %s", resp.StatusCode, body)
	}

	var wx domain.WeatherSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&wx); err != nil {
		return domain.WeatherSnapshot{}, fmt.Errorf("decode response: %w", err)
	}
	if wx.Current.Condition == "" {
		wx.Current.Condition = domain.ConditionUnknown
	}
	return wx, nil
}
