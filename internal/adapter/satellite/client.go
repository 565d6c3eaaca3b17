// Package satellite is the HTTP client for the satellite index service.
package satellite

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

// Client implements domain.SatelliteSource over HTTP.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a satellite index client.
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

// PropertySnapshot fetches the indices observed at coords closest to date.
func (c *Client) PropertySnapshot(ctx context.Context, coords domain.Coordinates, date time.Time) (domain.SatelliteSnapshot, error) {
	params := url.Values{
		"lat":  {strconv.FormatFloat(coords.Lat, 'f', 6, 64)},
		"lon":  {strconv.FormatFloat(coords.Lng, 'f', 6, 64)},
		"date": {date.UTC().Format(time.DateOnly)},
	}
	fullURL := c.baseURL + "/api/v1/satellite/snapshot?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.SatelliteSnapshot{}, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.SatelliteSnapshot{}, fmt.Errorf("satellite request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.SatelliteSnapshot{}, fmt.Errorf("satellite API error: status %d: %s", resp.StatusCode, body)
	}

	var snap domain.SatelliteSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return domain.SatelliteSnapshot{}, fmt.Errorf("decode response: %w", err)
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = date
	}
	c.logger.Debug("satellite snapshot fetched", "coords", coords.String(), "source", snap.Source)
	return snap, nil
}
