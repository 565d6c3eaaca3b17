// Package aiengine is the HTTP client for the AI engine: overall property
// risk, imagery damage analysis and claim fraud detection.
package aiengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/peril-risk-service/internal/domain"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	pathAnalyzeRisk   = "/api/ai/analyze-risk"
	pathAnalyzeDamage = "/api/ai/analyze-damage"
	pathDetectFraud   = "/api/ai/detect-fraud"
	maxBackoff        = 10 * time.Second
)

// Options configures retries and rate limiting.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// RatePerSecond caps requests across all operations.
	RatePerSecond float64
}

// Client implements domain.RiskAnalyzer, domain.DamageAnalyzer and
// domain.FraudDetector. Every operation is an idempotent analysis, so
// transport errors, 5xx and 429 responses are retried with doubling delay.
// Deadlines come from the caller's context.
type Client struct {
	baseURL    string
	httpClient *http.Client
	opts       Options
	limiter    *rate.Limiter
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewClient creates an AI engine client.
func NewClient(baseURL string, opts Options, clock clockwork.Clock, logger *slog.Logger) *Client {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), max(int(opts.RatePerSecond), 1)),
		clock:   clock,
		logger:  logger,
	}
}

// envelope is the engine's response wrapper.
type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

type imageRef struct {
	ImageURL string `json:"imageUrl"`
}

type damageRequest struct {
	Pre  imageRef `json:"preDisasterImagery"`
	Post imageRef `json:"postDisasterImagery"`
}

// AnalyzeRisk returns the engine's overall risk opinion for p.
func (c *Client) AnalyzeRisk(ctx context.Context, p domain.Property) (domain.AIRiskResult, error) {
	var out domain.AIRiskResult
	err := c.post(ctx, pathAnalyzeRisk, map[string]domain.Property{"property": p}, &out)
	return out, err
}

// AnalyzeDamage compares pre- and post-incident imagery. The engine's
// estimated loss is recomputed when it omits one.
func (c *Client) AnalyzeDamage(ctx context.Context, pre, post domain.Imagery) (domain.DamageAnalysisResult, error) {
	var out domain.DamageAnalysisResult
	body := damageRequest{Pre: imageRef{pre.ImageURL}, Post: imageRef{post.ImageURL}}
	if err := c.post(ctx, pathAnalyzeDamage, body, &out); err != nil {
		return domain.DamageAnalysisResult{}, err
	}
	if out.EstimatedLoss == 0 && out.DamagePercentage > 0 {
		out.EstimatedLoss = domain.EstimatedLoss(out.DamagePercentage)
	}
	return out, nil
}

// DetectFraud returns the fraud assessment of c. A missing risk level is
// derived from the probability.
func (c *Client) DetectFraud(ctx context.Context, claim domain.Claim) (domain.FraudAnalysisResult, error) {
	var out domain.FraudAnalysisResult
	if err := c.post(ctx, pathDetectFraud, map[string]domain.Claim{"claim": claim}, &out); err != nil {
		return domain.FraudAnalysisResult{}, err
	}
	if out.RiskLevel == "" {
		out.RiskLevel = domain.FraudLevelFor(out.FraudProbability)
	}
	if out.RiskFactors == nil {
		out.RiskFactors = []string{}
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := range c.opts.MaxAttempts {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt-1); err != nil {
				return fmt.Errorf("%s: %w (last error: %v)", path, err, lastErr)
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}

		env, retry, err := c.do(ctx, path, payload)
		if err == nil {
			if !env.Success {
				return fmt.Errorf("ai engine %s: %s", path, env.Error)
			}
			if err := json.Unmarshal(env.Data, out); err != nil {
				return fmt.Errorf("decode %s data: %w", path, err)
			}
			return nil
		}
		if !retry || ctx.Err() != nil {
			return err
		}
		lastErr = err
		c.logger.Warn("ai engine request failed, retrying",
			"path", path,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return fmt.Errorf("all %d attempts failed: %w", c.opts.MaxAttempts, lastErr)
}

// do performs one request. The bool reports whether the failure is retryable.
func (c *Client) do(ctx context.Context, path string, payload []byte) (envelope, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return envelope{}, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return envelope{}, !errors.Is(err, context.Canceled), fmt.Errorf("ai engine request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return envelope{}, true, fmt.Errorf("ai engine %s: status %d", path, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return envelope{}, false, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return envelope{}, false, fmt.Errorf("ai engine %s: status %d: %s", path, resp.StatusCode, env.Error)
	}
	return env, false, nil
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	d := min(c.opts.BaseDelay<<attempt, maxBackoff)
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(d):
		return nil
	}
}
