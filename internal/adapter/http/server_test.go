package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	httpadapter "github.com/couchcryptid/peril-risk-service/internal/adapter/http"
	"github.com/couchcryptid/peril-risk-service/internal/claims"
	"github.com/couchcryptid/peril-risk-service/internal/domain"
	"github.com/couchcryptid/peril-risk-service/internal/fusion"
	"github.com/couchcryptid/peril-risk-service/internal/heatmap"
	"github.com/couchcryptid/peril-risk-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockAssessor struct {
	got    fusion.AssessRequest
	cached bool
	err    error
}

func (m *mockAssessor) Assess(_ context.Context, req fusion.AssessRequest) (domain.RiskAssessment, bool, error) {
	m.got = req
	if err := req.Property.Validate(); err != nil {
		return domain.RiskAssessment{}, false, err
	}
	if m.err != nil {
		return domain.RiskAssessment{}, false, m.err
	}
	return domain.RiskAssessment{ID: "a-1", PropertyID: req.Property.ID, Type: req.Type}, m.cached, nil
}

type mockAutomator struct {
	got       domain.Claim
	force     bool
	out       claims.Outcome
	err       error
	batchSize int
	limit     int
}

func (m *mockAutomator) Automate(_ context.Context, c domain.Claim, force bool) (claims.Outcome, error) {
	m.got, m.force = c, force
	if err := c.Validate(); err != nil {
		return claims.Outcome{}, err
	}
	return m.out, m.err
}

func (m *mockAutomator) AutomateBatch(_ context.Context, items []claims.BatchItem, limit int) []claims.BatchResult {
	m.batchSize, m.limit = len(items), limit
	out := make([]claims.BatchResult, len(items))
	for i, it := range items {
		out[i] = claims.BatchResult{ClaimID: it.Claim.ID, Success: it.Claim.ID != "bad"}
	}
	return out
}

type flatScorer struct{}

func (flatScorer) ScoreLocation(context.Context, domain.Coordinates) (domain.RiskScores, error) {
	return domain.RiskScores{Overall: domain.NewRiskScore(50, 80, nil, false)}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	srv       *httpadapter.Server
	assessor  *mockAssessor
	automator *mockAutomator
}

func newFixture(readyErr error) *fixture {
	f := &fixture{assessor: &mockAssessor{}, automator: &mockAutomator{}}
	sampler := heatmap.NewSampler(flatScorer{}, heatmap.Options{MaxPoints: 100, Concurrency: 2, RatePerSecond: 1000},
		observability.NewMetricsForTesting(), discardLogger())
	engine := httpadapter.EngineInfo{
		Sources: map[string]string{"satellite": "fixture", "weather": "fixture", "ai": "offline"},
		Weights: domain.DefaultWeights(),
	}
	api := httpadapter.NewAPI(f.assessor, f.automator, sampler, engine, 3, discardLogger())
	f.srv = httpadapter.NewServer(":0", api, &mockReadiness{err: readyErr}, discardLogger())
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealthzReturns200(t *testing.T) {
	rec := newFixture(nil).do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := newFixture(nil).do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := newFixture(fmt.Errorf("not ready yet")).do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newFixture(nil).do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAllReady(t *testing.T) {
	ok := &mockReadiness{}
	bad := &mockReadiness{err: errors.New("store down")}

	require.NoError(t, httpadapter.AllReady(ok, nil).CheckReadiness(context.Background()))

	err := httpadapter.AllReady(ok, bad).CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
}

func TestCreateAssessment(t *testing.T) {
	f := newFixture(nil)
	f.assessor.cached = true

	rec := f.do(http.MethodPost, "/api/v1/assessments",
		`{"property":{"id":"prop-1","coordinates":{"latitude":29.95,"longitude":-90.07}},"assessmentType":"scheduled","forceRefresh":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "hit", rec.Header().Get("X-Assessment-Cache"))

	var got domain.RiskAssessment
	decode(t, rec, &got)
	assert.Equal(t, "prop-1", got.PropertyID)
	assert.Equal(t, domain.AssessmentScheduled, f.assessor.got.Type)
	assert.True(t, f.assessor.got.ForceRefresh)
}

func TestCreateAssessment_ValidationError(t *testing.T) {
	rec := newFixture(nil).do(http.MethodPost, "/api/v1/assessments",
		`{"property":{"id":"prop-1","coordinates":{"latitude":91,"longitude":0}}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.Contains(t, body["error"], "coordinates out of range")
}

func TestCreateAssessment_MalformedBody(t *testing.T) {
	rec := newFixture(nil).do(http.MethodPost, "/api/v1/assessments", `{"property":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAssessment_UnexpectedErrorIsHidden(t *testing.T) {
	f := newFixture(nil)
	f.assessor.err = errors.New("redis: connection refused")

	rec := f.do(http.MethodPost, "/api/v1/assessments", `{"property":{"id":"p","coordinates":{"latitude":1,"longitude":1}}}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "redis")
}

func TestAutomateClaim_PropertyIDFromProperty(t *testing.T) {
	f := newFixture(nil)
	f.automator.out = claims.Outcome{
		Claim:      domain.Claim{ID: "clm-1", Status: domain.ClaimApproved},
		Automation: domain.AutomationResult{IsAutomated: true, Decision: domain.DecisionApproved},
	}

	rec := f.do(http.MethodPost, "/api/v1/claims/automate",
		`{"claim":{"claimId":"clm-1","claimAmount":1000},"property":{"id":"prop-9"},"forceProcess":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "prop-9", f.automator.got.PropertyID)
	assert.True(t, f.automator.force)

	var out claims.Outcome
	decode(t, rec, &out)
	assert.Equal(t, domain.DecisionApproved, out.Automation.Decision)
}

func TestAutomateClaim_MissingPropertyID(t *testing.T) {
	f := newFixture(nil)
	rec := f.do(http.MethodPost, "/api/v1/claims/automate", `{"claim":{"claimId":"clm-1","claimAmount":1000}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "property id is required")
}

func TestAutomateClaim_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.ErrMissingClaimID, http.StatusBadRequest},
		{"already automated", domain.ErrAlreadyAutomated, http.StatusConflict},
		{"invalid transition", fmt.Errorf("%w: paid -> approved", domain.ErrInvalidTransition), http.StatusConflict},
		{"canceled", context.Canceled, http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil)
			f.automator.err = tt.err
			rec := f.do(http.MethodPost, "/api/v1/claims/automate", `{"claim":{"claimId":"c","propertyId":"p"}}`)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAutomateClaim_PolicyViolation(t *testing.T) {
	f := newFixture(nil)
	f.automator.err = &domain.PolicyViolationError{ClaimID: "c", Unmet: []string{"claim amount exceeds 50000"}}

	rec := f.do(http.MethodPost, "/api/v1/claims/automate", `{"claim":{"claimId":"c","propertyId":"p"},"forceProcess":true}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body struct {
		Error           string   `json:"error"`
		UnmetConditions []string `json:"unmetConditions"`
	}
	decode(t, rec, &body)
	assert.Equal(t, []string{"claim amount exceeds 50000"}, body.UnmetConditions)
	assert.Contains(t, body.Error, "not eligible")
}

func TestAutomateBatch(t *testing.T) {
	f := newFixture(nil)
	rec := f.do(http.MethodPost, "/api/v1/claims/automate:batch",
		`{"claims":[{"claim":{"claimId":"a"}},{"claim":{"claimId":"bad"}},{"claim":{"claimId":"c"},"forceProcess":true}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Results   []claims.BatchResult `json:"results"`
		Succeeded int                  `json:"succeeded"`
		Failed    int                  `json:"failed"`
	}
	decode(t, rec, &body)
	assert.Len(t, body.Results, 3)
	assert.Equal(t, 2, body.Succeeded)
	assert.Equal(t, 1, body.Failed)
	assert.Equal(t, 3, f.automator.limit)
}

func TestAutomateBatch_Empty(t *testing.T) {
	rec := newFixture(nil).do(http.MethodPost, "/api/v1/claims/automate:batch", `{"claims":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHeatmap(t *testing.T) {
	rec := newFixture(nil).do(http.MethodGet, "/api/v1/heatmap?north=1&south=0&east=1&west=0&gridSize=0.5", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var points []heatmap.Point
	decode(t, rec, &points)
	require.Len(t, points, 9)
	for _, p := range points {
		assert.InDelta(t, 0.5, p.Intensity, 1e-9)
		assert.Equal(t, domain.LevelMedium, p.Level)
	}
}

func TestHeatmap_BadQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing west", "north=1&south=0&east=1"},
		{"not a number", "north=x&south=0&east=1&west=0"},
		{"NaN bound", "north=NaN&south=0&east=1&west=0"},
		{"infinite bound", "north=1&south=0&east=Inf&west=0"},
		{"inverted bounds", "north=0&south=1&east=1&west=0"},
		{"unknown risk type", "north=1&south=0&east=1&west=0&riskType=tornado"},
		{"grid too large", "north=10&south=0&east=10&west=0&gridSize=0.01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newFixture(nil).do(http.MethodGet, "/api/v1/heatmap?"+tt.query, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestEngineInfo(t *testing.T) {
	rec := newFixture(nil).do(http.MethodGet, "/api/v1/engine", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var info struct {
		Sources    map[string]string  `json:"sources"`
		Weights    domain.Weights     `json:"weights"`
		Thresholds map[string]float64 `json:"thresholds"`
	}
	decode(t, rec, &info)
	assert.Equal(t, "offline", info.Sources["ai"])
	assert.Equal(t, domain.DefaultWeights(), info.Weights)
	assert.InDelta(t, 85, info.Thresholds["eligibilityConfidence"], 0)
}
