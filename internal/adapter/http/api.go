package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/couchcryptid/peril-risk-service/internal/claims"
	"github.com/couchcryptid/peril-risk-service/internal/domain"
	"github.com/couchcryptid/peril-risk-service/internal/fusion"
	"github.com/couchcryptid/peril-risk-service/internal/heatmap"
	"github.com/go-chi/chi/v5"
)

const (
	maxBodyBytes    = 1 << 20
	maxBatchClaims  = 100
	defaultGridSize = 0.1
)

// Assessor produces property risk assessments.
type Assessor interface {
	Assess(ctx context.Context, req fusion.AssessRequest) (domain.RiskAssessment, bool, error)
}

// ClaimAutomator decides claims one at a time or in batches.
type ClaimAutomator interface {
	Automate(ctx context.Context, c domain.Claim, forceProcess bool) (claims.Outcome, error)
	AutomateBatch(ctx context.Context, items []claims.BatchItem, limit int) []claims.BatchResult
}

// HeatmapSampler samples risk over a bounding box.
type HeatmapSampler interface {
	Sample(ctx context.Context, req heatmap.Request) ([]heatmap.Point, error)
}

// EngineInfo describes the wired collaborators and scoring parameters.
type EngineInfo struct {
	Sources    map[string]string `json:"sources"`
	Weights    domain.Weights    `json:"weights"`
	Thresholds map[string]any    `json:"thresholds"`
}

// API serves the /api/v1 routes.
type API struct {
	assessor   Assessor
	automator  ClaimAutomator
	sampler    HeatmapSampler
	engine     EngineInfo
	batchLimit int
	logger     *slog.Logger
}

// NewAPI creates the REST handlers. batchLimit caps claims in flight per
// batch request.
func NewAPI(assessor Assessor, automator ClaimAutomator, sampler HeatmapSampler, engine EngineInfo, batchLimit int, logger *slog.Logger) *API {
	if engine.Thresholds == nil {
		engine.Thresholds = map[string]any{
			"eligibilityConfidence": domain.EligibilityConfidence,
			"triggerConfidence":     domain.TriggerConfidence,
			"approvalConfidence":    domain.ApprovalConfidence,
			"maxAutomatedAmount":    domain.MaxAutomatedAmount,
		}
	}
	return &API{
		assessor:   assessor,
		automator:  automator,
		sampler:    sampler,
		engine:     engine,
		batchLimit: batchLimit,
		logger:     logger,
	}
}

// Routes returns the API router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/assessments", a.createAssessment)
	r.Route("/claims", func(r chi.Router) {
		r.Post("/automate", a.automateClaim)
		r.Post("/automate:batch", a.automateBatch)
	})
	r.Get("/heatmap", a.getHeatmap)
	r.Get("/engine", a.getEngine)
	return r
}

type assessmentRequest struct {
	Property       domain.Property       `json:"property"`
	AssessmentType domain.AssessmentType `json:"assessmentType"`
	ForceRefresh   bool                  `json:"forceRefresh"`
}

func (a *API) createAssessment(w http.ResponseWriter, r *http.Request) {
	var req assessmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	assessment, cached, err := a.assessor.Assess(r.Context(), fusion.AssessRequest{
		Property:     req.Property,
		Type:         req.AssessmentType,
		ForceRefresh: req.ForceRefresh,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if cached {
		w.Header().Set("X-Assessment-Cache", "hit")
	} else {
		w.Header().Set("X-Assessment-Cache", "miss")
	}
	writeJSON(w, http.StatusOK, assessment)
}

type automateRequest struct {
	Claim        domain.Claim     `json:"claim"`
	Property     *domain.Property `json:"property,omitempty"`
	ForceProcess bool             `json:"forceProcess"`
}

func (a *API) automateClaim(w http.ResponseWriter, r *http.Request) {
	var req automateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Claim.PropertyID == "" && req.Property != nil {
		req.Claim.PropertyID = req.Property.ID
	}
	out, err := a.automator.Automate(r.Context(), req.Claim, req.ForceProcess)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type batchRequest struct {
	Claims []claims.BatchItem `json:"claims"`
}

type batchResponse struct {
	Results   []claims.BatchResult `json:"results"`
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
}

func (a *API) automateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Claims) == 0 {
		writeError(w, http.StatusBadRequest, "claims must not be empty")
		return
	}
	if len(req.Claims) > maxBatchClaims {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d claims per batch", maxBatchClaims))
		return
	}

	resp := batchResponse{Results: a.automator.AutomateBatch(r.Context(), req.Claims, a.batchLimit)}
	for _, res := range resp.Results {
		if res.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) getHeatmap(w http.ResponseWriter, r *http.Request) {
	req, err := parseHeatmapQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	points, err := a.sampler.Sample(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func parseHeatmapQuery(q url.Values) (heatmap.Request, error) {
	req := heatmap.Request{
		RiskType: domain.RiskType(q.Get("riskType")),
		GridSize: defaultGridSize,
	}
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"north", &req.Bounds.North},
		{"south", &req.Bounds.South},
		{"east", &req.Bounds.East},
		{"west", &req.Bounds.West},
	} {
		raw := q.Get(f.name)
		if raw == "" {
			return heatmap.Request{}, fmt.Errorf("query parameter %q is required", f.name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return heatmap.Request{}, fmt.Errorf("query parameter %q: %w", f.name, err)
		}
		*f.dst = v
	}
	if raw := q.Get("gridSize"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return heatmap.Request{}, fmt.Errorf("query parameter %q: %w", "gridSize", err)
		}
		req.GridSize = v
	}
	return req, nil
}

func (a *API) getEngine(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.engine)
}

type policyViolationBody struct {
	Error           string   `json:"error"`
	UnmetConditions []string `json:"unmetConditions"`
}

// writeError maps domain errors onto status codes. Unexpected errors are
// logged and hidden from the caller.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var pv *domain.PolicyViolationError
	switch {
	case errors.As(err, &pv):
		writeJSON(w, http.StatusUnprocessableEntity, policyViolationBody{Error: pv.Error(), UnmetConditions: pv.Unmet})
	case domain.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAlreadyAutomated), errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		a.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // response already committed
}
