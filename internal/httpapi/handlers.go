package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/huangsam/subpulse/core/algo"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/logging"
	"github.com/huangsam/subpulse/schema"
)

// APIError is the error payload of a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIResponse wraps every API payload.
type APIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *APIError `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIResponse{Status: "success", Data: data}); err != nil {
		logging.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, code string, err error) {
	if status >= http.StatusInternalServerError {
		logging.Error().Err(err).Str("code", code).Msg("api error")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{Status: "error", Error: &APIError{Code: code, Message: err.Error()}})
}

// badRequest reports a parameter that could not be parsed.
func badRequest(w http.ResponseWriter, err error) {
	respondError(w, http.StatusBadRequest, "invalid_parameter", err)
}

// respondEngineError maps the error taxonomy onto status codes.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, contract.ErrDataValidation):
		respondError(w, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, contract.ErrInsufficientHistory):
		respondError(w, http.StatusUnprocessableEntity, "insufficient_history", err)
	case errors.Is(err, contract.ErrModelFit):
		respondError(w, http.StatusUnprocessableEntity, "model_fit", err)
	default:
		respondError(w, http.StatusInternalServerError, "internal", err)
	}
}

// intParam reads an optional integer query parameter.
func intParam(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Newf("invalid %s %q", name, s)
	}
	return v, nil
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric, err := s.cfg.QueryMetric(q.Get("metric"))
	if err != nil {
		badRequest(w, err)
		return
	}
	g, err := s.cfg.QueryGranularity(q.Get("granularity"))
	if err != nil {
		badRequest(w, err)
		return
	}
	rng, err := s.cfg.QueryRange(q.Get("start"), q.Get("end"), time.Now())
	if err != nil {
		badRequest(w, err)
		return
	}

	series, err := s.eng.GetMetricSeries(r.Context(), metric, q.Get("dimension_key"), rng, g)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, series)
}

func (s *Server) handleRetention(w http.ResponseWriter, r *http.Request) {
	g, err := s.cfg.QueryGranularity(r.URL.Query().Get("granularity"))
	if err != nil {
		badRequest(w, err)
		return
	}
	curves, err := s.eng.GetRetentionCurves(r.Context(), g)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, curves)
}

func (s *Server) handleRetentionCurve(w http.ResponseWriter, r *http.Request) {
	g, err := s.cfg.QueryGranularity(r.URL.Query().Get("granularity"))
	if err != nil {
		badRequest(w, err)
		return
	}
	cohortKey, err := schema.ParsePeriod(chi.URLParam(r, "cohort"), g)
	if err != nil {
		badRequest(w, err)
		return
	}
	curve, err := s.eng.GetRetentionCurve(r.Context(), cohortKey, g)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, curve)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric, err := s.cfg.QueryMetric(q.Get("metric"))
	if err != nil {
		badRequest(w, err)
		return
	}
	h, err := intParam(r, "horizon")
	if err != nil {
		badRequest(w, err)
		return
	}
	horizon, err := s.cfg.QueryHorizon(h)
	if err != nil {
		badRequest(w, err)
		return
	}

	result, err := s.eng.GetForecast(r.Context(), metric, q.Get("dimension_key"), horizon, s.cfg.Model)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRevenue(w http.ResponseWriter, r *http.Request) {
	h, err := intParam(r, "horizon")
	if err != nil {
		badRequest(w, err)
		return
	}
	horizon, err := s.cfg.QueryHorizon(h)
	if err != nil {
		badRequest(w, err)
		return
	}
	breakdown, err := s.eng.ForecastRevenueByType(r.Context(), horizon, s.cfg.Model)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, breakdown)
}

func (s *Server) handleGrowth(w http.ResponseWriter, r *http.Request) {
	h, err := intParam(r, "horizon")
	if err != nil {
		badRequest(w, err)
		return
	}
	horizon, err := s.cfg.QueryHorizon(h)
	if err != nil {
		badRequest(w, err)
		return
	}
	summary, err := s.eng.ForecastGrowth(r.Context(), horizon, s.cfg.Model)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleChurn(w http.ResponseWriter, r *http.Request) {
	asOf := s.cfg.EndTime
	if v := r.URL.Query().Get("as_of"); v != "" {
		t, err := contract.ParseTimeInput(v, time.Now())
		if err != nil {
			badRequest(w, err)
			return
		}
		asOf = t
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		badRequest(w, err)
		return
	}
	if limit <= 0 {
		limit = s.cfg.ResultLimit
	}

	scores, err := s.eng.GetChurnScores(r.Context(), asOf)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, algo.RankChurnScores(scores, limit))
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := s.cfg.QueryRange(q.Get("start"), q.Get("end"), time.Now())
	if err != nil {
		badRequest(w, err)
		return
	}
	reports, err := s.eng.GetVolumeReport(r.Context(), schema.VolumeQuery{
		Range:     rng,
		EventType: schema.EventType(q.Get("event_type")),
		Value:     schema.VolumeValue(q.Get("value")),
		GroupBy:   schema.VolumeGrouping(q.Get("group_by")),
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

func (s *Server) handleDurations(w http.ResponseWriter, r *http.Request) {
	summary, err := s.eng.GetDurations(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleConversions(w http.ResponseWriter, r *http.Request) {
	summary, err := s.eng.GetConversions(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCacheStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.eng.ResultCacheStatus())
}

// refreshResponse reports what a refresh invalidated.
type refreshResponse struct {
	Affected    schema.DateRange `json:"affected"`
	Invalidated int              `json:"invalidated"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := time.Now().UTC()
	end := q.Get("end")
	if end == "" {
		end = now.Format(contract.DateTimeFormat)
	}
	rng, err := s.cfg.QueryRange(q.Get("start"), end, now)
	if err != nil {
		badRequest(w, err)
		return
	}
	dropped, err := s.eng.Refresh(r.Context(), rng)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, refreshResponse{Affected: rng, Invalidated: dropped})
}
