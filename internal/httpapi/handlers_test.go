package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/huangsam/subpulse/core"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/metrics"
	"github.com/huangsam/subpulse/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *APIError       `json:"error"`
}

func raw(id, eventType, ts, tier string) schema.RawEvent {
	return schema.RawEvent{SubscriberID: id, EventType: eventType, Timestamp: ts, PackageTier: tier, Location: "DE", Amount: "10"}
}

func newTestRouter(t *testing.T) (http.Handler, *contract.MockEventSource) {
	t.Helper()
	src := &contract.MockEventSource{}
	src.On("FetchEvents", mock.Anything, mock.Anything).Return([]schema.RawEvent{
		raw("S1", "signup", "2024-01-05", "A"),
		raw("b", "signup", "2024-01-06", "A"),
		raw("c", "signup", "2024-01-07", "B"),
		raw("d", "signup", "2024-01-08", "B"),
		raw("b", "cancel", "2024-01-20", "A"),
		raw("e", "signup", "2024-02-01", "A"),
		raw("S1", "cancel", "2024-03-10", "A"),
		raw("c", "renew", "2024-03-12", "B"),
	}, nil)

	cfg := &contract.Config{
		StartTime:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Granularity: schema.MonthGranularity,
		Metric:      schema.ActiveMetric,
		Horizon:     contract.DefaultHorizon,
		ResultLimit: 10,
		Model:       schema.DefaultModelConfig(),
	}
	eng := core.NewEngine(core.Options{Source: src, SourceID: "test", Granularity: schema.MonthGranularity, Workers: 2})
	return NewServer(eng, cfg).Router(), src
}

func do(t *testing.T, h http.Handler, method, target string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w.Code, body
}

func TestSeriesEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)
	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("/api/v1/series", "200"))

	code, body := do(t, h, http.MethodGet, "/api/v1/series?metric=active&dimension_key=package%3DA")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", body.Status)

	var series schema.MetricSeries
	require.NoError(t, json.Unmarshal(body.Data, &series))
	assert.Equal(t, []float64{2, 2, 2}, series.Values())
	assert.InDelta(t, before+1, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("/api/v1/series", "200")), 1e-9)
}

func TestEndpoints(t *testing.T) {
	h, src := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		target string
		check  func(t *testing.T, data json.RawMessage)
	}{
		{"retention", http.MethodGet, "/api/v1/retention", func(t *testing.T, data json.RawMessage) {
			var curves []schema.RetentionCurve
			require.NoError(t, json.Unmarshal(data, &curves))
			assert.Len(t, curves, 2)
		}},
		{"retention cohort", http.MethodGet, "/api/v1/retention/2024-02", func(t *testing.T, data json.RawMessage) {
			var curve schema.RetentionCurve
			require.NoError(t, json.Unmarshal(data, &curve))
			assert.Equal(t, 1, curve.Size)
		}},
		{"churn", http.MethodGet, "/api/v1/churn?as_of=2024-02-10&limit=3", func(t *testing.T, data json.RawMessage) {
			var scores []schema.RankedChurnScore
			require.NoError(t, json.Unmarshal(data, &scores))
			assert.Len(t, scores, 3)
		}},
		{"volume", http.MethodGet, "/api/v1/reports/volume?event_type=cancel", func(t *testing.T, data json.RawMessage) {
			var reports []schema.VolumeReport
			require.NoError(t, json.Unmarshal(data, &reports))
			require.Len(t, reports, 3)
			assert.InDelta(t, 1, reports[0].Total, 1e-9)
			assert.Zero(t, reports[1].Total)
		}},
		{"revenue by location", http.MethodGet, "/api/v1/reports/volume?value=revenue&group_by=location", func(t *testing.T, data json.RawMessage) {
			var reports []schema.VolumeReport
			require.NoError(t, json.Unmarshal(data, &reports))
			require.Len(t, reports, 1)
			assert.Equal(t, "DE", reports[0].Location)
			assert.InDelta(t, 60, reports[0].Total, 1e-9, "cancel amounts are not revenue")
			assert.Equal(t, 6, reports[0].Paid)
			assert.Equal(t, 8, reports[0].Events)
			assert.InDelta(t, 75, reports[0].PaidPercent, 1e-9)
		}},
		{"durations", http.MethodGet, "/api/v1/reports/durations", func(t *testing.T, data json.RawMessage) {
			var summary schema.DurationSummary
			require.NoError(t, json.Unmarshal(data, &summary))
			assert.Equal(t, 5, summary.Total)
		}},
		{"conversions", http.MethodGet, "/api/v1/reports/conversions", func(t *testing.T, data json.RawMessage) {
			var summary schema.ConversionSummary
			require.NoError(t, json.Unmarshal(data, &summary))
			assert.Empty(t, summary.Points)
		}},
		{"refresh", http.MethodPost, "/api/v1/refresh?start=2024-03-01", func(t *testing.T, data json.RawMessage) {
			var resp refreshResponse
			require.NoError(t, json.Unmarshal(data, &resp))
			assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), resp.Affected.Start)
		}},
		{"cache", http.MethodGet, "/api/v1/cache", func(t *testing.T, data json.RawMessage) {
			var status schema.ResultCacheStatus
			require.NoError(t, json.Unmarshal(data, &status))
			assert.Positive(t, status.Misses)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, h, tt.method, tt.target)
			require.Equal(t, http.StatusOK, code, body.Error)
			tt.check(t, body.Data)
		})
	}
	assert.EqualValues(t, 2, src.Calls.Load(), "initial load plus one refresh")
}

func TestErrorResponses(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		name   string
		target string
		code   int
		errKey string
	}{
		{"bad metric", "/api/v1/series?metric=profit", http.StatusBadRequest, "invalid_parameter"},
		{"bad horizon", "/api/v1/forecast?horizon=soon", http.StatusBadRequest, "invalid_parameter"},
		{"unknown dimension", "/api/v1/series?dimension_key=planet%3Dmars", http.StatusBadRequest, "invalid_argument"},
		{"unknown cohort", "/api/v1/retention/2023-01", http.StatusBadRequest, "invalid_argument"},
		{"short history", "/api/v1/forecast?metric=signups", http.StatusUnprocessableEntity, "insufficient_history"},
		{"unknown event type", "/api/v1/reports/volume?event_type=pause", http.StatusBadRequest, "invalid_argument"},
		{"unknown volume grouping", "/api/v1/reports/volume?group_by=package", http.StatusBadRequest, "invalid_argument"},
		{"short revenue history", "/api/v1/forecast/revenue?horizon=2", http.StatusUnprocessableEntity, "insufficient_history"},
		{"short growth history", "/api/v1/forecast/growth?horizon=2", http.StatusUnprocessableEntity, "insufficient_history"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, h, http.MethodGet, tt.target)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, "error", body.Status)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.errKey, body.Error.Code)
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestRouter(t)

	code, body := do(t, h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", body.Status)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "subpulse_http_requests_total"))
}
