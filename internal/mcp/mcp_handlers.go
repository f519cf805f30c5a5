package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/huangsam/subpulse/core"
	"github.com/huangsam/subpulse/core/algo"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/schema"
	"github.com/mark3labs/mcp-go/mcp"
)

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	eng     *core.Engine
	baseCfg *contract.Config
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

func invalid(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("invalid parameters: %v", err))
}

func (h *toolHandler) handleGetMetricSeries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metric, err := h.baseCfg.QueryMetric(request.GetString("metric", ""))
	if err != nil {
		return invalid(err), nil
	}
	g, err := h.baseCfg.QueryGranularity(request.GetString("granularity", ""))
	if err != nil {
		return invalid(err), nil
	}
	r, err := h.baseCfg.QueryRange(request.GetString("start", ""), request.GetString("end", ""), time.Now())
	if err != nil {
		return invalid(err), nil
	}

	series, err := h.eng.GetMetricSeries(ctx, metric, request.GetString("dimension_key", ""), r, g)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("series failed: %v", err)), nil
	}
	return jsonResult(series)
}

func (h *toolHandler) handleGetRetentionCurve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g, err := h.baseCfg.QueryGranularity(request.GetString("granularity", ""))
	if err != nil {
		return invalid(err), nil
	}
	cohortStr := request.GetString("cohort", "")
	if cohortStr == "" {
		curves, err := h.eng.GetRetentionCurves(ctx, g)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("retention failed: %v", err)), nil
		}
		return jsonResult(curves)
	}

	cohortKey, err := schema.ParsePeriod(cohortStr, g)
	if err != nil {
		return invalid(err), nil
	}
	curve, err := h.eng.GetRetentionCurve(ctx, cohortKey, g)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("retention failed: %v", err)), nil
	}
	return jsonResult(curve)
}

func (h *toolHandler) handleGetForecast(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metric, err := h.baseCfg.QueryMetric(request.GetString("metric", ""))
	if err != nil {
		return invalid(err), nil
	}
	horizon, err := h.baseCfg.QueryHorizon(request.GetInt("horizon", 0))
	if err != nil {
		return invalid(err), nil
	}

	result, err := h.eng.GetForecast(ctx, metric, request.GetString("dimension_key", ""), horizon, h.baseCfg.Model)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("forecast failed: %v", err)), nil
	}
	return jsonResult(result)
}

func (h *toolHandler) handleGetRevenueForecast(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	horizon, err := h.baseCfg.QueryHorizon(request.GetInt("horizon", 0))
	if err != nil {
		return invalid(err), nil
	}
	breakdown, err := h.eng.ForecastRevenueByType(ctx, horizon, h.baseCfg.Model)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("revenue forecast failed: %v", err)), nil
	}
	return jsonResult(breakdown)
}

func (h *toolHandler) handleGetGrowthForecast(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	horizon, err := h.baseCfg.QueryHorizon(request.GetInt("horizon", 0))
	if err != nil {
		return invalid(err), nil
	}
	summary, err := h.eng.ForecastGrowth(ctx, horizon, h.baseCfg.Model)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("growth forecast failed: %v", err)), nil
	}
	return jsonResult(summary)
}

func (h *toolHandler) handleGetChurnScores(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	asOf := h.baseCfg.EndTime
	if s := request.GetString("as_of", ""); s != "" {
		t, err := contract.ParseTimeInput(s, time.Now())
		if err != nil {
			return invalid(err), nil
		}
		asOf = t
	}
	limit := h.baseCfg.ResultLimit
	if l := request.GetInt("limit", 0); l > 0 {
		limit = l
	}

	scores, err := h.eng.GetChurnScores(ctx, asOf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("churn scoring failed: %v", err)), nil
	}
	return jsonResult(algo.RankChurnScores(scores, limit))
}

func (h *toolHandler) handleGetVolumeReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := h.baseCfg.QueryRange(request.GetString("start", ""), request.GetString("end", ""), time.Now())
	if err != nil {
		return invalid(err), nil
	}
	reports, err := h.eng.GetVolumeReport(ctx, schema.VolumeQuery{
		Range:     r,
		EventType: schema.EventType(request.GetString("event_type", "")),
		Value:     schema.VolumeValue(request.GetString("value", "")),
		GroupBy:   schema.VolumeGrouping(request.GetString("group_by", "")),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("volume report failed: %v", err)), nil
	}
	return jsonResult(reports)
}

func (h *toolHandler) handleRefresh(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	now := time.Now().UTC()
	end := request.GetString("end", "")
	if end == "" {
		end = now.Format(contract.DateTimeFormat)
	}
	r, err := h.baseCfg.QueryRange(request.GetString("start", ""), end, now)
	if err != nil {
		return invalid(err), nil
	}
	dropped, err := h.eng.Refresh(ctx, r)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("refresh failed: %v", err)), nil
	}
	return jsonResult(map[string]any{"affected": r, "invalidated": dropped})
}

func (h *toolHandler) handleGetCacheStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.eng.ResultCacheStatus())
}
