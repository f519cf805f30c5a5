// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/huangsam/subpulse/core"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

var metricNames = []string{"signups", "renewals", "upgrades", "downgrades", "cancellations", "revenue", "active"}

// NewMCPServer initializes and configures the subpulse MCP server without starting it.
// Every tool reads through eng, so results are cached across calls.
func NewMCPServer(eng *core.Engine, baseCfg *contract.Config) *server.MCPServer {
	s := server.NewMCPServer(
		"Subpulse Metrics Server",
		"1.0.0",
		server.WithLogging(),
	)

	h := &toolHandler{eng: eng, baseCfg: baseCfg}

	s.AddTool(mcp.NewTool("get_metric_series",
		mcp.WithDescription("Get a subscription metric as a gap-free time series for one dimension key."),
		mcp.WithString("metric", mcp.Description("Metric to aggregate."), mcp.Enum(metricNames...)),
		mcp.WithString("dimension_key", mcp.Description("Dimension key such as 'package=A' or 'location=DE|package=A'. Defaults to 'total'.")),
		mcp.WithString("start", mcp.Description("Inclusive start (YYYY-MM-DD, YYYY-MM or 'N months ago').")),
		mcp.WithString("end", mcp.Description("Exclusive end.")),
		mcp.WithString("granularity", mcp.Description("Period granularity."), mcp.Enum("day", "month")),
	), h.handleGetMetricSeries)

	s.AddTool(mcp.NewTool("get_retention_curve",
		mcp.WithDescription("Get the retention curve of one signup cohort, or of every cohort when none is given."),
		mcp.WithString("cohort", mcp.Description("Cohort period (YYYY-MM for months, YYYY-MM-DD for days).")),
		mcp.WithString("granularity", mcp.Description("Cohort granularity."), mcp.Enum("day", "month")),
	), h.handleGetRetentionCurve)

	s.AddTool(mcp.NewTool("get_forecast",
		mcp.WithDescription("Forecast a metric for one dimension key with prediction intervals."),
		mcp.WithString("metric", mcp.Description("Metric to forecast."), mcp.Enum(metricNames...)),
		mcp.WithString("dimension_key", mcp.Description("Dimension key. Defaults to 'total'.")),
		mcp.WithNumber("horizon", mcp.Description("Number of future periods to forecast.")),
	), h.handleGetForecast)

	s.AddTool(mcp.NewTool("get_revenue_forecast",
		mcp.WithDescription("Forecast revenue per subscription type (signup, renew, upgrade) and their total."),
		mcp.WithNumber("horizon", mcp.Description("Number of future periods to forecast.")),
	), h.handleGetRevenueForecast)

	s.AddTool(mcp.NewTool("get_growth_forecast",
		mcp.WithDescription("Forecast inflow (signups, renewals, upgrades) against cancellations: predicted churn total, average and peak, and net growth."),
		mcp.WithNumber("horizon", mcp.Description("Number of future periods to forecast.")),
	), h.handleGetGrowthForecast)

	s.AddTool(mcp.NewTool("get_churn_scores",
		mcp.WithDescription("Score the churn risk of every subscriber active at a point in time, highest risk first."),
		mcp.WithString("as_of", mcp.Description("Scoring time (YYYY-MM-DD or 'N days ago'). Defaults to the end of the window.")),
		mcp.WithNumber("limit", mcp.Description("Limit the number of results returned.")),
	), h.handleGetChurnScores)

	s.AddTool(mcp.NewTool("get_volume_report",
		mcp.WithDescription("Report daily event volume or revenue per month or location with averages, best and worst days, and the paid share."),
		mcp.WithString("event_type", mcp.Description("Only count this event type."), mcp.Enum("signup", "renew", "upgrade", "downgrade", "cancel")),
		mcp.WithString("value", mcp.Description("What to add up. Defaults to count."), mcp.Enum("count", "revenue")),
		mcp.WithString("group_by", mcp.Description("Report rows. Defaults to month."), mcp.Enum("month", "location")),
		mcp.WithString("start", mcp.Description("Inclusive start.")),
		mcp.WithString("end", mcp.Description("Exclusive end.")),
	), h.handleGetVolumeReport)

	s.AddTool(mcp.NewTool("refresh",
		mcp.WithDescription("Reload events and drop cached results that overlap the affected range."),
		mcp.WithString("start", mcp.Description("Start of the range with new data."), mcp.Required()),
		mcp.WithString("end", mcp.Description("End of the range with new data.")),
	), h.handleRefresh)

	s.AddTool(mcp.NewTool("get_cache_status",
		mcp.WithDescription("Show the entries, in-flight computations and hit rate of the result cache."),
	), h.handleGetCacheStatus)

	return s
}

// StartMCPServer opens the configured event source and serves MCP over stdio.
func StartMCPServer(ctx context.Context, baseCfg *contract.Config, mgr contract.CacheManager) error {
	eng, closeFn, err := core.OpenEngine(ctx, baseCfg, mgr)
	if err != nil {
		return err
	}
	defer closeFn()
	return server.ServeStdio(NewMCPServer(eng, baseCfg))
}
