package cmd

import (
	"github.com/huangsam/subpulse/core"
	"github.com/spf13/cobra"
)

// forecastCmd forecasts one series or every series of the requested dimensions.
var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast a metric with the seasonal and boosted tree ensemble.",
	Long: `Fit the configured sub-models on a metric series and forecast --horizon periods ahead.

Each forecast carries the point estimate, a prediction interval, and the
estimate of every sub-model. With --dimensions every series is forecast
concurrently and failures are reported per series.

When --run-backend is set, every forecast is recorded for later export.

Examples:
  # Six months of active subscribers
  subpulse forecast --metric active --horizon 6

  # Signups per package, seasonal model only
  subpulse forecast --metric signups --dimensions package --models seasonal

  # Daily revenue with a holiday calendar
  subpulse forecast --metric revenue --granularity day --horizon 30 --holidays 2024-12-25,2025-01-01`,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor("forecast", core.ExecuteForecast),
}

// revenueCmd forecasts revenue per subscription type and their total.
var revenueCmd = &cobra.Command{
	Use:   "revenue",
	Short: "Forecast revenue per subscription type and in total.",
	Long: `Forecast the revenue series of every subscription type and sum them into a total.

Examples:
  subpulse revenue --horizon 12
  subpulse revenue --output json --output-file revenue.json`,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor("revenue forecast", core.ExecuteRevenue),
}

// growthCmd forecasts subscription inflow against cancellations.
var growthCmd = &cobra.Command{
	Use:   "growth",
	Short: "Forecast inflow against churn and the resulting net growth.",
	Long: `Forecast signups, renewals and upgrades as inflow and cancellations as churn
over --horizon periods. Prints predicted churn (total, average and peak) and the
projected net growth.

Examples:
  subpulse growth --horizon 6
  subpulse growth --granularity day --horizon 30 --models seasonal`,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor("growth forecast", core.ExecuteGrowth),
}
