package cmd

import (
	"github.com/huangsam/subpulse/core"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/spf13/cobra"
)

// runExecutor adapts a core executor into a cobra Run function.
func runExecutor(what string, fn core.ExecutorFunc) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, _ []string) {
		if err := fn(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot run "+what, err)
		}
	}
}

// seriesCmd prints aggregated metric series.
var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "Show a metric series per period, optionally split by dimensions.",
	Long: `Aggregate raw subscription events into a metric series.

Flow metrics (signups, renewals, upgrades, downgrades, cancellations, revenue)
count events per period. The active metric counts subscribers active at the
end of each period.

Without --dimensions a single total series is printed. With --dimensions the
series of every dimension combination are ranked by total and limited by --limit.

Examples:
  # Monthly signups for the last two years
  subpulse series --metric signups

  # Active subscribers per package and location, as CSV
  subpulse series --metric active --dimensions package,location --output csv

  # Daily revenue for a single package
  subpulse series --metric revenue --granularity day --dimension-key package=A --start "3 months ago"`,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor("series", core.ExecuteSeries),
}

// retentionCmd prints cohort retention curves.
var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Show cohort retention curves.",
	Long: `Group subscribers by their signup period and track how many remain active.

Examples:
  # Every monthly cohort
  subpulse retention

  # A single cohort
  subpulse retention --cohort 2024-01`,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor("retention", core.ExecuteRetention),
}

// churnCmd prints ranked churn scores.
var churnCmd = &cobra.Command{
	Use:   "churn",
	Short: "Rank active subscribers by churn score.",
	Long: `Score every subscriber active at --as-of and rank by churn score.

Examples:
  # Top 25 churn risks now
  subpulse churn

  # Churn risk as of the start of the year
  subpulse churn --as-of 2024-01-01 --limit 100 --output csv`,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor("churn scoring", core.ExecuteChurn),
}

// volumeCmd prints per-period event volume.
var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Show daily event volume per month or location.",
	Long: `Add up events or their revenue per calendar month or per location, with daily
averages, the best and worst day, and the share of paid events.

Examples:
  subpulse volume
  subpulse volume --event-type cancel
  subpulse volume --value revenue --group-by location --start "6 months ago"`,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor("volume report", core.ExecuteVolume),
}

// durationsCmd prints subscription duration statistics.
var durationsCmd = &cobra.Command{
	Use:   "durations",
	Short: "Summarize how long subscriptions last.",
	Long: `Compute subscription durations in days, split by active and cancelled subscribers.

Examples:
  subpulse durations --output json`,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor("duration report", core.ExecuteDurations),
}

// conversionsCmd prints trial and lead conversion statistics.
var conversionsCmd = &cobra.Command{
	Use:   "conversions",
	Short: "Summarize time from trial or lead to paid signup.",
	Long: `Measure the days between a subscriber's trial or lead origin and their paid signup.

Examples:
  subpulse conversions`,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor("conversion report", core.ExecuteConversions),
}
