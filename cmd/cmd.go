// Package cmd defines the command-line interface for subpulse.
package cmd

import (
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(seriesCmd)
	rootCmd.AddCommand(retentionCmd)
	rootCmd.AddCommand(forecastCmd)
	rootCmd.AddCommand(revenueCmd)
	rootCmd.AddCommand(growthCmd)
	rootCmd.AddCommand(churnCmd)
	rootCmd.AddCommand(volumeCmd)
	rootCmd.AddCommand(durationsCmd)
	rootCmd.AddCommand(conversionsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	// Add the cache subcommands to the parent cache command
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatusCmd)

	// Add the runs subcommands to the parent runs command
	runsCmd.AddCommand(runsClearCmd)
	runsCmd.AddCommand(runsStatusCmd)
	runsCmd.AddCommand(runsExportCmd)
	runsCmd.AddCommand(runsMigrateCmd)

	// Bind all persistent flags of rootCmd to Viper
	pf := rootCmd.PersistentFlags()
	pf.String("start", "", "Start date in ISO8601 or time ago (default 24 months ago)")
	pf.String("end", "", "End date in ISO8601 or time ago (default now)")
	pf.String("granularity", string(schema.MonthGranularity), "Period size: day or month")
	pf.String("dimensions", "", "Comma-separated dimensions to group by: package, location, type")
	pf.IntP("limit", "l", contract.DefaultResultLimit, "Number of results to display")
	pf.Int("workers", contract.DefaultWorkers, "Number of concurrent workers")
	pf.Int("precision", contract.DefaultPrecision, "Decimal precision for numeric columns")
	pf.String("output", string(schema.TextOut), "Output format: text or csv or json or parquet")
	pf.String("output-file", "", "Optional path to write output to")
	pf.Int("width", 0, "Terminal width override (0 = auto-detect)")
	pf.String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	pf.String("event-backend", string(schema.MySQLEvents), "Event source: mysql or postgresql or sqlite or file")
	pf.String("event-db-connect", "", "Connection string of the event database (prefer SUBPULSE_EVENT_DB_CONNECT)")
	pf.String("event-table", contract.DefaultEventTable, "Table holding raw subscription events")
	pf.String("events-file", "", "JSON or JSONL file of raw events for the file backend")
	pf.String("mongo-uri", "", "MongoDB URI holding the event store connection config (optional)")
	pf.String("mongo-db", contract.DefaultMongoDatabase, "MongoDB database of the connection config")
	pf.String("mongo-collection", contract.DefaultMongoCollection, "MongoDB collection of the connection config")
	pf.String("cache-backend", string(schema.SQLiteBackend), "Event cache backend: sqlite or mysql or postgresql or none")
	pf.String("cache-db-connect", "", "Database connection string for mysql/postgresql (e.g., user:pass@tcp(host:port)/dbname)")
	pf.String("cache-max-age", "", "Maximum age of a cached event snapshot (e.g. '12 hours')")
	pf.Int("result-cache-size", 0, "Maximum in-memory result cache entries (0 = unbounded)")
	pf.String("run-backend", "", "Forecast run tracking backend: sqlite or mysql or postgresql or none")
	pf.String("run-db-connect", "", "Database connection string for run tracking (must differ from cache-db-connect)")
	pf.String("log-level", "warn", "Log level: trace, debug, info, warn, error, disabled")
	pf.String("log-format", "console", "Log format: console or json")
	pf.String("profile", "", "Enable profiling and write profiles to files with this prefix")
	pf.String("config", "", "Path to config file")
	if err := viper.BindPFlags(pf); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Command flags share viper keys across commands, so they are bound
	// in sharedSetup for the command that actually runs.
	// Query flags shared by the metric commands
	for _, c := range []*cobra.Command{seriesCmd, forecastCmd, mcpCmd, serveCmd} {
		c.Flags().String("metric", string(schema.ActiveMetric), "Metric: signups, renewals, upgrades, downgrades, cancellations, revenue, active")
		c.Flags().String("dimension-key", "", "Series key such as 'package=A,location=DE' (default total)")
	}

	// Model flags shared by forecasting entrypoints
	for _, c := range []*cobra.Command{forecastCmd, revenueCmd, growthCmd, mcpCmd, serveCmd} {
		f := c.Flags()
		f.Int("horizon", contract.DefaultHorizon, "Number of periods to forecast")
		f.String("models", "", "Comma-separated sub-models: seasonal, gbrt (default both)")
		f.String("combiner", "", "Ensemble combiner: mean or median")
		f.Int("season-length", 0, "Season length in periods (0 = by granularity)")
		f.String("lags", "", "Comma-separated lag offsets (default by granularity)")
		f.String("windows", "", "Comma-separated rolling window sizes (default by granularity)")
		f.Int("trees", 0, "Number of boosting rounds")
		f.Int("depth", 0, "Maximum tree depth")
		f.Float64("learning-rate", 0, "Boosting learning rate")
		f.Float64("lambda", 0, "L2 regularization on leaf weights")
		f.Float64("interval-level", contract.DefaultIntervalLevel, "Prediction interval level")
		f.Bool("residual-intervals", false, "Derive intervals from in-sample residuals")
		f.Bool("remove-outliers", true, "Drop IQR outliers before fitting")
		f.Bool("allow-missing-lags", false, "Keep training rows whose lags precede the series")
		f.String("encoding", "", "Categorical encoding: onehot or ordinal")
		f.String("holidays", "", "Comma-separated holiday dates (YYYY-MM-DD)")
	}

	retentionCmd.Flags().String("cohort", "", "Cohort period such as 2024-01 (default all cohorts)")

	churnCmd.Flags().String("as-of", "", "Observation cutoff in ISO8601 or time ago (default end)")

	volumeCmd.Flags().String("event-type", "", "Only count this event type")
	volumeCmd.Flags().String("value", string(schema.CountVolume), "What to add up: count or revenue")
	volumeCmd.Flags().String("group-by", string(schema.MonthGrouping), "Report rows: month or location")

	serveCmd.Flags().String("addr", ":8080", "Address the HTTP API listens on")

	runsMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	bindFlags("runs migrate", runsMigrateCmd)
}

// bindFlags binds the local flags of c to Viper.
func bindFlags(name string, c *cobra.Command) {
	if err := viper.BindPFlags(c.Flags()); err != nil {
		contract.LogFatal("Error binding "+name+" flags", err)
	}
}
