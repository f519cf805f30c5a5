package cmd

import (
	"fmt"
	"os"

	"github.com/huangsam/subpulse/core"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/iocache"
	"github.com/huangsam/subpulse/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// runBackendFromViper reads the run tracking backend, treating empty as none.
func runBackendFromViper() (schema.DatabaseBackend, string, error) {
	backend := schema.DatabaseBackend(viper.GetString("run-backend"))
	if backend == "" {
		backend = schema.NoneBackend
	}
	connStr := viper.GetString("run-db-connect")
	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return "", "", err
	}
	return backend, connStr, nil
}

// runsSetup loads minimal configuration needed for run store operations.
func runsSetup() error {
	if err := loadConfigFile(); err != nil {
		return err
	}
	backend, connStr, err := runBackendFromViper()
	if err != nil {
		return err
	}

	cfg.RunBackend = backend
	cfg.RunDBConnect = connStr
	cfg.OutputFile = viper.GetString("output-file")
	if backend == schema.NoneBackend {
		return nil
	}

	// No event cache for run commands
	if err := iocache.InitCaching("", "", backend, connStr); err != nil {
		return fmt.Errorf("failed to initialize run tracking: %w", err)
	}
	return nil
}

// runsSetupWrapper wraps runsSetup to provide PreRunE for runs commands.
func runsSetupWrapper(_ *cobra.Command, _ []string) error {
	return runsSetup()
}

// runsMigrateSetupWrapper loads the backend without opening the store,
// so migrations can run against a fresh database.
func runsMigrateSetupWrapper(_ *cobra.Command, _ []string) error {
	if err := loadConfigFile(); err != nil {
		return err
	}
	backend, connStr, err := runBackendFromViper()
	if err != nil {
		return err
	}
	if backend == schema.SQLiteBackend && connStr == "" {
		connStr = contract.GetRunDBFilePath()
	}
	cfg.RunBackend = backend
	cfg.RunDBConnect = connStr
	return nil
}

// runsCmd focused on forecast run tracking.
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage recorded forecast runs and exports",
	Long: `Manage the history of forecast runs.

When --run-backend is set, every forecast and revenue command records:
- Run metadata (timestamp, configuration, duration)
- Every forecast point with its interval and sub-model estimates

Supported backends: SQLite, MySQL, PostgreSQL, or None (disabled)

Subcommands:
  status  - Show run tracking statistics
  export  - Export runs and points to Parquet
  clear   - Remove all recorded runs
  migrate - Run database schema migrations

Examples:
  subpulse runs status --run-backend sqlite
  subpulse runs export --run-backend sqlite --output-file forecasts`,
}

// runsClearCmd clears recorded runs.
var runsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all recorded forecast runs",
	Long: `Delete all recorded forecast runs and points.

WARNING: This action cannot be undone. Consider exporting data first.

Examples:
  subpulse runs export --run-backend sqlite --output-file backup
  subpulse runs clear --run-backend sqlite`,
	PreRunE: runsSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := iocache.ClearRuns(cfg.RunBackend, contract.GetRunDBFilePath(), cfg.RunDBConnect); err != nil {
			contract.LogFatal("Failed to clear forecast runs", err)
		}
		fmt.Println("Forecast runs cleared successfully.")
	},
}

// runsStatusCmd shows run tracking status.
var runsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display run tracking statistics and connection details",
	Long: `Show the backend, run count, newest and oldest run and table sizes of the run store.

Examples:
  subpulse runs status --run-backend sqlite`,
	PreRunE: runsSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteRunStatus(os.Stdout, cacheManager); err != nil {
			contract.LogFatal("Failed to get run status", err)
		}
	},
}

// runsExportCmd exports recorded runs to Parquet files.
var runsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded forecasts to Parquet for BI tools",
	Long: `Export all recorded forecast runs and points to Parquet.

Writes <output-file>.forecast_runs.parquet and <output-file>.forecast_points.parquet.

Requires: --output-file parameter

Examples:
  subpulse runs export --run-backend sqlite --output-file forecasts
  duckdb -c "SELECT * FROM read_parquet('forecasts.forecast_points.parquet') LIMIT 10"`,
	PreRunE: runsSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := iocache.ExecuteRunExport(os.Stdout, cacheManager.GetRunStore(), cfg.OutputFile); err != nil {
			contract.LogFatal("Failed to export forecast runs", err)
		}
	},
}

// runsMigrateCmd runs database migrations for the run store.
var runsMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations (upgrades/downgrades)",
	Long: `Manage schema versions of the run tracking store.

By default, migrates to the latest version. Use --target-version for specific versions.

Examples:
  subpulse runs migrate --run-backend sqlite
  subpulse runs migrate --run-backend postgresql --target-version 1
  subpulse runs migrate --run-backend sqlite --target-version 0`,
	PreRunE: runsMigrateSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		result, err := iocache.MigrateRuns(cfg.RunBackend, cfg.RunDBConnect, viper.GetInt("target-version"))
		if err != nil {
			contract.LogFatal("Failed to run migrations", err)
		}
		if !result.Changed {
			fmt.Printf("Schema already at version %d.\n", result.ToVersion)
			return
		}
		fmt.Printf("Migrated schema from version %d to %d.\n", result.FromVersion, result.ToVersion)
	},
}
