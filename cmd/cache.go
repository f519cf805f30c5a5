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

// cacheSetup loads minimal configuration needed for cache operations.
// This is used by commands that need cache access without full shared setup.
func cacheSetup() error {
	if err := loadConfigFile(); err != nil {
		return err
	}

	backend := schema.DatabaseBackend(viper.GetString("cache-backend"))
	connStr := viper.GetString("cache-db-connect")
	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return err
	}

	cfg.CacheBackend = backend
	cfg.CacheDBConnect = connStr
	if backend == schema.NoneBackend {
		return nil
	}

	// No run tracking for cache commands
	if err := iocache.InitCaching(backend, connStr, "", ""); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	return nil
}

// cacheSetupWrapper wraps cacheSetup to provide PreRunE for cache commands.
func cacheSetupWrapper(_ *cobra.Command, _ []string) error {
	return cacheSetup()
}

// cacheCmd focused on cache management.
//
// Note: Cache subcommands use minimal initialization (cacheSetup) instead of
// the full sharedSetup used by metric commands. This avoids event source
// validation and model config processing for simple cache operations.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the event snapshot cache",
	Long: `Manage the cache of fetched event snapshots.

Subpulse stores every fetched event snapshot keyed by source and date range,
so repeated queries over the same window skip the event database.

Supported backends: SQLite (default), MySQL, PostgreSQL, or None (disabled)

Subcommands:
  status - Show cache statistics and connection info
  clear  - Remove all cached snapshots

Examples:
  subpulse cache status
  subpulse cache clear`,
}

// cacheClearCmd clears the cache.
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached event snapshots",
	Long: `Delete all cached event snapshots from the configured backend.

Use this after backfilling or correcting the event table.

For SQLite: Deletes the database file
For MySQL/PostgreSQL: Drops the cache table

Examples:
  subpulse cache clear
  SUBPULSE_CACHE_BACKEND=mysql SUBPULSE_CACHE_DB_CONNECT="..." subpulse cache clear`,
	PreRunE: cacheSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := iocache.ClearCache(cfg.CacheBackend, contract.GetCacheDBFilePath(), cfg.CacheDBConnect); err != nil {
			contract.LogFatal("Failed to clear cache", err)
		}
		fmt.Println("Cache cleared successfully.")
	},
}

// cacheStatusCmd shows cache status.
var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display cache statistics and connection details",
	Long: `Show the backend, entry count, newest and oldest snapshot and table size of the event cache.

Examples:
  subpulse cache status`,
	PreRunE: cacheSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteCacheStatus(os.Stdout, cacheManager); err != nil {
			contract.LogFatal("Failed to get cache status", err)
		}
	},
}
