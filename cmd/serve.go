package cmd

import (
	"os/signal"
	"syscall"

	"github.com/huangsam/subpulse/internal/httpapi"
	"github.com/spf13/cobra"
)

// serveCmd serves the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve metrics, retention, churn and forecasts over HTTP",
	Long: `Start the HTTP API on --addr. Prometheus metrics are exposed on /metrics.

Routes:
  GET  /api/v1/series
  GET  /api/v1/retention and /api/v1/retention/{cohort}
  GET  /api/v1/forecast and /api/v1/forecast/revenue
  GET  /api/v1/churn
  GET  /api/v1/reports/volume, durations, conversions
  GET  /api/v1/cache
  POST /api/v1/refresh

Examples:
  subpulse serve --addr :9090 --event-backend postgresql`,
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return httpapi.Serve(ctx, cfg, cacheManager)
	},
}
