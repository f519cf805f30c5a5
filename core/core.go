// Package core has the metrics engine and the command entry points built on it.
package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/huangsam/subpulse/core/algo"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/eventstore"
	"github.com/huangsam/subpulse/internal/iocache"
	"github.com/huangsam/subpulse/internal/logging"
	"github.com/huangsam/subpulse/internal/outwriter"
	"github.com/huangsam/subpulse/schema"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// ExecutorFunc defines the function signature for executing the different commands.
type ExecutorFunc func(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error

// OpenEngine connects the configured event source and returns an engine reading from it.
// The returned close function releases the source.
func OpenEngine(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) (*Engine, func(), error) {
	src, err := eventstore.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open event source: %w", err)
	}
	var store contract.CacheStore
	if mgr != nil && cfg.CacheBackend != schema.NoneBackend {
		store = mgr.GetEventStore()
	}
	eng := NewEngine(Options{
		Source:          src,
		SourceID:        sourceID(cfg),
		Window:          cfg.Window(),
		Granularity:     cfg.Granularity,
		Store:           store,
		MaxAge:          cfg.CacheMaxAge,
		ResultCacheSize: cfg.ResultCacheSize,
		Workers:         cfg.Workers,
	})
	return eng, func() { _ = src.Close() }, nil
}

// sourceID names the event source without exposing credentials.
func sourceID(cfg *contract.Config) string {
	if cfg.EventBackend == schema.FileEvents {
		return string(cfg.EventBackend) + ":" + cfg.EventsFile
	}
	return string(cfg.EventBackend) + ":" + cfg.EventTable
}

// withEngine opens an engine for the duration of fn.
func withEngine(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager, fn func(*Engine) error) error {
	eng, closeFn, err := OpenEngine(ctx, cfg, mgr)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(eng)
}

// ExecuteSeries computes the configured metric split by the configured dimensions.
// Without dimensions, the single series named by the dimension key is returned.
func ExecuteSeries(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	start := time.Now()
	return withEngine(ctx, cfg, mgr, func(eng *Engine) error {
		var series []schema.MetricSeries
		if len(cfg.Dimensions) == 0 {
			s, err := eng.GetMetricSeries(ctx, cfg.Metric, cfg.DimensionKey, cfg.Window(), cfg.Granularity)
			if err != nil {
				return err
			}
			series = []schema.MetricSeries{s}
		} else {
			set, err := eng.GetMetricSeriesSet(ctx, []schema.MetricName{cfg.Metric}, cfg.Dimensions, cfg.Window(), cfg.Granularity)
			if err != nil {
				return err
			}
			series = algo.RankSeries(set, cfg.ResultLimit)
		}
		return outwriter.PrintSeriesResults(series, cfg, time.Since(start))
	})
}

// ExecuteRetention computes retention curves, or the single curve of the configured cohort.
func ExecuteRetention(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	start := time.Now()
	return withEngine(ctx, cfg, mgr, func(eng *Engine) error {
		var curves []schema.RetentionCurve
		if !cfg.CohortKey.IsZero() {
			curve, err := eng.GetRetentionCurve(ctx, cfg.CohortKey, cfg.Granularity)
			if err != nil {
				return err
			}
			curves = []schema.RetentionCurve{curve}
		} else {
			all, err := eng.GetRetentionCurves(ctx, cfg.Granularity)
			if err != nil {
				return err
			}
			curves = all
		}
		return outwriter.PrintRetentionResults(curves, cfg, time.Since(start))
	})
}

// ExecuteForecast forecasts the configured metric. With dimensions every split is
// forecast on the worker pool, otherwise only the configured dimension key.
func ExecuteForecast(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	start := time.Now()
	return withEngine(ctx, cfg, mgr, func(eng *Engine) error {
		var batch []schema.BatchForecast
		if len(cfg.Dimensions) == 0 {
			res, err := eng.GetForecast(ctx, cfg.Metric, cfg.DimensionKey, cfg.Horizon, cfg.Model)
			if err != nil {
				return err
			}
			batch = []schema.BatchForecast{{Metric: res.Metric, DimensionKey: res.DimensionKey, Result: &res}}
		} else {
			bar := newProgressBar("forecasting")
			var err error
			batch, err = eng.ForecastBatch(ctx, []schema.MetricName{cfg.Metric}, cfg.Dimensions, cfg.Horizon, cfg.Model, func(schema.BatchForecast) {
				_ = bar.Add(1)
			})
			_ = bar.Finish()
			if err != nil {
				return err
			}
		}

		results := lo.FilterMap(batch, func(b schema.BatchForecast, _ int) (schema.ForecastResult, bool) {
			if b.Result == nil {
				return schema.ForecastResult{}, false
			}
			return *b.Result, true
		})
		recordRun(mgr, cfg, start, results)
		return outwriter.PrintForecastResults(batch, cfg, time.Since(start))
	})
}

// ExecuteRevenue forecasts revenue per subscription type and their total.
func ExecuteRevenue(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	start := time.Now()
	return withEngine(ctx, cfg, mgr, func(eng *Engine) error {
		breakdown, err := eng.ForecastRevenueByType(ctx, cfg.Horizon, cfg.Model)
		if err != nil {
			return err
		}
		recordRun(mgr, cfg, start, lo.Values(breakdown.ByType))
		return outwriter.PrintRevenueResults(breakdown, cfg, time.Since(start))
	})
}

// ExecuteGrowth forecasts inflow against cancellations.
func ExecuteGrowth(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	start := time.Now()
	return withEngine(ctx, cfg, mgr, func(eng *Engine) error {
		summary, err := eng.ForecastGrowth(ctx, cfg.Horizon, cfg.Model)
		if err != nil {
			return err
		}
		return outwriter.PrintGrowthResults(summary, cfg, time.Since(start))
	})
}

// ExecuteChurn scores subscribers active at the configured as-of time, falling back
// to the end of the window.
func ExecuteChurn(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	start := time.Now()
	asOf := cfg.AsOf
	if asOf.IsZero() {
		asOf = cfg.EndTime
	}
	return withEngine(ctx, cfg, mgr, func(eng *Engine) error {
		scores, err := eng.GetChurnScores(ctx, asOf)
		if err != nil {
			return err
		}
		ranked := algo.RankChurnScores(scores, cfg.ResultLimit)
		return outwriter.PrintChurnResults(ranked, cfg, time.Since(start))
	})
}

// ExecuteVolume reports daily event volume inside the window per month or location.
func ExecuteVolume(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	start := time.Now()
	return withEngine(ctx, cfg, mgr, func(eng *Engine) error {
		reports, err := eng.GetVolumeReport(ctx, cfg.VolumeQuery())
		if err != nil {
			return err
		}
		return outwriter.PrintVolumeResults(reports, cfg, time.Since(start))
	})
}

// ExecuteDurations summarizes subscription durations.
func ExecuteDurations(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	start := time.Now()
	return withEngine(ctx, cfg, mgr, func(eng *Engine) error {
		summary, err := eng.GetDurations(ctx)
		if err != nil {
			return err
		}
		return outwriter.PrintDurationResults(summary, cfg, time.Since(start))
	})
}

// ExecuteConversions summarizes trial and lead conversion times.
func ExecuteConversions(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	start := time.Now()
	return withEngine(ctx, cfg, mgr, func(eng *Engine) error {
		summary, err := eng.GetConversions(ctx)
		if err != nil {
			return err
		}
		return outwriter.PrintConversionResults(summary, cfg, time.Since(start))
	})
}

// ExecuteCacheStatus prints the status of the persistent event cache and run store.
func ExecuteCacheStatus(w io.Writer, mgr contract.CacheManager) error {
	store := mgr.GetEventStore()
	if store == nil {
		_, _ = fmt.Fprintln(w, "Event cache is disabled")
	} else {
		status, err := store.GetStatus()
		if err != nil {
			return fmt.Errorf("failed to get cache status: %w", err)
		}
		iocache.PrintCacheStatus(w, status)
	}
	return ExecuteRunStatus(w, mgr)
}

// ExecuteRunStatus prints the status of the forecast run store.
func ExecuteRunStatus(w io.Writer, mgr contract.CacheManager) error {
	runs := mgr.GetRunStore()
	if runs == nil {
		_, _ = fmt.Fprintln(w, "Run tracking is disabled")
		return nil
	}
	status, err := runs.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get run status: %w", err)
	}
	iocache.PrintRunStatus(w, status)
	return nil
}

// recordRun stores forecast results when run tracking is enabled. Failures are
// logged and never fail the command.
func recordRun(mgr contract.CacheManager, cfg *contract.Config, start time.Time, results []schema.ForecastResult) {
	if mgr == nil || len(results) == 0 {
		return
	}
	runs := mgr.GetRunStore()
	if runs == nil {
		return
	}
	runID, err := runs.BeginRun(start, runParams(cfg))
	if err != nil {
		contract.LogWarn("Failed to begin forecast run", err)
		return
	}
	recorded := 0
	for _, r := range results {
		if err := runs.RecordForecast(runID, r); err != nil {
			contract.LogWarn("Failed to record forecast", err)
			continue
		}
		recorded++
	}
	if err := runs.EndRun(runID, time.Now(), recorded); err != nil {
		contract.LogWarn("Failed to end forecast run", err)
		return
	}
	logging.Info().Int64("run_id", runID).Int("forecasts", recorded).Msg("forecast run recorded")
}

// runParams captures the settings that produced a run.
func runParams(cfg *contract.Config) map[string]any {
	return map[string]any{
		"metric":      cfg.Metric,
		"dimensions":  strings.Join(lo.Map(cfg.Dimensions, func(d schema.Dimension, _ int) string { return string(d) }), ","),
		"granularity": cfg.Granularity,
		"horizon":     cfg.Horizon,
		"models":      cfg.Model.Models,
		"combiner":    cfg.Model.Combiner,
		"model_hash":  cfg.Model.Hash(),
		"start":       cfg.StartTime.Format(contract.DateTimeFormat),
		"end":         cfg.EndTime.Format(contract.DateTimeFormat),
	}
}

// newProgressBar returns a spinner on stderr, silent when stderr is not a terminal.
func newProgressBar(description string) *progressbar.ProgressBar {
	var w io.Writer = io.Discard
	if term.IsTerminal(int(os.Stderr.Fd())) {
		w = os.Stderr
	}
	return progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
