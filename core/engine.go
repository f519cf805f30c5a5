package core

import (
	"context"
	"math"
	"slices"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/huangsam/subpulse/core/agg"
	"github.com/huangsam/subpulse/core/churn"
	"github.com/huangsam/subpulse/core/cohort"
	"github.com/huangsam/subpulse/core/features"
	"github.com/huangsam/subpulse/core/forecast"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/iocache"
	"github.com/huangsam/subpulse/internal/logging"
	"github.com/huangsam/subpulse/internal/metrics"
	"github.com/huangsam/subpulse/schema"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"
)

// Options configures an Engine.
type Options struct {
	Source   contract.EventSource
	SourceID string           // identifies the source in persistent cache keys
	Window   schema.DateRange // zero fetches everything

	Granularity schema.Granularity // used by forecasts and cohort views

	Store  contract.CacheStore // optional persistent snapshot cache
	MaxAge time.Duration       // max age of a persisted snapshot, 0 = no limit

	ResultCacheSize int // 0 = unbounded
	Workers         int
}

// Engine answers metric, retention, forecast and churn queries over one event snapshot.
// It is safe for concurrent use.
type Engine struct {
	opts  Options
	cache *iocache.ResultCache
	snap  atomic.Pointer[Snapshot]
	loads singleflight.Group
}

// NewEngine returns an engine that loads its snapshot lazily.
func NewEngine(opts Options) *Engine {
	if opts.Granularity == "" {
		opts.Granularity = schema.MonthGranularity
	}
	if opts.Workers <= 0 {
		opts.Workers = contract.DefaultWorkers
	}
	return &Engine{opts: opts, cache: iocache.NewResultCache(opts.ResultCacheSize)}
}

// Snapshot returns the current snapshot, loading it on first use.
// Concurrent first callers share one load.
func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	if s := e.snap.Load(); s != nil {
		return s, nil
	}
	v, err, _ := e.loads.Do("load", func() (any, error) {
		if s := e.snap.Load(); s != nil {
			return s, nil
		}
		s, err := e.loadSnapshot(ctx, true)
		if err != nil {
			return nil, err
		}
		e.snap.Store(s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Refresh reloads the snapshot from the source and invalidates every cached
// result whose range intersects affected. A zero range invalidates everything.
func (e *Engine) Refresh(ctx context.Context, affected schema.DateRange) (int, error) {
	_, err, _ := e.loads.Do("refresh", func() (any, error) {
		s, err := e.loadSnapshot(ctx, false)
		if err != nil {
			return nil, err
		}
		e.snap.Store(s)
		return s, nil
	})
	if err != nil {
		return 0, err
	}
	dropped := e.cache.Invalidate(affected)
	logging.Info().Str("range", affected.String()).Int("dropped", dropped).Msg("result cache invalidated")
	return dropped, nil
}

// ResultCacheStatus returns the counters of the result cache.
func (e *Engine) ResultCacheStatus() schema.ResultCacheStatus {
	return e.cache.Status()
}

// view is the snapshot a request reads, stamped with the cache generation current
// before the snapshot was loaded.
type view struct {
	*Snapshot
	gen uint64
}

// begin captures the snapshot a computation reads and tags ctx with its id.
// The generation is read first: Refresh stores a snapshot before it invalidates,
// so a view never carries a newer stamp than its data.
func (e *Engine) begin(ctx context.Context) (context.Context, view, error) {
	gen := e.cache.Generation()
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return ctx, view{}, err
	}
	return logging.WithSnapshot(ctx, snap.ID), view{Snapshot: snap, gen: gen}, nil
}

// timed records the duration of a cached computation.
func timed[T any](kind string, fn func() (T, error)) (T, error) {
	start := time.Now()
	defer func() { metrics.ComputationDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds()) }()
	return fn()
}

// invalidArgument reports a bad request parameter.
func invalidArgument(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), contract.ErrDataValidation)
}

func validateMetric(metric schema.MetricName) error {
	if _, ok := schema.ValidMetrics[metric]; !ok {
		return invalidArgument("unknown metric %q", metric)
	}
	return nil
}

func validateGranularity(g schema.Granularity) error {
	if _, ok := schema.ValidGranularities[g]; !ok {
		return invalidArgument("unknown granularity %q", g)
	}
	return nil
}

// dimensionsOf returns the dimensions named by a dimension key, in canonical order.
func dimensionsOf(key string) ([]schema.Dimension, error) {
	values := schema.ParseDimensionKey(key)
	if key != "" && key != schema.TotalDimensionKey && len(values) == 0 {
		return nil, invalidArgument("malformed dimension key %q", key)
	}
	dims := make([]schema.Dimension, 0, len(values))
	for _, d := range schema.AllDimensions {
		if _, ok := values[d]; ok {
			dims = append(dims, d)
		}
	}
	if len(dims) != len(values) {
		return nil, invalidArgument("unknown dimension in key %q", key)
	}
	return dims, nil
}

// seriesSet aggregates every requested metric over the given dimensions.
func (e *Engine) seriesSet(ctx context.Context, v view, metricNames []schema.MetricName, dims []schema.Dimension, r schema.DateRange, g schema.Granularity) ([]schema.MetricSeries, error) {
	key := iocache.CacheKey{
		Kind:      "series/" + string(g),
		Metric:    schema.MetricName(strings.Join(lo.Map(metricNames, func(m schema.MetricName, _ int) string { return string(m) }), ",")),
		Dimension: strings.Join(lo.Map(dims, func(d schema.Dimension, _ int) string { return string(d) }), ","),
		Range:     r,
	}
	return iocache.GetOrComputeAt(ctx, e.cache, key, v.gen, func(ctx context.Context) ([]schema.MetricSeries, error) {
		return timed("series", func() ([]schema.MetricSeries, error) {
			return agg.Aggregate(v.Events, agg.Options{Granularity: g, Dimensions: dims, Metrics: metricNames, Range: r})
		})
	})
}

// GetMetricSeries returns one metric for one dimension key over r (zero = observed range).
// A key without events yields a zero series on the same grid.
func (e *Engine) GetMetricSeries(ctx context.Context, metric schema.MetricName, dimensionKey string, r schema.DateRange, g schema.Granularity) (schema.MetricSeries, error) {
	if err := validateMetric(metric); err != nil {
		return schema.MetricSeries{}, err
	}
	if err := validateGranularity(g); err != nil {
		return schema.MetricSeries{}, err
	}
	dims, err := dimensionsOf(dimensionKey)
	if err != nil {
		return schema.MetricSeries{}, err
	}
	if dimensionKey == "" {
		dimensionKey = schema.TotalDimensionKey
	}

	ctx, v, err := e.begin(ctx)
	if err != nil {
		return schema.MetricSeries{}, err
	}
	set, err := e.seriesSet(ctx, v, []schema.MetricName{metric}, dims, r, g)
	if err != nil {
		return schema.MetricSeries{}, err
	}
	if s, ok := agg.Find(set, metric, dimensionKey); ok {
		return s, nil
	}
	return emptySeries(metric, dimensionKey, g, r, v.Snapshot), nil
}

// emptySeries is the all-zero series for a key that has no events.
func emptySeries(metric schema.MetricName, key string, g schema.Granularity, r schema.DateRange, snap *Snapshot) schema.MetricSeries {
	if r.IsZero() {
		r = agg.ObservedRange(snap.Events, g)
	}
	out := schema.MetricSeries{Metric: metric, DimensionKey: key, Granularity: g, Kind: schema.KindOf(metric)}
	for _, p := range schema.PeriodGrid(r, g) {
		out.Points = append(out.Points, schema.SeriesPoint{Period: p})
	}
	return out
}

// GetMetricSeriesSet returns every series of the metrics split by dims.
func (e *Engine) GetMetricSeriesSet(ctx context.Context, metricNames []schema.MetricName, dims []schema.Dimension, r schema.DateRange, g schema.Granularity) ([]schema.MetricSeries, error) {
	for _, m := range metricNames {
		if err := validateMetric(m); err != nil {
			return nil, err
		}
	}
	if err := validateGranularity(g); err != nil {
		return nil, err
	}
	ctx, v, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	return e.seriesSet(ctx, v, metricNames, dims, r, g)
}

// subscribers derives subscribers from the whole snapshot.
func (e *Engine) subscribers(ctx context.Context, v view, g schema.Granularity) ([]schema.Subscriber, error) {
	key := iocache.CacheKey{Kind: "subscribers/" + string(g)}
	return iocache.GetOrComputeAt(ctx, e.cache, key, v.gen, func(ctx context.Context) ([]schema.Subscriber, error) {
		return cohort.BuildSubscribers(v.Events, g), nil
	})
}

// GetRetentionCurves returns the retention curve of every cohort.
func (e *Engine) GetRetentionCurves(ctx context.Context, g schema.Granularity) ([]schema.RetentionCurve, error) {
	if err := validateGranularity(g); err != nil {
		return nil, err
	}
	ctx, v, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	key := iocache.CacheKey{Kind: "retention/" + string(g)}
	return iocache.GetOrComputeAt(ctx, e.cache, key, v.gen, func(ctx context.Context) ([]schema.RetentionCurve, error) {
		return timed("retention", func() ([]schema.RetentionCurve, error) {
			subs, err := e.subscribers(ctx, v, g)
			if err != nil {
				return nil, err
			}
			return cohort.RetentionCurves(subs, g, v.ObservedEnd()), nil
		})
	})
}

// GetRetentionCurve returns the curve of the cohort whose period contains cohortKey.
func (e *Engine) GetRetentionCurve(ctx context.Context, cohortKey time.Time, g schema.Granularity) (schema.RetentionCurve, error) {
	curves, err := e.GetRetentionCurves(ctx, g)
	if err != nil {
		return schema.RetentionCurve{}, err
	}
	key := schema.TruncatePeriod(cohortKey, g)
	curve, ok := cohort.CurveFor(curves, key)
	if !ok {
		return schema.RetentionCurve{}, invalidArgument("no cohort starts in %s", schema.FormatPeriod(key, g))
	}
	return curve, nil
}

// GetDurations summarizes how long first subscriptions last, honouring censoring.
func (e *Engine) GetDurations(ctx context.Context) (schema.DurationSummary, error) {
	ctx, v, err := e.begin(ctx)
	if err != nil {
		return schema.DurationSummary{}, err
	}
	key := iocache.CacheKey{Kind: "durations"}
	return iocache.GetOrComputeAt(ctx, e.cache, key, v.gen, func(ctx context.Context) (schema.DurationSummary, error) {
		subs, err := e.subscribers(ctx, v, e.opts.Granularity)
		if err != nil {
			return schema.DurationSummary{}, err
		}
		return cohort.SummarizeDurations(cohort.Durations(subs, v.ObservedEnd())), nil
	})
}

// GetConversions returns time-to-first-subscription for trial and lead signups.
func (e *Engine) GetConversions(ctx context.Context) (schema.ConversionSummary, error) {
	ctx, v, err := e.begin(ctx)
	if err != nil {
		return schema.ConversionSummary{}, err
	}
	key := iocache.CacheKey{Kind: "conversions"}
	return iocache.GetOrComputeAt(ctx, e.cache, key, v.gen, func(ctx context.Context) (schema.ConversionSummary, error) {
		subs, err := e.subscribers(ctx, v, e.opts.Granularity)
		if err != nil {
			return schema.ConversionSummary{}, err
		}
		return cohort.ConversionTimes(subs), nil
	})
}

// GetVolumeReport reports daily volume inside q.Range (zero = observed range) grouped
// by calendar month or location. Zero value and grouping default to count by month.
func (e *Engine) GetVolumeReport(ctx context.Context, q schema.VolumeQuery) ([]schema.VolumeReport, error) {
	if q.EventType != "" && !slices.Contains(schema.AllEventTypes, q.EventType) {
		return nil, invalidArgument("unknown event type %q", q.EventType)
	}
	if q.Value == "" {
		q.Value = schema.CountVolume
	}
	if _, ok := schema.ValidVolumeValues[q.Value]; !ok {
		return nil, invalidArgument("unknown volume value %q", q.Value)
	}
	if q.GroupBy == "" {
		q.GroupBy = schema.MonthGrouping
	}
	if _, ok := schema.ValidVolumeGroupings[q.GroupBy]; !ok {
		return nil, invalidArgument("unknown volume grouping %q", q.GroupBy)
	}
	ctx, v, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	if q.Range.IsZero() {
		q.Range = agg.ObservedRange(v.Events, schema.MonthGranularity)
	}
	key := iocache.CacheKey{Kind: "volume/" + string(q.Value) + "/" + string(q.GroupBy), Dimension: string(q.EventType), Range: q.Range}
	return iocache.GetOrComputeAt(ctx, e.cache, key, v.gen, func(ctx context.Context) ([]schema.VolumeReport, error) {
		return agg.VolumeReports(v.Events, q), nil
	})
}

// GetChurnScores scores every subscriber still active at asOf using only events up to asOf.
func (e *Engine) GetChurnScores(ctx context.Context, asOf time.Time) ([]schema.ChurnScore, error) {
	if asOf.IsZero() {
		return nil, invalidArgument("as-of time is required")
	}
	ctx, v, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	// New data before asOf can change the scores, data after it cannot.
	key := iocache.CacheKey{Kind: "churn", Range: schema.NewDateRange(time.Time{}, asOf.Add(time.Nanosecond))}
	return iocache.GetOrComputeAt(ctx, e.cache, key, v.gen, func(ctx context.Context) ([]schema.ChurnScore, error) {
		return timed("churn", func() ([]schema.ChurnScore, error) {
			subs := cohort.BuildSubscribers(v.EventsUpTo(asOf), e.opts.Granularity)
			return churn.Score(subs, asOf, churn.DefaultOptions())
		})
	})
}

// forecastSeries forecasts one series through the result cache. kind separates
// forecasts of differently shaped series of the same metric and key.
func (e *Engine) forecastSeries(ctx context.Context, v view, kind string, fe *forecast.Engine, series schema.MetricSeries, aux []schema.MetricSeries, vocab map[schema.Dimension][]string, horizon int) (schema.ForecastResult, error) {
	key := iocache.CacheKey{
		Kind:      kind + "/" + string(series.Granularity),
		Metric:    series.Metric,
		Dimension: series.DimensionKey,
		Horizon:   horizon,
		ModelHash: fe.Config().Hash(),
	}
	return iocache.GetOrComputeAt(ctx, e.cache, key, v.gen, func(ctx context.Context) (schema.ForecastResult, error) {
		return fe.Forecast(ctx, forecast.Request{Series: series, Horizon: horizon, Vocabulary: vocab, Aux: aux})
	})
}

// withAux adds the metrics that auxiliary series of metricNames are read from.
func withAux(metricNames []schema.MetricName) []schema.MetricName {
	if slices.Contains(metricNames, schema.CancellationsMetric) && !slices.Contains(metricNames, schema.ActiveMetric) {
		return append(slices.Clone(metricNames), schema.ActiveMetric)
	}
	return metricNames
}

// auxFor returns the auxiliary series of a forecast. Cancellations also see the
// previous period's active subscribers of the same key.
func auxFor(set []schema.MetricSeries, series schema.MetricSeries) []schema.MetricSeries {
	if series.Metric != schema.CancellationsMetric {
		return nil
	}
	if active, ok := agg.Find(set, schema.ActiveMetric, series.DimensionKey); ok {
		return []schema.MetricSeries{active}
	}
	return nil
}

func validateHorizon(horizon int) error {
	if horizon <= 0 || horizon > contract.MaxHorizon {
		return invalidArgument("horizon must be between 1 and %d, got %d", contract.MaxHorizon, horizon)
	}
	return nil
}

// GetForecast forecasts one metric and dimension key over the full observed history.
func (e *Engine) GetForecast(ctx context.Context, metric schema.MetricName, dimensionKey string, horizon int, cfg schema.ModelConfig) (schema.ForecastResult, error) {
	if err := validateHorizon(horizon); err != nil {
		return schema.ForecastResult{}, err
	}
	if err := validateMetric(metric); err != nil {
		return schema.ForecastResult{}, err
	}
	dims, err := dimensionsOf(dimensionKey)
	if err != nil {
		return schema.ForecastResult{}, err
	}
	if dimensionKey == "" {
		dimensionKey = schema.TotalDimensionKey
	}
	fe, err := forecast.NewEngine(cfg)
	if err != nil {
		return schema.ForecastResult{}, invalidArgument("%v", err)
	}

	ctx, v, err := e.begin(ctx)
	if err != nil {
		return schema.ForecastResult{}, err
	}
	set, err := e.seriesSet(ctx, v, withAux([]schema.MetricName{metric}), dims, schema.DateRange{}, e.opts.Granularity)
	if err != nil {
		return schema.ForecastResult{}, err
	}
	series, ok := agg.Find(set, metric, dimensionKey)
	if !ok {
		series = emptySeries(metric, dimensionKey, e.opts.Granularity, schema.DateRange{}, v.Snapshot)
	}
	return e.forecastSeries(ctx, v, "forecast", fe, series, auxFor(set, series), features.VocabularyOf(set), horizon)
}

// ForecastBatch forecasts every series of the metrics split by dims on a bounded worker pool.
// Failures are reported per series; onDone, if set, is called as each series finishes.
func (e *Engine) ForecastBatch(ctx context.Context, metricNames []schema.MetricName, dims []schema.Dimension, horizon int, cfg schema.ModelConfig, onDone func(schema.BatchForecast)) ([]schema.BatchForecast, error) {
	if err := validateHorizon(horizon); err != nil {
		return nil, err
	}
	fe, err := forecast.NewEngine(cfg)
	if err != nil {
		return nil, invalidArgument("%v", err)
	}
	for _, m := range metricNames {
		if err := validateMetric(m); err != nil {
			return nil, err
		}
	}
	ctx, v, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	set, err := e.seriesSet(ctx, v, withAux(metricNames), dims, schema.DateRange{}, e.opts.Granularity)
	if err != nil {
		return nil, err
	}
	vocab := features.VocabularyOf(set)

	p := pool.NewWithResults[schema.BatchForecast]().WithMaxGoroutines(e.opts.Workers)
	for _, series := range set {
		if !slices.Contains(metricNames, series.Metric) {
			continue
		}
		p.Go(func() schema.BatchForecast {
			out := schema.BatchForecast{Metric: series.Metric, DimensionKey: series.DimensionKey}
			res, err := e.forecastSeries(ctx, v, "forecast", fe, series, auxFor(set, series), vocab, horizon)
			if err != nil {
				out.Err, out.Cause = err.Error(), err
			} else {
				out.Result = &res
			}
			if onDone != nil {
				onDone(out)
			}
			return out
		})
	}
	results := p.Wait()
	sort.Slice(results, func(i, j int) bool {
		if results[i].Metric != results[j].Metric {
			return results[i].Metric < results[j].Metric
		}
		return results[i].DimensionKey < results[j].DimensionKey
	})
	return results, ctx.Err()
}

// revenueTypes are the subscription types forecast separately for revenue.
var revenueTypes = []schema.EventType{schema.SignupEvent, schema.RenewEvent, schema.UpgradeEvent}

// ForecastRevenueByType forecasts revenue for each subscription type and sums them per
// period. Each type is forecast from its first period with revenue; types that never
// earned revenue are left out. If any type fails, the whole breakdown fails with the
// error of the first failing type, so Total never silently misses a component.
func (e *Engine) ForecastRevenueByType(ctx context.Context, horizon int, cfg schema.ModelConfig) (schema.RevenueBreakdown, error) {
	out := schema.RevenueBreakdown{ByType: map[schema.EventType]schema.ForecastResult{}}
	if err := validateHorizon(horizon); err != nil {
		return out, err
	}
	fe, err := forecast.NewEngine(cfg)
	if err != nil {
		return out, invalidArgument("%v", err)
	}
	ctx, v, err := e.begin(ctx)
	if err != nil {
		return out, err
	}
	set, err := e.seriesSet(ctx, v, []schema.MetricName{schema.RevenueMetric}, []schema.Dimension{schema.TypeDimension}, schema.DateRange{}, e.opts.Granularity)
	if err != nil {
		return out, err
	}
	vocab := features.VocabularyOf(set)

	type outcome struct {
		t   schema.EventType
		res schema.ForecastResult
		err error
	}
	p := pool.NewWithResults[outcome]().WithMaxGoroutines(e.opts.Workers)
	for _, t := range revenueTypes {
		series, ok := agg.Find(set, schema.RevenueMetric, schema.DimensionKey(map[schema.Dimension]string{schema.TypeDimension: string(t)}))
		if !ok {
			continue
		}
		series = trimLeadingZeros(series)
		if len(series.Points) == 0 {
			continue
		}
		p.Go(func() outcome {
			res, err := e.forecastSeries(ctx, v, "revenue-forecast", fe, series, nil, vocab, horizon)
			return outcome{t: t, res: res, err: err}
		})
	}
	outcomes := p.Wait()
	if len(outcomes) == 0 {
		return out, errors.Mark(errors.New("revenue forecast failed: no revenue history"), contract.ErrInsufficientHistory)
	}

	var failed error
	for _, t := range revenueTypes {
		for _, o := range outcomes {
			if o.t != t {
				continue
			}
			if o.err != nil {
				logging.Ctx(ctx).Warn().Str("type", string(t)).Err(o.err).Msg("revenue forecast failed")
				if failed == nil {
					failed = errors.Wrapf(o.err, "revenue forecast for %s", t)
				}
				continue
			}
			out.ByType[t] = o.res
		}
	}
	if failed != nil {
		return schema.RevenueBreakdown{ByType: map[schema.EventType]schema.ForecastResult{}}, failed
	}
	out.Total = sumForecasts(lo.Values(out.ByType))
	return out, nil
}

// trimLeadingZeros drops the periods before the first non-zero value.
func trimLeadingZeros(series schema.MetricSeries) schema.MetricSeries {
	first := slices.IndexFunc(series.Points, func(p schema.SeriesPoint) bool { return p.Value != 0 })
	if first < 0 {
		series.Points = nil
		return series
	}
	series.Points = slices.Clone(series.Points[first:])
	return series
}

// inflowMetrics are the flows that add subscriptions in a growth forecast.
var inflowMetrics = []schema.MetricName{schema.SignupsMetric, schema.RenewalsMetric, schema.UpgradesMetric}

// ForecastGrowth forecasts total inflow (signups, renewals and upgrades) against
// cancellations over the horizon. Predictions are clamped at zero and rounded to whole
// events before they are summed. Any failed series fails the summary.
func (e *Engine) ForecastGrowth(ctx context.Context, horizon int, cfg schema.ModelConfig) (schema.GrowthSummary, error) {
	metricNames := append(slices.Clone(inflowMetrics), schema.CancellationsMetric)
	batch, err := e.ForecastBatch(ctx, metricNames, nil, horizon, cfg, nil)
	if err != nil {
		return schema.GrowthSummary{}, err
	}

	byMetric := map[schema.MetricName]schema.ForecastResult{}
	for _, b := range batch {
		if b.Result == nil {
			return schema.GrowthSummary{}, errors.Wrapf(b.Cause, "growth forecast for %s", b.Metric)
		}
		byMetric[b.Metric] = *b.Result
	}

	rounded := func(r schema.ForecastResult) schema.ForecastResult {
		out := r
		out.Points = lo.Map(r.Points, func(p schema.ForecastPoint, _ int) schema.ForecastPoint {
			p.Point = math.Round(math.Max(p.Point, 0))
			return p
		})
		return out
	}
	inflows := make([]schema.ForecastResult, 0, len(inflowMetrics))
	for _, m := range inflowMetrics {
		inflows = append(inflows, rounded(byMetric[m]))
	}
	return summarizeGrowth(horizon, sumForecasts(inflows), rounded(byMetric[schema.CancellationsMetric]).Points), nil
}

// summarizeGrowth totals predicted inflow and churn and finds the churn peak.
func summarizeGrowth(horizon int, inflow, churn []schema.ForecastPoint) schema.GrowthSummary {
	out := schema.GrowthSummary{Horizon: horizon, Inflow: inflow, Churn: churn}
	for _, p := range inflow {
		out.TotalInflow += p.Point
	}
	for i, p := range churn {
		out.TotalChurn += p.Point
		if i == 0 || p.Point > out.PeakChurn {
			out.PeakChurn = p.Point
			out.PeakChurnPeriod = p.Period
		}
	}
	if len(churn) > 0 {
		out.AvgChurn = out.TotalChurn / float64(len(churn))
	}
	out.NetGrowth = out.TotalInflow - out.TotalChurn
	return out
}

// sumForecasts adds forecasts point by point. Bounds are summed only when every
// forecast has them for that period.
func sumForecasts(results []schema.ForecastResult) []schema.ForecastPoint {
	type acc struct {
		point, lower, upper float64
		bounded             bool
		n                   int
	}
	byPeriod := map[time.Time]*acc{}
	for _, r := range results {
		for _, p := range r.Points {
			a, ok := byPeriod[p.Period]
			if !ok {
				a = &acc{bounded: true}
				byPeriod[p.Period] = a
			}
			a.n++
			a.point += p.Point
			if p.Lower != nil && p.Upper != nil {
				a.lower += *p.Lower
				a.upper += *p.Upper
			} else {
				a.bounded = false
			}
		}
	}

	periods := lo.Keys(byPeriod)
	slices.SortFunc(periods, func(a, b time.Time) int { return a.Compare(b) })
	total := make([]schema.ForecastPoint, 0, len(periods))
	for _, p := range periods {
		a := byPeriod[p]
		fp := schema.ForecastPoint{Period: p, Point: a.point, Model: "sum"}
		if a.bounded && a.n == len(results) {
			fp.Lower, fp.Upper = lo.ToPtr(a.lower), lo.ToPtr(a.upper)
		}
		total = append(total, fp)
	}
	return total
}
