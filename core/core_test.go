package core

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/iocache"
	"github.com/huangsam/subpulse/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// writeEventsFile stores events as a JSON array in a temp file.
func writeEventsFile(t *testing.T, events []schema.RawEvent) string {
	t.Helper()
	data, err := json.Marshal(events)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// fileConfig reads from eventsFile and writes CSV to a temp file.
func fileConfig(t *testing.T, eventsFile string, start, end time.Time) *contract.Config {
	t.Helper()
	return &contract.Config{
		StartTime:    start,
		EndTime:      end,
		Granularity:  schema.MonthGranularity,
		Metric:       schema.SignupsMetric,
		DimensionKey: schema.TotalDimensionKey,
		Horizon:      2,
		ResultLimit:  10,
		Workers:      2,
		Precision:    2,
		Output:       schema.CSVOut,
		OutputFile:   filepath.Join(t.TempDir(), "out.csv"),
		EventBackend: schema.FileEvents,
		EventsFile:   eventsFile,
		CacheBackend: schema.NoneBackend,
		Model:        seasonalOnly(),
	}
}

func readOutput(t *testing.T, cfg *contract.Config) string {
	t.Helper()
	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	return string(data)
}

func TestExecuteSeries(t *testing.T) {
	cfg := fileConfig(t, writeEventsFile(t, lifecycleEvents()), month(2024, 1), month(2024, 4))
	cfg.Dimensions = []schema.Dimension{schema.PackageDimension}

	mgr := &iocache.MockCacheManager{}
	require.NoError(t, ExecuteSeries(context.Background(), cfg, mgr))

	lines := strings.Split(strings.TrimSpace(readOutput(t, cfg)), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "signups,package=A,month,2024-01,2.00", lines[1], "largest total ranks first")
	assert.Equal(t, "signups,package=B,month,2024-01,2.00", lines[4])
	mgr.AssertExpectations(t)
}

func TestExecuteSeriesSingleKey(t *testing.T) {
	cfg := fileConfig(t, writeEventsFile(t, lifecycleEvents()), month(2024, 1), month(2024, 4))
	cfg.Metric = schema.ActiveMetric
	cfg.DimensionKey = "package=A"

	require.NoError(t, ExecuteSeries(context.Background(), cfg, &iocache.MockCacheManager{}))
	out := readOutput(t, cfg)
	assert.Contains(t, out, "active,package=A,month,2024-02,2.00")
}

func TestExecuteCommands(t *testing.T) {
	tests := []struct {
		name string
		exec ExecutorFunc
	}{
		{"retention", ExecuteRetention},
		{"churn", ExecuteChurn},
		{"volume", ExecuteVolume},
		{"durations", ExecuteDurations},
		{"conversions", ExecuteConversions},
	}
	eventsFile := writeEventsFile(t, lifecycleEvents())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fileConfig(t, eventsFile, month(2024, 1), month(2024, 4))
			cfg.Output = schema.JSONOut
			cfg.OutputFile = filepath.Join(t.TempDir(), tt.name+".json")

			require.NoError(t, tt.exec(context.Background(), cfg, &iocache.MockCacheManager{}))
			assert.True(t, json.Valid([]byte(readOutput(t, cfg))))
		})
	}
}

func TestExecuteChurnLimit(t *testing.T) {
	cfg := fileConfig(t, writeEventsFile(t, lifecycleEvents()), month(2024, 1), month(2024, 4))
	cfg.AsOf = time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	cfg.ResultLimit = 2

	require.NoError(t, ExecuteChurn(context.Background(), cfg, &iocache.MockCacheManager{}))
	lines := strings.Split(strings.TrimSpace(readOutput(t, cfg)), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "1,"))
}

func TestExecuteForecastRecordsRun(t *testing.T) {
	cfg := fileConfig(t, writeEventsFile(t, monthlySignups()), month(2022, 1), month(2024, 7))
	cfg.Dimensions = []schema.Dimension{schema.PackageDimension}

	runs := &iocache.MockRunStore{}
	runs.On("BeginRun", mock.Anything, mock.MatchedBy(func(p map[string]any) bool {
		return p["model_hash"] == cfg.Model.Hash() && p["dimensions"] == "package"
	})).Return(int64(7), nil)
	runs.On("RecordForecast", int64(7), mock.Anything).Return(nil).Twice()
	runs.On("EndRun", int64(7), mock.Anything, 2).Return(nil)
	mgr := &iocache.MockCacheManager{}
	mgr.On("GetRunStore").Return(runs)

	require.NoError(t, ExecuteForecast(context.Background(), cfg, mgr))

	out := readOutput(t, cfg)
	assert.Contains(t, out, "signups,package=A,2024-07,")
	assert.Contains(t, out, "signups,package=B,2024-08,")
	runs.AssertExpectations(t)
	mgr.AssertExpectations(t)
}

func TestExecuteForecastErrors(t *testing.T) {
	t.Run("insufficient history", func(t *testing.T) {
		cfg := fileConfig(t, writeEventsFile(t, lifecycleEvents()), month(2024, 1), month(2024, 4))
		err := ExecuteForecast(context.Background(), cfg, &iocache.MockCacheManager{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, contract.ErrInsufficientHistory))
	})

	t.Run("invalid horizon", func(t *testing.T) {
		cfg := fileConfig(t, writeEventsFile(t, lifecycleEvents()), month(2024, 1), month(2024, 4))
		cfg.Horizon = 0
		err := ExecuteForecast(context.Background(), cfg, &iocache.MockCacheManager{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, contract.ErrDataValidation))
	})

	t.Run("missing events file", func(t *testing.T) {
		cfg := fileConfig(t, filepath.Join(t.TempDir(), "missing.json"), month(2024, 1), month(2024, 4))
		err := ExecuteForecast(context.Background(), cfg, &iocache.MockCacheManager{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open event source")
	})
}

func TestExecuteRevenue(t *testing.T) {
	cfg := fileConfig(t, writeEventsFile(t, monthlySignups()), month(2022, 1), month(2024, 7))
	mgr := &iocache.MockCacheManager{}
	mgr.On("GetRunStore").Return(nil)

	require.NoError(t, ExecuteRevenue(context.Background(), cfg, mgr))
	out := readOutput(t, cfg)
	assert.Contains(t, out, "2024-07,signup,")
	assert.Contains(t, out, "2024-07,total,")
}

func TestExecuteGrowth(t *testing.T) {
	cfg := fileConfig(t, writeEventsFile(t, withCancellations()), month(2022, 1), month(2024, 7))

	require.NoError(t, ExecuteGrowth(context.Background(), cfg, &iocache.MockCacheManager{}))
	lines := strings.Split(strings.TrimSpace(readOutput(t, cfg)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "period,inflow,churn,net", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2024-07,"))
}

func TestExecuteVolumeByLocation(t *testing.T) {
	cfg := fileConfig(t, writeEventsFile(t, lifecycleEvents()), month(2024, 1), month(2024, 4))
	cfg.VolumeValue = schema.RevenueVolume
	cfg.GroupBy = schema.LocationGrouping

	require.NoError(t, ExecuteVolume(context.Background(), cfg, &iocache.MockCacheManager{}))
	lines := strings.Split(strings.TrimSpace(readOutput(t, cfg)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "location,"))
	assert.True(t, strings.HasPrefix(lines[1], "DE,all,revenue,60.00,"), lines[1])
}

func TestExecuteCacheStatus(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		mgr := &iocache.MockCacheManager{}
		mgr.On("GetEventStore").Return(nil)
		mgr.On("GetRunStore").Return(nil)

		var buf bytes.Buffer
		require.NoError(t, ExecuteCacheStatus(&buf, mgr))
		assert.Contains(t, buf.String(), "Event cache is disabled")
		assert.Contains(t, buf.String(), "Run tracking is disabled")
	})

	t.Run("enabled", func(t *testing.T) {
		store := &iocache.MockCacheStore{}
		store.On("GetStatus").Return(schema.CacheStatus{Backend: "sqlite", Connected: true, TotalEntries: 0}, nil)
		runs := &iocache.MockRunStore{}
		runs.On("GetStatus").Return(schema.RunStatus{Backend: "sqlite", Connected: true}, nil)
		mgr := &iocache.MockCacheManager{}
		mgr.On("GetEventStore").Return(store)
		mgr.On("GetRunStore").Return(runs)

		var buf bytes.Buffer
		require.NoError(t, ExecuteCacheStatus(&buf, mgr))
		assert.Contains(t, buf.String(), "Cache Backend: sqlite")
		assert.Contains(t, buf.String(), "Run Backend: sqlite")
	})

	t.Run("store error", func(t *testing.T) {
		runs := &iocache.MockRunStore{}
		runs.On("GetStatus").Return(schema.RunStatus{}, errors.New("boom"))
		mgr := &iocache.MockCacheManager{}
		mgr.On("GetRunStore").Return(runs)

		err := ExecuteRunStatus(&bytes.Buffer{}, mgr)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})
}

func TestSourceID(t *testing.T) {
	assert.Equal(t, "file:/tmp/events.json", sourceID(&contract.Config{EventBackend: schema.FileEvents, EventsFile: "/tmp/events.json"}))
	assert.Equal(t, "mysql:graph_subscription", sourceID(&contract.Config{
		EventBackend:   schema.MySQLEvents,
		EventTable:     contract.DefaultEventTable,
		EventDBConnect: "user:secret@tcp(db:3306)/subs",
	}))
}
