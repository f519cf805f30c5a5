package iocache

import (
	"fmt"
	"io"
	"sort"

	"github.com/huangsam/subpulse/schema"
)

const statusTimeLayout = "2006-01-02 15:04:05"

// PrintCacheStatus prints event cache status information.
func PrintCacheStatus(w io.Writer, status schema.CacheStatus) {
	_, _ = fmt.Fprintf(w, "Cache Backend: %s\n", status.Backend)
	_, _ = fmt.Fprintf(w, "Connected: %t\n", status.Connected)
	if !status.Connected {
		return
	}
	_, _ = fmt.Fprintf(w, "Total Entries: %d\n", status.TotalEntries)
	if status.TotalEntries > 0 {
		_, _ = fmt.Fprintf(w, "Last Entry: %s\n", status.LastEntryTime.Format(statusTimeLayout))
		_, _ = fmt.Fprintf(w, "Oldest Entry: %s\n", status.OldestEntryTime.Format(statusTimeLayout))
	}
	_, _ = fmt.Fprintf(w, "Table Size: %d bytes\n", status.TableSizeBytes)
}

// PrintRunStatus prints forecast run store status information.
func PrintRunStatus(w io.Writer, status schema.RunStatus) {
	_, _ = fmt.Fprintf(w, "Run Backend: %s\n", status.Backend)
	_, _ = fmt.Fprintf(w, "Connected: %t\n", status.Connected)
	if !status.Connected {
		return
	}
	_, _ = fmt.Fprintf(w, "Total Runs: %d\n", status.TotalRuns)
	if status.TotalRuns > 0 {
		_, _ = fmt.Fprintf(w, "Last Run ID: %d\n", status.LastRunID)
		_, _ = fmt.Fprintf(w, "Last Run: %s\n", status.LastRunTime.Format(statusTimeLayout))
		_, _ = fmt.Fprintf(w, "Oldest Run: %s\n", status.OldestRunTime.Format(statusTimeLayout))
		_, _ = fmt.Fprintf(w, "Total Forecasts: %d\n", status.TotalForecasts)
	}
	tables := make([]string, 0, len(status.TableSizes))
	for table := range status.TableSizes {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	_, _ = fmt.Fprintln(w, "Table Sizes:")
	for _, table := range tables {
		_, _ = fmt.Fprintf(w, "  %s: %d rows\n", table, status.TableSizes[table])
	}
}

// PrintResultCacheStatus prints the in-process result cache counters.
func PrintResultCacheStatus(w io.Writer, status schema.ResultCacheStatus) {
	limit := "unbounded"
	if status.MaxEntries > 0 {
		limit = fmt.Sprint(status.MaxEntries)
	}
	_, _ = fmt.Fprintf(w, "Result Cache Entries: %d (limit %s)\n", status.Entries, limit)
	_, _ = fmt.Fprintf(w, "In Flight: %d\n", status.InFlight)
	total := status.Hits + status.Misses
	ratio := 0.0
	if total > 0 {
		ratio = float64(status.Hits) / float64(total) * 100
	}
	_, _ = fmt.Fprintf(w, "Hits: %d Misses: %d (%.1f%% hit rate)\n", status.Hits, status.Misses, ratio)
}
