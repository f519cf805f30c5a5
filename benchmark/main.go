// Package main provides a performance benchmarking tool for the Subpulse CLI.
// It generates synthetic event files of increasing size, then times each command
// without a cache and with the SQLite event cache, treating the first cached run
// as cold and averaging the rest as warm, and writes the timings as CSV.
//
// Prerequisites:
// - subpulse binary installed and available in PATH
//
// Usage: go run benchmark/main.go [work-dir]
//
//	work-dir: Directory where the synthetic event files are written
package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// BenchmarkResult holds the result of a benchmark run (no-cache average, cold run and average of warm runs).
type BenchmarkResult struct {
	Dataset     string
	Command     string
	NoCacheTime string
	ColdTime    string
	WarmTime    string
}

// BenchmarkConfig holds configuration for the benchmark run.
type BenchmarkConfig struct {
	WorkDir     string
	Timeout     time.Duration
	Workers     int
	NoCacheRuns int
	CacheRuns   int
	Datasets    map[string]int // name -> subscriber count
	Order       []string
	Commands    map[string][]string
}

// benchEvent mirrors the JSON shape the file event backend reads.
type benchEvent struct {
	SubscriberID string `json:"subscriber_id"`
	EventType    string `json:"event_type"`
	Timestamp    string `json:"timestamp"`
	PackageTier  string `json:"package_tier"`
	Location     string `json:"location"`
	Amount       string `json:"amount"`
}

func main() {
	if len(os.Args) != 2 {
		fmt.Printf("Usage: %s [work-dir]\n", os.Args[0])
		os.Exit(1)
	}

	config := BenchmarkConfig{
		WorkDir:     os.Args[1],
		Timeout:     5 * time.Minute,
		Workers:     8,
		NoCacheRuns: 3,
		CacheRuns:   4,
		Datasets:    map[string]int{"small": 1_000, "medium": 20_000, "large": 200_000},
		Order:       []string{"small", "medium", "large"},
		Commands: map[string][]string{
			"series":    {"series", "--metric", "active", "--dimensions", "package,location"},
			"retention": {"retention"},
			"churn":     {"churn", "--limit", "100"},
			"forecast":  {"forecast", "--metric", "signups", "--dimensions", "package", "--horizon", "6"},
		},
	}

	if _, err := exec.LookPath("subpulse"); err != nil {
		fmt.Printf("Prerequisites check failed: subpulse binary not found in PATH\n")
		os.Exit(1)
	}

	fmt.Printf("Clearing cache...\n")
	if output, err := exec.Command("subpulse", "cache", "clear").CombinedOutput(); err != nil {
		fmt.Printf("Warning: failed to clear cache: %v\nOutput: %s\n", err, string(output))
	}

	results := runBenchmarks(config)

	if err := saveResults(results); err != nil {
		fmt.Printf("Failed to save results: %v\n", err)
		os.Exit(1)
	}
	printSummary(results)
}

// generateEvents writes a JSONL file of signups, renewals and cancellations over two years.
func generateEvents(path string, subscribers int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	rng := rand.New(rand.NewPCG(42, uint64(subscribers)))
	tiers := []string{"basic", "standard", "premium"}
	prices := []string{"9.99", "14.99", "19.99"}
	countries := []string{"DE", "FR", "NL", "US", "GB"}
	origin := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range subscribers {
		tier := rng.IntN(len(tiers))
		ev := benchEvent{
			SubscriberID: fmt.Sprintf("s%07d", i),
			PackageTier:  tiers[tier],
			Location:     countries[rng.IntN(len(countries))],
			Amount:       prices[tier],
		}
		at := origin.Add(time.Duration(rng.IntN(700*24)) * time.Hour)
		months := rng.IntN(18)

		ev.EventType, ev.Timestamp = "signup", at.Format(time.DateTime)
		if err := enc.Encode(ev); err != nil {
			return err
		}
		for m := 1; m <= months; m++ {
			ev.EventType, ev.Timestamp = "renew", at.AddDate(0, m, 0).Format(time.DateTime)
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
		if rng.Float64() < 0.4 {
			ev.EventType, ev.Timestamp = "cancel", at.AddDate(0, months, 3).Format(time.DateTime)
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

// runBenchmarks executes all benchmark commands across the generated datasets
func runBenchmarks(config BenchmarkConfig) []BenchmarkResult {
	var results []BenchmarkResult

	fmt.Printf("Starting benchmark: %d datasets, %v timeout, %d workers, no-cache: %d runs, cache: %d runs\n",
		len(config.Datasets), config.Timeout, config.Workers, config.NoCacheRuns, config.CacheRuns)

	for _, name := range config.Order {
		path := filepath.Join(config.WorkDir, "events_"+name+".jsonl")
		if err := generateEvents(path, config.Datasets[name]); err != nil {
			fmt.Printf("Failed to generate %s dataset: %v\n", name, err)
			continue
		}
		fmt.Printf("Benchmarking %s (%d subscribers)\n", name, config.Datasets[name])

		for _, command := range []string{"series", "retention", "churn", "forecast"} {
			results = append(results, runBenchmarkSuite(config, name, path, command))
		}
	}
	return results
}

// runBenchmarkSuite runs both no-cache and cache benchmarks for a command
func runBenchmarkSuite(config BenchmarkConfig, dataset, eventsFile, command string) BenchmarkResult {
	fmt.Printf("Running %s on %s\n", command, dataset)

	runPhase := func(cacheBackend string, numRuns int, phaseName string) (coldTime float64, avgTime string) {
		fmt.Printf("  %s phase (%d runs)\n", phaseName, numRuns)
		cold, times := runBenchmark(config, eventsFile, command, cacheBackend, numRuns)
		if len(times) == 0 {
			return cold, "TIMEOUT"
		}
		var sum float64
		for _, t := range times {
			sum += t
		}
		return cold, fmt.Sprintf("%.3fs", sum/float64(len(times)))
	}

	_, noCacheAvg := runPhase("none", config.NoCacheRuns, "No-cache")
	coldTime, warmAvg := runPhase("sqlite", config.CacheRuns, "Cache")

	coldTimeStr := "TIMEOUT"
	if coldTime > 0 {
		coldTimeStr = fmt.Sprintf("%.3fs", coldTime)
	}

	fmt.Printf("  No-cache average: %s, Cold time: %s, Warm average: %s\n", noCacheAvg, coldTimeStr, warmAvg)

	return BenchmarkResult{
		Dataset:     dataset,
		Command:     command,
		NoCacheTime: noCacheAvg,
		ColdTime:    coldTimeStr,
		WarmTime:    warmAvg,
	}
}

// runBenchmark executes a subpulse command multiple times with the given cache backend and returns cold time and warm times
func runBenchmark(config BenchmarkConfig, eventsFile, command, cacheBackend string, numRuns int) (coldTime float64, warmTimes []float64) {
	args := append([]string{}, config.Commands[command]...)
	args = append(args,
		"--event-backend", "file",
		"--events-file", eventsFile,
		"--start", "2023-01-01",
		"--end", "2025-01-01",
		"--cache-backend", cacheBackend,
		"--workers", fmt.Sprint(config.Workers),
		"--output", "csv",
		"--output-file", os.DevNull,
	)

	var times []float64
	for range numRuns {
		ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
		start := time.Now()
		err := exec.CommandContext(ctx, "subpulse", args...).Run()
		if err == nil {
			times = append(times, time.Since(start).Seconds())
		}
		cancel()
	}

	if len(times) > 0 {
		coldTime = times[0]
		warmTimes = times[1:]
	}
	return
}

// saveResults writes benchmark results to a timestamped CSV file
func saveResults(results []BenchmarkResult) error {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("/tmp/subpulse_benchmark_%s.csv", timestamp)

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close file %s: %v\n", filename, closeErr)
		}
	}()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"dataset", "cmd", "no_cache_avg", "cold_time", "warm_avg"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, result := range results {
		if err := writer.Write([]string{result.Dataset, result.Command, result.NoCacheTime, result.ColdTime, result.WarmTime}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	fmt.Printf("Results saved to %s\n", filename)
	return nil
}

// printSummary displays the final benchmark results summary
func printSummary(results []BenchmarkResult) {
	fmt.Printf("Benchmark complete\n")
	for _, command := range []string{"series", "retention", "churn", "forecast"} {
		fmt.Printf("%s:\n", command)
		for _, result := range results {
			if result.Command == command {
				fmt.Printf("  %-8s: No-cache: %s, Cold: %s, Warm: %s\n", result.Dataset, result.NoCacheTime, result.ColdTime, result.WarmTime)
			}
		}
	}
}
