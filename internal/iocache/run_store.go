package iocache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/schema"
)

// Table names for forecast run tracking.
const (
	forecastRunsTable   = "subpulse_forecast_runs"
	forecastPointsTable = "subpulse_forecast_points"
)

// RunStoreImpl records forecast runs and the points they produced.
type RunStoreImpl struct {
	db      *sql.DB
	backend schema.DatabaseBackend
}

var _ contract.RunStore = &RunStoreImpl{} // Compile-time check

// NewRunStore opens the run store on the given backend and creates its tables.
func NewRunStore(backend schema.DatabaseBackend, connStr string) (contract.RunStore, error) {
	if backend == schema.NoneBackend {
		return &RunStoreImpl{backend: backend}, nil
	}

	db, err := openDB(backend, connStr, GetRunDBFilePath())
	if err != nil {
		return nil, err
	}

	for _, query := range []string{getCreateRunsQuery(backend), getCreatePointsQuery(backend)} {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create run tables: %w", err)
		}
	}

	return &RunStoreImpl{db: db, backend: backend}, nil
}

// getCreateRunsQuery returns the CREATE TABLE query for subpulse_forecast_runs.
func getCreateRunsQuery(backend schema.DatabaseBackend) string {
	table := contract.QuoteIdentifier(forecastRunsTable, string(backend))
	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGINT AUTO_INCREMENT PRIMARY KEY,
				start_time DATETIME(6) NOT NULL,
				end_time DATETIME(6),
				run_duration_ms INT,
				total_forecasts INT NOT NULL DEFAULT 0,
				config_params TEXT
			);
		`, table)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGSERIAL PRIMARY KEY,
				start_time TIMESTAMPTZ NOT NULL,
				end_time TIMESTAMPTZ,
				run_duration_ms INT,
				total_forecasts INT NOT NULL DEFAULT 0,
				config_params TEXT
			);
		`, table)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id INTEGER PRIMARY KEY AUTOINCREMENT,
				start_time TEXT NOT NULL,
				end_time TEXT,
				run_duration_ms INTEGER,
				total_forecasts INTEGER NOT NULL DEFAULT 0,
				config_params TEXT
			);
		`, table)
	}
}

// getCreatePointsQuery returns the CREATE TABLE query for subpulse_forecast_points.
func getCreatePointsQuery(backend schema.DatabaseBackend) string {
	table := contract.QuoteIdentifier(forecastPointsTable, string(backend))
	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGINT NOT NULL,
				metric VARCHAR(64) NOT NULL,
				dimension_key VARCHAR(255) NOT NULL,
				period DATETIME(6) NOT NULL,
				point DOUBLE NOT NULL,
				lower_bound DOUBLE,
				upper_bound DOUBLE,
				model VARCHAR(64) NOT NULL,
				PRIMARY KEY (run_id, metric, dimension_key, period)
			);
		`, table)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGINT NOT NULL,
				metric TEXT NOT NULL,
				dimension_key TEXT NOT NULL,
				period TIMESTAMPTZ NOT NULL,
				point DOUBLE PRECISION NOT NULL,
				lower_bound DOUBLE PRECISION,
				upper_bound DOUBLE PRECISION,
				model TEXT NOT NULL,
				PRIMARY KEY (run_id, metric, dimension_key, period)
			);
		`, table)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id INTEGER NOT NULL,
				metric TEXT NOT NULL,
				dimension_key TEXT NOT NULL,
				period TEXT NOT NULL,
				point REAL NOT NULL,
				lower_bound REAL,
				upper_bound REAL,
				model TEXT NOT NULL,
				PRIMARY KEY (run_id, metric, dimension_key, period)
			);
		`, table)
	}
}

// placeholders returns n comma-separated bind parameters for the backend.
func placeholders(backend schema.DatabaseBackend, n int) string {
	parts := make([]string, n)
	for i := range parts {
		if backend == schema.PostgreSQLBackend {
			parts[i] = fmt.Sprintf("$%d", i+1)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}

// BeginRun creates a new forecast run and returns its ID.
func (rs *RunStoreImpl) BeginRun(startTime time.Time, configParams map[string]any) (int64, error) {
	if rs.backend == schema.NoneBackend || rs.db == nil {
		return 0, nil
	}

	configJSON, err := json.Marshal(configParams)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal config params: %w", err)
	}

	table := contract.QuoteIdentifier(forecastRunsTable, string(rs.backend))
	query := fmt.Sprintf(`INSERT INTO %s (start_time, config_params) VALUES (%s)`, table, placeholders(rs.backend, 2))

	var runID int64
	if rs.backend == schema.PostgreSQLBackend {
		err = rs.db.QueryRow(query+" RETURNING run_id", startTime, string(configJSON)).Scan(&runID)
	} else {
		var result sql.Result
		result, err = rs.db.Exec(query, formatTime(startTime, rs.backend), string(configJSON))
		if err == nil {
			runID, err = result.LastInsertId()
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert forecast run: %w", err)
	}
	return runID, nil
}

// EndRun stores the completion time, duration and forecast count of a run.
func (rs *RunStoreImpl) EndRun(runID int64, endTime time.Time, totalForecasts int) error {
	if rs.backend == schema.NoneBackend || rs.db == nil {
		return nil
	}

	table := contract.QuoteIdentifier(forecastRunsTable, string(rs.backend))
	var startTime time.Time
	query := fmt.Sprintf(`SELECT start_time FROM %s WHERE run_id = %s`, table, placeholders(rs.backend, 1))
	if err := rs.db.QueryRow(query, runID).Scan(dbTime{&startTime}); err != nil {
		return fmt.Errorf("failed to get start_time for run %d: %w", runID, err)
	}

	durationMs := endTime.Sub(startTime).Milliseconds()
	var update string
	if rs.backend == schema.PostgreSQLBackend {
		update = fmt.Sprintf(`UPDATE %s SET end_time = $1, run_duration_ms = $2, total_forecasts = $3 WHERE run_id = $4`, table)
	} else {
		update = fmt.Sprintf(`UPDATE %s SET end_time = ?, run_duration_ms = ?, total_forecasts = ? WHERE run_id = ?`, table)
	}
	if _, err := rs.db.Exec(update, formatTime(endTime, rs.backend), durationMs, totalForecasts, runID); err != nil {
		return fmt.Errorf("failed to update forecast run: %w", err)
	}
	return nil
}

// RecordForecast stores every point of a forecast result under runID in one transaction.
func (rs *RunStoreImpl) RecordForecast(runID int64, result schema.ForecastResult) error {
	if rs.backend == schema.NoneBackend || rs.db == nil || len(result.Points) == 0 {
		return nil
	}

	table := contract.QuoteIdentifier(forecastPointsTable, string(rs.backend))
	query := fmt.Sprintf(`INSERT INTO %s (run_id, metric, dimension_key, period, point, lower_bound, upper_bound, model) VALUES (%s)`,
		table, placeholders(rs.backend, 8))

	tx, err := rs.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(query)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare forecast insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, p := range result.Points {
		if _, err := stmt.Exec(runID, string(result.Metric), result.DimensionKey, formatTime(p.Period, rs.backend), p.Point, p.Lower, p.Upper, p.Model); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert forecast point for %s/%s: %w", result.Metric, result.DimensionKey, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit forecast points: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (rs *RunStoreImpl) Close() error {
	if rs.db != nil {
		return rs.db.Close()
	}
	return nil
}

// GetStatus returns status information about the run store.
func (rs *RunStoreImpl) GetStatus() (schema.RunStatus, error) {
	status := schema.RunStatus{
		Backend:    string(rs.backend),
		Connected:  rs.db != nil,
		TableSizes: make(map[string]int64),
	}
	if rs.backend == schema.NoneBackend || rs.db == nil {
		return status, nil
	}

	runs := contract.QuoteIdentifier(forecastRunsTable, string(rs.backend))
	if err := rs.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", runs)).Scan(&status.TotalRuns); err != nil {
		return status, fmt.Errorf("failed to get total runs: %w", err)
	}

	if status.TotalRuns > 0 {
		row := rs.db.QueryRow(fmt.Sprintf("SELECT run_id, start_time FROM %s ORDER BY run_id DESC LIMIT 1", runs))
		if err := row.Scan(&status.LastRunID, dbTime{&status.LastRunTime}); err != nil {
			return status, fmt.Errorf("failed to get last run info: %w", err)
		}
		row = rs.db.QueryRow(fmt.Sprintf("SELECT start_time FROM %s ORDER BY run_id ASC LIMIT 1", runs))
		if err := row.Scan(dbTime{&status.OldestRunTime}); err != nil {
			return status, fmt.Errorf("failed to get oldest run time: %w", err)
		}
		row = rs.db.QueryRow(fmt.Sprintf("SELECT COALESCE(SUM(total_forecasts), 0) FROM %s", runs))
		if err := row.Scan(&status.TotalForecasts); err != nil {
			return status, fmt.Errorf("failed to get total forecasts: %w", err)
		}
	}

	for _, table := range []string{forecastRunsTable, forecastPointsTable} {
		var count int64
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", contract.QuoteIdentifier(table, string(rs.backend)))
		if err := rs.db.QueryRow(query).Scan(&count); err != nil {
			return status, fmt.Errorf("failed to get count for table %s: %w", table, err)
		}
		status.TableSizes[table] = count
	}
	return status, nil
}

// GetAllRuns retrieves all forecast runs ordered by ID.
func (rs *RunStoreImpl) GetAllRuns() ([]schema.RunRecord, error) {
	if rs.backend == schema.NoneBackend || rs.db == nil {
		return nil, nil
	}

	table := contract.QuoteIdentifier(forecastRunsTable, string(rs.backend))
	rows, err := rs.db.Query(fmt.Sprintf(
		"SELECT run_id, start_time, end_time, run_duration_ms, total_forecasts, config_params FROM %s ORDER BY run_id", table))
	if err != nil {
		return nil, fmt.Errorf("failed to query forecast runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.RunRecord
	for rows.Next() {
		var record schema.RunRecord
		var end nullTime
		if err := rows.Scan(&record.RunID, dbTime{&record.StartTime}, &end, &record.RunDurationMs, &record.TotalForecasts, &record.ConfigParams); err != nil {
			return nil, fmt.Errorf("failed to scan forecast run: %w", err)
		}
		if end.Valid {
			record.EndTime = &end.Time
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating forecast runs: %w", err)
	}
	return results, nil
}

// GetAllForecastPoints retrieves all stored forecast points.
func (rs *RunStoreImpl) GetAllForecastPoints() ([]schema.ForecastPointRecord, error) {
	if rs.backend == schema.NoneBackend || rs.db == nil {
		return nil, nil
	}

	table := contract.QuoteIdentifier(forecastPointsTable, string(rs.backend))
	rows, err := rs.db.Query(fmt.Sprintf(`SELECT run_id, metric, dimension_key, period, point, lower_bound, upper_bound, model
		FROM %s ORDER BY run_id, metric, dimension_key, period`, table))
	if err != nil {
		return nil, fmt.Errorf("failed to query forecast points: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.ForecastPointRecord
	for rows.Next() {
		var record schema.ForecastPointRecord
		if err := rows.Scan(&record.RunID, &record.Metric, &record.DimensionKey, dbTime{&record.Period},
			&record.Point, &record.Lower, &record.Upper, &record.Model); err != nil {
			return nil, fmt.Errorf("failed to scan forecast point: %w", err)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating forecast points: %w", err)
	}
	return results, nil
}

// formatTime converts a time.Time to the appropriate format for the backend.
func formatTime(t time.Time, backend schema.DatabaseBackend) any {
	if backend == schema.SQLiteBackend {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t
}

// dbTime scans native timestamps as well as the text form SQLite stores.
type dbTime struct{ t *time.Time }

func (d dbTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d.t = v
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into time", src)
	}
}

func (d dbTime) parse(s string) error {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999", time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			*d.t = t
			return nil
		}
	}
	return fmt.Errorf("unrecognized time format %q", s)
}

// nullTime is dbTime for nullable columns.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(src any) error {
	if src == nil {
		n.Time, n.Valid = time.Time{}, false
		return nil
	}
	n.Valid = true
	return dbTime{&n.Time}.Scan(src)
}
