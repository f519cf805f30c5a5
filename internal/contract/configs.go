package contract

import (
	"fmt"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/huangsam/subpulse/schema"
)

// Default values for configuration.
const (
	DefaultLookbackMonths  = 24
	DefaultResultLimit     = 25
	MaxResultLimit         = 10000
	DefaultPrecision       = 1
	DefaultHorizon         = 6
	MaxHorizon             = 366
	DefaultEventTable      = "graph_subscription"
	DefaultCacheMaxAge     = 24 * time.Hour
	DefaultIntervalLevel   = 0.8
	DefaultMongoDatabase   = "subpulse"
	DefaultMongoCollection = "configs"
)

// DefaultWorkers is the default number of concurrent workers to use.
var DefaultWorkers = runtime.GOMAXPROCS(0)

// DateTimeFormat is the default date time representation.
var DateTimeFormat = time.RFC3339

// ProfileConfig holds profiling settings.
type ProfileConfig struct {
	Enabled bool
	Prefix  string
}

// Config holds the runtime configuration.
// This struct is the "final, validated" config.
type Config struct {
	StartTime   time.Time
	EndTime     time.Time
	Granularity schema.Granularity
	Dimensions  []schema.Dimension

	Metric       schema.MetricName
	DimensionKey string
	Horizon      int
	CohortKey    time.Time
	AsOf         time.Time
	EventType    string
	VolumeValue  schema.VolumeValue
	GroupBy      schema.VolumeGrouping

	ResultLimit int
	Workers     int
	Precision   int
	Output      schema.OutputMode
	OutputFile  string
	Width       int // Terminal width override (0 = auto-detect)
	UseColors   bool

	EventBackend    schema.EventBackend
	EventDBConnect  string // Please use env var as this is plaintext
	EventTable      string
	EventsFile      string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	CacheBackend    schema.DatabaseBackend
	CacheDBConnect  string // Please use env var as this is plaintext
	CacheMaxAge     time.Duration
	ResultCacheSize int

	RunBackend   schema.DatabaseBackend
	RunDBConnect string // Please use env var as this is plaintext

	Model schema.ModelConfig

	LogLevel  string
	LogFormat string
	Addr      string
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// --- Window ---
	Start       string `mapstructure:"start"`
	End         string `mapstructure:"end"`
	Granularity string `mapstructure:"granularity"`
	Dimensions  string `mapstructure:"dimensions"`

	// --- Query ---
	Metric       string `mapstructure:"metric"`
	DimensionKey string `mapstructure:"dimension-key"`
	Horizon      int    `mapstructure:"horizon"`
	Cohort       string `mapstructure:"cohort"`
	AsOf         string `mapstructure:"as-of"`
	EventType    string `mapstructure:"event-type"`
	Value        string `mapstructure:"value"`
	GroupBy      string `mapstructure:"group-by"`

	// --- Output ---
	Limit      int    `mapstructure:"limit"`
	Workers    int    `mapstructure:"workers"`
	Precision  int    `mapstructure:"precision"`
	Output     string `mapstructure:"output"`
	OutputFile string `mapstructure:"output-file"`
	Width      int    `mapstructure:"width"`
	Color      string `mapstructure:"color"`

	// --- Event store ---
	EventBackend    string `mapstructure:"event-backend"`
	EventDBConnect  string `mapstructure:"event-db-connect"`
	EventTable      string `mapstructure:"event-table"`
	EventsFile      string `mapstructure:"events-file"`
	MongoURI        string `mapstructure:"mongo-uri"`
	MongoDatabase   string `mapstructure:"mongo-db"`
	MongoCollection string `mapstructure:"mongo-collection"`

	// --- Caches ---
	CacheBackend    string `mapstructure:"cache-backend"`
	CacheDBConnect  string `mapstructure:"cache-db-connect"`
	CacheMaxAge     string `mapstructure:"cache-max-age"`
	ResultCacheSize int    `mapstructure:"result-cache-size"`

	// --- Run tracking ---
	RunBackend   string `mapstructure:"run-backend"`
	RunDBConnect string `mapstructure:"run-db-connect"`

	// --- Forecasting ---
	Models            string  `mapstructure:"models"`
	Combiner          string  `mapstructure:"combiner"`
	SeasonLength      int     `mapstructure:"season-length"`
	Lags              string  `mapstructure:"lags"`
	Windows           string  `mapstructure:"windows"`
	Trees             int     `mapstructure:"trees"`
	Depth             int     `mapstructure:"depth"`
	LearningRate      float64 `mapstructure:"learning-rate"`
	Lambda            float64 `mapstructure:"lambda"`
	IntervalLevel     float64 `mapstructure:"interval-level"`
	ResidualIntervals bool    `mapstructure:"residual-intervals"`
	RemoveOutliers    bool    `mapstructure:"remove-outliers"`
	AllowMissingLags  bool    `mapstructure:"allow-missing-lags"`
	Encoding          string  `mapstructure:"encoding"`
	Holidays          string  `mapstructure:"holidays"`

	// --- Logging and serving ---
	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`
	Addr      string `mapstructure:"addr"`
}

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Dimensions = slices.Clone(c.Dimensions)
	clone.Model.Models = slices.Clone(c.Model.Models)
	clone.Model.Lags = slices.Clone(c.Model.Lags)
	clone.Model.Windows = slices.Clone(c.Model.Windows)
	clone.Model.Holidays = slices.Clone(c.Model.Holidays)
	return &clone
}

// CloneWithTimeWindow creates a copy of the Config and sets the new StartTime and EndTime.
func (c *Config) CloneWithTimeWindow(start time.Time, end time.Time) *Config {
	clone := c.Clone()
	clone.StartTime = start
	clone.EndTime = end
	return clone
}

// Window returns the configured time window as a half-open range.
func (c *Config) Window() schema.DateRange {
	return schema.NewDateRange(c.StartTime, c.EndTime)
}

// ProcessAndValidate performs all parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := processTimeRange(cfg, input); err != nil {
		return err
	}
	if err := processQuery(cfg, input); err != nil {
		return err
	}
	if err := processEventSource(cfg, input); err != nil {
		return err
	}
	if err := validateBackendConfigs(cfg, input); err != nil {
		return err
	}
	if err := processModelConfig(cfg, input); err != nil {
		return err
	}
	return nil
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	}
	return nil
}

// validateBackendConfigs validates cache and run backend configurations.
func validateBackendConfigs(cfg *Config, input *ConfigRawInput) error {
	// --- Cache Backend Validation ---
	cfg.CacheBackend = schema.DatabaseBackend(strings.ToLower(input.CacheBackend))
	if _, ok := schema.ValidDatabaseBackends[cfg.CacheBackend]; !ok {
		return fmt.Errorf("invalid cache backend '%s'. must be sqlite, mysql, postgresql, none", input.CacheBackend)
	}
	cfg.CacheDBConnect = input.CacheDBConnect
	if err := ValidateDatabaseConnectionString(cfg.CacheBackend, cfg.CacheDBConnect); err != nil {
		return err
	}

	cfg.CacheMaxAge = DefaultCacheMaxAge
	if input.CacheMaxAge != "" {
		maxAge, err := ParseHumanDuration(input.CacheMaxAge)
		if err != nil {
			return fmt.Errorf("invalid --cache-max-age: %w", err)
		}
		cfg.CacheMaxAge = maxAge
	}

	if input.ResultCacheSize < 0 {
		return fmt.Errorf("result-cache-size cannot be negative (received %d)", input.ResultCacheSize)
	}
	cfg.ResultCacheSize = input.ResultCacheSize

	// --- Run Backend Validation ---
	cfg.RunBackend = schema.DatabaseBackend(strings.ToLower(input.RunBackend))
	if cfg.RunBackend == "" {
		return nil
	}
	if _, ok := schema.ValidDatabaseBackends[cfg.RunBackend]; !ok {
		return fmt.Errorf("invalid run backend '%s'. must be sqlite, mysql, postgresql, none", input.RunBackend)
	}
	cfg.RunDBConnect = input.RunDBConnect
	if err := ValidateDatabaseConnectionString(cfg.RunBackend, cfg.RunDBConnect); err != nil {
		return err
	}

	// Cache and runs must not share one SQLite file
	if cfg.CacheBackend == schema.SQLiteBackend && cfg.RunBackend == schema.SQLiteBackend {
		cacheDBPath := cfg.CacheDBConnect
		if cacheDBPath == "" {
			cacheDBPath = GetCacheDBFilePath()
		}
		runDBPath := cfg.RunDBConnect
		if runDBPath == "" {
			runDBPath = GetRunDBFilePath()
		}
		if cacheDBPath == runDBPath {
			return fmt.Errorf("cache and run storage must use different SQLite database files. Both resolve to %q", cacheDBPath)
		}
	}

	return nil
}

// validateSimpleInputs processes and validates the output related fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	cfg.OutputFile = input.OutputFile
	cfg.Width = input.Width
	cfg.LogLevel = strings.ToLower(input.LogLevel)
	cfg.LogFormat = strings.ToLower(input.LogFormat)
	cfg.Addr = input.Addr

	colors, err := ParseBoolString(input.Color)
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	if input.Limit <= 0 || input.Limit > MaxResultLimit {
		return fmt.Errorf("limit must be greater than 0 and cannot exceed %d (received %d)", MaxResultLimit, input.Limit)
	}
	cfg.ResultLimit = input.Limit

	if input.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0 (received %d)", input.Workers)
	}
	cfg.Workers = input.Workers

	if input.Precision < 1 || input.Precision > 4 {
		return fmt.Errorf("precision must be between 1 and 4 (received %d)", input.Precision)
	}
	cfg.Precision = input.Precision

	cfg.Output = schema.OutputMode(strings.ToLower(input.Output))
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, csv, json, parquet", input.Output)
	}
	if cfg.Output == schema.ParquetOut && cfg.OutputFile == "" {
		return fmt.Errorf("--output-file is required for parquet output")
	}

	return nil
}

// processTimeRange handles the date parsing, granularity and dimension validation.
func processTimeRange(cfg *Config, input *ConfigRawInput) error {
	now := time.Now().UTC()
	cfg.EndTime = now
	cfg.StartTime = now.AddDate(0, -DefaultLookbackMonths, 0)

	if input.Start != "" {
		t, err := ParseTimeInput(input.Start, now)
		if err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
		cfg.StartTime = t
	}
	if input.End != "" {
		t, err := ParseTimeInput(input.End, now)
		if err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
		cfg.EndTime = t
	}
	if !cfg.StartTime.Before(cfg.EndTime) {
		return fmt.Errorf("start time (%s) must be before end time (%s)", cfg.StartTime.Format(DateTimeFormat), cfg.EndTime.Format(DateTimeFormat))
	}

	cfg.Granularity = schema.Granularity(strings.ToLower(input.Granularity))
	if _, ok := schema.ValidGranularities[cfg.Granularity]; !ok {
		return fmt.Errorf("invalid granularity '%s'. must be day, month", input.Granularity)
	}

	cfg.Dimensions = nil
	for part := range strings.SplitSeq(input.Dimensions, ",") {
		d := schema.Dimension(strings.ToLower(strings.TrimSpace(part)))
		if d == "" {
			continue
		}
		if _, ok := schema.ValidDimensions[d]; !ok {
			return fmt.Errorf("invalid dimension '%s'. must be package, location, type", d)
		}
		if !slices.Contains(cfg.Dimensions, d) {
			cfg.Dimensions = append(cfg.Dimensions, d)
		}
	}
	return nil
}

// processQuery handles the per-command query parameters.
func processQuery(cfg *Config, input *ConfigRawInput) error {
	cfg.Metric = schema.ActiveMetric
	if input.Metric != "" {
		cfg.Metric = schema.MetricName(strings.ToLower(input.Metric))
		if _, ok := schema.ValidMetrics[cfg.Metric]; !ok {
			return fmt.Errorf("invalid metric '%s'", input.Metric)
		}
	}

	cfg.DimensionKey = strings.TrimSpace(input.DimensionKey)
	if cfg.DimensionKey == "" {
		cfg.DimensionKey = schema.TotalDimensionKey
	}

	cfg.Horizon = DefaultHorizon
	if input.Horizon != 0 {
		if input.Horizon < 0 || input.Horizon > MaxHorizon {
			return fmt.Errorf("horizon must be between 1 and %d (received %d)", MaxHorizon, input.Horizon)
		}
		cfg.Horizon = input.Horizon
	}

	cfg.CohortKey = time.Time{}
	if input.Cohort != "" {
		key, err := schema.ParsePeriod(input.Cohort, cfg.Granularity)
		if err != nil {
			return fmt.Errorf("invalid cohort: %w", err)
		}
		cfg.CohortKey = key
	}

	cfg.AsOf = cfg.EndTime
	if input.AsOf != "" {
		t, err := ParseTimeInput(input.AsOf, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("invalid --as-of: %w", err)
		}
		cfg.AsOf = t
	}

	cfg.EventType = strings.ToLower(strings.TrimSpace(input.EventType))

	cfg.VolumeValue = schema.CountVolume
	if input.Value != "" {
		cfg.VolumeValue = schema.VolumeValue(strings.ToLower(input.Value))
		if _, ok := schema.ValidVolumeValues[cfg.VolumeValue]; !ok {
			return fmt.Errorf("invalid value '%s'. must be count or revenue", input.Value)
		}
	}

	cfg.GroupBy = schema.MonthGrouping
	if input.GroupBy != "" {
		cfg.GroupBy = schema.VolumeGrouping(strings.ToLower(input.GroupBy))
		if _, ok := schema.ValidVolumeGroupings[cfg.GroupBy]; !ok {
			return fmt.Errorf("invalid group-by '%s'. must be month or location", input.GroupBy)
		}
	}
	return nil
}

// VolumeQuery returns the volume report selected by the window and volume flags.
func (c *Config) VolumeQuery() schema.VolumeQuery {
	return schema.VolumeQuery{
		Range:     c.Window(),
		EventType: schema.EventType(c.EventType),
		Value:     c.VolumeValue,
		GroupBy:   c.GroupBy,
	}
}

// processEventSource validates where raw events come from.
func processEventSource(cfg *Config, input *ConfigRawInput) error {
	cfg.EventBackend = schema.EventBackend(strings.ToLower(input.EventBackend))
	if _, ok := schema.ValidEventBackends[cfg.EventBackend]; !ok {
		return fmt.Errorf("invalid event backend '%s'. must be mysql, postgresql, sqlite, file", input.EventBackend)
	}
	cfg.EventDBConnect = input.EventDBConnect
	cfg.EventsFile = input.EventsFile
	cfg.MongoURI = input.MongoURI
	cfg.MongoDatabase = input.MongoDatabase
	cfg.MongoCollection = input.MongoCollection
	cfg.EventTable = input.EventTable
	if cfg.EventTable == "" {
		cfg.EventTable = DefaultEventTable
	}
	if cfg.EventBackend == schema.FileEvents && cfg.EventsFile == "" {
		return fmt.Errorf("--events-file is required when using the file event backend")
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = DefaultMongoDatabase
	}
	if cfg.MongoCollection == "" {
		cfg.MongoCollection = DefaultMongoCollection
	}
	return nil
}

// processModelConfig builds the forecasting configuration.
func processModelConfig(cfg *Config, input *ConfigRawInput) error {
	mc := schema.DefaultModelConfig()

	if input.Models != "" {
		mc.Models = nil
		for part := range strings.SplitSeq(input.Models, ",") {
			m := schema.ModelName(strings.ToLower(strings.TrimSpace(part)))
			if m == "" {
				continue
			}
			if _, ok := schema.ValidModels[m]; !ok {
				return fmt.Errorf("invalid model '%s'. must be seasonal, gbrt", m)
			}
			if !slices.Contains(mc.Models, m) {
				mc.Models = append(mc.Models, m)
			}
		}
		if len(mc.Models) == 0 {
			return fmt.Errorf("at least one model is required")
		}
	}

	if input.Combiner != "" {
		mc.Combiner = schema.CombinerName(strings.ToLower(input.Combiner))
		if _, ok := schema.ValidCombiners[mc.Combiner]; !ok {
			return fmt.Errorf("invalid combiner '%s'. must be mean, median", input.Combiner)
		}
	}

	if input.Encoding != "" {
		mc.Encoding = schema.EncodingMode(strings.ToLower(input.Encoding))
		if _, ok := schema.ValidEncodings[mc.Encoding]; !ok {
			return fmt.Errorf("invalid encoding '%s'. must be onehot, ordinal", input.Encoding)
		}
	}

	if input.SeasonLength < 0 {
		return fmt.Errorf("season-length cannot be negative (received %d)", input.SeasonLength)
	}
	mc.SeasonLength = input.SeasonLength

	var err error
	if mc.Lags, err = parseIntList(input.Lags, "lags"); err != nil {
		return err
	}
	if mc.Windows, err = parseIntList(input.Windows, "windows"); err != nil {
		return err
	}

	if input.Trees != 0 {
		if input.Trees < 1 || input.Trees > 5000 {
			return fmt.Errorf("trees must be between 1 and 5000 (received %d)", input.Trees)
		}
		mc.Trees = input.Trees
	}
	if input.Depth != 0 {
		if input.Depth < 1 || input.Depth > 12 {
			return fmt.Errorf("depth must be between 1 and 12 (received %d)", input.Depth)
		}
		mc.Depth = input.Depth
	}
	if input.LearningRate != 0 {
		if input.LearningRate <= 0 || input.LearningRate > 1 {
			return fmt.Errorf("learning-rate must be in (0, 1] (received %.3f)", input.LearningRate)
		}
		mc.LearningRate = input.LearningRate
	}
	if input.Lambda != 0 {
		if input.Lambda < 0 {
			return fmt.Errorf("lambda cannot be negative (received %.3f)", input.Lambda)
		}
		mc.Lambda = input.Lambda
	}
	if input.IntervalLevel != 0 {
		if input.IntervalLevel <= 0 || input.IntervalLevel >= 1 {
			return fmt.Errorf("interval-level must be in (0, 1) (received %.3f)", input.IntervalLevel)
		}
		mc.IntervalLevel = input.IntervalLevel
	}

	mc.ResidualIntervals = input.ResidualIntervals
	mc.RemoveOutliers = input.RemoveOutliers
	mc.AllowMissingLags = input.AllowMissingLags

	for part := range strings.SplitSeq(input.Holidays, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		day, err := time.Parse(time.DateOnly, part)
		if err != nil {
			return fmt.Errorf("invalid holiday '%s'. expected YYYY-MM-DD", part)
		}
		mc.Holidays = append(mc.Holidays, day)
	}

	cfg.Model = mc
	return nil
}

// parseIntList parses "1,7,28" into positive integers.
func parseIntList(s, name string) ([]int, error) {
	var out []int
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid %s value '%s'. must be positive integers", name, part)
		}
		out = append(out, v)
	}
	return out, nil
}

// ProcessProfilingConfig handles the profiling flag and sets up profiling configuration.
func ProcessProfilingConfig(profile *ProfileConfig, profilePrefix string) error {
	if profilePrefix != "" {
		profile.Enabled = true
		profile.Prefix = profilePrefix
	}
	return nil
}
