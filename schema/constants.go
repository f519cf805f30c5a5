// Package schema has the models, enums and period helpers shared by all parts of subpulse.
package schema

// Custom string types for type safety.
type (
	// EventType represents a canonical subscription lifecycle event.
	EventType string

	// Granularity represents the period size of a metric series.
	Granularity string

	// Dimension represents a grouping attribute of a metric series.
	Dimension string

	// MetricName represents a metric computed by the aggregator.
	MetricName string

	// MetricKind tells whether a metric is a per-period flow or a point-in-time stock.
	MetricKind string

	// ModelName represents a forecasting sub-model.
	ModelName string

	// CombinerName represents the policy used to reconcile sub-model estimates.
	CombinerName string

	// EncodingMode represents how categorical dimensions become features.
	EncodingMode string

	// OutputMode represents the format of the output.
	OutputMode string

	// SubscriberStatus represents the status of a subscriber at the end of observation.
	SubscriberStatus string

	// DatabaseBackend represents the database backend for caching and tracking.
	DatabaseBackend string

	// EventBackend represents where raw events are fetched from.
	EventBackend string

	// VolumeValue represents what a volume report adds up.
	VolumeValue string

	// VolumeGrouping represents how a volume report splits events.
	VolumeGrouping string
)

// All canonical event types.
const (
	SignupEvent    EventType = "signup"
	RenewEvent     EventType = "renew"
	UpgradeEvent   EventType = "upgrade"
	DowngradeEvent EventType = "downgrade"
	CancelEvent    EventType = "cancel"
)

// All granularities supported.
const (
	DayGranularity   Granularity = "day"
	MonthGranularity Granularity = "month" // default
)

// All dimensions supported.
const (
	PackageDimension  Dimension = "package"
	LocationDimension Dimension = "location"
	TypeDimension     Dimension = "type"
)

// All metrics supported.
const (
	SignupsMetric       MetricName = "signups"
	RenewalsMetric      MetricName = "renewals"
	UpgradesMetric      MetricName = "upgrades"
	DowngradesMetric    MetricName = "downgrades"
	CancellationsMetric MetricName = "cancellations"
	RevenueMetric       MetricName = "revenue"
	ActiveMetric        MetricName = "active"
)

// Metric kinds. Flow gaps are zero-filled, stock gaps are carried forward.
const (
	FlowKind  MetricKind = "flow"
	StockKind MetricKind = "stock"
)

// All forecasting models supported.
const (
	SeasonalModel ModelName = "seasonal"
	GBRTModel     ModelName = "gbrt"
)

// All combiners supported.
const (
	MeanCombiner   CombinerName = "mean" // default
	MedianCombiner CombinerName = "median"
)

// All encodings supported.
const (
	OneHotEncoding  EncodingMode = "onehot" // default
	OrdinalEncoding EncodingMode = "ordinal"
)

// All output modes supported.
const (
	CSVOut     OutputMode = "csv"
	TextOut    OutputMode = "text" // default
	JSONOut    OutputMode = "json"
	ParquetOut OutputMode = "parquet"
)

// All subscriber statuses.
const (
	ActiveStatus    SubscriberStatus = "active"
	CancelledStatus SubscriberStatus = "cancelled"
)

// All cache backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite" // default
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	NoneBackend       DatabaseBackend = "none"
)

// All event backends supported.
const (
	MySQLEvents      EventBackend = "mysql" // default
	PostgreSQLEvents EventBackend = "postgresql"
	SQLiteEvents     EventBackend = "sqlite"
	FileEvents       EventBackend = "file"
)

// All volume values supported.
const (
	CountVolume   VolumeValue = "count" // default
	RevenueVolume VolumeValue = "revenue"
)

// All volume groupings supported.
const (
	MonthGrouping    VolumeGrouping = "month" // default
	LocationGrouping VolumeGrouping = "location"
)

// TotalDimensionKey is the key of a series aggregated without dimensions.
const TotalDimensionKey = "total"

// AllEventTypes lists the canonical event types in lifecycle order.
var AllEventTypes = []EventType{SignupEvent, RenewEvent, UpgradeEvent, DowngradeEvent, CancelEvent}

// AllMetrics lists every metric the aggregator can produce.
var AllMetrics = []MetricName{SignupsMetric, RenewalsMetric, UpgradesMetric, DowngradesMetric, CancellationsMetric, RevenueMetric, ActiveMetric}

// AllDimensions lists every dimension in canonical key order.
var AllDimensions = []Dimension{PackageDimension, LocationDimension, TypeDimension}

// ValidGranularities lists all valid granularities.
var ValidGranularities = map[Granularity]struct{}{
	DayGranularity:   {},
	MonthGranularity: {},
}

// ValidDimensions lists all valid dimensions.
var ValidDimensions = map[Dimension]struct{}{
	PackageDimension:  {},
	LocationDimension: {},
	TypeDimension:     {},
}

// ValidMetrics lists all valid metrics.
var ValidMetrics = map[MetricName]struct{}{
	SignupsMetric:       {},
	RenewalsMetric:      {},
	UpgradesMetric:      {},
	DowngradesMetric:    {},
	CancellationsMetric: {},
	RevenueMetric:       {},
	ActiveMetric:        {},
}

// ValidModels lists all valid forecasting models.
var ValidModels = map[ModelName]struct{}{
	SeasonalModel: {},
	GBRTModel:     {},
}

// ValidCombiners lists all valid combiners.
var ValidCombiners = map[CombinerName]struct{}{
	MeanCombiner:   {},
	MedianCombiner: {},
}

// ValidEncodings lists all valid encodings.
var ValidEncodings = map[EncodingMode]struct{}{
	OneHotEncoding:  {},
	OrdinalEncoding: {},
}

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	CSVOut:     {},
	TextOut:    {},
	JSONOut:    {},
	ParquetOut: {},
}

// ValidDatabaseBackends lists all valid cache backends.
var ValidDatabaseBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}

// ValidEventBackends lists all valid event backends.
var ValidEventBackends = map[EventBackend]struct{}{
	MySQLEvents:      {},
	PostgreSQLEvents: {},
	SQLiteEvents:     {},
	FileEvents:       {},
}

// ValidVolumeValues lists all valid volume values.
var ValidVolumeValues = map[VolumeValue]struct{}{
	CountVolume:   {},
	RevenueVolume: {},
}

// ValidVolumeGroupings lists all valid volume groupings.
var ValidVolumeGroupings = map[VolumeGrouping]struct{}{
	MonthGrouping:    {},
	LocationGrouping: {},
}

// KindOf returns the gap-filling kind of a metric.
func KindOf(metric MetricName) MetricKind {
	if metric == ActiveMetric {
		return StockKind
	}
	return FlowKind
}

// IsActivating reports whether the event type starts or extends an active subscription.
func (t EventType) IsActivating() bool {
	switch t {
	case SignupEvent, RenewEvent, UpgradeEvent, DowngradeEvent:
		return true
	default:
		return false
	}
}

// IsPaid reports whether the event type carries a payment.
func (t EventType) IsPaid() bool {
	switch t {
	case SignupEvent, RenewEvent, UpgradeEvent:
		return true
	default:
		return false
	}
}

// CountMetric returns the flow metric that counts events of this type.
func (t EventType) CountMetric() MetricName {
	switch t {
	case SignupEvent:
		return SignupsMetric
	case RenewEvent:
		return RenewalsMetric
	case UpgradeEvent:
		return UpgradesMetric
	case DowngradeEvent:
		return DowngradesMetric
	default:
		return CancellationsMetric
	}
}
