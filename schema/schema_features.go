package schema

import "time"

// FeatureRow is one training or prediction example for a series period.
type FeatureRow struct {
	Period       time.Time `json:"period"`
	DimensionKey string    `json:"dimension_key"`
	Target       float64   `json:"target"`
	Values       []float64 `json:"values"`
}

// FeatureSet is a feature matrix with shared column names.
type FeatureSet struct {
	Names []string     `json:"names"`
	Rows  []FeatureRow `json:"rows"`
}

// Matrix returns the feature values and targets as plain slices.
func (fs FeatureSet) Matrix() ([][]float64, []float64) {
	x := make([][]float64, len(fs.Rows))
	y := make([]float64, len(fs.Rows))
	for i, r := range fs.Rows {
		x[i] = r.Values
		y[i] = r.Target
	}
	return x, y
}

// Index returns the column position of a feature name, or -1.
func (fs FeatureSet) Index(name string) int {
	for i, n := range fs.Names {
		if n == name {
			return i
		}
	}
	return -1
}
