package forecast

import (
	"github.com/cockroachdb/errors"
	"github.com/huangsam/subpulse/core/algo"
	"github.com/huangsam/subpulse/schema"
)

// Combiner reduces per-model estimates to one point.
type Combiner interface {
	Name() schema.CombinerName
	Combine(values []float64) float64
}

type meanCombiner struct{}

func (meanCombiner) Name() schema.CombinerName        { return schema.MeanCombiner }
func (meanCombiner) Combine(values []float64) float64 { return algo.Mean(values) }

type medianCombiner struct{}

func (medianCombiner) Name() schema.CombinerName        { return schema.MedianCombiner }
func (medianCombiner) Combine(values []float64) float64 { return algo.Median(values) }

var combiners = map[schema.CombinerName]Combiner{
	schema.MeanCombiner:   meanCombiner{},
	schema.MedianCombiner: medianCombiner{},
}

// CombinerFor returns the combiner registered under name. An empty name is the mean.
func CombinerFor(name schema.CombinerName) (Combiner, error) {
	if name == "" {
		name = schema.MeanCombiner
	}
	c, ok := combiners[name]
	if !ok {
		return nil, errors.Newf("unknown combiner %q", name)
	}
	return c, nil
}
