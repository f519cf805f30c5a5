// Package churn scores the risk that active subscribers cancel.
package churn

import (
	"sort"
	"time"

	"github.com/huangsam/subpulse/core/algo"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/schema"
	"github.com/samber/lo"
)

// FeatureNames are the model columns in row order.
var FeatureNames = []string{
	"last_type",
	"location",
	"recruit_mode",
	"package",
	"converted_from_trial",
	"last_amount_paid",
	"tenure_days",
}

// categorical columns are label encoded against a sorted vocabulary.
var categorical = map[string]func(schema.Subscriber) string{
	"last_type":    func(s schema.Subscriber) string { return string(s.LastType) },
	"location":     func(s schema.Subscriber) string { return s.Location },
	"recruit_mode": func(s schema.Subscriber) string { return s.RecruitMode },
	"package":      func(s schema.Subscriber) string { return s.CurrentTier() },
}

// Options tunes the classifier.
type Options struct {
	Trees        int
	Depth        int
	LearningRate float64
}

// DefaultOptions returns 100 trees of depth 3.
func DefaultOptions() Options {
	return Options{Trees: 100, Depth: 3, LearningRate: 0.1}
}

// Score fits a boosted classifier on every subscriber known at asOf, labelled churned
// when cancelled, and returns the churn risk of those still active. Subscribers must be
// built from events up to asOf. When only one class is present every active subscriber
// gets the base rate.
func Score(subs []schema.Subscriber, asOf time.Time, opts Options) ([]schema.ChurnScore, error) {
	known := lo.Filter(subs, func(s schema.Subscriber, _ int) bool { return !s.FirstEventAt.After(asOf) })
	if len(known) == 0 {
		return nil, nil
	}

	enc := newEncoder(known)
	x := make([][]float64, len(known))
	y := make([]float64, len(known))
	for i, s := range known {
		x[i] = enc.row(s, asOf)
		if s.Status == schema.CancelledStatus {
			y[i] = 1
		}
	}

	var predict func([]float64) float64
	baseRate := algo.Mean(y)
	if baseRate == 0 || baseRate == 1 {
		predict = func([]float64) float64 { return baseRate }
	} else {
		params := algo.DefaultBoostParams()
		params.Loss = algo.LogLoss
		if opts.Trees > 0 {
			params.Trees = opts.Trees
		}
		if opts.Depth > 0 {
			params.Depth = opts.Depth
		}
		if opts.LearningRate > 0 {
			params.LearningRate = opts.LearningRate
		}
		booster, err := algo.FitBooster(x, y, params)
		if err != nil {
			return nil, contract.NewModelFitError("churn", err)
		}
		predict = booster.Predict
	}

	var scores []schema.ChurnScore
	for i, s := range known {
		if s.Status != schema.ActiveStatus {
			continue
		}
		scores = append(scores, schema.ChurnScore{
			SubscriberID: s.ID,
			AsOf:         asOf,
			Risk:         algo.Clamp01(predict(x[i])),
			PackageTier:  s.CurrentTier(),
			Location:     s.Location,
		})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].SubscriberID < scores[j].SubscriberID })
	return scores, nil
}

// encoder maps categorical values to their index in a sorted vocabulary.
type encoder struct {
	vocab map[string]map[string]int
}

func newEncoder(subs []schema.Subscriber) *encoder {
	e := &encoder{vocab: map[string]map[string]int{}}
	for name, get := range categorical {
		values := lo.Uniq(lo.Map(subs, func(s schema.Subscriber, _ int) string { return orUnknown(get(s)) }))
		sort.Strings(values)
		e.vocab[name] = make(map[string]int, len(values))
		for i, v := range values {
			e.vocab[name][v] = i
		}
	}
	return e
}

func (e *encoder) row(s schema.Subscriber, asOf time.Time) []float64 {
	row := make([]float64, 0, len(FeatureNames))
	for _, name := range FeatureNames {
		if get, ok := categorical[name]; ok {
			row = append(row, float64(e.vocab[name][orUnknown(get(s))]))
			continue
		}
		switch name {
		case "converted_from_trial":
			row = append(row, lo.Ternary(s.Origin != nil && s.Origin.Kind == "trial", 1.0, 0.0))
		case "last_amount_paid":
			row = append(row, s.LastAmount.InexactFloat64())
		case "tenure_days":
			row = append(row, tenureDays(s, asOf))
		}
	}
	return row
}

// tenureDays runs from the first activation to the last cancellation, or to asOf for
// active subscribers, clipped at zero.
func tenureDays(s schema.Subscriber, asOf time.Time) float64 {
	end := asOf
	if s.Status == schema.CancelledStatus && len(s.Spans) > 0 {
		if c := s.Spans[len(s.Spans)-1].CancelledAt; !c.IsZero() && c.Before(asOf) {
			end = c
		}
	}
	return contract.CalculateDays(s.FirstEventAt, end)
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
