package algo

import (
	"sort"

	"github.com/huangsam/subpulse/schema"
)

// RankChurnScores sorts scores by risk in descending order and returns the top
// 'limit' entries with their rank and label. If limit is zero or greater than the
// number of scores, all scores are returned in sorted order.
func RankChurnScores(scores []schema.ChurnScore, limit int) []schema.RankedChurnScore {
	ranked := schema.RankChurnScores(scores)
	if limit > 0 && len(ranked) > limit {
		return ranked[:limit]
	}
	return ranked
}

// RankSeries sorts series by their total in descending order and returns the top
// 'limit' series. Ties keep metric then dimension key order.
func RankSeries(series []schema.MetricSeries, limit int) []schema.MetricSeries {
	sorted := append([]schema.MetricSeries(nil), series...)
	schema.SortSeries(sorted)
	totals := make([]float64, len(sorted))
	for i, s := range sorted {
		totals[i] = s.Sum()
	}
	order := make([]int, len(sorted))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return totals[order[i]] > totals[order[j]] })

	ranked := make([]schema.MetricSeries, len(sorted))
	for i, o := range order {
		ranked[i] = sorted[o]
	}
	if limit > 0 && len(ranked) > limit {
		return ranked[:limit]
	}
	return ranked
}
