package algo

import (
	"math"
	"sort"

	"github.com/samber/lo"
)

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return lo.Sum(values) / float64(len(values))
}

// Variance returns the population variance, or 0 for fewer than two values.
func Variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := Mean(values)
	var ss float64
	for _, v := range values {
		ss += (v - m) * (v - m)
	}
	return ss / float64(len(values))
}

// StdDev returns the population standard deviation.
func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

// Quantile returns the q-th quantile using linear interpolation between order statistics.
// The input is not modified.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sortedQuantile(sorted, q)
}

func sortedQuantile(sorted []float64, q float64) float64 {
	q = max(0, min(1, q))
	pos := q * float64(len(sorted)-1)
	below := int(math.Floor(pos))
	above := int(math.Ceil(pos))
	if below == above {
		return sorted[below]
	}
	frac := pos - float64(below)
	return sorted[below]*(1-frac) + sorted[above]*frac
}

// Median returns the 0.5 quantile.
func Median(values []float64) float64 {
	return Quantile(values, 0.5)
}

// Modes returns up to k most frequent values, most frequent first and ties by value.
func Modes(values []float64, k int) []float64 {
	if len(values) == 0 || k <= 0 {
		return nil
	}
	counts := lo.CountValues(values)
	keys := lo.Keys(counts)
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > k {
		keys = keys[:k]
	}
	return keys
}

// IQRBounds returns the Tukey fences Q1-1.5*IQR and Q3+1.5*IQR.
func IQRBounds(values []float64) (float64, float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	q1 := sortedQuantile(sorted, 0.25)
	q3 := sortedQuantile(sorted, 0.75)
	iqr := q3 - q1
	return q1 - 1.5*iqr, q3 + 1.5*iqr
}

// Winsorize clips values outside the IQR fences onto the fences. It returns a new slice
// and the number of clipped values.
func Winsorize(values []float64) ([]float64, int) {
	low, high := IQRBounds(values)
	out := make([]float64, len(values))
	clipped := 0
	for i, v := range values {
		switch {
		case v < low:
			out[i] = low
			clipped++
		case v > high:
			out[i] = high
			clipped++
		default:
			out[i] = v
		}
	}
	return out, clipped
}

// Erfinv is the inverse error function on (-1, 1), refined with two Newton steps.
func Erfinv(x float64) float64 {
	if x <= -1 {
		return math.Inf(-1)
	}
	if x >= 1 {
		return math.Inf(1)
	}
	// Giles' single-precision approximation as the starting point.
	w := -math.Log((1 - x) * (1 + x))
	var p float64
	if w < 5 {
		w -= 2.5
		p = 2.81022636e-08
		p = 3.43273939e-07 + p*w
		p = -3.5233877e-06 + p*w
		p = -4.39150654e-06 + p*w
		p = 0.00021858087 + p*w
		p = -0.00125372503 + p*w
		p = -0.00417768164 + p*w
		p = 0.246640727 + p*w
		p = 1.50140941 + p*w
	} else {
		w = math.Sqrt(w) - 3
		p = -0.000200214257
		p = 0.000100950558 + p*w
		p = 0.00134934322 + p*w
		p = -0.00367342844 + p*w
		p = 0.00573950773 + p*w
		p = -0.0076224613 + p*w
		p = 0.00943887047 + p*w
		p = 1.00167406 + p*w
		p = 2.83297682 + p*w
	}
	y := p * x
	for range 2 {
		y -= (math.Erf(y) - x) / (2 / math.SqrtPi * math.Exp(-y*y))
	}
	return y
}

// IntervalZ returns the two-sided standard normal multiplier for a coverage level in (0,1).
func IntervalZ(level float64) float64 {
	return math.Sqrt2 * Erfinv(level)
}

// Sigmoid maps a raw score onto (0,1).
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Clamp01 restricts v to [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return max(0, min(1, v))
}

// Finite reports whether every value is a finite number.
func Finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// LinearFit returns the least-squares intercept and slope of y against x = 0..n-1.
func LinearFit(y []float64) (intercept, slope float64) {
	n := float64(len(y))
	if n == 0 {
		return 0, 0
	}
	if n == 1 {
		return y[0], 0
	}
	var sx, sy, sxx, sxy float64
	for i, v := range y {
		x := float64(i)
		sx += x
		sy += v
		sxx += x * x
		sxy += x * v
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return sy / n, 0
	}
	slope = (n*sxy - sx*sy) / den
	intercept = (sy - slope*sx) / n
	return intercept, slope
}
