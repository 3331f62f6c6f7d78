package validate

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// DefaultOutlierThreshold is the z-score, in standard deviations, beyond
// which a value is flagged as a statistical outlier.
const DefaultOutlierThreshold = 3.0

// HistoricalBaseline summarizes the observed distribution of one field.
// Mutated only through AddHistoricalBaseline; read-only during validation.
type HistoricalBaseline struct {
	Mean       float64 `json:"mean"`
	Stdev      float64 `json:"stdev"`
	Median     float64 `json:"median"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	SampleSize int     `json:"sample_size"`
}

// StatisticalValidator classifies candidate values against per-field
// historical baselines. Absence of a baseline is a valid cannot-judge state,
// never an error.
type StatisticalValidator struct {
	mu               sync.RWMutex
	baselines        map[string]HistoricalBaseline
	outlierThreshold float64
}

func NewStatisticalValidator() *StatisticalValidator {
	return &StatisticalValidator{
		baselines:        make(map[string]HistoricalBaseline),
		outlierThreshold: DefaultOutlierThreshold,
	}
}

// AddHistoricalBaseline computes and stores the baseline for a field. Empty
// input is ignored. A single sample stores stdev 0, which makes any value
// other than the mean an outlier.
func (sv *StatisticalValidator) AddHistoricalBaseline(field string, values []float64) {
	if len(values) == 0 {
		return
	}

	m := mean(values)
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.baselines[field] = HistoricalBaseline{
		Mean:       m,
		Stdev:      sampleStdev(values, m),
		Median:     median(values),
		Min:        minOf(values),
		Max:        maxOf(values),
		SampleSize: len(values),
	}
}

// Baseline returns a copy of the stored baseline for a field.
func (sv *StatisticalValidator) Baseline(field string) (HistoricalBaseline, bool) {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	b, ok := sv.baselines[field]
	return b, ok
}

// BaselineCount reports how many fields currently carry a baseline.
func (sv *StatisticalValidator) BaselineCount() int {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	return len(sv.baselines)
}

// IsStatisticalOutlier checks a value against the field's baseline. The
// reason string carries the computed z-score so anomalies can be traced in
// warnings and logs.
func (sv *StatisticalValidator) IsStatisticalOutlier(field string, value float64) (bool, string) {
	sv.mu.RLock()
	baseline, ok := sv.baselines[field]
	threshold := sv.outlierThreshold
	sv.mu.RUnlock()

	if !ok {
		return false, "No baseline data available"
	}

	if baseline.Stdev == 0 {
		if value != baseline.Mean {
			return true, "Value differs from constant baseline"
		}
		return false, "Matches constant baseline"
	}

	zScore := math.Abs(value-baseline.Mean) / baseline.Stdev
	if zScore > threshold {
		return true, fmt.Sprintf("Z-score: %.2f (threshold: %.1f)", zScore, threshold)
	}
	return false, fmt.Sprintf("Within normal range (Z-score: %.2f)", zScore)
}

// ValidateAgainstRange checks a value against the historical extremes with a
// 10% tolerance band on each side. No baseline means trivially in range.
func (sv *StatisticalValidator) ValidateAgainstRange(field string, value float64) (bool, string) {
	sv.mu.RLock()
	baseline, ok := sv.baselines[field]
	sv.mu.RUnlock()

	if !ok {
		return true, "No baseline for range validation"
	}

	tolerance := 0.1 * (baseline.Max - baseline.Min)
	extendedMin := baseline.Min - tolerance
	extendedMax := baseline.Max + tolerance

	if value >= extendedMin && value <= extendedMax {
		return true, "Within extended historical range"
	}
	return false, fmt.Sprintf("Outside range [%.2f, %.2f]", extendedMin, extendedMax)
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdev uses the n-1 divisor; a single sample has stdev 0.
func sampleStdev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0.0
	}
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// toFloat64 coerces the numeric types a JSON-decoded record can carry.
// Strings are not coerced here; reconciliation handles numeric strings
// separately.
func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
