// Package consensus provides pure, stateless primitives for resolving a set
// of conflicting values to a single consensus value. Dispatch between
// strategies (median for numerics, majority vote for the rest) belongs to the
// caller; nothing here inspects records or sources.
package consensus

import (
	"fmt"
	"sort"
)

// WeightedValue pairs a numeric value with its weight.
type WeightedValue struct {
	Value  float64
	Weight float64
}

// ConfidenceValue pairs an arbitrary value with the confidence of the source
// that reported it.
type ConfidenceValue struct {
	Value      interface{}
	Confidence float64
}

// MajorityVote returns the most frequent value. Ties break in favor of the
// value encountered first, so results are deterministic for a fixed input
// order. Returns nil on empty input.
func MajorityVote(values []interface{}) interface{} {
	if len(values) == 0 {
		return nil
	}

	type tally struct {
		value interface{}
		count int
		first int
	}

	counts := make(map[string]*tally, len(values))
	order := make([]*tally, 0, len(values))
	for i, v := range values {
		key := voteKey(v)
		if t, ok := counts[key]; ok {
			t.count++
			continue
		}
		t := &tally{value: v, count: 1, first: i}
		counts[key] = t
		order = append(order, t)
	}

	best := order[0]
	for _, t := range order[1:] {
		if t.count > best.count {
			best = t
		}
	}
	return best.value
}

// voteKey buckets values for counting without panicking on non-comparable
// types. The type prefix keeps 150 and "150" distinct ballots.
func voteKey(v interface{}) string {
	return fmt.Sprintf("%T:%v", v, v)
}

// WeightedAverage computes sum(value*weight)/sum(weight). The second return
// is false when the total weight is not positive, which callers must treat as
// "no consensus".
func WeightedAverage(pairs []WeightedValue) (float64, bool) {
	var weighted, total float64
	for _, p := range pairs {
		weighted += p.Value * p.Weight
		total += p.Weight
	}
	if total <= 0 {
		return 0, false
	}
	return weighted / total, true
}

// MedianConsensus returns the standard median. The second return is false on
// empty input. The input slice is not modified.
func MedianConsensus(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2, true
	}
	return sorted[mid], true
}

// ConfidenceBasedSelection picks the value with the highest confidence. Ties
// break in favor of the pair encountered first. Returns nil on empty input.
func ConfidenceBasedSelection(pairs []ConfidenceValue) interface{} {
	if len(pairs) == 0 {
		return nil
	}
	best := pairs[0]
	for _, p := range pairs[1:] {
		if p.Confidence > best.Confidence {
			best = p
		}
	}
	return best.Value
}
