package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMajorityVote(t *testing.T) {
	tests := []struct {
		name   string
		values []interface{}
		want   interface{}
	}{
		{
			name:   "clear majority",
			values: []interface{}{"LAD", "LAD", "LAA"},
			want:   "LAD",
		},
		{
			name:   "tie breaks to first encountered",
			values: []interface{}{"NYY", "BOS", "BOS", "NYY"},
			want:   "NYY",
		},
		{
			name:   "single value",
			values: []interface{}{42},
			want:   42,
		},
		{
			name:   "int and string ballots stay distinct",
			values: []interface{}{150, "150", 150},
			want:   150,
		},
		{
			name:   "empty input",
			values: nil,
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MajorityVote(tt.values))
		})
	}
}

func TestWeightedAverage(t *testing.T) {
	tests := []struct {
		name   string
		pairs  []WeightedValue
		want   float64
		wantOK bool
	}{
		{
			name:   "equal weights are a plain mean",
			pairs:  []WeightedValue{{10, 1}, {20, 1}},
			want:   15,
			wantOK: true,
		},
		{
			name:   "heavier value dominates",
			pairs:  []WeightedValue{{10, 3}, {20, 1}},
			want:   12.5,
			wantOK: true,
		},
		{
			name:   "zero total weight has no consensus",
			pairs:  []WeightedValue{{10, 0}, {20, 0}},
			wantOK: false,
		},
		{
			name:   "empty input has no consensus",
			pairs:  nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := WeightedAverage(tt.pairs)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestMedianConsensus(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
		wantOK bool
	}{
		{
			name:   "odd count picks middle",
			values: []float64{182, 178, 180},
			want:   180,
			wantOK: true,
		},
		{
			name:   "even count averages middle pair",
			values: []float64{1, 2, 3, 4},
			want:   2.5,
			wantOK: true,
		},
		{
			name:   "single value",
			values: []float64{0.285},
			want:   0.285,
			wantOK: true,
		},
		{
			name:   "empty input has no consensus",
			values: nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MedianConsensus(tt.values)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestMedianConsensusDoesNotMutateInput(t *testing.T) {
	values := []float64{3, 1, 2}
	_, ok := MedianConsensus(values)
	assert.True(t, ok)
	assert.Equal(t, []float64{3, 1, 2}, values)
}

func TestConfidenceBasedSelection(t *testing.T) {
	tests := []struct {
		name  string
		pairs []ConfidenceValue
		want  interface{}
	}{
		{
			name:  "highest confidence wins",
			pairs: []ConfidenceValue{{"a", 0.5}, {"b", 0.9}, {"c", 0.7}},
			want:  "b",
		},
		{
			name:  "tie breaks to first encountered",
			pairs: []ConfidenceValue{{"a", 0.8}, {"b", 0.8}},
			want:  "a",
		},
		{
			name:  "empty input",
			pairs: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfidenceBasedSelection(tt.pairs))
		})
	}
}
