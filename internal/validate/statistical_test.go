package validate

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddHistoricalBaseline(t *testing.T) {
	sv := NewStatisticalValidator()
	sv.AddHistoricalBaseline("hits", []float64{22, 25, 28})

	b, ok := sv.Baseline("hits")
	require.True(t, ok)
	assert.InDelta(t, 25.0, b.Mean, 1e-9)
	assert.InDelta(t, 3.0, b.Stdev, 1e-9)
	assert.InDelta(t, 25.0, b.Median, 1e-9)
	assert.Equal(t, 22.0, b.Min)
	assert.Equal(t, 28.0, b.Max)
	assert.Equal(t, 3, b.SampleSize)
}

func TestAddHistoricalBaselineSingleSample(t *testing.T) {
	sv := NewStatisticalValidator()
	sv.AddHistoricalBaseline("avg", []float64{0.285})

	b, ok := sv.Baseline("avg")
	require.True(t, ok)
	assert.Equal(t, 0.0, b.Stdev)
	assert.Equal(t, 1, b.SampleSize)
}

func TestAddHistoricalBaselineEmptyIgnored(t *testing.T) {
	sv := NewStatisticalValidator()
	sv.AddHistoricalBaseline("hits", nil)

	_, ok := sv.Baseline("hits")
	assert.False(t, ok)
	assert.Equal(t, 0, sv.BaselineCount())
}

func TestIsStatisticalOutlier(t *testing.T) {
	sv := NewStatisticalValidator()
	// mean 25, sample stdev 3
	sv.AddHistoricalBaseline("hr_rate", []float64{22, 25, 28})
	// constant baseline
	sv.AddHistoricalBaseline("constant", []float64{10, 10, 10})

	tests := []struct {
		name        string
		field       string
		value       float64
		wantOutlier bool
		wantInside  string
	}{
		{
			name:        "no baseline cannot judge",
			field:       "unknown",
			value:       999,
			wantOutlier: false,
			wantInside:  "No baseline data available",
		},
		{
			name:        "mean itself is never an outlier",
			field:       "hr_rate",
			value:       25,
			wantOutlier: false,
			wantInside:  "Z-score",
		},
		{
			name:        "within three standard deviations",
			field:       "hr_rate",
			value:       33, // z = 2.67
			wantOutlier: false,
			wantInside:  "Within normal range",
		},
		{
			name:        "ten standard deviations out",
			field:       "hr_rate",
			value:       55, // z = 10.0
			wantOutlier: true,
			wantInside:  "Z-score: 10.00",
		},
		{
			name:        "constant baseline exact match",
			field:       "constant",
			value:       10,
			wantOutlier: false,
			wantInside:  "constant baseline",
		},
		{
			name:        "constant baseline any deviation",
			field:       "constant",
			value:       10.1,
			wantOutlier: true,
			wantInside:  "differs from constant baseline",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outlier, reason := sv.IsStatisticalOutlier(tt.field, tt.value)
			assert.Equal(t, tt.wantOutlier, outlier)
			assert.True(t, strings.Contains(reason, tt.wantInside), "reason %q should contain %q", reason, tt.wantInside)
		})
	}
}

func TestValidateAgainstRange(t *testing.T) {
	sv := NewStatisticalValidator()
	// min 22, max 28, tolerance 0.6 -> accepted band [21.4, 28.6]
	sv.AddHistoricalBaseline("hits", []float64{22, 25, 28})

	tests := []struct {
		name    string
		field   string
		value   float64
		wantOK  bool
		wantMsg string
	}{
		{"no baseline trivially in range", "unknown", 1e6, true, "No baseline for range validation"},
		{"inside historical range", "hits", 25, true, "Within extended historical range"},
		{"exactly at lower tolerance edge", "hits", 21.4, true, "Within extended historical range"},
		{"exactly at upper tolerance edge", "hits", 28.6, true, "Within extended historical range"},
		{"beyond tolerance band", "hits", 29, false, "Outside range [21.40, 28.60]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := sv.ValidateAgainstRange(tt.field, tt.value)
			assert.Equal(t, tt.wantOK, ok)
			assert.Contains(t, reason, tt.wantMsg)
		})
	}
}

func TestStatisticalValidatorConcurrentAccess(t *testing.T) {
	sv := NewStatisticalValidator()
	sv.AddHistoricalBaseline("hits", []float64{22, 25, 28})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			sv.AddHistoricalBaseline("hits", []float64{22, 25, 28, float64(20 + n)})
		}(i)
		go func() {
			defer wg.Done()
			sv.IsStatisticalOutlier("hits", 30)
			sv.ValidateAgainstRange("hits", 30)
		}()
	}
	wg.Wait()

	_, ok := sv.Baseline("hits")
	assert.True(t, ok)
}
