package simulation

import (
	"math"
	"testing"
)

func TestPercentileInterpolation(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}
	cases := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{25, 2},
		{50, 3},
		{75, 4},
		{100, 5},
		{10, 1.4},
	}
	for _, tc := range cases {
		if got := percentile(sorted, tc.p); math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("percentile(%v) = %v, want %v", tc.p, got, tc.want)
		}
	}
}

func TestPercentileEdgeCases(t *testing.T) {
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty slice percentile = %v", got)
	}
	if got := percentile([]float64{7}, 95); got != 7 {
		t.Fatalf("single value percentile = %v", got)
	}
}

func TestComputePercentilesOrdered(t *testing.T) {
	sorted := make([]float64, 1000)
	for i := range sorted {
		sorted[i] = float64(i) * 0.001
	}
	p := computePercentiles(sorted)
	if !(p.P5 <= p.P25 && p.P25 <= p.P50 && p.P50 <= p.P75 && p.P75 <= p.P95) {
		t.Fatalf("percentiles out of order: %+v", p)
	}
}

func TestBuildHistogram(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i) / 100
	}
	p := computePercentiles(values)
	bins := buildHistogram(values, p)
	if len(bins) != histogramBins {
		t.Fatalf("bin count = %d, want %d", len(bins), histogramBins)
	}

	total := 0
	for i, b := range bins {
		total += b.Count
		if b.High < b.Low {
			t.Fatalf("bin %d inverted: %+v", i, b)
		}
		if i > 0 && math.Abs(bins[i-1].High-b.Low) > 1e-12 {
			t.Fatalf("bins not contiguous at %d", i)
		}
	}
	// Outliers below p5 and above p95 land in the edge bins, so every value
	// must be counted.
	if total != len(values) {
		t.Fatalf("histogram holds %d values, want %d", total, len(values))
	}
}

func TestBuildHistogramDegenerate(t *testing.T) {
	values := []float64{0.1, 0.1, 0.1}
	p := computePercentiles(values)
	bins := buildHistogram(values, p)
	if len(bins) != 1 || bins[0].Count != 3 {
		t.Fatalf("degenerate histogram = %+v", bins)
	}
	if bins := buildHistogram(nil, Percentiles{}); bins != nil {
		t.Fatalf("empty histogram = %+v", bins)
	}
}
