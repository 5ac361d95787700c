package simulation

import "math"

// Percentiles are the order statistics reported for a run. Ordering
// p5 <= p25 <= p50 <= p75 <= p95 holds by construction.
type Percentiles struct {
	P5  float64 `json:"p5"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P95 float64 `json:"p95"`
}

// HistogramBin is one equal-width bucket of the IRR distribution.
type HistogramBin struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
}

const histogramBins = 20

// percentile computes the p-th percentile of an ascending-sorted slice with
// linear interpolation between order statistics.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func computePercentiles(sorted []float64) Percentiles {
	return Percentiles{
		P5:  percentile(sorted, 5),
		P25: percentile(sorted, 25),
		P50: percentile(sorted, 50),
		P75: percentile(sorted, 75),
		P95: percentile(sorted, 95),
	}
}

// buildHistogram buckets the sorted IRR values into equal-width bins spanning
// the 5th to 95th percentile. Values outside the span land in the edge bins.
func buildHistogram(sorted []float64, p Percentiles) []HistogramBin {
	if len(sorted) == 0 {
		return nil
	}
	low, high := p.P5, p.P95
	if high <= low {
		// Degenerate distribution: a single bin holding everything.
		return []HistogramBin{{Low: low, High: high, Count: len(sorted)}}
	}

	width := (high - low) / histogramBins
	bins := make([]HistogramBin, histogramBins)
	for i := range bins {
		bins[i].Low = low + float64(i)*width
		bins[i].High = bins[i].Low + width
	}
	for _, v := range sorted {
		idx := int((v - low) / width)
		if idx < 0 {
			idx = 0
		}
		if idx >= histogramBins {
			idx = histogramBins - 1
		}
		bins[idx].Count++
	}
	return bins
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
