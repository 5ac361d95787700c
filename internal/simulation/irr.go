package simulation

import "math"

const (
	irrBracketLow  = -0.99
	irrBracketHigh = 10.0
	irrTolerance   = 1e-7
	irrMaxIter     = 100
)

// NPV discounts the cash-flow series at the given rate. flows[0] is year 0.
func NPV(flows []float64, rate float64) float64 {
	var npv float64
	factor := 1.0
	for _, cf := range flows {
		npv += cf / factor
		factor *= 1 + rate
	}
	return npv
}

func npvDerivative(flows []float64, rate float64) float64 {
	var d float64
	for t := 1; t < len(flows); t++ {
		d -= float64(t) * flows[t] / math.Pow(1+rate, float64(t+1))
	}
	return d
}

// IRR solves NPV(flows, r) = 0 by bisection over a wide bracket, then
// polishes the root with Newton steps. Returns false when no sign change
// exists inside the bracket or the iteration budget is exhausted, meaning the
// series has no recoverable internal rate of return.
func IRR(flows []float64) (float64, bool) {
	lo, hi := irrBracketLow, irrBracketHigh
	fLo := NPV(flows, lo)
	fHi := NPV(flows, hi)
	if math.IsNaN(fLo) || math.IsNaN(fHi) || fLo*fHi > 0 {
		return 0, false
	}
	if fLo == 0 {
		return lo, true
	}
	if fHi == 0 {
		return hi, true
	}

	var mid float64
	for i := 0; i < irrMaxIter; i++ {
		mid = (lo + hi) / 2
		fMid := NPV(flows, mid)
		switch {
		case fMid == 0 || hi-lo < irrTolerance:
			return newtonPolish(flows, mid), true
		case fLo*fMid < 0:
			hi = mid
		default:
			lo, fLo = mid, fMid
		}
	}
	if hi-lo < irrTolerance {
		return newtonPolish(flows, mid), true
	}
	return 0, false
}

// newtonPolish refines an already-bracketed root. Steps that would leave the
// bracket or divide by a vanishing derivative keep the bisection result.
func newtonPolish(flows []float64, r float64) float64 {
	for i := 0; i < 4; i++ {
		d := npvDerivative(flows, r)
		if math.Abs(d) < 1e-12 {
			return r
		}
		next := r - NPV(flows, r)/d
		if next <= irrBracketLow || next >= irrBracketHigh || math.IsNaN(next) {
			return r
		}
		if math.Abs(next-r) < irrTolerance {
			return next
		}
		r = next
	}
	return r
}
