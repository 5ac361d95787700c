package simulation

import (
	"math"
	"testing"
)

func TestIRRKnownRoots(t *testing.T) {
	cases := []struct {
		name  string
		flows []float64
		want  float64
	}{
		{"single period 10%", []float64{-100, 110}, 0.10},
		{"two period 10%", []float64{-100, 0, 121}, 0.10},
		{"deep loss", []float64{-1000, 500}, -0.5},
		{"break even", []float64{-100, 100}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := IRR(tc.flows)
			if !ok {
				t.Fatalf("IRR(%v) did not converge", tc.flows)
			}
			if math.Abs(got-tc.want) > 1e-6 {
				t.Fatalf("IRR(%v) = %v, want %v", tc.flows, got, tc.want)
			}
		})
	}
}

func TestIRRZeroesNPV(t *testing.T) {
	flows := []float64{-1000, 200, 200, 200, 200, 800}
	irr, ok := IRR(flows)
	if !ok {
		t.Fatal("expected convergence")
	}
	if irr < 0.10 || irr > 0.15 {
		t.Fatalf("irr = %v, expected roughly 12%%", irr)
	}
	if npv := NPV(flows, irr); math.Abs(npv) > 1e-4 {
		t.Fatalf("NPV at solved IRR = %v, want ~0", npv)
	}
}

func TestIRRNoSignChange(t *testing.T) {
	if _, ok := IRR([]float64{-100, -50, -25}); ok {
		t.Fatal("all-negative series must not converge")
	}
	if _, ok := IRR([]float64{100, 50, 25}); ok {
		t.Fatal("all-positive series must not converge")
	}
}

func TestNPVDiscounting(t *testing.T) {
	flows := []float64{-100, 110}
	if got := NPV(flows, 0); math.Abs(got-10) > 1e-12 {
		t.Fatalf("NPV at 0%% = %v, want 10", got)
	}
	if got := NPV(flows, 0.10); math.Abs(got) > 1e-12 {
		t.Fatalf("NPV at 10%% = %v, want 0", got)
	}
}
