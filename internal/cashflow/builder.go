package cashflow

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Metric type names the builder understands when recalibrating a model from
// recent market observations.
const (
	MetricADR        = "str_adr"
	MetricRevPAR     = "str_revpar"
	MetricRentIndex  = "rent_index"
	MetricSwapRate   = "swap_rate"
	MetricDevDefault = "developer_default"
)

// Assumptions are the static, property-owned inputs to a model build.
type Assumptions struct {
	PropertyID         string
	DeveloperID        string
	PurchasePrice      float64
	SizeSqft           float64
	BaseDailyRate      float64
	BaseOccupancy      float64 // fraction in (0, 1]
	ServiceChargeRate  float64 // annual, per sqft
	AppreciationMean   float64
	AppreciationStdev  float64
	HorizonYears       int
	DeveloperRiskScore int
}

// MetricPoint is one recent market observation fed into the builder.
type MetricPoint struct {
	MetricType string
	ObservedAt time.Time
	Value      float64
}

// Params hold the distribution settings that are not property-specific.
type Params struct {
	ADRGrowthMean      float64
	ADRGrowthStdev     float64
	OccupancyStdev     float64
	VacancyRateMin     float64
	VacancyRateMax     float64
	ManagementFeeRate  float64
	BaseDiscountRate   float64
	BaseCapRate        float64
	TerminalShockDelta []float64
	TerminalShockProbs []float64
}

// DefaultParams carries the calibration used in production risk runs.
func DefaultParams() Params {
	return Params{
		ADRGrowthMean:      0.05,
		ADRGrowthStdev:     0.10,
		OccupancyStdev:     0.06,
		VacancyRateMin:     0.02,
		VacancyRateMax:     0.08,
		ManagementFeeRate:  0.15,
		BaseDiscountRate:   0.05,
		BaseCapRate:        0.05,
		TerminalShockDelta: []float64{-0.0150, 0.0, 0.0150, 0.0300},
		TerminalShockProbs: []float64{0.15, 0.50, 0.25, 0.10},
	}
}

// Builder combines property assumptions with recent market metrics into a
// parameterised Model.
type Builder struct {
	params Params
	logger zerolog.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(params Params, logger zerolog.Logger) *Builder {
	return &Builder{
		params: params,
		logger: logger.With().Str("component", "cashflow_builder").Logger(),
	}
}

// Build produces a Model for the property. Recent ADR metrics, when present,
// recalibrate the base daily rate toward observed market levels; absent
// metrics leave the static assumptions untouched.
func (b *Builder) Build(a Assumptions, recent []MetricPoint) (*Model, error) {
	if err := validateAssumptions(a); err != nil {
		return nil, err
	}
	p := b.params
	if len(p.TerminalShockDelta) != len(p.TerminalShockProbs) {
		return nil, errors.New("terminal shock deltas and probabilities must align")
	}

	baseADR := a.BaseDailyRate
	if avg, n := averageMetric(recent, MetricADR); n > 0 {
		// Blend static assumption with the trailing market level.
		baseADR = (baseADR + avg) / 2
		b.logger.Debug().
			Str("property_id", a.PropertyID).
			Float64("assumed_adr", a.BaseDailyRate).
			Float64("market_adr", avg).
			Int("samples", n).
			Msg("recalibrated base ADR from market metrics")
	}

	discount := p.BaseDiscountRate
	if avg, n := averageMetric(recent, MetricSwapRate); n > 0 {
		discount = avg / 100
		b.logger.Debug().
			Str("property_id", a.PropertyID).
			Float64("swap_rate_pct", avg).
			Int("samples", n).
			Msg("discount rate taken from swap curve")
	}

	shocks := make([]TerminalShock, len(p.TerminalShockDelta))
	var probSum float64
	for i := range p.TerminalShockDelta {
		shocks[i] = TerminalShock{
			CapRateDelta: p.TerminalShockDelta[i],
			Probability:  p.TerminalShockProbs[i],
		}
		probSum += p.TerminalShockProbs[i]
	}
	if math.Abs(probSum-1) > 1e-9 {
		return nil, fmt.Errorf("terminal shock probabilities sum to %v, want 1", probSum)
	}

	return &Model{
		PropertyID:        a.PropertyID,
		HorizonYears:      a.HorizonYears,
		PurchasePrice:     a.PurchasePrice,
		BaseDailyRate:     baseADR,
		BaseOccupancy:     a.BaseOccupancy,
		OccupancyStdev:    p.OccupancyStdev,
		ADRGrowthMu:       lognormalMu(p.ADRGrowthMean, p.ADRGrowthStdev),
		ADRGrowthSigma:    p.ADRGrowthStdev,
		VacancyRateMin:    p.VacancyRateMin,
		VacancyRateMax:    p.VacancyRateMax,
		ServiceCharge:     a.ServiceChargeRate * a.SizeSqft,
		ManagementFeeRate: p.ManagementFeeRate,
		AppreciationMu:    lognormalMu(a.AppreciationMean, a.AppreciationStdev),
		AppreciationSigma: a.AppreciationStdev,
		BaseCapRate:       p.BaseCapRate,
		TerminalShocks:    shocks,
		BaseDiscountRate:  discount,
	}, nil
}

// lognormalMu converts a target mean growth rate into the location parameter
// of a lognormal factor so that E[factor] = 1 + mean.
func lognormalMu(mean, sigma float64) float64 {
	return math.Log(1+mean) - 0.5*sigma*sigma
}

// averageMetric averages all points of the given type. Subtyped metrics
// ("swap_rate:1y") match their base type.
func averageMetric(points []MetricPoint, metricType string) (float64, int) {
	var sum float64
	var n int
	for _, pt := range points {
		if pt.MetricType == metricType || strings.HasPrefix(pt.MetricType, metricType+":") {
			sum += pt.Value
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func validateAssumptions(a Assumptions) error {
	if a.PropertyID == "" {
		return errors.New("property id is required")
	}
	if a.PurchasePrice <= 0 {
		return fmt.Errorf("purchase price must be positive, got %v", a.PurchasePrice)
	}
	if a.BaseOccupancy <= 0 || a.BaseOccupancy > 1 {
		return fmt.Errorf("base occupancy must be in (0, 1], got %v", a.BaseOccupancy)
	}
	if a.HorizonYears <= 0 {
		return fmt.Errorf("horizon must be positive, got %d", a.HorizonYears)
	}
	if a.AppreciationMean <= -1 {
		return fmt.Errorf("appreciation mean must be greater than -100%%, got %v", a.AppreciationMean)
	}
	return nil
}
