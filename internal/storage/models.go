package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"proppulse-risk/internal/grading"
	"proppulse-risk/internal/simulation"
)

// MarketMetric is one persisted market observation. The tuple
// (Source, Region, MetricType, ObservedAt) identifies a metric point;
// re-ingesting the same point overwrites the value.
type MarketMetric struct {
	Source     string
	Region     string
	MetricType string
	ObservedAt time.Time
	Value      float64
	IngestedAt time.Time
}

// PropertyAssumptions holds the underwriting inputs for one listed property.
// Monetary columns stay decimal end to end; they are converted to floats only
// at the simulation boundary.
type PropertyAssumptions struct {
	PropertyID         string
	DeveloperID        string
	Region             string
	PurchasePrice      decimal.Decimal
	SizeSqft           float64
	BaseDailyRate      decimal.Decimal
	BaseOccupancy      float64
	ServiceChargeRate  decimal.Decimal // annual, per sqft
	AppreciationMean   float64
	AppreciationStdev  float64
	HorizonYears       int
	DeveloperRiskScore int
	UpdatedAt          time.Time
}

// SimulationRun is the persisted aggregate of one Monte Carlo run.
type SimulationRun struct {
	RunID             uuid.UUID
	PropertyID        string
	Seed              uint64
	TrialCount        int
	InvalidTrialCount int
	MeanIRR           float64
	Percentiles       simulation.Percentiles
	ProbNegativeIRR   float64
	BreakevenYearMean float64
	YearOneYieldMean  float64
	Histogram         []simulation.HistogramBin
	Grade             grading.Grade
	DeveloperScore    int
	CreatedAt         time.Time
}

// TrialRecord is one simulated trial row. Invalid trials persist with a NULL
// irr and Valid=false.
type TrialRecord struct {
	RunID         uuid.UUID
	TrialIndex    int
	IRR           float64
	NPV           float64
	TerminalValue float64
	Valid         bool
}

// RiskState is the per-property pointer row: the latest run, its grade, and
// the last grade an alert was emitted for.
type RiskState struct {
	PropertyID       string
	CurrentRunID     uuid.UUID
	CurrentGrade     grading.Grade
	LastAlertedGrade *grading.Grade
	UpdatedAt        time.Time
}

// AlertEvent records one grade-transition alert for auditing and dispatch.
type AlertEvent struct {
	ID            int64
	PropertyID    string
	RunID         uuid.UUID
	PreviousGrade grading.Grade
	NewGrade      grading.Grade
	Dispatched    bool
	CreatedAt     time.Time
}
