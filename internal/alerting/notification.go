package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"proppulse-risk/internal/grading"
)

// Notification carries everything a sink needs to describe one grade
// transition to the outside world.
type Notification struct {
	PropertyID    string
	RunID         uuid.UUID
	PreviousGrade grading.Grade
	NewGrade      grading.Grade
	ProbNegative  float64
	MeanIRR       float64
	IRRP5         float64
	BreakevenYear float64
	OccurredAt    time.Time
}

// Sink delivers a grade-transition notification to one external system.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, note Notification) error
}

// RepriceFactors maps downgrade transitions to list-price reductions.
// Upgrades and unknown transitions never reprice.
type RepriceFactors struct {
	GreenToAmber float64
	AmberToRed   float64
	GreenToRed   float64
}

// DefaultRepriceFactors returns the platform's standard downgrade haircuts.
func DefaultRepriceFactors() RepriceFactors {
	return RepriceFactors{
		GreenToAmber: 0.02,
		AmberToRed:   0.02,
		GreenToRed:   0.04,
	}
}

// Factor returns the price reduction for a transition, zero when none applies.
func (r RepriceFactors) Factor(prev, next grading.Grade) float64 {
	switch {
	case prev == grading.GradeGreen && next == grading.GradeAmber:
		return r.GreenToAmber
	case prev == grading.GradeAmber && next == grading.GradeRed:
		return r.AmberToRed
	case prev == grading.GradeGreen && next == grading.GradeRed:
		return r.GreenToRed
	default:
		return 0
	}
}

func gradeEmoji(g grading.Grade) string {
	switch g {
	case grading.GradeGreen:
		return "\U0001F7E2"
	case grading.GradeAmber:
		return "\U0001F7E0"
	case grading.GradeRed:
		return "\U0001F534"
	default:
		return "⚪"
	}
}

func actionLine(prev, next grading.Grade) string {
	switch {
	case next == grading.GradeRed:
		return "Consider reviewing your investment strategy."
	case next == grading.GradeAmber && prev == grading.GradeGreen:
		return "Monitor performance closely."
	default:
		return "No immediate action required."
	}
}

func transitionLabel(prev, next grading.Grade) string {
	p := strings.ToUpper(prev.String())
	if prev == grading.GradeUnset {
		p = "UNSET"
	}
	return fmt.Sprintf("%s → %s", p, strings.ToUpper(next.String()))
}

func dashboardLink(baseURL, propertyID string) string {
	return fmt.Sprintf("%s/dashboard?property=%s", strings.TrimRight(baseURL, "/"), propertyID)
}
