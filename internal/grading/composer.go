package grading

import "context"

// Thresholds parameterise the grading rules. Both probability thresholds are
// inclusive.
type Thresholds struct {
	GreenProbNegative   float64
	GreenDeveloperScore int
	AmberProbNegative   float64
}

// DefaultThresholds mirrors the production grading rules:
// green = P(IRR<0) <= 10% and developer score <= 2, amber = P(IRR<0) <= 25%.
func DefaultThresholds() Thresholds {
	return Thresholds{
		GreenProbNegative:   0.10,
		GreenDeveloperScore: 2,
		AmberProbNegative:   0.25,
	}
}

// Composer maps simulation statistics and a developer risk score to a grade.
type Composer struct {
	thresholds Thresholds
}

// NewComposer builds a Composer with the given thresholds.
func NewComposer(t Thresholds) *Composer {
	return &Composer{thresholds: t}
}

// Grade applies the grading rules in order. It is a pure function: the same
// inputs always produce the same grade.
func (c *Composer) Grade(probNegativeIRR float64, developerScore int) Grade {
	t := c.thresholds
	if probNegativeIRR <= t.GreenProbNegative && developerScore <= t.GreenDeveloperScore {
		return GradeGreen
	}
	if probNegativeIRR <= t.AmberProbNegative {
		return GradeAmber
	}
	return GradeRed
}

// DeveloperScoreSource looks up a developer's externally supplied risk score
// on the register's 1..5 scale, 1 being the least risky.
type DeveloperScoreSource interface {
	Lookup(ctx context.Context, developerID string) (int, error)
}

// StaticScoreSource returns the same score for every developer. Used when no
// external score feed is configured.
type StaticScoreSource int

// Lookup returns the fixed score.
func (s StaticScoreSource) Lookup(ctx context.Context, developerID string) (int, error) {
	return int(s), nil
}

var _ DeveloperScoreSource = StaticScoreSource(0)
