package grading

import "fmt"

// Grade is the discrete risk classification attached to a simulation run.
type Grade string

const (
	GradeGreen Grade = "green"
	GradeAmber Grade = "amber"
	GradeRed   Grade = "red"

	// GradeUnset marks a property that has never been graded. It is never
	// persisted as a run grade: a property's first grade advances the
	// last-alerted marker without emitting an alert.
	GradeUnset Grade = ""
)

// ParseGrade converts the stored string form back to a Grade.
func ParseGrade(s string) (Grade, error) {
	switch Grade(s) {
	case GradeGreen, GradeAmber, GradeRed:
		return Grade(s), nil
	}
	return "", fmt.Errorf("unknown risk grade %q", s)
}

// Rank orders grades from best to worst: green < amber < red. GradeUnset
// ranks lowest and never compares against a real grade: a property's first
// grade is recorded without alerting.
func (g Grade) Rank() int {
	switch g {
	case GradeGreen:
		return 0
	case GradeAmber:
		return 1
	case GradeRed:
		return 2
	default:
		return -1
	}
}

// IsDowngrade reports whether moving from prev to g worsens the grade.
func (g Grade) IsDowngrade(prev Grade) bool {
	return g.Rank() > prev.Rank()
}

func (g Grade) String() string {
	return string(g)
}
