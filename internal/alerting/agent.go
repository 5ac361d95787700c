package alerting

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"proppulse-risk/internal/grading"
	"proppulse-risk/internal/storage"
)

// StateReader is the slice of run storage the agent needs.
type StateReader interface {
	GetRiskState(ctx context.Context, propertyID string) (storage.RiskState, error)
}

// EventRecorder persists one transition event atomically with the
// last-alerted-grade pointer, and can advance the pointer alone when a
// property receives its first grade.
type EventRecorder interface {
	RecordAlert(ctx context.Context, event storage.AlertEvent) (storage.AlertEvent, error)
	SetLastAlertedGrade(ctx context.Context, propertyID string, grade grading.Grade) error
}

// Agent is the grade-transition state machine. It compares a freshly computed
// grade against the last grade that was actually alerted on and records one
// AlertEvent per real transition. Recording the event and advancing the
// last-alerted pointer happen in one transaction; concurrent checks for the
// same property are serialised by an advisory lock.
type Agent struct {
	states StateReader
	alerts EventRecorder
	locker storage.AdvisoryLocker
	logger zerolog.Logger
}

// NewAgent constructs the transition agent. The locker may be nil in tests;
// checks then run unserialised.
func NewAgent(states StateReader, alerts EventRecorder, locker storage.AdvisoryLocker, logger zerolog.Logger) *Agent {
	return &Agent{
		states: states,
		alerts: alerts,
		locker: locker,
		logger: logger.With().Str("component", "alert_agent").Logger(),
	}
}

// Check records an AlertEvent when newGrade differs from the property's last
// alerted grade. A property's first grade is not a transition: it advances
// the marker without creating an event. Check returns nil without error when
// no transition occurred or when another process holds the property's lock
// (that process will observe the same state and alert at most once).
func (a *Agent) Check(ctx context.Context, propertyID string, runID uuid.UUID, newGrade grading.Grade) (*storage.AlertEvent, error) {
	if a.locker != nil {
		unlock, acquired, err := a.locker.TryAdvisoryLock(ctx, storage.PropertyLockKey(propertyID))
		if err != nil {
			return nil, fmt.Errorf("acquire property lock: %w", err)
		}
		if !acquired {
			a.logger.Debug().Str("property_id", propertyID).Msg("skip alert check, property locked elsewhere")
			return nil, nil
		}
		defer unlock()
	}

	lastAlerted := grading.GradeUnset
	state, err := a.states.GetRiskState(ctx, propertyID)
	switch {
	case err == nil:
		if state.LastAlertedGrade != nil {
			lastAlerted = *state.LastAlertedGrade
		}
	case errors.Is(err, pgx.ErrNoRows):
		// never graded before
	default:
		return nil, fmt.Errorf("read risk state: %w", err)
	}

	if newGrade == lastAlerted {
		return nil, nil
	}

	if lastAlerted == grading.GradeUnset {
		if err := a.alerts.SetLastAlertedGrade(ctx, propertyID, newGrade); err != nil {
			return nil, fmt.Errorf("record initial grade: %w", err)
		}
		a.logger.Info().
			Str("property_id", propertyID).
			Str("grade", newGrade.String()).
			Msg("initial grade recorded, no alert")
		return nil, nil
	}

	event, err := a.alerts.RecordAlert(ctx, storage.AlertEvent{
		PropertyID:    propertyID,
		RunID:         runID,
		PreviousGrade: lastAlerted,
		NewGrade:      newGrade,
	})
	if err != nil {
		return nil, fmt.Errorf("record alert: %w", err)
	}

	a.logger.Info().
		Str("property_id", propertyID).
		Str("transition", transitionLabel(lastAlerted, newGrade)).
		Int64("event_id", event.ID).
		Msg("grade transition recorded")
	return &event, nil
}
