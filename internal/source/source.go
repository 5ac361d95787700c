package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RawObservation is one normalized market data point before attribution to a
// source in the metric store.
type RawObservation struct {
	MetricType string
	Region     string
	ObservedAt time.Time
	Value      float64
}

// Source is the capability interface every market data provider implements.
// Implementations are independently failable; the ingestor iterates a
// configured list polymorphically.
type Source interface {
	Name() string
	Region() string
	Fetch(ctx context.Context, from, to time.Time) ([]RawObservation, error)
}

// Error wraps a source failure. Transient failures (network, timeout, 5xx)
// are retried by the ingestor; schema mismatches are not.
type Error struct {
	Source    string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("source %s: %s failure: %v", e.Source, kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable source failure.
func IsTransient(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Transient
	}
	return false
}

func transientErr(name string, err error) error {
	return &Error{Source: name, Transient: true, Err: err}
}

func permanentErr(name string, err error) error {
	return &Error{Source: name, Transient: false, Err: err}
}

// classifyHTTPStatus treats server-side failures as transient and client
// errors as permanent misconfiguration.
func classifyHTTPStatus(name string, status int, body []byte) error {
	err := fmt.Errorf("unexpected status %d: %s", status, truncate(body, 200))
	if status >= 500 || status == 429 {
		return transientErr(name, err)
	}
	return permanentErr(name, err)
}

// classifyRequestError maps transport-level failures; anything that failed at
// the network layer (dial, timeout, reset) is worth retrying.
func classifyRequestError(name string, err error) error {
	return transientErr(name, err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
