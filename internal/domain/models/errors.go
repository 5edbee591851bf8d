package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidHorizon      = errors.New("invalid horizon")
	ErrInvalidPhase        = errors.New("invalid phase")
	ErrInvalidPreset       = errors.New("invalid preset")
	ErrInvalidSymbol       = errors.New("invalid symbol")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrInsufficientMatches = errors.New("insufficient matches")
	ErrDegenerateWindow    = errors.New("degenerate window")
	ErrUpstreamData        = errors.New("upstream data error")
	ErrComputation         = errors.New("computation error")
)

// NotReadyError reports a data-readiness condition. It is not an internal failure:
// the caller should retry after more candles have been ingested.
type NotReadyError struct {
	Kind      error  `json:"-"`
	Reason    string `json:"reason"`
	Hint      string `json:"hint"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

// NewNotReady builds a NotReadyError for ErrInsufficientHistory or ErrInsufficientMatches.
func NewNotReady(kind error, required, available int, hint string) *NotReadyError {
	reason := "NOT_READY"
	switch {
	case errors.Is(kind, ErrInsufficientHistory):
		reason = "INSUFFICIENT_HISTORY"
	case errors.Is(kind, ErrInsufficientMatches):
		reason = "INSUFFICIENT_MATCHES"
	}
	return &NotReadyError{Kind: kind, Reason: reason, Hint: hint, Required: required, Available: available}
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%v: required %d, available %d", e.Kind, e.Required, e.Available)
}

func (e *NotReadyError) Unwrap() error { return e.Kind }

// IsNotReady reports whether err is a data-readiness condition.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrInsufficientHistory) || errors.Is(err, ErrInsufficientMatches)
}

// HorizonError annotates a failure with the horizon and pipeline stage that produced it.
type HorizonError struct {
	Horizon Horizon
	Stage   string
	Err     error
}

func (e *HorizonError) Error() string {
	return fmt.Sprintf("horizon %s: %s: %v", e.Horizon, e.Stage, e.Err)
}

func (e *HorizonError) Unwrap() error { return e.Err }

// FailureReason classifies a horizon failure for votes and metrics.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientHistory):
		return "INSUFFICIENT_HISTORY"
	case errors.Is(err, ErrInsufficientMatches):
		return "INSUFFICIENT_MATCHES"
	case errors.Is(err, ErrDegenerateWindow):
		return "DEGENERATE_WINDOW"
	case errors.Is(err, ErrUpstreamData):
		return "UPSTREAM_DATA"
	default:
		return "COMPUTATION"
	}
}
