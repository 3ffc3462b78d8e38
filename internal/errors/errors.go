// Package errors defines the error taxonomy shared by the simulation engine.
// Construction-time invariant violations (bad gates, bad channel parameters)
// fail fast with one of these sentinels; security failures such as a QBER
// check exceeding its threshold are protocol outcomes, not errors, and are
// surfaced through session state instead.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for state and gate construction.
var (
	// ErrInvalidGate indicates a gate matrix that is not unitary.
	ErrInvalidGate = errors.New("quantum: gate matrix is not unitary")

	// ErrDimensionMismatch indicates a gate/state or state/state size mismatch.
	ErrDimensionMismatch = errors.New("quantum: dimension mismatch")

	// ErrInvalidState indicates a state vector that cannot be normalized.
	ErrInvalidState = errors.New("quantum: state vector is not normalizable")
)

// Sentinel errors for measurement.
var (
	// ErrInvalidOutcome indicates a collapse requested for an outcome that is
	// inconsistent with the measured basis.
	ErrInvalidOutcome = errors.New("measure: outcome inconsistent with basis")
)

// Sentinel errors for channel configuration.
var (
	// ErrInvalidChannelParam indicates a loss or noise level outside [0, 1].
	ErrInvalidChannelParam = errors.New("channel: parameter outside [0, 1]")
)

// Sentinel errors for protocol sessions.
var (
	// ErrInvalidParam indicates a protocol parameter outside its valid
	// range, such as a non-positive key length or a composite qudit
	// dimension.
	ErrInvalidParam = errors.New("protocol: parameter outside valid range")

	// ErrInsufficientSiftedBits indicates too few matching-basis positions
	// survived sifting to reach the requested key length.
	ErrInsufficientSiftedBits = errors.New("protocol: insufficient sifted bits")

	// ErrPhaseOrder indicates a protocol stage invoked out of state-machine
	// order. Leakage accounting is cumulative, so stages may not be reordered.
	ErrPhaseOrder = errors.New("protocol: stage invoked out of order")

	// ErrSessionTerminal indicates an operation on a session that already
	// reached a terminal state.
	ErrSessionTerminal = errors.New("protocol: session already terminal")
)

// Sentinel errors for entanglement swapping.
var (
	// ErrNotEntangledPair indicates a swap input that is not a two-qubit state.
	ErrNotEntangledPair = errors.New("network: swap input is not a two-qubit pair")
)

// StageError wraps an error with the protocol stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new StageError.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
