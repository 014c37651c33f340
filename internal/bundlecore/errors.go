package bundlecore

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrSigningFailure     = errors.New("signing failure")
	ErrSimulationRejected = errors.New("simulation rejected")
	ErrTransport          = errors.New("transport error")
	ErrSubmissionRejected = errors.New("submission rejected")
	ErrUnknownResolution  = errors.New("unknown resolution")
)

func invalidInput(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, a...))
}

// SimulationRejectedError carries the relay's rejection reason verbatim.
type SimulationRejectedError struct {
	TargetBlock uint64
	Reason      string
}

func (e *SimulationRejectedError) Error() string {
	return fmt.Sprintf("simulation rejected for block %d: %s", e.TargetBlock, e.Reason)
}

func (e *SimulationRejectedError) Unwrap() error { return ErrSimulationRejected }

// SigningError reports which bundle entry could not be signed.
type SigningError struct {
	Index int
	Err   error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("sign tx #%d: %v", e.Index, e.Err)
}

func (e *SigningError) Unwrap() []error { return []error{ErrSigningFailure, e.Err} }

// TransportError marks a network failure: the outcome of Op is unknown.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// SubmissionError is a relay-level refusal of eth_sendBundle.
type SubmissionError struct {
	TargetBlock uint64
	Reason      string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission for block %d rejected: %s", e.TargetBlock, e.Reason)
}

func (e *SubmissionError) Unwrap() error { return ErrSubmissionRejected }

// UnknownResolutionError is returned when the watcher reports a code we do not know.
type UnknownResolutionError struct {
	Raw RawResolution
}

func (e *UnknownResolutionError) Error() string {
	return fmt.Sprintf("unrecognised bundle resolution %d", int(e.Raw))
}

func (e *UnknownResolutionError) Unwrap() error { return ErrUnknownResolution }
