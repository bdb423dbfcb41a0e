package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicate        = errors.New("duplicate: active entry already exists for this key")
	ErrInvalidModule    = errors.New("module must not be empty")
	ErrInvalidReference = errors.New("reference_id must not be empty")
	ErrInvalidKind      = errors.New("kind must not be empty")
	ErrInvalidPriority  = errors.New("invalid priority: must be urgent, high, normal, or low")
	ErrNoRecipients     = errors.New("recipient spec must name at least one to address or user")
	ErrClaimLost        = errors.New("claim lost: entry is no longer pending under this worker's lease")
	ErrNotRequeueable   = errors.New("only failed entries can be requeued")
	ErrAlreadyCancelled = errors.New("entry is already cancelled")
	ErrNotCancellable   = errors.New("entry cannot be cancelled in its current state")
)

// Error classes recorded in a queue entry's error history.
const (
	ClassResolution = "resolution"
	ClassRender     = "render"
	ClassTransport  = "transport"
)

// ResolutionError means the primary recipient could not be resolved.
// Terminal: never retried.
type ResolutionError struct {
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("recipient resolution: %s: %v", e.Reason, e.Err)
	}
	return "recipient resolution: " + e.Reason
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// RenderError means the template and payload do not match.
// Terminal: never retried.
type RenderError struct {
	Kind string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %q: %v", e.Kind, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// TransportError is a provider-side send failure. Retryable transport
// errors are re-attempted with backoff up to the entry's retry cap.
type TransportError struct {
	Retryable bool
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether err may be retried automatically.
// Only retryable transport errors qualify; resolution and render
// failures are always terminal.
func Retryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Retryable
}

// Classify returns the error-history class for err.
func Classify(err error) string {
	var re *ResolutionError
	if errors.As(err, &re) {
		return ClassResolution
	}
	var rn *RenderError
	if errors.As(err, &rn) {
		return ClassRender
	}
	return ClassTransport
}
