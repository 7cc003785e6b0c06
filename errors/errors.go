package errors

import "errors"

// Sentinel errors for the failure modes the orchestrator distinguishes.
// Every one of them has a defined degraded continuation: nothing in this
// module may abort an enclosing investigation.
var (
	// ErrToolNotFound indicates a tool name with no registration; surfaced as
	// a structured failure envelope, never raised to the caller.
	ErrToolNotFound = errors.New("tool not found")

	// ErrUnsupportedTransport indicates an endpoint scheme no connector
	// handles. Terminal for that provider only.
	ErrUnsupportedTransport = errors.New("unsupported transport")

	// ErrNotConnected indicates an operation on a provider connection that is
	// currently down.
	ErrNotConnected = errors.New("provider not connected")

	// ErrInvalidConfig indicates configuration that failed validation and was
	// replaced with defaults.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrBindingFailed indicates a pipeline construction failure; callers
	// degrade to the plain prompt pipeline.
	ErrBindingFailed = errors.New("tool binding failed")
)
