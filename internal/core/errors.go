package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFile is returned when a request carries no spreadsheet.
	ErrNoFile = errors.New("no file provided")

	// ErrInvalidRules is returned when the rules payload is not valid JSON of
	// the expected shape.
	ErrInvalidRules = errors.New("invalid rules format")

	// ErrUnknownKind is returned for an operation kind other than validation
	// or mapping.
	ErrUnknownKind = errors.New("unknown operation kind")
)

// ExecutionError reports an engine that ran and exited non-zero. Diagnostic is
// the engine's own explanation and is safe to show to the user.
type ExecutionError struct {
	ExitCode   int
	Diagnostic string
	TimedOut   bool
}

func (e *ExecutionError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("engine timed out (exit code %d): %s", e.ExitCode, e.Diagnostic)
	}
	return fmt.Sprintf("engine failed (exit code %d): %s", e.ExitCode, e.Diagnostic)
}
