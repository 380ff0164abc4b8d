package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownActionType is returned when a hook is requested for a type
	// with no loaded definition.
	ErrUnknownActionType = errors.New("unknown action type")

	// ErrHookTimeout is returned when a hook invocation exceeds its
	// wall-clock deadline. Context mutations made before the deadline are
	// discarded.
	ErrHookTimeout = errors.New("hook execution timed out")
)

// AbortError is the typed failure produced by the abort operation. It
// carries the operator-declared reason rather than an internal fault.
type AbortError struct {
	Reason string
	Code   string
}

func (e *AbortError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("hook aborted [%s]: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("hook aborted: %s", e.Reason)
}
