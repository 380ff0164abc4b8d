package expr

import "fmt"

// EvalError reports a type mismatch or malformed path encountered while
// evaluating an expression. It aborts the surrounding hook.
type EvalError struct {
	Message string
}

func (e *EvalError) Error() string {
	return "eval: " + e.Message
}

func evalErrorf(format string, args ...any) *EvalError {
	return &EvalError{Message: fmt.Sprintf(format, args...)}
}

// ResourceLimitError reports that a hard resource cap was hit during
// evaluation or operation execution. Distinct from EvalError so callers can
// tell "bad logic" from "logic too expensive".
type ResourceLimitError struct {
	Limit string
	Max   int
}

func (e *ResourceLimitError) Error() string {
	return fmt.Sprintf("resource limit exceeded: %s (max %d)", e.Limit, e.Max)
}
