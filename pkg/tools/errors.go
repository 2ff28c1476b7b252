package tools

import (
	"errors"
	"fmt"
)

// ErrUnknownTool is returned by Dispatch for a name outside the registry.
var ErrUnknownTool = errors.New("unknown tool")

// BadToolArgsError describes an argument object that violates the tool's
// schema.
type BadToolArgsError struct {
	Tool   string
	Reason string
}

func (e *BadToolArgsError) Error() string {
	return fmt.Sprintf("bad arguments for tool %s: %s", e.Tool, e.Reason)
}

// ExecutionError wraps a failure inside a tool, such as a retrieval backend
// rejecting the call. These are recoverable within a round.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
