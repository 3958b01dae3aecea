package plugins

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateName     = errors.New("plugin already registered")
	ErrInvalidDescriptor = errors.New("invalid plugin descriptor")
	ErrPluginNotFound    = errors.New("plugin not found")
	ErrTypeMismatch      = errors.New("plugin does not accept node type")
	ErrPluginExecution   = errors.New("plugin execution failed")
)

// ExecutionError carries a plugin's own failure. It matches
// ErrPluginExecution with errors.Is and unwraps to the original cause.
type ExecutionError struct {
	Plugin string
	Cause  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("plugin %s: %v", e.Plugin, e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrPluginExecution
}
