package router

import "fmt"

// UnknownCommandError is returned for a command the router cannot dispatch.
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("router: unknown command %q", e.Name)
}

// InvalidArgumentError is returned when a command's payload is rejected.
// No state changes when it is returned.
type InvalidArgumentError struct {
	Command string
	Field   string
	Reason  string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("router: %s: invalid %s: %s", e.Command, e.Field, e.Reason)
}

func invalid(cmd Command, field, reason string) *InvalidArgumentError {
	return &InvalidArgumentError{Command: cmd.Name(), Field: field, Reason: reason}
}
