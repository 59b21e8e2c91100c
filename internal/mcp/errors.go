package mcp

import (
	"errors"
	"fmt"
)

// UnknownToolError is returned when a call names a tool that is not in the
// registry.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Unknown tool: %s", e.Name)
}

// InvalidArgumentsError is returned when arguments do not satisfy the tool's
// input schema.
type InvalidArgumentsError struct {
	Tool   string
	Reason string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("Invalid arguments for %s: %s", e.Tool, e.Reason)
}

// IsClientError reports whether err was caused by the caller's request.
func IsClientError(err error) bool {
	var unknown *UnknownToolError
	var invalid *InvalidArgumentsError
	return errors.As(err, &unknown) || errors.As(err, &invalid)
}
