package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation failed")
	ErrTimeout     = errors.New("timed out")
	ErrUnsupported = errors.New("unsupported")
	ErrQueueFull   = errors.New("backup queue is full")

	// ErrInvalidTransition is returned when a status change would leave a
	// terminal state or skip a step.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ToolError is a non-zero exit from an external database utility.
type ToolError struct {
	Tool     string
	Stderr   string
	ExitCode int
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Tool, strings.TrimSpace(e.Stderr))
}
