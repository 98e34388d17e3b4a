// Package agent defines the error taxonomy shared by the note flow and its agents.
// Errors are classified into transient (retryable) and permanent classes and
// given a stable type name used in metrics labels and error messages.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hrygo/notecrew/ai/core/llm"
)

// Base error definitions for agent errors
var (
	ErrNoImages        = errors.New("no images uploaded")
	ErrNoIdea          = errors.New("idea text is required")
	ErrAgentIterations = errors.New("agent stopped after max iterations without a final answer")
	ErrUnknownRole     = errors.New("unknown agent role")
)

// Error type names.
const (
	TypeValidation         = "ValidationError"
	TypeTimeout            = "TimeoutError"
	TypeHTTP               = "HTTPError"
	TypeMalformedResponse  = "MalformedResponseError"
	TypeIterationExhausted = "IterationExhaustedError"
	TypeToolResolution     = "ToolResolutionError"
	TypeRuntime            = "RuntimeError"
)

// ValidationError reports a request that cannot be processed as given.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// PhaseTimeoutError reports a flow phase that exceeded its time budget.
type PhaseTimeoutError struct {
	Phase   string
	Timeout time.Duration
}

func (e *PhaseTimeoutError) Error() string {
	return fmt.Sprintf("%s phase timed out after %s", e.Phase, e.Timeout)
}

// MalformedOutputError reports a required structured output that could not be parsed.
type MalformedOutputError struct {
	TaskID string
	Err    error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("task %s returned malformed output: %v", e.TaskID, e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// ErrorClass represents the category of error for retry decisions.
type ErrorClass int

const (
	// Examples: network timeout, temporary service unavailability.
	ErrorClassTransient ErrorClass = iota

	// Examples: validation failures, bad requests, malformed model output.
	ErrorClassPermanent
)

// String returns the string representation of ErrorClass.
func (e ErrorClass) String() string {
	switch e {
	case ErrorClassTransient:
		return "transient"
	case ErrorClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with its classification and type name.
type ClassifiedError struct {
	Original   error
	Type       string
	Class      ErrorClass
	RetryAfter time.Duration
}

// Error returns "<Type>: <message>".
func (c *ClassifiedError) Error() string {
	if c.Original == nil {
		return c.Type
	}
	return fmt.Sprintf("%s: %v", c.Type, c.Original)
}

// Unwrap returns the original error for errors.Is/As.
func (c *ClassifiedError) Unwrap() error {
	return c.Original
}

// IsTransient returns true if the error is temporary and may be retried.
func (c *ClassifiedError) IsTransient() bool {
	return c.Class == ErrorClassTransient
}

// ClassifyError analyzes an error and determines its class and type name.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	permanent := func(typ string) *ClassifiedError {
		return &ClassifiedError{Original: err, Type: typ, Class: ErrorClassPermanent}
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) || errors.Is(err, llm.ErrInvalidMessage) {
		return permanent(TypeValidation)
	}

	var phaseTimeout *PhaseTimeoutError
	var llmTimeout *llm.TimeoutError
	if errors.As(err, &phaseTimeout) || errors.As(err, &llmTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{Original: err, Type: TypeTimeout, Class: ErrorClassTransient, RetryAfter: 3 * time.Second}
	}

	var httpErr *llm.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Retryable() {
			return &ClassifiedError{Original: err, Type: TypeHTTP, Class: ErrorClassTransient, RetryAfter: 2 * time.Second}
		}
		return permanent(TypeHTTP)
	}

	var malformed *MalformedOutputError
	if errors.As(err, &malformed) || errors.Is(err, llm.ErrNoChoices) {
		return permanent(TypeMalformedResponse)
	}

	if errors.Is(err, llm.ErrEmptyContent) {
		return &ClassifiedError{Original: err, Type: TypeIterationExhausted, Class: ErrorClassTransient, RetryAfter: 5 * time.Second}
	}
	if errors.Is(err, llm.ErrMaxIterations) || errors.Is(err, ErrAgentIterations) {
		return permanent(TypeIterationExhausted)
	}

	if errors.Is(err, llm.ErrMalformedToolArguments) || errors.Is(err, llm.ErrNoFunctions) {
		return permanent(TypeToolResolution)
	}

	return permanent(TypeRuntime)
}

// ErrorType returns the type name of err, or "" for nil.
func ErrorType(err error) string {
	if c := ClassifyError(err); c != nil {
		return c.Type
	}
	return ""
}

// FormatError renders err as "<Type>: <message>".
func FormatError(err error) string {
	if c := ClassifyError(err); c != nil {
		return c.Error()
	}
	return ""
}
