package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMessage is returned when a message fails pre-dispatch validation.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrNoChoices is returned when the endpoint answers without any choice.
	ErrNoChoices = errors.New("no choices in LLM response")

	// ErrEmptyContent is returned after the model kept answering with blank content.
	ErrEmptyContent = errors.New("repeated empty content")

	// ErrMaxIterations is returned when the tool-call loop runs out of rounds.
	ErrMaxIterations = errors.New("max iterations reached in function calling")

	// ErrMalformedToolArguments is returned when a tool call carries arguments that are not a JSON object.
	ErrMalformedToolArguments = errors.New("malformed tool call arguments")

	// ErrNoFunctions is returned when the model asks for tool calls and the caller supplied none.
	ErrNoFunctions = errors.New("tool calls requested but no functions available")

	// ErrUnsupportedRegion is returned for an unknown DashScope region.
	ErrUnsupportedRegion = errors.New("unsupported region")

	// ErrMissingAPIKey is returned when no API Key is configured.
	ErrMissingAPIKey = errors.New("LLM API Key is not configured")
)

// HTTPError is a non-2xx answer from the chat completions endpoint.
// HTTPError 表示接口返回的非 2xx 状态码。
type HTTPError struct {
	StatusCode int
	Message    string
	Attempts   int
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("LLM endpoint returned HTTP %d after %d attempt(s)", e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("LLM endpoint returned HTTP %d after %d attempt(s): %s", e.StatusCode, e.Attempts, e.Message)
}

// Retryable reports whether the status is worth another attempt (5xx and 429).
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// TimeoutError is returned when every attempt hit the request timeout.
type TimeoutError struct {
	Attempts int
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("LLM request timed out after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
