package errors

import (
	"fmt"
	"time"
)

// APIError represents a failed call to the text-generation service.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("generation API %d at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("generation API %d: %s", e.StatusCode, e.Message)
}

// ParseError indicates every recovery strategy failed to extract a
// structured payload from model output. Preview carries a bounded
// slice of the input for diagnostics.
type ParseError struct {
	Preview  string
	Attempts int
	Message  string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("payload recovery failed after %d attempts: %s", e.Attempts, e.Message)
	}
	return "payload recovery failed: " + e.Message
}

// ValidationError indicates a structural problem with configuration or
// input that the caller must fix.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
	}
	return "validation error: " + e.Message
}

// TimeoutError indicates an operation exceeded its deadline.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}
