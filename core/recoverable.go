package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ============================================================================
// Recoverable Failure Protocol
// ============================================================================
//
// This file defines the error protocol between capabilities and the
// orchestrators that invoke them. A capability raises a RecoverableError to
// say "this attempt failed, but the invocation process should continue";
// the Invoker translates it into an observation according to the
// capability's ErrorPolicy. Every other error kind propagates untouched and
// halts the invocation, so programming faults are never masked.

// ErrorCategory classifies recoverable failures for orchestrator decisions.
// This is the shared vocabulary that capabilities and orchestrators agree on.
type ErrorCategory string

const (
	// CategoryInputError indicates the request payload was malformed
	// Example: missing required field, value failed schema validation
	CategoryInputError ErrorCategory = "INPUT_ERROR"

	// CategoryNotFound indicates the requested resource doesn't exist
	// (but might exist with corrected parameters)
	CategoryNotFound ErrorCategory = "NOT_FOUND"

	// CategoryRateLimit indicates the capability's backing API quota was
	// exceeded. Orchestrators should check Details["retry_after"].
	CategoryRateLimit ErrorCategory = "RATE_LIMIT"

	// CategoryAuthError indicates authentication/authorization failure.
	// Typically not retryable - requires a configuration fix.
	CategoryAuthError ErrorCategory = "AUTH_ERROR"

	// CategoryServiceError indicates the capability's backend failed.
	// Usually transient - retry with the same payload after backoff.
	CategoryServiceError ErrorCategory = "SERVICE_ERROR"
)

// RecoverableError is the distinguished failure signal a capability raises
// to indicate a domain-level failure that should degrade gracefully instead
// of halting the invocation. The Invoker detects it with errors.As and
// applies the capability's ErrorPolicy; any other error type is fatal.
//
// Usage in capability handlers:
//
//	return "", &core.RecoverableError{
//	    Code:     "LOCATION_NOT_FOUND",
//	    Message:  "city 'Flower Mound, TX' not found",
//	    Category: core.CategoryNotFound,
//	    Retryable: true,
//	    Details: map[string]string{
//	        "hint": "try 'City, Country' format",
//	    },
//	}
type RecoverableError struct {
	// Code is a machine-readable identifier (e.g., "LOCATION_NOT_FOUND")
	Code string `json:"code"`

	// Message is a human-readable failure description
	Message string `json:"message"`

	// Category groups failures for routing decisions
	Category ErrorCategory `json:"category"`

	// Retryable indicates the orchestrator may retry with corrected input
	Retryable bool `json:"retryable"`

	// Details provides additional context for the orchestrator
	// Common keys: "original_input", "hint", "retry_after"
	Details map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *RecoverableError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Recoverable is a convenience constructor for the common case
func Recoverable(code, message string, category ErrorCategory) *RecoverableError {
	return &RecoverableError{
		Code:     code,
		Message:  message,
		Category: category,
	}
}

// AsRecoverable extracts a RecoverableError from an error chain.
// Returns nil, false for every other error kind.
func AsRecoverable(err error) (*RecoverableError, bool) {
	var rec *RecoverableError
	if errors.As(err, &rec) {
		return rec, true
	}
	return nil, false
}

// InvocationResponse is the standard envelope for capability invocations
// surfaced over HTTP. Recoverable failures are structurally distinguishable
// from successful observations so transcripts can render them apart.
//
// Success:
//
//	InvocationResponse{Success: true, Observation: "42"}
//
// Translated failure (policy applied):
//
//	InvocationResponse{Success: true, Observation: "try another tool", Recovered: true, Error: &RecoverableError{...}}
//
// Propagated failure:
//
//	InvocationResponse{Success: false, Error: &RecoverableError{...}}
type InvocationResponse struct {
	// Success indicates whether an observation was produced
	Success bool `json:"success"`

	// Observation is the capability output (or the translated failure text)
	Observation string `json:"observation,omitempty"`

	// Recovered marks an observation produced by error translation
	Recovered bool `json:"recovered,omitempty"`

	// Direct mirrors the capability's direct-return flag
	Direct bool `json:"direct,omitempty"`

	// Error carries the structured failure when Success is false,
	// or the original signal behind a recovered observation
	Error *RecoverableError `json:"error,omitempty"`
}

// HTTPStatusForCategory returns the HTTP status code for an error category.
// The HTTP service uses this when a recoverable failure propagates, so
// status codes stay consistent across capabilities.
//
// Mapping:
//   - CategoryInputError   → 400 Bad Request
//   - CategoryNotFound     → 404 Not Found
//   - CategoryAuthError    → 401 Unauthorized
//   - CategoryRateLimit    → 429 Too Many Requests
//   - CategoryServiceError → 503 Service Unavailable
//   - Unknown              → 500 Internal Server Error
func HTTPStatusForCategory(category ErrorCategory) int {
	switch category {
	case CategoryInputError:
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryAuthError:
		return http.StatusUnauthorized
	case CategoryRateLimit:
		return http.StatusTooManyRequests
	case CategoryServiceError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
