package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents an advisor error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrScopeRefusal       ErrorCode = "SCOPE_REFUSAL"       // 200, deliberate policy response
	ErrExtractionDegraded ErrorCode = "EXTRACTION_DEGRADED" // non-fatal
	ErrRetrievalDegraded  ErrorCode = "RETRIEVAL_DEGRADED"  // non-fatal
	ErrServiceError       ErrorCode = "SERVICE_ERROR"       // 502
	ErrSynthesisFailure   ErrorCode = "SYNTHESIS_FAILURE"   // 502, fatal to the turn only
	ErrInternal           ErrorCode = "INTERNAL"            // 500
)

// AdvisorError represents a structured error with code, status, and details.
type AdvisorError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *AdvisorError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *AdvisorError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *AdvisorError {
	return &AdvisorError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing course or program.
func NewNotFound(kind, identifier string) *AdvisorError {
	return &AdvisorError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewScopeRefusal marks a question that falls outside the advisor's domain.
func NewScopeRefusal() *AdvisorError {
	return &AdvisorError{
		Code:    ErrScopeRefusal,
		Status:  200,
		Message: "question is outside the academic domain",
	}
}

// NewExtractionDegraded reports that the program list could not be read.
func NewExtractionDegraded(err error) *AdvisorError {
	return &AdvisorError{
		Code:    ErrExtractionDegraded,
		Status:  200,
		Message: "program mentions unavailable: " + causeText(err),
		cause:   err,
	}
}

// NewRetrievalDegraded reports a failed retrieval branch.
func NewRetrievalDegraded(branch string, err error) *AdvisorError {
	return &AdvisorError{
		Code:    ErrRetrievalDegraded,
		Status:  200,
		Message: fmt.Sprintf("%s retrieval failed: %s", branch, causeText(err)),
		Details: map[string]any{"branch": branch},
		cause:   err,
	}
}

// NewServiceError wraps a network, quota or timeout failure of a model backend.
func NewServiceError(op string, err error) *AdvisorError {
	return &AdvisorError{
		Code:    ErrServiceError,
		Status:  502,
		Message: fmt.Sprintf("%s: %s", op, causeText(err)),
		Details: map[string]any{"op": op},
		cause:   err,
	}
}

// NewSynthesisFailure reports that the answer could not be generated.
func NewSynthesisFailure(err error) *AdvisorError {
	return &AdvisorError{
		Code:    ErrSynthesisFailure,
		Status:  502,
		Message: "answer synthesis failed: " + causeText(err),
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the original error is kept in Details for logging.
func NewInternal(err error) *AdvisorError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &AdvisorError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
		cause:   err,
	}
}

// Is checks if err, or any error it wraps, is an AdvisorError with the given code.
func Is(err error, code ErrorCode) bool {
	var aErr *AdvisorError
	if stderrors.As(err, &aErr) {
		return aErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first AdvisorError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var aErr *AdvisorError
	if stderrors.As(err, &aErr) {
		return aErr.Code
	}
	return ErrInternal
}

func causeText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
