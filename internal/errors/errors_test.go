package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestAdvisorError_Error(t *testing.T) {
	err := &AdvisorError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "course not found",
	}

	expected := "NOT_FOUND: course not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("question is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "question is required" {
		t.Errorf("Message = %q, want %q", err.Message, "question is required")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("course", "DAT110")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["identifier"] != "DAT110" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "DAT110")
	}
	if err.Details["kind"] != "course" {
		t.Errorf("Details[kind] = %v, want %q", err.Details["kind"], "course")
	}
}

func TestNewScopeRefusal(t *testing.T) {
	err := NewScopeRefusal()

	if err.Code != ErrScopeRefusal {
		t.Errorf("Code = %q, want %q", err.Code, ErrScopeRefusal)
	}
	if err.Status != 200 {
		t.Errorf("Status = %d, want 200", err.Status)
	}
}

func TestDegradedErrorsUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")

	tests := []struct {
		name string
		err  *AdvisorError
		code ErrorCode
	}{
		{"extraction", NewExtractionDegraded(cause), ErrExtractionDegraded},
		{"retrieval", NewRetrievalDegraded("rules", cause), ErrRetrievalDegraded},
		{"service", NewServiceError("complete", cause), ErrServiceError},
		{"synthesis", NewSynthesisFailure(cause), ErrSynthesisFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if !stderrors.Is(tt.err, cause) {
				t.Error("errors.Is(err, cause) = false, want true")
			}
		})
	}
}

func TestNewRetrievalDegraded_Details(t *testing.T) {
	err := NewRetrievalDegraded("course", nil)

	if err.Details["branch"] != "course" {
		t.Errorf("Details[branch] = %v, want %q", err.Details["branch"], "course")
	}
	if err.Message != "course retrieval failed: unknown error" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewInternal(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		originalErr := fmt.Errorf("database connection failed")
		err := NewInternal(originalErr)

		if err.Code != ErrInternal {
			t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
		}
		if err.Status != 500 {
			t.Errorf("Status = %d, want 500", err.Status)
		}
		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want %q", err.Message, "an internal error occurred")
		}
		if err.Details["internal_error"] != "database connection failed" {
			t.Errorf("Details[internal_error] = %q, want %q", err.Details["internal_error"], "database connection failed")
		}
	})

	t.Run("with nil", func(t *testing.T) {
		err := NewInternal(nil)

		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want %q", err.Message, "an internal error occurred")
		}
		if err.Details == nil {
			t.Error("Details should not be nil")
		}
	})
}

func TestIs(t *testing.T) {
	t.Run("matching code", func(t *testing.T) {
		err := NewNotFound("course", "test")
		if !Is(err, ErrNotFound) {
			t.Error("Is() = false, want true")
		}
	})

	t.Run("non-matching code", func(t *testing.T) {
		err := NewNotFound("course", "test")
		if Is(err, ErrInvalidRequest) {
			t.Error("Is() = true, want false")
		}
	})

	t.Run("non-AdvisorError", func(t *testing.T) {
		err := fmt.Errorf("plain error")
		if Is(err, ErrNotFound) {
			t.Error("Is() = true, want false for non-AdvisorError")
		}
	})

	t.Run("wrapped AdvisorError", func(t *testing.T) {
		inner := NewNotFound("program", "test")
		wrapped := fmt.Errorf("lookup: %w", inner)
		if !Is(wrapped, ErrNotFound) {
			t.Error("Is() = false, want true for wrapped AdvisorError")
		}
		if Is(wrapped, ErrInternal) {
			t.Error("Is() = true, want false for wrong code on wrapped AdvisorError")
		}
	})
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(NewServiceError("embed", nil)); got != ErrServiceError {
		t.Errorf("CodeOf() = %q, want %q", got, ErrServiceError)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != ErrInternal {
		t.Errorf("CodeOf(plain) = %q, want %q", got, ErrInternal)
	}
}
