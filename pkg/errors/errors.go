package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so clones compare equal to their template.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrUnauthenticated    = New("UNAUTHENTICATED", http.StatusUnauthorized, "authentication required")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// Lifecycle transitions.
	ErrStateConflict  = New("STATE_CONFLICT", http.StatusConflict, "invalid lifecycle transition")
	ErrAlreadyStarted = New("ALREADY_STARTED", http.StatusConflict, "defence already started")
	ErrNotStarted     = New("NOT_STARTED", http.StatusConflict, "defence has not started")
	ErrAlreadyEnded   = New("ALREADY_ENDED", http.StatusConflict, "defence already ended")

	// Scheduling and scoring.
	ErrNoEligibleStudents = New("NO_ELIGIBLE_STUDENTS", http.StatusBadRequest, "no eligible students for stage and session")
	ErrInvalidPanelMember = New("INVALID_PANEL_MEMBER", http.StatusBadRequest, "one or more panel members are not eligible")
	ErrInvalidSubmission  = New("INVALID_SUBMISSION", http.StatusBadRequest, "invalid score submission")

	// Score sheets.
	ErrDuplicateCriterionName = New("DUPLICATE_CRITERION_NAME", http.StatusBadRequest, "criterion names must be unique")
	ErrWeightSumInvalid       = New("WEIGHT_SUM_INVALID", http.StatusBadRequest, "criteria weights must sum to 100")
)

// IsStateConflict reports whether err is one of the lifecycle transition errors.
func IsStateConflict(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case ErrStateConflict.Code, ErrAlreadyStarted.Code, ErrNotStarted.Code, ErrAlreadyEnded.Code:
		return true
	}
	return false
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
