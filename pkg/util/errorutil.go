package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes rendered in the API error envelope.
const (
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeMalformedKey      = "MALFORMED_KEY"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeNotInBuffer       = "NOT_IN_BUFFER"
	CodeAlreadyClaimed    = "ALREADY_CLAIMED"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeInternal          = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

// NewMalformedKey reports a slot key or key list that cannot be parsed.
func NewMalformedKey(err error) error {
	de := NewDomainError(CodeMalformedKey, "malformed slot key", http.StatusUnprocessableEntity, nil)
	de.Err = err
	if err != nil {
		de.Details = map[string]any{"reason": err.Error()}
	}
	return de
}

// NewInvalidTransition reports an operation that is not allowed from the
// order's current lifecycle state.
func NewInvalidTransition(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidTransition, message, http.StatusConflict, details)
}

func NewNotInBuffer(orderID string) error {
	return NewDomainError(CodeNotInBuffer, "order is not in buffer", http.StatusConflict, map[string]any{"order_id": orderID})
}

func NewAlreadyClaimed(requestID string) error {
	return NewDomainError(CodeAlreadyClaimed, "request already claimed", http.StatusConflict, map[string]any{"request_id": requestID})
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

// MapError converts err for returning from a handler.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
