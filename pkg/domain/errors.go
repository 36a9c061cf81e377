package domain

import (
	"fmt"
	"strings"
)

// ErrorKind buckets every failure the core can return to a caller. All of
// them are recoverable: retry, wait, or escalate to a human.
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindNotFound         ErrorKind = "not_found"
	KindStateConflict    ErrorKind = "state_conflict"
	KindExpired          ErrorKind = "expired"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindRateLimited      ErrorKind = "rate_limited"
)

// Error is the caller-facing failure shape. Message is human-readable and
// safe to surface; Details carries structured diagnostics.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func NotFound(entity, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s %q not found", entity, id),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

func StateConflict(code, message string) *Error {
	return &Error{Kind: KindStateConflict, Code: code, Message: message}
}

func Expired(code, message string) *Error {
	return &Error{Kind: KindExpired, Code: code, Message: message}
}

func PermissionDenied(code, message string) *Error {
	return &Error{Kind: KindPermissionDenied, Code: code, Message: message}
}

func RateLimited(message string) *Error {
	return &Error{Kind: KindRateLimited, Code: "RATE_LIMITED", Message: message}
}

// ChecksIncompleteError is returned by certify when any required check has
// not passed. Failing lists every such check by name.
type ChecksIncompleteError struct {
	Failing []string
}

func (e *ChecksIncompleteError) Error() string {
	return "cannot certify: required checks not passed: " + strings.Join(e.Failing, ", ")
}

// Domain converts the error into the caller-facing Error shape.
func (e *ChecksIncompleteError) Domain() *Error {
	return &Error{
		Kind:    KindStateConflict,
		Code:    "CHECKS_INCOMPLETE",
		Message: e.Error(),
		Details: map[string]any{"failing_checks": e.Failing},
	}
}
