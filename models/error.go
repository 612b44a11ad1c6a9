package models

import (
	"fmt"
	"strings"
)

// ErrorMessageResponse returns the error message response struct
type ErrorMessageResponse struct {
	Response MessageError
}

// MessageError contains the inner details for the error message response
type MessageError struct {
	Message string
	Error   string
}

// NotFoundError indicates the referenced donor or request does not exist.
type NotFoundError struct {
	Kind string // "donor" or "donor request"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictError indicates an invariant violation on write: donor already
// allotted, request already allotted, double-close, or withdraw while
// allotted.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

// NotReadyError is returned when a case close runs before the checklist
// predicate holds. Missing carries the unmet item names so the caller can
// render exactly what is outstanding.
type NotReadyError struct {
	Missing []string
}

func (e *NotReadyError) Error() string {
	return "case is not ready to close, missing: " + strings.Join(e.Missing, ", ")
}

// ValidationError rejects malformed request criteria at creation time.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UploadFailedError wraps a failure from the external upload service. A
// document slot is never half-updated when this is returned.
type UploadFailedError struct {
	Err error
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("upload failed: %v", e.Err)
}

func (e *UploadFailedError) Unwrap() error { return e.Err }
