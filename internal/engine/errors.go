package engine

import (
	"errors"
	"fmt"
)

// DiffError represents a failure detected while reconciling a batch.
//
// Only INVARIANT_VIOLATION aborts a batch. REBUILD_FAILED and NOT_FOUND are
// produced by rebuild strategies and degrade to "diff unresolved".
type DiffError struct {
	// Code identifies the error category.
	Code DiffErrorCode

	// Message is a human-readable description.
	Message string

	// DocID identifies the affected record, if any.
	DocID string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause.
	Err error
}

// DiffErrorCode categorizes reconciliation errors.
type DiffErrorCode string

const (
	// ErrCodeInvariantViolation indicates the backends disagree in a way
	// that must never happen, e.g. a record only the relational store has.
	ErrCodeInvariantViolation DiffErrorCode = "INVARIANT_VIOLATION"

	// ErrCodeRebuildFailed indicates a record could not be rebuilt from
	// its transaction history.
	ErrCodeRebuildFailed DiffErrorCode = "REBUILD_FAILED"

	// ErrCodeNotFound indicates a referenced record was missing.
	ErrCodeNotFound DiffErrorCode = "NOT_FOUND"
)

// ErrInvariant is matched by errors.Is for any invariant violation.
var ErrInvariant = errors.New("reconciliation invariant violated")

// Error implements the error interface.
func (e *DiffError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.DocID != "" {
		msg = fmt.Sprintf("%s (doc=%s)", msg, e.DocID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *DiffError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrInvariant) true for invariant violations.
func (e *DiffError) Is(target error) bool {
	return target == ErrInvariant && e.Code == ErrCodeInvariantViolation
}

// IsInvariantError returns true if the error is an invariant violation.
// Uses errors.As to handle wrapped errors.
func IsInvariantError(err error) bool {
	return hasCode(err, ErrCodeInvariantViolation)
}

// IsNotFound returns true if the error, or a DiffError it wraps, reports a
// missing record.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// hasCode walks nested DiffErrors looking for code.
func hasCode(err error, code DiffErrorCode) bool {
	for err != nil {
		var de *DiffError
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// NewInvariantError creates a DiffError for an invariant violation.
func NewInvariantError(message string, details map[string]string) *DiffError {
	return &DiffError{
		Code:    ErrCodeInvariantViolation,
		Message: message,
		Details: details,
	}
}

// NewNotFoundError creates a DiffError for a missing record.
func NewNotFoundError(what, id string) *DiffError {
	return &DiffError{
		Code:    ErrCodeNotFound,
		Message: what + " not found",
		DocID:   id,
	}
}

// NewRebuildError wraps the cause of a failed rebuild.
func NewRebuildError(caseID string, err error) *DiffError {
	return &DiffError{
		Code:    ErrCodeRebuildFailed,
		Message: "rebuild failed",
		DocID:   caseID,
		Err:     err,
	}
}
