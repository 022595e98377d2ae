// Package errs defines the typed failures returned by the production
// lifecycle engine.
package errs

import (
	"errors"
	"fmt"
)

// NotFoundError means a referenced entity does not exist.
type NotFoundError struct {
	Entity string // "reactor", "product", "delay reason", "transaction"
	ID     string // id or lookup key; may be empty
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NotFound builds a NotFoundError keyed by a numeric id.
func NotFound(entity string, id uint) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}

// InvalidTransitionError means the transaction's current status does not
// allow the requested operation.
type InvalidTransitionError struct {
	ID   uint
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("transaction %d: invalid transition from %q to %q", e.ID, e.From, e.To)
}

// ConflictReason classifies a ConflictError.
type ConflictReason string

const (
	ReactorBusy        ConflictReason = "ReactorBusy"
	ConcurrentModified ConflictReason = "ConcurrentModification"
)

// ConflictError means the operation lost a race or hit the occupancy rule.
// Callers are expected to retry or report it; it is never ignored.
type ConflictError struct {
	Reason    ConflictReason
	ReactorID uint
	HolderID  uint // active transaction holding the reactor, when known
	TxID      uint // transaction being modified, for ConcurrentModification
}

func (e *ConflictError) Error() string {
	switch e.Reason {
	case ReactorBusy:
		if e.HolderID != 0 {
			return fmt.Sprintf("conflict(%s): reactor %d is occupied by transaction %d", e.Reason, e.ReactorID, e.HolderID)
		}
		return fmt.Sprintf("conflict(%s): reactor %d is occupied", e.Reason, e.ReactorID)
	default:
		return fmt.Sprintf("conflict(%s): transaction %d was modified concurrently", e.Reason, e.TxID)
	}
}

// ValidationError is a field-level invariant violation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StoreError wraps a persistence failure: commit, rollback, timeout or
// driver error. It is transient and safe to retry.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a conflict or a store failure.
// Not-found, invalid-transition and validation errors are caller bugs and
// must not be retried.
func IsRetryable(err error) bool {
	var ce *ConflictError
	var se *StoreError
	return errors.As(err, &ce) || errors.As(err, &se)
}

// Kind returns a short label for err, used for metrics and HTTP mapping.
func Kind(err error) string {
	var (
		nf *NotFoundError
		it *InvalidTransitionError
		ce *ConflictError
		ve *ValidationError
		se *StoreError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &it):
		return "invalid_transition"
	case errors.As(err, &ce):
		return "conflict"
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &se):
		return "store"
	default:
		return "internal"
	}
}
