package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the ledger, wallet and commission layers.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrLeaseBusy         = errors.New("lease held by another instance")
)

// ValidationError reports malformed ledger input: non-positive amount,
// currency mismatch, equal debit/credit accounts.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// NewValidationError formats a validation failure.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IdempotencyConflictError means a replayed operationId arrived with a
// different payload. Always fatal: it indicates a caller bug.
type IdempotencyConflictError struct {
	OperationID string
}

func (e *IdempotencyConflictError) Error() string {
	return "idempotency conflict on operation " + e.OperationID
}
