package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/recipients/internal/address"
	"github.com/roach88/recipients/internal/store"
)

// InvariantError reports a state the decision logic should never produce.
//
// Invariant errors are fatal for the call that hit them and must not be
// retried: the same input would take the same path again.
type InvariantError struct {
	// Code identifies the error category.
	Code InvariantErrorCode

	// Message is a human-readable description.
	Message string

	// Address is the claim being resolved, if any.
	Address address.Address

	// Err is the underlying cause, if any.
	Err error
}

// InvariantErrorCode categorizes invariant errors.
type InvariantErrorCode string

const (
	// ErrCodeUniqueness means a write would have given two recipients the
	// same number, ACI or PNI.
	ErrCodeUniqueness InvariantErrorCode = "UNIQUENESS_VIOLATION"

	// ErrCodeInvalidHandle means a handle does not name a recipient.
	ErrCodeInvalidHandle InvariantErrorCode = "INVALID_HANDLE"

	// ErrCodeInvalidTrust means a claim carried neither TrustHigh nor TrustLow.
	ErrCodeInvalidTrust InvariantErrorCode = "INVALID_TRUST"
)

// Error implements the error interface.
func (e *InvariantError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if !e.Address.IsZero() {
		msg += fmt.Sprintf(" (address=%s)", e.Address)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *InvariantError) Unwrap() error { return e.Err }

// IsUniquenessViolation reports whether err is an InvariantError caused by a
// storage uniqueness constraint. Uses errors.As to handle wrapped errors.
func IsUniquenessViolation(err error) bool {
	var ie *InvariantError
	if errors.As(err, &ie) {
		return ie.Code == ErrCodeUniqueness
	}
	return false
}

// classifyResolveError turns a failed transaction into the error returned by
// Resolve. Uniqueness violations become InvariantErrors; everything else is
// wrapped as is.
func classifyResolveError(addr address.Address, err error) error {
	if errors.Is(err, store.ErrUniqueness) {
		return &InvariantError{
			Code:    ErrCodeUniqueness,
			Message: "resolution produced conflicting identifiers",
			Address: addr,
			Err:     err,
		}
	}
	return fmt.Errorf("resolve %s: %w", addr, err)
}
