/*
errors.go - Centralized error types for the leave ledger

ERROR CATEGORIES:
  1. Validation errors - malformed create params, rejected before any write
  2. Integrity errors - ledger rows whose source cannot be resolved; fatal
     for the call, never retried
  3. Not-found errors - collaborator lookups that came back empty

Aggregation queries never raise on "no matching rows"; they return zero or
an absent map key so callers can compose arithmetic without nil checks.
*/
package leave

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingSource is returned when a balance change is created without
	// a source id or source type.
	ErrMissingSource = errors.New("balance change requires a source id and source type")

	// ErrMissingType is returned when a balance change is created without a
	// categorical type.
	ErrMissingType = errors.New("balance change requires a type")

	// ErrUnknownSourceType is returned when a ledger row's source type can't
	// be resolved to an owning entitlement. This is a data-integrity fault.
	ErrUnknownSourceType = errors.New("unknown balance change source type")

	// ErrEntitlementNotFound is returned when a referenced entitlement
	// doesn't exist.
	ErrEntitlementNotFound = errors.New("entitlement not found")

	// ErrLeaveRequestNotFound is returned when a referenced leave request or
	// leave request date doesn't exist.
	ErrLeaveRequestNotFound = errors.New("leave request not found")

	// ErrPeriodNotFound is returned when no absence period matches.
	ErrPeriodNotFound = errors.New("absence period not found")

	// ErrBalanceChangeNotFound is returned when a ledger row lookup by id
	// comes back empty.
	ErrBalanceChangeNotFound = errors.New("balance change not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a malformed create call, rejected before any write.
type ValidationError struct {
	Field  string
	Reason error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid balance change: %s: %v", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

// IntegrityError reports a ledger row whose source type is neither an
// entitlement nor a leave request day. Surfaced to the caller as fatal for
// that call.
type IntegrityError struct {
	BalanceChangeID int64
	SourceType      SourceType
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("balance change %d: %q is not a valid source type for entitlement resolution",
		e.BalanceChangeID, e.SourceType)
}

func (e *IntegrityError) Unwrap() error { return ErrUnknownSourceType }

// IsValidation reports whether the error is a pre-write validation rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntitlementNotFound) ||
		errors.Is(err, ErrLeaveRequestNotFound) ||
		errors.Is(err, ErrPeriodNotFound) ||
		errors.Is(err, ErrBalanceChangeNotFound)
}
