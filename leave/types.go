/*
Package leave implements a balance-change ledger for employee leave
entitlements: accrual, consumption and time-boxed expiry of brought-forward
and TOIL credits.

KEY CONCEPTS IN THIS FILE (types.go):
  - BalanceChange: A signed ledger row attributable to a source
  - Entitlement / LeaveRequest / LeaveRequestDate: Collaborator-owned
    entities, referenced by id only
  - AbsencePeriod / Contract: The date boundaries that decide which leave
    days count toward an entitlement

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for day-fraction amounts, compared
     exactly - no float epsilon anywhere in the expiry arithmetic
  2. Weak references: Leave requests and entitlements are never loaded or
     deleted by this package's storage; callers drive cascades explicitly
  3. Corrections, not edits: An expired balance is recorded as a new row
     pointing back at the original via ExpiredBalanceChangeID

SEE ALSO:
  - store.go: Persistence and collaborator interfaces
  - balance.go: Aggregation queries over the ledger
  - expiry.go: FIFO expiry engine
*/
package leave

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// SOURCE TYPES
// =============================================================================

// SourceType identifies what kind of record a balance change belongs to.
type SourceType string

const (
	// SourceEntitlement marks rows created during entitlement calculation:
	// the initial grant, brought-forward days and public holiday credits.
	SourceEntitlement SourceType = "entitlement"

	// SourceLeaveRequestDay marks rows owned by a single calendar day of a
	// leave request. Each LeaveRequestDate owns exactly one row.
	SourceLeaveRequestDay SourceType = "leave_request_day"

	// SourceTOILRequest marks rows accrued directly by a TOIL request.
	// Rows with this source cannot be resolved to an owning entitlement.
	SourceTOILRequest SourceType = "toil_request"
)

// Valid reports whether st is a declared source type.
func (st SourceType) Valid() bool {
	switch st {
	case SourceEntitlement, SourceLeaveRequestDay, SourceTOILRequest:
		return true
	}
	return false
}

// =============================================================================
// BALANCE CHANGE - The ledger row
// =============================================================================

// BalanceChange is a single signed adjustment to an absence-type balance.
// Entitlement grants are stored positive, consumption negative.
//
// A row with non-nil ExpiredBalanceChangeID is a correction: it deducts the
// unused portion of the referenced row after its expiry date passed. At most
// one correction exists per original; recomputation updates it in place.
type BalanceChange struct {
	ID                     int64
	SourceID               int64
	SourceType             SourceType
	TypeID                 int64 // categorical: Leave, Brought Forward, ...
	Amount                 decimal.Decimal
	ExpiryDate             *Date
	ExpiredBalanceChangeID *int64
}

// IsCorrection reports whether the row expires another row rather than
// representing a fresh grant or consumption.
func (bc BalanceChange) IsCorrection() bool { return bc.ExpiredBalanceChangeID != nil }

// ExpiredBy returns the referenced original id, or 0 for non-corrections.
func (bc BalanceChange) ExpiredBy() int64 {
	if bc.ExpiredBalanceChangeID == nil {
		return 0
	}
	return *bc.ExpiredBalanceChangeID
}

// =============================================================================
// COLLABORATOR ENTITIES (owned elsewhere, referenced by id)
// =============================================================================

// AbsencePeriod is the accounting period an entitlement belongs to.
type AbsencePeriod struct {
	ID        int64
	Title     string
	StartDate Date
	EndDate   Date
}

// Entitlement is the total leave granted to a contact for one absence type
// over one absence period. Ledger rows with SourceEntitlement and a matching
// SourceID are its components.
type Entitlement struct {
	ID        int64
	ContactID int64
	TypeID    int64
	PeriodID  int64
}

// RequestType distinguishes the kinds of leave request.
type RequestType string

const (
	RequestTypeLeave         RequestType = "leave"
	RequestTypeSickness      RequestType = "sickness"
	RequestTypeTOIL          RequestType = "toil"
	RequestTypePublicHoliday RequestType = "public_holiday"
)

// LeaveRequest covers a contiguous span of calendar days for one contact and
// absence type. A nil ToDate means a single-day request equal to FromDate.
type LeaveRequest struct {
	ID          int64
	ContactID   int64
	TypeID      int64
	FromDate    Date
	ToDate      *Date
	StatusID    int64
	RequestType RequestType
	Deleted     bool
}

// EffectiveToDate returns ToDate, or FromDate for single-day requests.
func (lr LeaveRequest) EffectiveToDate() Date {
	if lr.ToDate == nil {
		return lr.FromDate
	}
	return *lr.ToDate
}

// LeaveRequestDate is one calendar day covered by a leave request. It owns
// exactly one ledger row with SourceLeaveRequestDay.
type LeaveRequestDate struct {
	ID             int64
	LeaveRequestID int64
	Date           Date
}

// Contract is a job-contract revision window for a contact. A nil
// PeriodEndDate means the contract is open-ended.
type Contract struct {
	ID              int64
	ContactID       int64
	PeriodStartDate Date
	PeriodEndDate   *Date
	Deleted         bool
}

// OverlapsRequest reports whether the request's [FromDate, ToDate] interval
// overlaps the contract period. An open-ended contract extends to unbounded
// future; a nil ToDate is treated as a single-day request.
func (c Contract) OverlapsRequest(lr LeaveRequest) bool {
	if c.PeriodEndDate != nil && lr.FromDate.After(*c.PeriodEndDate) {
		return false
	}
	if lr.ToDate != nil {
		return lr.ToDate.AfterOrEqual(c.PeriodStartDate)
	}
	return lr.FromDate.AfterOrEqual(c.PeriodStartDate)
}

// =============================================================================
// CATEGORICAL TYPE OPTIONS
// =============================================================================

// Option names for BalanceChange.TypeID. The value side of the mapping is
// deployment configuration, so it is injected (see OptionSet) rather than
// declared as constants.
const (
	TypeLeave          = "Leave"
	TypeBroughtForward = "Brought Forward"
	TypePublicHoliday  = "Public Holiday"
	TypeOverridden     = "Overridden"
	TypeDebit          = "Debit"
)

// TypeOptions is a read-only name<->value mapping for balance-change types.
type TypeOptions interface {
	TypeValue(name string) (int64, bool)
	TypeName(value int64) (string, bool)
}

// OptionSet is a map-backed TypeOptions.
type OptionSet struct {
	byName  map[string]int64
	byValue map[int64]string
}

func NewOptionSet(values map[string]int64) *OptionSet {
	os := &OptionSet{
		byName:  make(map[string]int64, len(values)),
		byValue: make(map[int64]string, len(values)),
	}
	for name, value := range values {
		os.byName[name] = value
		os.byValue[value] = name
	}
	return os
}

// DefaultOptionSet enumerates the built-in balance-change types in a fixed
// order. Deployments with existing data pass their own mapping instead.
func DefaultOptionSet() *OptionSet {
	return NewOptionSet(map[string]int64{
		TypeLeave:          1,
		TypeBroughtForward: 2,
		TypePublicHoliday:  3,
		TypeOverridden:     4,
		TypeDebit:          5,
	})
}

func (os *OptionSet) TypeValue(name string) (int64, bool) {
	v, ok := os.byName[name]
	return v, ok
}

func (os *OptionSet) TypeName(value int64) (string, bool) {
	n, ok := os.byValue[value]
	return n, ok
}
