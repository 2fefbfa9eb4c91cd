/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines the boundary between the ledger logic and the outside world.

  Store is the durable home of BalanceChange rows and nothing else. It is
  queried with structured filters, never with assembled SQL fragments, so
  the same aggregation code runs against SQLite and the in-memory store.

  The collaborator interfaces (Entitlements, LeaveRequests, Periods,
  Contracts, WorkPatterns) wrap entities owned by the host application.
  This package looks records up through them and never cascades deletes
  into them; lifecycle code calls back into the ledger explicitly.

OWNERSHIP CONTRACT:
  - Insert/Update/Delete touch only the ledger table
  - Update exists solely for the expiry engine's correction upsert
  - DeleteBySource is driven by explicit collaborator calls

IMPLEMENTATIONS:
  - store/sqlite: production store plus reference collaborator tables
  - leave/store: in-memory store and fixture directory for tests
*/
package leave

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER STORE
// =============================================================================

// Store persists BalanceChange rows. All list results are ordered by id
// ascending unless stated otherwise; insertion order is the tie-break for
// stable breakdown reporting.
type Store interface {
	// Insert appends a row and returns its id.
	Insert(ctx context.Context, bc *BalanceChange) (int64, error)

	// Update rewrites an existing row in place. Only the expiry engine uses
	// this, to refresh an existing correction during recalculation.
	Update(ctx context.Context, bc *BalanceChange) error

	// FindByID returns the row with the given id, or ErrBalanceChangeNotFound.
	FindByID(ctx context.Context, id int64) (*BalanceChange, error)

	// BySource returns rows whose (SourceType, SourceID) match.
	BySource(ctx context.Context, sourceType SourceType, sourceIDs []int64) ([]BalanceChange, error)

	// EntitlementComponents returns the entitlement-sourced rows making up
	// the given entitlement's breakdown. With expiredOnly false, only rows
	// without a correction reference are returned; with expiredOnly true,
	// only correction rows whose expiry date is before asOf.
	EntitlementComponents(ctx context.Context, entitlementID int64, expiredOnly bool, asOf Date) ([]BalanceChange, error)

	// CorrectionFor returns the row expiring the given original, or nil.
	CorrectionFor(ctx context.Context, originalID int64) (*BalanceChange, error)

	// DueForExpiry returns non-correction rows with an expiry date before
	// asOf and no correction row yet, ordered by expiry date then id.
	DueForExpiry(ctx context.Context, asOf Date) ([]BalanceChange, error)

	// ExpiringBetween returns non-correction rows whose expiry date falls in
	// [from, to], whether or not a correction already exists, ordered by
	// expiry date then id.
	ExpiringBetween(ctx context.Context, from, to Date) ([]BalanceChange, error)

	// DeleteBySource removes all rows matching (SourceType, SourceID in ids).
	DeleteBySource(ctx context.Context, sourceType SourceType, sourceIDs []int64) error
}

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Entitlements looks up collaborator-owned entitlement records.
type Entitlements interface {
	// FindByID returns the entitlement or ErrEntitlementNotFound.
	EntitlementByID(ctx context.Context, id int64) (*Entitlement, error)

	// ForLeaveRequest returns the entitlement covering the request's
	// contact, absence type and dates, or ErrEntitlementNotFound.
	EntitlementForLeaveRequest(ctx context.Context, lr *LeaveRequest) (*Entitlement, error)

	// ForContacts returns entitlements for the given contacts in the given
	// period. typeID zero matches any absence type.
	EntitlementsForContacts(ctx context.Context, contactIDs []int64, periodID, typeID int64) ([]Entitlement, error)
}

// LeaveRequestQuery filters leave request lookups. Zero-valued fields match
// everything. Deleted requests are excluded unless IncludeDeleted is set.
type LeaveRequestQuery struct {
	ContactIDs     []int64
	TypeID         int64
	Statuses       []int64
	RequestTypes   []RequestType
	ExcludeIDs     []int64
	IncludeDeleted bool
}

// Matches reports whether the request satisfies the query. Shared by store
// implementations so filter semantics stay identical across backends.
func (q LeaveRequestQuery) Matches(lr LeaveRequest) bool {
	if lr.Deleted && !q.IncludeDeleted {
		return false
	}
	if len(q.ContactIDs) > 0 && !containsInt64(q.ContactIDs, lr.ContactID) {
		return false
	}
	if q.TypeID != 0 && lr.TypeID != q.TypeID {
		return false
	}
	if len(q.Statuses) > 0 && !containsInt64(q.Statuses, lr.StatusID) {
		return false
	}
	if len(q.RequestTypes) > 0 {
		found := false
		for _, rt := range q.RequestTypes {
			if lr.RequestType == rt {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if containsInt64(q.ExcludeIDs, lr.ID) {
		return false
	}
	return true
}

// LeaveRequests looks up collaborator-owned leave requests and their dates,
// and exposes the deployment's status option lists.
type LeaveRequests interface {
	// FindByID returns the request or ErrLeaveRequestNotFound. Deleted
	// requests are still returned; callers check the flag.
	LeaveRequestByID(ctx context.Context, id int64) (*LeaveRequest, error)

	// FindDateByID returns a single leave request date or
	// ErrLeaveRequestNotFound.
	LeaveRequestDateByID(ctx context.Context, id int64) (*LeaveRequestDate, error)

	// DatesFor returns the request's dates ordered by date ascending.
	DatesFor(ctx context.Context, leaveRequestID int64) ([]LeaveRequestDate, error)

	// DatesOn returns all dates of non-deleted requests belonging to the
	// contact that fall on the given calendar day.
	DatesOn(ctx context.Context, contactID int64, date Date) ([]LeaveRequestDate, error)

	// Find returns requests matching the query, ordered by id ascending.
	FindLeaveRequests(ctx context.Context, q LeaveRequestQuery) ([]LeaveRequest, error)

	// ApprovedStatuses lists the status option values counted as approved
	// (approved and admin-approved).
	ApprovedStatuses() []int64

	// OpenStatuses lists the status option values counted as open (awaiting
	// approval and more-information-required).
	OpenStatuses() []int64
}

// Periods looks up absence periods.
type Periods interface {
	// FindByID returns the period or ErrPeriodNotFound.
	PeriodByID(ctx context.Context, id int64) (*AbsencePeriod, error)

	// ContainingDates returns the period containing [from, to], or
	// ErrPeriodNotFound when no period covers the range.
	PeriodContainingDates(ctx context.Context, from, to Date) (*AbsencePeriod, error)
}

// Contracts looks up job-contract windows for a contact. Implementations
// return the collapsed latest-revision view of each contract.
type Contracts interface {
	ContractsFor(ctx context.Context, contactID int64) ([]Contract, error)
}

// WorkPatterns computes the deduction for one day of leave from the
// contact's work pattern. ok is false when no pattern applies to the
// contact on that date.
type WorkPatterns interface {
	LeaveDaysForDate(ctx context.Context, contactID int64, date Date) (amount decimal.Decimal, ok bool, err error)
}

// FlatWorkPattern deducts one full day for every weekday and nothing for
// weekends. It stands in where the host application has no work-pattern
// configuration.
type FlatWorkPattern struct{}

func (FlatWorkPattern) LeaveDaysForDate(_ context.Context, _ int64, date Date) (decimal.Decimal, bool, error) {
	if date.IsWeekend() {
		return decimal.Zero, true, nil
	}
	return decimal.NewFromInt(1), true, nil
}

func containsInt64(haystack []int64, needle int64) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
