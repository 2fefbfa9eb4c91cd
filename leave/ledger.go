/*
ledger.go - Lifecycle surface of the balance ledger

PURPOSE:
  The entry points that leave-request and entitlement lifecycle code calls
  when records are created, edited or removed. Creation validates before any
  write; deletion is always an explicit call - nothing in this package
  cascades into collaborator-owned records, and nothing here deletes ledger
  rows on its own.

PER-DATE AMOUNTS:
  AmountForDate computes the deduction for a single day of a request from
  the contact's work pattern. Days already covered by a public-holiday leave
  request deduct zero, so a request spanning a public holiday doesn't charge
  the employee twice for that day.
*/
package leave

import (
	"context"

	"github.com/shopspring/decimal"
)

// CreateParams carries the fields of a new ledger row.
type CreateParams struct {
	SourceID               int64
	SourceType             SourceType
	TypeID                 int64
	Amount                 decimal.Decimal
	ExpiryDate             *Date
	ExpiredBalanceChangeID *int64
}

// Ledger is the lifecycle facade over the balance-change store.
type Ledger struct {
	Store         Store
	LeaveRequests LeaveRequests
	WorkPatterns  WorkPatterns
	Options       TypeOptions
}

func NewLedger(store Store, requests LeaveRequests, patterns WorkPatterns, options TypeOptions) *Ledger {
	return &Ledger{
		Store:         store,
		LeaveRequests: requests,
		WorkPatterns:  patterns,
		Options:       options,
	}
}

// =============================================================================
// CREATE
// =============================================================================

// CreateBalanceChange validates params and appends a row. Malformed params
// are rejected with a ValidationError before any write happens.
func (l *Ledger) CreateBalanceChange(ctx context.Context, params CreateParams) (*BalanceChange, error) {
	if params.SourceID == 0 || params.SourceType == "" {
		return nil, &ValidationError{Field: "source", Reason: ErrMissingSource}
	}
	if !params.SourceType.Valid() {
		return nil, &ValidationError{Field: "source_type", Reason: ErrUnknownSourceType}
	}
	if params.TypeID == 0 {
		return nil, &ValidationError{Field: "type_id", Reason: ErrMissingType}
	}

	bc := &BalanceChange{
		SourceID:               params.SourceID,
		SourceType:             params.SourceType,
		TypeID:                 params.TypeID,
		Amount:                 params.Amount,
		ExpiryDate:             params.ExpiryDate,
		ExpiredBalanceChangeID: params.ExpiredBalanceChangeID,
	}

	id, err := l.Store.Insert(ctx, bc)
	if err != nil {
		return nil, err
	}
	bc.ID = id
	return bc, nil
}

// =============================================================================
// DELETE - Always explicit, driven by collaborator lifecycle code
// =============================================================================

// DeleteBySource removes all rows for one (sourceType, sourceID) pair.
func (l *Ledger) DeleteBySource(ctx context.Context, sourceType SourceType, sourceID int64) error {
	return l.Store.DeleteBySource(ctx, sourceType, []int64{sourceID})
}

// DeleteForLeaveRequestDate removes the row owned by one leave request date.
func (l *Ledger) DeleteForLeaveRequestDate(ctx context.Context, date LeaveRequestDate) error {
	return l.Store.DeleteBySource(ctx, SourceLeaveRequestDay, []int64{date.ID})
}

// DeleteForEntitlement removes the entitlement-sourced rows of an
// entitlement, corrections included.
func (l *Ledger) DeleteForEntitlement(ctx context.Context, entitlementID int64) error {
	return l.Store.DeleteBySource(ctx, SourceEntitlement, []int64{entitlementID})
}

// DeleteAllForLeaveRequest removes the rows owned by every date of the given
// leave request.
func (l *Ledger) DeleteAllForLeaveRequest(ctx context.Context, lr *LeaveRequest) error {
	dates, err := l.LeaveRequests.DatesFor(ctx, lr.ID)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		return nil
	}
	ids := make([]int64, len(dates))
	for i, d := range dates {
		ids[i] = d.ID
	}
	return l.Store.DeleteBySource(ctx, SourceLeaveRequestDay, ids)
}

// =============================================================================
// PER-DATE LOOKUPS
// =============================================================================

// ForLeaveRequestDates returns the rows owned by the given dates, keyed by
// leave-request-date id.
func (l *Ledger) ForLeaveRequestDates(ctx context.Context, dates []LeaveRequestDate) (map[int64]BalanceChange, error) {
	if len(dates) == 0 {
		return map[int64]BalanceChange{}, nil
	}
	ids := make([]int64, len(dates))
	for i, d := range dates {
		ids[i] = d.ID
	}

	rows, err := l.Store.BySource(ctx, SourceLeaveRequestDay, ids)
	if err != nil {
		return nil, err
	}

	byDate := make(map[int64]BalanceChange, len(rows))
	for _, bc := range rows {
		byDate[bc.SourceID] = bc
	}
	return byDate, nil
}

// ExistingChangeForDate returns the ledger row linked to a leave request
// date on the same calendar day as date, for the same contact as lr. Returns
// nil unless exactly one such row exists.
func (l *Ledger) ExistingChangeForDate(ctx context.Context, lr *LeaveRequest, date Date) (*BalanceChange, error) {
	dates, err := l.LeaveRequests.DatesOn(ctx, lr.ContactID, date)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(dates))
	for i, d := range dates {
		ids[i] = d.ID
	}
	rows, err := l.Store.BySource(ctx, SourceLeaveRequestDay, ids)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, nil
	}
	return &rows[0], nil
}

// AmountForDate calculates the (negative) deduction for one day of the given
// request. Zero when a public-holiday leave request already covers the day,
// or when no work pattern applies to the contact.
func (l *Ledger) AmountForDate(ctx context.Context, lr *LeaveRequest, date Date) (decimal.Decimal, error) {
	existing, err := l.ExistingChangeForDate(ctx, lr, date)
	if err != nil {
		return decimal.Zero, err
	}
	if existing != nil {
		if publicHoliday, ok := l.Options.TypeValue(TypePublicHoliday); ok && existing.TypeID == publicHoliday {
			return decimal.Zero, nil
		}
	}

	amount, ok, err := l.WorkPatterns.LeaveDaysForDate(ctx, lr.ContactID, date)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, nil
	}
	return amount.Neg(), nil
}
