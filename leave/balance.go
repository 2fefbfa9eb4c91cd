/*
balance.go - Aggregation queries over the ledger

PURPOSE:
  Answers "what is the balance" questions by summing ledger rows under
  structured filters. Two kinds of rows feed an entitlement's balance:

    - entitlement-sourced rows: the grant components (initial grant,
      brought-forward, public holiday credit) and any expiry corrections
    - leave-day rows: one negative row per approved calendar day, counted
      only when the day falls inside the entitlement's valid date windows
      and the owning request overlaps a non-deleted contract

  Every query returns a defined value on "no matching rows" - zero for
  sums, an absent key for grouped snapshots - never an error.

SIGN CONVENTION:
  Grants positive, consumption negative. Consumption-only sums are
  therefore always <= 0.
*/
package leave

import (
	"context"

	"github.com/shopspring/decimal"
)

// BalanceOptions filters BalanceForEntitlement.
type BalanceOptions struct {
	// Statuses restricts the leave-request branch to these status values.
	// Empty means any status.
	Statuses []int64

	// ExpiredOnly restricts the sum to correction rows.
	ExpiredOnly bool

	// ExcludeLeaveRequestIDs drops these requests from the sum, typically
	// the request currently being edited.
	ExcludeLeaveRequestIDs []int64
}

// ConsumptionOptions filters LeaveRequestBalanceForEntitlement.
type ConsumptionOptions struct {
	Statuses []int64

	// DateStart / DateLimit bound the counted days, inclusive on both ends.
	DateStart *Date
	DateLimit *Date

	// Public holidays may be stored as leave requests; these toggles exclude
	// them from, or restrict the sum to, such requests.
	ExcludePublicHolidays bool
	PublicHolidaysOnly    bool
}

// ContactBalances maps contact id -> absence type id -> balance. Pairs with
// no matching rows are absent, not zero.
type ContactBalances map[int64]map[int64]decimal.Decimal

func (cb ContactBalances) add(contactID, typeID int64, amount decimal.Decimal) {
	byType, ok := cb[contactID]
	if !ok {
		byType = make(map[int64]decimal.Decimal)
		cb[contactID] = byType
	}
	byType[typeID] = byType[typeID].Add(amount)
}

// Aggregator computes balances from the ledger store, scoped by the date
// windows and contract overlaps the resolver derives.
type Aggregator struct {
	Store         Store
	Entitlements  Entitlements
	LeaveRequests LeaveRequests
	Periods       Periods
	Resolver      *WindowResolver
}

func NewAggregator(store Store, ents Entitlements, requests LeaveRequests, periods Periods, resolver *WindowResolver) *Aggregator {
	return &Aggregator{
		Store:         store,
		Entitlements:  ents,
		LeaveRequests: requests,
		Periods:       periods,
		Resolver:      resolver,
	}
}

// =============================================================================
// ENTITLEMENT BALANCES
// =============================================================================

// BalanceForEntitlement sums the entitlement's grant components together
// with the leave-day rows falling inside its valid date windows.
func (a *Aggregator) BalanceForEntitlement(ctx context.Context, ent *Entitlement, opts BalanceOptions) (decimal.Decimal, error) {
	balance := decimal.Zero

	components, err := a.Store.BySource(ctx, SourceEntitlement, []int64{ent.ID})
	if err != nil {
		return decimal.Zero, err
	}
	for _, bc := range components {
		if opts.ExpiredOnly && !bc.IsCorrection() {
			continue
		}
		balance = balance.Add(bc.Amount)
	}

	consumption, err := a.consumptionRows(ctx, ent, consumptionFilter{
		statuses:   opts.Statuses,
		excludeIDs: opts.ExcludeLeaveRequestIDs,
	})
	if err != nil {
		return decimal.Zero, err
	}
	for _, bc := range consumption {
		if opts.ExpiredOnly && !bc.IsCorrection() {
			continue
		}
		balance = balance.Add(bc.Amount)
	}

	return balance, nil
}

// BreakdownForEntitlement returns the entitlement's component rows ordered
// by id. With expiredOnly false only rows without a correction reference are
// returned; with expiredOnly true only corrections already past their expiry
// date.
func (a *Aggregator) BreakdownForEntitlement(ctx context.Context, entitlementID int64, expiredOnly bool) ([]BalanceChange, error) {
	return a.Store.EntitlementComponents(ctx, entitlementID, expiredOnly, Today())
}

// BreakdownBalanceForEntitlement sums the non-expired component rows.
func (a *Aggregator) BreakdownBalanceForEntitlement(ctx context.Context, entitlementID int64) (decimal.Decimal, error) {
	components, err := a.BreakdownForEntitlement(ctx, entitlementID, false)
	if err != nil {
		return decimal.Zero, err
	}
	balance := decimal.Zero
	for _, bc := range components {
		balance = balance.Add(bc.Amount)
	}
	return balance, nil
}

// LeaveRequestBalanceForEntitlement sums only the non-expired leave-day rows
// of the entitlement, optionally bounded by dates and public-holiday
// toggles. Consumption rows are negative, so the result is always <= 0.
func (a *Aggregator) LeaveRequestBalanceForEntitlement(ctx context.Context, ent *Entitlement, opts ConsumptionOptions) (decimal.Decimal, error) {
	var requestTypes []RequestType
	if opts.PublicHolidaysOnly {
		requestTypes = []RequestType{RequestTypePublicHoliday}
	}

	rows, err := a.consumptionRows(ctx, ent, consumptionFilter{
		statuses:            opts.Statuses,
		requestTypes:        requestTypes,
		excludePublicHolidy: opts.ExcludePublicHolidays,
		dateStart:           opts.DateStart,
		dateLimit:           opts.DateLimit,
		liveOnly:            true,
	})
	if err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero
	for _, bc := range rows {
		balance = balance.Add(bc.Amount)
	}
	return balance, nil
}

// =============================================================================
// LEAVE REQUEST BALANCES
// =============================================================================

// BreakdownForLeaveRequest returns the rows owned by the request's dates,
// ordered by id. Deleted requests have no breakdown.
func (a *Aggregator) BreakdownForLeaveRequest(ctx context.Context, lr *LeaveRequest) ([]BalanceChange, error) {
	if lr.Deleted {
		return nil, nil
	}
	dates, err := a.LeaveRequests.DatesFor(ctx, lr.ID)
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
	return a.Store.BySource(ctx, SourceLeaveRequestDay, ids)
}

// TotalBalanceChangeForLeaveRequest sums the request's rows. By default only
// non-expired rows count, so a TOIL request with 5 days accrued and 3
// expired reports 5; with expiredOnly it reports -3.
func (a *Aggregator) TotalBalanceChangeForLeaveRequest(ctx context.Context, lr *LeaveRequest, expiredOnly bool) (decimal.Decimal, error) {
	rows, err := a.BreakdownForLeaveRequest(ctx, lr)
	if err != nil {
		return decimal.Zero, err
	}
	balance := decimal.Zero
	for _, bc := range rows {
		if bc.IsCorrection() == expiredOnly {
			balance = balance.Add(bc.Amount)
		}
	}
	return balance, nil
}

// =============================================================================
// CONTACT SNAPSHOTS
// =============================================================================

// BalanceForContacts returns the current balance per contact and absence
// type for the given period: entitlement components plus approved
// consumption within the period bounds and overlapping active contracts.
// typeID zero means all absence types.
func (a *Aggregator) BalanceForContacts(ctx context.Context, contactIDs []int64, periodID, typeID int64) (ContactBalances, error) {
	balances := make(ContactBalances)
	if len(contactIDs) == 0 {
		return balances, nil
	}

	period, err := a.Periods.PeriodByID(ctx, periodID)
	if err != nil {
		return nil, err
	}

	// Entitlement components, attributed via the owning entitlement.
	ents, err := a.Entitlements.EntitlementsForContacts(ctx, contactIDs, periodID, typeID)
	if err != nil {
		return nil, err
	}
	if len(ents) > 0 {
		ids := make([]int64, len(ents))
		byID := make(map[int64]Entitlement, len(ents))
		for i, ent := range ents {
			ids[i] = ent.ID
			byID[ent.ID] = ent
		}
		rows, err := a.Store.BySource(ctx, SourceEntitlement, ids)
		if err != nil {
			return nil, err
		}
		for _, bc := range rows {
			ent := byID[bc.SourceID]
			balances.add(ent.ContactID, ent.TypeID, bc.Amount)
		}
	}

	// Approved consumption within the period.
	err = a.eachConsumptionForContacts(ctx, contactIDs, *period, typeID, a.LeaveRequests.ApprovedStatuses(),
		func(lr LeaveRequest, bc BalanceChange) {
			balances.add(lr.ContactID, lr.TypeID, bc.Amount)
		})
	if err != nil {
		return nil, err
	}

	return balances, nil
}

// OpenLeaveRequestBalanceForContacts returns the would-be deductions of open
// (awaiting approval / more information required) requests per contact and
// absence type. Values are negative or the pair is absent.
func (a *Aggregator) OpenLeaveRequestBalanceForContacts(ctx context.Context, contactIDs []int64, periodID, typeID int64) (ContactBalances, error) {
	balances := make(ContactBalances)
	if len(contactIDs) == 0 {
		return balances, nil
	}

	period, err := a.Periods.PeriodByID(ctx, periodID)
	if err != nil {
		return nil, err
	}

	err = a.eachConsumptionForContacts(ctx, contactIDs, *period, typeID, a.LeaveRequests.OpenStatuses(),
		func(lr LeaveRequest, bc BalanceChange) {
			if bc.IsCorrection() {
				return
			}
			balances.add(lr.ContactID, lr.TypeID, bc.Amount)
		})
	if err != nil {
		return nil, err
	}

	return balances, nil
}

// =============================================================================
// TOIL
// =============================================================================

// TotalApprovedTOILForPeriod sums the approved TOIL accrued by a contact for
// an absence type over the given period.
func (a *Aggregator) TotalApprovedTOILForPeriod(ctx context.Context, period AbsencePeriod, contactID, typeID int64) (decimal.Decimal, error) {
	return a.TotalTOILForContact(ctx, contactID, typeID, period.StartDate, period.EndDate, a.LeaveRequests.ApprovedStatuses())
}

// TotalTOILForContact sums the rows of TOIL requests whose full span lies in
// [startDate, endDate], inclusive on both ends, filtered by status.
func (a *Aggregator) TotalTOILForContact(ctx context.Context, contactID, typeID int64, startDate, endDate Date, statuses []int64) (decimal.Decimal, error) {
	requests, err := a.LeaveRequests.FindLeaveRequests(ctx, LeaveRequestQuery{
		ContactIDs:   []int64{contactID},
		TypeID:       typeID,
		Statuses:     statuses,
		RequestTypes: []RequestType{RequestTypeTOIL},
	})
	if err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero
	for _, lr := range requests {
		if lr.FromDate.Before(startDate) || lr.EffectiveToDate().After(endDate) {
			continue
		}
		total, err := a.TotalBalanceChangeForLeaveRequest(ctx, &lr, false)
		if err != nil {
			return decimal.Zero, err
		}
		expired, err := a.TotalBalanceChangeForLeaveRequest(ctx, &lr, true)
		if err != nil {
			return decimal.Zero, err
		}
		balance = balance.Add(total).Add(expired)
	}
	return balance, nil
}

// =============================================================================
// SHARED CONSUMPTION SCAN
// =============================================================================

type consumptionFilter struct {
	statuses            []int64
	requestTypes        []RequestType
	excludeIDs          []int64
	excludePublicHolidy bool
	dateStart           *Date
	dateLimit           *Date

	// liveOnly drops correction rows (expired TOIL deductions).
	liveOnly bool
}

// consumptionRows returns the leave-day rows counting toward the
// entitlement: dates inside the entitlement's windows, owned by non-deleted
// requests of the same contact and absence type that overlap an active
// contract.
func (a *Aggregator) consumptionRows(ctx context.Context, ent *Entitlement, f consumptionFilter) ([]BalanceChange, error) {
	windows, err := a.Resolver.WindowsForEntitlement(ctx, ent)
	if err != nil {
		return nil, err
	}
	contracts, err := a.Resolver.ActiveContracts(ctx, ent.ContactID)
	if err != nil {
		return nil, err
	}

	requests, err := a.LeaveRequests.FindLeaveRequests(ctx, LeaveRequestQuery{
		ContactIDs:   []int64{ent.ContactID},
		TypeID:       ent.TypeID,
		Statuses:     f.statuses,
		RequestTypes: f.requestTypes,
		ExcludeIDs:   f.excludeIDs,
	})
	if err != nil {
		return nil, err
	}

	var dateIDs []int64
	for _, lr := range requests {
		if f.excludePublicHolidy && lr.RequestType == RequestTypePublicHoliday {
			continue
		}
		if !RequestOverlapsContracts(lr, contracts) {
			continue
		}

		dates, err := a.LeaveRequests.DatesFor(ctx, lr.ID)
		if err != nil {
			return nil, err
		}
		for _, d := range dates {
			if !DateWithinWindows(d.Date, windows) {
				continue
			}
			if f.dateStart != nil && d.Date.Before(*f.dateStart) {
				continue
			}
			if f.dateLimit != nil && d.Date.After(*f.dateLimit) {
				continue
			}
			dateIDs = append(dateIDs, d.ID)
		}
	}

	if len(dateIDs) == 0 {
		return nil, nil
	}

	rows, err := a.Store.BySource(ctx, SourceLeaveRequestDay, dateIDs)
	if err != nil {
		return nil, err
	}
	if !f.liveOnly {
		return rows, nil
	}

	live := rows[:0:0]
	for _, bc := range rows {
		if !bc.IsCorrection() {
			live = append(live, bc)
		}
	}
	return live, nil
}

// eachConsumptionForContacts walks the rows of every date, inside the period
// bounds, of every request matching the contacts/type/status filter whose
// span overlaps an active contract.
func (a *Aggregator) eachConsumptionForContacts(
	ctx context.Context,
	contactIDs []int64,
	period AbsencePeriod,
	typeID int64,
	statuses []int64,
	visit func(LeaveRequest, BalanceChange),
) error {
	requests, err := a.LeaveRequests.FindLeaveRequests(ctx, LeaveRequestQuery{
		ContactIDs: contactIDs,
		TypeID:     typeID,
		Statuses:   statuses,
	})
	if err != nil {
		return err
	}

	contractsByContact := make(map[int64][]Contract)
	for _, lr := range requests {
		contracts, ok := contractsByContact[lr.ContactID]
		if !ok {
			contracts, err = a.Resolver.ActiveContracts(ctx, lr.ContactID)
			if err != nil {
				return err
			}
			contractsByContact[lr.ContactID] = contracts
		}
		if !RequestOverlapsContracts(lr, contracts) {
			continue
		}

		dates, err := a.LeaveRequests.DatesFor(ctx, lr.ID)
		if err != nil {
			return err
		}
		var dateIDs []int64
		byDateID := make(map[int64]LeaveRequest)
		for _, d := range dates {
			if !d.Date.Between(period.StartDate, period.EndDate) {
				continue
			}
			dateIDs = append(dateIDs, d.ID)
			byDateID[d.ID] = lr
		}
		if len(dateIDs) == 0 {
			continue
		}

		rows, err := a.Store.BySource(ctx, SourceLeaveRequestDay, dateIDs)
		if err != nil {
			return err
		}
		for _, bc := range rows {
			visit(byDateID[bc.SourceID], bc)
		}
	}
	return nil
}
