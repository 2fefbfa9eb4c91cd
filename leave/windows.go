/*
windows.go - Date-range resolver

Computes the validity windows that bound which leave days count toward an
entitlement: the intersections of the contact's non-deleted job contracts
with the entitlement's absence period. A contact may hold multiple
non-contiguous contracts, so the result is an ordered set of windows.

When a contact has no contract data at all the resolver returns an empty
set, which downstream filters treat as "always true" (see
DateWithinWindows). That preserves the permissive behavior expected when
contract records are absent; it is an edge case, not an error.
*/
package leave

import (
	"context"
	"sort"
)

// WindowResolver derives the valid date windows of an entitlement from the
// contact's contracts and the entitlement's absence period.
type WindowResolver struct {
	Periods   Periods
	Contracts Contracts
}

func NewWindowResolver(periods Periods, contracts Contracts) *WindowResolver {
	return &WindowResolver{Periods: periods, Contracts: contracts}
}

// WindowsForEntitlement returns the contract windows clipped to the
// entitlement's absence period, ordered by start date. Deleted contracts and
// contracts not overlapping the period contribute nothing.
func (r *WindowResolver) WindowsForEntitlement(ctx context.Context, ent *Entitlement) ([]Window, error) {
	period, err := r.Periods.PeriodByID(ctx, ent.PeriodID)
	if err != nil {
		return nil, err
	}

	contracts, err := r.Contracts.ContractsFor(ctx, ent.ContactID)
	if err != nil {
		return nil, err
	}

	var windows []Window
	for _, c := range contracts {
		if c.Deleted {
			continue
		}
		w, ok := clipToPeriod(c, *period)
		if !ok {
			continue
		}
		windows = append(windows, w)
	}

	sort.Slice(windows, func(i, j int) bool {
		return windows[i].StartDate.Before(windows[j].StartDate)
	})
	return windows, nil
}

// ActiveContracts returns the contact's non-deleted contracts.
func (r *WindowResolver) ActiveContracts(ctx context.Context, contactID int64) ([]Contract, error) {
	contracts, err := r.Contracts.ContractsFor(ctx, contactID)
	if err != nil {
		return nil, err
	}
	active := contracts[:0:0]
	for _, c := range contracts {
		if !c.Deleted {
			active = append(active, c)
		}
	}
	return active, nil
}

// RequestOverlapsContracts reports whether the request's date interval
// overlaps at least one of the given contracts. With no contracts the check
// degenerates to true, mirroring the empty-window behavior.
func RequestOverlapsContracts(lr LeaveRequest, contracts []Contract) bool {
	if len(contracts) == 0 {
		return true
	}
	for _, c := range contracts {
		if c.OverlapsRequest(lr) {
			return true
		}
	}
	return false
}

// clipToPeriod intersects a contract's [start, end-or-unbounded] range with
// the absence period. ok is false when they don't overlap.
func clipToPeriod(c Contract, period AbsencePeriod) (Window, bool) {
	start := c.PeriodStartDate
	if start.Before(period.StartDate) {
		start = period.StartDate
	}

	end := period.EndDate
	if c.PeriodEndDate != nil && c.PeriodEndDate.Before(end) {
		end = *c.PeriodEndDate
	}

	if start.After(end) {
		return Window{}, false
	}
	return Window{StartDate: start, EndDate: end}, true
}
