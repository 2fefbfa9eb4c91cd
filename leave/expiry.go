/*
expiry.go - FIFO expiry engine

PURPOSE:
  Brought-forward days and TOIL credits are use-it-or-lose-it: each carries
  an expiry date, and whatever was not consumed before that date must be
  deducted from the books. The engine runs in three phases:

  SCAN    Collect due rows: expiry date passed, no correction yet. Ordered
          earliest-expiring first, id as tie-break.
  MATCH   Build one shared pool of approved consumption days overlapping
          the due rows' validity ranges. Walk the due rows in order and
          consume matching days out of the pool; a day claimed by one row
          is removed and can never offset another (cross-entry FIFO
          exclusivity).
  COMMIT  Write one correction per due row carrying the unconsumed
          remainder, negated. If a correction already exists for the
          original it is updated in place, so re-running is idempotent.

  The same MATCH+COMMIT runs for retroactive recalculation: saving a leave
  request with past dates re-scans the already-expired rows whose expiry
  window the new days could fall into, and shrinks their recorded waste.

CONCURRENCY:
  The pool is read-then-mutated in memory per run. Two simultaneous runs
  over the same contact and absence type could claim the same day twice, so
  callers must serialize runs (see api.ExpiryScheduler's single-flight).

ARITHMETIC:
  All amounts are decimals; the "nothing left" check is an exact IsZero,
  not a float comparison against an epsilon.
*/
package leave

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// ExpiryEngine scans the ledger for due expirations and writes correction
// rows for the unconsumed remainders.
type ExpiryEngine struct {
	Store         Store
	Entitlements  Entitlements
	LeaveRequests LeaveRequests
	Periods       Periods
	Resolver      *WindowResolver

	// Now supplies "today" for the due-date cutoff. Defaults to Today.
	Now func() Date
}

func NewExpiryEngine(store Store, ents Entitlements, requests LeaveRequests, periods Periods, resolver *WindowResolver) *ExpiryEngine {
	return &ExpiryEngine{
		Store:         store,
		Entitlements:  ents,
		LeaveRequests: requests,
		Periods:       periods,
		Resolver:      resolver,
		Now:           Today,
	}
}

// dueEntry is a due row resolved to its owning entitlement. startDate is the
// day the balance became valid: the request's from-date for leave-day rows,
// the absence period's start for entitlement rows.
type dueEntry struct {
	change        BalanceChange
	entitlement   Entitlement
	startDate     Date
	contactID     int64
	absenceTypeID int64
}

// =============================================================================
// ENTRY POINTS
// =============================================================================

// CreateExpiryRecords expires every due row: each gets one correction with
// the amount that was not offset by consumption inside its validity range.
// Returns the number of corrections written or refreshed.
func (e *ExpiryEngine) CreateExpiryRecords(ctx context.Context) (int, error) {
	due, err := e.Store.DueForExpiry(ctx, e.today())
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	entries, err := e.resolveAll(ctx, due)
	if err != nil {
		return 0, err
	}

	pool, err := e.buildPool(ctx, entries)
	if err != nil {
		return 0, err
	}

	return e.matchAndCommit(ctx, entries, pool)
}

// RecalculateForPastDates re-runs expiry for the already-expired rows whose
// expiry window could be affected by the given request's past days: same
// contact and absence type, expiry inside the request's containing absence
// period and on or after its from-date. Existing corrections shrink when
// the new days offset previously wasted balance. Returns the number of
// corrections updated.
func (e *ExpiryEngine) RecalculateForPastDates(ctx context.Context, lr *LeaveRequest) (int, error) {
	if lr.Deleted {
		return 0, nil
	}

	period, err := e.Periods.PeriodContainingDates(ctx, lr.FromDate, lr.EffectiveToDate())
	if err != nil {
		if errors.Is(err, ErrPeriodNotFound) {
			return 0, nil
		}
		return 0, err
	}

	candidates, err := e.Store.ExpiringBetween(ctx, period.StartDate, period.EndDate)
	if err != nil {
		return 0, err
	}

	var affected []BalanceChange
	for _, bc := range candidates {
		if bc.ExpiryDate.AfterOrEqual(lr.FromDate) {
			affected = append(affected, bc)
		}
	}
	if len(affected) == 0 {
		return 0, nil
	}

	entries, err := e.resolveAll(ctx, affected)
	if err != nil {
		return 0, err
	}
	scoped := entries[:0:0]
	for _, entry := range entries {
		if entry.contactID == lr.ContactID && entry.absenceTypeID == lr.TypeID {
			scoped = append(scoped, entry)
		}
	}
	if len(scoped) == 0 {
		return 0, nil
	}

	pool, err := e.buildPool(ctx, scoped)
	if err != nil {
		return 0, err
	}
	if pool.empty() {
		return 0, nil
	}

	return e.matchAndCommit(ctx, scoped, pool)
}

// =============================================================================
// SCAN - Resolve due rows to their owning entitlements
// =============================================================================

// resolveAll resolves each row, preserving order. Rows whose collaborator
// records are gone (deleted request, removed entitlement) are skipped for
// this run; a source type that can't own an entitlement is an integrity
// fault and aborts the call.
func (e *ExpiryEngine) resolveAll(ctx context.Context, rows []BalanceChange) ([]dueEntry, error) {
	entries := make([]dueEntry, 0, len(rows))
	for _, bc := range rows {
		entry, ok, err := e.resolve(ctx, bc)
		if err != nil {
			return nil, err
		}
		if ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (e *ExpiryEngine) resolve(ctx context.Context, bc BalanceChange) (dueEntry, bool, error) {
	switch bc.SourceType {
	case SourceEntitlement:
		ent, err := e.Entitlements.EntitlementByID(ctx, bc.SourceID)
		if err != nil {
			return dueEntry{}, false, skipNotFound(err)
		}
		period, err := e.Periods.PeriodByID(ctx, ent.PeriodID)
		if err != nil {
			return dueEntry{}, false, skipNotFound(err)
		}
		return dueEntry{
			change:        bc,
			entitlement:   *ent,
			startDate:     period.StartDate,
			contactID:     ent.ContactID,
			absenceTypeID: ent.TypeID,
		}, true, nil

	case SourceLeaveRequestDay:
		date, err := e.LeaveRequests.LeaveRequestDateByID(ctx, bc.SourceID)
		if err != nil {
			return dueEntry{}, false, skipNotFound(err)
		}
		lr, err := e.LeaveRequests.LeaveRequestByID(ctx, date.LeaveRequestID)
		if err != nil {
			return dueEntry{}, false, skipNotFound(err)
		}
		if lr.Deleted {
			return dueEntry{}, false, nil
		}
		ent, err := e.Entitlements.EntitlementForLeaveRequest(ctx, lr)
		if err != nil {
			return dueEntry{}, false, skipNotFound(err)
		}
		return dueEntry{
			change:        bc,
			entitlement:   *ent,
			startDate:     lr.FromDate,
			contactID:     lr.ContactID,
			absenceTypeID: lr.TypeID,
		}, true, nil

	default:
		return dueEntry{}, false, &IntegrityError{BalanceChangeID: bc.ID, SourceType: bc.SourceType}
	}
}

// skipNotFound turns missing-record lookups into a silent skip and passes
// everything else through.
func skipNotFound(err error) error {
	if IsNotFound(err) {
		return nil
	}
	return err
}

// =============================================================================
// MATCH - Shared consumption pool
// =============================================================================

// poolDate is one approved consumption day available for offsetting.
type poolDate struct {
	id            int64
	date          Date
	amount        decimal.Decimal
	contactID     int64
	absenceTypeID int64
}

// consumptionPool holds candidate days. Matching iterates a stable snapshot
// and removes claimed days by id, so in-flight removal never skips entries.
type consumptionPool struct {
	dates []poolDate
}

func (p *consumptionPool) empty() bool { return len(p.dates) == 0 }

func (p *consumptionPool) snapshot() []poolDate {
	return append([]poolDate(nil), p.dates...)
}

func (p *consumptionPool) remove(id int64) {
	for i, d := range p.dates {
		if d.id == id {
			p.dates = append(p.dates[:i], p.dates[i+1:]...)
			return
		}
	}
}

// buildPool collects, across all due entries, the approved leave days of
// type Leave/Sickness/PublicHoliday that fall inside an entry's
// [startDate, expiryDate] range and the owning entitlement's valid windows.
// Days are de-duplicated by id; the pool is shared by the whole run.
func (e *ExpiryEngine) buildPool(ctx context.Context, entries []dueEntry) (*consumptionPool, error) {
	seen := make(map[int64]poolDate)

	for _, entry := range entries {
		windows, err := e.Resolver.WindowsForEntitlement(ctx, &entry.entitlement)
		if err != nil {
			return nil, err
		}

		requests, err := e.LeaveRequests.FindLeaveRequests(ctx, LeaveRequestQuery{
			ContactIDs:   []int64{entry.contactID},
			TypeID:       entry.absenceTypeID,
			Statuses:     e.LeaveRequests.ApprovedStatuses(),
			RequestTypes: []RequestType{RequestTypeLeave, RequestTypeSickness, RequestTypePublicHoliday},
		})
		if err != nil {
			return nil, err
		}

		var dateIDs []int64
		dateByID := make(map[int64]Date)
		for _, lr := range requests {
			dates, err := e.LeaveRequests.DatesFor(ctx, lr.ID)
			if err != nil {
				return nil, err
			}
			for _, d := range dates {
				if _, dup := seen[d.ID]; dup {
					continue
				}
				if !d.Date.Between(entry.startDate, *entry.change.ExpiryDate) {
					continue
				}
				if !DateWithinWindows(d.Date, windows) {
					continue
				}
				dateIDs = append(dateIDs, d.ID)
				dateByID[d.ID] = d.Date
			}
		}
		if len(dateIDs) == 0 {
			continue
		}

		rows, err := e.Store.BySource(ctx, SourceLeaveRequestDay, dateIDs)
		if err != nil {
			return nil, err
		}
		for _, bc := range rows {
			if bc.IsCorrection() {
				continue
			}
			seen[bc.SourceID] = poolDate{
				id:            bc.SourceID,
				date:          dateByID[bc.SourceID],
				amount:        bc.Amount,
				contactID:     entry.contactID,
				absenceTypeID: entry.absenceTypeID,
			}
		}
	}

	pool := &consumptionPool{dates: make([]poolDate, 0, len(seen))}
	for _, d := range seen {
		pool.dates = append(pool.dates, d)
	}
	// Earliest day first; id breaks ties so runs are deterministic.
	sort.Slice(pool.dates, func(i, j int) bool {
		if !pool.dates[i].date.Equal(pool.dates[j].date) {
			return pool.dates[i].date.Before(pool.dates[j].date)
		}
		return pool.dates[i].id < pool.dates[j].id
	})
	return pool, nil
}

// =============================================================================
// MATCH + COMMIT
// =============================================================================

// matchAndCommit walks the due entries earliest-expiring first, offsets each
// against the shared pool, and upserts one correction per entry carrying the
// leftover as a negative amount.
func (e *ExpiryEngine) matchAndCommit(ctx context.Context, entries []dueEntry, pool *consumptionPool) (int, error) {
	written := 0

	for _, entry := range entries {
		remaining := entry.change.Amount.Abs()

		for _, d := range pool.snapshot() {
			if d.contactID != entry.contactID || d.absenceTypeID != entry.absenceTypeID {
				continue
			}
			if !d.date.Between(entry.startDate, *entry.change.ExpiryDate) {
				continue
			}
			if remaining.GreaterThanOrEqual(d.amount.Abs()) {
				// Claimed: this day can't offset any other due entry.
				pool.remove(d.id)
				remaining = remaining.Add(d.amount)
			}
			if remaining.IsZero() {
				break
			}
		}

		if err := e.upsertCorrection(ctx, entry, remaining.Neg()); err != nil {
			return written, err
		}
		written++
	}

	return written, nil
}

// upsertCorrection writes the correction for a due entry, updating the
// existing one when a previous run already created it.
func (e *ExpiryEngine) upsertCorrection(ctx context.Context, entry dueEntry, amount decimal.Decimal) error {
	originalID := entry.change.ID

	existing, err := e.Store.CorrectionFor(ctx, originalID)
	if err != nil {
		return err
	}
	if existing != nil {
		existing.Amount = amount
		existing.ExpiryDate = entry.change.ExpiryDate
		return e.Store.Update(ctx, existing)
	}

	_, err = e.Store.Insert(ctx, &BalanceChange{
		SourceID:               entry.change.SourceID,
		SourceType:             entry.change.SourceType,
		TypeID:                 entry.change.TypeID,
		Amount:                 amount,
		ExpiryDate:             entry.change.ExpiryDate,
		ExpiredBalanceChangeID: &originalID,
	})
	return err
}

func (e *ExpiryEngine) today() Date {
	if e.Now != nil {
		return e.Now()
	}
	return Today()
}
