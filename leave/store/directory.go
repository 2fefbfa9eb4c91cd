package store

import (
	"context"
	"sort"
	"sync"

	"github.com/attunehr/leave-engine/leave"
)

// =============================================================================
// STATUS OPTION VALUES
// =============================================================================

// Default leave-request status option values. Real deployments carry their
// own option-group configuration; these exist so fixtures and the demo
// server agree on a mapping.
const (
	StatusApproved                int64 = 1
	StatusAdminApproved           int64 = 2
	StatusAwaitingApproval        int64 = 3
	StatusMoreInformationRequired int64 = 4
	StatusRejected                int64 = 5
	StatusCancelled               int64 = 6
)

func DefaultApprovedStatuses() []int64 {
	return []int64{StatusApproved, StatusAdminApproved}
}

func DefaultOpenStatuses() []int64 {
	return []int64{StatusAwaitingApproval, StatusMoreInformationRequired}
}

// =============================================================================
// DIRECTORY - Fixture-backed collaborator implementations
// =============================================================================

// Directory holds collaborator-owned records (entitlements, absence periods,
// leave requests and their dates, contracts) in memory and serves the
// lookup interfaces the ledger consumes. Records are registered with their
// ids assigned by the caller, the way a host application would own them.
type Directory struct {
	mu           sync.RWMutex
	entitlements map[int64]leave.Entitlement
	periods      map[int64]leave.AbsencePeriod
	requests     map[int64]leave.LeaveRequest
	dates        map[int64]leave.LeaveRequestDate
	contracts    []leave.Contract
	dateSeq      int64

	approved []int64
	open     []int64
}

func NewDirectory() *Directory {
	return &Directory{
		entitlements: make(map[int64]leave.Entitlement),
		periods:      make(map[int64]leave.AbsencePeriod),
		requests:     make(map[int64]leave.LeaveRequest),
		dates:        make(map[int64]leave.LeaveRequestDate),
		approved:     DefaultApprovedStatuses(),
		open:         DefaultOpenStatuses(),
	}
}

// -----------------------------------------------------------------------------
// Registration
// -----------------------------------------------------------------------------

func (d *Directory) AddPeriod(p leave.AbsencePeriod) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.periods[p.ID] = p
}

func (d *Directory) AddEntitlement(e leave.Entitlement) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entitlements[e.ID] = e
}

func (d *Directory) AddContract(c leave.Contract) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contracts = append(d.contracts, c)
}

func (d *Directory) AddLeaveRequest(lr leave.LeaveRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests[lr.ID] = lr
}

// AddLeaveRequestWithDays registers the request along with one
// LeaveRequestDate per calendar day of its span, and returns the dates.
func (d *Directory) AddLeaveRequestWithDays(lr leave.LeaveRequest) []leave.LeaveRequestDate {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.requests[lr.ID] = lr

	var out []leave.LeaveRequestDate
	for day := lr.FromDate; day.BeforeOrEqual(lr.EffectiveToDate()); day = day.AddDays(1) {
		d.dateSeq++
		date := leave.LeaveRequestDate{ID: d.dateSeq, LeaveRequestID: lr.ID, Date: day}
		d.dates[date.ID] = date
		out = append(out, date)
	}
	return out
}

// SetStatuses overrides the status option lists.
func (d *Directory) SetStatuses(approved, open []int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.approved = approved
	d.open = open
}

// -----------------------------------------------------------------------------
// leave.Entitlements
// -----------------------------------------------------------------------------

func (d *Directory) EntitlementByID(_ context.Context, id int64) (*leave.Entitlement, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ent, ok := d.entitlements[id]
	if !ok {
		return nil, leave.ErrEntitlementNotFound
	}
	return &ent, nil
}

// ForLeaveRequest matches on contact, absence type and a period containing
// the request's from-date.
func (d *Directory) EntitlementForLeaveRequest(_ context.Context, lr *leave.LeaveRequest) (*leave.Entitlement, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, ent := range d.entitlements {
		if ent.ContactID != lr.ContactID || ent.TypeID != lr.TypeID {
			continue
		}
		period, ok := d.periods[ent.PeriodID]
		if !ok {
			continue
		}
		if lr.FromDate.Between(period.StartDate, period.EndDate) {
			out := ent
			return &out, nil
		}
	}
	return nil, leave.ErrEntitlementNotFound
}

func (d *Directory) EntitlementsForContacts(_ context.Context, contactIDs []int64, periodID, typeID int64) ([]leave.Entitlement, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	contacts := toSet(contactIDs)
	var out []leave.Entitlement
	for _, ent := range d.entitlements {
		if !contacts[ent.ContactID] || ent.PeriodID != periodID {
			continue
		}
		if typeID != 0 && ent.TypeID != typeID {
			continue
		}
		out = append(out, ent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -----------------------------------------------------------------------------
// leave.LeaveRequests
// -----------------------------------------------------------------------------

func (d *Directory) LeaveRequestByID(_ context.Context, id int64) (*leave.LeaveRequest, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	lr, ok := d.requests[id]
	if !ok {
		return nil, leave.ErrLeaveRequestNotFound
	}
	return &lr, nil
}

func (d *Directory) LeaveRequestDateByID(_ context.Context, id int64) (*leave.LeaveRequestDate, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	date, ok := d.dates[id]
	if !ok {
		return nil, leave.ErrLeaveRequestNotFound
	}
	return &date, nil
}

func (d *Directory) DatesFor(_ context.Context, leaveRequestID int64) ([]leave.LeaveRequestDate, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []leave.LeaveRequestDate
	for _, date := range d.dates {
		if date.LeaveRequestID == leaveRequestID {
			out = append(out, date)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (d *Directory) DatesOn(_ context.Context, contactID int64, day leave.Date) ([]leave.LeaveRequestDate, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []leave.LeaveRequestDate
	for _, date := range d.dates {
		if !date.Date.Equal(day) {
			continue
		}
		lr, ok := d.requests[date.LeaveRequestID]
		if !ok || lr.Deleted || lr.ContactID != contactID {
			continue
		}
		out = append(out, date)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *Directory) FindLeaveRequests(_ context.Context, q leave.LeaveRequestQuery) ([]leave.LeaveRequest, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []leave.LeaveRequest
	for _, lr := range d.requests {
		if q.Matches(lr) {
			out = append(out, lr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *Directory) ApprovedStatuses() []int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]int64(nil), d.approved...)
}

func (d *Directory) OpenStatuses() []int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]int64(nil), d.open...)
}

// -----------------------------------------------------------------------------
// leave.Periods
// -----------------------------------------------------------------------------

func (d *Directory) PeriodByID(_ context.Context, id int64) (*leave.AbsencePeriod, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.periods[id]
	if !ok {
		return nil, leave.ErrPeriodNotFound
	}
	return &p, nil
}

func (d *Directory) PeriodContainingDates(_ context.Context, from, to leave.Date) (*leave.AbsencePeriod, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, p := range d.periods {
		if from.AfterOrEqual(p.StartDate) && to.BeforeOrEqual(p.EndDate) {
			out := p
			return &out, nil
		}
	}
	return nil, leave.ErrPeriodNotFound
}

// -----------------------------------------------------------------------------
// leave.Contracts
// -----------------------------------------------------------------------------

func (d *Directory) ContractsFor(_ context.Context, contactID int64) ([]leave.Contract, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []leave.Contract
	for _, c := range d.contracts {
		if c.ContactID == contactID {
			out = append(out, c)
		}
	}
	return out, nil
}

var (
	_ leave.Entitlements  = (*Directory)(nil)
	_ leave.LeaveRequests = (*Directory)(nil)
	_ leave.Periods       = (*Directory)(nil)
	_ leave.Contracts     = (*Directory)(nil)
)
