package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attunehr/leave-engine/leave"
	"github.com/attunehr/leave-engine/leave/store"
)

// =============================================================================
// ENTITLEMENT BALANCES
// =============================================================================

func TestBalanceForEntitlement(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entitlement(t)

	// GIVEN a 20-day grant and 5 approved leave days
	env.grant(t, typeLeaveOption, "20", nil)
	env.addApprovedLeave(t, 50, leave.NewDate(2025, time.March, 10), leave.NewDate(2025, time.March, 14))

	// WHEN the balance is computed over approved requests
	balance, err := env.agg.BalanceForEntitlement(env.ctx, ent, leave.BalanceOptions{
		Statuses: env.dir.ApprovedStatuses(),
	})

	// THEN grants and consumption net out
	require.NoError(t, err)
	assert.Equal(t, "15", balance.String())
}

func TestBalanceForEntitlement_StatusFilter(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entitlement(t)

	env.grant(t, typeLeaveOption, "20", nil)
	env.addApprovedLeave(t, 50, leave.NewDate(2025, time.March, 10), leave.NewDate(2025, time.March, 14))
	// An open request awaiting approval
	env.addRequest(t, 51, contactID, annualLeave, leave.RequestTypeLeave, store.StatusAwaitingApproval,
		leave.NewDate(2025, time.April, 7), leave.NewDate(2025, time.April, 8))

	// Approved-only ignores the open request
	balance, err := env.agg.BalanceForEntitlement(env.ctx, ent, leave.BalanceOptions{
		Statuses: env.dir.ApprovedStatuses(),
	})
	require.NoError(t, err)
	assert.Equal(t, "15", balance.String())

	// No status filter counts every request
	balance, err = env.agg.BalanceForEntitlement(env.ctx, ent, leave.BalanceOptions{})
	require.NoError(t, err)
	assert.Equal(t, "13", balance.String())
}

func TestBalanceForEntitlement_ExcludesGivenRequests(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entitlement(t)

	env.grant(t, typeLeaveOption, "20", nil)
	env.addApprovedLeave(t, 50, leave.NewDate(2025, time.March, 10), leave.NewDate(2025, time.March, 14))
	env.addApprovedLeave(t, 51, leave.NewDate(2025, time.April, 7), leave.NewDate(2025, time.April, 8))

	// WHEN the request being edited is excluded from the sum
	balance, err := env.agg.BalanceForEntitlement(env.ctx, ent, leave.BalanceOptions{
		Statuses:               env.dir.ApprovedStatuses(),
		ExcludeLeaveRequestIDs: []int64{51},
	})

	require.NoError(t, err)
	assert.Equal(t, "15", balance.String())
}

func TestBalanceForEntitlement_ExpiredOnly(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entitlement(t)

	// GIVEN a grant with a correction already on the books
	original := env.grant(t, typeBroughtForward, "5", dp(leave.NewDate(2025, time.March, 31)))
	env.insertRow(t, leave.BalanceChange{
		SourceID:               entitlementID,
		SourceType:             leave.SourceEntitlement,
		TypeID:                 typeBroughtForward,
		Amount:                 dec(t, "-5"),
		ExpiryDate:             original.ExpiryDate,
		ExpiredBalanceChangeID: &original.ID,
	})
	env.grant(t, typeLeaveOption, "20", nil)

	// WHEN only expired rows are summed
	balance, err := env.agg.BalanceForEntitlement(env.ctx, ent, leave.BalanceOptions{ExpiredOnly: true})

	require.NoError(t, err)
	assert.Equal(t, "-5", balance.String())
}

func TestBalanceForEntitlement_RequestOutsideContractNotCounted(t *testing.T) {
	env := newTestEnv(t)
	env.dir.AddEntitlement(leave.Entitlement{ID: 101, ContactID: otherContact, TypeID: annualLeave, PeriodID: periodID})
	// Contract ends March 31; the request is in April
	env.dir.AddContract(leave.Contract{
		ID:              2,
		ContactID:       otherContact,
		PeriodStartDate: leave.NewDate(2025, time.January, 1),
		PeriodEndDate:   dp(leave.NewDate(2025, time.March, 31)),
	})
	ent, err := env.dir.EntitlementByID(env.ctx, 101)
	require.NoError(t, err)

	env.insertRow(t, leave.BalanceChange{
		SourceID:   101,
		SourceType: leave.SourceEntitlement,
		TypeID:     typeLeaveOption,
		Amount:     dec(t, "20"),
	})
	env.addRequest(t, 50, otherContact, annualLeave, leave.RequestTypeLeave, store.StatusApproved,
		leave.NewDate(2025, time.April, 7), leave.NewDate(2025, time.April, 8))

	balance, err := env.agg.BalanceForEntitlement(env.ctx, ent, leave.BalanceOptions{
		Statuses: env.dir.ApprovedStatuses(),
	})

	require.NoError(t, err)
	assert.Equal(t, "20", balance.String())
}

// =============================================================================
// BREAKDOWNS
// =============================================================================

func TestBreakdownForEntitlement(t *testing.T) {
	env := newTestEnv(t)

	grant := env.grant(t, typeLeaveOption, "20", nil)
	original := env.grant(t, typeBroughtForward, "5", dp(leave.NewDate(2025, time.March, 31)))
	correction := env.insertRow(t, leave.BalanceChange{
		SourceID:               entitlementID,
		SourceType:             leave.SourceEntitlement,
		TypeID:                 typeBroughtForward,
		Amount:                 dec(t, "-5"),
		ExpiryDate:             original.ExpiryDate,
		ExpiredBalanceChangeID: &original.ID,
	})

	// Non-expired view: rows without a correction reference
	rows, err := env.agg.BreakdownForEntitlement(env.ctx, entitlementID, false)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, grant.ID, rows[0].ID)
	assert.Equal(t, original.ID, rows[1].ID)

	// Expired view: corrections past their expiry date
	rows, err = env.agg.BreakdownForEntitlement(env.ctx, entitlementID, true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, correction.ID, rows[0].ID)

	balance, err := env.agg.BreakdownBalanceForEntitlement(env.ctx, entitlementID)
	require.NoError(t, err)
	assert.Equal(t, "25", balance.String())
}

func TestLeaveRequestBalanceForEntitlement_DateBoundsInclusive(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entitlement(t)

	env.grant(t, typeLeaveOption, "20", nil)
	env.addApprovedLeave(t, 50, leave.NewDate(2025, time.March, 10), leave.NewDate(2025, time.March, 14))

	// WHEN the sum is bounded to March 11..13, inclusive on both ends
	balance, err := env.agg.LeaveRequestBalanceForEntitlement(env.ctx, ent, leave.ConsumptionOptions{
		Statuses:  env.dir.ApprovedStatuses(),
		DateStart: dp(leave.NewDate(2025, time.March, 11)),
		DateLimit: dp(leave.NewDate(2025, time.March, 13)),
	})

	require.NoError(t, err)
	assert.Equal(t, "-3", balance.String())
}

func TestLeaveRequestBalanceForEntitlement_PublicHolidayToggles(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entitlement(t)

	env.addApprovedLeave(t, 50, leave.NewDate(2025, time.March, 10), leave.NewDate(2025, time.March, 14))
	env.addRequest(t, 60, contactID, annualLeave, leave.RequestTypePublicHoliday, store.StatusApproved,
		leave.NewDate(2025, time.March, 17), leave.NewDate(2025, time.March, 17))

	opts := leave.ConsumptionOptions{Statuses: env.dir.ApprovedStatuses()}

	balance, err := env.agg.LeaveRequestBalanceForEntitlement(env.ctx, ent, opts)
	require.NoError(t, err)
	assert.Equal(t, "-6", balance.String())

	opts.ExcludePublicHolidays = true
	balance, err = env.agg.LeaveRequestBalanceForEntitlement(env.ctx, ent, opts)
	require.NoError(t, err)
	assert.Equal(t, "-5", balance.String())

	opts.ExcludePublicHolidays = false
	opts.PublicHolidaysOnly = true
	balance, err = env.agg.LeaveRequestBalanceForEntitlement(env.ctx, ent, opts)
	require.NoError(t, err)
	assert.Equal(t, "-1", balance.String())
}

func TestLeaveRequestBalanceForEntitlement_DropsCorrections(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entitlement(t)

	dates := env.addApprovedLeave(t, 50, leave.NewDate(2025, time.March, 10), leave.NewDate(2025, time.March, 11))
	// A correction attached to the first day (expired TOIL deduction)
	first := int64(1)
	env.insertRow(t, leave.BalanceChange{
		SourceID:               dates[0].ID,
		SourceType:             leave.SourceLeaveRequestDay,
		TypeID:                 typeLeaveOption,
		Amount:                 dec(t, "-3"),
		ExpiredBalanceChangeID: &first,
	})

	balance, err := env.agg.LeaveRequestBalanceForEntitlement(env.ctx, ent, leave.ConsumptionOptions{
		Statuses: env.dir.ApprovedStatuses(),
	})

	require.NoError(t, err)
	assert.Equal(t, "-2", balance.String())
}

// =============================================================================
// LEAVE REQUEST BALANCES
// =============================================================================

func TestBreakdownForLeaveRequest(t *testing.T) {
	env := newTestEnv(t)

	dates := env.addApprovedLeave(t, 50, leave.NewDate(2025, time.March, 10), leave.NewDate(2025, time.March, 12))
	require.Len(t, dates, 3)

	lr, err := env.dir.LeaveRequestByID(env.ctx, 50)
	require.NoError(t, err)

	rows, err := env.agg.BreakdownForLeaveRequest(env.ctx, lr)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	// Deleted requests have no breakdown
	deleted := *lr
	deleted.Deleted = true
	rows, err = env.agg.BreakdownForLeaveRequest(env.ctx, &deleted)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTotalBalanceChangeForLeaveRequest(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN a TOIL request that accrued 5 days, 3 of which later expired
	to := leave.NewDate(2025, time.March, 10)
	dates := env.dir.AddLeaveRequestWithDays(leave.LeaveRequest{
		ID:          70,
		ContactID:   contactID,
		TypeID:      annualLeave,
		FromDate:    leave.NewDate(2025, time.March, 10),
		ToDate:      &to,
		StatusID:    store.StatusApproved,
		RequestType: leave.RequestTypeTOIL,
	})
	accrual := env.insertRow(t, leave.BalanceChange{
		SourceID:   dates[0].ID,
		SourceType: leave.SourceLeaveRequestDay,
		TypeID:     typeLeaveOption,
		Amount:     dec(t, "5"),
		ExpiryDate: dp(leave.NewDate(2025, time.June, 30)),
	})
	env.insertRow(t, leave.BalanceChange{
		SourceID:               dates[0].ID,
		SourceType:             leave.SourceLeaveRequestDay,
		TypeID:                 typeLeaveOption,
		Amount:                 dec(t, "-3"),
		ExpiredBalanceChangeID: &accrual.ID,
	})

	lr, err := env.dir.LeaveRequestByID(env.ctx, 70)
	require.NoError(t, err)

	total, err := env.agg.TotalBalanceChangeForLeaveRequest(env.ctx, lr, false)
	require.NoError(t, err)
	assert.Equal(t, "5", total.String())

	expired, err := env.agg.TotalBalanceChangeForLeaveRequest(env.ctx, lr, true)
	require.NoError(t, err)
	assert.Equal(t, "-3", expired.String())
}

// =============================================================================
// CONTACT SNAPSHOTS
// =============================================================================

func TestBalanceForContacts(t *testing.T) {
	env := newTestEnv(t)

	env.grant(t, typeLeaveOption, "20", nil)
	env.addApprovedLeave(t, 50, leave.NewDate(2025, time.March, 10), leave.NewDate(2025, time.March, 14))

	// WHEN two contacts are asked for but only one has rows
	balances, err := env.agg.BalanceForContacts(env.ctx, []int64{contactID, otherContact}, periodID, 0)

	// THEN the pair with no rows is absent, not zero
	require.NoError(t, err)
	require.Len(t, balances, 1)
	require.Contains(t, balances, contactID)
	assert.Equal(t, "15", balances[contactID][annualLeave].String())
	assert.NotContains(t, balances, otherContact)
}

func TestBalanceForContacts_PeriodBoundsDays(t *testing.T) {
	env := newTestEnv(t)

	env.grant(t, typeLeaveOption, "20", nil)
	// A request straddling the period start: only the 2025 day counts
	env.addApprovedLeave(t, 50, leave.NewDate(2024, time.December, 31), leave.NewDate(2025, time.January, 1))

	balances, err := env.agg.BalanceForContacts(env.ctx, []int64{contactID}, periodID, 0)

	require.NoError(t, err)
	assert.Equal(t, "19", balances[contactID][annualLeave].String())
}

func TestOpenLeaveRequestBalanceForContacts(t *testing.T) {
	env := newTestEnv(t)

	env.grant(t, typeLeaveOption, "20", nil)
	env.addApprovedLeave(t, 50, leave.NewDate(2025, time.March, 10), leave.NewDate(2025, time.March, 14))
	dates := env.addRequest(t, 51, contactID, annualLeave, leave.RequestTypeLeave, store.StatusAwaitingApproval,
		leave.NewDate(2025, time.April, 7), leave.NewDate(2025, time.April, 8))

	// A correction on an open day must not inflate the would-be deduction
	one := int64(1)
	env.insertRow(t, leave.BalanceChange{
		SourceID:               dates[0].ID,
		SourceType:             leave.SourceLeaveRequestDay,
		TypeID:                 typeLeaveOption,
		Amount:                 dec(t, "-3"),
		ExpiredBalanceChangeID: &one,
	})

	balances, err := env.agg.OpenLeaveRequestBalanceForContacts(env.ctx, []int64{contactID}, periodID, annualLeave)

	require.NoError(t, err)
	require.Contains(t, balances, contactID)
	assert.Equal(t, "-2", balances[contactID][annualLeave].String())
}

// =============================================================================
// TOIL
// =============================================================================

func TestTotalApprovedTOILForPeriod(t *testing.T) {
	env := newTestEnv(t)

	period, err := env.dir.PeriodByID(env.ctx, periodID)
	require.NoError(t, err)

	// GIVEN a TOIL request inside the period: 5 accrued, 3 expired
	to := leave.NewDate(2025, time.March, 10)
	dates := env.dir.AddLeaveRequestWithDays(leave.LeaveRequest{
		ID:          70,
		ContactID:   contactID,
		TypeID:      annualLeave,
		FromDate:    leave.NewDate(2025, time.March, 10),
		ToDate:      &to,
		StatusID:    store.StatusApproved,
		RequestType: leave.RequestTypeTOIL,
	})
	accrual := env.insertRow(t, leave.BalanceChange{
		SourceID:   dates[0].ID,
		SourceType: leave.SourceLeaveRequestDay,
		TypeID:     typeLeaveOption,
		Amount:     dec(t, "5"),
	})
	env.insertRow(t, leave.BalanceChange{
		SourceID:               dates[0].ID,
		SourceType:             leave.SourceLeaveRequestDay,
		TypeID:                 typeLeaveOption,
		Amount:                 dec(t, "-3"),
		ExpiredBalanceChangeID: &accrual.ID,
	})

	// AND a TOIL request whose span starts before the period
	straddleTo := leave.NewDate(2025, time.January, 2)
	straddle := env.dir.AddLeaveRequestWithDays(leave.LeaveRequest{
		ID:          71,
		ContactID:   contactID,
		TypeID:      annualLeave,
		FromDate:    leave.NewDate(2024, time.December, 30),
		ToDate:      &straddleTo,
		StatusID:    store.StatusApproved,
		RequestType: leave.RequestTypeTOIL,
	})
	env.insertRow(t, leave.BalanceChange{
		SourceID:   straddle[0].ID,
		SourceType: leave.SourceLeaveRequestDay,
		TypeID:     typeLeaveOption,
		Amount:     dec(t, "4"),
	})

	// WHEN the period total is computed
	total, err := env.agg.TotalApprovedTOILForPeriod(env.ctx, *period, contactID, annualLeave)

	// THEN only the fully contained request counts, accruals net of expiry
	require.NoError(t, err)
	assert.Equal(t, "2", total.String())
}
