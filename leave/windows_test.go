package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attunehr/leave-engine/leave"
	"github.com/attunehr/leave-engine/leave/store"
)

func newResolver(t *testing.T) (*leave.WindowResolver, *store.Directory) {
	t.Helper()
	dir := store.NewDirectory()
	dir.AddPeriod(leave.AbsencePeriod{
		ID:        periodID,
		Title:     "2025",
		StartDate: leave.NewDate(2025, time.January, 1),
		EndDate:   leave.NewDate(2025, time.December, 31),
	})
	dir.AddEntitlement(leave.Entitlement{
		ID:        entitlementID,
		ContactID: contactID,
		TypeID:    annualLeave,
		PeriodID:  periodID,
	})
	return leave.NewWindowResolver(dir, dir), dir
}

func TestWindowsForEntitlement_ClipsToPeriod(t *testing.T) {
	resolver, dir := newResolver(t)
	ctx := context.Background()

	// GIVEN a contract extending beyond the period on both ends
	dir.AddContract(leave.Contract{
		ID:              1,
		ContactID:       contactID,
		PeriodStartDate: leave.NewDate(2024, time.June, 1),
		PeriodEndDate:   dp(leave.NewDate(2026, time.June, 1)),
	})

	ent, err := dir.EntitlementByID(ctx, entitlementID)
	require.NoError(t, err)

	windows, err := resolver.WindowsForEntitlement(ctx, ent)
	require.NoError(t, err)

	// THEN the window is the intersection with the period
	require.Len(t, windows, 1)
	assert.True(t, windows[0].StartDate.Equal(leave.NewDate(2025, time.January, 1)))
	assert.True(t, windows[0].EndDate.Equal(leave.NewDate(2025, time.December, 31)))
}

func TestWindowsForEntitlement_OpenEndedContract(t *testing.T) {
	resolver, dir := newResolver(t)
	ctx := context.Background()

	dir.AddContract(leave.Contract{
		ID:              1,
		ContactID:       contactID,
		PeriodStartDate: leave.NewDate(2025, time.March, 1),
	})

	ent, err := dir.EntitlementByID(ctx, entitlementID)
	require.NoError(t, err)

	windows, err := resolver.WindowsForEntitlement(ctx, ent)
	require.NoError(t, err)

	require.Len(t, windows, 1)
	assert.True(t, windows[0].StartDate.Equal(leave.NewDate(2025, time.March, 1)))
	assert.True(t, windows[0].EndDate.Equal(leave.NewDate(2025, time.December, 31)))
}

func TestWindowsForEntitlement_MultipleContractsSorted(t *testing.T) {
	resolver, dir := newResolver(t)
	ctx := context.Background()

	// Registered out of order; a deleted one and one outside the period
	dir.AddContract(leave.Contract{
		ID:              3,
		ContactID:       contactID,
		PeriodStartDate: leave.NewDate(2025, time.August, 1),
	})
	dir.AddContract(leave.Contract{
		ID:              1,
		ContactID:       contactID,
		PeriodStartDate: leave.NewDate(2025, time.January, 1),
		PeriodEndDate:   dp(leave.NewDate(2025, time.April, 30)),
	})
	dir.AddContract(leave.Contract{
		ID:              2,
		ContactID:       contactID,
		PeriodStartDate: leave.NewDate(2025, time.May, 1),
		PeriodEndDate:   dp(leave.NewDate(2025, time.June, 30)),
		Deleted:         true,
	})
	dir.AddContract(leave.Contract{
		ID:              4,
		ContactID:       contactID,
		PeriodStartDate: leave.NewDate(2024, time.January, 1),
		PeriodEndDate:   dp(leave.NewDate(2024, time.June, 30)),
	})

	ent, err := dir.EntitlementByID(ctx, entitlementID)
	require.NoError(t, err)

	windows, err := resolver.WindowsForEntitlement(ctx, ent)
	require.NoError(t, err)

	require.Len(t, windows, 2)
	assert.True(t, windows[0].StartDate.Equal(leave.NewDate(2025, time.January, 1)))
	assert.True(t, windows[0].EndDate.Equal(leave.NewDate(2025, time.April, 30)))
	assert.True(t, windows[1].StartDate.Equal(leave.NewDate(2025, time.August, 1)))
	assert.True(t, windows[1].EndDate.Equal(leave.NewDate(2025, time.December, 31)))
}

func TestWindowsForEntitlement_NoContracts(t *testing.T) {
	resolver, dir := newResolver(t)
	ctx := context.Background()

	ent, err := dir.EntitlementByID(ctx, entitlementID)
	require.NoError(t, err)

	windows, err := resolver.WindowsForEntitlement(ctx, ent)
	require.NoError(t, err)
	assert.Empty(t, windows)

	// An empty window set is permissive, not restrictive
	assert.True(t, leave.DateWithinWindows(leave.NewDate(2025, time.March, 10), windows))
}

func TestDateWithinWindows(t *testing.T) {
	windows := []leave.Window{
		{StartDate: leave.NewDate(2025, time.January, 1), EndDate: leave.NewDate(2025, time.March, 31)},
		{StartDate: leave.NewDate(2025, time.June, 1), EndDate: leave.NewDate(2025, time.June, 30)},
	}

	assert.True(t, leave.DateWithinWindows(leave.NewDate(2025, time.March, 31), windows))
	assert.True(t, leave.DateWithinWindows(leave.NewDate(2025, time.June, 1), windows))
	assert.False(t, leave.DateWithinWindows(leave.NewDate(2025, time.April, 15), windows))
	assert.False(t, leave.DateWithinWindows(leave.NewDate(2025, time.July, 1), windows))
}

func TestRequestOverlapsContracts(t *testing.T) {
	to := leave.NewDate(2025, time.April, 8)
	lr := leave.LeaveRequest{
		ID:        50,
		ContactID: contactID,
		FromDate:  leave.NewDate(2025, time.April, 7),
		ToDate:    &to,
	}

	// No contract data at all degenerates to true
	assert.True(t, leave.RequestOverlapsContracts(lr, nil))

	ending := leave.Contract{
		ID:              1,
		ContactID:       contactID,
		PeriodStartDate: leave.NewDate(2025, time.January, 1),
		PeriodEndDate:   dp(leave.NewDate(2025, time.March, 31)),
	}
	assert.False(t, leave.RequestOverlapsContracts(lr, []leave.Contract{ending}))

	open := leave.Contract{
		ID:              2,
		ContactID:       contactID,
		PeriodStartDate: leave.NewDate(2025, time.April, 1),
	}
	assert.True(t, leave.RequestOverlapsContracts(lr, []leave.Contract{ending, open}))
}
