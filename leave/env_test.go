package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/attunehr/leave-engine/leave"
	"github.com/attunehr/leave-engine/leave/store"
)

// Shared fixture ids. One contact with one annual-leave entitlement over the
// 2025 absence period, employed on an open-ended contract.
const (
	periodID      int64 = 1
	contactID     int64 = 10
	otherContact  int64 = 11
	annualLeave   int64 = 1
	entitlementID int64 = 100
)

// Option values from leave.DefaultOptionSet.
const (
	typeLeaveOption         int64 = 1
	typeBroughtForward      int64 = 2
	typePublicHolidayOption int64 = 3
)

// fixedToday pins the engine clock mid-year so due-date cutoffs don't depend
// on when the tests run.
var fixedToday = leave.NewDate(2025, time.July, 1)

type testEnv struct {
	ctx    context.Context
	mem    *store.Memory
	dir    *store.Directory
	ledger *leave.Ledger
	agg    *leave.Aggregator
	engine *leave.ExpiryEngine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mem := store.NewMemory()
	dir := store.NewDirectory()
	resolver := leave.NewWindowResolver(dir, dir)

	env := &testEnv{
		ctx:    context.Background(),
		mem:    mem,
		dir:    dir,
		ledger: leave.NewLedger(mem, dir, leave.FlatWorkPattern{}, leave.DefaultOptionSet()),
		agg:    leave.NewAggregator(mem, dir, dir, dir, resolver),
		engine: leave.NewExpiryEngine(mem, dir, dir, dir, resolver),
	}
	env.engine.Now = func() leave.Date { return fixedToday }

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
	dir.AddContract(leave.Contract{
		ID:              1,
		ContactID:       contactID,
		PeriodStartDate: leave.NewDate(2025, time.January, 1),
	})

	return env
}

func (env *testEnv) entitlement(t *testing.T) *leave.Entitlement {
	t.Helper()
	ent, err := env.dir.EntitlementByID(env.ctx, entitlementID)
	require.NoError(t, err)
	return ent
}

// insertRow appends a ledger row directly, bypassing create validation.
func (env *testEnv) insertRow(t *testing.T, bc leave.BalanceChange) *leave.BalanceChange {
	t.Helper()
	id, err := env.mem.Insert(env.ctx, &bc)
	require.NoError(t, err)
	bc.ID = id
	return &bc
}

// grant appends an entitlement-sourced component row for the shared
// entitlement.
func (env *testEnv) grant(t *testing.T, typeID int64, amount string, expiry *leave.Date) *leave.BalanceChange {
	t.Helper()
	return env.insertRow(t, leave.BalanceChange{
		SourceID:   entitlementID,
		SourceType: leave.SourceEntitlement,
		TypeID:     typeID,
		Amount:     dec(t, amount),
		ExpiryDate: expiry,
	})
}

// addRequest registers a request with its per-day date rows and one -1 ledger
// row per day.
func (env *testEnv) addRequest(t *testing.T, id, contact, typeID int64, rt leave.RequestType, status int64, from, to leave.Date) []leave.LeaveRequestDate {
	t.Helper()
	dates := env.dir.AddLeaveRequestWithDays(leave.LeaveRequest{
		ID:          id,
		ContactID:   contact,
		TypeID:      typeID,
		FromDate:    from,
		ToDate:      &to,
		StatusID:    status,
		RequestType: rt,
	})
	for _, d := range dates {
		env.insertRow(t, leave.BalanceChange{
			SourceID:   d.ID,
			SourceType: leave.SourceLeaveRequestDay,
			TypeID:     typeLeaveOption,
			Amount:     decimal.NewFromInt(-1),
		})
	}
	return dates
}

// addApprovedLeave is addRequest for the shared contact's approved annual
// leave, the common case.
func (env *testEnv) addApprovedLeave(t *testing.T, id int64, from, to leave.Date) []leave.LeaveRequestDate {
	t.Helper()
	return env.addRequest(t, id, contactID, annualLeave, leave.RequestTypeLeave, store.StatusApproved, from, to)
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func dp(d leave.Date) *leave.Date { return &d }
