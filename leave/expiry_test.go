package leave_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attunehr/leave-engine/leave"
	"github.com/attunehr/leave-engine/leave/store"
)

// =============================================================================
// CREATE EXPIRY RECORDS
// =============================================================================

func TestCreateExpiryRecords_NothingDue(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN a grant with no expiry date and one expiring after today
	env.grant(t, typeLeaveOption, "20", nil)
	env.grant(t, typeBroughtForward, "5", dp(leave.NewDate(2025, time.December, 31)))

	// WHEN the engine runs
	written, err := env.engine.CreateExpiryRecords(env.ctx)

	// THEN nothing is written
	require.NoError(t, err)
	assert.Equal(t, 0, written)
	assert.Len(t, env.mem.All(), 2)
}

func TestCreateExpiryRecords_FullWaste(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN 5 brought-forward days that expired with no consumption
	original := env.grant(t, typeBroughtForward, "5", dp(leave.NewDate(2025, time.March, 31)))

	// WHEN the engine runs
	written, err := env.engine.CreateExpiryRecords(env.ctx)

	// THEN one correction carries the full amount, negated
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	correction, err := env.mem.CorrectionFor(env.ctx, original.ID)
	require.NoError(t, err)
	require.NotNil(t, correction)
	assert.Equal(t, "-5", correction.Amount.String())
	assert.Equal(t, original.SourceID, correction.SourceID)
	assert.Equal(t, original.SourceType, correction.SourceType)
	assert.Equal(t, original.TypeID, correction.TypeID)
	require.NotNil(t, correction.ExpiryDate)
	assert.True(t, correction.ExpiryDate.Equal(*original.ExpiryDate))
	require.NotNil(t, correction.ExpiredBalanceChangeID)
	assert.Equal(t, original.ID, *correction.ExpiredBalanceChangeID)
}

func TestCreateExpiryRecords_ConsumptionOffsetsWaste(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN 5 brought-forward days expiring March 31 and 2 approved leave
	// days taken before the expiry
	original := env.grant(t, typeBroughtForward, "5", dp(leave.NewDate(2025, time.March, 31)))
	env.addApprovedLeave(t, 50, leave.NewDate(2025, time.March, 10), leave.NewDate(2025, time.March, 11))

	// WHEN the engine runs
	written, err := env.engine.CreateExpiryRecords(env.ctx)

	// THEN only the unconsumed 3 days expire
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	correction, err := env.mem.CorrectionFor(env.ctx, original.ID)
	require.NoError(t, err)
	require.NotNil(t, correction)
	assert.Equal(t, "-3", correction.Amount.String())
}

func TestCreateExpiryRecords_DaysAfterExpiryDoNotOffset(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN consumption dated after the expiry cutoff
	original := env.grant(t, typeBroughtForward, "5", dp(leave.NewDate(2025, time.March, 31)))
	env.addApprovedLeave(t, 50, leave.NewDate(2025, time.April, 2), leave.NewDate(2025, time.April, 3))

	// WHEN the engine runs
	written, err := env.engine.CreateExpiryRecords(env.ctx)

	// THEN the full amount still expires
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	correction, err := env.mem.CorrectionFor(env.ctx, original.ID)
	require.NoError(t, err)
	require.NotNil(t, correction)
	assert.Equal(t, "-5", correction.Amount.String())
}

func TestCreateExpiryRecords_FullyConsumed(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN 2 brought-forward days and 3 approved days before the expiry
	original := env.grant(t, typeBroughtForward, "2", dp(leave.NewDate(2025, time.March, 31)))
	env.addApprovedLeave(t, 50, leave.NewDate(2025, time.March, 10), leave.NewDate(2025, time.March, 12))

	// WHEN the engine runs
	written, err := env.engine.CreateExpiryRecords(env.ctx)

	// THEN the correction records zero waste
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	correction, err := env.mem.CorrectionFor(env.ctx, original.ID)
	require.NoError(t, err)
	require.NotNil(t, correction)
	assert.True(t, correction.Amount.IsZero())
}

func TestCreateExpiryRecords_Idempotent(t *testing.T) {
	env := newTestEnv(t)

	env.grant(t, typeBroughtForward, "5", dp(leave.NewDate(2025, time.March, 31)))

	written, err := env.engine.CreateExpiryRecords(env.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, written)
	rowsAfterFirst := len(env.mem.All())

	// WHEN the engine runs again
	written, err = env.engine.CreateExpiryRecords(env.ctx)

	// THEN corrected rows are no longer due and nothing new is written
	require.NoError(t, err)
	assert.Equal(t, 0, written)
	assert.Len(t, env.mem.All(), rowsAfterFirst)
}

func TestCreateExpiryRecords_CrossEntryExclusivity(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN two expired grants whose validity ranges both cover the same 2
	// consumed days
	first := env.grant(t, typeBroughtForward, "5", dp(leave.NewDate(2025, time.March, 31)))
	second := env.grant(t, typeBroughtForward, "3", dp(leave.NewDate(2025, time.April, 30)))
	env.addApprovedLeave(t, 50, leave.NewDate(2025, time.March, 10), leave.NewDate(2025, time.March, 11))

	// WHEN the engine runs
	written, err := env.engine.CreateExpiryRecords(env.ctx)

	// THEN the earlier-expiring grant claims both days; the later one gets
	// nothing
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	firstCorrection, err := env.mem.CorrectionFor(env.ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, firstCorrection)
	assert.Equal(t, "-3", firstCorrection.Amount.String())

	secondCorrection, err := env.mem.CorrectionFor(env.ctx, second.ID)
	require.NoError(t, err)
	require.NotNil(t, secondCorrection)
	assert.Equal(t, "-3", secondCorrection.Amount.String())
}

func TestCreateExpiryRecords_SkipsRowsOfDeletedRequests(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN a due TOIL accrual whose owning request was deleted
	to := leave.NewDate(2025, time.March, 10)
	dates := env.dir.AddLeaveRequestWithDays(leave.LeaveRequest{
		ID:          60,
		ContactID:   contactID,
		TypeID:      annualLeave,
		FromDate:    leave.NewDate(2025, time.March, 10),
		ToDate:      &to,
		StatusID:    store.StatusApproved,
		RequestType: leave.RequestTypeTOIL,
		Deleted:     true,
	})
	env.insertRow(t, leave.BalanceChange{
		SourceID:   dates[0].ID,
		SourceType: leave.SourceLeaveRequestDay,
		TypeID:     typeLeaveOption,
		Amount:     dec(t, "3"),
		ExpiryDate: dp(leave.NewDate(2025, time.March, 31)),
	})

	// WHEN the engine runs
	written, err := env.engine.CreateExpiryRecords(env.ctx)

	// THEN the row is skipped for this run, not corrected
	require.NoError(t, err)
	assert.Equal(t, 0, written)
	assert.Len(t, env.mem.All(), 1)
}

func TestCreateExpiryRecords_UnresolvableSourceType(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN a due row whose source type can't own an entitlement
	env.insertRow(t, leave.BalanceChange{
		SourceID:   77,
		SourceType: leave.SourceTOILRequest,
		TypeID:     typeLeaveOption,
		Amount:     dec(t, "3"),
		ExpiryDate: dp(leave.NewDate(2025, time.March, 31)),
	})

	// WHEN the engine runs
	_, err := env.engine.CreateExpiryRecords(env.ctx)

	// THEN the run aborts with an integrity fault
	require.Error(t, err)
	var integrity *leave.IntegrityError
	assert.True(t, errors.As(err, &integrity))
	assert.True(t, errors.Is(err, leave.ErrUnknownSourceType))
}

// =============================================================================
// RETROACTIVE RECALCULATION
// =============================================================================

func TestRecalculateForPastDates_ShrinksCorrection(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN a fully wasted expiry already on the books
	original := env.grant(t, typeBroughtForward, "5", dp(leave.NewDate(2025, time.March, 31)))
	written, err := env.engine.CreateExpiryRecords(env.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, written)

	before, err := env.mem.CorrectionFor(env.ctx, original.ID)
	require.NoError(t, err)
	require.Equal(t, "-5", before.Amount.String())

	// WHEN a request with 2 past days inside the expiry window is recorded
	// and recalculation runs
	env.addApprovedLeave(t, 50, leave.NewDate(2025, time.March, 10), leave.NewDate(2025, time.March, 11))
	lr, err := env.dir.LeaveRequestByID(env.ctx, 50)
	require.NoError(t, err)

	updated, err := env.engine.RecalculateForPastDates(env.ctx, lr)

	// THEN the existing correction shrinks in place
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	after, err := env.mem.CorrectionFor(env.ctx, original.ID)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, "-3", after.Amount.String())
}

func TestRecalculateForPastDates_DeletedRequest(t *testing.T) {
	env := newTestEnv(t)

	env.grant(t, typeBroughtForward, "5", dp(leave.NewDate(2025, time.March, 31)))

	to := leave.NewDate(2025, time.March, 11)
	lr := &leave.LeaveRequest{
		ID:          50,
		ContactID:   contactID,
		TypeID:      annualLeave,
		FromDate:    leave.NewDate(2025, time.March, 10),
		ToDate:      &to,
		StatusID:    store.StatusApproved,
		RequestType: leave.RequestTypeLeave,
		Deleted:     true,
	}

	updated, err := env.engine.RecalculateForPastDates(env.ctx, lr)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
}

func TestRecalculateForPastDates_NoContainingPeriod(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN a request dated outside every absence period
	to := leave.NewDate(2024, time.March, 11)
	lr := &leave.LeaveRequest{
		ID:          50,
		ContactID:   contactID,
		TypeID:      annualLeave,
		FromDate:    leave.NewDate(2024, time.March, 10),
		ToDate:      &to,
		StatusID:    store.StatusApproved,
		RequestType: leave.RequestTypeLeave,
	}

	updated, err := env.engine.RecalculateForPastDates(env.ctx, lr)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
}

func TestRecalculateForPastDates_ScopedToContactAndType(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN an expired grant belonging to the shared contact
	original := env.grant(t, typeBroughtForward, "5", dp(leave.NewDate(2025, time.March, 31)))
	written, err := env.engine.CreateExpiryRecords(env.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, written)

	// WHEN another contact's request triggers recalculation
	env.dir.AddEntitlement(leave.Entitlement{ID: 101, ContactID: otherContact, TypeID: annualLeave, PeriodID: periodID})
	dates := env.addRequest(t, 51, otherContact, annualLeave, leave.RequestTypeLeave, store.StatusApproved,
		leave.NewDate(2025, time.March, 10), leave.NewDate(2025, time.March, 11))
	require.Len(t, dates, 2)

	lr, err := env.dir.LeaveRequestByID(env.ctx, 51)
	require.NoError(t, err)

	updated, err := env.engine.RecalculateForPastDates(env.ctx, lr)

	// THEN the shared contact's correction is untouched
	require.NoError(t, err)
	assert.Equal(t, 0, updated)

	correction, err := env.mem.CorrectionFor(env.ctx, original.ID)
	require.NoError(t, err)
	require.NotNil(t, correction)
	assert.Equal(t, "-5", correction.Amount.String())
}
