package api_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attunehr/leave-engine/api"
	"github.com/attunehr/leave-engine/store/sqlite"
)

func newTestScheduler(t *testing.T) *api.ExpiryScheduler {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return api.NewExpiryScheduler(api.NewHandler(store))
}

func TestSchedulerRunNow(t *testing.T) {
	scheduler := newTestScheduler(t)

	scheduler.RunNow()
	scheduler.RunNow()

	runs := scheduler.Runs()
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.NotEmpty(t, run.ID)
		assert.NoError(t, run.Err)
		assert.Equal(t, 0, run.Corrections)
		assert.False(t, run.FinishedAt.Before(run.StartedAt))
	}
	assert.NotEqual(t, runs[0].ID, runs[1].ID)
}

func TestSchedulerStartStop(t *testing.T) {
	scheduler := newTestScheduler(t)
	scheduler.CheckInterval = time.Hour

	scheduler.Start()
	scheduler.Stop()

	// The immediate run on start is recorded
	assert.NotEmpty(t, scheduler.Runs())
}

func TestSchedulerDisabled(t *testing.T) {
	scheduler := newTestScheduler(t)
	scheduler.Enabled = false

	scheduler.Start()
	scheduler.Stop()

	assert.Empty(t, scheduler.Runs())
}
