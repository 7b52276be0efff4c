package picomotor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/picoalign/internal/timeutil"
)

func TestHealthMonitor_Poll(t *testing.T) {
	c, _ := newSimController(t)
	require.NoError(t, c.MoveTo(2, 15))

	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	report := NewHealthMonitor(c, clock, 0).Poll()

	require.NoError(t, report.Err)
	assert.Equal(t, clock.Now(), report.At)
	require.Len(t, report.Axes, DefaultAxes)
	assert.Equal(t, AxisHealth{Axis: 2, Position: 15, MotionDone: true}, report.Axes[1])
	assert.Zero(t, report.ErrorCode)
}

func TestHealthMonitor_PollFailure(t *testing.T) {
	sim := NewSimulator(2)
	c := NewController(NewSession(sim), 2)
	sim.WriteErr = assert.AnError

	report := NewHealthMonitor(c, timeutil.NewMockClock(time.Time{}), time.Second).Poll()
	assert.ErrorIs(t, report.Err, ErrDeviceNotReady)
	assert.Empty(t, report.Axes)
}

func TestHealthMonitor_Run(t *testing.T) {
	c, _ := newSimController(t)
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := NewHealthMonitor(c, clock, DefaultHealthInterval)

	ctx, cancel := context.WithCancel(context.Background())
	reports := m.Run(ctx)

	clock.Advance(DefaultHealthInterval)
	select {
	case r := <-reports:
		assert.NoError(t, r.Err)
		assert.Len(t, r.Axes, DefaultAxes)
	case <-time.After(2 * time.Second):
		t.Fatal("no health report after a tick")
	}

	cancel()
	select {
	case _, ok := <-reports:
		for ok {
			_, ok = <-reports
		}
	case <-time.After(2 * time.Second):
		t.Fatal("report channel not closed after cancel")
	}
}
