package picomotor

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/picoalign/internal/timeutil"
)

// DefaultHealthInterval is how often HealthMonitor polls the controller.
const DefaultHealthInterval = 500 * time.Millisecond

// AxisHealth is the polled state of one axis.
type AxisHealth struct {
	Axis       int
	Position   int
	MotionDone bool
}

// HealthReport is one poll of the controller. Err wraps ErrDeviceNotReady
// when the poll failed; Axes then holds whatever was read before the
// failure.
type HealthReport struct {
	At        time.Time
	Axes      []AxisHealth
	ErrorCode int
	Err       error
}

// HealthMonitor periodically polls motion state, positions and the error
// code. It runs as its own task and shares the controller's session, whose
// mutex keeps its queries from interleaving with other traffic.
type HealthMonitor struct {
	controller *Controller
	clock      timeutil.Clock
	interval   time.Duration
}

// NewHealthMonitor creates a monitor polling every interval
// (DefaultHealthInterval when interval <= 0).
func NewHealthMonitor(c *Controller, clock timeutil.Clock, interval time.Duration) *HealthMonitor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	return &HealthMonitor{controller: c, clock: clock, interval: interval}
}

// Poll performs a single health check.
func (m *HealthMonitor) Poll() HealthReport {
	report := HealthReport{At: m.clock.Now()}

	for axis := 1; axis <= m.controller.Axes(); axis++ {
		done, err := m.controller.MotionDone(axis)
		if err != nil {
			report.Err = fmt.Errorf("%w: axis %d motion status: %v", ErrDeviceNotReady, axis, err)
			return report
		}
		pos, err := m.controller.Position(axis)
		if err != nil {
			report.Err = fmt.Errorf("%w: axis %d position: %v", ErrDeviceNotReady, axis, err)
			return report
		}
		report.Axes = append(report.Axes, AxisHealth{Axis: axis, Position: pos, MotionDone: done})
	}

	code, err := m.controller.ErrorCode()
	if err != nil {
		report.Err = fmt.Errorf("%w: error code: %v", ErrDeviceNotReady, err)
		return report
	}
	report.ErrorCode = code
	return report
}

// Run polls on every tick and sends reports on the returned channel until
// ctx is done. The channel is closed when Run's goroutine exits. Slow
// receivers miss reports rather than stalling the poller.
func (m *HealthMonitor) Run(ctx context.Context) <-chan HealthReport {
	out := make(chan HealthReport, 1)
	ticker := m.clock.NewTicker(m.interval)

	go func() {
		defer close(out)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				report := m.Poll()
				select {
				case out <- report:
				case <-ctx.Done():
					return
				default:
				}
			}
		}
	}()
	return out
}
