// Package align drives picomotor actuators through a simplex search to
// maximize a sensor signal.
package align

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/picoalign/internal/sensor"
	"github.com/banshee-data/picoalign/internal/timeutil"
)

// DefaultSettleDelay is the wait after each move command. The controller
// does not acknowledge completion of absolute moves.
const DefaultSettleDelay = 500 * time.Millisecond

// ErrInvalidTarget is returned when a coordinate cannot be sent as a step
// position: NaN, infinite, or outside the signed 32-bit range.
var ErrInvalidTarget = errors.New("invalid step target")

// Mover commands absolute axis positions in steps.
type Mover interface {
	MoveTo(axis, target int) error
}

// Evaluator turns a position vector into a cost: it moves axis 1..dim to
// the rounded coordinates one at a time, waits for each to settle, samples
// the sensor once and returns the negated sample. Every call drives the
// hardware; nothing is cached.
type Evaluator struct {
	mover   Mover
	sampler sensor.Sampler
	clock   timeutil.Clock
	settle  time.Duration
}

// NewEvaluator creates an evaluator. A zero settle delay selects
// DefaultSettleDelay; use a negative one to skip settling.
func NewEvaluator(m Mover, s sensor.Sampler, clock timeutil.Clock, settle time.Duration) *Evaluator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if settle == 0 {
		settle = DefaultSettleDelay
	}
	return &Evaluator{mover: m, sampler: s, clock: clock, settle: settle}
}

// Evaluate implements simplex.Objective.
func (e *Evaluator) Evaluate(ctx context.Context, x []float64) (float64, error) {
	if err := e.Drive(ctx, x); err != nil {
		return 0, err
	}
	v, err := e.sampler.Sample(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to sample sensor: %w", err)
	}
	return -v, nil
}

// stepTargets rounds x to step positions. Nothing is moved unless every
// coordinate is representable.
func stepTargets(x []float64) ([]int, error) {
	targets := make([]int, len(x))
	for i, v := range x {
		r := math.Round(v)
		if math.IsNaN(r) || r < math.MinInt32 || r > math.MaxInt32 {
			return nil, fmt.Errorf("%w: axis %d at %v", ErrInvalidTarget, i+1, v)
		}
		targets[i] = int(r)
	}
	return targets, nil
}

// Drive moves every axis to x without sampling.
func (e *Evaluator) Drive(ctx context.Context, x []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	targets, err := stepTargets(x)
	if err != nil {
		return err
	}
	for i, target := range targets {
		axis := i + 1
		if err := e.mover.MoveTo(axis, target); err != nil {
			return fmt.Errorf("failed to move axis %d to %d: %w", axis, target, err)
		}
		if e.settle > 0 {
			e.clock.Sleep(e.settle)
		}
	}
	return nil
}
