package align

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/picoalign/internal/monitoring"
	"github.com/banshee-data/picoalign/internal/sensor"
	"github.com/banshee-data/picoalign/internal/simplex"
	"github.com/banshee-data/picoalign/internal/timeutil"
)

// Actuator is the controller surface an alignment run needs.
// *picomotor.Controller satisfies it.
type Actuator interface {
	Mover
	SetHome(axis int) error
	Axes() int
}

// Options configures an alignment run.
type Options struct {
	Simplex simplex.Config

	// Dim is the number of axes searched, starting at axis 1. Zero means
	// every axis of the actuator.
	Dim int

	SettleDelay time.Duration

	// SkipFinalSample skips the sensor reading after driving to the best
	// point.
	SkipFinalSample bool

	// Rehome defines the final position as home on every searched axis.
	Rehome bool

	// Observer, if set, receives a snapshot after every simplex sort.
	Observer simplex.Observer
}

// Report is the outcome of an alignment run.
type Report struct {
	Dim       int
	StartedAt time.Time
	Duration  time.Duration
	Result    *simplex.Result

	// FinalSignal is the sensor reading at the best point after the run.
	FinalSignal    float64
	HasFinalSignal bool

	// Efficiency is FinalSignal relative to the reference signal.
	Efficiency float64
	Rehomed    bool
}

// Aligner homes the actuator, runs the search from the home position, and
// leaves the actuator at the best point found.
type Aligner struct {
	act     Actuator
	sampler sensor.Sampler
	clock   timeutil.Clock
	opts    Options
	eval    *Evaluator
}

// NewAligner validates opts and builds an aligner.
func NewAligner(act Actuator, s sensor.Sampler, clock timeutil.Clock, opts Options) (*Aligner, error) {
	if act == nil || s == nil {
		return nil, errors.New("align: actuator and sensor are required")
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if opts.Dim == 0 {
		opts.Dim = act.Axes()
	}
	if opts.Dim < 1 || opts.Dim > act.Axes() {
		return nil, fmt.Errorf("align: dimension %d outside 1..%d", opts.Dim, act.Axes())
	}
	if err := opts.Simplex.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search config: %w", err)
	}
	return &Aligner{
		act:     act,
		sampler: s,
		clock:   clock,
		opts:    opts,
		eval:    NewEvaluator(act, s, clock, opts.SettleDelay),
	}, nil
}

// Evaluator returns the objective used for the search.
func (a *Aligner) Evaluator() *Evaluator { return a.eval }

func (a *Aligner) home() error {
	for axis := 1; axis <= a.opts.Dim; axis++ {
		if err := a.act.SetHome(axis); err != nil {
			return fmt.Errorf("failed to home axis %d: %w", axis, err)
		}
	}
	return nil
}

// Run performs one alignment. A failed or cancelled search returns the
// partial report with the error and leaves the actuator where it stopped.
func (a *Aligner) Run(ctx context.Context) (*Report, error) {
	report := &Report{Dim: a.opts.Dim, StartedAt: a.clock.Now()}
	defer func() { report.Duration = a.clock.Since(report.StartedAt) }()

	if err := a.home(); err != nil {
		return report, err
	}
	monitoring.Logf("align: searching %d axes from home", a.opts.Dim)

	opt, err := simplex.New(a.opts.Simplex, a.eval,
		simplex.WithClock(a.clock),
		simplex.WithObserver(a.opts.Observer))
	if err != nil {
		return report, err
	}
	res, err := opt.Run(ctx, make([]float64, a.opts.Dim))
	report.Result = res
	if err != nil {
		return report, err
	}

	if err := a.eval.Drive(ctx, res.Best); err != nil {
		return report, fmt.Errorf("failed to drive to best position: %w", err)
	}
	monitoring.Logf("align: moved to best position %v (cost %.6g)", res.Best, res.BestCost)

	if !a.opts.SkipFinalSample {
		v, err := a.sampler.Sample(ctx)
		if err != nil {
			return report, fmt.Errorf("failed to take final reading: %w", err)
		}
		report.FinalSignal = v
		report.HasFinalSignal = true
		report.Efficiency = v / a.opts.Simplex.ReferenceSignal
		monitoring.Logf("align: final signal %.6g (%.1f%% of reference)", v, 100*report.Efficiency)
	}

	if a.opts.Rehome {
		if err := a.home(); err != nil {
			return report, err
		}
		report.Rehomed = true
	}
	return report, nil
}
