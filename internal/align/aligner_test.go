package align

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/picoalign/internal/picomotor"
	"github.com/banshee-data/picoalign/internal/sensor"
	"github.com/banshee-data/picoalign/internal/simplex"
)

var optimum = []float64{120, -80, 40, 200}

func newRig(t *testing.T) (*picomotor.Controller, *picomotor.Simulator, *sensor.Gaussian) {
	t.Helper()
	sim := picomotor.NewSimulator(4)
	ctrl := picomotor.NewController(picomotor.NewSession(sim), 4)
	return ctrl, sim, sensor.NewGaussian(sim, optimum, 300)
}

func TestAligner_ReachesGoalAndFinalizes(t *testing.T) {
	ctrl, sim, gauss := newRig(t)
	clock := newMockClock()

	var snapshots int
	a, err := NewAligner(ctrl, gauss, clock, Options{
		Simplex:  simplex.DefaultConfig(),
		Observer: func(simplex.Snapshot) { snapshots++ },
	})
	require.NoError(t, err)

	report, err := a.Run(context.Background())
	require.NoError(t, err)

	res := report.Result
	assert.Equal(t, simplex.StopGoalSustained, res.Reason)
	assert.LessOrEqual(t, res.BestCost, -0.9)
	assert.Equal(t, 14, res.Evaluations)
	assert.Equal(t, len(res.History), snapshots)

	assert.Equal(t, []int{59, -153, 40, 134}, sim.Positions())
	require.True(t, report.HasFinalSignal)
	assert.InDelta(t, -res.BestCost, report.FinalSignal, 1e-12)
	assert.InDelta(t, report.FinalSignal, report.Efficiency, 1e-12)
	assert.False(t, report.Rehomed)

	// Four settles per evaluation plus the final drive.
	assert.Len(t, clock.Sleeps(), 4*14+4)
	assert.Equal(t, 30*time.Second, report.Duration)

	frames := sim.Frames()
	assert.Equal(t, []string{"1>1 DH\r", "1>2 DH\r", "1>3 DH\r", "1>4 DH\r"}, frames[:4])
	assert.Equal(t, "1>1 PA 0\r", frames[4])
}

func TestAligner_Rehome(t *testing.T) {
	ctrl, sim, gauss := newRig(t)
	a, err := NewAligner(ctrl, gauss, newMockClock(), Options{
		Simplex: simplex.DefaultConfig(),
		Rehome:  true,
	})
	require.NoError(t, err)

	report, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Rehomed)
	assert.Equal(t, []int{0, 0, 0, 0}, sim.Positions())

	frames := sim.Frames()
	assert.Equal(t, []string{"1>1 DH\r", "1>2 DH\r", "1>3 DH\r", "1>4 DH\r"}, frames[len(frames)-4:])
}

func TestAligner_SkipFinalSample(t *testing.T) {
	ctrl, _, gauss := newRig(t)
	a, err := NewAligner(ctrl, gauss, newMockClock(), Options{
		Simplex:         simplex.DefaultConfig(),
		SkipFinalSample: true,
	})
	require.NoError(t, err)

	report, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.HasFinalSignal)
	assert.Zero(t, report.FinalSignal)
}

func TestAligner_TransportFailureAbortsRun(t *testing.T) {
	ctrl, sim, gauss := newRig(t)
	evals := 0
	a, err := NewAligner(ctrl, sensor.Func(func(ctx context.Context) (float64, error) {
		evals++
		if evals == 3 {
			sim.WriteErr = assert.AnError
		}
		return gauss.Sample(ctx)
	}), newMockClock(), Options{Simplex: simplex.DefaultConfig()})
	require.NoError(t, err)

	report, err := a.Run(context.Background())
	var te *picomotor.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, simplex.StopFailed, report.Result.Reason)
	assert.Equal(t, 3, report.Result.Evaluations)
	assert.False(t, report.HasFinalSignal)
}

func TestAligner_CancelSkipsFinalize(t *testing.T) {
	ctrl, sim, gauss := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := NewAligner(ctrl, gauss, newMockClock(), Options{
		Simplex: simplex.DefaultConfig(),
		Observer: func(s simplex.Snapshot) {
			if s.Iteration == 2 {
				cancel()
			}
		},
	})
	require.NoError(t, err)

	report, err := a.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, simplex.StopCanceled, report.Result.Reason)
	assert.False(t, report.HasFinalSignal)

	frames := sim.Frames()
	assert.NotEqual(t, "1>1 DH\r", frames[len(frames)-1])
}

func TestAligner_PartialDimension(t *testing.T) {
	ctrl, sim, gauss := newRig(t)
	cfg := simplex.DefaultConfig()
	cfg.MaxIterations = 5
	cfg.NoImprovementPatience = 0

	a, err := NewAligner(ctrl, gauss, newMockClock(), Options{Simplex: cfg, Dim: 2, SettleDelay: -1})
	require.NoError(t, err)

	report, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Dim)
	assert.Len(t, report.Result.Best, 2)
	pos := sim.Positions()
	assert.Equal(t, []int{0, 0}, pos[2:])
}

func TestNewAligner_Rejects(t *testing.T) {
	ctrl, _, gauss := newRig(t)

	_, err := NewAligner(ctrl, gauss, nil, Options{Simplex: simplex.DefaultConfig(), Dim: 5})
	assert.Error(t, err)

	_, err = NewAligner(ctrl, nil, nil, Options{Simplex: simplex.DefaultConfig()})
	assert.Error(t, err)

	_, err = NewAligner(ctrl, gauss, nil, Options{})
	assert.Error(t, err, "zero simplex config is invalid")
}
