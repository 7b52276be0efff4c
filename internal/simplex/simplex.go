// Package simplex implements a Nelder–Mead search with a goal-based early
// stop: once the best cost has been good enough for a number of consecutive
// iterations the search ends instead of disturbing the system further.
package simplex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/picoalign/internal/monitoring"
	"github.com/banshee-data/picoalign/internal/timeutil"
)

// Objective returns the cost of a point. Lower is better.
type Objective interface {
	Evaluate(ctx context.Context, x []float64) (float64, error)
}

// ObjectiveFunc adapts a plain function into an Objective.
type ObjectiveFunc func(ctx context.Context, x []float64) (float64, error)

// Evaluate calls f.
func (f ObjectiveFunc) Evaluate(ctx context.Context, x []float64) (float64, error) {
	return f(ctx, x)
}

// StopReason says why a run ended.
type StopReason int

const (
	StopMaxIterations StopReason = iota
	StopGoalSustained
	StopCanceled
	StopFailed
)

func (r StopReason) String() string {
	switch r {
	case StopMaxIterations:
		return "max_iterations"
	case StopGoalSustained:
		return "goal_sustained"
	case StopCanceled:
		return "canceled"
	case StopFailed:
		return "failed"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}

// Vertex is one point of the simplex and its cost.
type Vertex struct {
	Point []float64
	Cost  float64
}

// HistoryEntry records the best vertex after the sort at the start of an
// iteration.
type HistoryEntry struct {
	Iteration int
	Elapsed   time.Duration
	Cost      float64
	Position  []float64
}

// Snapshot is handed to an Observer after every sort.
type Snapshot struct {
	Iteration   int
	Evaluations int
	Vertices    []Vertex
}

// Observer receives a snapshot after every sort. The snapshot is a copy.
type Observer func(Snapshot)

// Result is the outcome of a run. On failure or cancellation it holds the
// state reached so far.
type Result struct {
	Best        []float64
	BestCost    float64
	History     []HistoryEntry
	Iterations  int
	Evaluations int
	Reason      StopReason
}

// Optimizer runs Nelder–Mead searches against an objective.
type Optimizer struct {
	cfg       Config
	objective Objective
	clock     timeutil.Clock
	observer  Observer
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithClock sets the clock used for history timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(o *Optimizer) { o.clock = c }
}

// WithObserver registers a snapshot callback.
func WithObserver(fn Observer) Option {
	return func(o *Optimizer) { o.observer = fn }
}

// New creates an optimizer. The config is validated.
func New(cfg Config, objective Objective, opts ...Option) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simplex config: %w", err)
	}
	if objective == nil {
		return nil, errors.New("simplex: nil objective")
	}
	o := &Optimizer{cfg: cfg, objective: objective, clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns the optimizer configuration.
func (o *Optimizer) Config() Config { return o.cfg }

type run struct {
	*Optimizer
	ctx      context.Context
	start    time.Time
	vertices []Vertex
	result   *Result
}

func (r *run) evaluate(x []float64) (float64, error) {
	cost, err := r.objective.Evaluate(r.ctx, x)
	if err != nil {
		return 0, err
	}
	r.result.Evaluations++
	return cost, nil
}

func (r *run) sortVertices() {
	sort.SliceStable(r.vertices, func(i, j int) bool {
		return r.vertices[i].Cost < r.vertices[j].Cost
	})
	best := r.vertices[0]
	r.result.Best = append([]float64(nil), best.Point...)
	r.result.BestCost = best.Cost
}

func (r *run) snapshot() {
	if r.observer == nil {
		return
	}
	vs := make([]Vertex, len(r.vertices))
	for i, v := range r.vertices {
		vs[i] = Vertex{Point: append([]float64(nil), v.Point...), Cost: v.Cost}
	}
	r.observer(Snapshot{Iteration: r.result.Iterations, Evaluations: r.result.Evaluations, Vertices: vs})
}

// stop finalizes the result. err is the cause of a failed or cancelled run.
func (r *run) stop(reason StopReason, err error) (*Result, error) {
	r.result.Reason = reason
	monitoring.Logf("simplex: stopped (%s) after %d iterations, %d evaluations, best cost %.6g",
		reason, r.result.Iterations, r.result.Evaluations, r.result.BestCost)
	return r.result, err
}

func (r *run) fail(err error) (*Result, error) {
	if ctxErr := r.ctx.Err(); ctxErr != nil {
		return r.stop(StopCanceled, ctxErr)
	}
	return r.stop(StopFailed, fmt.Errorf("objective evaluation failed: %w", err))
}

// Run searches from x0 until a stopping rule fires, the context ends, or an
// evaluation fails. Evaluation errors are never retried.
func (o *Optimizer) Run(ctx context.Context, x0 []float64) (*Result, error) {
	dim := len(x0)
	if dim == 0 {
		return nil, errors.New("simplex: empty start point")
	}
	cfg := o.cfg
	r := &run{
		Optimizer: o,
		ctx:       ctx,
		start:     o.clock.Now(),
		vertices:  make([]Vertex, 0, dim+1),
		result:    &Result{},
	}

	// Starting simplex: x0 and x0 displaced along each axis.
	for i := -1; i < dim; i++ {
		p := append([]float64(nil), x0...)
		if i >= 0 {
			p[i] += cfg.InitialStep
		}
		cost, err := r.evaluate(p)
		if err != nil {
			if len(r.vertices) > 0 {
				r.sortVertices()
			}
			return r.fail(err)
		}
		r.vertices = append(r.vertices, Vertex{Point: p, Cost: cost})
	}

	goal := cfg.GoalCost()
	sustained := 0
	centroid := make([]float64, dim)
	dir := make([]float64, dim)

	for {
		r.sortVertices()
		r.result.History = append(r.result.History, HistoryEntry{
			Iteration: r.result.Iterations,
			Elapsed:   o.clock.Since(r.start),
			Cost:      r.result.BestCost,
			Position:  append([]float64(nil), r.result.Best...),
		})
		r.snapshot()
		monitoring.Debugf("simplex: iteration %d best cost %.6g at %v",
			r.result.Iterations, r.result.BestCost, r.result.Best)

		if cfg.MaxIterations > 0 && r.result.Iterations >= cfg.MaxIterations {
			return r.stop(StopMaxIterations, nil)
		}
		if err := ctx.Err(); err != nil {
			return r.stop(StopCanceled, err)
		}
		r.result.Iterations++

		if r.result.BestCost > goal {
			sustained = 0
		} else {
			sustained++
		}
		if cfg.NoImprovementPatience > 0 && sustained >= cfg.NoImprovementPatience {
			return r.stop(StopGoalSustained, nil)
		}

		best := r.vertices[0]
		worst := &r.vertices[dim]
		secondWorst := r.vertices[dim-1]

		for i := range centroid {
			centroid[i] = 0
		}
		for _, v := range r.vertices[:dim] {
			floats.Add(centroid, v.Point)
		}
		floats.Scale(1/float64(dim), centroid)
		floats.SubTo(dir, centroid, worst.Point)

		// Reflection.
		xr := floats.AddScaledTo(make([]float64, dim), centroid, cfg.Alpha, dir)
		cr, err := r.evaluate(xr)
		if err != nil {
			return r.fail(err)
		}
		if best.Cost <= cr && cr < secondWorst.Cost {
			*worst = Vertex{Point: xr, Cost: cr}
			continue
		}

		// Expansion.
		if cr < best.Cost {
			xe := floats.AddScaledTo(make([]float64, dim), centroid, cfg.Gamma, dir)
			ce, err := r.evaluate(xe)
			if err != nil {
				return r.fail(err)
			}
			if ce < cr {
				*worst = Vertex{Point: xe, Cost: ce}
			} else {
				*worst = Vertex{Point: xr, Cost: cr}
			}
			continue
		}

		// Contraction.
		xc := floats.AddScaledTo(make([]float64, dim), centroid, cfg.Rho, dir)
		cc, err := r.evaluate(xc)
		if err != nil {
			return r.fail(err)
		}
		if cc < worst.Cost {
			*worst = Vertex{Point: xc, Cost: cc}
			continue
		}

		// Shrink every vertex towards the best.
		for i := 1; i <= dim; i++ {
			v := &r.vertices[i]
			floats.SubTo(dir, v.Point, best.Point)
			p := floats.AddScaledTo(make([]float64, dim), best.Point, cfg.Sigma, dir)
			c, err := r.evaluate(p)
			if err != nil {
				return r.fail(err)
			}
			*v = Vertex{Point: p, Cost: c}
		}
	}
}
