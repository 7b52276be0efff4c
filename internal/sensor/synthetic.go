package sensor

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
)

// PositionSource reports the current step position of every axis.
type PositionSource interface {
	Positions() []int
}

// Gaussian models fibre coupling as a Gaussian of the distance between the
// actuator positions and an optimum: Peak * exp(-d²/(2·Width²)), plus
// optional uniform noise of amplitude Noise.
type Gaussian struct {
	Source PositionSource
	Center []float64
	Width  float64
	Peak   float64
	Noise  float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGaussian creates a noiseless synthetic sensor with unit peak.
func NewGaussian(src PositionSource, center []float64, width float64) *Gaussian {
	return &Gaussian{Source: src, Center: center, Width: width, Peak: 1}
}

// WithNoise enables deterministic noise from seed.
func (g *Gaussian) WithNoise(amplitude float64, seed int64) *Gaussian {
	g.Noise = amplitude
	g.rng = rand.New(rand.NewSource(seed))
	return g
}

// Value returns the noiseless signal at pos.
func (g *Gaussian) Value(pos []float64) float64 {
	var d2 float64
	for i, c := range g.Center {
		var p float64
		if i < len(pos) {
			p = pos[i]
		}
		d2 += (p - c) * (p - c)
	}
	return g.Peak * math.Exp(-d2/(2*g.Width*g.Width))
}

// Sample reads the source positions and evaluates the model.
func (g *Gaussian) Sample(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if g.Width <= 0 {
		return 0, fmt.Errorf("invalid gaussian width %g", g.Width)
	}
	steps := g.Source.Positions()
	pos := make([]float64, len(steps))
	for i, s := range steps {
		pos[i] = float64(s)
	}
	v := g.Value(pos)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Noise > 0 && g.rng != nil {
		v += g.Noise * (2*g.rng.Float64() - 1)
	}
	return v, nil
}
