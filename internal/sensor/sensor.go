// Package sensor reads the scalar coupling signal that the alignment search
// maximizes: a power meter on a serial link, or a synthetic signal for dev
// mode and tests.
package sensor

import (
	"context"
	"errors"
)

// ErrNoReading is returned when a sensor produced no usable value.
var ErrNoReading = errors.New("no sensor reading")

// Sampler produces one signal reading per call. Larger is better.
type Sampler interface {
	Sample(ctx context.Context) (float64, error)
}

// Func adapts a plain function into a Sampler.
type Func func(ctx context.Context) (float64, error)

// Sample calls f.
func (f Func) Sample(ctx context.Context) (float64, error) {
	return f(ctx)
}
