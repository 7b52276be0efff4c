package simplex

import (
	"errors"
	"fmt"
)

// Defaults for Config.
const (
	DefaultInitialStep            = 50.0
	DefaultAlpha                  = 1.0
	DefaultGamma                  = 2.0
	DefaultRho                    = -0.5
	DefaultSigma                  = 0.5
	DefaultMaxIterations          = 100
	DefaultNoImprovementThreshold = 0.9
	DefaultNoImprovementPatience  = 3
	DefaultReferenceSignal        = 1.0
)

// Config holds the search coefficients and the stopping policy.
type Config struct {
	// InitialStep displaces each axis of the start point to build the
	// starting simplex.
	InitialStep float64

	Alpha float64 // reflection
	Gamma float64 // expansion
	Rho   float64 // contraction, negative
	Sigma float64 // shrink

	// MaxIterations stops the search after this many iterations; 0 means
	// unbounded.
	MaxIterations int

	// The goal cost is -ReferenceSignal*NoImprovementThreshold. Once the
	// best cost has met it for NoImprovementPatience consecutive
	// iterations the search stops. A patience of 0 disables the rule.
	NoImprovementThreshold float64
	NoImprovementPatience  int
	ReferenceSignal        float64
}

// DefaultConfig returns the standard coefficients and stopping policy.
func DefaultConfig() Config {
	return Config{
		InitialStep:            DefaultInitialStep,
		Alpha:                  DefaultAlpha,
		Gamma:                  DefaultGamma,
		Rho:                    DefaultRho,
		Sigma:                  DefaultSigma,
		MaxIterations:          DefaultMaxIterations,
		NoImprovementThreshold: DefaultNoImprovementThreshold,
		NoImprovementPatience:  DefaultNoImprovementPatience,
		ReferenceSignal:        DefaultReferenceSignal,
	}
}

// GoalCost is the cost at or below which the search counts an iteration
// towards the patience.
func (c Config) GoalCost() float64 {
	return -c.ReferenceSignal * c.NoImprovementThreshold
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	var errs []error
	if c.InitialStep == 0 {
		errs = append(errs, errors.New("initial_step must be non-zero"))
	}
	if c.Alpha <= 0 {
		errs = append(errs, fmt.Errorf("alpha must be positive, got %g", c.Alpha))
	}
	if c.Gamma <= c.Alpha {
		errs = append(errs, fmt.Errorf("gamma must exceed alpha, got %g", c.Gamma))
	}
	if c.Rho <= -1 || c.Rho >= 0 {
		errs = append(errs, fmt.Errorf("rho must be in (-1, 0), got %g", c.Rho))
	}
	if c.Sigma <= 0 || c.Sigma >= 1 {
		errs = append(errs, fmt.Errorf("sigma must be in (0, 1), got %g", c.Sigma))
	}
	if c.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("max_iterations must be non-negative, got %d", c.MaxIterations))
	}
	if c.NoImprovementPatience < 0 {
		errs = append(errs, fmt.Errorf("no_improvement_patience must be non-negative, got %d", c.NoImprovementPatience))
	}
	if c.ReferenceSignal <= 0 {
		errs = append(errs, fmt.Errorf("reference_signal must be positive, got %g", c.ReferenceSignal))
	}
	return errors.Join(errs...)
}
