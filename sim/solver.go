package sim

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// LinearConstraint is Lower <= Coeffs . x <= Upper. Either side may be
// infinite. Scale normalizes violations; zero means one.
type LinearConstraint struct {
	Coeffs []float64
	Lower  float64
	Upper  float64
	Scale  float64
}

// Eval returns Coeffs . x.
func (c LinearConstraint) Eval(x []float64) float64 {
	var v float64
	for i, a := range c.Coeffs {
		v += a * x[i]
	}
	return v
}

// NonlinearConstraint is Lower <= Func(x) <= Upper.
type NonlinearConstraint struct {
	Func  func(x []float64) float64
	Lower float64
	Upper float64
	Scale float64
}

// Problem is a bound and constraint limited minimization. Objective may
// return NaN at infeasible points. Gradient, when set, is the objective
// gradient; gradient-based backends fall back to finite differences without
// it.
type Problem struct {
	Objective func(x []float64) float64
	Gradient  func(grad, x []float64)
	X0        []float64
	Lower     []float64
	Upper     []float64
	Linear    []LinearConstraint
	Nonlinear []NonlinearConstraint
}

// Validate checks dimensions and that the bounds bracket the starting point.
func (p *Problem) Validate() error {
	n := len(p.X0)
	if p.Objective == nil || n == 0 {
		return fmt.Errorf("problem needs an objective and a starting point")
	}
	if len(p.Lower) != n || len(p.Upper) != n {
		return fmt.Errorf("bounds have %d/%d entries for %d variables", len(p.Lower), len(p.Upper), n)
	}
	for i := 0; i < n; i++ {
		if !(p.Lower[i] < p.Upper[i]) || math.IsInf(p.Lower[i], 0) || math.IsInf(p.Upper[i], 0) {
			return fmt.Errorf("variable %d needs finite bounds lower < upper, got [%v, %v]", i, p.Lower[i], p.Upper[i])
		}
		if p.X0[i] < p.Lower[i] || p.X0[i] > p.Upper[i] {
			return fmt.Errorf("starting point %d = %v outside [%v, %v]", i, p.X0[i], p.Lower[i], p.Upper[i])
		}
	}
	for k, c := range p.Linear {
		if len(c.Coeffs) != n {
			return fmt.Errorf("linear constraint %d has %d coefficients for %d variables", k, len(c.Coeffs), n)
		}
	}
	return nil
}

// Violation returns the largest scaled constraint violation at x; zero when
// x is feasible. Non-finite nonlinear constraint values count as infinitely
// violated.
func (p *Problem) Violation(x []float64) float64 {
	var worst float64
	for _, c := range p.Linear {
		worst = math.Max(worst, rangeViolation(c.Eval(x), c.Lower, c.Upper, c.Scale))
	}
	for _, c := range p.Nonlinear {
		worst = math.Max(worst, rangeViolation(c.Func(x), c.Lower, c.Upper, c.Scale))
	}
	return worst
}

func rangeViolation(v, lower, upper, scale float64) float64 {
	if math.IsNaN(v) {
		return math.Inf(1)
	}
	if scale <= 0 {
		scale = 1
	}
	return math.Max(0, math.Max(lower-v, v-upper)) / scale
}

// MinimizeResult is the outcome of one numerical solve.
type MinimizeResult struct {
	X           []float64
	F           float64
	Violation   float64
	Iterations  int
	Evaluations int
	Converged   bool
	Status      string
}

// Minimizer is a numerical optimizer backend.
type Minimizer interface {
	Name() SolverName
	Minimize(ctx context.Context, p *Problem) (*MinimizeResult, error)
}

// MinimizerFactory builds a backend with the given limits.
type MinimizerFactory func(settings OptimizerSettings) Minimizer

var (
	minimizersMu sync.RWMutex
	minimizers   = make(map[SolverName]MinimizerFactory)
)

// RegisterMinimizer makes a backend available under name. Backends call it
// from init().
func RegisterMinimizer(name SolverName, factory MinimizerFactory) {
	minimizersMu.Lock()
	defer minimizersMu.Unlock()
	minimizers[name] = factory
}

// RegisteredMinimizers lists the available backend names, sorted.
func RegisteredMinimizers() []SolverName {
	minimizersMu.RLock()
	defer minimizersMu.RUnlock()
	names := make([]SolverName, 0, len(minimizers))
	for name := range minimizers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// ResolveMinimizer returns the requested backend. "auto" (or empty) takes the
// first registered backend in DefaultSolverPriority. A recognized but
// unregistered name falls back the same way when fallback is allowed and is
// a configuration error otherwise.
func ResolveMinimizer(requested SolverName, fallback bool, settings OptimizerSettings) (Minimizer, error) {
	if !ValidSolvers[requested] {
		return nil, fmt.Errorf("%w: unknown solver %q", ErrConfig, requested)
	}
	minimizersMu.RLock()
	defer minimizersMu.RUnlock()

	auto := requested == "" || requested == SolverAuto
	if !auto {
		if factory, ok := minimizers[requested]; ok {
			return factory(settings), nil
		}
		if !fallback {
			return nil, fmt.Errorf("%w: solver %q is not available in this build", ErrConfig, requested)
		}
	}
	for _, name := range DefaultSolverPriority {
		if factory, ok := minimizers[name]; ok {
			if !auto {
				logrus.Warnf("solver %q is not available; falling back to %q", requested, name)
			}
			return factory(settings), nil
		}
	}
	return nil, fmt.Errorf("%w: no numerical optimizer registered", ErrConfig)
}
