// Package optimizer provides numerical optimizer backends for the allocation
// engine, built on gonum/optimize. Bounds are removed by a logistic change of
// variables and constraints are handled by an augmented Lagrangian outer loop.
package optimizer

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"github.com/inference-sim/genacv/sim"
)

const (
	initialPenalty = 10.0
	maxPenalty     = 1e8
	fdStep         = 1e-6
	// stallRatio is the violation reduction below which the penalty grows.
	stallRatio = 0.25
)

// Backend minimizes a sim.Problem with one gonum method.
type Backend struct {
	name      sim.SolverName
	newMethod func() optimize.Method
	gradient  bool
	settings  sim.OptimizerSettings
}

// NewBFGS returns a quasi-Newton backend. It uses the problem's objective
// gradient when set and central differences otherwise.
func NewBFGS(settings sim.OptimizerSettings) sim.Minimizer {
	return &Backend{name: sim.SolverBFGS, newMethod: func() optimize.Method { return &optimize.BFGS{} }, gradient: true, settings: settings}
}

// NewLBFGS returns a limited-memory quasi-Newton backend.
func NewLBFGS(settings sim.OptimizerSettings) sim.Minimizer {
	return &Backend{name: sim.SolverLBFGS, newMethod: func() optimize.Method { return &optimize.LBFGS{} }, gradient: true, settings: settings}
}

// NewNelderMead returns a derivative-free simplex backend.
func NewNelderMead(settings sim.OptimizerSettings) sim.Minimizer {
	return &Backend{name: sim.SolverNelderMead, newMethod: func() optimize.Method { return &optimize.NelderMead{} }, settings: settings}
}

// Name implements sim.Minimizer.
func (b *Backend) Name() sim.SolverName { return b.name }

// Minimize implements sim.Minimizer. Inner solves that stop with a gonum
// error (line search failures near a minimum are common) keep the best point
// they reached. The lowest-objective feasible point evaluated is returned
// when the final iterate is infeasible or worse, so a feasible X0 always
// yields a converged result.
func (b *Backend) Minimize(ctx context.Context, p *sim.Problem) (*sim.MinimizeResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	settings := b.settings
	if settings == (sim.OptimizerSettings{}) {
		settings = sim.DefaultOptimizerSettings()
	}
	outer := settings.OuterIterations
	if outer < 1 {
		outer = 1
	}

	bt := newBoundTransform(p.Lower, p.Upper)
	al := newAugmentedLagrangian(p, initialPenalty)
	y := bt.toUnbounded(p.X0)
	res := &sim.MinimizeResult{Status: optimize.NotTerminated.String()}
	best := &incumbent{tol: settings.FeasibilityTol}
	_, f0, viol0 := al.evaluate(p.X0)
	best.offer(p.X0, f0, viol0)

	prevViol, prevF := math.Inf(1), math.Inf(1)
	for it := 0; it < outer; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		merit := func(y []float64) float64 {
			x := bt.toBounded(y)
			m, f, viol := al.evaluate(x)
			best.offer(x, f, viol)
			return m
		}
		problem := optimize.Problem{
			Func: merit,
			Status: func() (optimize.Status, error) {
				if err := ctx.Err(); err != nil {
					return optimize.Failure, err
				}
				return optimize.NotTerminated, nil
			},
		}
		switch {
		case b.gradient && p.Gradient != nil:
			problem.Grad = func(grad, y []float64) {
				al.gradient(grad, bt.toBounded(y))
				bt.chain(grad, y)
				zeroNonFinite(grad)
			}
		case b.gradient:
			problem.Grad = func(grad, y []float64) {
				fd.Gradient(grad, merit, y, &fd.Settings{Formula: fd.Central, Step: fdStep})
				zeroNonFinite(grad)
			}
		}
		r, err := optimize.Minimize(problem, y, &optimize.Settings{
			Converger:       &optimize.FunctionConverge{Absolute: 1e-12, Relative: 1e-10, Iterations: 25},
			MajorIterations: settings.MaxIterations,
			FuncEvaluations: settings.MaxEvaluations,
		}, b.newMethod())
		if r != nil {
			res.Iterations += r.MajorIterations
			res.Evaluations += r.FuncEvaluations
			res.Status = r.Status.String()
			if finiteAll(r.X) && r.F < infeasibleMerit {
				y = r.X
			}
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logrus.Tracef("%s inner solve %d: %v", b.name, it, err)
		}

		x := bt.toBounded(y)
		viol := p.Violation(x)
		f := p.Objective(x)
		al.update(x)
		if viol <= settings.FeasibilityTol && math.Abs(f-prevF) <= 1e-9*(1+math.Abs(f)) {
			break
		}
		if viol > stallRatio*prevViol && al.mu < maxPenalty {
			al.mu *= 10
		}
		prevViol, prevF = viol, f
	}

	x := bt.toBounded(y)
	res.X = x
	res.F = p.Objective(x)
	res.Violation = p.Violation(x)
	res.Converged = res.Violation <= settings.FeasibilityTol && !math.IsNaN(res.F) && !math.IsInf(res.F, 0)
	if best.x != nil && (!res.Converged || best.f < res.F) {
		logrus.Tracef("%s: final point f=%g violation=%g; returning best feasible f=%g", b.name, res.F, res.Violation, best.f)
		res.X = best.x
		res.F = best.f
		res.Violation = p.Violation(best.x)
		res.Converged = true
	}
	return res, nil
}

func zeroNonFinite(v []float64) {
	for i, g := range v {
		if math.IsNaN(g) || math.IsInf(g, 0) {
			v[i] = 0
		}
	}
}

func finiteAll(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
