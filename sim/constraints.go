package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// boundsSlack widens derived upper bounds so that the analytic starting
// points stay strictly inside them.
const boundsSlack = 1.5

// allocationProblem ties a formulation's decision vector to sample counts.
type allocationProblem struct {
	form    Formulation
	fixedNH float64
	*Problem
}

// samples decodes a decision vector.
func (ap *allocationProblem) samples(x []float64) SampleVars {
	return ap.form.decode(x, ap.fixedNH)
}

// nested decodes x with every approximation count raised to at least
// (1+RatioNudge) N_H. It equals samples on the feasible region and keeps the
// estimator variance defined while a nesting row is violated.
func (ap *allocationProblem) nested(x []float64) []float64 {
	n := ap.samples(x).N
	floor := (1 + RatioNudge) * n[len(n)-1]
	for i := 0; i < len(n)-1; i++ {
		n[i] = math.Max(n[i], floor)
	}
	return n
}

// newAllocationProblem builds bounds, constraints and the objective for one
// DAG. varianceTarget is only used by the accuracy-constrained formulation.
func newAllocationProblem(cfg AllocationConfig, stats *PilotStatistics, eval *Evaluator, start SampleVars, varianceTarget float64) (*allocationProblem, error) {
	form := cfg.ResolveFormulation()
	n := stats.NumApprox
	costs := cfg.Costs
	cH := cfg.truthCost()
	nPilot := math.Max(1, stats.TruthSamples())
	budget := cfg.Budget

	// costPerTruth is sum_i c_i/c_H, the cost of one unit of every ratio.
	var costPerTruth float64
	for i := 0; i < n; i++ {
		costPerTruth += costs[i] / cH
	}
	minRatio := 1 + RatioNudge
	// Nesting rows are measured in units of the truth count being solved for.
	nestScale := nPilot
	if t := start.Truth(); t > nestScale {
		nestScale = t
	}

	ap := &allocationProblem{form: form, fixedNH: nPilot, Problem: &Problem{}}
	p := ap.Problem
	nv := form.NumVariables(n)
	p.Lower = make([]float64, nv)
	p.Upper = make([]float64, nv)

	switch form {
	case FormulationRatios:
		avail := budget/nPilot - 1
		if avail <= minRatio*costPerTruth {
			return nil, fmt.Errorf("%w: budget %v leaves no room beyond the pilot", ErrInfeasiblePoint, budget)
		}
		for i := 0; i < n; i++ {
			p.Lower[i] = minRatio
			p.Upper[i] = avail * cH / costs[i]
		}
		p.Linear = []LinearConstraint{{Coeffs: costRow(costs, n, false), Lower: math.Inf(-1), Upper: avail, Scale: avail}}

	case FormulationRatiosAndTruth:
		nHMax := budget / (1 + minRatio*costPerTruth)
		if nHMax <= nPilot {
			return nil, fmt.Errorf("%w: budget %v leaves no room beyond the pilot", ErrInfeasiblePoint, budget)
		}
		for i := 0; i < n; i++ {
			p.Lower[i] = minRatio
			p.Upper[i] = (budget/nPilot - 1) * cH / costs[i]
		}
		p.Lower[n], p.Upper[n] = nPilot, nHMax
		p.Nonlinear = []NonlinearConstraint{{
			Func: func(x []float64) float64 {
				return ap.samples(x).EquivalentCost(costs)
			},
			Lower: math.Inf(-1),
			Upper: budget,
			Scale: budget,
		}}

	case FormulationSamples:
		nHMax := budget / (1 + minRatio*costPerTruth)
		if nHMax <= nPilot {
			return nil, fmt.Errorf("%w: budget %v leaves no room beyond the pilot", ErrInfeasiblePoint, budget)
		}
		for i := 0; i < n; i++ {
			p.Lower[i] = minRatio * nPilot
			p.Upper[i] = (budget - nPilot) * cH / costs[i]
		}
		p.Lower[n], p.Upper[n] = nPilot, nHMax
		p.Linear = append([]LinearConstraint{{Coeffs: costRow(costs, n, true), Lower: math.Inf(-1), Upper: budget, Scale: budget}},
			nestingRows(n, nestScale)...)

	case FormulationSamplesCost:
		if !(varianceTarget > 0) {
			return nil, fmt.Errorf("%w: variance target must be positive, got %v", ErrConfig, varianceTarget)
		}
		var varH float64
		for _, v := range stats.VarH {
			varH += v / float64(stats.NumQoI)
		}
		// Plain Monte Carlo reaches the target with nMC truth samples, so the
		// optimal cost cannot exceed that of nMC samples on every model.
		nMC := math.Max(varH/varianceTarget, nPilot)
		maxCost := boundsSlack * nMC * (1 + minRatio*costPerTruth)
		for i := 0; i < n; i++ {
			p.Lower[i] = minRatio * nPilot
			p.Upper[i] = math.Max(maxCost*cH/costs[i], boundsSlack*p.Lower[i])
		}
		p.Lower[n], p.Upper[n] = nPilot, math.Max(maxCost, boundsSlack*nPilot)
		// Cost is measured relative to the starting point so that the
		// variance constraint multiplier is of order one.
		row := costRow(costs, n, true)
		floats.Scale(1/math.Max(start.EquivalentCost(costs), 1), row)
		p.Objective = func(x []float64) float64 {
			return LinearConstraint{Coeffs: row}.Eval(x)
		}
		p.Gradient = func(grad, _ []float64) {
			copy(grad, row)
		}
		p.Linear = nestingRows(n, nestScale)
		p.Nonlinear = []NonlinearConstraint{{
			Func: func(x []float64) float64 {
				return eval.LogAverageEstimatorVariance(ap.nested(x))
			},
			Lower: math.Inf(-1),
			Upper: math.Log(varianceTarget),
			Scale: 1,
		}}

	default:
		return nil, fmt.Errorf("%w: unknown formulation %q", ErrConfig, form)
	}

	if p.Objective == nil {
		p.Objective = func(x []float64) float64 {
			return eval.LogAverageEstimatorVariance(ap.nested(x))
		}
	}
	p.X0 = enforceBounds(form.encode(start), p.Lower, p.Upper)
	return ap, nil
}

// costRow returns the coefficients c_i/c_H of the approximation entries, with
// a trailing 1 for the truth count when withTruth is set.
func costRow(costs []float64, n int, withTruth bool) []float64 {
	cH := costs[n]
	row := make([]float64, n)
	for i := 0; i < n; i++ {
		row[i] = costs[i] / cH
	}
	if withTruth {
		row = append(row, 1)
	}
	return row
}

// nestingRows encodes N_i - (1+nudge) N_H >= 0 for every approximation.
func nestingRows(n int, scale float64) []LinearConstraint {
	rows := make([]LinearConstraint, n)
	for i := 0; i < n; i++ {
		coeffs := make([]float64, n+1)
		coeffs[i] = 1
		coeffs[n] = -(1 + RatioNudge)
		rows[i] = LinearConstraint{Coeffs: coeffs, Lower: 0, Upper: math.Inf(1), Scale: scale}
	}
	return rows
}

// enforceBounds clamps x into [lower, upper], replacing non-finite entries
// with the midpoint.
func enforceBounds(x, lower, upper []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0):
			out[i] = 0.5 * (lower[i] + upper[i])
		case v < lower[i]:
			out[i] = lower[i]
		case v > upper[i]:
			out[i] = upper[i]
		default:
			out[i] = v
		}
	}
	return out
}
