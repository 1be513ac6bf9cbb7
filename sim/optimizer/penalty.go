package optimizer

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"

	"github.com/inference-sim/genacv/sim"
)

// infeasibleMerit replaces NaN objective or constraint values. It exceeds
// any merit reachable at a feasible point.
const infeasibleMerit = 1e20

// inequality is a normalized constraint h(x) <= 0.
type inequality struct {
	eval func(x []float64) float64
	// grad is dh/dx for linear rows and nil otherwise.
	grad []float64
}

// inequalities expands the problem's two-sided constraints into one-sided
// normalized inequalities, skipping infinite sides.
func inequalities(p *sim.Problem) []inequality {
	var out []inequality
	add := func(eval func([]float64) float64, coeffs []float64, lower, upper, scale float64) {
		if scale <= 0 {
			scale = 1
		}
		scaled := func(sign float64) []float64 {
			if coeffs == nil {
				return nil
			}
			g := make([]float64, len(coeffs))
			floats.ScaleTo(g, sign/scale, coeffs)
			return g
		}
		if !math.IsInf(upper, 1) {
			out = append(out, inequality{
				eval: func(x []float64) float64 { return (eval(x) - upper) / scale },
				grad: scaled(1),
			})
		}
		if !math.IsInf(lower, -1) {
			out = append(out, inequality{
				eval: func(x []float64) float64 { return (lower - eval(x)) / scale },
				grad: scaled(-1),
			})
		}
	}
	for _, c := range p.Linear {
		add(c.Eval, c.Coeffs, c.Lower, c.Upper, c.Scale)
	}
	for _, c := range p.Nonlinear {
		add(c.Func, nil, c.Lower, c.Upper, c.Scale)
	}
	return out
}

// augmentedLagrangian holds multipliers and the penalty weight of the
// outer loop for inequality constraints.
type augmentedLagrangian struct {
	objective func(x []float64) float64
	objGrad   func(grad, x []float64)
	cons      []inequality
	lambda    []float64
	mu        float64
}

func newAugmentedLagrangian(p *sim.Problem, mu float64) *augmentedLagrangian {
	cons := inequalities(p)
	return &augmentedLagrangian{objective: p.Objective, objGrad: p.Gradient, cons: cons, lambda: make([]float64, len(cons)), mu: mu}
}

// merit is f(x) + sum_k (max(0, lambda_k + mu h_k)^2 - lambda_k^2) / (2 mu).
func (a *augmentedLagrangian) merit(x []float64) float64 {
	m, _, _ := a.evaluate(x)
	return m
}

// evaluate returns the merit at x with the plain objective and the largest
// normalized violation it was built from.
func (a *augmentedLagrangian) evaluate(x []float64) (merit, f, viol float64) {
	f = a.objective(x)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return infeasibleMerit, f, math.Inf(1)
	}
	merit = f
	for k, c := range a.cons {
		v := c.eval(x)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return infeasibleMerit, f, math.Inf(1)
		}
		viol = math.Max(viol, v)
		merit += a.penalty(k, v)
	}
	return merit, f, viol
}

func (a *augmentedLagrangian) penalty(k int, h float64) float64 {
	t := math.Max(0, a.lambda[k]+a.mu*h)
	return (t*t - a.lambda[k]*a.lambda[k]) / (2 * a.mu)
}

// gradient writes the merit gradient with respect to x. It needs the
// objective gradient; linear rows are exact and nonlinear rows use central
// differences.
func (a *augmentedLagrangian) gradient(grad, x []float64) {
	a.objGrad(grad, x)
	nonlinear := false
	for k, c := range a.cons {
		if c.grad == nil {
			nonlinear = true
			continue
		}
		if t := math.Max(0, a.lambda[k]+a.mu*c.eval(x)); t > 0 {
			floats.AddScaled(grad, t, c.grad)
		}
	}
	if !nonlinear {
		return
	}
	penalty := func(x []float64) float64 {
		var sum float64
		for k, c := range a.cons {
			if c.grad == nil {
				sum += a.penalty(k, c.eval(x))
			}
		}
		return sum
	}
	g := make([]float64, len(x))
	fd.Gradient(g, penalty, x, &fd.Settings{Formula: fd.Central, Step: fdStep})
	floats.Add(grad, g)
}

// update moves the multipliers toward the active constraints at x.
func (a *augmentedLagrangian) update(x []float64) {
	for k, c := range a.cons {
		v := c.eval(x)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		a.lambda[k] = math.Max(0, a.lambda[k]+a.mu*v)
	}
}

// incumbent is the lowest-objective feasible point evaluated so far.
type incumbent struct {
	tol float64
	x   []float64
	f   float64
}

func (b *incumbent) offer(x []float64, f, viol float64) {
	if viol > b.tol || math.IsNaN(f) || math.IsInf(f, 0) {
		return
	}
	if b.x != nil && f >= b.f {
		return
	}
	b.x = append(b.x[:0], x...)
	b.f = f
}
