package optimizer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/diff/fd"

	"github.com/inference-sim/genacv/sim"
)

func TestBoundTransform_RoundTrip(t *testing.T) {
	bt := newBoundTransform([]float64{0, 10, -3}, []float64{1, 1e6, 3})
	x := []float64{0.25, 512.5, -2.9}

	got := bt.toBounded(bt.toUnbounded(x))
	for i := range x {
		assert.InDelta(t, x[i], got[i], 1e-9*math.Max(1, math.Abs(x[i])))
	}

	// AND extreme unbounded values stay inside the box
	edge := bt.toBounded([]float64{-800, 800, 0})
	assert.GreaterOrEqual(t, edge[0], 0.0)
	assert.LessOrEqual(t, edge[1], 1e6)
	assert.InDelta(t, 0, edge[2], 1e-15)
}

func TestSigmoid_Stable(t *testing.T) {
	assert.Equal(t, 0.5, sigmoid(0))
	assert.Equal(t, 0.0, sigmoid(-1000))
	assert.Equal(t, 1.0, sigmoid(1000))
	assert.InDelta(t, 1-sigmoid(2), sigmoid(-2), 1e-15)
}

func TestInequalities_ExpandFiniteSides(t *testing.T) {
	p := &sim.Problem{
		Linear: []sim.LinearConstraint{
			{Coeffs: []float64{1, 0}, Lower: 0, Upper: 4, Scale: 2},
			{Coeffs: []float64{0, 1}, Lower: math.Inf(-1), Upper: 1},
		},
		Nonlinear: []sim.NonlinearConstraint{
			{Func: func(x []float64) float64 { return x[0] * x[1] }, Lower: 2, Upper: math.Inf(1)},
		},
	}
	cons := inequalities(p)
	assert.Len(t, cons, 4)

	// THEN each entry is a scaled h(x) <= 0
	x := []float64{5, 0.5}
	assert.InDelta(t, 0.5, cons[0].eval(x), 1e-15)  // (5 - 4) / 2
	assert.InDelta(t, -2.5, cons[1].eval(x), 1e-15) // (0 - 5) / 2
	assert.InDelta(t, -0.5, cons[2].eval(x), 1e-15) // 0.5 - 1
	assert.InDelta(t, -0.5, cons[3].eval(x), 1e-15) // 2 - 2.5

	// AND linear rows carry their scaled gradient
	assert.Equal(t, []float64{0.5, 0}, cons[0].grad)
	assert.Equal(t, []float64{-0.5, 0}, cons[1].grad)
	assert.Equal(t, []float64{0, 1}, cons[2].grad)
	assert.Nil(t, cons[3].grad)
}

func TestAugmentedLagrangian(t *testing.T) {
	p := &sim.Problem{
		Objective: func(x []float64) float64 { return x[0] },
		Linear:    []sim.LinearConstraint{{Coeffs: []float64{1}, Lower: 1, Upper: math.Inf(1)}},
	}
	al := newAugmentedLagrangian(p, 10)

	// GIVEN no multipliers: feasible points cost only the objective
	assert.Equal(t, 2.0, al.merit([]float64{2}))
	// AND violations add mu/2 h^2
	assert.InDelta(t, 0.5+5*0.25, al.merit([]float64{0.5}), 1e-12)

	// WHEN the multipliers are updated at the violating point
	al.update([]float64{0.5})
	assert.InDelta(t, 5, al.lambda[0], 1e-12)

	// THEN updating at a strictly feasible point releases them
	al.update([]float64{3})
	assert.Equal(t, 0.0, al.lambda[0])

	m, f, viol := al.evaluate([]float64{0.5})
	assert.Equal(t, al.merit([]float64{0.5}), m)
	assert.Equal(t, 0.5, f)
	assert.InDelta(t, 0.5, viol, 1e-15)

	nan := newAugmentedLagrangian(&sim.Problem{Objective: func([]float64) float64 { return math.NaN() }}, 10)
	assert.Equal(t, infeasibleMerit, nan.merit([]float64{1}))
	_, _, viol = nan.evaluate([]float64{1})
	assert.True(t, math.IsInf(viol, 1))
}

func TestAugmentedLagrangian_GradientMatchesFiniteDifferences(t *testing.T) {
	// GIVEN active linear and nonlinear rows and one slack row
	p := &sim.Problem{
		Objective: func(x []float64) float64 { return x[0]*x[0] + 3*x[1] },
		Gradient: func(grad, x []float64) {
			grad[0] = 2 * x[0]
			grad[1] = 3
		},
		Linear: []sim.LinearConstraint{
			{Coeffs: []float64{1, 1}, Lower: math.Inf(-1), Upper: 1, Scale: 2},
			{Coeffs: []float64{1, 0}, Lower: 0.5, Upper: math.Inf(1)},
		},
		Nonlinear: []sim.NonlinearConstraint{
			{Func: func(x []float64) float64 { return x[0] * x[1] }, Lower: 4, Upper: math.Inf(1), Scale: 4},
		},
	}
	al := newAugmentedLagrangian(p, 10)
	for k := range al.lambda {
		al.lambda[k] = 0.5
	}
	x := []float64{1.5, 2}

	got := make([]float64, 2)
	al.gradient(got, x)

	// THEN it matches central differences of the merit
	want := make([]float64, 2)
	fd.Gradient(want, al.merit, x, &fd.Settings{Formula: fd.Central, Step: 1e-6})
	assert.InDeltaSlice(t, want, got, 1e-5)
}

func TestIncumbent_KeepsLowestFeasible(t *testing.T) {
	b := &incumbent{tol: 1e-6}
	b.offer([]float64{1}, 5, 0)
	b.offer([]float64{2}, 3, 1e-3)       // infeasible
	b.offer([]float64{3}, math.NaN(), 0) // undefined objective
	x := []float64{4}
	b.offer(x, 4, 1e-7)
	x[0] = 99 // caller reuses its slice
	b.offer([]float64{5}, 4.5, 0)

	assert.Equal(t, []float64{4}, b.x)
	assert.Equal(t, 4.0, b.f)
}
