package sim

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// maxRho2 caps squared correlations so analytic ratios stay finite.
const maxRho2 = 1 - 1e-12

// mfmcRatios returns the analytic multifidelity Monte Carlo oversample ratios
// for approximations with squared truth correlations rho2. Approximations are
// ranked by correlation; each one's ratio grows with the correlation it adds
// over the next less correlated model.
func mfmcRatios(rho2, costs []float64) []float64 {
	n := len(rho2)
	cH := costs[n]
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return rho2[order[a]] < rho2[order[b]] })

	top := math.Min(rho2[order[n-1]], maxRho2)
	ratios := make([]float64, n)
	prev := 0.0
	for _, i := range order {
		r2 := math.Min(rho2[i], maxRho2)
		ratios[i] = math.Sqrt(cH / costs[i] * math.Max(r2-prev, 0) / (1 - top))
		prev = r2
	}
	// Less correlated models never get fewer samples than more correlated ones.
	for k := n - 2; k >= 0; k-- {
		ratios[order[k]] = math.Max(ratios[order[k]], ratios[order[k+1]])
	}
	return floorRatios(ratios)
}

// cvmcRatios treats every approximation as the single control variate of
// the truth and returns each one's optimal oversample ratio.
func cvmcRatios(rho2, costs []float64) []float64 {
	n := len(rho2)
	cH := costs[n]
	ratios := make([]float64, n)
	for i, r := range rho2 {
		r = math.Min(r, maxRho2)
		ratios[i] = math.Sqrt(cH / costs[i] * r / (1 - r))
	}
	return floorRatios(ratios)
}

func floorRatios(ratios []float64) []float64 {
	for i, r := range ratios {
		if !(r > 1+RatioNudge) {
			ratios[i] = 1 + RatioNudge
		}
	}
	return ratios
}

// allocateBudget returns the truth count that spends budget exactly with the
// given ratios: budget / (1 + sum r_i c_i / c_H).
func allocateBudget(ratios, costs []float64, budget float64) float64 {
	cH := costs[len(costs)-1]
	return budget / (1 + floats.Dot(ratios, costs[:len(ratios)])/cH)
}

// scaleToBudget turns ratios into sample counts that spend the budget. When
// the truth count is pinned to the pilot (fixedTruth, or the budget-optimal
// truth count would undercut the pilot), the ratio excess over the minimum is
// rescaled instead.
func scaleToBudget(ratios, costs []float64, budget, nPilot float64, fixedTruth bool) SampleVars {
	nH := allocateBudget(ratios, costs, budget)
	if nH >= nPilot && !fixedTruth {
		return RatioNVars{Ratios: ratios, NH: nH}.SampleVars()
	}
	cH := costs[len(costs)-1]
	minRatio := 1 + RatioNudge
	avail := budget/nPilot - 1
	var base, excess float64
	for i, r := range ratios {
		base += minRatio * costs[i] / cH
		excess += (r - minRatio) * costs[i] / cH
	}
	scaled := make([]float64, len(ratios))
	factor := 0.0
	if excess > 0 {
		factor = math.Max(avail-base, 0) / excess
	}
	for i, r := range ratios {
		scaled[i] = minRatio + factor*(r-minRatio)
	}
	return RatioNVars{Ratios: scaled, NH: nPilot}.SampleVars()
}

// scaleToTarget turns ratios into sample counts whose average estimator
// variance meets target: N_H = mean_q(varH_q * ratio_q) / target, never below
// the pilot.
func scaleToTarget(eval *Evaluator, ratios []float64, target, nPilot float64) (SampleVars, error) {
	// Variance ratios are invariant to the truth count at fixed oversample
	// ratios, so the pilot count serves as the reference.
	ref := RatioNVars{Ratios: ratios, NH: nPilot}.SampleVars()
	estRatios, err := eval.EstVarRatios(ref.N)
	if err != nil {
		return SampleVars{}, err
	}
	num := floats.Dot(eval.stats.VarH, estRatios) / float64(len(estRatios))
	nH := math.Max(num/target, nPilot)
	return RatioNVars{Ratios: ratios, NH: nH}.SampleVars(), nil
}
