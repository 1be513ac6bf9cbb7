package sim

import (
	"fmt"
	"math"
	"sort"
)

// AllocationPlan turns a continuous solution into integer sample increments.
type AllocationPlan struct {
	// Targets are the continuous sample counts of the solution, truth last.
	Targets []float64
	// Current are the counts already acquired.
	Current []int
	// Increments are the additional samples to draw per model; never negative.
	Increments []int
	// ApproxOrder lists approximation indices by decreasing oversample
	// ratio, the order in which their increments are acquired.
	ApproxOrder []int
	// DeltaEquivHF is the cost of the increments in truth evaluations.
	DeltaEquivHF float64
}

// oneSidedDelta is the rounded shortfall of current against target, or zero
// when the target is already met.
func oneSidedDelta(current, target float64) int {
	if target <= current {
		return 0
	}
	return int(math.Round(target - current))
}

// TranslateSolution computes the increments that move current counts to the
// solution's targets. current holds one entry per model, truth last.
func TranslateSolution(sol *Solution, current []int, costs []float64) (*AllocationPlan, error) {
	targets := sol.Samples.N
	if len(current) != len(targets) || len(costs) != len(targets) {
		return nil, fmt.Errorf("%w: solution has %d models, current counts %d, costs %d",
			ErrConfig, len(targets), len(current), len(costs))
	}
	plan := &AllocationPlan{
		Targets:    append([]float64(nil), targets...),
		Current:    append([]int(nil), current...),
		Increments: make([]int, len(targets)),
	}
	cH := costs[len(costs)-1]
	for i, t := range targets {
		plan.Increments[i] = oneSidedDelta(float64(current[i]), t)
		plan.DeltaEquivHF += float64(plan.Increments[i]) * costs[i] / cH
	}

	ratios := sol.Ratios()
	plan.ApproxOrder = make([]int, len(ratios))
	for i := range plan.ApproxOrder {
		plan.ApproxOrder[i] = i
	}
	sort.SliceStable(plan.ApproxOrder, func(a, b int) bool {
		return ratios[plan.ApproxOrder[a]] > ratios[plan.ApproxOrder[b]]
	})
	return plan, nil
}

// TruthIncrement returns the truth entry of Increments.
func (p *AllocationPlan) TruthIncrement() int {
	return p.Increments[len(p.Increments)-1]
}
