package sim

import (
	"math"
	"sync"
)

// relTieTol is the relative difference under which two merits count as tied.
const relTieTol = 1e-10

// Solution is the allocation found for one DAG.
type Solution struct {
	DAG     DAG
	Samples SampleVars
	// AvgEstVar is the QoI-averaged estimator variance of the allocation.
	AvgEstVar float64
	// EstVarRatios are the per-QoI variance ratios relative to Monte Carlo
	// with the same truth count.
	EstVarRatios []float64
	// EquivHFAlloc is the allocation's cost in truth evaluations.
	EquivHFAlloc float64
	// Start names the initial guess the solution was reached from.
	Start       string
	Iterations  int
	Evaluations int
}

// AvgEstVarRatio averages EstVarRatios over QoI.
func (s *Solution) AvgEstVarRatio() float64 {
	var sum float64
	for _, r := range s.EstVarRatios {
		sum += r
	}
	return sum / float64(len(s.EstVarRatios))
}

// Ratios returns the oversample ratios N_i / N_H.
func (s *Solution) Ratios() []float64 {
	return s.Samples.RatioNVars().Ratios
}

// TruthSamples returns the truth sample count.
func (s *Solution) TruthSamples() float64 {
	return s.Samples.Truth()
}

// better reports whether a beats b. Budget-constrained runs rank by average
// estimator variance, then cost; accuracy-constrained runs rank by cost,
// then variance. Full ties go to the lexicographically smaller DAG.
func better(a, b *Solution, accuracy bool) bool {
	if b == nil {
		return a != nil
	}
	if a == nil {
		return false
	}
	primaryA, primaryB := a.AvgEstVar, b.AvgEstVar
	secondaryA, secondaryB := a.EquivHFAlloc, b.EquivHFAlloc
	if accuracy {
		primaryA, primaryB, secondaryA, secondaryB = secondaryA, secondaryB, primaryA, primaryB
	}
	if !tied(primaryA, primaryB) {
		return primaryA < primaryB
	}
	if !tied(secondaryA, secondaryB) {
		return secondaryA < secondaryB
	}
	return a.DAG.Key() < b.DAG.Key()
}

func tied(a, b float64) bool {
	return math.Abs(a-b) <= relTieTol*math.Max(math.Abs(a), math.Abs(b))
}

// bestSelector keeps the best solution offered across concurrent DAG solves.
type bestSelector struct {
	mu       sync.Mutex
	accuracy bool
	best     *Solution
}

func newBestSelector(accuracy bool) *bestSelector {
	return &bestSelector{accuracy: accuracy}
}

// Offer records s and reports whether it became the best.
func (b *bestSelector) Offer(s *Solution) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if better(s, b.best, b.accuracy) {
		b.best = s
		return true
	}
	return false
}

// Best returns the current best solution, or nil.
func (b *bestSelector) Best() *Solution {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.best
}
