package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/inference-sim/genacv/sim/internal/testutil"
)

// correlatedStats builds single- or multi-QoI statistics for approximations
// with unit variance and the given truth correlations (sample order, lowest
// fidelity first). Every QoI shares the same moments.
func correlatedStats(t *testing.T, rho []float64, numShared float64, numQoI int) *PilotStatistics {
	t.Helper()
	scales := make([]float64, len(rho))
	for i := range scales {
		scales[i] = 1
	}
	varH := make([]float64, numQoI)
	covLL := make([]*mat.SymDense, numQoI)
	covLH := make([][]float64, numQoI)
	counts := make([]float64, numQoI)
	for q := 0; q < numQoI; q++ {
		covLL[q], covLH[q] = testutil.CorrelatedCovariance(scales, 1, rho)
		varH[q] = 1
		counts[q] = numShared
	}
	stats, err := NewPilotStatistics(varH, covLL, covLH, counts)
	require.NoError(t, err)
	return stats
}

// rhoFromRho2 converts squared correlations to positive correlations.
func rhoFromRho2(rho2 []float64) []float64 {
	rho := make([]float64, len(rho2))
	for i, r := range rho2 {
		rho[i] = math.Sqrt(r)
	}
	return rho
}

// budgetConfig is a budget-constrained configuration with default settings.
func budgetConfig(costs []float64, budget float64, sub SubMethod) AllocationConfig {
	cfg := DefaultAllocationConfig(costs)
	cfg.Budget = budget
	cfg.SubMethod = sub
	return cfg
}
