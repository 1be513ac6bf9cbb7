package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Evaluator computes estimator variances for one DAG. It holds no state
// that changes between evaluations and is safe for concurrent use.
type Evaluator struct {
	stats   *PilotStatistics
	sub     SubMethod
	dag     DAG
	parents []int
}

// NewEvaluator binds pilot statistics, a sub-method and a DAG.
func NewEvaluator(stats *PilotStatistics, sub SubMethod, dag DAG) (*Evaluator, error) {
	if !ValidSubMethods[sub] {
		return nil, fmt.Errorf("%w: unsupported sub-method %q", ErrConfig, sub)
	}
	if len(dag) != stats.NumApprox {
		return nil, fmt.Errorf("%w: DAG %v has %d entries for %d approximations", ErrConfig, dag, len(dag), stats.NumApprox)
	}
	if err := dag.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{stats: stats, sub: sub, dag: dag, parents: dag.SampleParents()}, nil
}

// DAG returns the evaluator's DAG.
func (e *Evaluator) DAG() DAG { return e.dag }

// EstVarRatios returns, per QoI, the ratio of the ACV estimator variance to
// the Monte Carlo variance with the same truth count. nVec holds sample
// counts in sample order with the truth last.
func (e *Evaluator) EstVarRatios(nVec []float64) ([]float64, error) {
	ov, err := buildOverlap(e.sub, nVec, e.parents)
	if err != nil {
		return nil, err
	}
	var idx []int
	for i, on := range ov.active {
		if on {
			idx = append(idx, i)
		}
	}
	nH := nVec[len(nVec)-1]
	ratios := make([]float64, e.stats.NumQoI)
	if len(idx) == 0 {
		for q := range ratios {
			ratios[q] = 1
		}
		return ratios, nil
	}

	k := len(idx)
	cg := mat.NewDense(k, k, nil)
	rhs := mat.NewVecDense(k, nil)
	var x mat.VecDense
	for q := 0; q < e.stats.NumQoI; q++ {
		cov := e.stats.CovLL[q]
		for a, i := range idx {
			rhs.SetVec(a, e.stats.CovLH[q][i]*ov.g[i])
			for b, j := range idx {
				cg.Set(a, b, cov.At(i, j)*ov.G.At(i, j))
			}
		}
		// LU with partial pivoting; both mat.ErrSingular and a mat.Condition
		// above mat.ConditionTolerance reject the point.
		if err := x.SolveVec(cg, rhs); err != nil {
			return nil, fmt.Errorf("%w: DAG %v QoI %d: %v", ErrSingular, e.dag, q, err)
		}
		r2 := nH / e.stats.VarH[q] * mat.Dot(rhs, &x)
		ratios[q] = 1 - r2
	}
	return ratios, nil
}

// AverageEstimatorVariance returns the QoI-averaged estimator variance and
// the per-QoI variance ratios behind it.
func (e *Evaluator) AverageEstimatorVariance(nVec []float64) (float64, []float64, error) {
	ratios, err := e.EstVarRatios(nVec)
	if err != nil {
		return 0, nil, err
	}
	nH := nVec[len(nVec)-1]
	var sum float64
	for q, r := range ratios {
		sum += e.stats.VarH[q] / nH * r
	}
	return sum / float64(len(ratios)), ratios, nil
}

// LogAverageEstimatorVariance is the optimization objective. It returns NaN
// when the point is infeasible or the average variance is not positive.
func (e *Evaluator) LogAverageEstimatorVariance(nVec []float64) float64 {
	avg, _, err := e.AverageEstimatorVariance(nVec)
	if err != nil || !(avg > 0) {
		return math.NaN()
	}
	return math.Log(avg)
}
