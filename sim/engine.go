package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/inference-sim/genacv/sim/trace"
)

// AllocationResult is the outcome of one allocation run.
type AllocationResult struct {
	Best        *Solution
	Formulation Formulation
	SubMethod   SubMethod
	// DAGs is the number of distinct DAGs solved; Candidates counts the
	// enumeration before deduplication.
	DAGs       int
	Candidates int
	Failed     int
	// Solved is false when no numerical solve was needed because the pilot
	// already spends the budget or meets the accuracy target.
	Solved bool
	// MCEstVar is the plain Monte Carlo estimator variance at the same
	// equivalent cost as Best.
	MCEstVar float64
	// VarianceTarget is the average estimator variance an
	// accuracy-constrained run aims for; zero for budget runs.
	VarianceTarget float64
	Trace          *trace.SearchTrace
}

// Engine searches the DAG set for the best sample allocation.
type Engine struct {
	cfg       AllocationConfig
	stats     *PilotStatistics
	minimizer Minimizer
	warm      *SampleVars
	target    float64
	trace     *trace.SearchTrace
}

// NewEngine validates the configuration against the statistics and resolves
// the optimizer backend. Configuration problems wrap ErrConfig.
func NewEngine(cfg AllocationConfig, stats *PilotStatistics) (*Engine, error) {
	if stats == nil {
		return nil, fmt.Errorf("%w: no pilot statistics", ErrInsufficientPilot)
	}
	if err := cfg.Validate(stats.NumApprox); err != nil {
		return nil, err
	}
	if cfg.Optimizer == (OptimizerSettings{}) {
		cfg.Optimizer = DefaultOptimizerSettings()
	}
	minimizer, err := ResolveMinimizer(cfg.Solver, cfg.SolverFallback, cfg.Optimizer)
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, stats: stats, minimizer: minimizer}, nil
}

// WithWarmStart adds a starting point (typically the previous iteration's
// best solution) to every DAG's initial guesses.
func (e *Engine) WithWarmStart(s SampleVars) *Engine {
	c := s.Clone()
	e.warm = &c
	return e
}

// WithVarianceTarget fixes the accuracy target instead of deriving it from
// the convergence tolerance and the current pilot. Adaptive pilots use it to
// keep the target of their first iteration.
func (e *Engine) WithVarianceTarget(v float64) *Engine {
	e.target = v
	return e
}

// VarianceTarget is the accuracy target the engine solves for: the fixed
// target if one is set, otherwise the convergence tolerance times the
// average Monte Carlo variance of the pilot.
func (e *Engine) VarianceTarget() float64 {
	if e.target > 0 {
		return e.target
	}
	return e.cfg.ConvergenceTol * stat.Mean(e.stats.MCEstimatorVariance(), nil)
}

// WithTrace records per-DAG outcomes into st.
func (e *Engine) WithTrace(st *trace.SearchTrace) *Engine {
	e.trace = st
	return e
}

// Allocate enumerates DAGs, solves each one and returns the best allocation.
func (e *Engine) Allocate(ctx context.Context) (*AllocationResult, error) {
	form := e.cfg.ResolveFormulation()
	result := &AllocationResult{Formulation: form, SubMethod: e.cfg.SubMethod, Trace: e.trace}

	if sol, ok, err := e.pilotOnly(form); err != nil {
		return nil, err
	} else if ok {
		result.Best = sol
		result.MCEstVar = e.mcVarianceAtCost(sol.EquivHFAlloc)
		return result, nil
	}

	set, err := GenerateDAGs(e.stats.NumApprox, e.cfg.Recursion)
	if err != nil {
		return nil, err
	}
	dags := set.Sorted()
	result.DAGs, result.Candidates = len(dags), set.Candidates()
	if len(dags) == 0 {
		return nil, fmt.Errorf("%w: recursion policy %q produced no DAGs", ErrConfig, e.cfg.Recursion)
	}
	logrus.Infof("Generalized ACV-%s: %d DAGs (%d candidates), formulation %s, solver %s",
		e.cfg.SubMethod, len(dags), set.Candidates(), form, e.minimizer.Name())

	var target float64
	if form.AccuracyConstrained() {
		target = e.VarianceTarget()
		result.VarianceTarget = target
	}

	limit := e.cfg.Parallelism
	if limit == 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	sel := newBestSelector(form.AccuracyConstrained())
	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, dag := range dags {
		dag := dag
		g.Go(func() error {
			ds := newDAGSolve(e.cfg, e.stats, e.minimizer, target, e.warm, dag)
			sol, err := ds.run(gctx)
			rec := trace.DAGRecord{DAG: dag.Key(), State: ds.state.String()}
			if err != nil {
				rec.Err = err.Error()
				e.trace.RecordDAG(rec)
				if errors.Is(err, ErrConfig) || gctx.Err() != nil {
					return err
				}
				failed.Add(1)
				logrus.Debugf("DAG %v excluded: %v", dag, err)
				return nil
			}
			rec.Start, rec.AvgEstVar, rec.EquivHFAlloc = sol.Start, sol.AvgEstVar, sol.EquivHFAlloc
			rec.Iterations, rec.Evaluations = sol.Iterations, sol.Evaluations
			e.trace.RecordDAG(rec)
			logrus.Debugf("DAG %v: avg estvar %.6g, equivalent cost %.6g (%s guess)", dag, sol.AvgEstVar, sol.EquivHFAlloc, sol.Start)
			sel.Offer(sol)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Failed = int(failed.Load())
	best := sel.Best()
	if best == nil {
		return nil, fmt.Errorf("%w: all %d DAGs failed (formulation %s, sub-method %s)",
			ErrNoValidAllocation, len(dags), form, e.cfg.SubMethod)
	}
	e.trace.MarkBest(best.DAG.Key())
	result.Best = best
	result.Solved = true
	result.MCEstVar = e.mcVarianceAtCost(best.EquivHFAlloc)
	logrus.Infof("Best DAG %v: avg estvar %.6g (MC at equal cost %.6g), equivalent cost %.6g",
		best.DAG, best.AvgEstVar, result.MCEstVar, best.EquivHFAlloc)
	return result, nil
}

// pilotOnly handles runs that need no solve: the budget is already spent by
// the pilot, or the accuracy target is met by it.
func (e *Engine) pilotOnly(form Formulation) (*Solution, bool, error) {
	nPilot := math.Max(1, e.stats.TruthSamples())
	pilot := make([]float64, e.stats.NumApprox+1)
	for i := range pilot {
		pilot[i] = nPilot
	}
	samples := SampleVars{N: pilot}
	minRatio := 1 + RatioNudge
	var costPerTruth float64
	for i := 0; i < e.stats.NumApprox; i++ {
		costPerTruth += e.cfg.Costs[i] / e.cfg.truthCost()
	}

	switch {
	case form.AccuracyConstrained() && e.cfg.ConvergenceTol >= 1:
		logrus.Warnf("convergence tolerance %v is met by the pilot; no numerical solve", e.cfg.ConvergenceTol)
	case !form.AccuracyConstrained() && e.cfg.Budget <= nPilot*(1+minRatio*costPerTruth):
		logrus.Warnf("budget %v is exhausted by the pilot (%v truth samples); no numerical solve", e.cfg.Budget, nPilot)
	default:
		return nil, false, nil
	}

	root := make(DAG, e.stats.NumApprox)
	eval, err := NewEvaluator(e.stats, e.cfg.SubMethod, root)
	if err != nil {
		return nil, false, err
	}
	avg, ratios, err := eval.AverageEstimatorVariance(samples.N)
	if err != nil {
		return nil, false, err
	}
	return &Solution{
		DAG:          root,
		Samples:      samples,
		AvgEstVar:    avg,
		EstVarRatios: ratios,
		EquivHFAlloc: samples.EquivalentCost(e.cfg.Costs),
		Start:        StartPilot,
	}, true, nil
}

// mcVarianceAtCost is the average plain Monte Carlo estimator variance when
// the whole equivalent cost is spent on truth samples.
func (e *Engine) mcVarianceAtCost(equivHF float64) float64 {
	return stat.Mean(e.stats.VarH, nil) / equivHF
}
