package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// SolveState tracks one DAG through its numerical solve.
type SolveState int

const (
	StateNotStarted SolveState = iota
	StateInitialGuess
	StateRunning
	StateConverged
	StateFailed
)

func (s SolveState) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateInitialGuess:
		return "initial-guess"
	case StateRunning:
		return "running"
	case StateConverged:
		return "converged"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("SolveState(%d)", int(s))
	}
}

// Initial guess names.
const (
	StartMFMC  = "mfmc"
	StartCVMC  = "cvmc"
	StartWarm  = "warm"
	StartPilot = "pilot"
)

type startPoint struct {
	name    string
	samples SampleVars
}

// dagSolve runs the numerical solution for a single DAG. A fresh dagSolve is
// used per DAG so no evaluation state crosses DAG boundaries.
type dagSolve struct {
	cfg       AllocationConfig
	stats     *PilotStatistics
	minimizer Minimizer
	target    float64
	warm      *SampleVars

	dag         DAG
	state       SolveState
	iterations  int
	evaluations int
}

func newDAGSolve(cfg AllocationConfig, stats *PilotStatistics, minimizer Minimizer, target float64, warm *SampleVars, dag DAG) *dagSolve {
	return &dagSolve{cfg: cfg, stats: stats, minimizer: minimizer, target: target, warm: warm, dag: dag, state: StateNotStarted}
}

// run returns the best converged solution for the DAG. Configuration errors
// wrap ErrConfig; every other failure wraps ErrSolverFailed.
func (d *dagSolve) run(ctx context.Context) (*Solution, error) {
	eval, err := NewEvaluator(d.stats, d.cfg.SubMethod, d.dag)
	if err != nil {
		d.state = StateFailed
		return nil, err
	}

	d.state = StateInitialGuess
	starts, err := d.initialGuesses(eval)
	if err != nil {
		d.state = StateFailed
		return nil, fmt.Errorf("%w: DAG %v initial guess: %v", ErrSolverFailed, d.dag, err)
	}
	accuracy := d.cfg.ResolveFormulation().AccuracyConstrained()
	if !d.cfg.MultiStart && len(starts) > 1 {
		starts = d.pickStart(eval, starts, accuracy)
	}

	d.state = StateRunning
	var best *Solution
	var lastErr error
	for _, start := range starts {
		if err := ctx.Err(); err != nil {
			d.state = StateFailed
			return nil, err
		}
		sol, err := d.solveFrom(ctx, eval, start)
		if err != nil {
			if errors.Is(err, ErrConfig) {
				d.state = StateFailed
				return nil, err
			}
			logrus.Debugf("DAG %v from %s guess: %v", d.dag, start.name, err)
			lastErr = err
			continue
		}
		if better(sol, best, accuracy) {
			best = sol
		}
	}
	if best == nil {
		d.state = StateFailed
		if lastErr == nil {
			lastErr = errors.New("no starting point")
		}
		return nil, fmt.Errorf("%w: DAG %v: %v", ErrSolverFailed, d.dag, lastErr)
	}
	d.state = StateConverged
	best.Iterations, best.Evaluations = d.iterations, d.evaluations
	return best, nil
}

// initialGuesses returns the analytic starting points scaled to the budget
// or the accuracy target, plus the warm start if one is set.
func (d *dagSolve) initialGuesses(eval *Evaluator) ([]startPoint, error) {
	rho2 := d.stats.AverageRho2LH()
	nPilot := math.Max(1, d.stats.TruthSamples())
	form := d.cfg.ResolveFormulation()
	raw := []startPoint{
		{name: StartMFMC, samples: RatioNVars{Ratios: mfmcRatios(rho2, d.cfg.Costs)}.SampleVars()},
		{name: StartCVMC, samples: RatioNVars{Ratios: cvmcRatios(rho2, d.cfg.Costs)}.SampleVars()},
	}
	starts := make([]startPoint, 0, len(raw)+1)
	for _, sp := range raw {
		ratios := sp.samples.N[:len(sp.samples.N)-1]
		var scaled SampleVars
		if form.AccuracyConstrained() {
			var err error
			if scaled, err = scaleToTarget(eval, ratios, d.target, nPilot); err != nil {
				return nil, err
			}
		} else {
			scaled = scaleToBudget(ratios, d.cfg.Costs, d.cfg.Budget, nPilot, form == FormulationRatios)
		}
		logrus.Debugf("DAG %v %s guess: N=%v", d.dag, sp.name, scaled.N)
		starts = append(starts, startPoint{name: sp.name, samples: scaled})
	}
	if d.warm != nil && d.warm.NumApprox() == d.stats.NumApprox {
		starts = append(starts, startPoint{name: StartWarm, samples: d.warm.Clone()})
	}
	return starts, nil
}

// pickStart keeps the single most promising starting point: the lowest
// variance for budget runs, the lowest cost for accuracy runs.
func (d *dagSolve) pickStart(eval *Evaluator, starts []startPoint, accuracy bool) []startPoint {
	bestIdx, bestMerit := 0, math.Inf(1)
	for i, sp := range starts {
		merit := sp.samples.EquivalentCost(d.cfg.Costs)
		if !accuracy {
			merit = eval.LogAverageEstimatorVariance(sp.samples.N)
		}
		if !math.IsNaN(merit) && merit < bestMerit {
			bestIdx, bestMerit = i, merit
		}
	}
	return starts[bestIdx : bestIdx+1]
}

func (d *dagSolve) solveFrom(ctx context.Context, eval *Evaluator, start startPoint) (*Solution, error) {
	ap, err := newAllocationProblem(d.cfg, d.stats, eval, start.samples, d.target)
	if err != nil {
		return nil, err
	}
	if err := ap.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolverFailed, err)
	}
	res, err := d.minimizer.Minimize(ctx, ap.Problem)
	if err != nil {
		return nil, err
	}
	d.iterations += res.Iterations
	d.evaluations += res.Evaluations

	// A feasible starting point stands in for a solve that ends infeasible
	// or worse than where it began.
	var fromStart *Solution
	if f := ap.Objective(ap.X0); ap.Violation(ap.X0) <= d.cfg.Optimizer.FeasibilityTol && !math.IsNaN(f) && !math.IsInf(f, 0) {
		if sol, err := d.solution(eval, ap.samples(ap.X0), start.name); err == nil {
			fromStart = sol
		}
	}
	if !res.Converged {
		if fromStart != nil {
			logrus.Debugf("DAG %v: solver from %s guess stopped at violation %.3g (%s); keeping the guess", d.dag, start.name, res.Violation, res.Status)
			return fromStart, nil
		}
		return nil, fmt.Errorf("%w: %s (violation %.3g)", ErrSolverFailed, res.Status, res.Violation)
	}
	fromSolver, err := d.solution(eval, ap.samples(res.X), start.name)
	if err != nil {
		if fromStart != nil {
			return fromStart, nil
		}
		return nil, err
	}
	if better(fromStart, fromSolver, ap.form.AccuracyConstrained()) {
		logrus.Debugf("DAG %v: solver from %s guess did not improve on it", d.dag, start.name)
		return fromStart, nil
	}
	return fromSolver, nil
}

func (d *dagSolve) solution(eval *Evaluator, samples SampleVars, start string) (*Solution, error) {
	avg, ratios, err := eval.AverageEstimatorVariance(samples.N)
	if err != nil {
		return nil, err
	}
	if !(avg > 0) {
		return nil, fmt.Errorf("%w: non-positive estimator variance %v", ErrSolverFailed, avg)
	}
	return &Solution{
		DAG:          append(DAG(nil), d.dag...),
		Samples:      samples,
		AvgEstVar:    avg,
		EstVarRatios: ratios,
		EquivHFAlloc: samples.EquivalentCost(d.cfg.Costs),
		Start:        start,
	}, nil
}
