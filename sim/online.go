package sim

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/genacv/sim/trace"
)

// Ensemble evaluates every model at the same fresh sample points.
type Ensemble interface {
	NumApprox() int
	NumQoI() int
	// Costs per model in sample order, truth last.
	Costs() []float64
	// EvaluateShared draws n new sample points and evaluates all models on them.
	EvaluateShared(ctx context.Context, n int) ([]SampleResponses, error)
}

// OnlineConfig controls the adaptive pilot loop.
type OnlineConfig struct {
	PilotSamples  int // initial shared samples
	MaxIterations int // allocation solves, including the first
	TraceLevel    trace.TraceLevel
}

// OnlineResult is the state at the end of the adaptive pilot loop.
type OnlineResult struct {
	Iterations int
	// Shared is the number of shared samples drawn on every model.
	Shared     int
	Stats      *PilotStatistics
	Allocation *AllocationResult
	// Plan holds the remaining increments. Its truth entry is non-zero only
	// when the loop stopped at MaxIterations.
	Plan *AllocationPlan
	// EquivHFEvals is the cost spent on shared samples in truth evaluations.
	EquivHFEvals float64
}

// RunOnline iterates shared truth increments: sample, update statistics,
// re-solve the allocation from the previous best, and stop when no further
// truth samples are requested or the iteration limit is hit.
func RunOnline(ctx context.Context, ens Ensemble, cfg AllocationConfig, oc OnlineConfig) (*OnlineResult, error) {
	if oc.PilotSamples < 2 {
		return nil, fmt.Errorf("%w: online pilot needs at least 2 samples, got %d", ErrConfig, oc.PilotSamples)
	}
	if oc.MaxIterations < 1 {
		return nil, fmt.Errorf("%w: max iterations must be positive, got %d", ErrConfig, oc.MaxIterations)
	}
	costs := ens.Costs()
	if len(cfg.Costs) == 0 {
		cfg.Costs = costs
	}
	if err := cfg.Validate(ens.NumApprox()); err != nil {
		return nil, err
	}

	acc := NewPilotAccumulator(ens.NumApprox(), ens.NumQoI())
	sharedCost := SampleVars{N: ones(ens.NumApprox() + 1)}.EquivalentCost(cfg.Costs)
	out := &OnlineResult{}
	batch := oc.PilotSamples
	var warm *SampleVars
	// The accuracy target is fixed by the first pilot; later iterations
	// refine the statistics, not the goal.
	var target float64
	for iter := 0; iter < oc.MaxIterations; iter++ {
		if batch > 0 {
			samples, err := ens.EvaluateShared(ctx, batch)
			if err != nil {
				return nil, fmt.Errorf("evaluating %d shared samples: %w", batch, err)
			}
			if err := acc.Add(samples); err != nil {
				return nil, err
			}
			out.Shared += batch
			out.EquivHFEvals += float64(batch) * sharedCost
		}
		stats, err := acc.Statistics()
		if err != nil {
			return nil, err
		}
		eng, err := NewEngine(cfg, stats)
		if err != nil {
			return nil, err
		}
		if target == 0 {
			target = eng.VarianceTarget()
		}
		eng.WithVarianceTarget(target).WithTrace(trace.NewSearchTrace(oc.TraceLevel))
		if warm != nil {
			eng.WithWarmStart(*warm)
		}
		res, err := eng.Allocate(ctx)
		if err != nil {
			return nil, fmt.Errorf("online iteration %d: %w", iter, err)
		}
		current := make([]int, ens.NumApprox()+1)
		for i := range current {
			current[i] = out.Shared
		}
		plan, err := TranslateSolution(res.Best, current, cfg.Costs)
		if err != nil {
			return nil, err
		}
		out.Iterations, out.Stats, out.Allocation, out.Plan = iter+1, stats, res, plan
		warm = &res.Best.Samples

		batch = plan.TruthIncrement()
		logrus.Infof("online iteration %d: %d shared samples, truth target %.1f, increment %d",
			iter, out.Shared, res.Best.TruthSamples(), batch)
		if batch == 0 {
			break
		}
	}
	return out, nil
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}
