package sim

import (
	"fmt"
	"math"
	"strings"
)

// SubMethod selects how approximation sample sets overlap with their parents.
type SubMethod string

const (
	// SubMethodIS draws each control variate's extra samples independently
	// on top of the sample set it shares with its parent.
	SubMethodIS SubMethod = "is"
	// SubMethodMF nests every sample set as a prefix of one sample sequence.
	SubMethodMF SubMethod = "mf"
	// SubMethodRD evaluates the parent-shared set and the extra set of each
	// control variate as two disjoint estimates.
	SubMethodRD SubMethod = "rd"
)

// ValidSubMethods is the set of recognized sub-method names.
// Shared by Validate() and ParseSubMethod() to avoid duplication.
var ValidSubMethods = map[SubMethod]bool{SubMethodIS: true, SubMethodMF: true, SubMethodRD: true}

// ParseSubMethod maps a user-supplied name ("is", "ACV_MF", ...) to a SubMethod.
func ParseSubMethod(name string) (SubMethod, error) {
	s := SubMethod(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "acv_"))
	if !ValidSubMethods[s] {
		return "", fmt.Errorf("%w: unsupported sub-method %q", ErrConfig, name)
	}
	return s, nil
}

// Recursion names the policy used to enumerate candidate DAGs.
type Recursion string

const (
	// RecursionKL enumerates ordered single-graph DAGs indexed by (K, L).
	RecursionKL Recursion = "kl"
	// RecursionSingle enumerates unordered single-graph DAGs.
	RecursionSingle Recursion = "single"
	// RecursionMulti is reserved for multi-graph enumeration and yields no DAGs.
	RecursionMulti Recursion = "multi"
)

// ValidRecursions is the set of recognized recursion policy names.
var ValidRecursions = map[Recursion]bool{"": true, RecursionKL: true, RecursionSingle: true, RecursionMulti: true}

// Formulation selects the decision variables and constraint form of the
// numerical allocation problem.
type Formulation string

const (
	// FormulationRatios optimizes oversample ratios with the truth count
	// held at its pilot value; the budget is a linear constraint.
	FormulationRatios Formulation = "r_only_linear_constraint"
	// FormulationRatiosAndTruth optimizes ratios and the truth count; the
	// budget N_H(1 + sum r_i c_i/c_H) is a nonlinear constraint.
	FormulationRatiosAndTruth Formulation = "r_and_n_nonlinear_constraint"
	// FormulationSamples optimizes absolute sample counts under a linear budget.
	FormulationSamples Formulation = "n_vector_linear_constraint"
	// FormulationSamplesCost minimizes the linear equivalent cost of absolute
	// sample counts subject to an estimator variance target.
	FormulationSamplesCost Formulation = "n_vector_linear_objective"
)

// ValidFormulations is the set of recognized formulation names. Empty selects
// the formulation from the budget settings.
var ValidFormulations = map[Formulation]bool{
	"":                        true,
	FormulationRatios:         true,
	FormulationRatiosAndTruth: true,
	FormulationSamples:        true,
	FormulationSamplesCost:    true,
}

// AccuracyConstrained reports whether the formulation minimizes cost for a
// variance target rather than variance for a budget.
func (f Formulation) AccuracyConstrained() bool {
	return f == FormulationSamplesCost
}

// NumVariables returns the length of the decision vector for numApprox
// approximations.
func (f Formulation) NumVariables(numApprox int) int {
	if f == FormulationRatios {
		return numApprox
	}
	return numApprox + 1
}

// SolverName names a numerical optimizer backend.
type SolverName string

const (
	SolverAuto       SolverName = "auto"
	SolverBFGS       SolverName = "bfgs"
	SolverLBFGS      SolverName = "lbfgs"
	SolverNelderMead SolverName = "nelder-mead"
	// SolverSQP and SolverQuasiNewton are accepted names for which no backend
	// ships; requesting them goes through the fallback order.
	SolverSQP         SolverName = "npsol_sqp"
	SolverQuasiNewton SolverName = "optpp_q_newton"
)

// ValidSolvers is the set of recognized solver names.
var ValidSolvers = map[SolverName]bool{
	"":                true,
	SolverAuto:        true,
	SolverBFGS:        true,
	SolverLBFGS:       true,
	SolverNelderMead:  true,
	SolverSQP:         true,
	SolverQuasiNewton: true,
}

// DefaultSolverPriority is the order in which registered backends are tried
// when the requested solver is "auto" or unavailable with fallback enabled.
var DefaultSolverPriority = []SolverName{SolverBFGS, SolverLBFGS, SolverNelderMead}

// OptimizerSettings bounds the work done by one numerical solve.
type OptimizerSettings struct {
	MaxIterations   int     // major iterations of each inner unconstrained solve
	MaxEvaluations  int     // objective evaluations of each inner solve
	OuterIterations int     // augmented Lagrangian multiplier updates
	FeasibilityTol  float64 // relative constraint violation accepted as feasible
}

// DefaultOptimizerSettings returns the limits used when none are configured.
func DefaultOptimizerSettings() OptimizerSettings {
	return OptimizerSettings{
		MaxIterations:   200,
		MaxEvaluations:  20000,
		OuterIterations: 12,
		FeasibilityTol:  1e-6,
	}
}

// AllocationConfig holds everything the engine needs besides pilot statistics.
type AllocationConfig struct {
	// Costs per model in sample order: approximations low to high fidelity,
	// truth last.
	Costs []float64
	// Budget in equivalent truth evaluations. Zero selects the
	// accuracy-constrained formulation.
	Budget float64
	// ConvergenceTol is the target estimator variance relative to the plain
	// Monte Carlo variance of the pilot.
	ConvergenceTol    float64
	TruthFixedByPilot bool
	Recursion         Recursion
	SubMethod         SubMethod
	Formulation       Formulation
	Solver            SolverName
	SolverFallback    bool
	MultiStart        bool
	Parallelism       int // concurrent DAG solves; 0 means one per CPU
	Optimizer         OptimizerSettings
}

// DefaultAllocationConfig returns a budget-free configuration with the
// recommended defaults for the given costs.
func DefaultAllocationConfig(costs []float64) AllocationConfig {
	return AllocationConfig{
		Costs:          append([]float64(nil), costs...),
		ConvergenceTol: 1e-2,
		Recursion:      RecursionKL,
		SubMethod:      SubMethodMF,
		Solver:         SolverAuto,
		SolverFallback: true,
		MultiStart:     true,
		Optimizer:      DefaultOptimizerSettings(),
	}
}

// ResolveFormulation returns the explicit formulation if set, otherwise
// derives it: accuracy-constrained without a budget, ratios-only when the
// truth count is fixed by the pilot, absolute counts otherwise.
func (c AllocationConfig) ResolveFormulation() Formulation {
	switch {
	case c.Formulation != "":
		return c.Formulation
	case c.Budget <= 0:
		return FormulationSamplesCost
	case c.TruthFixedByPilot:
		return FormulationRatios
	default:
		return FormulationSamples
	}
}

// Validate checks names and parameter ranges for a problem with numApprox
// approximations. All failures wrap ErrConfig.
func (c AllocationConfig) Validate(numApprox int) error {
	if numApprox < 1 {
		return fmt.Errorf("%w: need at least one approximation, got %d", ErrConfig, numApprox)
	}
	if len(c.Costs) != numApprox+1 {
		return fmt.Errorf("%w: expected %d costs (approximations then truth), got %d", ErrConfig, numApprox+1, len(c.Costs))
	}
	for i, cost := range c.Costs {
		if !(cost > 0) || math.IsInf(cost, 0) {
			return fmt.Errorf("%w: cost[%d] must be positive and finite, got %v", ErrConfig, i, cost)
		}
	}
	if !ValidSubMethods[c.SubMethod] {
		return fmt.Errorf("%w: unsupported sub-method %q", ErrConfig, c.SubMethod)
	}
	if !ValidRecursions[c.Recursion] {
		return fmt.Errorf("%w: unknown recursion policy %q", ErrConfig, c.Recursion)
	}
	if !ValidFormulations[c.Formulation] {
		return fmt.Errorf("%w: unknown formulation %q", ErrConfig, c.Formulation)
	}
	if !ValidSolvers[c.Solver] {
		return fmt.Errorf("%w: unknown solver %q", ErrConfig, c.Solver)
	}
	if c.Budget < 0 || math.IsNaN(c.Budget) || math.IsInf(c.Budget, 0) {
		return fmt.Errorf("%w: budget must be non-negative and finite, got %v", ErrConfig, c.Budget)
	}
	form := c.ResolveFormulation()
	if !form.AccuracyConstrained() && c.Budget <= 0 {
		return fmt.Errorf("%w: formulation %s requires a positive budget", ErrConfig, form)
	}
	if form.AccuracyConstrained() && !(c.ConvergenceTol > 0) {
		return fmt.Errorf("%w: formulation %s requires a positive convergence tolerance, got %v", ErrConfig, form, c.ConvergenceTol)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("%w: parallelism must be non-negative, got %d", ErrConfig, c.Parallelism)
	}
	o := c.Optimizer
	if o.MaxIterations < 0 || o.MaxEvaluations < 0 || o.OuterIterations < 0 || o.FeasibilityTol < 0 {
		return fmt.Errorf("%w: optimizer limits must be non-negative: %+v", ErrConfig, o)
	}
	return nil
}

// truthCost returns the cost of one truth evaluation.
func (c AllocationConfig) truthCost() float64 {
	return c.Costs[len(c.Costs)-1]
}
