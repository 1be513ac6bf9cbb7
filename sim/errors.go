package sim

import "errors"

var (
	// ErrConfig marks an unsupported or malformed configuration. The engine
	// aborts on it before any DAG is solved.
	ErrConfig = errors.New("invalid allocation configuration")

	// ErrInsufficientPilot is returned when some QoI has fewer than two
	// shared pilot samples.
	ErrInsufficientPilot = errors.New("insufficient pilot samples")

	// ErrInfeasiblePoint is returned by the evaluator for sample counts that
	// no sampling scheme can realize (non-positive counts, a child with fewer
	// samples than it shares with its parent).
	ErrInfeasiblePoint = errors.New("infeasible sample allocation")

	// ErrSingular is returned when the control-variate system cannot be solved.
	ErrSingular = errors.New("singular control variate system")

	// ErrSolverFailed marks a per-DAG numerical solve that did not converge.
	ErrSolverFailed = errors.New("numerical solve failed")

	// ErrNoValidAllocation is returned when every candidate DAG failed.
	ErrNoValidAllocation = errors.New("no valid allocation")
)
