// Package sim provides the generalized approximate control variate (ACV)
// sample-allocation engine.
//
// # Reading Guide
//
// Start with these files to understand the allocation pipeline:
//   - pilot.go: running sums over shared pilot samples and the covariance statistics derived from them
//   - dag.go: control-variate DAGs and the recursion policies that enumerate them
//   - gmatrix.go: the sub-method specific G matrix and g vector for one DAG
//   - estimator.go: estimator variance ratios and the log average variance objective
//   - engine.go: the per-DAG solve loop and best-DAG selection
//
// # Architecture
//
// A run flows pilot statistics -> DAG set -> per-DAG numerical solve ->
// best selection -> integer sample increments. Each DAG solve is independent
// and runs on its own goroutine; only the best-solution reduction is shared.
//
// The sim package defines interfaces and bridge types; implementations live in
// sub-packages:
//   - sim/optimizer/: numerical optimizer backends on gonum/optimize
//   - sim/ensemble/: deterministic synthetic model ensemble for the online pilot loop
//   - sim/trace/: per-DAG search trace recording
//
// Sub-packages register their implementations via init() functions
// (RegisterMinimizer).
//
// # Key Interfaces
//
//   - Minimizer: bound and constraint limited minimization of a Problem
//   - Ensemble: shared evaluation of every model at fresh sample points
package sim
